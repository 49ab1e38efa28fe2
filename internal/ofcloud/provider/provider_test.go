package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
)

type item struct {
	id        string
	computeID string
}

func TestPartitionByLiveness(t *testing.T) {
	t.Parallel()

	p := NewMockProvider("p1")
	p.On("ListActiveResourceIDs", mock.Anything).Return(map[string]struct{}{"srv-a": {}, "srv-c": {}}, nil)

	items := []item{
		{id: "i-1", computeID: "srv-a"},
		{id: "i-2", computeID: "srv-b"},
		{id: "i-3", computeID: "srv-c"},
		{id: "i-4", computeID: ""},
	}
	live, orphaned, err := PartitionByLiveness(context.Background(), p, items, func(i item) string { return i.computeID })
	require.NoError(t, err)
	assert.Equal(t, []item{items[0], items[2]}, live)
	assert.Equal(t, []item{items[1], items[3]}, orphaned)
}

func TestPartitionByLiveness_Empty(t *testing.T) {
	t.Parallel()

	p := NewMockProvider("p1")
	live, orphaned, err := PartitionByLiveness(context.Background(), p, []item{}, func(i item) string { return i.computeID })
	require.NoError(t, err)
	assert.Empty(t, live)
	assert.Empty(t, orphaned)
	p.AssertNotCalled(t, "ListActiveResourceIDs", mock.Anything)
}

func TestPartitionByLiveness_Error(t *testing.T) {
	t.Parallel()

	p := NewMockProvider("p1")
	p.On("ListActiveResourceIDs", mock.Anything).Return(nil, errors.New("unauthorized"))

	_, _, err := PartitionByLiveness(context.Background(), p, []item{{id: "i-1"}}, func(i item) string { return i.computeID })
	assert.Error(t, err)
}

func TestWaitUntil(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name      string
		readyAt   int
		checkErr  error
		attempts  int
		wantErr   bool
		wantCalls int
	}{
		{name: "ready immediately", readyAt: 1, attempts: 3, wantCalls: 1},
		{name: "ready on last attempt", readyAt: 3, attempts: 3, wantCalls: 3},
		{name: "never ready", readyAt: 10, attempts: 3, wantErr: true, wantCalls: 3},
		{name: "check fails", readyAt: 10, checkErr: errors.New("boom"), attempts: 3, wantErr: true, wantCalls: 1},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			err := WaitUntil(context.Background(), time.Millisecond, tc.attempts, func(ctx context.Context) (bool, error) {
				calls++
				if tc.checkErr != nil {
					return false, tc.checkErr
				}
				return calls >= tc.readyAt, nil
			})
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, calls)
		})
	}
}

func TestWaitActive_Classification(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	err := waitActive(ctx, "p1", time.Millisecond, 2, func(ctx context.Context) (bool, error) { return false, nil })
	assert.True(t, IsProvisionError(err, ProvisionBootTimeout))

	err = waitActive(ctx, "p1", time.Millisecond, 2, func(ctx context.Context) (bool, error) {
		return false, errors.New("api down")
	})
	assert.True(t, IsProvisionError(err, ProvisionBootFailure))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = WaitUntil(canceled, time.Hour, 5, func(ctx context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_Build(t *testing.T) {
	t.Parallel()

	built := []string{}
	r := Registry{
		"fake": func(ctx context.Context, cfg config.ProviderConfig, boot config.BootConfig) (Provider, error) {
			built = append(built, cfg.ID)
			return NewMockProvider(cfg.ID), nil
		},
	}

	providers, err := r.Build(context.Background(), []config.ProviderConfig{
		{ID: "b", Kind: "fake"},
		{ID: "a", Kind: "fake"},
	}, config.BootConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, built)

	set := NewSet(providers...)
	assert.Equal(t, "b", set.All()[0].ID())
	got, err := set.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID())

	_, err = set.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = r.Build(context.Background(), []config.ProviderConfig{{ID: "x", Kind: "gce"}}, config.BootConfig{})
	assert.Error(t, err)
}

func TestLaunchRequest_ServerName(t *testing.T) {
	t.Parallel()

	req := LaunchRequest{InstanceID: "i-42", InstanceName: "sim-7-highRe"}
	assert.Equal(t, "sim-7-highRe-i-42", req.ServerName())
}
