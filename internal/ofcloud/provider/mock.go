package provider

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
)

// MockProvider 是 Provider 的 mock 实现
type MockProvider struct {
	mock.Mock
	ProviderID string
}

var _ Provider = (*MockProvider)(nil)

func NewMockProvider(id string) *MockProvider {
	return &MockProvider{ProviderID: id}
}

func (m *MockProvider) ID() string   { return m.ProviderID }
func (m *MockProvider) Kind() string { return "mock" }

func (m *MockProvider) NFS() config.NFSConfig {
	return config.NFSConfig{
		Address:      "10.0.0.2",
		ServerFolder: "/export/ofcloud",
		LocalMount:   "/mnt/ofcloud",
	}
}

func (m *MockProvider) PrepareCompute(ctx context.Context, req LaunchRequest) (*ProvisionedInstance, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ProvisionedInstance), args.Error(1)
}

func (m *MockProvider) IsAdmissibleNow(ctx context.Context, req AdmissionRequest) (bool, error) {
	args := m.Called(ctx, req)
	return args.Bool(0), args.Error(1)
}

func (m *MockProvider) ListActiveResourceIDs(ctx context.Context) (map[string]struct{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

func (m *MockProvider) Terminate(ctx context.Context, computeIDs []string) error {
	args := m.Called(ctx, computeIDs)
	return args.Error(0)
}

func (m *MockProvider) CoresFor(ctx context.Context, flavor string) int {
	args := m.Called(ctx, flavor)
	return args.Int(0)
}
