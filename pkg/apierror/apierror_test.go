package apierror_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jimyag/ofcloud/pkg/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		testFunc func(*testing.T)
	}{
		{
			name: "message without raw error",
			testFunc: func(t *testing.T) {
				err := apierror.NewError("TestError", "test message")
				assert.Equal(t, "[TestError] test message", err.Error())
				assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
			},
		},
		{
			name: "message with raw error",
			testFunc: func(t *testing.T) {
				err := apierror.WrapError(apierror.ErrInternalError, "save failed", fmt.Errorf("disk full"))
				assert.Equal(t, "[InternalError] save failed (RawError: disk full)", err.Error())
			},
		},
		{
			name: "Is compares code",
			testFunc: func(t *testing.T) {
				err := apierror.WrapError(apierror.ErrSimulationNotFound, "simulation sim-1 does not exist", nil)
				assert.True(t, errors.Is(err, apierror.ErrSimulationNotFound))
				assert.False(t, errors.Is(err, apierror.ErrInstanceNotFound))
			},
		},
		{
			name: "Unwrap returns raw error",
			testFunc: func(t *testing.T) {
				raw := errors.New("raw")
				err := apierror.WrapError(apierror.ErrInternalError, "x", raw)
				assert.ErrorIs(t, err, raw)
			},
		},
		{
			name: "WrapError keeps status",
			testFunc: func(t *testing.T) {
				err := apierror.WrapError(apierror.ErrIncorrectInstanceState, "instance is RUNNING", nil)
				assert.Equal(t, http.StatusConflict, err.HTTPStatus)
				assert.Equal(t, "IncorrectInstanceState", err.Code)
			},
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.testFunc(t)
		})
	}
}

func TestErrorResponseJSON(t *testing.T) {
	t.Parallel()

	resp := apierror.NewErrorResponse("req-1",
		apierror.NewErrorWithStatus("A", "first", http.StatusBadRequest),
		apierror.WrapError(apierror.ErrInternalError, "second", errors.New("hidden")),
	)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"errors":[{"code":"A","message":"first"},{"code":"InternalError","message":"second"}],"requestID":"req-1"}`,
		string(data))
	assert.Contains(t, resp.Error(), "RequestID: req-1")
}
