package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/pkg/apierror"
	"github.com/jimyag/ofcloud/pkg/ginx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockSimulationService 是 SimulationService 的 mock 实现
type MockSimulationService struct {
	mock.Mock
}

func (m *MockSimulationService) CreateSimulation(ctx context.Context, req *entity.CreateSimulationRequest) (*entity.CreateSimulationResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.CreateSimulationResponse), args.Error(1)
}

func (m *MockSimulationService) DescribeSimulations(ctx context.Context, req *entity.DescribeSimulationsRequest) (*entity.DescribeSimulationsResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.DescribeSimulationsResponse), args.Error(1)
}

func (m *MockSimulationService) DestroySimulation(ctx context.Context, req *entity.DestroySimulationRequest) (*entity.DestroySimulationResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.DestroySimulationResponse), args.Error(1)
}

// MockInstanceService 是 InstanceService 的 mock 实现
type MockInstanceService struct {
	mock.Mock
}

func (m *MockInstanceService) DescribeInstances(ctx context.Context, req *entity.DescribeInstancesRequest) (*entity.DescribeInstancesResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.DescribeInstancesResponse), args.Error(1)
}

func (m *MockInstanceService) ModifyInstanceConfig(ctx context.Context, req *entity.ModifyInstanceConfigRequest) (*entity.ModifyInstanceConfigResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.ModifyInstanceConfigResponse), args.Error(1)
}

func (m *MockInstanceService) GetInstanceLog(ctx context.Context, req *entity.GetInstanceLogRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func newTestAPI(t *testing.T) (*API, *MockSimulationService, *MockInstanceService, *prometheus.Registry) {
	t.Helper()
	sims := new(MockSimulationService)
	insts := new(MockInstanceService)
	reg := prometheus.NewRegistry()
	api, err := New(":0", sims, insts, reg)
	require.NoError(t, err)
	return api, sims, insts, reg
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSimulation_CreateSimulation(t *testing.T) {
	t.Parallel()

	valid := &entity.CreateSimulationRequest{
		Name:            "cavity",
		Flavor:          "of.small",
		Solver:          "openfoam.simplefoam",
		ContainerName:   "cases",
		InputDataObject: "cavity.tar.gz",
	}

	testcases := []struct {
		name         string
		req          *entity.CreateSimulationRequest
		mockSetup    func(*MockSimulationService)
		expectStatus int
		expectCode   string
	}{
		{
			name: "successful create",
			req:  valid,
			mockSetup: func(m *MockSimulationService) {
				m.On("CreateSimulation", mock.Anything, mock.AnythingOfType("*entity.CreateSimulationRequest")).
					Return(&entity.CreateSimulationResponse{Simulation: &entity.Simulation{ID: "sim-1", Status: entity.SimulationStatusPending}}, nil)
			},
			expectStatus: http.StatusOK,
		},
		{
			name:         "missing solver",
			req:          &entity.CreateSimulationRequest{Name: "cavity", Flavor: "of.small"},
			mockSetup:    func(m *MockSimulationService) {},
			expectStatus: http.StatusBadRequest,
			expectCode:   "InvalidParameterValue",
		},
		{
			name: "unsupported solver",
			req:  valid,
			mockSetup: func(m *MockSimulationService) {
				m.On("CreateSimulation", mock.Anything, mock.Anything).
					Return(nil, apierror.WrapError(apierror.ErrUnsupportedSolver, "unknown solver", nil))
			},
			expectStatus: http.StatusBadRequest,
			expectCode:   "UnsupportedSolver",
		},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			api, sims, _, _ := newTestAPI(t)
			tc.mockSetup(sims)

			w := do(t, api.Handler(), http.MethodPost, "/api/simulations/create", tc.req)
			assert.Equal(t, tc.expectStatus, w.Code)
			assert.NotEmpty(t, w.Header().Get(ginx.RequestIDHeader))
			if tc.expectCode != "" {
				var resp apierror.ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				require.Len(t, resp.Errors, 1)
				assert.Equal(t, tc.expectCode, resp.Errors[0].Code)
				assert.Equal(t, w.Header().Get(ginx.RequestIDHeader), resp.RequestID)
			}
			sims.AssertExpectations(t)
		})
	}
}

func TestSimulation_DescribeAndDestroy(t *testing.T) {
	t.Parallel()

	api, sims, _, _ := newTestAPI(t)
	sims.On("DescribeSimulations", mock.Anything, &entity.DescribeSimulationsRequest{SimulationIDs: []string{"sim-1"}}).
		Return(&entity.DescribeSimulationsResponse{Simulations: []entity.Simulation{{ID: "sim-1"}}}, nil)
	sims.On("DestroySimulation", mock.Anything, &entity.DestroySimulationRequest{SimulationID: "sim-1"}).
		Return(&entity.DestroySimulationResponse{SimulationID: "sim-1", TerminatedInstances: []string{"i-1"}}, nil)
	sims.On("DestroySimulation", mock.Anything, &entity.DestroySimulationRequest{SimulationID: "sim-2"}).
		Return(nil, apierror.WrapError(apierror.ErrSimulationNotFound, "Simulation not found: sim-2", nil))

	w := do(t, api.Handler(), http.MethodPost, "/api/simulations/describe", entity.DescribeSimulationsRequest{SimulationIDs: []string{"sim-1"}})
	require.Equal(t, http.StatusOK, w.Code)
	var described entity.DescribeSimulationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &described))
	require.Len(t, described.Simulations, 1)

	w = do(t, api.Handler(), http.MethodPost, "/api/simulations/destroy", entity.DestroySimulationRequest{SimulationID: "sim-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"terminated_instances":["i-1"]`)

	w = do(t, api.Handler(), http.MethodPost, "/api/simulations/destroy", entity.DestroySimulationRequest{SimulationID: "sim-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, api.Handler(), http.MethodPost, "/api/simulations/destroy", entity.DestroySimulationRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInstance_Routes(t *testing.T) {
	t.Parallel()

	api, _, insts, _ := newTestAPI(t)
	insts.On("DescribeInstances", mock.Anything, &entity.DescribeInstancesRequest{Status: "RUNNING"}).
		Return(&entity.DescribeInstancesResponse{Instances: []entity.Instance{{ID: "i-1", Status: entity.InstanceStatusRunning}}}, nil)
	insts.On("ModifyInstanceConfig", mock.Anything, mock.AnythingOfType("*entity.ModifyInstanceConfigRequest")).
		Return(nil, apierror.WrapError(apierror.ErrIncorrectInstanceState, "Only PENDING instances can be modified: i-1", nil))
	insts.On("GetInstanceLog", mock.Anything, &entity.GetInstanceLogRequest{InstanceID: "i-1"}).
		Return("Time = 0.005\n", nil)

	w := do(t, api.Handler(), http.MethodPost, "/api/instances/describe", entity.DescribeInstancesRequest{Status: "RUNNING"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"RUNNING"`)

	w = do(t, api.Handler(), http.MethodPost, "/api/instances/describe", entity.DescribeInstancesRequest{Status: "SLEEPING"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, api.Handler(), http.MethodPost, "/api/instances/modify-config", entity.ModifyInstanceConfigRequest{
		InstanceID: "i-1",
		Config:     map[string]string{"system/controlDict/endTime": "10"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, api.Handler(), http.MethodGet, "/api/instances/i-1/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Time = 0.005\n", w.Body.String())
}

func TestAPI_Metrics(t *testing.T) {
	t.Parallel()

	api, _, _, reg := newTestAPI(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "ofcloud_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	w := do(t, api.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "ofcloud_test_total 1"))
}
