package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/metrics"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"github.com/jimyag/ofcloud/pkg/capstan"
	"github.com/jimyag/ofcloud/pkg/casefile"
	"github.com/jimyag/ofcloud/pkg/osvagent"
	"github.com/jimyag/ofcloud/pkg/snap"
)

type fixture struct {
	lc          *Lifecycle
	instances   repository.InstanceRepository
	simulations repository.SimulationRepository
	provider    *provider.MockProvider
	files       *casefile.MockProvider
	images      *capstan.MockClient
	agent       *osvagent.MockAgent
	collector   *snap.MockCollector
}

func newFixture(t *testing.T, maxRetries int) *fixture {
	t.Helper()
	repo, err := repository.New(filepath.Join(t.TempDir(), "ofcloud.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	f := &fixture{
		instances:   repository.NewInstanceRepository(repo.DB()),
		simulations: repository.NewSimulationRepository(repo.DB()),
		provider:    provider.NewMockProvider("cloud-a"),
		files:       casefile.NewMockProvider(),
		images:      capstan.NewMockClient(),
		agent:       osvagent.NewMockAgent(),
		collector:   snap.NewMockCollector(),
	}
	f.lc = New(Deps{
		Instances:   f.instances,
		Simulations: f.simulations,
		Providers:   provider.NewSet(f.provider),
		Files:       f.files,
		Images:      f.images,
		Agents:      f.agent.Connector(),
		Collector:   f.collector,
		Metrics:     m,
	}, Options{MaxRetries: maxRetries, Tenant: "acme", UniqueServerName: "ofc"})
	return f
}

func (f *fixture) seed(t *testing.T, simID string, instanceIDs ...string) {
	t.Helper()
	now := time.Now()
	sim := &model.Simulation{
		ID:              simID,
		Name:            "cavity",
		Flavor:          "of.small",
		Solver:          "openfoam.simplefoam",
		InstanceCount:   len(instanceIDs),
		ContainerName:   "cases",
		InputDataObject: "cavity.tar.gz",
		Status:          entity.SimulationStatusPending.String(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	insts := make([]*model.Instance, len(instanceIDs))
	for i, id := range instanceIDs {
		insts[i] = &model.Instance{
			ID:              id,
			SimulationID:    simID,
			Name:            "cavity-" + id,
			Config:          "{}",
			Status:          entity.InstanceStatusPending.String(),
			Parallelisation: 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	}
	require.NoError(t, f.simulations.Create(context.Background(), sim, insts))
}

func (f *fixture) reload(t *testing.T, id string) *model.Instance {
	t.Helper()
	inst, err := f.instances.GetByID(context.Background(), id)
	require.NoError(t, err)
	return inst
}

func (f *fixture) simulationStatus(t *testing.T, id string) string {
	t.Helper()
	sim, err := f.simulations.GetByID(context.Background(), id)
	require.NoError(t, err)
	return sim.Status
}

// expectDeploy 配置一次成功的部署链
func (f *fixture) expectDeploy(cores int) {
	f.provider.On("IsAdmissibleNow", mock.Anything, mock.Anything).Return(true, nil)
	f.provider.On("CoresFor", mock.Anything, "of.small").Return(cores)
	f.files.On("Stage", mock.Anything, mock.Anything).Return(&casefile.Workspace{Root: "/tmp/ws", CaseDir: "/tmp/ws/case"}, nil)
	f.files.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&casefile.Published{
		LocalPath:  "/mnt/ofcloud/i-1/case",
		RemotePath: "/export/ofcloud/i-1/case",
	}, nil)
	f.images.On("ComposeBootImage", mock.Anything, "cavity", "openfoam.simplefoam").Return(&capstan.Image{Name: "cavity", Path: "/capstan/cavity.qemu"}, nil)
	f.provider.On("PrepareCompute", mock.Anything, mock.Anything).Return(&provider.ProvisionedInstance{ComputeID: "srv-1", IP: "10.1.0.5"}, nil)
	f.agent.On("WaitUp", mock.Anything).Return(nil)
	f.agent.On("Mount", mock.Anything, "nfs://10.0.0.2/export/ofcloud/i-1/case", CaseDir).Return(nil)
	f.agent.On("SetEnv", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.collector.On("StartCollection", mock.Anything, "10.1.0.5").Return("task-1", nil)
}

func TestLifecycle_SingleCorePath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1")
	f.expectDeploy(1)
	f.agent.On("RunCommand", mock.Anything, "/usr/bin/simpleFoam.so -case /case").Return(int64(7), nil)
	f.provider.On("Terminate", mock.Anything, []string{"srv-1"}).Return(nil)
	f.collector.On("StopCollection", mock.Anything, "task-1").Return(nil)

	inst := f.reload(t, "i-1")
	p, err := f.lc.Admit(ctx, inst)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, entity.SimulationStatusDeploying.String(), f.simulationStatus(t, "sim-1"))

	require.NoError(t, f.lc.Deploy(ctx, inst, p))
	inst = f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusReady.String(), inst.Status)
	assert.Equal(t, "task-1", inst.MetricsTaskID)
	assert.Equal(t, "/mnt/ofcloud/i-1/case", inst.LocalCaseLocation)
	f.agent.AssertCalled(t, "SetEnv", mock.Anything, "OPENFOAM_CASE", "ofc-cavity-i-1")
	f.agent.AssertNotCalled(t, "RunCommand", mock.Anything, DecomposeCommand())
	f.files.AssertNotCalled(t, "ApplyOverrides", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, f.lc.RunSolver(ctx, inst, p))
	inst = f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusRunning.String(), inst.Status)
	assert.Equal(t, int64(7), inst.ThreadID)
	assert.Equal(t, entity.SimulationStatusRunning.String(), f.simulationStatus(t, "sim-1"))

	n, err := f.lc.Finish(ctx, p, []*model.Instance{inst})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, entity.InstanceStatusComplete.String(), f.reload(t, "i-1").Status)
	assert.Equal(t, entity.SimulationStatusComplete.String(), f.simulationStatus(t, "sim-1"))
	f.collector.AssertCalled(t, "StopCollection", mock.Anything, "task-1")
}

func TestLifecycle_MulticorePath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1")
	f.expectDeploy(4)
	f.agent.On("RunCommand", mock.Anything, DecomposeCommand()).Return(int64(3), nil)
	f.agent.On("RunCommand", mock.Anything, "/usr/bin/mpirun -n 4 --allow-run-as-root /usr/bin/simpleFoam.so -parallel -case /case").Return(int64(4), nil)
	f.agent.On("RunCommand", mock.Anything, ReconstructCommand()).Return(int64(5), nil)
	f.provider.On("Terminate", mock.Anything, []string{"srv-1"}).Return(nil)
	f.collector.On("StopCollection", mock.Anything, "task-1").Return(nil)

	inst := f.reload(t, "i-1")
	p, err := f.lc.Admit(ctx, inst)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4, f.reload(t, "i-1").Parallelisation)

	require.NoError(t, f.lc.Deploy(ctx, inst, p))
	inst = f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusDecomposing.String(), inst.Status)
	assert.Equal(t, int64(3), inst.ThreadID)
	f.files.AssertCalled(t, "Stage", mock.Anything, mock.MatchedBy(func(req casefile.StageRequest) bool {
		return req.Parallelisation == 4 && req.Bucket == "cases" && req.Key == "cavity.tar.gz"
	}))

	n, err := f.lc.CompleteDecomposition(ctx, []*model.Instance{inst})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	inst = f.reload(t, "i-1")
	require.NoError(t, f.lc.RunSolver(ctx, inst, p))
	assert.Equal(t, entity.InstanceStatusRunningMPI.String(), f.reload(t, "i-1").Status)

	require.NoError(t, f.lc.Reconstruct(ctx, inst))
	inst = f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusReconstructing.String(), inst.Status)
	assert.Equal(t, int64(5), inst.ThreadID)

	_, err = f.lc.Finish(ctx, p, []*model.Instance{inst})
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusComplete.String(), f.reload(t, "i-1").Status)
}

func TestLifecycle_AdmissionDenied(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1")
	f.provider.On("IsAdmissibleNow", mock.Anything, mock.Anything).Return(false, nil)

	p, err := f.lc.Admit(ctx, f.reload(t, "i-1"))
	require.NoError(t, err)
	assert.Nil(t, p)

	inst := f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusPending.String(), inst.Status)
	assert.Zero(t, inst.RetryAttempts)
	assert.Equal(t, entity.SimulationStatusPending.String(), f.simulationStatus(t, "sim-1"))
}

func TestLifecycle_AdmissionCountsInFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1", "i-2")
	// 配额只够一个实例：已有一个部署中时拒绝
	f.provider.On("IsAdmissibleNow", mock.Anything, mock.MatchedBy(func(req provider.AdmissionRequest) bool {
		return len(req.InFlight) == 0
	})).Return(true, nil)
	f.provider.On("IsAdmissibleNow", mock.Anything, mock.MatchedBy(func(req provider.AdmissionRequest) bool {
		return len(req.InFlight) == 1 && req.InFlight[0] == "of.small"
	})).Return(false, nil)
	f.provider.On("CoresFor", mock.Anything, "of.small").Return(1)

	p, err := f.lc.Admit(ctx, f.reload(t, "i-1"))
	require.NoError(t, err)
	require.NotNil(t, p)

	p, err = f.lc.Admit(ctx, f.reload(t, "i-2"))
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, entity.InstanceStatusPending.String(), f.reload(t, "i-2").Status)
}

func TestLifecycle_RetryBound(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name       string
		maxRetries int
	}{
		{name: "single attempt", maxRetries: 1},
		{name: "three attempts", maxRetries: 3},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			f := newFixture(t, tc.maxRetries)
			f.seed(t, "sim-1", "i-1")
			f.provider.On("IsAdmissibleNow", mock.Anything, mock.Anything).Return(true, nil)
			f.provider.On("CoresFor", mock.Anything, mock.Anything).Return(1)
			f.files.On("Stage", mock.Anything, mock.Anything).Return(nil, errors.New("bucket not found"))

			for attempt := 1; attempt <= tc.maxRetries; attempt++ {
				inst := f.reload(t, "i-1")
				require.Equal(t, entity.InstanceStatusPending.String(), inst.Status, "attempt %d", attempt)
				p, err := f.lc.Admit(ctx, inst)
				require.NoError(t, err)
				require.Error(t, f.lc.Deploy(ctx, inst, p))
				assert.Equal(t, attempt, f.reload(t, "i-1").RetryAttempts)
			}

			inst := f.reload(t, "i-1")
			assert.Equal(t, entity.InstanceStatusFailed.String(), inst.Status)
			assert.Equal(t, tc.maxRetries, inst.RetryAttempts)
			assert.Equal(t, entity.SimulationStatusFailed.String(), f.simulationStatus(t, "sim-1"))
		})
	}
}

func TestLifecycle_FailureTearsDownCompute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1")
	f.expectDeploy(1)
	f.agent.ExpectedCalls = nil
	f.agent.On("WaitUp", mock.Anything).Return(errors.New("agent not reachable"))
	f.provider.On("Terminate", mock.Anything, []string{"srv-1"}).Return(nil)

	inst := f.reload(t, "i-1")
	p, err := f.lc.Admit(ctx, inst)
	require.NoError(t, err)
	require.Error(t, f.lc.Deploy(ctx, inst, p))

	f.provider.AssertCalled(t, "Terminate", mock.Anything, []string{"srv-1"})
	inst = f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusPending.String(), inst.Status)
	assert.Equal(t, 1, inst.RetryAttempts)
	assert.Empty(t, inst.ComputeID)
	assert.Empty(t, inst.IP)
	assert.Empty(t, inst.Provider)
}

func TestLifecycle_CascadingFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 1)
	f.seed(t, "sim-1", "i-1", "i-2")
	f.provider.On("IsAdmissibleNow", mock.Anything, mock.Anything).Return(true, nil)
	f.provider.On("CoresFor", mock.Anything, mock.Anything).Return(1)
	f.files.On("Stage", mock.Anything, mock.Anything).Return(nil, errors.New("bucket not found"))

	inst := f.reload(t, "i-1")
	p, err := f.lc.Admit(ctx, inst)
	require.NoError(t, err)
	require.Error(t, f.lc.Deploy(ctx, inst, p))
	assert.Equal(t, entity.InstanceStatusFailed.String(), f.reload(t, "i-1").Status)
	assert.Equal(t, entity.SimulationStatusDeploying.String(), f.simulationStatus(t, "sim-1"))

	inst = f.reload(t, "i-2")
	p, err = f.lc.Admit(ctx, inst)
	require.NoError(t, err)
	require.Error(t, f.lc.Deploy(ctx, inst, p))
	assert.Equal(t, entity.SimulationStatusFailed.String(), f.simulationStatus(t, "sim-1"))
}

func TestLifecycle_FinishIsolatesTerminateFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1", "i-2", "i-3")
	for i, id := range []string{"i-1", "i-2", "i-3"} {
		ok, err := f.instances.UpdateFields(ctx, id, []string{entity.InstanceStatusPending.String()}, map[string]any{
			"status":     entity.InstanceStatusRunning.String(),
			"compute_id": []string{"srv-1", "srv-2", "srv-3"}[i],
		})
		require.NoError(t, err)
		require.True(t, ok)
	}
	f.provider.On("Terminate", mock.Anything, []string{"srv-1", "srv-2", "srv-3"}).
		Return(errors.New("delete srv-2: conflict"))

	insts, err := f.instances.List(ctx, repository.InstanceFilter{SimulationID: "sim-1"})
	require.NoError(t, err)
	n, err := f.lc.Finish(ctx, f.provider, insts)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	for _, id := range []string{"i-1", "i-2", "i-3"} {
		assert.Equal(t, entity.InstanceStatusComplete.String(), f.reload(t, id).Status)
	}
}

func TestLifecycle_MarkOrphansComplete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1")
	ok, err := f.instances.UpdateFields(ctx, "i-1", []string{entity.InstanceStatusPending.String()}, map[string]any{
		"status": entity.InstanceStatusRunningMPI.String(),
	})
	require.NoError(t, err)
	require.True(t, ok)

	n, err := f.lc.MarkOrphansComplete(ctx, []*model.Instance{f.reload(t, "i-1")}, entity.InstanceStatusRunningMPI)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, entity.InstanceStatusComplete.String(), f.reload(t, "i-1").Status)
	f.provider.AssertNotCalled(t, "Terminate", mock.Anything, mock.Anything)

	// 已完成的实例不会被再次处理
	n, err = f.lc.MarkOrphansComplete(ctx, []*model.Instance{f.reload(t, "i-1")}, entity.InstanceStatusRunningMPI)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLifecycle_PrepareEnvAppliesOverrides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	f.seed(t, "sim-1", "i-1")
	ok, err := f.instances.UpdateFields(ctx, "i-1", []string{entity.InstanceStatusPending.String()}, map[string]any{
		"status":              entity.InstanceStatusUp.String(),
		"config":              `{"constant/transportProperties/nu":"1e-05"}`,
		"ip":                  "10.1.0.5",
		"local_case_location": "/mnt/ofcloud/i-1/case",
		"nfs_case_location":   "/export/ofcloud/i-1/case",
	})
	require.NoError(t, err)
	require.True(t, ok)

	f.files.On("ApplyOverrides", mock.Anything, "/mnt/ofcloud/i-1/case", map[string]string{
		"constant/transportProperties/nu": "1e-05",
	}).Return([]string{"/mnt/ofcloud/i-1/case/constant/transportProperties"}, nil)
	f.agent.On("WaitUp", mock.Anything).Return(nil)
	f.agent.On("Mount", mock.Anything, "nfs://10.0.0.2/export/ofcloud/i-1/case", CaseDir).Return(nil)
	f.agent.On("SetEnv", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.collector.On("StartCollection", mock.Anything, "10.1.0.5").Return("", errors.New("snap down"))

	inst := f.reload(t, "i-1")
	require.NoError(t, f.lc.PrepareEnv(ctx, inst, f.provider))
	inst = f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusReady.String(), inst.Status)
	assert.Empty(t, inst.MetricsTaskID)
	f.agent.AssertNumberOfCalls(t, "SetEnv", 6)
}

func TestLifecycle_FinishedThreads(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	f.agent.On("IsThreadFinished", mock.Anything, int64(1)).Return(true, nil)
	f.agent.On("IsThreadFinished", mock.Anything, int64(2)).Return(false, nil)
	f.agent.On("IsThreadFinished", mock.Anything, int64(3)).Return(false, errors.New("timeout"))

	insts := []*model.Instance{{ID: "i-1", ThreadID: 1}, {ID: "i-2", ThreadID: 2}, {ID: "i-3", ThreadID: 3}}
	got := f.lc.FinishedThreads(context.Background(), insts)
	require.Len(t, got, 1)
	assert.Equal(t, "i-1", got[0].ID)
}

func TestCommands(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/usr/bin/simpleFoam.so -case /case", SolverCommand("simpleFoam.so", 1))
	assert.Equal(t, "/usr/bin/mpirun -n 8 --allow-run-as-root /usr/bin/icoFoam.so -parallel -case /case",
		SolverCommand("icoFoam.so", 8))
	assert.Equal(t, "/usr/bin/decomposePar -case /case", DecomposeCommand())
	assert.Equal(t, "/usr/bin/reconstructPar -case /case", ReconstructCommand())
	assert.Equal(t, "nfs://10.0.0.2/export/i-1/case", MountSource("10.0.0.2", "/export/i-1/case"))
}

func TestLifecycle_ConcurrentAdmissionSingleSlot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 3)
	ids := []string{"i-1", "i-2", "i-3", "i-4", "i-5", "i-6"}
	f.seed(t, "sim-1", ids...)
	// 配额只够一个实例
	f.provider.On("IsAdmissibleNow", mock.Anything, mock.MatchedBy(func(req provider.AdmissionRequest) bool {
		return len(req.InFlight) == 0
	})).Return(true, nil)
	f.provider.On("IsAdmissibleNow", mock.Anything, mock.MatchedBy(func(req provider.AdmissionRequest) bool {
		return len(req.InFlight) > 0
	})).Return(false, nil)
	f.provider.On("CoresFor", mock.Anything, "of.small").Return(1)

	insts := make([]*model.Instance, len(ids))
	for i, id := range ids {
		insts[i] = f.reload(t, id)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []string
	)
	for _, inst := range insts {
		inst := inst
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.lc.Admit(ctx, inst)
			assert.NoError(t, err)
			if p != nil {
				mu.Lock()
				admitted = append(admitted, inst.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, admitted, 1)
	deploying, err := f.instances.List(ctx, repository.InstanceFilter{
		Statuses: []string{entity.InstanceStatusDeploying.String()},
	})
	require.NoError(t, err)
	require.Len(t, deploying, 1)
	assert.Equal(t, admitted[0], deploying[0].ID)
}

func TestLifecycle_ConcurrentSiblingFailures(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		name     string
		siblings int
	}{
		{name: "two siblings", siblings: 2},
		{name: "five siblings", siblings: 5},
	}

	for _, tc := range testcases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			f := newFixture(t, 1)
			ids := make([]string, tc.siblings)
			for i := range ids {
				ids[i] = fmt.Sprintf("i-%d", i+1)
			}
			f.seed(t, "sim-1", ids...)
			insts := make([]*model.Instance, len(ids))
			for i, id := range ids {
				ok, err := f.instances.UpdateFields(ctx, id, []string{entity.InstanceStatusPending.String()}, map[string]any{
					"status":   entity.InstanceStatusDeploying.String(),
					"provider": "cloud-a",
				})
				require.NoError(t, err)
				require.True(t, ok)
				insts[i] = f.reload(t, id)
			}

			var wg sync.WaitGroup
			for _, inst := range insts {
				inst := inst
				wg.Add(1)
				go func() {
					defer wg.Done()
					f.lc.HandleFailure(ctx, inst, f.provider, errors.New("boot timeout"))
				}()
			}
			wg.Wait()

			for _, id := range ids {
				assert.Equal(t, entity.InstanceStatusFailed.String(), f.reload(t, id).Status, id)
			}
			assert.Equal(t, entity.SimulationStatusFailed.String(), f.simulationStatus(t, "sim-1"))
		})
	}
}

func TestLifecycle_RecoverInterrupted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, 2)
	f.seed(t, "sim-1", "i-1", "i-2", "i-3", "i-4")
	for id, fields := range map[string]map[string]any{
		"i-1": {"status": entity.InstanceStatusDeploying.String(), "provider": "cloud-a"},
		"i-2": {"status": entity.InstanceStatusUp.String(), "provider": "cloud-a", "compute_id": "srv-2", "metrics_task_id": "task-2"},
		"i-3": {"status": entity.InstanceStatusUp.String(), "provider": "cloud-a", "compute_id": "srv-3", "retry_attempts": 1},
	} {
		ok, err := f.instances.UpdateFields(ctx, id, []string{entity.InstanceStatusPending.String()}, fields)
		require.NoError(t, err)
		require.True(t, ok)
	}
	f.provider.On("Terminate", mock.Anything, []string{"srv-2"}).Return(nil)
	f.provider.On("Terminate", mock.Anything, []string{"srv-3"}).Return(nil)
	f.collector.On("StopCollection", mock.Anything, "task-2").Return(nil)

	n, err := f.lc.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	i1 := f.reload(t, "i-1")
	assert.Equal(t, entity.InstanceStatusPending.String(), i1.Status)
	assert.Equal(t, 1, i1.RetryAttempts)

	i2 := f.reload(t, "i-2")
	assert.Equal(t, entity.InstanceStatusPending.String(), i2.Status)
	assert.Empty(t, i2.ComputeID)
	assert.Empty(t, i2.Provider)

	// 重试次数用尽
	assert.Equal(t, entity.InstanceStatusFailed.String(), f.reload(t, "i-3").Status)
	// 未被打断的实例不受影响
	i4 := f.reload(t, "i-4")
	assert.Equal(t, entity.InstanceStatusPending.String(), i4.Status)
	assert.Zero(t, i4.RetryAttempts)

	f.provider.AssertNumberOfCalls(t, "Terminate", 2)
	f.collector.AssertExpectations(t)
}
