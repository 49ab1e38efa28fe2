package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"github.com/jimyag/ofcloud/pkg/capstan"
)

// CompleteDecomposition 分解线程已结束的实例批量置为 READY
func (l *Lifecycle) CompleteDecomposition(ctx context.Context, insts []*model.Instance) (int64, error) {
	if len(insts) == 0 {
		return 0, nil
	}
	ids := make([]string, len(insts))
	for i, inst := range insts {
		ids[i] = inst.ID
	}
	n, err := l.instances.UpdateStatus(ctx, ids,
		[]string{entity.InstanceStatusDecomposing.String()}, entity.InstanceStatusReady.String())
	if err != nil {
		return 0, fmt.Errorf("mark decomposed instances ready: %w", err)
	}
	l.metrics.ObserveTransition(entity.InstanceStatusReady.String(), int(n))
	return n, nil
}

// RunSolver READY -> RUNNING | RUNNING_MPI
func (l *Lifecycle) RunSolver(ctx context.Context, inst *model.Instance, p provider.Provider) error {
	logger := zerolog.Ctx(ctx).With().
		Str("instance_id", inst.ID).
		Str("simulation_id", inst.SimulationID).
		Logger()
	ctx = logger.WithContext(ctx)

	if err := l.runSolver(ctx, inst); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return err
		}
		logger.Error().Err(err).Msg("Failed to start solver")
		l.HandleFailure(ctx, inst, p, err)
		return err
	}
	return nil
}

func (l *Lifecycle) runSolver(ctx context.Context, inst *model.Instance) error {
	sim, err := l.simulations.GetByID(ctx, inst.SimulationID)
	if err != nil {
		return fmt.Errorf("get simulation: %w", err)
	}
	so, err := capstan.SolverSO(sim.Solver)
	if err != nil {
		return err
	}

	to := entity.InstanceStatusRunning
	if inst.Parallelisation > 1 {
		to = entity.InstanceStatusRunningMPI
	}
	cmd := SolverCommand(so, inst.Parallelisation)
	threadID, err := l.agents(inst.IP).RunCommand(ctx, cmd)
	if err != nil {
		return fmt.Errorf("run solver: %w", err)
	}
	if err := l.transition(ctx, inst, to, map[string]any{"thread_id": threadID}); err != nil {
		return err
	}
	inst.ThreadID = threadID
	l.markSimulation(ctx, sim.ID, entity.SimulationStatusRunning,
		entity.SimulationStatusPending, entity.SimulationStatusDeploying)

	zerolog.Ctx(ctx).Info().Str("command", cmd).Int64("thread_id", threadID).Str("status", to.String()).
		Msg("Solver started")
	return nil
}

// Reconstruct RUNNING_MPI -> RECONSTRUCTING
//
// 命令下发失败时保持 RUNNING_MPI，下一轮重新下发。
func (l *Lifecycle) Reconstruct(ctx context.Context, inst *model.Instance) error {
	threadID, err := l.agents(inst.IP).RunCommand(ctx, ReconstructCommand())
	if err != nil {
		return fmt.Errorf("run reconstruct on %s: %w", inst.ID, err)
	}
	if err := l.transition(ctx, inst, entity.InstanceStatusReconstructing, map[string]any{"thread_id": threadID}); err != nil {
		return err
	}
	inst.ThreadID = threadID
	zerolog.Ctx(ctx).Info().Str("instance_id", inst.ID).Int64("thread_id", threadID).Msg("Reconstruction started")
	return nil
}

// FinishedThreads 返回记录的执行句柄已结束的实例
// 查询失败的实例本轮跳过。
func (l *Lifecycle) FinishedThreads(ctx context.Context, insts []*model.Instance) []*model.Instance {
	finished := make([]*model.Instance, 0, len(insts))
	for _, inst := range insts {
		done, err := l.agents(inst.IP).IsThreadFinished(ctx, inst.ThreadID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("instance_id", inst.ID).
				Int64("thread_id", inst.ThreadID).
				Msg("Failed to query instance threads")
			continue
		}
		if done {
			finished = append(finished, inst)
		}
	}
	return finished
}
