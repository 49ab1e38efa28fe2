package scheduler

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
)

func computeID(inst *model.Instance) string {
	return inst.ComputeID
}

func statusStrings(statuses ...entity.InstanceStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}

// listLive 列出 provider 上指定状态的实例，并按资源是否仍然存在分组
func (s *SchedulerContext) listLive(ctx context.Context, p provider.Provider, statuses ...entity.InstanceStatus) (live, orphaned []*model.Instance, ok bool) {
	logger := zerolog.Ctx(ctx).With().Str("provider", p.ID()).Logger()
	insts, err := s.instances.List(ctx, repository.InstanceFilter{
		Provider: p.ID(),
		Statuses: statusStrings(statuses...),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list instances")
		return nil, nil, false
	}
	if len(insts) == 0 {
		return nil, nil, false
	}
	live, orphaned, err = provider.PartitionByLiveness(ctx, p, insts, computeID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list active compute resources")
		return nil, nil, false
	}
	return live, orphaned, true
}

// shutdownPass RUNNING / RECONSTRUCTING：资源消失的直接完成，执行结束的删除资源后完成
func (s *SchedulerContext) shutdownPass(ctx context.Context) {
	for _, p := range s.providers.All() {
		live, orphaned, ok := s.listLive(ctx, p, entity.InstanceStatusRunning, entity.InstanceStatusReconstructing)
		if !ok {
			continue
		}
		logger := zerolog.Ctx(ctx).With().Str("provider", p.ID()).Logger()

		if len(orphaned) > 0 {
			if _, err := s.lifecycle.MarkOrphansComplete(ctx, orphaned,
				entity.InstanceStatusRunning, entity.InstanceStatusReconstructing); err != nil {
				logger.Error().Err(err).Msg("Failed to complete orphaned instances")
			}
		}

		finished := s.lifecycle.FinishedThreads(ctx, live)
		if len(finished) > 0 {
			if _, err := s.lifecycle.Finish(ctx, p, finished); err != nil {
				logger.Error().Err(err).Msg("Failed to complete finished instances")
			}
		}

		logCounts(logger, len(live), len(finished), len(orphaned))
	}
}

// reconstructPass RUNNING_MPI：求解结束后下发 reconstruct
func (s *SchedulerContext) reconstructPass(ctx context.Context) {
	for _, p := range s.providers.All() {
		live, orphaned, ok := s.listLive(ctx, p, entity.InstanceStatusRunningMPI)
		if !ok {
			continue
		}
		logger := zerolog.Ctx(ctx).With().Str("provider", p.ID()).Logger()

		if len(orphaned) > 0 {
			if _, err := s.lifecycle.MarkOrphansComplete(ctx, orphaned, entity.InstanceStatusRunningMPI); err != nil {
				logger.Error().Err(err).Msg("Failed to complete orphaned instances")
			}
		}

		finished := s.lifecycle.FinishedThreads(ctx, live)
		for _, inst := range finished {
			if err := s.lifecycle.Reconstruct(ctx, inst); err != nil {
				logger.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to start reconstruction")
			}
		}

		logCounts(logger, len(live), len(finished), len(orphaned))
	}
}

// preparePass PENDING：逐个准入，准入成功的并发部署
func (s *SchedulerContext) preparePass(ctx context.Context) {
	logger := zerolog.Ctx(ctx)
	pending, err := s.instances.List(ctx, repository.InstanceFilter{
		Statuses: statusStrings(entity.InstanceStatusPending),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list pending instances")
		return
	}
	if len(pending) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(s.opts.MaxParallelDeploys)

	admitted := 0
	for _, inst := range pending {
		inst := inst
		p, err := s.lifecycle.Admit(ctx, inst)
		if err != nil {
			logger.Error().Err(err).Str("instance_id", inst.ID).Msg("Failed to admit instance")
			continue
		}
		if p == nil {
			continue
		}
		admitted++
		g.Go(func() error {
			// 失败已在 Deploy 内进入重试路径
			_ = s.lifecycle.Deploy(ctx, inst, p)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().
		Int("pending", len(pending)).
		Int("admitted", admitted).
		Msg("Prepare pass finished")
}

// runPass DECOMPOSING 完成的置为 READY，READY 的启动求解器
func (s *SchedulerContext) runPass(ctx context.Context) {
	logger := zerolog.Ctx(ctx)

	decomposing, err := s.instances.List(ctx, repository.InstanceFilter{
		Statuses: statusStrings(entity.InstanceStatusDecomposing),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list decomposing instances")
		return
	}
	if finished := s.lifecycle.FinishedThreads(ctx, decomposing); len(finished) > 0 {
		n, err := s.lifecycle.CompleteDecomposition(ctx, finished)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to complete decomposition")
		} else {
			logger.Info().Int64("decomposed", n).Msg("Decomposition finished")
		}
	}

	ready, err := s.instances.List(ctx, repository.InstanceFilter{
		Statuses: statusStrings(entity.InstanceStatusReady),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list ready instances")
		return
	}

	var g errgroup.Group
	g.SetLimit(s.opts.MaxParallelDeploys)
	started := 0
	for _, inst := range ready {
		inst := inst
		p, err := s.providers.Get(inst.Provider)
		if err != nil {
			logger.Error().Err(err).Str("instance_id", inst.ID).Str("provider", inst.Provider).
				Msg("Instance references an unknown provider")
			continue
		}
		started++
		g.Go(func() error {
			_ = s.lifecycle.RunSolver(ctx, inst, p)
			return nil
		})
	}
	_ = g.Wait()

	if len(decomposing) > 0 || started > 0 {
		logger.Info().
			Int("decomposing", len(decomposing)).
			Int("started", started).
			Msg("Run pass finished")
	}
}

// logCounts 只在有数据时输出
func logCounts(logger zerolog.Logger, running, finished, orphaned int) {
	if running == 0 && finished == 0 && orphaned == 0 {
		return
	}
	logger.Info().
		Int("running", running).
		Int("finished", finished).
		Int("orphaned", orphaned).
		Msg("Pass finished")
}
