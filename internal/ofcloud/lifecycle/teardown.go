package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
)

// ErrInterrupted 部署链被进程退出打断
var ErrInterrupted = errors.New("deployment interrupted by daemon exit")

// Finish 删除已结束实例的计算资源并置为 COMPLETE
// 删除失败不影响状态写入，provider 内部逐个删除互不影响。
func (l *Lifecycle) Finish(ctx context.Context, p provider.Provider, insts []*model.Instance) (int64, error) {
	if len(insts) == 0 {
		return 0, nil
	}
	computeIDs := make([]string, 0, len(insts))
	for _, inst := range insts {
		if inst.ComputeID != "" {
			computeIDs = append(computeIDs, inst.ComputeID)
		}
	}
	if err := p.Terminate(ctx, computeIDs); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("provider", p.ID()).Msg("Failed to terminate some instances")
	}
	for _, inst := range insts {
		l.stopMetrics(ctx, inst)
	}
	return l.completeBatch(ctx, insts, []entity.InstanceStatus{
		entity.InstanceStatusRunning,
		entity.InstanceStatusReconstructing,
	})
}

// MarkOrphansComplete 资源已消失的实例直接置为 COMPLETE，不再调用删除
func (l *Lifecycle) MarkOrphansComplete(ctx context.Context, insts []*model.Instance, from ...entity.InstanceStatus) (int64, error) {
	for _, inst := range insts {
		zerolog.Ctx(ctx).Warn().
			Str("instance_id", inst.ID).
			Str("compute_id", inst.ComputeID).
			Str("status", inst.Status).
			Msg("Compute resource vanished, marking instance complete")
		l.stopMetrics(ctx, inst)
	}
	return l.completeBatch(ctx, insts, from)
}

// HandleFailure 部署链上的失败：累计重试次数，未超限回到 PENDING，否则 FAILED
// 已创建的计算资源都会被删除。
func (l *Lifecycle) HandleFailure(ctx context.Context, inst *model.Instance, p provider.Provider, cause error) {
	logger := zerolog.Ctx(ctx).With().Str("instance_id", inst.ID).Logger()

	current, err := l.instances.GetByID(ctx, inst.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to reload instance after failure")
		return
	}

	if current.ComputeID != "" && p != nil {
		if err := p.Terminate(ctx, []string{current.ComputeID}); err != nil {
			logger.Error().Err(err).Str("compute_id", current.ComputeID).Msg("Failed to terminate instance after failure")
		}
	}
	l.stopMetrics(ctx, current)

	attempts := current.RetryAttempts + 1
	if attempts >= l.opts.MaxRetries {
		if err := l.transition(ctx, current, entity.InstanceStatusFailed, map[string]any{
			"retry_attempts": attempts,
		}); err != nil {
			logger.Error().Err(err).Msg("Failed to mark instance failed")
			return
		}
		*inst = *current
		inst.RetryAttempts = attempts
		logger.Error().Err(cause).Int("attempts", attempts).Msg("Instance failed, retries exhausted")
		l.evaluateSimulation(ctx, current.SimulationID)
		return
	}

	if err := l.transition(ctx, current, entity.InstanceStatusPending, map[string]any{
		"retry_attempts":  attempts,
		"compute_id":      "",
		"ip":              "",
		"provider":        "",
		"thread_id":       0,
		"metrics_task_id": "",
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to reset instance to pending")
		return
	}
	l.metrics.ObserveRetry()
	*inst = *current
	inst.RetryAttempts = attempts
	inst.ComputeID, inst.IP, inst.Provider, inst.ThreadID, inst.MetricsTaskID = "", "", "", 0, ""
	logger.Warn().Err(cause).
		Int("attempts", attempts).
		Int("max_retries", l.opts.MaxRetries).
		Msg("Instance will be retried")
}

// RecoverInterrupted 启动时处理上次进程退出时停在 DEPLOYING / UP 的实例。
// 这些实例没有任何 pass 会再处理，按失败走重试：删除已记录的计算资源，回到 PENDING 或 FAILED。
func (l *Lifecycle) RecoverInterrupted(ctx context.Context) (int, error) {
	insts, err := l.instances.List(ctx, repository.InstanceFilter{
		Statuses: []string{
			entity.InstanceStatusDeploying.String(),
			entity.InstanceStatusUp.String(),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("list interrupted instances: %w", err)
	}
	for _, inst := range insts {
		var p provider.Provider
		if inst.Provider != "" {
			p, err = l.providers.Get(inst.Provider)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).
					Str("instance_id", inst.ID).
					Str("provider", inst.Provider).
					Msg("Provider of interrupted instance is not configured")
			}
		}
		l.HandleFailure(ctx, inst, p, ErrInterrupted)
	}
	if len(insts) > 0 {
		zerolog.Ctx(ctx).Warn().Int("instances", len(insts)).Msg("Recovered interrupted deployments")
	}
	return len(insts), nil
}
