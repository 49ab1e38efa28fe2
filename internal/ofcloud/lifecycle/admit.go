package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/metrics"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
)

// Admit 按配置顺序选第一个可准入的 provider，把实例从 PENDING 预留为 DEPLOYING。
// 返回 nil provider 表示资源不足，实例保持 PENDING，不计入重试。
//
// 判断和预留在同一把锁内完成：下一次判断读到的部署中列表已经包含本次预留。
func (l *Lifecycle) Admit(ctx context.Context, inst *model.Instance) (provider.Provider, error) {
	logger := zerolog.Ctx(ctx).With().Str("instance_id", inst.ID).Logger()

	sim, err := l.simulations.GetByID(ctx, inst.SimulationID)
	if err != nil {
		return nil, fmt.Errorf("get simulation %s: %w", inst.SimulationID, err)
	}

	l.admitMu.Lock()
	defer l.admitMu.Unlock()

	inFlight, err := l.instances.ListFlavorsByStatus(ctx, entity.InstanceStatusDeploying.String())
	if err != nil {
		return nil, fmt.Errorf("list deploying instances: %w", err)
	}

	for _, p := range l.providers.All() {
		ok, err := p.IsAdmissibleNow(ctx, provider.AdmissionRequest{Flavor: sim.Flavor, InFlight: inFlight})
		if err != nil {
			l.metrics.ObserveAdmission(p.ID(), metrics.AdmissionError)
			logger.Warn().Err(err).Str("provider", p.ID()).Msg("Admission check failed")
			continue
		}
		if !ok {
			l.metrics.ObserveAdmission(p.ID(), metrics.AdmissionDenied)
			continue
		}

		cores := p.CoresFor(ctx, sim.Flavor)
		if err := l.transition(ctx, inst, entity.InstanceStatusDeploying, map[string]any{
			"provider":        p.ID(),
			"parallelisation": cores,
		}); err != nil {
			return nil, err
		}
		inst.Provider = p.ID()
		inst.Parallelisation = cores
		l.metrics.ObserveAdmission(p.ID(), metrics.AdmissionAdmitted)
		l.markSimulation(ctx, sim.ID, entity.SimulationStatusDeploying, entity.SimulationStatusPending)

		logger.Info().
			Str("provider", p.ID()).
			Str("flavor", sim.Flavor).
			Int("parallelisation", cores).
			Int("in_flight", len(inFlight)).
			Msg("Instance admitted")
		return p, nil
	}

	logger.Debug().Str("flavor", sim.Flavor).Int("in_flight", len(inFlight)).Msg("No provider has free quota")
	return nil, nil
}
