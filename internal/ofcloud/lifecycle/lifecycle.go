// Package lifecycle 实例状态机的迁移动作
//
// 每个迁移由调度器在轮询到对应状态后调用，本包不自行调度。
// 状态写入都是带期望旧状态的条件更新，旧状态不符时放弃本次迁移。
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

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

var (
	// ErrInvalidTransition 状态机不允许的迁移
	ErrInvalidTransition = errors.New("invalid instance transition")
	// ErrStaleStatus 实例状态已被其他迁移修改
	ErrStaleStatus = errors.New("instance status changed concurrently")
)

// Options 运行参数
//   - MaxRetries: 部署失败累计达到该次数后进入 FAILED
//   - Tenant: 写入虚拟机环境变量 TENANT
//   - UniqueServerName: OPENFOAM_CASE 的前缀
type Options struct {
	MaxRetries       int
	Tenant           string
	UniqueServerName string
}

// Deps 外部依赖，Collector 为空时不采集指标
type Deps struct {
	Instances   repository.InstanceRepository
	Simulations repository.SimulationRepository
	Providers   *provider.Set
	Files       casefile.CaseFileProvider
	Images      capstan.ImageBuilder
	Agents      osvagent.Connector
	Collector   snap.MetricsCollector
	Metrics     *metrics.Metrics
}

type Lifecycle struct {
	instances   repository.InstanceRepository
	simulations repository.SimulationRepository
	providers   *provider.Set
	files       casefile.CaseFileProvider
	images      capstan.ImageBuilder
	agents      osvagent.Connector
	collector   snap.MetricsCollector
	metrics     *metrics.Metrics
	opts        Options

	// admitMu 串行化准入判断和 DEPLOYING 预留
	admitMu sync.Mutex
}

func New(deps Deps, opts Options) *Lifecycle {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Lifecycle{
		instances:   deps.Instances,
		simulations: deps.Simulations,
		providers:   deps.Providers,
		files:       deps.Files,
		images:      deps.Images,
		agents:      deps.Agents,
		collector:   deps.Collector,
		metrics:     deps.Metrics,
		opts:        opts,
	}
}

// Providers 配置的全部后端
func (l *Lifecycle) Providers() *provider.Set {
	return l.providers
}

// transition 条件更新实例状态，fields 为同时写入的其他列
func (l *Lifecycle) transition(ctx context.Context, inst *model.Instance, to entity.InstanceStatus, fields map[string]any) error {
	from := entity.InstanceStatus(inst.Status)
	if !entity.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["status"] = to.String()
	fields["updated_at"] = time.Now()

	ok, err := l.instances.UpdateFields(ctx, inst.ID, []string{from.String()}, fields)
	if err != nil {
		return fmt.Errorf("update instance %s: %w", inst.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: instance %s is no longer %s", ErrStaleStatus, inst.ID, from)
	}
	inst.Status = to.String()
	l.metrics.ObserveTransition(to.String(), 1)

	zerolog.Ctx(ctx).Debug().
		Str("instance_id", inst.ID).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Instance transitioned")
	return nil
}

// completeBatch 批量置为 COMPLETE，只影响当前状态属于 from 的实例
func (l *Lifecycle) completeBatch(ctx context.Context, insts []*model.Instance, from []entity.InstanceStatus) (int64, error) {
	if len(insts) == 0 {
		return 0, nil
	}
	ids := make([]string, len(insts))
	for i, inst := range insts {
		ids[i] = inst.ID
	}
	fromStatuses := make([]string, len(from))
	for i, s := range from {
		if !entity.CanTransition(s, entity.InstanceStatusComplete) {
			return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, entity.InstanceStatusComplete)
		}
		fromStatuses[i] = s.String()
	}

	n, err := l.instances.UpdateStatus(ctx, ids, fromStatuses, entity.InstanceStatusComplete.String())
	if err != nil {
		return 0, fmt.Errorf("complete instances: %w", err)
	}
	l.metrics.ObserveTransition(entity.InstanceStatusComplete.String(), int(n))
	l.evaluateSimulations(ctx, insts)
	return n, nil
}

// evaluateSimulations 重新计算实例所属仿真的状态
func (l *Lifecycle) evaluateSimulations(ctx context.Context, insts []*model.Instance) {
	seen := make(map[string]bool, len(insts))
	for _, inst := range insts {
		if seen[inst.SimulationID] {
			continue
		}
		seen[inst.SimulationID] = true
		l.evaluateSimulation(ctx, inst.SimulationID)
	}
}

func (l *Lifecycle) evaluateSimulation(ctx context.Context, simulationID string) {
	logger := zerolog.Ctx(ctx)
	status, changed, err := l.simulations.EvaluateStatus(ctx, simulationID)
	if err != nil {
		logger.Error().Err(err).Str("simulation_id", simulationID).Msg("Failed to evaluate simulation status")
		return
	}
	if changed {
		logger.Info().Str("simulation_id", simulationID).Str("status", status).Msg("Simulation status changed")
	}
}

// markSimulation 仿真状态只向前推进
func (l *Lifecycle) markSimulation(ctx context.Context, simulationID string, to entity.SimulationStatus, from ...entity.SimulationStatus) {
	fromStatuses := make([]string, len(from))
	for i, s := range from {
		fromStatuses[i] = s.String()
	}
	ok, err := l.simulations.CompareAndSetStatus(ctx, simulationID, fromStatuses, to.String())
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("simulation_id", simulationID).Str("status", to.String()).
			Msg("Failed to update simulation status")
		return
	}
	if ok {
		zerolog.Ctx(ctx).Info().Str("simulation_id", simulationID).Str("status", to.String()).Msg("Simulation status changed")
	}
}

// stopMetrics 尽力停止采集任务
func (l *Lifecycle) stopMetrics(ctx context.Context, inst *model.Instance) {
	if l.collector == nil || inst.MetricsTaskID == "" {
		return
	}
	if err := l.collector.StopCollection(ctx, inst.MetricsTaskID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("instance_id", inst.ID).
			Str("task_id", inst.MetricsTaskID).
			Msg("Failed to stop metrics collection")
	}
}

func decodeConfig(raw string) (map[string]string, error) {
	config := map[string]string{}
	if raw == "" {
		return config, nil
	}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, fmt.Errorf("decode instance config: %w", err)
	}
	return config, nil
}

func decodeDecomposition(raw string) (*casefile.Decomposition, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var d entity.Decomposition
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("decode decomposition: %w", err)
	}
	return &casefile.Decomposition{
		Method:           d.Method,
		Subdomains:       d.Subdomains,
		N:                d.N,
		Delta:            d.Delta,
		Order:            d.Order,
		ProcessorWeights: d.ProcessorWeights,
		Strategy:         d.Strategy,
		DataFile:         d.DataFile,
	}, nil
}

// imageName 上传到云上的镜像名 {image}_{simulationID}
func imageName(sim *model.Simulation) string {
	prefix := sim.Image
	if prefix == "" {
		prefix = sim.Name
	}
	return prefix + "_" + sim.ID
}
