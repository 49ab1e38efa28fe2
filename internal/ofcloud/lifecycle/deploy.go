package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"github.com/jimyag/ofcloud/pkg/casefile"
)

// Deploy 部署一个 DEPLOYING 实例直到 READY 或 DECOMPOSING。
// 任何一步失败都走重试路径，返回原始错误供调用方记录。
func (l *Lifecycle) Deploy(ctx context.Context, inst *model.Instance, p provider.Provider) error {
	logger := zerolog.Ctx(ctx).With().
		Str("instance_id", inst.ID).
		Str("simulation_id", inst.SimulationID).
		Str("provider", p.ID()).
		Logger()
	ctx = logger.WithContext(ctx)

	err := l.launch(ctx, inst, p)
	if err == nil {
		err = l.PrepareEnv(ctx, inst, p)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to launch instance")
		l.HandleFailure(ctx, inst, p, err)
		return err
	}
	return nil
}

// launch DEPLOYING -> UP：准备 case 文件、组装镜像、创建计算资源
func (l *Lifecycle) launch(ctx context.Context, inst *model.Instance, p provider.Provider) error {
	logger := zerolog.Ctx(ctx)

	sim, err := l.simulations.GetByID(ctx, inst.SimulationID)
	if err != nil {
		return fmt.Errorf("get simulation: %w", err)
	}
	decomposition, err := decodeDecomposition(sim.Decomposition)
	if err != nil {
		return err
	}

	ws, err := l.files.Stage(ctx, casefile.StageRequest{
		Bucket:          sim.ContainerName,
		Key:             sim.InputDataObject,
		Parallelisation: inst.Parallelisation,
		Decomposition:   decomposition,
	})
	if err != nil {
		return fmt.Errorf("stage case files: %w", err)
	}

	nfs := p.NFS()
	published, err := l.files.Publish(ctx, ws, inst.ID, casefile.Target{
		LocalMount:   nfs.LocalMount,
		ServerFolder: nfs.ServerFolder,
	})
	if err != nil {
		_ = ws.Remove()
		return fmt.Errorf("publish case files: %w", err)
	}
	if _, err := l.instances.UpdateFields(ctx, inst.ID, []string{entity.InstanceStatusDeploying.String()}, map[string]any{
		"local_case_location": published.LocalPath,
		"nfs_case_location":   published.RemotePath,
	}); err != nil {
		return fmt.Errorf("save case locations: %w", err)
	}
	inst.LocalCaseLocation = published.LocalPath
	inst.NFSCaseLocation = published.RemotePath

	image, err := l.images.ComposeBootImage(ctx, sim.Name, sim.Solver)
	if err != nil {
		return fmt.Errorf("compose boot image: %w", err)
	}

	launched, err := p.PrepareCompute(ctx, provider.LaunchRequest{
		InstanceID:   inst.ID,
		InstanceName: inst.Name,
		SimulationID: sim.ID,
		Flavor:       sim.Flavor,
		ImageName:    imageName(sim),
		ImagePath:    image.Path,
	})
	if err != nil {
		return err
	}

	if err := l.transition(ctx, inst, entity.InstanceStatusUp, map[string]any{
		"compute_id": launched.ComputeID,
		"ip":         launched.IP,
	}); err != nil {
		// 资源已经创建但没有记录下来，这里直接删除
		if termErr := p.Terminate(ctx, []string{launched.ComputeID}); termErr != nil {
			logger.Error().Err(termErr).Str("compute_id", launched.ComputeID).Msg("Failed to terminate unrecorded compute resource")
		}
		return err
	}
	inst.ComputeID = launched.ComputeID
	inst.IP = launched.IP

	logger.Info().Str("compute_id", launched.ComputeID).Str("ip", launched.IP).Msg("Instance is up")
	return nil
}

// PrepareEnv UP -> READY | DECOMPOSING：应用覆盖项、挂载 NFS、设置环境变量、启动指标采集
func (l *Lifecycle) PrepareEnv(ctx context.Context, inst *model.Instance, p provider.Provider) error {
	logger := zerolog.Ctx(ctx)

	config, err := decodeConfig(inst.Config)
	if err != nil {
		return err
	}
	if len(config) > 0 {
		updated, err := l.files.ApplyOverrides(ctx, inst.LocalCaseLocation, config)
		if err != nil {
			return fmt.Errorf("apply case overrides: %w", err)
		}
		logger.Info().Strs("files", updated).Msg("Case customised")
	}

	agent := l.agents(inst.IP)
	if err := agent.WaitUp(ctx); err != nil {
		return err
	}
	if err := agent.Mount(ctx, MountSource(p.NFS().Address, inst.NFSCaseLocation), CaseDir); err != nil {
		return err
	}
	for _, env := range l.environment(inst.Name) {
		if err := agent.SetEnv(ctx, env.name, env.value); err != nil {
			return err
		}
	}

	fields := map[string]any{}
	if taskID := l.startMetrics(ctx, inst); taskID != "" {
		fields["metrics_task_id"] = taskID
		inst.MetricsTaskID = taskID
	}

	if inst.Parallelisation <= 1 {
		return l.transition(ctx, inst, entity.InstanceStatusReady, fields)
	}

	threadID, err := agent.RunCommand(ctx, DecomposeCommand())
	if err != nil {
		return fmt.Errorf("start decomposition: %w", err)
	}
	fields["thread_id"] = threadID
	if err := l.transition(ctx, inst, entity.InstanceStatusDecomposing, fields); err != nil {
		return err
	}
	inst.ThreadID = threadID
	logger.Info().Int64("thread_id", threadID).Int("parallelisation", inst.Parallelisation).Msg("Decomposition started")
	return nil
}

// startMetrics 失败只记录日志
func (l *Lifecycle) startMetrics(ctx context.Context, inst *model.Instance) string {
	if l.collector == nil {
		return ""
	}
	taskID, err := l.collector.StartCollection(ctx, inst.IP)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Metrics collector could not be started, simulation continues")
		return taskID
	}
	return taskID
}
