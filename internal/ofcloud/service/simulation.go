package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"github.com/jimyag/ofcloud/pkg/apierror"
	"github.com/jimyag/ofcloud/pkg/capstan"
	"github.com/jimyag/ofcloud/pkg/idgen"
	"github.com/jimyag/ofcloud/pkg/snap"
)

// SimulationService 仿真服务
type SimulationService struct {
	simulations repository.SimulationRepository
	instances   repository.InstanceRepository
	providers   *provider.Set
	collector   snap.MetricsCollector
	idGen       *idgen.Generator
}

// NewSimulationService collector 可以为空
func NewSimulationService(
	simulations repository.SimulationRepository,
	instances repository.InstanceRepository,
	providers *provider.Set,
	collector snap.MetricsCollector,
) *SimulationService {
	return &SimulationService{
		simulations: simulations,
		instances:   instances,
		providers:   providers,
		collector:   collector,
		idGen:       idgen.New(),
	}
}

// CreateSimulation 创建仿真，每个 case 一个 PENDING 实例
// 没有 case 时使用一个以仿真命名、没有覆盖项的默认 case。
func (s *SimulationService) CreateSimulation(ctx context.Context, req *entity.CreateSimulationRequest) (*entity.CreateSimulationResponse, error) {
	logger := zerolog.Ctx(ctx)

	if _, err := capstan.LookupSolver(req.Solver); err != nil {
		return nil, apierror.WrapError(apierror.ErrUnsupportedSolver, err.Error(), err)
	}

	simID, err := s.idGen.GenerateSimulationID()
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to generate simulation ID", err)
	}

	cases := req.Cases
	if len(cases) == 0 {
		cases = []entity.Case{{Name: req.Name, Updates: map[string]string{}}}
	}
	casesJSON, err := encodeJSON(cases)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to encode cases", err)
	}
	decomposition := ""
	if req.Decomposition != nil {
		if decomposition, err = encodeJSON(req.Decomposition); err != nil {
			return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to encode decomposition", err)
		}
	}

	now := time.Now()
	sim := &model.Simulation{
		ID:              simID,
		Name:            req.Name,
		Image:           req.Image,
		Flavor:          req.Flavor,
		Solver:          req.Solver,
		InstanceCount:   len(cases),
		ContainerName:   req.ContainerName,
		InputDataObject: req.InputDataObject,
		Cases:           casesJSON,
		Decomposition:   decomposition,
		Status:          entity.SimulationStatusPending.String(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	instances := make([]*model.Instance, 0, len(cases))
	for _, c := range cases {
		instID, err := s.idGen.GenerateInstanceID()
		if err != nil {
			return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to generate instance ID", err)
		}
		updates := c.Updates
		if updates == nil {
			updates = map[string]string{}
		}
		config, err := encodeJSON(updates)
		if err != nil {
			return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to encode case config", err)
		}
		instances = append(instances, &model.Instance{
			ID:              instID,
			SimulationID:    simID,
			Name:            fmt.Sprintf("%s-%s", req.Name, c.Name),
			Config:          config,
			Status:          entity.InstanceStatusPending.String(),
			Parallelisation: 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := s.simulations.Create(ctx, sim, instances); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to save simulation", err)
	}

	result, err := s.describe(ctx, sim)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("simulation_id", simID).
		Str("solver", req.Solver).
		Str("flavor", req.Flavor).
		Int("instances", len(instances)).
		Msg("Simulation created")
	return &entity.CreateSimulationResponse{Simulation: result}, nil
}

// DescribeSimulations 列出仿真及其实例
func (s *SimulationService) DescribeSimulations(ctx context.Context, req *entity.DescribeSimulationsRequest) (*entity.DescribeSimulationsResponse, error) {
	sims, err := s.simulations.List(ctx, repository.SimulationFilter{IDs: req.SimulationIDs, Status: req.Status})
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to list simulations", err)
	}
	out := make([]entity.Simulation, 0, len(sims))
	for _, sim := range sims {
		e, err := s.describe(ctx, sim)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return &entity.DescribeSimulationsResponse{Simulations: out}, nil
}

// DestroySimulation 删除所有子实例的计算资源，停止指标采集，然后删除记录
// 单个 provider 删除失败只记录日志，不影响其他 provider。
func (s *SimulationService) DestroySimulation(ctx context.Context, req *entity.DestroySimulationRequest) (*entity.DestroySimulationResponse, error) {
	logger := zerolog.Ctx(ctx).With().Str("simulation_id", req.SimulationID).Logger()

	if _, err := s.simulations.GetByID(ctx, req.SimulationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.WrapError(apierror.ErrSimulationNotFound, "Simulation not found: "+req.SimulationID, err)
		}
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to get simulation", err)
	}
	insts, err := s.instances.List(ctx, repository.InstanceFilter{SimulationID: req.SimulationID})
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to list instances", err)
	}

	byProvider := map[string][]*model.Instance{}
	for _, inst := range insts {
		if inst.ComputeID == "" || entity.InstanceStatus(inst.Status).IsTerminal() {
			continue
		}
		byProvider[inst.Provider] = append(byProvider[inst.Provider], inst)
	}

	terminated := []string{}
	for providerID, group := range byProvider {
		p, err := s.providers.Get(providerID)
		if err != nil {
			logger.Error().Err(err).Str("provider", providerID).Msg("Cannot terminate instances of unknown provider")
			continue
		}
		computeIDs := make([]string, len(group))
		for i, inst := range group {
			computeIDs[i] = inst.ComputeID
		}
		if err := p.Terminate(ctx, computeIDs); err != nil {
			logger.Error().Err(err).Str("provider", providerID).Msg("Failed to terminate some instances")
			continue
		}
		for _, inst := range group {
			terminated = append(terminated, inst.ID)
		}
	}

	if s.collector != nil {
		for _, inst := range insts {
			if inst.MetricsTaskID == "" {
				continue
			}
			if err := s.collector.StopCollection(ctx, inst.MetricsTaskID); err != nil {
				logger.Warn().Err(err).Str("instance_id", inst.ID).Msg("Failed to stop metrics collection")
			}
		}
	}

	if err := s.simulations.Delete(ctx, req.SimulationID); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to delete simulation", err)
	}

	logger.Info().Int("instances", len(insts)).Strs("terminated", terminated).Msg("Simulation destroyed")
	return &entity.DestroySimulationResponse{
		SimulationID:        req.SimulationID,
		TerminatedInstances: terminated,
	}, nil
}

func (s *SimulationService) describe(ctx context.Context, sim *model.Simulation) (*entity.Simulation, error) {
	e, err := simulationModelToEntity(sim)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to convert simulation", err)
	}
	insts, err := s.instances.List(ctx, repository.InstanceFilter{SimulationID: sim.ID})
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to list instances", err)
	}
	if e.Instances, err = instancesModelToEntity(insts); err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to convert instances", err)
	}
	return e, nil
}
