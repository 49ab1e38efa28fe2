package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/pkg/ginx"
)

// SimulationServiceInterface 定义仿真服务的接口
type SimulationServiceInterface interface {
	CreateSimulation(ctx context.Context, req *entity.CreateSimulationRequest) (*entity.CreateSimulationResponse, error)
	DescribeSimulations(ctx context.Context, req *entity.DescribeSimulationsRequest) (*entity.DescribeSimulationsResponse, error)
	DestroySimulation(ctx context.Context, req *entity.DestroySimulationRequest) (*entity.DestroySimulationResponse, error)
}

type Simulation struct {
	simulationService SimulationServiceInterface
}

func NewSimulation(simulationService SimulationServiceInterface) *Simulation {
	return &Simulation{
		simulationService: simulationService,
	}
}

func (s *Simulation) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/simulations/create", ginx.Adapt5(s.CreateSimulation))
	router.POST("/simulations/describe", ginx.Adapt5(s.DescribeSimulations))
	router.POST("/simulations/destroy", ginx.Adapt5(s.DestroySimulation))
}

func (s *Simulation) CreateSimulation(ctx *gin.Context, req *entity.CreateSimulationRequest) (*entity.CreateSimulationResponse, error) {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Info().
		Str("name", req.Name).
		Str("solver", req.Solver).
		Str("flavor", req.Flavor).
		Int("cases", len(req.Cases)).
		Msg("CreateSimulation called")

	response, err := s.simulationService.CreateSimulation(ctx.Request.Context(), req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create simulation")
		return nil, err
	}
	return response, nil
}

func (s *Simulation) DescribeSimulations(ctx *gin.Context, req *entity.DescribeSimulationsRequest) (*entity.DescribeSimulationsResponse, error) {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Debug().
		Strs("simulation_ids", req.SimulationIDs).
		Str("status", req.Status).
		Msg("DescribeSimulations called")

	return s.simulationService.DescribeSimulations(ctx.Request.Context(), req)
}

func (s *Simulation) DestroySimulation(ctx *gin.Context, req *entity.DestroySimulationRequest) (*entity.DestroySimulationResponse, error) {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Info().Str("simulation_id", req.SimulationID).Msg("DestroySimulation called")

	response, err := s.simulationService.DestroySimulation(ctx.Request.Context(), req)
	if err != nil {
		logger.Error().Err(err).Str("simulation_id", req.SimulationID).Msg("Failed to destroy simulation")
		return nil, err
	}
	return response, nil
}
