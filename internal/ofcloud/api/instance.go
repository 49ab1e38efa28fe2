package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/pkg/ginx"
)

// InstanceServiceInterface 定义实例服务的接口
type InstanceServiceInterface interface {
	DescribeInstances(ctx context.Context, req *entity.DescribeInstancesRequest) (*entity.DescribeInstancesResponse, error)
	ModifyInstanceConfig(ctx context.Context, req *entity.ModifyInstanceConfigRequest) (*entity.ModifyInstanceConfigResponse, error)
	GetInstanceLog(ctx context.Context, req *entity.GetInstanceLogRequest) (string, error)
}

type Instance struct {
	instanceService InstanceServiceInterface
}

func NewInstance(instanceService InstanceServiceInterface) *Instance {
	return &Instance{
		instanceService: instanceService,
	}
}

func (i *Instance) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/instances/describe", ginx.Adapt5(i.DescribeInstances))
	router.POST("/instances/modify-config", ginx.Adapt5(i.ModifyInstanceConfig))
	router.GET("/instances/:id/log", ginx.Adapt5(i.GetInstanceLog))
}

func (i *Instance) DescribeInstances(ctx *gin.Context, req *entity.DescribeInstancesRequest) (*entity.DescribeInstancesResponse, error) {
	zerolog.Ctx(ctx.Request.Context()).Debug().
		Strs("instance_ids", req.InstanceIDs).
		Str("simulation_id", req.SimulationID).
		Str("status", req.Status).
		Msg("DescribeInstances called")

	return i.instanceService.DescribeInstances(ctx.Request.Context(), req)
}

func (i *Instance) ModifyInstanceConfig(ctx *gin.Context, req *entity.ModifyInstanceConfigRequest) (*entity.ModifyInstanceConfigResponse, error) {
	logger := zerolog.Ctx(ctx.Request.Context())
	logger.Info().Str("instance_id", req.InstanceID).Msg("ModifyInstanceConfig called")

	response, err := i.instanceService.ModifyInstanceConfig(ctx.Request.Context(), req)
	if err != nil {
		logger.Error().Err(err).Str("instance_id", req.InstanceID).Msg("Failed to modify instance config")
		return nil, err
	}
	return response, nil
}

// GetInstanceLog 返回纯文本
func (i *Instance) GetInstanceLog(ctx *gin.Context, req *entity.GetInstanceLogRequest) (string, error) {
	zerolog.Ctx(ctx.Request.Context()).Debug().Str("instance_id", req.InstanceID).Msg("GetInstanceLog called")
	return i.instanceService.GetInstanceLog(ctx.Request.Context(), req)
}
