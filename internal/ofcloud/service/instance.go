package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/lifecycle"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"github.com/jimyag/ofcloud/pkg/apierror"
	"github.com/jimyag/ofcloud/pkg/osvagent"
)

// RunLogPath 求解器输出在虚拟机内的位置
const RunLogPath = lifecycle.CaseDir + "/run.log"

// InstanceService 实例服务
type InstanceService struct {
	instances repository.InstanceRepository
	agents    osvagent.Connector
}

func NewInstanceService(instances repository.InstanceRepository, agents osvagent.Connector) *InstanceService {
	return &InstanceService{
		instances: instances,
		agents:    agents,
	}
}

// DescribeInstances 按条件列出实例
func (s *InstanceService) DescribeInstances(ctx context.Context, req *entity.DescribeInstancesRequest) (*entity.DescribeInstancesResponse, error) {
	filter := repository.InstanceFilter{
		IDs:          req.InstanceIDs,
		SimulationID: req.SimulationID,
	}
	if req.Status != "" {
		filter.Statuses = []string{req.Status}
	}
	insts, err := s.instances.List(ctx, filter)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to list instances", err)
	}
	out, err := instancesModelToEntity(insts)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to convert instances", err)
	}
	return &entity.DescribeInstancesResponse{Instances: out}, nil
}

// ModifyInstanceConfig 替换 PENDING 实例的覆盖项，下次部署时生效
func (s *InstanceService) ModifyInstanceConfig(ctx context.Context, req *entity.ModifyInstanceConfigRequest) (*entity.ModifyInstanceConfigResponse, error) {
	logger := zerolog.Ctx(ctx)

	if _, err := s.get(ctx, req.InstanceID); err != nil {
		return nil, err
	}
	config := req.Config
	if config == nil {
		config = map[string]string{}
	}
	raw, err := encodeJSON(config)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInvalidParameter, "Invalid config", err)
	}

	ok, err := s.instances.UpdateFields(ctx, req.InstanceID, []string{entity.InstanceStatusPending.String()}, map[string]any{
		"config":     raw,
		"updated_at": time.Now(),
	})
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to update instance config", err)
	}
	if !ok {
		return nil, apierror.WrapError(apierror.ErrIncorrectInstanceState,
			"Only PENDING instances can be modified: "+req.InstanceID, nil)
	}

	inst, err := s.get(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	e, err := instanceModelToEntity(inst)
	if err != nil {
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to convert instance", err)
	}
	logger.Info().Str("instance_id", req.InstanceID).Int("keys", len(config)).Msg("Instance config modified")
	return &entity.ModifyInstanceConfigResponse{Instance: e}, nil
}

// GetInstanceLog 通过 agent 读取求解器日志
func (s *InstanceService) GetInstanceLog(ctx context.Context, req *entity.GetInstanceLogRequest) (string, error) {
	inst, err := s.get(ctx, req.InstanceID)
	if err != nil {
		return "", err
	}
	if inst.IP == "" || entity.InstanceStatus(inst.Status).IsTerminal() {
		return "", apierror.WrapError(apierror.ErrInstanceUnreachable,
			"Instance has no running compute resource: "+req.InstanceID, nil)
	}
	data, err := s.agents(inst.IP).ReadFile(ctx, RunLogPath)
	if err != nil {
		return "", apierror.WrapError(apierror.ErrInstanceUnreachable, "Failed to read run log", err)
	}
	return string(data), nil
}

func (s *InstanceService) get(ctx context.Context, id string) (*model.Instance, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.WrapError(apierror.ErrInstanceNotFound, "Instance not found: "+id, err)
		}
		return nil, apierror.WrapError(apierror.ErrInternalError, "Failed to get instance", err)
	}
	return inst, nil
}
