package entity

import (
	"fmt"
	"time"
)

// Instance 一个 case 的一次计算资源执行
type Instance struct {
	ID                string            `json:"id"`
	SimulationID      string            `json:"simulation_id"`
	Name              string            `json:"name"`
	Config            map[string]string `json:"config" copier:"-"`
	IP                string            `json:"ip,omitempty"`
	ComputeID         string            `json:"compute_id,omitempty"`
	Provider          string            `json:"provider,omitempty"`
	MetricsTaskID     string            `json:"metrics_task_id,omitempty"`
	Status            InstanceStatus    `json:"status"`
	LocalCaseLocation string            `json:"local_case_location,omitempty"`
	NFSCaseLocation   string            `json:"nfs_case_location,omitempty"`
	RetryAttempts     int               `json:"retry_attempts"`
	ThreadID          int64             `json:"thread_id,omitempty"`
	Parallelisation   int               `json:"parallelisation"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Multicore 是否需要分解/重构
func (i *Instance) Multicore() bool {
	return i.Parallelisation > 1
}

type DescribeInstancesRequest struct {
	InstanceIDs  []string `json:"instance_ids"`
	SimulationID string   `json:"simulation_id"`
	Status       string   `json:"status"`
}

func (r *DescribeInstancesRequest) IsValid() error {
	if r.Status != "" {
		if _, err := ParseInstanceStatus(r.Status); err != nil {
			return err
		}
	}
	return nil
}

type DescribeInstancesResponse struct {
	Instances []Instance `json:"instances"`
}

// ModifyInstanceConfigRequest 只允许修改 PENDING 实例的覆盖项
type ModifyInstanceConfigRequest struct {
	InstanceID string            `json:"instance_id"`
	Config     map[string]string `json:"config"`
}

func (r *ModifyInstanceConfigRequest) IsValid() error {
	if r.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	return nil
}

type ModifyInstanceConfigResponse struct {
	Instance *Instance `json:"instance"`
}

type GetInstanceLogRequest struct {
	InstanceID string `uri:"id"`
}

func (r *GetInstanceLogRequest) IsValid() error {
	if r.InstanceID == "" {
		return fmt.Errorf("instance id is required")
	}
	return nil
}
