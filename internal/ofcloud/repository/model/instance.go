package model

import "time"

// Instance 实例表，每个 case 一条
type Instance struct {
	ID                string    `gorm:"primaryKey;type:text;column:id" json:"id"`                                                       // i-{n}
	SimulationID      string    `gorm:"type:text;not null;index:idx_instances_simulation_id;column:simulation_id" json:"simulation_id"` // 关联 simulations.id
	Name              string    `gorm:"type:text;not null;column:name" json:"name"`                                                     // {simulation}-{case}
	Config            string    `gorm:"type:text;column:config" json:"config"`                                                          // JSON 覆盖项
	IP                string    `gorm:"type:text;column:ip" json:"ip"`
	ComputeID         string    `gorm:"type:text;column:compute_id" json:"compute_id"`                             // 云上资源 ID
	Provider          string    `gorm:"type:text;index:idx_instances_provider;column:provider" json:"provider"`    // 部署该实例的 provider ID
	MetricsTaskID     string    `gorm:"type:text;column:metrics_task_id" json:"metrics_task_id"`                   // snap task ID
	Status            string    `gorm:"type:text;not null;index:idx_instances_status;column:status" json:"status"` // PENDING ... FAILED
	LocalCaseLocation string    `gorm:"type:text;column:local_case_location" json:"local_case_location"`
	NFSCaseLocation   string    `gorm:"type:text;column:nfs_case_location" json:"nfs_case_location"`
	RetryAttempts     int       `gorm:"type:integer;not null;default:0;column:retry_attempts" json:"retry_attempts"`
	ThreadID          int64     `gorm:"type:integer;not null;default:0;column:thread_id" json:"thread_id"`             // agent 返回的执行句柄
	Parallelisation   int       `gorm:"type:integer;not null;default:1;column:parallelisation" json:"parallelisation"` // vCPU 数
	CreatedAt         time.Time `gorm:"type:datetime;not null;column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

func (Instance) TableName() string {
	return "instances"
}
