package model

import "time"

// Simulation 仿真表
type Simulation struct {
	ID              string    `gorm:"primaryKey;type:text;column:id" json:"id"`                                    // sim-{n}
	Name            string    `gorm:"type:text;not null;column:name" json:"name"`                                  // 显示名称
	Image           string    `gorm:"type:text;column:image" json:"image"`                                         // 上传到云上的镜像名前缀
	Flavor          string    `gorm:"type:text;not null;column:flavor" json:"flavor"`                              // 计算规格
	Solver          string    `gorm:"type:text;not null;column:solver" json:"solver"`                              // 求解器
	InstanceCount   int       `gorm:"type:integer;not null;column:instance_count" json:"instance_count"`           // case 数量
	ContainerName   string    `gorm:"type:text;not null;column:container_name" json:"container_name"`              // 对象存储 bucket
	InputDataObject string    `gorm:"type:text;not null;column:input_data_object" json:"input_data_object"`        // case 压缩包 key
	Cases           string    `gorm:"type:text;column:cases" json:"cases"`                                         // JSON: [{name, updates}]
	Decomposition   string    `gorm:"type:text;column:decomposition" json:"decomposition"`                         // JSON，可为空
	Status          string    `gorm:"type:text;not null;index:idx_simulations_status;column:status" json:"status"` // PENDING ... FAILED
	CreatedAt       time.Time `gorm:"type:datetime;not null;column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"type:datetime;not null;column:updated_at" json:"updated_at"`
}

func (Simulation) TableName() string {
	return "simulations"
}
