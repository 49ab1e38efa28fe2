package repository

import (
	"context"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"gorm.io/gorm"
)

// SimulationRepository 仿真仓库接口
type SimulationRepository interface {
	// Create 在同一事务里写入仿真和它的全部实例
	Create(ctx context.Context, simulation *model.Simulation, instances []*model.Instance) error
	GetByID(ctx context.Context, id string) (*model.Simulation, error)
	List(ctx context.Context, filter SimulationFilter) ([]*model.Simulation, error)
	// CompareAndSetStatus 仅当当前状态属于 from 时更新，返回是否更新
	CompareAndSetStatus(ctx context.Context, id string, from []string, to string) (bool, error)
	// EvaluateStatus 在事务里按子实例状态重新计算仿真状态，返回新状态和是否变化
	EvaluateStatus(ctx context.Context, id string) (string, bool, error)
	// Delete 删除仿真和它的实例
	Delete(ctx context.Context, id string) error
}

type SimulationFilter struct {
	IDs    []string
	Status string
}

type simulationRepository struct {
	db *gorm.DB
}

func NewSimulationRepository(db *gorm.DB) SimulationRepository {
	return &simulationRepository{db: db}
}

func (r *simulationRepository) Create(ctx context.Context, simulation *model.Simulation, instances []*model.Instance) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(simulation).Error; err != nil {
			return err
		}
		if len(instances) == 0 {
			return nil
		}
		return tx.Create(instances).Error
	})
}

func (r *simulationRepository) GetByID(ctx context.Context, id string) (*model.Simulation, error) {
	var simulation model.Simulation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&simulation).Error; err != nil {
		return nil, err
	}
	return &simulation, nil
}

func (r *simulationRepository) List(ctx context.Context, filter SimulationFilter) ([]*model.Simulation, error) {
	var simulations []*model.Simulation
	query := r.db.WithContext(ctx).Model(&model.Simulation{})
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if err := query.Order("created_at").Find(&simulations).Error; err != nil {
		return nil, err
	}
	return simulations, nil
}

func (r *simulationRepository) CompareAndSetStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Simulation{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *simulationRepository) EvaluateStatus(ctx context.Context, id string) (string, bool, error) {
	var (
		status  string
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var simulation model.Simulation
		if err := tx.Where("id = ?", id).First(&simulation).Error; err != nil {
			return err
		}
		status = simulation.Status
		if entity.SimulationStatus(simulation.Status).IsTerminal() {
			return nil
		}

		var childStatuses []string
		if err := tx.Model(&model.Instance{}).
			Where("simulation_id = ?", id).
			Pluck("status", &childStatuses).Error; err != nil {
			return err
		}

		children := make([]entity.InstanceStatus, len(childStatuses))
		for i, s := range childStatuses {
			children[i] = entity.InstanceStatus(s)
		}
		next, ok := entity.AggregateSimulationStatus(children)
		if !ok || string(next) == simulation.Status {
			return nil
		}

		if err := tx.Model(&model.Simulation{}).
			Where("id = ?", id).
			Update("status", string(next)).Error; err != nil {
			return err
		}
		status = string(next)
		changed = true
		return nil
	})
	return status, changed, err
}

func (r *simulationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("simulation_id = ?", id).Delete(&model.Instance{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Simulation{}).Error
	})
}
