package repository

import (
	"context"

	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
	"gorm.io/gorm"
)

// InstanceRepository 实例仓库接口
type InstanceRepository interface {
	GetByID(ctx context.Context, id string) (*model.Instance, error)
	List(ctx context.Context, filter InstanceFilter) ([]*model.Instance, error)
	Update(ctx context.Context, instance *model.Instance) error
	// UpdateFields 仅当当前状态属于 from 时写入 fields，返回是否更新
	UpdateFields(ctx context.Context, id string, from []string, fields map[string]any) (bool, error)
	// CompareAndSetStatus 仅当当前状态属于 from 时更新状态
	CompareAndSetStatus(ctx context.Context, id string, from []string, to string) (bool, error)
	// UpdateStatus 批量更新状态，只影响当前状态属于 from 的记录
	UpdateStatus(ctx context.Context, ids []string, from []string, to string) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	// ListFlavorsByStatus 返回处于 status 的实例所属仿真的 flavor，每个实例一项
	ListFlavorsByStatus(ctx context.Context, status string) ([]string, error)
}

// InstanceFilter 为空的字段不参与过滤
type InstanceFilter struct {
	IDs          []string
	SimulationID string
	Provider     string
	Statuses     []string
}

type instanceRepository struct {
	db *gorm.DB
}

func NewInstanceRepository(db *gorm.DB) InstanceRepository {
	return &instanceRepository{db: db}
}

func (r *instanceRepository) GetByID(ctx context.Context, id string) (*model.Instance, error) {
	var instance model.Instance
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *instanceRepository) List(ctx context.Context, filter InstanceFilter) ([]*model.Instance, error) {
	var instances []*model.Instance
	query := r.db.WithContext(ctx).Model(&model.Instance{})
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.SimulationID != "" {
		query = query.Where("simulation_id = ?", filter.SimulationID)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if err := query.Order("created_at").Order("id").Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

func (r *instanceRepository) Update(ctx context.Context, instance *model.Instance) error {
	return r.db.WithContext(ctx).Save(instance).Error
}

func (r *instanceRepository) UpdateFields(ctx context.Context, id string, from []string, fields map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Instance{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *instanceRepository) CompareAndSetStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	return r.UpdateFields(ctx, id, from, map[string]any{"status": to})
}

func (r *instanceRepository) UpdateStatus(ctx context.Context, ids []string, from []string, to string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.Instance{}).
		Where("id IN ? AND status IN ?", ids, from).
		Update("status", to)
	return result.RowsAffected, result.Error
}

func (r *instanceRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&model.Instance{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *instanceRepository) ListFlavorsByStatus(ctx context.Context, status string) ([]string, error) {
	var flavors []string
	if err := r.db.WithContext(ctx).
		Model(&model.Instance{}).
		Joins("JOIN simulations ON simulations.id = instances.simulation_id").
		Where("instances.status = ?", status).
		Pluck("simulations.flavor", &flavors).Error; err != nil {
		return nil, err
	}
	return flavors, nil
}
