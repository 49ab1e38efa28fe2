// Package service 提供面向 API 的仿真和实例服务
package service

import (
	"encoding/json"
	"fmt"

	"github.com/jinzhu/copier"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository/model"
)

// simulationModelToEntity 将 model.Simulation 转换为 entity.Simulation
func simulationModelToEntity(m *model.Simulation) (*entity.Simulation, error) {
	e := &entity.Simulation{}
	if err := copier.Copy(e, m); err != nil {
		return nil, err
	}
	e.Status = entity.SimulationStatus(m.Status)

	e.Cases = []entity.Case{}
	if m.Cases != "" {
		if err := json.Unmarshal([]byte(m.Cases), &e.Cases); err != nil {
			return nil, fmt.Errorf("decode cases of %s: %w", m.ID, err)
		}
	}
	if m.Decomposition != "" && m.Decomposition != "null" {
		e.Decomposition = &entity.Decomposition{}
		if err := json.Unmarshal([]byte(m.Decomposition), e.Decomposition); err != nil {
			return nil, fmt.Errorf("decode decomposition of %s: %w", m.ID, err)
		}
	}
	return e, nil
}

// instanceModelToEntity 将 model.Instance 转换为 entity.Instance
func instanceModelToEntity(m *model.Instance) (*entity.Instance, error) {
	e := &entity.Instance{}
	if err := copier.Copy(e, m); err != nil {
		return nil, err
	}
	e.Status = entity.InstanceStatus(m.Status)

	e.Config = map[string]string{}
	if m.Config != "" {
		if err := json.Unmarshal([]byte(m.Config), &e.Config); err != nil {
			return nil, fmt.Errorf("decode config of %s: %w", m.ID, err)
		}
	}
	return e, nil
}

func instancesModelToEntity(ms []*model.Instance) ([]entity.Instance, error) {
	out := make([]entity.Instance, 0, len(ms))
	for _, m := range ms {
		e, err := instanceModelToEntity(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
