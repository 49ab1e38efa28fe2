package entity

import (
	"fmt"
	"time"
)

// Case 单个 case：名称和覆盖项
// Updates 的 key 形如 "system/controlDict/endTime"，最后一段是变量名
type Case struct {
	Name    string            `json:"name"`
	Updates map[string]string `json:"updates"`
}

// Decomposition 并行分解配置，字段含义取决于 Method
type Decomposition struct {
	Method           string `json:"decomposition_method"`
	Subdomains       string `json:"subdomains,omitempty"`
	N                string `json:"n,omitempty"`
	Delta            string `json:"delta,omitempty"`
	Order            string `json:"order,omitempty"`
	ProcessorWeights string `json:"processor_weights,omitempty"`
	Strategy         string `json:"strategy,omitempty"`
	DataFile         string `json:"datafile,omitempty"`
}

// 分解方法
const (
	DecompositionSimple       = "simple"
	DecompositionHierarchical = "hierarchical"
	DecompositionScotch       = "scotch"
	DecompositionManual       = "manual"
)

func (d *Decomposition) IsValid() error {
	switch d.Method {
	case DecompositionSimple, DecompositionHierarchical, DecompositionScotch, DecompositionManual:
		return nil
	}
	return fmt.Errorf("unknown decomposition method %q", d.Method)
}

// Simulation 仿真
type Simulation struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Image           string           `json:"image"`
	Flavor          string           `json:"flavor"`
	Solver          string           `json:"solver"`
	InstanceCount   int              `json:"instance_count"`
	ContainerName   string           `json:"container_name"`
	InputDataObject string           `json:"input_data_object"`
	Cases           []Case           `json:"cases" copier:"-"`
	Decomposition   *Decomposition   `json:"decomposition,omitempty" copier:"-"`
	Status          SimulationStatus `json:"status"`
	Instances       []Instance       `json:"instances,omitempty" copier:"-"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CreateSimulationRequest 创建仿真请求
type CreateSimulationRequest struct {
	Name            string         `json:"name"`
	Image           string         `json:"image"`
	Flavor          string         `json:"flavor"`
	Solver          string         `json:"solver"`
	ContainerName   string         `json:"container_name"`
	InputDataObject string         `json:"input_data_object"`
	Cases           []Case         `json:"cases"`
	Decomposition   *Decomposition `json:"decomposition,omitempty"`
}

func (r *CreateSimulationRequest) IsValid() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Flavor == "" {
		return fmt.Errorf("flavor is required")
	}
	if r.Solver == "" {
		return fmt.Errorf("solver is required")
	}
	if r.ContainerName == "" || r.InputDataObject == "" {
		return fmt.Errorf("container_name and input_data_object are required")
	}
	seen := make(map[string]bool, len(r.Cases))
	for _, c := range r.Cases {
		if c.Name == "" {
			return fmt.Errorf("case name is required")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate case name %q", c.Name)
		}
		seen[c.Name] = true
	}
	if r.Decomposition != nil {
		if err := r.Decomposition.IsValid(); err != nil {
			return err
		}
	}
	return nil
}

type CreateSimulationResponse struct {
	Simulation *Simulation `json:"simulation"`
}

// DescribeSimulationsRequest 过滤条件都为空时返回全部
type DescribeSimulationsRequest struct {
	SimulationIDs []string `json:"simulation_ids"`
	Status        string   `json:"status"`
}

type DescribeSimulationsResponse struct {
	Simulations []Simulation `json:"simulations"`
}

type DestroySimulationRequest struct {
	SimulationID string `json:"simulation_id"`
}

func (r *DestroySimulationRequest) IsValid() error {
	if r.SimulationID == "" {
		return fmt.Errorf("simulation_id is required")
	}
	return nil
}

type DestroySimulationResponse struct {
	SimulationID        string   `json:"simulation_id"`
	TerminatedInstances []string `json:"terminated_instances"`
}
