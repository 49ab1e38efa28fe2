package entity

import "fmt"

// InstanceStatus 实例状态
type InstanceStatus string

const (
	InstanceStatusPending        InstanceStatus = "PENDING"
	InstanceStatusDeploying      InstanceStatus = "DEPLOYING"
	InstanceStatusUp             InstanceStatus = "UP"
	InstanceStatusReady          InstanceStatus = "READY"
	InstanceStatusDecomposing    InstanceStatus = "DECOMPOSING"
	InstanceStatusRunning        InstanceStatus = "RUNNING"
	InstanceStatusRunningMPI     InstanceStatus = "RUNNING_MPI"
	InstanceStatusReconstructing InstanceStatus = "RECONSTRUCTING"
	InstanceStatusComplete       InstanceStatus = "COMPLETE"
	InstanceStatusFailed         InstanceStatus = "FAILED"
)

// AllInstanceStatuses 所有实例状态
var AllInstanceStatuses = []InstanceStatus{
	InstanceStatusPending,
	InstanceStatusDeploying,
	InstanceStatusUp,
	InstanceStatusReady,
	InstanceStatusDecomposing,
	InstanceStatusRunning,
	InstanceStatusRunningMPI,
	InstanceStatusReconstructing,
	InstanceStatusComplete,
	InstanceStatusFailed,
}

func (s InstanceStatus) String() string {
	return string(s)
}

// ParseInstanceStatus 解析状态字符串
func ParseInstanceStatus(s string) (InstanceStatus, error) {
	status := InstanceStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown instance status %q", s)
	}
	return status, nil
}

func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstanceStatusPending, InstanceStatusDeploying, InstanceStatusUp, InstanceStatusReady,
		InstanceStatusDecomposing, InstanceStatusRunning, InstanceStatusRunningMPI,
		InstanceStatusReconstructing, InstanceStatusComplete, InstanceStatusFailed:
		return true
	}
	return false
}

// IsTerminal COMPLETE 和 FAILED 之后不再被任何调度 pass 处理
func (s InstanceStatus) IsTerminal() bool {
	switch s {
	case InstanceStatusComplete, InstanceStatusFailed:
		return true
	case InstanceStatusPending, InstanceStatusDeploying, InstanceStatusUp, InstanceStatusReady,
		InstanceStatusDecomposing, InstanceStatusRunning, InstanceStatusRunningMPI,
		InstanceStatusReconstructing:
		return false
	}
	return false
}

// CanTransition 实例状态机
//
//	PENDING -> DEPLOYING -> UP -> (DECOMPOSING ->) READY -> RUNNING | RUNNING_MPI
//	RUNNING_MPI -> RECONSTRUCTING -> COMPLETE, RUNNING -> COMPLETE
//
// 任何活动状态都可以因资源消失直接进入 COMPLETE，部署链上的失败进入 PENDING（重试）或 FAILED。
func CanTransition(from, to InstanceStatus) bool {
	switch from {
	case InstanceStatusPending:
		return to == InstanceStatusDeploying
	case InstanceStatusDeploying:
		return to == InstanceStatusUp || to == InstanceStatusPending || to == InstanceStatusFailed
	case InstanceStatusUp:
		return to == InstanceStatusReady || to == InstanceStatusDecomposing ||
			to == InstanceStatusPending || to == InstanceStatusFailed || to == InstanceStatusComplete
	case InstanceStatusDecomposing:
		return to == InstanceStatusReady || to == InstanceStatusComplete
	case InstanceStatusReady:
		return to == InstanceStatusRunning || to == InstanceStatusRunningMPI ||
			to == InstanceStatusPending || to == InstanceStatusFailed || to == InstanceStatusComplete
	case InstanceStatusRunning:
		return to == InstanceStatusComplete
	case InstanceStatusRunningMPI:
		return to == InstanceStatusReconstructing || to == InstanceStatusComplete
	case InstanceStatusReconstructing:
		return to == InstanceStatusComplete
	case InstanceStatusComplete, InstanceStatusFailed:
		return false
	}
	return false
}

// SimulationStatus 仿真状态，由子实例状态汇总得到
type SimulationStatus string

const (
	SimulationStatusPending   SimulationStatus = "PENDING"
	SimulationStatusDeploying SimulationStatus = "DEPLOYING"
	SimulationStatusRunning   SimulationStatus = "RUNNING"
	SimulationStatusComplete  SimulationStatus = "COMPLETE"
	SimulationStatusFailed    SimulationStatus = "FAILED"
)

func (s SimulationStatus) String() string {
	return string(s)
}

func (s SimulationStatus) IsValid() bool {
	switch s {
	case SimulationStatusPending, SimulationStatusDeploying, SimulationStatusRunning,
		SimulationStatusComplete, SimulationStatusFailed:
		return true
	}
	return false
}

func (s SimulationStatus) IsTerminal() bool {
	switch s {
	case SimulationStatusComplete, SimulationStatusFailed:
		return true
	case SimulationStatusPending, SimulationStatusDeploying, SimulationStatusRunning:
		return false
	}
	return false
}

// AggregateSimulationStatus 由子实例状态推导仿真的终态
//   - 全部 FAILED 时为 FAILED
//   - 全部终态且至少一个 COMPLETE 时为 COMPLETE
//
// 其余情况返回 false，仿真状态保持不变。
func AggregateSimulationStatus(children []InstanceStatus) (SimulationStatus, bool) {
	if len(children) == 0 {
		return "", false
	}
	failed, complete := 0, 0
	for _, s := range children {
		switch s {
		case InstanceStatusFailed:
			failed++
		case InstanceStatusComplete:
			complete++
		case InstanceStatusPending, InstanceStatusDeploying, InstanceStatusUp, InstanceStatusReady,
			InstanceStatusDecomposing, InstanceStatusRunning, InstanceStatusRunningMPI,
			InstanceStatusReconstructing:
			return "", false
		default:
			return "", false
		}
	}
	if failed == len(children) {
		return SimulationStatusFailed, true
	}
	if complete > 0 {
		return SimulationStatusComplete, true
	}
	return "", false
}
