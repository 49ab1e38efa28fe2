package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

const (
	SimulationPrefix = "sim"
	InstancePrefix   = "i"
)

// Generator 递增 ID 生成器
type Generator struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultGenerator     *Generator
	defaultGeneratorOnce sync.Once
)

// DefaultGenerator 返回进程级默认生成器
func DefaultGenerator() *Generator {
	defaultGeneratorOnce.Do(func() {
		defaultGenerator = New()
	})
	return defaultGenerator
}

// New 创建新的 ID 生成器
func New() *Generator {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if sf == nil {
		// 拿不到私有 IP 作为机器 ID 时退回固定机器 ID
		sf = sonyflake.NewSonyflake(sonyflake.Settings{
			StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			MachineID: func() (uint16, error) { return 1, nil },
		})
	}
	return &Generator{sf: sf}
}

func (g *Generator) withPrefix(prefix string) (string, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%d", prefix, id), nil
}

// GenerateSimulationID 生成 Simulation ID（sim-{n}）
func (g *Generator) GenerateSimulationID() (string, error) {
	return g.withPrefix(SimulationPrefix)
}

// GenerateInstanceID 生成 Instance ID（i-{n}）
func (g *Generator) GenerateInstanceID() (string, error) {
	return g.withPrefix(InstancePrefix)
}

// GenerateSimulationID 使用默认生成器
func GenerateSimulationID() (string, error) {
	return DefaultGenerator().GenerateSimulationID()
}

// GenerateInstanceID 使用默认生成器
func GenerateInstanceID() (string, error) {
	return DefaultGenerator().GenerateInstanceID()
}
