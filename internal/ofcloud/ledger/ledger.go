// Package ledger 计算某一时刻还能准入多少计算资源
//
// 云上配额接口只给出已分配总量，不知道本系统正在部署中的实例，
// 所以可用量 = 配额上限 - 活动资源占用 - 部署中实例的预留。
// 结果可以为负，负数本身就是"资源不足"。
package ledger

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// Unlimited 云上未设置配额时使用的大数
const Unlimited = 1000000

// Quota 可用资源向量
type Quota struct {
	Cores       int
	Instances   int
	FloatingIPs int
	RAMMB       int64
}

func (q Quota) String() string {
	return fmt.Sprintf("cores=%d instances=%d floating_ips=%d ram=%s",
		q.Cores, q.Instances, q.FloatingIPs, formatMB(q.RAMMB))
}

// Shape 计算规格
type Shape struct {
	Name  string
	Cores int
	RAMMB int64
}

// Catalog 规格目录，key 为规格 ID 或名称
type Catalog map[string]Shape

// Ceiling 配额上限
//   - Hard 云上硬配额，负数表示不限
//   - MaxCores / MaxInstances 运维配置的软上限，0 表示未配置
type Ceiling struct {
	Hard         Quota
	MaxCores     int
	MaxInstances int
}

// Effective 硬配额和软上限取更严格者
func (c Ceiling) Effective() Quota {
	q := Quota{
		Cores:       unlimitedIfNegative(c.Hard.Cores),
		Instances:   unlimitedIfNegative(c.Hard.Instances),
		FloatingIPs: unlimitedIfNegative(c.Hard.FloatingIPs),
		RAMMB:       c.Hard.RAMMB,
	}
	if q.RAMMB < 0 {
		q.RAMMB = Unlimited * 1024
	}
	if c.MaxCores > 0 && c.MaxCores < q.Cores {
		q.Cores = c.MaxCores
	}
	if c.MaxInstances > 0 && c.MaxInstances < q.Instances {
		q.Instances = c.MaxInstances
	}
	return q
}

func unlimitedIfNegative(v int) int {
	if v < 0 {
		return Unlimited
	}
	return v
}

// ComputeAvailable 计算可用资源
//   - active 活动计算资源的规格（ID 或名称）
//   - inFlight 部署中（DEPLOYING）实例的规格，不区分 provider，每个额外预留一个浮动 IP
//   - usedFloatingIPs 已绑定的浮动 IP 数
//
// 目录里找不到的规格只扣一个实例名额。
func ComputeAvailable(ctx context.Context, ceiling Ceiling, active, inFlight []string, catalog Catalog, usedFloatingIPs int) Quota {
	logger := zerolog.Ctx(ctx)
	q := ceiling.Effective()

	for _, name := range active {
		q.Instances--
		shape, ok := catalog[name]
		if !ok {
			logger.Warn().Str("shape", name).Msg("Unknown shape of active server, counting instance slot only")
			continue
		}
		q.Cores -= shape.Cores
		q.RAMMB -= shape.RAMMB
	}

	q.FloatingIPs -= usedFloatingIPs

	// 部署中的实例还没有浮动 IP，也不知道是否需要，保守地各预留一个
	for _, name := range inFlight {
		q.Instances--
		q.FloatingIPs--
		shape, ok := catalog[name]
		if !ok {
			logger.Warn().Str("shape", name).Msg("Unknown shape of deploying instance, counting instance slot only")
			continue
		}
		q.Cores -= shape.Cores
		q.RAMMB -= shape.RAMMB
	}

	return q
}

// IsAdmissible 扣除候选规格后四项都不为负才准入
func IsAdmissible(candidate Shape, available Quota) bool {
	left := Quota{
		Cores:       available.Cores - candidate.Cores,
		Instances:   available.Instances - 1,
		FloatingIPs: available.FloatingIPs - 1,
		RAMMB:       available.RAMMB - candidate.RAMMB,
	}
	return left.Cores >= 0 && left.Instances >= 0 && left.FloatingIPs >= 0 && left.RAMMB >= 0
}

func formatMB(mb int64) string {
	if mb < 0 {
		return "-" + humanize.IBytes(uint64(-mb)*humanize.MiByte)
	}
	return humanize.IBytes(uint64(mb) * humanize.MiByte)
}
