package provider

import (
	"context"
	"fmt"
)

// PartitionByLiveness 按计算资源是否仍存在把实例分为存活和孤儿两组
// 没有 computeID 的实例视为孤儿
func PartitionByLiveness[T any](ctx context.Context, p Provider, items []T, computeID func(T) string) (live, orphaned []T, err error) {
	if len(items) == 0 {
		return nil, nil, nil
	}
	active, err := p.ListActiveResourceIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active resources of provider %s: %w", p.ID(), err)
	}

	for _, item := range items {
		id := computeID(item)
		if _, ok := active[id]; ok && id != "" {
			live = append(live, item)
			continue
		}
		orphaned = append(orphaned, item)
	}
	return live, orphaned, nil
}
