package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
)

// Factory 根据配置构造一个 Provider
type Factory func(ctx context.Context, cfg config.ProviderConfig, boot config.BootConfig) (Provider, error)

// Registry kind -> Factory
type Registry map[string]Factory

// DefaultRegistry 内置的后端
func DefaultRegistry() Registry {
	return Registry{
		config.ProviderKindOpenStack: NewOpenStack,
		config.ProviderKindEC2:       NewEC2,
		config.ProviderKindLibvirt:   NewLibvirt,
	}
}

// Build 按配置顺序构造所有 provider，顺序即准入时的尝试顺序
func (r Registry) Build(ctx context.Context, cfgs []config.ProviderConfig, boot config.BootConfig) ([]Provider, error) {
	providers := make([]Provider, 0, len(cfgs))
	for _, c := range cfgs {
		factory, ok := r[c.Kind]
		if !ok {
			return nil, fmt.Errorf("provider %s: unknown kind %q", c.ID, c.Kind)
		}
		p, err := factory(ctx, c, boot)
		if err != nil {
			return nil, fmt.Errorf("build provider %s: %w", c.ID, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Set 按 ID 查找 provider，保留配置顺序
type Set struct {
	ordered []Provider
	byID    map[string]Provider
}

func NewSet(providers ...Provider) *Set {
	s := &Set{ordered: providers, byID: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		s.byID[p.ID()] = p
	}
	return s
}

// All 配置顺序
func (s *Set) All() []Provider {
	return s.ordered
}

// ErrUnknownProvider 实例记录的 provider 不在当前配置中
var ErrUnknownProvider = errors.New("unknown provider")

func (s *Set) Get(id string) (Provider, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return p, nil
}
