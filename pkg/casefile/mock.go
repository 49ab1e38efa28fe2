package casefile

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider 是 CaseFileProvider 的 mock 实现
type MockProvider struct {
	mock.Mock
}

var _ CaseFileProvider = (*MockProvider)(nil)

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Stage(ctx context.Context, req StageRequest) (*Workspace, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Workspace), args.Error(1)
}

func (m *MockProvider) Publish(ctx context.Context, ws *Workspace, id string, target Target) (*Published, error) {
	args := m.Called(ctx, ws, id, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Published), args.Error(1)
}

func (m *MockProvider) ApplyOverrides(ctx context.Context, caseDir string, updates map[string]string) ([]string, error) {
	args := m.Called(ctx, caseDir, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
