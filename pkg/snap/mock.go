package snap

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCollector 是 MetricsCollector 的 mock 实现
type MockCollector struct {
	mock.Mock
}

var _ MetricsCollector = (*MockCollector)(nil)

func NewMockCollector() *MockCollector {
	return &MockCollector{}
}

func (m *MockCollector) StartCollection(ctx context.Context, targetIP string) (string, error) {
	args := m.Called(ctx, targetIP)
	return args.String(0), args.Error(1)
}

func (m *MockCollector) StopCollection(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}
