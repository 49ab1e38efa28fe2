package osvagent

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockAgent 是 InstanceAgent 的 mock 实现
type MockAgent struct {
	mock.Mock
}

var _ InstanceAgent = (*MockAgent)(nil)

func NewMockAgent() *MockAgent {
	return &MockAgent{}
}

// Connector 所有地址都返回同一个 mock
func (m *MockAgent) Connector() Connector {
	return func(ip string) InstanceAgent { return m }
}

func (m *MockAgent) WaitUp(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAgent) SetEnv(ctx context.Context, name, value string) error {
	args := m.Called(ctx, name, value)
	return args.Error(0)
}

func (m *MockAgent) Mount(ctx context.Context, remote, mountPoint string) error {
	args := m.Called(ctx, remote, mountPoint)
	return args.Error(0)
}

func (m *MockAgent) RunCommand(ctx context.Context, command string) (int64, error) {
	args := m.Called(ctx, command)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAgent) ListThreads(ctx context.Context) ([]Thread, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Thread), args.Error(1)
}

func (m *MockAgent) IsThreadFinished(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAgent) ReadFile(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
