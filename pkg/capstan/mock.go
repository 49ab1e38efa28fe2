package capstan

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 是 ImageBuilder 的 mock 实现
type MockClient struct {
	mock.Mock
}

var _ ImageBuilder = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) ComposeBootImage(ctx context.Context, name, solver string) (*Image, error) {
	args := m.Called(ctx, name, solver)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Image), args.Error(1)
}
