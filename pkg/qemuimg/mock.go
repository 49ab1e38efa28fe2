package qemuimg

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 是 QemuImgClient 的 mock 实现
type MockClient struct {
	mock.Mock
}

var _ QemuImgClient = (*MockClient)(nil)

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) CreateFromBackingFile(ctx context.Context, format, backingFormat, backingFile, outputFile string) error {
	args := m.Called(ctx, format, backingFormat, backingFile, outputFile)
	return args.Error(0)
}

func (m *MockClient) Info(ctx context.Context, imagePath string) (*ImageInfo, error) {
	args := m.Called(ctx, imagePath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ImageInfo), args.Error(1)
}
