package libvirt

import (
	"github.com/stretchr/testify/mock"
)

// MockClient 是 LibvirtClient 的 mock 实现
// 用于测试，不需要真实的 libvirt 连接
type MockClient struct {
	mock.Mock
}

var _ LibvirtClient = (*MockClient)(nil)

func (m *MockClient) GetNodeInfo() (*NodeInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*NodeInfo), args.Error(1)
}

func (m *MockClient) DomainExists(name string) (bool, error) {
	args := m.Called(name)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) CreateDomain(config *CreateVMConfig) error {
	args := m.Called(config)
	return args.Error(0)
}

func (m *MockClient) IsDomainRunning(name string) (bool, error) {
	args := m.Called(name)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) ListActiveDomains() ([]DomainInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]DomainInfo), args.Error(1)
}

func (m *MockClient) DeleteDomain(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

func (m *MockClient) GetDomainAddress(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
