package libvirt

// LibvirtClient 定义 libvirt 客户端接口
// 用于抽象 libvirt 操作，便于测试和 mock
type LibvirtClient interface {
	// 节点信息
	GetNodeInfo() (*NodeInfo, error)

	// Domain 操作
	DomainExists(name string) (bool, error)
	CreateDomain(config *CreateVMConfig) error
	IsDomainRunning(name string) (bool, error)
	ListActiveDomains() ([]DomainInfo, error)
	DeleteDomain(name string) error

	// 网络
	GetDomainAddress(name string) (string, error)

	Close() error
}
