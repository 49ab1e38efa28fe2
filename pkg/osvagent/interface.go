package osvagent

import "context"

// InstanceAgent 单个虚拟机的 REST 接口
type InstanceAgent interface {
	// WaitUp 等待 API 可用
	WaitUp(ctx context.Context) error
	SetEnv(ctx context.Context, name, value string) error
	// Mount 在虚拟机内挂载 NFS，remote 形如 nfs://10.0.0.2/export/i-1/case
	Mount(ctx context.Context, remote, mountPoint string) error
	// RunCommand 启动命令，返回执行线程 ID
	RunCommand(ctx context.Context, command string) (int64, error)
	ListThreads(ctx context.Context) ([]Thread, error)
	// IsThreadFinished 线程不存在或状态为 terminated 都视为结束
	IsThreadFinished(ctx context.Context, id int64) (bool, error)
	// ReadFile 读取虚拟机内文件
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Connector 按地址获取 InstanceAgent
type Connector func(ip string) InstanceAgent
