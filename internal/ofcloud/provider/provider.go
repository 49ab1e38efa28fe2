// Package provider 封装各个云后端的计算资源操作
//
// 每个后端实现 Provider 接口，调度器只通过该接口与云交互：
// 准入判断、创建计算资源、列出活动资源、删除资源。
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
)

// LaunchRequest 创建计算资源需要的信息
type LaunchRequest struct {
	InstanceID   string
	InstanceName string
	SimulationID string
	Flavor       string
	// ImageName 上传到云上的镜像名
	ImageName string
	// ImagePath 本地组装好的启动镜像文件
	ImagePath string
}

// ServerName 计算资源名称 {instanceName}-{instanceID}，全局唯一
func (r LaunchRequest) ServerName() string {
	return fmt.Sprintf("%s-%s", r.InstanceName, r.InstanceID)
}

// ProvisionedInstance 创建成功的计算资源
type ProvisionedInstance struct {
	ComputeID string
	IP        string
}

// AdmissionRequest 准入判断的输入
//   - Flavor 候选实例规格
//   - InFlight 所有部署中实例的规格，不区分 provider
type AdmissionRequest struct {
	Flavor   string
	InFlight []string
}

// Provider 云后端
type Provider interface {
	// ID 配置中的 provider 标识，实例通过它找回部署自己的后端
	ID() string
	Kind() string
	// NFS 该后端使用的共享 case 目录
	NFS() config.NFSConfig
	PrepareCompute(ctx context.Context, req LaunchRequest) (*ProvisionedInstance, error)
	IsAdmissibleNow(ctx context.Context, req AdmissionRequest) (bool, error)
	ListActiveResourceIDs(ctx context.Context) (map[string]struct{}, error)
	// Terminate 逐个删除，单个失败不影响其余，返回合并后的错误
	Terminate(ctx context.Context, computeIDs []string) error
	// CoresFor 查询失败时返回 1
	CoresFor(ctx context.Context, flavor string) int
}

// ProvisionErrorKind 部署失败的类别
type ProvisionErrorKind string

const (
	ProvisionImageUpload   ProvisionErrorKind = "ImageUpload"
	ProvisionNetwork       ProvisionErrorKind = "Network"
	ProvisionCreate        ProvisionErrorKind = "Create"
	ProvisionDuplicateName ProvisionErrorKind = "DuplicateName"
	ProvisionBootFailure   ProvisionErrorKind = "BootFailure"
	ProvisionBootTimeout   ProvisionErrorKind = "BootTimeout"
	ProvisionAddress       ProvisionErrorKind = "Address"
)

// ProvisionError PrepareCompute 返回的错误，所有类别都走重试路径
type ProvisionError struct {
	Kind     ProvisionErrorKind
	Provider string
	Err      error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

func newProvisionError(providerID string, kind ProvisionErrorKind, err error) *ProvisionError {
	return &ProvisionError{Kind: kind, Provider: providerID, Err: err}
}

// IsProvisionError 判断 err 是否为指定类别的 ProvisionError
func IsProvisionError(err error, kind ProvisionErrorKind) bool {
	var pe *ProvisionError
	return errors.As(err, &pe) && pe.Kind == kind
}

// ErrDuplicateName 名称匹配到 0 个或多个计算资源
var ErrDuplicateName = errors.New("unique server name does not match exactly one resource")

func duplicateNameError(providerID, name string, matches int) error {
	return newProvisionError(providerID, ProvisionDuplicateName,
		fmt.Errorf("%w: %s matched %d", ErrDuplicateName, name, matches))
}

func alreadyExistsError(providerID, name string) error {
	return newProvisionError(providerID, ProvisionDuplicateName,
		fmt.Errorf("%w: %s already exists", ErrDuplicateName, name))
}
