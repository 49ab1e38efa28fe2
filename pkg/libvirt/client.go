package libvirt

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/digitalocean/go-libvirt"
)

type Client struct {
	conn *libvirt.Libvirt
}

var _ LibvirtClient = (*Client)(nil)

// NodeInfo 宿主机容量
type NodeInfo struct {
	CPUs     int    `json:"cpus"`
	MemoryKB uint64 `json:"memory_kb"`
}

// DomainInfo 运行中 domain 的资源占用
type DomainInfo struct {
	Name     string `json:"name"`
	VCPUs    int    `json:"vcpus"`
	MemoryKB uint64 `json:"memory_kb"`
}

// CreateVMConfig 创建虚拟机配置参数
type CreateVMConfig struct {
	Name        string // 虚拟机名称（必填）
	Description string
	MemoryKB    uint64 // 内存大小（KB）（必填）
	VCPUs       int    // 虚拟 CPU 数量（必填）
	DiskPath    string // qcow2 磁盘路径（必填）
	Network     string // libvirt 网络名称（默认：default）
}

// New 连接 libvirt，uri 为空时使用本地 qemu:///system
func New(uri string) (*Client, error) {
	if uri == "" {
		uri = string(libvirt.QEMUSystem)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse libvirt uri %q: %w", uri, err)
	}
	l, err := libvirt.ConnectToURI(u)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &Client{conn: l}, nil
}

func (c *Client) Close() error {
	return c.conn.Disconnect()
}

func (c *Client) GetNodeInfo() (*NodeInfo, error) {
	_, memory, cpus, _, _, _, _, _, err := c.conn.NodeGetInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get node info: %w", err)
	}
	return &NodeInfo{CPUs: int(cpus), MemoryKB: memory}, nil
}

func (c *Client) DomainExists(name string) (bool, error) {
	_, err := c.conn.DomainLookupByName(name)
	if err == nil {
		return true, nil
	}
	if isNoDomain(err) {
		return false, nil
	}
	return false, fmt.Errorf("lookup domain %s: %w", name, err)
}

// CreateDomain 定义并启动 domain，启动失败时撤销定义
func (c *Client) CreateDomain(config *CreateVMConfig) error {
	domainXML, err := buildDomainXML(config)
	if err != nil {
		return err
	}
	xmlBytes, err := xml.MarshalIndent(domainXML, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	domain, err := c.conn.DomainDefineXML(string(xmlBytes))
	if err != nil {
		return fmt.Errorf("failed to define domain %s: %w", config.Name, err)
	}
	if err := c.conn.DomainCreate(domain); err != nil {
		_ = c.conn.DomainUndefine(domain)
		return fmt.Errorf("failed to start domain %s: %w", config.Name, err)
	}
	return nil
}

func (c *Client) IsDomainRunning(name string) (bool, error) {
	domain, err := c.conn.DomainLookupByName(name)
	if err != nil {
		return false, fmt.Errorf("lookup domain %s: %w", name, err)
	}
	state, _, err := c.conn.DomainGetState(domain, 0)
	if err != nil {
		return false, fmt.Errorf("failed to get domain state: %w", err)
	}
	return libvirt.DomainState(state) == libvirt.DomainRunning, nil
}

func (c *Client) ListActiveDomains() ([]DomainInfo, error) {
	domains, _, err := c.conn.ConnectListAllDomains(1000, libvirt.ConnectListDomainsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	infos := make([]DomainInfo, 0, len(domains))
	for _, d := range domains {
		_, maxMem, _, vcpus, _, err := c.conn.DomainGetInfo(d)
		if err != nil {
			return nil, fmt.Errorf("failed to get info of domain %s: %w", d.Name, err)
		}
		infos = append(infos, DomainInfo{Name: d.Name, VCPUs: int(vcpus), MemoryKB: maxMem})
	}
	return infos, nil
}

// DeleteDomain 强制关闭并删除 domain，domain 不存在视为成功
func (c *Client) DeleteDomain(name string) error {
	domain, err := c.conn.DomainLookupByName(name)
	if err != nil {
		if isNoDomain(err) {
			return nil
		}
		return fmt.Errorf("lookup domain %s: %w", name, err)
	}

	state, _, err := c.conn.DomainGetState(domain, 0)
	if err != nil {
		return fmt.Errorf("failed to get domain state: %w", err)
	}
	if libvirt.DomainState(state) == libvirt.DomainRunning {
		if err := c.conn.DomainDestroy(domain); err != nil {
			return fmt.Errorf("failed to destroy running domain: %w", err)
		}
	}

	if err := c.conn.DomainUndefineFlags(domain, libvirt.DomainUndefineManagedSave); err != nil {
		return fmt.Errorf("failed to undefine domain: %w", err)
	}
	return nil
}

// GetDomainAddress 从 DHCP 租约中取 domain 的 IPv4 地址，尚未分配时返回空串
func (c *Client) GetDomainAddress(name string) (string, error) {
	domain, err := c.conn.DomainLookupByName(name)
	if err != nil {
		return "", fmt.Errorf("lookup domain %s: %w", name, err)
	}
	ifaces, err := c.conn.DomainInterfaceAddresses(domain, uint32(libvirt.DomainInterfaceAddressesSrcLease), 0)
	if err != nil {
		return "", fmt.Errorf("failed to get interface addresses: %w", err)
	}

	addrs := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.Addr)
		}
	}
	return firstIPv4(addrs), nil
}

func isNoDomain(err error) bool {
	var lerr libvirt.Error
	if errors.As(err, &lerr) {
		return lerr.Code == uint32(libvirt.ErrNoDomain)
	}
	return false
}

func firstIPv4(addrs []string) string {
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil && !ip.IsLoopback() {
			return a
		}
	}
	return ""
}

func buildDomainXML(config *CreateVMConfig) (*DomainXML, error) {
	switch {
	case config.Name == "":
		return nil, fmt.Errorf("domain name is required")
	case config.MemoryKB == 0:
		return nil, fmt.Errorf("memory size is required and must be greater than 0")
	case config.VCPUs <= 0:
		return nil, fmt.Errorf("vCPU count is required and must be greater than 0")
	case config.DiskPath == "":
		return nil, fmt.Errorf("disk path is required")
	}
	network := config.Network
	if network == "" {
		network = "default"
	}

	return &DomainXML{
		Type:          "kvm",
		Name:          config.Name,
		Description:   config.Description,
		Memory:        DomainMemory{Unit: "KiB", Value: config.MemoryKB},
		CurrentMemory: DomainMemory{Unit: "KiB", Value: config.MemoryKB},
		VCPU:          DomainVCPU{Placement: "static", Value: config.VCPUs},
		OS: DomainOS{
			Type: DomainOSType{Arch: "x86_64", Value: "hvm"},
			Boot: DomainBoot{Dev: "hd"},
		},
		Features:   &DomainFeatures{ACPI: &struct{}{}, APIC: &struct{}{}},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices: DomainDevices{
			Disks: []DomainDisk{{
				Type:   "file",
				Device: "disk",
				Driver: DomainDiskDriver{Name: "qemu", Type: "qcow2"},
				Source: DomainDiskSource{File: config.DiskPath},
				Target: DomainDiskTarget{Dev: "vda", Bus: "virtio"},
			}},
			Interfaces: []DomainInterface{{
				Type:   "network",
				Source: DomainInterfaceSource{Network: network},
				Model:  DomainInterfaceModel{Type: "virtio"},
			}},
			Serial:  DomainSerial{Type: "pty", Target: DomainSerialTarget{Port: 0}},
			Console: DomainConsole{Type: "pty", Target: DomainConsoleTarget{Type: "serial", Port: 0}},
		},
	}, nil
}
