package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
	"github.com/jimyag/ofcloud/internal/ofcloud/ledger"
	"github.com/jimyag/ofcloud/pkg/libvirt"
	"github.com/jimyag/ofcloud/pkg/qemuimg"
)

const defaultDiskDir = "/var/lib/ofcloud/disks"

// Libvirt 单机 KVM 后端
// 每个实例一个 domain，domain 名即计算资源 ID，磁盘是启动镜像上的 qcow2 overlay
type Libvirt struct {
	id      string
	cfg     config.LibvirtConfig
	nfs     config.NFSConfig
	boot    config.BootConfig
	client  libvirt.LibvirtClient
	qemuImg qemuimg.QemuImgClient
}

var _ Provider = (*Libvirt)(nil)

func NewLibvirt(ctx context.Context, cfg config.ProviderConfig, boot config.BootConfig) (Provider, error) {
	if cfg.Libvirt == nil {
		return nil, fmt.Errorf("libvirt section is required")
	}
	client, err := libvirt.New(cfg.Libvirt.URI)
	if err != nil {
		return nil, err
	}
	return newLibvirt(cfg, boot, client, qemuimg.New("")), nil
}

func newLibvirt(cfg config.ProviderConfig, boot config.BootConfig, client libvirt.LibvirtClient, qemuImg qemuimg.QemuImgClient) *Libvirt {
	lc := *cfg.Libvirt
	if lc.DiskDir == "" {
		lc.DiskDir = defaultDiskDir
	}
	return &Libvirt{
		id:      cfg.ID,
		cfg:     lc,
		nfs:     cfg.NFS,
		boot:    boot,
		client:  client,
		qemuImg: qemuImg,
	}
}

func (l *Libvirt) ID() string            { return l.id }
func (l *Libvirt) Kind() string          { return config.ProviderKindLibvirt }
func (l *Libvirt) NFS() config.NFSConfig { return l.nfs }

func (l *Libvirt) PrepareCompute(ctx context.Context, req LaunchRequest) (*ProvisionedInstance, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("provider", l.id).
		Str("instance_id", req.InstanceID).
		Logger()

	name := req.ServerName()
	exists, err := l.client.DomainExists(name)
	if err != nil {
		return nil, newProvisionError(l.id, ProvisionCreate, err)
	}
	if exists {
		return nil, alreadyExistsError(l.id, name)
	}

	flavor, ok := l.cfg.Flavors[req.Flavor]
	if !ok {
		return nil, newProvisionError(l.id, ProvisionCreate, fmt.Errorf("unknown flavor %q", req.Flavor))
	}

	info, err := l.qemuImg.Info(ctx, req.ImagePath)
	if err != nil {
		return nil, newProvisionError(l.id, ProvisionImageUpload, err)
	}
	if err := os.MkdirAll(l.cfg.DiskDir, 0755); err != nil {
		return nil, newProvisionError(l.id, ProvisionImageUpload, fmt.Errorf("create disk dir: %w", err))
	}
	disk := l.diskPath(name)
	if err := l.qemuImg.CreateFromBackingFile(ctx, "qcow2", info.Format, req.ImagePath, disk); err != nil {
		return nil, newProvisionError(l.id, ProvisionImageUpload, err)
	}

	err = l.client.CreateDomain(&libvirt.CreateVMConfig{
		Name:        name,
		Description: fmt.Sprintf("ofcloud simulation %s instance %s", req.SimulationID, req.InstanceID),
		MemoryKB:    uint64(flavor.RAMMB) * 1024,
		VCPUs:       flavor.VCPUs,
		DiskPath:    disk,
		Network:     l.cfg.Network,
	})
	if err != nil {
		l.removeDisk(ctx, name)
		return nil, newProvisionError(l.id, ProvisionCreate, err)
	}
	logger.Info().Str("domain", name).Str("disk", disk).Msg("Domain started, waiting for address")

	var address string
	err = waitActive(ctx, l.id, l.boot.PollInterval, l.boot.MaxAttempts, func(ctx context.Context) (bool, error) {
		running, err := l.client.IsDomainRunning(name)
		if err != nil {
			return false, err
		}
		if !running {
			return false, newProvisionError(l.id, ProvisionBootFailure, fmt.Errorf("domain %s is not running", name))
		}
		address, err = l.client.GetDomainAddress(name)
		if err != nil {
			return false, err
		}
		return address != "", nil
	})
	if err != nil {
		if terr := l.Terminate(ctx, []string{name}); terr != nil {
			logger.Warn().Err(terr).Str("domain", name).Msg("Failed to clean up domain")
		}
		return nil, err
	}

	logger.Info().Str("domain", name).Str("ip", address).Msg("Domain is up")
	return &ProvisionedInstance{ComputeID: name, IP: address}, nil
}

// IsAdmissibleNow 宿主机 CPU 和内存作为硬上限，活动 domain 按实际分配计算
func (l *Libvirt) IsAdmissibleNow(ctx context.Context, req AdmissionRequest) (bool, error) {
	node, err := l.client.GetNodeInfo()
	if err != nil {
		return false, fmt.Errorf("get node info: %w", err)
	}
	domains, err := l.client.ListActiveDomains()
	if err != nil {
		return false, fmt.Errorf("list domains: %w", err)
	}

	catalog := ledger.Catalog{}
	for name, f := range l.cfg.Flavors {
		catalog[name] = ledger.Shape{Name: name, Cores: f.VCPUs, RAMMB: f.RAMMB}
	}
	active := make([]string, 0, len(domains))
	for _, d := range domains {
		key := "domain:" + d.Name
		catalog[key] = ledger.Shape{Name: d.Name, Cores: d.VCPUs, RAMMB: int64(d.MemoryKB / 1024)}
		active = append(active, key)
	}

	candidate, ok := catalog[req.Flavor]
	if !ok {
		return false, fmt.Errorf("unknown flavor %q", req.Flavor)
	}

	ceiling := ledger.Ceiling{
		Hard: ledger.Quota{
			Cores:       node.CPUs,
			Instances:   -1,
			FloatingIPs: -1,
			RAMMB:       int64(node.MemoryKB / 1024),
		},
		MaxInstances: l.cfg.MaxInstanceUsage,
	}
	available := ledger.ComputeAvailable(ctx, ceiling, active, req.InFlight, catalog, 0)
	admissible := ledger.IsAdmissible(candidate, available)

	zerolog.Ctx(ctx).Debug().
		Str("provider", l.id).
		Str("flavor", req.Flavor).
		Stringer("available", available).
		Bool("admissible", admissible).
		Msg("Admission checked")
	return admissible, nil
}

func (l *Libvirt) ListActiveResourceIDs(ctx context.Context) (map[string]struct{}, error) {
	domains, err := l.client.ListActiveDomains()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		ids[d.Name] = struct{}{}
	}
	return ids, nil
}

func (l *Libvirt) Terminate(ctx context.Context, computeIDs []string) error {
	var errs []error
	for _, name := range computeIDs {
		if err := l.client.DeleteDomain(name); err != nil {
			errs = append(errs, fmt.Errorf("delete domain %s: %w", name, err))
			continue
		}
		l.removeDisk(ctx, name)
	}
	return errors.Join(errs...)
}

func (l *Libvirt) CoresFor(ctx context.Context, flavor string) int {
	f, ok := l.cfg.Flavors[flavor]
	if !ok || f.VCPUs < 1 {
		return 1
	}
	return f.VCPUs
}

func (l *Libvirt) diskPath(name string) string {
	return filepath.Join(l.cfg.DiskDir, name+".qcow2")
}

func (l *Libvirt) removeDisk(ctx context.Context, name string) {
	if err := os.Remove(l.diskPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("domain", name).Msg("Failed to remove disk")
	}
}
