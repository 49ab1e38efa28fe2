package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
	"github.com/jimyag/ofcloud/internal/ofcloud/ledger"
)

const (
	osStatusActive = "ACTIVE"
	osStatusError  = "ERROR"

	defaultRouterWait = 5 * time.Second
	flavorCacheSize   = 256
)

// OpenStack nova + neutron + glance 后端
type OpenStack struct {
	id   string
	cfg  config.OpenStackConfig
	nfs  config.NFSConfig
	boot config.BootConfig
	api  openStackAPI

	// flavors flavor ID 和名称都作为 key
	flavors *lru.Cache
	sleep   func(time.Duration)
}

var _ Provider = (*OpenStack)(nil)

// NewOpenStack 构造 OpenStack provider
func NewOpenStack(ctx context.Context, cfg config.ProviderConfig, boot config.BootConfig) (Provider, error) {
	if cfg.OpenStack == nil {
		return nil, fmt.Errorf("openstack section is required")
	}
	api, err := newGopherClient(cfg.OpenStack)
	if err != nil {
		return nil, err
	}
	return newOpenStack(cfg, boot, api)
}

func newOpenStack(cfg config.ProviderConfig, boot config.BootConfig, api openStackAPI) (*OpenStack, error) {
	cache, err := lru.New(flavorCacheSize)
	if err != nil {
		return nil, err
	}
	osCfg := *cfg.OpenStack
	if osCfg.RouterWait == 0 {
		osCfg.RouterWait = defaultRouterWait
	}
	return &OpenStack{
		id:      cfg.ID,
		cfg:     osCfg,
		nfs:     cfg.NFS,
		boot:    boot,
		api:     api,
		flavors: cache,
		sleep:   time.Sleep,
	}, nil
}

func (o *OpenStack) ID() string            { return o.id }
func (o *OpenStack) Kind() string          { return config.ProviderKindOpenStack }
func (o *OpenStack) NFS() config.NFSConfig { return o.nfs }

// PrepareCompute 上传镜像，创建 server，等待 ACTIVE，绑定浮动 IP
func (o *OpenStack) PrepareCompute(ctx context.Context, req LaunchRequest) (*ProvisionedInstance, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("provider", o.id).
		Str("instance_id", req.InstanceID).
		Logger()

	imageID, err := o.api.UploadImage(ctx, req.ImageName, req.ImagePath)
	if err != nil {
		return nil, newProvisionError(o.id, ProvisionImageUpload, err)
	}
	logger.Info().Str("image_id", imageID).Str("image", req.ImageName).Msg("Image uploaded")

	networkName := o.cfg.NetworkPrefix + "_network"
	networkIDs, err := o.api.FindNetworks(ctx, networkName)
	if err != nil {
		o.deleteImage(ctx, imageID)
		return nil, newProvisionError(o.id, ProvisionNetwork, err)
	}
	if len(networkIDs) != 1 {
		o.deleteImage(ctx, imageID)
		return nil, newProvisionError(o.id, ProvisionNetwork,
			fmt.Errorf("network %s matched %d networks", networkName, len(networkIDs)))
	}

	name := req.ServerName()
	createdID, err := o.api.CreateServer(ctx, name, imageID, o.flavorRef(ctx, req.Flavor), networkIDs[0])
	if err != nil {
		o.deleteImage(ctx, imageID)
		return nil, newProvisionError(o.id, ProvisionCreate, err)
	}

	matches, err := o.api.ListServers(ctx, name)
	if err != nil {
		o.deleteServer(ctx, createdID)
		o.deleteImage(ctx, imageID)
		return nil, newProvisionError(o.id, ProvisionCreate, err)
	}
	matches = exactName(matches, name)
	if len(matches) != 1 {
		// 不猜测哪个是自己创建的，交给重试路径；本次创建的 server 仍然删除
		o.deleteServer(ctx, createdID)
		o.deleteImage(ctx, imageID)
		return nil, duplicateNameError(o.id, name, len(matches))
	}
	serverID := matches[0].ID
	logger.Info().Str("server_id", serverID).Str("name", name).Msg("Server created, waiting for ACTIVE")

	err = waitActive(ctx, o.id, o.boot.PollInterval, o.boot.MaxAttempts, func(ctx context.Context) (bool, error) {
		srv, err := o.api.GetServer(ctx, serverID)
		if err != nil {
			return false, err
		}
		if srv.Status == osStatusError {
			return false, newProvisionError(o.id, ProvisionBootFailure, fmt.Errorf("server %s is in ERROR state", serverID))
		}
		return srv.Status == osStatusActive, nil
	})
	// server 已从镜像启动或已失败，镜像都不再需要
	o.deleteImage(ctx, imageID)
	if err != nil {
		o.deleteServer(ctx, serverID)
		return nil, err
	}

	address, err := o.attachFloatingIP(ctx, serverID)
	if err != nil {
		o.deleteServer(ctx, serverID)
		return nil, newProvisionError(o.id, ProvisionAddress, err)
	}
	logger.Info().Str("server_id", serverID).Str("ip", address).Msg("Floating IP attached")

	o.sleep(o.cfg.RouterWait)
	return &ProvisionedInstance{ComputeID: serverID, IP: address}, nil
}

// attachFloatingIP 优先复用未绑定的浮动 IP，没有则从外部网络新建
func (o *OpenStack) attachFloatingIP(ctx context.Context, serverID string) (string, error) {
	fips, err := o.api.ListFloatingIPs(ctx)
	if err != nil {
		return "", fmt.Errorf("list floating ips: %w", err)
	}

	var chosen *osFloatingIP
	for i := range fips {
		if fips[i].PortID == "" {
			chosen = &fips[i]
			break
		}
	}
	if chosen == nil {
		extIDs, err := o.api.FindNetworks(ctx, o.cfg.ExternalNetwork)
		if err != nil {
			return "", fmt.Errorf("find external network %s: %w", o.cfg.ExternalNetwork, err)
		}
		if len(extIDs) == 0 {
			return "", fmt.Errorf("external network %s not found", o.cfg.ExternalNetwork)
		}
		chosen, err = o.api.CreateFloatingIP(ctx, extIDs[0])
		if err != nil {
			return "", fmt.Errorf("create floating ip: %w", err)
		}
	}

	if err := o.api.AssociateFloatingIP(ctx, chosen.ID, serverID); err != nil {
		return "", fmt.Errorf("associate floating ip %s: %w", chosen.Address, err)
	}
	return chosen.Address, nil
}

// IsAdmissibleNow 每次都重新读取配额和使用量，不缓存
func (o *OpenStack) IsAdmissibleNow(ctx context.Context, req AdmissionRequest) (bool, error) {
	hard, err := o.api.GetQuota(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota: %w", err)
	}
	srvs, err := o.api.ListServers(ctx, "")
	if err != nil {
		return false, fmt.Errorf("list servers: %w", err)
	}
	fips, err := o.api.ListFloatingIPs(ctx)
	if err != nil {
		return false, fmt.Errorf("list floating ips: %w", err)
	}

	usedFIPs := 0
	for _, f := range fips {
		if f.FixedIP != "" {
			usedFIPs++
		}
	}

	active := make([]string, 0, len(srvs))
	for _, s := range srvs {
		active = append(active, s.Flavor)
	}

	catalog := ledger.Catalog{}
	for _, name := range append(append([]string{req.Flavor}, active...), req.InFlight...) {
		if _, ok := catalog[name]; ok {
			continue
		}
		if shape, ok := o.shape(ctx, name); ok {
			catalog[name] = shape
		}
	}

	candidate, ok := catalog[req.Flavor]
	if !ok {
		return false, fmt.Errorf("unknown flavor %q", req.Flavor)
	}

	ceiling := ledger.Ceiling{
		Hard:         hard,
		MaxCores:     o.cfg.MaxCPUUsage,
		MaxInstances: o.cfg.MaxInstanceUsage,
	}
	available := ledger.ComputeAvailable(ctx, ceiling, active, req.InFlight, catalog, usedFIPs)
	admissible := ledger.IsAdmissible(candidate, available)

	zerolog.Ctx(ctx).Debug().
		Str("provider", o.id).
		Str("flavor", req.Flavor).
		Stringer("available", available).
		Bool("admissible", admissible).
		Msg("Admission checked")
	return admissible, nil
}

func (o *OpenStack) ListActiveResourceIDs(ctx context.Context) (map[string]struct{}, error) {
	srvs, err := o.api.ListServers(ctx, "")
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(srvs))
	for _, s := range srvs {
		ids[s.ID] = struct{}{}
	}
	return ids, nil
}

func (o *OpenStack) Terminate(ctx context.Context, computeIDs []string) error {
	var errs []error
	for _, id := range computeIDs {
		if err := o.api.DeleteServer(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("delete server %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (o *OpenStack) CoresFor(ctx context.Context, flavor string) int {
	shape, ok := o.shape(ctx, flavor)
	if !ok || shape.Cores < 1 {
		return 1
	}
	return shape.Cores
}

type cachedFlavor struct {
	id    string
	shape ledger.Shape
}

func (o *OpenStack) shape(ctx context.Context, key string) (ledger.Shape, bool) {
	f, ok := o.flavor(ctx, key)
	return f.shape, ok
}

// flavor 按 ID 或名称查 flavor，缓存未命中时刷新整个 flavor 列表
func (o *OpenStack) flavor(ctx context.Context, key string) (cachedFlavor, bool) {
	if v, ok := o.flavors.Get(key); ok {
		return v.(cachedFlavor), true
	}

	list, err := o.api.ListFlavors(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("provider", o.id).Msg("Failed to list flavors")
		return cachedFlavor{}, false
	}
	for _, f := range list {
		c := cachedFlavor{id: f.ID, shape: ledger.Shape{Name: f.Name, Cores: f.VCPUs, RAMMB: f.RAMMB}}
		o.flavors.Add(f.ID, c)
		o.flavors.Add(f.Name, c)
	}

	if v, ok := o.flavors.Get(key); ok {
		return v.(cachedFlavor), true
	}
	return cachedFlavor{}, false
}

// flavorRef 名称转为 flavor ID，查不到时原样使用
func (o *OpenStack) flavorRef(ctx context.Context, flavor string) string {
	if f, ok := o.flavor(ctx, flavor); ok {
		return f.id
	}
	return flavor
}

func (o *OpenStack) deleteImage(ctx context.Context, imageID string) {
	if err := o.api.DeleteImage(ctx, imageID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("image_id", imageID).Msg("Failed to delete image")
	}
}

func (o *OpenStack) deleteServer(ctx context.Context, serverID string) {
	if err := o.api.DeleteServer(ctx, serverID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("server_id", serverID).Msg("Failed to delete server")
	}
}

func exactName(srvs []osServer, name string) []osServer {
	out := srvs[:0:0]
	for _, s := range srvs {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
