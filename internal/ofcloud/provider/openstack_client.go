package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/extensions/quotasets"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/flavors"
	"github.com/gophercloud/gophercloud/openstack/compute/v2/servers"
	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/imagedata"
	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/images"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/extensions/layer3/floatingips"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/networks"
	"github.com/gophercloud/gophercloud/openstack/networking/v2/ports"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
	"github.com/jimyag/ofcloud/internal/ofcloud/ledger"
)

// osServer nova server 的子集
type osServer struct {
	ID     string
	Name   string
	Status string
	// Flavor flavor ID，新版本 API 只返回 original_name
	Flavor string
}

type osFlavor struct {
	ID    string
	Name  string
	VCPUs int
	RAMMB int64
}

type osFloatingIP struct {
	ID      string
	Address string
	PortID  string
	FixedIP string
}

// openStackAPI OpenStack provider 用到的 API
type openStackAPI interface {
	UploadImage(ctx context.Context, name, path string) (string, error)
	DeleteImage(ctx context.Context, id string) error
	FindNetworks(ctx context.Context, name string) ([]string, error)
	CreateServer(ctx context.Context, name, imageID, flavorRef, networkID string) (string, error)
	ListServers(ctx context.Context, name string) ([]osServer, error)
	GetServer(ctx context.Context, id string) (*osServer, error)
	DeleteServer(ctx context.Context, id string) error
	GetQuota(ctx context.Context) (ledger.Quota, error)
	ListFlavors(ctx context.Context) ([]osFlavor, error)
	ListFloatingIPs(ctx context.Context) ([]osFloatingIP, error)
	CreateFloatingIP(ctx context.Context, networkID string) (*osFloatingIP, error)
	AssociateFloatingIP(ctx context.Context, floatingIPID, serverID string) error
}

// gopherClient 基于 gophercloud 的实现
type gopherClient struct {
	projectID string
	compute   *gophercloud.ServiceClient
	network   *gophercloud.ServiceClient
	image     *gophercloud.ServiceClient
}

var _ openStackAPI = (*gopherClient)(nil)

func newGopherClient(cfg *config.OpenStackConfig) (*gopherClient, error) {
	provider, err := openstack.AuthenticatedClient(gophercloud.AuthOptions{
		IdentityEndpoint: cfg.AuthURL,
		Username:         cfg.Username,
		Password:         cfg.Password,
		DomainName:       cfg.DomainName,
		TenantID:         cfg.ProjectID,
		AllowReauth:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("authenticate to %s: %w", cfg.AuthURL, err)
	}

	eo := gophercloud.EndpointOpts{Region: cfg.Region}
	compute, err := openstack.NewComputeV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("create compute client: %w", err)
	}
	network, err := openstack.NewNetworkV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("create network client: %w", err)
	}
	image, err := openstack.NewImageServiceV2(provider, eo)
	if err != nil {
		return nil, fmt.Errorf("create image client: %w", err)
	}

	return &gopherClient{
		projectID: cfg.ProjectID,
		compute:   compute,
		network:   network,
		image:     image,
	}, nil
}

func (c *gopherClient) UploadImage(ctx context.Context, name, path string) (string, error) {
	img, err := images.Create(c.image, images.CreateOpts{
		Name:            name,
		ContainerFormat: "bare",
		DiskFormat:      "qcow2",
	}).Extract()
	if err != nil {
		return "", fmt.Errorf("create image %s: %w", name, err)
	}

	f, err := os.Open(path)
	if err != nil {
		_ = images.Delete(c.image, img.ID).ExtractErr()
		return "", fmt.Errorf("open image file %s: %w", path, err)
	}
	defer f.Close()

	if err := imagedata.Upload(c.image, img.ID, f).ExtractErr(); err != nil {
		_ = images.Delete(c.image, img.ID).ExtractErr()
		return "", fmt.Errorf("upload image data %s: %w", name, err)
	}
	return img.ID, nil
}

func (c *gopherClient) DeleteImage(ctx context.Context, id string) error {
	return images.Delete(c.image, id).ExtractErr()
}

func (c *gopherClient) FindNetworks(ctx context.Context, name string) ([]string, error) {
	pages, err := networks.List(c.network, networks.ListOpts{Name: name}).AllPages()
	if err != nil {
		return nil, err
	}
	nets, err := networks.ExtractNetworks(pages)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(nets))
	for _, n := range nets {
		ids = append(ids, n.ID)
	}
	return ids, nil
}

func (c *gopherClient) CreateServer(ctx context.Context, name, imageID, flavorRef, networkID string) (string, error) {
	srv, err := servers.Create(c.compute, servers.CreateOpts{
		Name:      name,
		ImageRef:  imageID,
		FlavorRef: flavorRef,
		Networks:  []servers.Network{{UUID: networkID}},
	}).Extract()
	if err != nil {
		return "", err
	}
	return srv.ID, nil
}

func (c *gopherClient) ListServers(ctx context.Context, name string) ([]osServer, error) {
	opts := servers.ListOpts{}
	if name != "" {
		opts.Name = name
	}
	pages, err := servers.List(c.compute, opts).AllPages()
	if err != nil {
		return nil, err
	}
	list, err := servers.ExtractServers(pages)
	if err != nil {
		return nil, err
	}
	result := make([]osServer, 0, len(list))
	for i := range list {
		result = append(result, toOSServer(&list[i]))
	}
	return result, nil
}

func (c *gopherClient) GetServer(ctx context.Context, id string) (*osServer, error) {
	srv, err := servers.Get(c.compute, id).Extract()
	if err != nil {
		return nil, err
	}
	s := toOSServer(srv)
	return &s, nil
}

func (c *gopherClient) DeleteServer(ctx context.Context, id string) error {
	err := servers.Delete(c.compute, id).ExtractErr()
	if _, ok := err.(gophercloud.ErrDefault404); ok {
		return nil
	}
	return err
}

func (c *gopherClient) GetQuota(ctx context.Context) (ledger.Quota, error) {
	qs, err := quotasets.Get(c.compute, c.projectID).Extract()
	if err != nil {
		return ledger.Quota{}, err
	}
	return ledger.Quota{
		Cores:       qs.Cores,
		Instances:   qs.Instances,
		FloatingIPs: qs.FloatingIPs,
		RAMMB:       int64(qs.RAM),
	}, nil
}

func (c *gopherClient) ListFlavors(ctx context.Context) ([]osFlavor, error) {
	pages, err := flavors.ListDetail(c.compute, flavors.ListOpts{AccessType: flavors.AllAccess}).AllPages()
	if err != nil {
		return nil, err
	}
	list, err := flavors.ExtractFlavors(pages)
	if err != nil {
		return nil, err
	}
	result := make([]osFlavor, 0, len(list))
	for _, f := range list {
		result = append(result, osFlavor{ID: f.ID, Name: f.Name, VCPUs: f.VCPUs, RAMMB: int64(f.RAM)})
	}
	return result, nil
}

func (c *gopherClient) ListFloatingIPs(ctx context.Context) ([]osFloatingIP, error) {
	pages, err := floatingips.List(c.network, floatingips.ListOpts{ProjectID: c.projectID}).AllPages()
	if err != nil {
		return nil, err
	}
	list, err := floatingips.ExtractFloatingIPs(pages)
	if err != nil {
		return nil, err
	}
	result := make([]osFloatingIP, 0, len(list))
	for _, f := range list {
		result = append(result, osFloatingIP{ID: f.ID, Address: f.FloatingIP, PortID: f.PortID, FixedIP: f.FixedIP})
	}
	return result, nil
}

func (c *gopherClient) CreateFloatingIP(ctx context.Context, networkID string) (*osFloatingIP, error) {
	f, err := floatingips.Create(c.network, floatingips.CreateOpts{FloatingNetworkID: networkID}).Extract()
	if err != nil {
		return nil, err
	}
	return &osFloatingIP{ID: f.ID, Address: f.FloatingIP, PortID: f.PortID, FixedIP: f.FixedIP}, nil
}

func (c *gopherClient) AssociateFloatingIP(ctx context.Context, floatingIPID, serverID string) error {
	pages, err := ports.List(c.network, ports.ListOpts{DeviceID: serverID}).AllPages()
	if err != nil {
		return err
	}
	list, err := ports.ExtractPorts(pages)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("server %s has no port", serverID)
	}
	portID := list[0].ID
	_, err = floatingips.Update(c.network, floatingIPID, floatingips.UpdateOpts{PortID: &portID}).Extract()
	return err
}

func toOSServer(s *servers.Server) osServer {
	out := osServer{ID: s.ID, Name: s.Name, Status: s.Status}
	if id, ok := s.Flavor["id"].(string); ok {
		out.Flavor = id
	} else if name, ok := s.Flavor["original_name"].(string); ok {
		out.Flavor = name
	}
	return out
}
