package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
	"github.com/jimyag/ofcloud/internal/ofcloud/ledger"
)

const (
	// ec2ProviderTag 标记由哪个 provider 创建，只统计和回收带该标记的实例
	ec2ProviderTag = "ofcloud-provider"
	ec2InstanceTag = "ofcloud-instance"
	ec2SimTag      = "ofcloud-simulation"
)

// ec2API EC2 provider 用到的 API，*ec2.Client 实现了它
type ec2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
	ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
}

// EC2 后端，使用预先制作好的 AMI，实例通过公网 IP 访问
type EC2 struct {
	id   string
	cfg  config.EC2Config
	nfs  config.NFSConfig
	boot config.BootConfig
	api  ec2API

	shapes *lru.Cache
}

var _ Provider = (*EC2)(nil)

// NewEC2 构造 EC2 provider，配置了 PublicKeyFile 时导入 key pair
func NewEC2(ctx context.Context, cfg config.ProviderConfig, boot config.BootConfig) (Provider, error) {
	if cfg.EC2 == nil {
		return nil, fmt.Errorf("ec2 section is required")
	}
	c := cfg.EC2

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := ec2.NewFromConfig(awsCfg, func(o *ec2.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})

	p, err := newEC2(cfg, boot, client)
	if err != nil {
		return nil, err
	}
	if c.PublicKeyFile != "" {
		if err := p.importKeyPair(ctx, c.PublicKeyFile); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func newEC2(cfg config.ProviderConfig, boot config.BootConfig, api ec2API) (*EC2, error) {
	cache, err := lru.New(flavorCacheSize)
	if err != nil {
		return nil, err
	}
	return &EC2{
		id:     cfg.ID,
		cfg:    *cfg.EC2,
		nfs:    cfg.NFS,
		boot:   boot,
		api:    api,
		shapes: cache,
	}, nil
}

func (e *EC2) ID() string            { return e.id }
func (e *EC2) Kind() string          { return config.ProviderKindEC2 }
func (e *EC2) NFS() config.NFSConfig { return e.nfs }

func (e *EC2) importKeyPair(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read public key %s: %w", path, err)
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		return fmt.Errorf("parse public key %s: %w", path, err)
	}

	_, err = e.api.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(e.cfg.KeyName),
		PublicKeyMaterial: ssh.MarshalAuthorizedKey(pub),
	})
	if err != nil && apiErrorCode(err) != "InvalidKeyPair.Duplicate" {
		return fmt.Errorf("import key pair %s: %w", e.cfg.KeyName, err)
	}
	return nil
}

func (e *EC2) PrepareCompute(ctx context.Context, req LaunchRequest) (*ProvisionedInstance, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("provider", e.id).
		Str("instance_id", req.InstanceID).
		Logger()

	name := req.ServerName()
	existing, err := e.describe(ctx, tagFilter("Name", name))
	if err != nil {
		return nil, newProvisionError(e.id, ProvisionCreate, err)
	}
	if len(existing) != 0 {
		return nil, alreadyExistsError(e.id, name)
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(e.cfg.ImageID),
		InstanceType: types.InstanceType(e.instanceType(ctx, req.Flavor)),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags: []types.Tag{
				{Key: aws.String("Name"), Value: aws.String(name)},
				{Key: aws.String(ec2ProviderTag), Value: aws.String(e.id)},
				{Key: aws.String(ec2InstanceTag), Value: aws.String(req.InstanceID)},
				{Key: aws.String(ec2SimTag), Value: aws.String(req.SimulationID)},
			},
		}},
	}
	if e.cfg.KeyName != "" {
		input.KeyName = aws.String(e.cfg.KeyName)
	}
	if e.cfg.SubnetID != "" {
		input.SubnetId = aws.String(e.cfg.SubnetID)
	}
	if sg := e.cfg.SecurityGroup; sg != "" {
		if strings.HasPrefix(sg, "sg-") {
			input.SecurityGroupIds = []string{sg}
		} else {
			input.SecurityGroups = []string{sg}
		}
	}

	out, err := e.api.RunInstances(ctx, input)
	if err != nil {
		return nil, newProvisionError(e.id, ProvisionCreate, err)
	}
	if len(out.Instances) != 1 {
		return nil, newProvisionError(e.id, ProvisionCreate,
			fmt.Errorf("run instances returned %d instances", len(out.Instances)))
	}
	instanceID := aws.ToString(out.Instances[0].InstanceId)

	matches, err := e.describe(ctx, tagFilter("Name", name))
	if err != nil {
		e.terminateQuietly(ctx, instanceID)
		return nil, newProvisionError(e.id, ProvisionCreate, err)
	}
	if len(matches) != 1 {
		e.terminateQuietly(ctx, instanceID)
		return nil, duplicateNameError(e.id, name, len(matches))
	}
	logger.Info().Str("ec2_instance_id", instanceID).Str("name", name).Msg("Instance launched, waiting for running")

	var address string
	err = waitActive(ctx, e.id, e.boot.PollInterval, e.boot.MaxAttempts, func(ctx context.Context) (bool, error) {
		insts, err := e.describe(ctx, nil, instanceID)
		if err != nil {
			return false, err
		}
		if len(insts) == 0 || insts[0].State == nil {
			return false, nil
		}
		inst := insts[0]
		switch inst.State.Name {
		case types.InstanceStateNameRunning:
			address = aws.ToString(inst.PublicIpAddress)
			return address != "", nil
		case types.InstanceStateNamePending:
			return false, nil
		default:
			return false, newProvisionError(e.id, ProvisionBootFailure,
				fmt.Errorf("instance %s entered state %s", instanceID, inst.State.Name))
		}
	})
	if err != nil {
		e.terminateQuietly(ctx, instanceID)
		return nil, err
	}

	logger.Info().Str("ec2_instance_id", instanceID).Str("ip", address).Msg("Instance running")
	return &ProvisionedInstance{ComputeID: instanceID, IP: address}, nil
}

// IsAdmissibleNow EC2 没有统一的配额查询，只按软上限和实例规格计算
func (e *EC2) IsAdmissibleNow(ctx context.Context, req AdmissionRequest) (bool, error) {
	insts, err := e.describe(ctx, tagFilter(ec2ProviderTag, e.id))
	if err != nil {
		return false, fmt.Errorf("describe instances: %w", err)
	}

	active := make([]string, 0, len(insts))
	for _, inst := range insts {
		active = append(active, string(inst.InstanceType))
	}

	flavor := e.instanceType(ctx, req.Flavor)
	inFlight := make([]string, 0, len(req.InFlight))
	for _, f := range req.InFlight {
		inFlight = append(inFlight, e.instanceType(ctx, f))
	}

	catalog := ledger.Catalog{}
	for _, name := range append(append([]string{flavor}, active...), inFlight...) {
		if _, ok := catalog[name]; ok {
			continue
		}
		if shape, ok := e.shape(ctx, name); ok {
			catalog[name] = shape
		}
	}
	candidate, ok := catalog[flavor]
	if !ok {
		return false, fmt.Errorf("unknown instance type %q", flavor)
	}

	ceiling := ledger.Ceiling{
		Hard:         ledger.Quota{Cores: -1, Instances: -1, FloatingIPs: -1, RAMMB: -1},
		MaxCores:     e.cfg.MaxCPUUsage,
		MaxInstances: e.cfg.MaxInstanceUsage,
	}
	available := ledger.ComputeAvailable(ctx, ceiling, active, inFlight, catalog, 0)
	admissible := ledger.IsAdmissible(candidate, available)

	zerolog.Ctx(ctx).Debug().
		Str("provider", e.id).
		Str("instance_type", flavor).
		Stringer("available", available).
		Bool("admissible", admissible).
		Msg("Admission checked")
	return admissible, nil
}

func (e *EC2) ListActiveResourceIDs(ctx context.Context) (map[string]struct{}, error) {
	insts, err := e.describe(ctx, tagFilter(ec2ProviderTag, e.id))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(insts))
	for _, inst := range insts {
		ids[aws.ToString(inst.InstanceId)] = struct{}{}
	}
	return ids, nil
}

func (e *EC2) Terminate(ctx context.Context, computeIDs []string) error {
	var errs []error
	for _, id := range computeIDs {
		_, err := e.api.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}})
		if err != nil && apiErrorCode(err) != "InvalidInstanceID.NotFound" {
			errs = append(errs, fmt.Errorf("terminate instance %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (e *EC2) CoresFor(ctx context.Context, flavor string) int {
	shape, ok := e.shape(ctx, e.instanceType(ctx, flavor))
	if !ok || shape.Cores < 1 {
		return 1
	}
	return shape.Cores
}

// instanceType flavor 本身是合法实例类型时直接使用，否则用配置的默认类型
func (e *EC2) instanceType(ctx context.Context, flavor string) string {
	if flavor != "" {
		if _, ok := e.shape(ctx, flavor); ok {
			return flavor
		}
	}
	return e.cfg.InstanceType
}

func (e *EC2) shape(ctx context.Context, instanceType string) (ledger.Shape, bool) {
	if v, ok := e.shapes.Get(instanceType); ok {
		return v.(ledger.Shape), true
	}

	out, err := e.api.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []types.InstanceType{types.InstanceType(instanceType)},
	})
	if err != nil || len(out.InstanceTypes) == 0 {
		zerolog.Ctx(ctx).Debug().Err(err).Str("instance_type", instanceType).Msg("Instance type not found")
		return ledger.Shape{}, false
	}

	info := out.InstanceTypes[0]
	shape := ledger.Shape{Name: instanceType, Cores: 1}
	if info.VCpuInfo != nil && info.VCpuInfo.DefaultVCpus != nil {
		shape.Cores = int(*info.VCpuInfo.DefaultVCpus)
	}
	if info.MemoryInfo != nil && info.MemoryInfo.SizeInMiB != nil {
		shape.RAMMB = *info.MemoryInfo.SizeInMiB
	}
	e.shapes.Add(instanceType, shape)
	return shape, true
}

// describe 列出 pending/running 的实例，ids 非空时按 ID 查询
func (e *EC2) describe(ctx context.Context, filter *types.Filter, ids ...string) ([]types.Instance, error) {
	input := &ec2.DescribeInstancesInput{InstanceIds: ids}
	if len(ids) == 0 {
		input.Filters = []types.Filter{{
			Name:   aws.String("instance-state-name"),
			Values: []string{string(types.InstanceStateNamePending), string(types.InstanceStateNameRunning)},
		}}
	}
	if filter != nil {
		input.Filters = append(input.Filters, *filter)
	}

	var instances []types.Instance
	for {
		out, err := e.api.DescribeInstances(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, rsv := range out.Reservations {
			instances = append(instances, rsv.Instances...)
		}
		if out.NextToken == nil {
			return instances, nil
		}
		input.NextToken = out.NextToken
	}
}

func (e *EC2) terminateQuietly(ctx context.Context, id string) {
	if err := e.Terminate(ctx, []string{id}); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("ec2_instance_id", id).Msg("Failed to terminate instance")
	}
}

func tagFilter(key, value string) *types.Filter {
	return &types.Filter{Name: aws.String("tag:" + key), Values: []string{value}}
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
