// Package config 负责加载 ofcloud 配置
//
// 加载顺序：YAML 文件 -> 默认值补齐（mergo）-> 环境变量覆盖。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Provider 类型
const (
	ProviderKindOpenStack = "openstack"
	ProviderKindEC2       = "ec2"
	ProviderKindLibvirt   = "libvirt"
)

type Config struct {
	// Address API 监听地址，环境变量 OFCLOUD_ADDRESS
	Address string `yaml:"address"`
	// DBPath SQLite 数据库路径，环境变量 OFCLOUD_DB_PATH
	DBPath string `yaml:"db_path"`
	// Tenant 写入实例环境变量 TENANT，也作为 capstan 包作者
	Tenant string `yaml:"tenant"`
	// UniqueServerName 用于拼接 OPENFOAM_CASE，区分多个 ofcloud 部署
	UniqueServerName string `yaml:"unique_server_name"`
	// MaxRetries 实例部署失败后的最大重试次数
	MaxRetries int `yaml:"max_retries"`

	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Boot      BootConfig       `yaml:"boot"`
	Daemon    DaemonConfig     `yaml:"daemon"`
	S3        S3Config         `yaml:"s3"`
	Snap      SnapConfig       `yaml:"snap"`
	Capstan   CapstanConfig    `yaml:"capstan"`
	NFS       NFSConfig        `yaml:"nfs"`
	Agent     AgentConfig      `yaml:"agent"`
	Providers []ProviderConfig `yaml:"providers"`
}

type SchedulerConfig struct {
	Interval           time.Duration `yaml:"interval"`
	MaxParallelDeploys int           `yaml:"max_parallel_deploys"`
}

// BootConfig 等待计算资源就绪的轮询参数
type BootConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

type DaemonConfig struct {
	PidFile     string        `yaml:"pid_file"`
	LogDir      string        `yaml:"log_dir"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type SnapConfig struct {
	URL      string         `yaml:"url"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

type InfluxDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type CapstanConfig struct {
	Path       string `yaml:"path"`
	Repository string `yaml:"repository"`
	ImageSize  string `yaml:"image_size"`
}

// NFSConfig 共享 case 目录
//   - Address: VM 内挂载使用的 NFS 服务地址
//   - ServerFolder: NFS 服务端导出目录
//   - LocalMount: 调度器本机上该导出目录的挂载点
type NFSConfig struct {
	Address      string `yaml:"address"`
	ServerFolder string `yaml:"server_folder"`
	LocalMount   string `yaml:"local_mount"`
}

type AgentConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig 按配置顺序参与准入
type ProviderConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	// NFS 为空的字段使用全局 NFS 配置
	NFS       NFSConfig        `yaml:"nfs"`
	OpenStack *OpenStackConfig `yaml:"openstack,omitempty"`
	EC2       *EC2Config       `yaml:"ec2,omitempty"`
	Libvirt   *LibvirtConfig   `yaml:"libvirt,omitempty"`
}

type OpenStackConfig struct {
	AuthURL    string `yaml:"auth_url"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	ProjectID  string `yaml:"project_id"`
	DomainName string `yaml:"domain_name"`
	Region     string `yaml:"region"`
	// NetworkPrefix 实例接入名为 {prefix}_network 的网络
	NetworkPrefix string `yaml:"network_prefix"`
	// ExternalNetwork 新建浮动 IP 使用的外部网络
	ExternalNetwork  string `yaml:"external_network"`
	MaxCPUUsage      int    `yaml:"max_cpu_usage"`
	MaxInstanceUsage int    `yaml:"max_instance_usage"`
	// RouterWait 绑定浮动 IP 后等待路由生效的时间
	RouterWait time.Duration `yaml:"router_wait"`
}

type EC2Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ImageID         string `yaml:"image_id"`
	InstanceType    string `yaml:"instance_type"`
	SecurityGroup   string `yaml:"security_group"`
	SubnetID        string `yaml:"subnet_id"`
	KeyName         string `yaml:"key_name"`
	// PublicKeyFile 非空时启动前导入为 KeyName
	PublicKeyFile    string `yaml:"public_key_file"`
	MaxCPUUsage      int    `yaml:"max_cpu_usage"`
	MaxInstanceUsage int    `yaml:"max_instance_usage"`
}

type LibvirtConfig struct {
	URI     string `yaml:"uri"`
	DiskDir string `yaml:"disk_dir"`
	Network string `yaml:"network"`
	// Flavors 本地 flavor 定义，key 为 flavor 名称
	Flavors          map[string]LibvirtFlavor `yaml:"flavors"`
	MaxInstanceUsage int                      `yaml:"max_instance_usage"`
}

type LibvirtFlavor struct {
	VCPUs int   `yaml:"vcpus"`
	RAMMB int64 `yaml:"ram_mb"`
}

// Default 返回默认配置
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Address:          "0.0.0.0:7777",
		DBPath:           "/var/lib/ofcloud/ofcloud.db",
		Tenant:           "ofcloud",
		UniqueServerName: "ofcloud",
		MaxRetries:       3,
		Scheduler: SchedulerConfig{
			Interval:           10 * time.Second,
			MaxParallelDeploys: 4,
		},
		Boot: BootConfig{
			PollInterval: 500 * time.Millisecond,
			MaxAttempts:  600,
		},
		Daemon: DaemonConfig{
			PidFile:     "/tmp/ofcloud.pid",
			LogDir:      "/tmp",
			StopTimeout: 2 * time.Minute,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Capstan: CapstanConfig{
			Path:       "capstan",
			Repository: home + "/.capstan/repository",
			ImageSize:  "500M",
		},
		Agent: AgentConfig{
			Port:    8000,
			Timeout: 30 * time.Second,
		},
	}
}

// Load 读取配置文件，path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, fmt.Errorf("merge default config: %w", err)
	}
	applyEnv(&cfg)

	for i := range cfg.Providers {
		if err := mergo.Merge(&cfg.Providers[i].NFS, cfg.NFS); err != nil {
			return nil, fmt.Errorf("merge nfs config of provider %s: %w", cfg.Providers[i].ID, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New 从 OFCLOUD_CONFIG 指定的文件加载
func New() (*Config, error) {
	return Load(os.Getenv("OFCLOUD_CONFIG"))
}

// Validate 校验 provider 列表
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true

		switch p.Kind {
		case ProviderKindOpenStack:
			if p.OpenStack == nil {
				return fmt.Errorf("provider %s: openstack section is required", p.ID)
			}
		case ProviderKindEC2:
			if p.EC2 == nil {
				return fmt.Errorf("provider %s: ec2 section is required", p.ID)
			}
		case ProviderKindLibvirt:
			if p.Libvirt == nil {
				return fmt.Errorf("provider %s: libvirt section is required", p.ID)
			}
		default:
			return fmt.Errorf("provider %s: unknown kind %q", p.ID, p.Kind)
		}
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Address = getEnv("OFCLOUD_ADDRESS", cfg.Address)
	cfg.DBPath = getEnv("OFCLOUD_DB_PATH", cfg.DBPath)
	cfg.Tenant = getEnv("OFCLOUD_TENANT", cfg.Tenant)
	cfg.Daemon.PidFile = getEnv("OFCLOUD_PID_FILE", cfg.Daemon.PidFile)
	cfg.Daemon.LogDir = getEnv("OFCLOUD_LOG_DIR", cfg.Daemon.LogDir)
	cfg.MaxRetries = getEnvInt("OFCLOUD_MAX_RETRIES", cfg.MaxRetries)
	cfg.S3.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", cfg.S3.AccessKeyID)
	cfg.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", cfg.S3.SecretAccessKey)
}

// getEnv 环境变量非空时覆盖
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
