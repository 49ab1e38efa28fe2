// Package ofcloud 提供 ofcloud 守护进程的主入口和初始化逻辑
package ofcloud

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jimmicro/grace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/api"
	"github.com/jimyag/ofcloud/internal/ofcloud/config"
	"github.com/jimyag/ofcloud/internal/ofcloud/daemon"
	"github.com/jimyag/ofcloud/internal/ofcloud/lifecycle"
	"github.com/jimyag/ofcloud/internal/ofcloud/metrics"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository"
	"github.com/jimyag/ofcloud/internal/ofcloud/scheduler"
	"github.com/jimyag/ofcloud/internal/ofcloud/service"
	"github.com/jimyag/ofcloud/pkg/capstan"
	"github.com/jimyag/ofcloud/pkg/casefile"
	"github.com/jimyag/ofcloud/pkg/osvagent"
	"github.com/jimyag/ofcloud/pkg/snap"
)

type Server struct {
	cfg       *config.Config
	repo      *repository.Repository
	api       *api.API
	scheduler *scheduler.SchedulerContext
	pidFile   *daemon.PidFile
}

// NewLogger 进程 logger，warn 及以上同时写 stderr
func NewLogger() zerolog.Logger {
	logger := zerolog.New(daemon.NewLogWriter(os.Stdout, os.Stderr)).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	logger := zerolog.Ctx(ctx)

	// 1. 数据库
	repo, err := repository.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	instances := repository.NewInstanceRepository(repo.DB())
	simulations := repository.NewSimulationRepository(repo.DB())
	logger.Info().Str("db_path", cfg.DBPath).Msg("Repository opened")

	// 2. 云后端，按配置顺序参与准入
	built, err := provider.DefaultRegistry().Build(ctx, cfg.Providers, cfg.Boot)
	if err != nil {
		repo.Close()
		return nil, err
	}
	providers := provider.NewSet(built...)
	for _, p := range providers.All() {
		logger.Info().Str("provider", p.ID()).Str("kind", p.Kind()).Msg("Provider configured")
	}

	// 3. 外部能力：case 文件、镜像、虚拟机 agent、指标采集
	fetcher, err := casefile.NewS3Fetcher(ctx, casefile.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("create s3 fetcher: %w", err)
	}
	images := capstan.New(capstan.Options{
		Path:       cfg.Capstan.Path,
		Repository: cfg.Capstan.Repository,
		ImageSize:  cfg.Capstan.ImageSize,
		Author:     cfg.Tenant,
	})
	agents := osvagent.New(osvagent.Options{
		Port:    cfg.Agent.Port,
		Timeout: cfg.Agent.Timeout,
		Logger:  logger,
	})
	var collector snap.MetricsCollector
	if cfg.Snap.URL != "" {
		collector = snap.New(snap.Options{
			URL:       cfg.Snap.URL,
			AgentPort: cfg.Agent.Port,
			InfluxDB: snap.InfluxDB{
				Host:     cfg.Snap.InfluxDB.Host,
				Port:     cfg.Snap.InfluxDB.Port,
				Database: cfg.Snap.InfluxDB.Database,
				User:     cfg.Snap.InfluxDB.User,
				Password: cfg.Snap.InfluxDB.Password,
			},
			Logger: logger,
		})
	} else {
		logger.Warn().Msg("Snap url is not configured, metrics collection disabled")
	}

	// 4. 调度指标
	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	// 5. 状态机和调度循环
	lc := lifecycle.New(lifecycle.Deps{
		Instances:   instances,
		Simulations: simulations,
		Providers:   providers,
		Files:       casefile.New(fetcher),
		Images:      images,
		Agents:      agents.Connector(),
		Collector:   collector,
		Metrics:     m,
	}, lifecycle.Options{
		MaxRetries:       cfg.MaxRetries,
		Tenant:           cfg.Tenant,
		UniqueServerName: cfg.UniqueServerName,
	})
	sched := scheduler.New(lc, instances, m, scheduler.Options{
		Interval:           cfg.Scheduler.Interval,
		MaxParallelDeploys: cfg.Scheduler.MaxParallelDeploys,
	})

	// 6. API
	apiInstance, err := api.New(
		cfg.Address,
		service.NewSimulationService(simulations, instances, providers, collector),
		service.NewInstanceService(instances, agents.Connector()),
		prometheus.DefaultGatherer,
	)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &Server{
		cfg:       cfg,
		repo:      repo,
		api:       apiInstance,
		scheduler: sched,
		pidFile:   daemon.NewPidFile(cfg.Daemon.PidFile),
	}, nil
}

// Run 持有 pid 文件锁运行 API 和调度循环，收到退出信号后返回
func (s *Server) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	if err := s.pidFile.TryLock(); err != nil {
		return err
	}
	defer s.pidFile.Unlock()
	defer s.repo.Close()

	// 使用 grace.Shepherd 管理服务生命周期
	services := []grace.Grace{
		s.api,
		s.scheduler,
	}
	shepherd := grace.NewShepherd(
		services,
		grace.WithTimeout(s.cfg.Daemon.StopTimeout),
		grace.WithLogger(&zerologLogger{}),
	)

	logger.Info().Str("address", s.cfg.Address).Int("pid", os.Getpid()).Msg("ofcloud started")
	daemon.Notify(ctx, "READY=1")
	shepherd.Start(ctx)
	daemon.Notify(ctx, "STOPPING=1")
	logger.Info().Msg("ofcloud stopped")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.scheduler.Shutdown(ctx); err != nil {
		return err
	}
	return s.api.Shutdown(ctx)
}

// Name 实现 grace.Grace 接口
func (s *Server) Name() string {
	return "ofcloud Server"
}

// zerologLogger 实现 grace.Logger 接口
type zerologLogger struct{}

func (l *zerologLogger) Info(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Info()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}

func (l *zerologLogger) Error(msg string, args ...interface{}) {
	logger := zerolog.DefaultContextLogger.Error()
	if len(args) > 0 {
		logger.Msgf(msg, args...)
	} else {
		logger.Msg(msg)
	}
}
