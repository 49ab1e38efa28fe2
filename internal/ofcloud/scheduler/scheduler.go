// Package scheduler 调度循环
//
// 每个 tick 并发执行四个 pass：shutdown、reconstruct、prepare、run。
// 各 pass 按状态读取互不相交的实例集合。同名 pass 上一轮未结束时本轮跳过，不排队。
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/jimyag/ofcloud/internal/ofcloud/entity"
	"github.com/jimyag/ofcloud/internal/ofcloud/lifecycle"
	"github.com/jimyag/ofcloud/internal/ofcloud/metrics"
	"github.com/jimyag/ofcloud/internal/ofcloud/provider"
	"github.com/jimyag/ofcloud/internal/ofcloud/repository"
)

// Pass 调度 pass 名称
type Pass string

const (
	PassShutdown    Pass = "shutdown"
	PassReconstruct Pass = "reconstruct"
	PassPrepare     Pass = "prepare"
	PassRun         Pass = "run"
)

// Passes 每个 tick 启动的 pass
var Passes = []Pass{PassShutdown, PassReconstruct, PassPrepare, PassRun}

// Options 调度参数
type Options struct {
	Interval           time.Duration
	MaxParallelDeploys int
}

// SchedulerContext 持有调度循环的全部状态，一个 daemon 一个
type SchedulerContext struct {
	lifecycle *lifecycle.Lifecycle
	instances repository.InstanceRepository
	providers *provider.Set
	metrics   *metrics.Metrics
	opts      Options

	// guards 每个 pass 一个，保证同名 pass 不重叠
	guards map[Pass]*semaphore.Weighted
	wg     sync.WaitGroup

	// mu 保护 stopped，Shutdown 之后不再有 wg.Add
	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
}

func New(lc *lifecycle.Lifecycle, instances repository.InstanceRepository, m *metrics.Metrics, opts Options) *SchedulerContext {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.MaxParallelDeploys < 1 {
		opts.MaxParallelDeploys = 1
	}
	guards := make(map[Pass]*semaphore.Weighted, len(Passes))
	for _, p := range Passes {
		guards[p] = semaphore.NewWeighted(1)
	}
	return &SchedulerContext{
		lifecycle: lc,
		instances: instances,
		providers: lc.Providers(),
		metrics:   m,
		opts:      opts,
		guards:    guards,
		stop:      make(chan struct{}),
	}
}

// Name 实现 grace.Grace 接口
func (s *SchedulerContext) Name() string {
	return "Scheduler"
}

// Run 按固定间隔触发 tick，直到 ctx 取消或 Shutdown
func (s *SchedulerContext) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	logger.Info().
		Dur("interval", s.opts.Interval).
		Int("providers", len(s.providers.All())).
		Msg("Scheduler started")

	if _, err := s.lifecycle.RecoverInterrupted(context.WithoutCancel(ctx)); err != nil {
		logger.Error().Err(err).Msg("Failed to recover interrupted deployments")
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Scheduler context canceled")
			return nil
		case <-s.stop:
			logger.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Shutdown 停止新的 tick，等待进行中的 pass 完成
func (s *SchedulerContext) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("scheduler passes did not finish before shutdown timeout")
	}
}

// Tick 启动一轮 pass，不等待其完成。
// pass 不继承 ctx 的取消：退出信号只阻止新的 tick，进行中的状态转换跑完为止。
func (s *SchedulerContext) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.wg.Add(len(Passes))
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	s.refreshCounts(ctx)
	for _, pass := range Passes {
		pass := pass
		go func() {
			defer s.wg.Done()
			s.RunPass(ctx, pass)
		}()
	}
}

// Wait 等待所有已启动的 pass 结束
func (s *SchedulerContext) Wait() {
	s.wg.Wait()
}

// RunPass 同步执行一个 pass，同名 pass 正在执行时直接返回 false
func (s *SchedulerContext) RunPass(ctx context.Context, pass Pass) bool {
	guard, ok := s.guards[pass]
	if !ok {
		return false
	}
	logger := zerolog.Ctx(ctx).With().Str("pass", string(pass)).Logger()
	if !guard.TryAcquire(1) {
		s.metrics.ObserveSkip(string(pass))
		logger.Debug().Msg("Previous pass still running, skipped")
		return false
	}
	defer guard.Release(1)

	ctx = logger.WithContext(ctx)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Pass panicked")
		}
		s.metrics.ObservePass(string(pass), time.Since(start))
	}()

	switch pass {
	case PassShutdown:
		s.shutdownPass(ctx)
	case PassReconstruct:
		s.reconstructPass(ctx)
	case PassPrepare:
		s.preparePass(ctx)
	case PassRun:
		s.runPass(ctx)
	}
	return true
}

func (s *SchedulerContext) refreshCounts(ctx context.Context) {
	counts, err := s.instances.CountByStatus(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to count instances by status")
		return
	}
	statuses := make([]string, len(entity.AllInstanceStatuses))
	for i, st := range entity.AllInstanceStatuses {
		statuses[i] = st.String()
	}
	s.metrics.SetInstanceCounts(statuses, counts)
}
