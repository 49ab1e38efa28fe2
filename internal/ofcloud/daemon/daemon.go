// Package daemon 守护进程管理：pid 文件锁、后台启动、停止、重启、日志文件
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
)

const (
	checkInterval = time.Second
	killInterval  = 10 * time.Second
)

// Supervisor 管理后台 daemon 进程
type Supervisor struct {
	cfg        config.DaemonConfig
	executable string
	args       []string

	checkInterval time.Duration
	killInterval  time.Duration
	now           func() time.Time
}

// NewSupervisor args 为后台进程 run 子命令之后的参数
func NewSupervisor(cfg config.DaemonConfig, executable string, args []string) *Supervisor {
	return &Supervisor{
		cfg:           cfg,
		executable:    executable,
		args:          args,
		checkInterval: checkInterval,
		killInterval:  killInterval,
		now:           time.Now,
	}
}

// LogFiles 后台进程的标准输出和错误输出文件
func LogFiles(dir string, ts time.Time) (stdout, stderr string) {
	stamp := ts.Format("20060102150405")
	return filepath.Join(dir, "ofcloud_"+stamp+".log"), filepath.Join(dir, "ofcloud_error_"+stamp+".log")
}

// Running 返回 pid 文件记录的存活进程，没有则为 0
func (s *Supervisor) Running() (int, error) {
	pid, err := ReadPid(s.cfg.PidFile)
	if err != nil {
		return 0, err
	}
	if !processAlive(pid) {
		return 0, nil
	}
	return pid, nil
}

// Start 以新会话重新执行自身的 run 子命令，输出重定向到日志文件后立即返回
func (s *Supervisor) Start(ctx context.Context) (int, error) {
	logger := zerolog.Ctx(ctx)
	if pid, err := s.Running(); err != nil {
		return 0, err
	} else if pid != 0 {
		return 0, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
	}

	if err := os.MkdirAll(s.cfg.LogDir, 0o755); err != nil {
		return 0, fmt.Errorf("create log directory: %w", err)
	}
	stdoutPath, stderrPath := LogFiles(s.cfg.LogDir, s.now())
	stdout, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open error log file: %w", err)
	}
	defer stderr.Close()

	cmd := exec.Command(s.executable, append([]string{"run"}, s.args...)...)
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		logger.Warn().Err(err).Msg("Failed to release daemon process")
	}

	logger.Info().
		Int("pid", pid).
		Str("stdout", stdoutPath).
		Str("stderr", stderrPath).
		Msg("Daemon started")
	return pid, nil
}

// Stop 发送 SIGTERM，每秒检查一次，每 10 秒补发 SIGKILL，直到进程退出或超时
func (s *Supervisor) Stop(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	pid, err := s.Running()
	if err != nil {
		return err
	}
	if pid == 0 {
		s.removePidFile(ctx)
		logger.Info().Msg("Daemon is not running")
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	logger.Info().Int("pid", pid).Msg("Sent SIGTERM to daemon")

	timeout := s.cfg.StopTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	deadline := s.now().Add(timeout)
	lastKill := s.now()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if !processAlive(pid) {
			s.removePidFile(ctx)
			logger.Info().Int("pid", pid).Msg("Daemon stopped")
			return nil
		}
		now := s.now()
		if now.After(deadline) {
			return fmt.Errorf("daemon %d did not stop within %s", pid, timeout)
		}
		if now.Sub(lastKill) >= s.killInterval {
			lastKill = now
			if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
				logger.Warn().Err(err).Int("pid", pid).Msg("Failed to send SIGKILL")
			} else {
				logger.Warn().Int("pid", pid).Msg("Daemon still running, sent SIGKILL")
			}
		}
	}
}

// Restart 先停止再启动
func (s *Supervisor) Restart(ctx context.Context) (int, error) {
	if err := s.Stop(ctx); err != nil {
		return 0, err
	}
	return s.Start(ctx)
}

func (s *Supervisor) removePidFile(ctx context.Context) {
	if err := os.Remove(s.cfg.PidFile); err != nil && !os.IsNotExist(err) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("pid_file", s.cfg.PidFile).Msg("Failed to remove pid file")
	}
}

// Notify 通知 systemd，非 systemd 环境下为空操作
func Notify(ctx context.Context, state string) {
	sent, err := systemd.SdNotify(false, state)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("state", state).Msg("Failed to notify systemd")
		return
	}
	if sent {
		zerolog.Ctx(ctx).Debug().Str("state", state).Msg("Notified systemd")
	}
}

// NewLogWriter 全部日志写 stdout，warn 及以上同时写 stderr
func NewLogWriter(stdout, stderr io.Writer) zerolog.LevelWriter {
	return zerolog.MultiLevelWriter(stdout, &minLevelWriter{w: stderr, min: zerolog.WarnLevel})
}

type minLevelWriter struct {
	w   io.Writer
	min zerolog.Level
}

func (m *minLevelWriter) Write(p []byte) (int, error) {
	return m.w.Write(p)
}

func (m *minLevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < m.min {
		return len(p), nil
	}
	return m.w.Write(p)
}
