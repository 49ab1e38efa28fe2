package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning pid 文件已被另一个进程锁定
var ErrAlreadyRunning = errors.New("ofcloud daemon is already running")

// PidFile 带 flock 的 pid 文件，持有期间其他 daemon 无法启动
type PidFile struct {
	path string
	file *os.File
}

func NewPidFile(path string) *PidFile {
	return &PidFile{path: path}
}

func (p *PidFile) Path() string {
	return p.path
}

// TryLock 非阻塞加锁并写入当前 pid
func (p *PidFile) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	file, err := os.OpenFile(p.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open pid file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("lock pid file: %w", err)
	}

	if err := file.Truncate(0); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return fmt.Errorf("write pid file: %w", err)
	}

	p.file = file
	log.Debug().Str("pid_file", p.path).Msg("Pid file locked")
	return nil
}

// Unlock 释放锁并删除 pid 文件
func (p *PidFile) Unlock() error {
	if p.file == nil {
		return nil
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("pid_file", p.path).Msg("Failed to remove pid file")
	}
	if err := syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN); err != nil {
		log.Warn().Err(err).Str("pid_file", p.path).Msg("Failed to unlock pid file")
	}
	if err := p.file.Close(); err != nil {
		log.Warn().Err(err).Str("pid_file", p.path).Msg("Failed to close pid file")
	}
	p.file = nil
	return nil
}

// ReadPid 读取 pid 文件，文件不存在时返回 0
func ReadPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse pid file %s: %w", path, err)
	}
	return pid, nil
}

// processAlive signal 0 探测进程是否存在
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
