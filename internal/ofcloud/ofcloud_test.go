package ofcloud

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimyag/ofcloud/internal/ofcloud/config"
	"github.com/jimyag/ofcloud/internal/ofcloud/daemon"
)

func TestServer(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Address = "127.0.0.1:0"
	cfg.DBPath = filepath.Join(dir, "ofcloud.db")
	cfg.Daemon.PidFile = filepath.Join(dir, "ofcloud.pid")
	cfg.S3.Region = "us-east-1"

	ctx := NewLogger().WithContext(context.Background())
	server, err := New(ctx, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "ofcloud Server", server.Name())

	// 已有进程持有 pid 文件锁时拒绝启动
	held := daemon.NewPidFile(cfg.Daemon.PidFile)
	require.NoError(t, held.TryLock())
	t.Cleanup(func() { _ = held.Unlock() })

	err = server.Run(ctx)
	assert.ErrorIs(t, err, daemon.ErrAlreadyRunning)

	assert.NoError(t, server.Shutdown(ctx))
	assert.NoError(t, server.repo.Close())
}
