package capstan

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// runCommand 在 dir 下执行命令，返回合并后的输出
type runCommand func(ctx context.Context, dir, name string, args ...string) (string, error)

// Options capstan 参数，零值使用默认
type Options struct {
	// Path capstan 可执行文件，默认 "capstan"
	Path string
	// Repository capstan 本地仓库，默认 ~/.capstan/repository
	Repository string
	// ImageSize 镜像大小，默认 500M
	ImageSize string
	// Author 写入包元数据
	Author string
	// WorkDir 包目录的父目录，默认系统临时目录
	WorkDir string
}

// Image 组装好的镜像
//   - Name: capstan 镜像名 temp/{package}
//   - Path: 镜像文件
type Image struct {
	Name string
	Path string
}

// Client 调用 capstan 命令行
type Client struct {
	opts    Options
	timeout time.Duration
	run     runCommand
}

var _ ImageBuilder = (*Client)(nil)

func New(opts Options) *Client {
	if opts.Path == "" {
		opts.Path = "capstan"
	}
	if opts.Repository == "" {
		home, _ := os.UserHomeDir()
		opts.Repository = filepath.Join(home, ".capstan", "repository")
	}
	if opts.ImageSize == "" {
		opts.ImageSize = "500M"
	}
	return &Client{
		opts:    opts,
		timeout: 30 * time.Minute,
		run:     execCommand,
	}
}

// WithTimeout 设置单条命令超时时间
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// ComposeBootImage 先 package init 再 package compose。
// 包目录只用于 compose，完成后删除；镜像留在 capstan 仓库中。
func (c *Client) ComposeBootImage(ctx context.Context, name, solver string) (*Image, error) {
	logger := zerolog.Ctx(ctx)

	deps, err := SolverDeps(solver)
	if err != nil {
		return nil, err
	}

	pkgDir, err := os.MkdirTemp(c.opts.WorkDir, "ofcloud-capstan-")
	if err != nil {
		return nil, fmt.Errorf("create package directory: %w", err)
	}
	defer os.RemoveAll(pkgDir)

	args := []string{"package", "init",
		"--name", name,
		"--title", name,
		"--author", c.opts.Author,
	}
	for _, d := range deps {
		args = append(args, "--require", d)
	}
	args = append(args, pkgDir)
	if output, err := c.exec(ctx, "", args...); err != nil {
		return nil, fmt.Errorf("capstan package init: %w, output: %s", err, output)
	}

	base := filepath.Base(pkgDir)
	imageName := path.Join("temp", base)
	output, err := c.exec(ctx, pkgDir, "package", "compose",
		"--size", c.opts.ImageSize,
		"--run", "--redirect=>>/run.log /cli/cli.so",
		"--pull-missing",
		imageName,
	)
	if err != nil {
		return nil, fmt.Errorf("capstan package compose %s: %w, output: %s", imageName, err, output)
	}

	image := &Image{
		Name: imageName,
		Path: filepath.Join(c.opts.Repository, "temp", base, base+".qemu"),
	}
	if _, err := os.Stat(image.Path); err != nil {
		return nil, fmt.Errorf("composed image %s: %w", image.Path, err)
	}

	logger.Info().
		Str("name", name).
		Str("solver", solver).
		Str("image", image.Path).
		Msg("Boot image composed")
	return image, nil
}

func (c *Client) exec(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.run(ctx, dir, c.opts.Path, args...)
}

func execCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}
