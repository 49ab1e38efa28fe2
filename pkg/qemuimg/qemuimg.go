package qemuimg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Client 封装 qemu-img 命令行工具的操作
type Client struct {
	qemuImgPath string
	timeout     time.Duration
}

var _ QemuImgClient = (*Client)(nil)

// ImageInfo 是 qemu-img info --output=json 的子集
type ImageInfo struct {
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	VirtualSize uint64 `json:"virtual-size"`
	ActualSize  uint64 `json:"actual-size"`
	BackingFile string `json:"backing-filename,omitempty"`
}

// New 创建新的 qemuimg client
// qemuImgPath 是 qemu-img 的路径，如果为空则使用默认的 "qemu-img"
func New(qemuImgPath string) *Client {
	if qemuImgPath == "" {
		qemuImgPath = "qemu-img"
	}
	return &Client{
		qemuImgPath: qemuImgPath,
		timeout:     10 * time.Minute,
	}
}

// WithTimeout 设置操作超时时间
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// CreateFromBackingFile 从 backing file 创建新镜像
// 新镜像只记录与 backing file 的差异，多个实例可以共享同一个启动镜像
func (c *Client) CreateFromBackingFile(ctx context.Context, format, backingFormat, backingFile, outputFile string) error {
	output, err := c.run(ctx, "create",
		"-f", format,
		"-F", backingFormat,
		"-b", backingFile,
		outputFile,
	)
	if err != nil {
		return fmt.Errorf("failed to create image from backing file %s: %w, output: %s", backingFile, err, output)
	}
	return nil
}

// Info 获取镜像信息
func (c *Client) Info(ctx context.Context, imagePath string) (*ImageInfo, error) {
	output, err := c.run(ctx, "info", "--output=json", imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get image info for %s: %w, output: %s", imagePath, err, output)
	}
	return parseInfo(output)
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, c.qemuImgPath, args...).CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

func parseInfo(output string) (*ImageInfo, error) {
	var info ImageInfo
	if err := json.Unmarshal([]byte(output), &info); err != nil {
		return nil, fmt.Errorf("failed to parse qemu-img info output: %w", err)
	}
	if info.Format == "" {
		return nil, fmt.Errorf("qemu-img info output has no format")
	}
	return &info, nil
}
