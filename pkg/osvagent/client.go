package osvagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/pkg/retryhttp"
)

const (
	// DefaultPort OSv httpserver 端口
	DefaultPort = 8000

	mountTool        = "/tools/mount-nfs.so"
	threadTerminated = "terminated"
)

// Options 零值使用默认
type Options struct {
	Port    int
	Timeout time.Duration
	// WaitUpAttempts WaitUp 的最大探测次数
	WaitUpAttempts int
	// WaitUpInterval WaitUp 两次探测之间的间隔
	WaitUpInterval time.Duration
	Logger         *zerolog.Logger
}

// Client 所有虚拟机共享的 HTTP 客户端
//   - http: 幂等请求，连接失败和 5xx 会重试
//   - once: 启动命令，不重试，避免重复执行
//   - probe: WaitUp 使用，重试次数更多
type Client struct {
	port  int
	http  *retryablehttp.Client
	once  *retryablehttp.Client
	probe *retryablehttp.Client
}

func New(opts Options) *Client {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.WaitUpAttempts == 0 {
		opts.WaitUpAttempts = 50
	}
	if opts.WaitUpInterval == 0 {
		opts.WaitUpInterval = 100 * time.Millisecond
	}
	return &Client{
		port: opts.Port,
		http: retryhttp.New(retryhttp.Options{
			Timeout:      opts.Timeout,
			RetryMax:     3,
			RetryWaitMin: 200 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			Logger:       opts.Logger,
		}),
		once: retryhttp.New(retryhttp.Options{Timeout: opts.Timeout, Logger: opts.Logger}),
		probe: retryhttp.New(retryhttp.Options{
			Timeout:      opts.Timeout,
			RetryMax:     opts.WaitUpAttempts - 1,
			RetryWaitMin: opts.WaitUpInterval,
			RetryWaitMax: opts.WaitUpInterval,
			Logger:       opts.Logger,
		}),
	}
}

// Agent 返回 ip 对应的虚拟机
func (c *Client) Agent(ip string) InstanceAgent {
	return &Agent{client: c, base: fmt.Sprintf("http://%s:%d", ip, c.port)}
}

// Connector 返回 Agent 的函数形式
func (c *Client) Connector() Connector {
	return c.Agent
}

// Thread /os/threads 返回的线程
type Thread struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status"`
}

type threadList struct {
	List []Thread `json:"list"`
}

// ResponseError 非 200 响应
type ResponseError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Agent 单个虚拟机
type Agent struct {
	client *Client
	base   string
}

var _ InstanceAgent = (*Agent)(nil)

func (a *Agent) WaitUp(ctx context.Context) error {
	_, err := a.do(ctx, a.client.probe, http.MethodGet, "/os/uptime", nil)
	if err != nil {
		return fmt.Errorf("wait for agent %s: %w", a.base, err)
	}
	return nil
}

func (a *Agent) SetEnv(ctx context.Context, name, value string) error {
	_, err := a.do(ctx, a.client.http, http.MethodPost, "/env/"+url.PathEscape(name), url.Values{"val": {value}})
	if err != nil {
		return fmt.Errorf("set env %s: %w", name, err)
	}
	return nil
}

func (a *Agent) Mount(ctx context.Context, remote, mountPoint string) error {
	command := fmt.Sprintf("%s %s %s", mountTool, remote, mountPoint)
	if _, err := a.RunCommand(ctx, command); err != nil {
		return fmt.Errorf("mount %s: %w", remote, err)
	}
	return nil
}

// RunCommand 返回值是带引号的线程 ID，例如 "231"
func (a *Agent) RunCommand(ctx context.Context, command string) (int64, error) {
	body, err := a.do(ctx, a.client.once, http.MethodPut, "/app/", url.Values{"command": {command}})
	if err != nil {
		return 0, fmt.Errorf("run %q: %w", command, err)
	}
	raw := strings.Trim(strings.TrimSpace(string(body)), `"`)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse thread id %q: %w", raw, err)
	}
	return id, nil
}

func (a *Agent) ListThreads(ctx context.Context) ([]Thread, error) {
	body, err := a.do(ctx, a.client.http, http.MethodGet, "/os/threads", nil)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	var threads threadList
	if err := json.Unmarshal(body, &threads); err != nil {
		return nil, fmt.Errorf("decode threads: %w", err)
	}
	return threads.List, nil
}

func (a *Agent) IsThreadFinished(ctx context.Context, id int64) (bool, error) {
	threads, err := a.ListThreads(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range threads {
		if t.ID == id {
			return t.Status == threadTerminated, nil
		}
	}
	return true, nil
}

func (a *Agent) ReadFile(ctx context.Context, path string) ([]byte, error) {
	body, err := a.do(ctx, a.client.http, http.MethodGet, "/file/"+url.PathEscape(path), url.Values{"op": {"GET"}})
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return body, nil
}

func (a *Agent) do(ctx context.Context, client *retryablehttp.Client, method, path string, params url.Values) ([]byte, error) {
	u := a.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ResponseError{Method: method, URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
