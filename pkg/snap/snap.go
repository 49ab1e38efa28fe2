// Package snap 通过 Snap 遥测服务的 REST API 管理 OpenFOAM 指标采集任务
//
// 每个实例一个任务：从虚拟机的 run.log 采集残差，发布到 InfluxDB。
package snap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/jimyag/ofcloud/pkg/retryhttp"
)

// MetricsCollector 指标采集接口，便于测试和 mock
type MetricsCollector interface {
	// StartCollection 创建并启动采集任务，返回任务 ID
	StartCollection(ctx context.Context, targetIP string) (string, error)
	// StopCollection 停止并删除任务
	StopCollection(ctx context.Context, taskID string) error
}

// InfluxDB 发布目标
type InfluxDB struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// Options 零值使用默认
type Options struct {
	// URL Snap API 地址，例如 http://snap:8181/v1/
	URL       string
	AgentPort int
	InfluxDB  InfluxDB
	Timeout   time.Duration
	Logger    *zerolog.Logger
}

// Client Snap REST 客户端
type Client struct {
	base     string
	port     int
	influxDB InfluxDB
	http     *retryablehttp.Client
}

var _ MetricsCollector = (*Client)(nil)

func New(opts Options) *Client {
	if opts.AgentPort == 0 {
		opts.AgentPort = 8000
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	base := opts.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Client{
		base:     base,
		port:     opts.AgentPort,
		influxDB: opts.InfluxDB,
		http: retryhttp.New(retryhttp.Options{
			Timeout:      opts.Timeout,
			RetryMax:     2,
			RetryWaitMin: 200 * time.Millisecond,
			RetryWaitMax: time.Second,
			Logger:       opts.Logger,
		}),
	}
}

// 采集的残差指标
var openFOAMMetrics = []string{
	"/intel/openfoam/Ux/initial",
	"/intel/openfoam/Ux/final",
	"/intel/openfoam/Uy/initial",
	"/intel/openfoam/Uy/final",
	"/intel/openfoam/Uz/initial",
	"/intel/openfoam/Uz/final",
	"/intel/openfoam/p/initial",
	"/intel/openfoam/p/final",
}

// Manifest Snap 任务清单
type Manifest struct {
	Version     int      `json:"version"`
	Schedule    Schedule `json:"schedule"`
	MaxFailures int      `json:"max-failures"`
	Workflow    Workflow `json:"workflow"`
}

type Schedule struct {
	Type     string `json:"type"`
	Interval string `json:"interval"`
}

type Workflow struct {
	Collect Collect `json:"collect"`
}

type Collect struct {
	Metrics map[string]struct{}       `json:"metrics"`
	Config  map[string]map[string]any `json:"config"`
	Process []any                     `json:"process"`
	Publish []Publish                 `json:"publish"`
}

type Publish struct {
	PluginName string         `json:"plugin_name"`
	Config     map[string]any `json:"config"`
}

// NewManifest 每 10s 采集一次 run.log，连续失败 30 次后 Snap 停止任务
func (c *Client) NewManifest(targetIP string) Manifest {
	metrics := make(map[string]struct{}, len(openFOAMMetrics))
	for _, m := range openFOAMMetrics {
		metrics[m] = struct{}{}
	}
	return Manifest{
		Version:     1,
		Schedule:    Schedule{Type: "simple", Interval: "10s"},
		MaxFailures: 30,
		Workflow: Workflow{Collect: Collect{
			Metrics: metrics,
			Config: map[string]map[string]any{
				"/intel": {
					"webServerIP":       targetIP,
					"webServerPort":     c.port,
					"webServerFilePath": "file/run.log?op=GET",
					"timeout":           20,
				},
			},
			Publish: []Publish{{
				PluginName: "influxdb",
				Config: map[string]any{
					"host":     c.influxDB.Host,
					"port":     c.influxDB.Port,
					"database": c.influxDB.Database,
					"user":     c.influxDB.User,
					"password": c.influxDB.Password,
				},
			}},
		}},
	}
}

type createTaskResponse struct {
	Body struct {
		ID string `json:"id"`
	} `json:"body"`
}

func (c *Client) StartCollection(ctx context.Context, targetIP string) (string, error) {
	manifest, err := json.Marshal(c.NewManifest(targetIP))
	if err != nil {
		return "", fmt.Errorf("encode task manifest: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "tasks", manifest)
	if err != nil {
		return "", fmt.Errorf("create snap task: %w", err)
	}
	var created createTaskResponse
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode snap task: %w", err)
	}
	if created.Body.ID == "" {
		return "", fmt.Errorf("snap task id is empty")
	}

	if _, err := c.do(ctx, http.MethodPut, "tasks/"+created.Body.ID+"/start", nil); err != nil {
		return created.Body.ID, fmt.Errorf("start snap task %s: %w", created.Body.ID, err)
	}
	zerolog.Ctx(ctx).Info().Str("task_id", created.Body.ID).Str("target", targetIP).Msg("Snap task started")
	return created.Body.ID, nil
}

// StopCollection 停止失败时仍然尝试删除
func (c *Client) StopCollection(ctx context.Context, taskID string) error {
	if taskID == "" {
		return nil
	}
	_, stopErr := c.do(ctx, http.MethodPut, "tasks/"+taskID+"/stop", nil)
	_, deleteErr := c.do(ctx, http.MethodDelete, "tasks/"+taskID, nil)
	if deleteErr != nil {
		if stopErr != nil {
			return fmt.Errorf("stop snap task %s: %w; delete: %v", taskID, stopErr, deleteErr)
		}
		return fmt.Errorf("delete snap task %s: %w", taskID, deleteErr)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
