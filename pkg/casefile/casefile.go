package casefile

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// StageRequest 下载参数
type StageRequest struct {
	Bucket string
	Key    string
	// Parallelisation 大于 1 时替换 system/decomposeParDict
	Parallelisation int
	Decomposition   *Decomposition
}

// Workspace Stage 产生的临时目录，Root 下只有 case/
type Workspace struct {
	Root    string
	CaseDir string
}

// Remove 删除临时目录
func (w *Workspace) Remove() error {
	if w == nil || w.Root == "" {
		return nil
	}
	return os.RemoveAll(w.Root)
}

// Target 共享目录
//   - LocalMount: 本机挂载点
//   - ServerFolder: NFS 服务端导出目录
type Target struct {
	LocalMount   string
	ServerFolder string
}

// Published 发布后的 case 路径
type Published struct {
	LocalPath  string
	RemotePath string
}

// Files 是 CaseFileProvider 的实现
type Files struct {
	fetcher ObjectFetcher
	tempDir string
}

var _ CaseFileProvider = (*Files)(nil)

// New 创建 Files，临时目录使用系统默认位置
func New(fetcher ObjectFetcher) *Files {
	return &Files{fetcher: fetcher}
}

// WithTempDir 设置临时目录的父目录
func (f *Files) WithTempDir(dir string) *Files {
	f.tempDir = dir
	return f
}

func (f *Files) Stage(ctx context.Context, req StageRequest) (*Workspace, error) {
	logger := zerolog.Ctx(ctx)

	root, err := os.MkdirTemp(f.tempDir, "ofcloud-case-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws := &Workspace{Root: root, CaseDir: filepath.Join(root, "case")}
	if err := f.stage(ctx, ws, req); err != nil {
		_ = ws.Remove()
		return nil, err
	}

	logger.Info().
		Str("bucket", req.Bucket).
		Str("key", req.Key).
		Str("workspace", root).
		Int("parallelisation", req.Parallelisation).
		Msg("Case files staged")
	return ws, nil
}

func (f *Files) stage(ctx context.Context, ws *Workspace, req StageRequest) error {
	if err := os.MkdirAll(ws.CaseDir, 0o755); err != nil {
		return fmt.Errorf("create case directory: %w", err)
	}

	archive := filepath.Join(ws.CaseDir, path.Base(req.Key))
	out, err := os.Create(archive)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	_, err = f.fetcher.Fetch(ctx, req.Bucket, req.Key, out)
	closeErr := out.Close()
	if err != nil {
		return fmt.Errorf("download s3://%s/%s: %w", req.Bucket, req.Key, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close archive file: %w", closeErr)
	}

	if err := extractArchive(archive, ws.CaseDir); err != nil {
		return fmt.Errorf("extract %s: %w", req.Key, err)
	}
	if err := os.Remove(archive); err != nil {
		return fmt.Errorf("remove archive: %w", err)
	}

	if req.Parallelisation > 1 {
		if err := writeDecomposeParDict(ws.CaseDir, req.Decomposition, req.Parallelisation); err != nil {
			return err
		}
	}
	return nil
}

// Publish 复制到 {LocalMount}/{id}，已存在时先删除
func (f *Files) Publish(ctx context.Context, ws *Workspace, id string, target Target) (*Published, error) {
	if id == "" {
		return nil, fmt.Errorf("publish id is required")
	}
	dst := filepath.Join(target.LocalMount, id)
	if err := os.RemoveAll(dst); err != nil {
		return nil, fmt.Errorf("remove old case directory %s: %w", dst, err)
	}
	if err := copyTree(ws.Root, dst); err != nil {
		return nil, fmt.Errorf("copy case to %s: %w", dst, err)
	}
	if err := ws.Remove(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("workspace", ws.Root).Msg("Failed to remove workspace")
	}

	published := &Published{
		LocalPath:  filepath.Join(dst, "case"),
		RemotePath: path.Join(target.ServerFolder, id, "case"),
	}
	zerolog.Ctx(ctx).Info().
		Str("local", published.LocalPath).
		Str("remote", published.RemotePath).
		Msg("Case files published")
	return published, nil
}

// ApplyOverrides key 形如 "system/controlDict/endTime"，最后一段是变量名。
// 匹配行首（允许空白）的变量定义，整行替换为 "变量 值;"。
func (f *Files) ApplyOverrides(ctx context.Context, caseDir string, updates map[string]string) ([]string, error) {
	byFile := make(map[string]map[string]string)
	for key, value := range updates {
		idx := strings.LastIndex(key, "/")
		if idx <= 0 || idx == len(key)-1 {
			return nil, fmt.Errorf("invalid override key %q", key)
		}
		file, variable := key[:idx], key[idx+1:]
		if byFile[file] == nil {
			byFile[file] = make(map[string]string)
		}
		byFile[file][variable] = value
	}

	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	updated := make([]string, 0, len(files))
	for _, file := range files {
		p := filepath.Join(caseDir, filepath.FromSlash(file))
		if !within(caseDir, p) {
			return updated, fmt.Errorf("override path %q escapes case directory", file)
		}
		if err := rewriteVariables(p, byFile[file]); err != nil {
			return updated, err
		}
		updated = append(updated, p)
	}

	if len(updated) > 0 {
		zerolog.Ctx(ctx).Debug().Strs("files", updated).Msg("Case overrides applied")
	}
	return updated, nil
}

func rewriteVariables(file string, variables map[string]string) error {
	st, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		re, err := regexp.Compile(`(?m)^[ \t]*` + regexp.QuoteMeta(name) + `\s+.*$`)
		if err != nil {
			return fmt.Errorf("compile pattern for %s: %w", name, err)
		}
		replacement := name + " " + variables[name] + ";"
		data = re.ReplaceAllLiteral(data, []byte(replacement))
	}

	if err := os.WriteFile(file, data, st.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	return nil
}
