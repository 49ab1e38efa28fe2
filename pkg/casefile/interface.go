package casefile

import "context"

// CaseFileProvider case 目录操作接口，便于测试和 mock
type CaseFileProvider interface {
	// Stage 下载并解压 case，返回临时工作目录
	Stage(ctx context.Context, req StageRequest) (*Workspace, error)
	// Publish 发布到共享目录，成功后删除临时工作目录
	Publish(ctx context.Context, ws *Workspace, id string, target Target) (*Published, error)
	// ApplyOverrides 改写 caseDir 下的变量，返回被修改的文件
	ApplyOverrides(ctx context.Context, caseDir string, updates map[string]string) ([]string, error)
}
