package capstan

import "context"

// ImageBuilder 启动镜像构建接口，便于测试和 mock
type ImageBuilder interface {
	// ComposeBootImage 为求解器组装启动镜像
	ComposeBootImage(ctx context.Context, name, solver string) (*Image, error)
}
