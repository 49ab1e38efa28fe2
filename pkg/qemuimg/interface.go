package qemuimg

import "context"

// QemuImgClient 定义了 qemu-img 客户端的接口
// 用于抽象 qemu-img 操作，便于测试和 mock
type QemuImgClient interface {
	// CreateFromBackingFile 从 backing file 创建新镜像
	CreateFromBackingFile(ctx context.Context, format, backingFormat, backingFile, outputFile string) error
	// Info 获取镜像信息
	Info(ctx context.Context, imagePath string) (*ImageInfo, error)
}
