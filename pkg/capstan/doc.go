// Package capstan 封装 capstan 命令行，为求解器组装 OSv 启动镜像
//
// 示例：
//
//	client := capstan.New(capstan.Options{Author: "tenant-a"})
//
//	image, err := client.ComposeBootImage(ctx, "cavity", "openfoam.simplefoam")
//	// image.Path: ~/.capstan/repository/temp/ofcloud-capstan-123/ofcloud-capstan-123.qemu
package capstan
