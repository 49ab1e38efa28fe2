// Package casefile 准备仿真 case 目录
//
// 流程：
//
//  1. Stage：从对象存储下载 case 压缩包，解压到临时目录的 case/ 下，
//     并行度大于 1 时按分解方法生成 system/decomposeParDict
//  2. Publish：把临时目录复制到 NFS 本地挂载点 {local_mount}/{id}，返回本地路径和 NFS 服务端路径
//  3. ApplyOverrides：按 "文件路径/变量名" 改写已发布 case 中的变量
//
// 示例：
//
//	fetcher, err := casefile.NewS3Fetcher(ctx, casefile.S3Config{Endpoint: "http://minio:9000"})
//	files := casefile.New(fetcher)
//
//	ws, err := files.Stage(ctx, casefile.StageRequest{Bucket: "cases", Key: "cavity.tar.gz"})
//	published, err := files.Publish(ctx, ws, "i-1", casefile.Target{
//		LocalMount:   "/mnt/ofcloud",
//		ServerFolder: "/export/ofcloud",
//	})
//	updated, err := files.ApplyOverrides(ctx, published.LocalPath, map[string]string{
//		"system/controlDict/endTime": "2000",
//	})
package casefile
