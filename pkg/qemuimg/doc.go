// Package qemuimg 封装 qemu-img 命令行工具的操作
//
// libvirt 计算后端用它在 capstan 组装好的启动镜像之上创建每个实例独立的
// copy-on-write 磁盘，并读取镜像格式。
//
// 示例：
//
//	client := qemuimg.New("")
//
//	info, err := client.Info(ctx, "/root/.capstan/repository/sim-1/sim-1.qemu")
//
//	err = client.CreateFromBackingFile(ctx, "qcow2", info.Format,
//		"/root/.capstan/repository/sim-1/sim-1.qemu", "/var/lib/ofcloud/disks/case-i-1.qcow2")
package qemuimg
