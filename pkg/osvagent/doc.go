// Package osvagent 是 OSv 虚拟机内 REST API 的客户端
//
// 虚拟机启动后在 8000 端口提供 httpserver，调度器通过它设置环境变量、
// 挂载 NFS、启动求解器命令并轮询线程状态。
//
// 示例：
//
//	client := osvagent.New(osvagent.Options{Port: 8000})
//	agent := client.Agent("10.0.0.5")
//
//	_ = agent.WaitUp(ctx)
//	_ = agent.SetEnv(ctx, "WM_PROJECT_DIR", "/openfoam")
//	tid, err := agent.RunCommand(ctx, "/usr/bin/simpleFoam.so -case /case")
//	finished, err := agent.IsThreadFinished(ctx, tid)
package osvagent
