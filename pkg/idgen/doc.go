// Package idgen 提供递增 ID 生成器
//
// 基于 Sonyflake，生成的 ID 全局唯一且按时间递增。
//
// 格式：
//   - Simulation ID: sim-{递增数字}
//   - Instance ID: i-{递增数字}
//
// 使用方式：
//
//	simID, err := idgen.GenerateSimulationID()
//	// simID: "sim-1234567890"
//
//	instanceID, err := idgen.GenerateInstanceID()
//	// instanceID: "i-1234567891"
package idgen
