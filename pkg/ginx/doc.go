// Package ginx 提供 gin handler 适配器，负责参数绑定、校验和 JSON 响应渲染
//
// 支持的 handler 签名：
//
//	func(c *gin.Context) (resp, error)             // Adapt3
//	func(c *gin.Context, args *Args) error         // Adapt4
//	func(c *gin.Context, args *Args) (resp, error) // Adapt5
//
// Args 实现 IsValid() error 时会在调用 handler 前校验。
// 错误是 *apierror.Error 时使用其 HTTPStatus，响应中带上 RequestID 中间件生成的请求 ID。
package ginx
