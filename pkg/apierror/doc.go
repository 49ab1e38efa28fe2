// Package apierror 提供 API 层统一的错误类型
//
// 错误响应为 JSON：
//
//	{
//	    "errors": [
//	        {"code": "InvalidSimulationID.NotFound", "message": "simulation sim-1 does not exist"}
//	    ],
//	    "requestID": "ea966190-f9aa-478e-9ede-example"
//	}
//
// 服务层返回 *Error，ginx 负责按 HTTPStatus 渲染。
package apierror
