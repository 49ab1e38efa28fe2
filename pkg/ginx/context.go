package ginx

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDKey    = "ginx.request_id"
	RequestIDHeader = "X-Request-Id"
)

// RequestID 为每个请求生成请求 ID，并把带 request_id 字段的 logger 放进 request context
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set(requestIDKey, id)
		ctx.Header(RequestIDHeader, id)

		logger := zerolog.Ctx(ctx.Request.Context()).With().Str("request_id", id).Logger()
		ctx.Request = ctx.Request.WithContext(logger.WithContext(ctx.Request.Context()))
		ctx.Next()
	}
}

// GetRequestID 返回当前请求 ID，没有经过 RequestID 中间件时为空
func GetRequestID(ctx *gin.Context) string {
	return ctx.GetString(requestIDKey)
}
