package ginx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// bindArgs 绑定请求参数
// 有 body 时按 JSON 绑定，URI 和 Query 参数总是叠加绑定
func bindArgs(ctx *gin.Context, args any) error {
	if ctx.Request.Body != nil && ctx.Request.Body != http.NoBody && ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(args); err != nil {
			return err
		}
	}
	if len(ctx.Params) > 0 {
		if err := ctx.ShouldBindUri(args); err != nil {
			return err
		}
	}
	if len(ctx.Request.URL.RawQuery) > 0 {
		if err := ctx.ShouldBindQuery(args); err != nil {
			return err
		}
	}
	return nil
}
