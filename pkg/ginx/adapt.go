package ginx

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Adapt3 适配无参数、有返回值和 error 的 handler
func Adapt3[T any](fn func(*gin.Context) (T, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, err := fn(ctx)
		if err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}
		renderResponse(ctx, result)
	}
}

// Adapt4 适配有参数、只有 error 的 handler，成功返回 204
func Adapt4[T any](fn func(*gin.Context, *T) error) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		args, ok := bindAndValidate[T](ctx)
		if !ok {
			return
		}
		if err := fn(ctx, args); err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}
		ctx.Status(http.StatusNoContent)
	}
}

// Adapt5 适配有参数、有返回值和 error 的 handler
func Adapt5[TArgs any, TResp any](fn func(*gin.Context, *TArgs) (TResp, error)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		args, ok := bindAndValidate[TArgs](ctx)
		if !ok {
			return
		}
		result, err := fn(ctx, args)
		if err != nil {
			renderError(ctx, http.StatusInternalServerError, err)
			return
		}
		renderResponse(ctx, result)
	}
}

func bindAndValidate[T any](ctx *gin.Context) (*T, bool) {
	args := new(T)
	if err := bindArgs(ctx, args); err != nil {
		renderError(ctx, http.StatusBadRequest, err)
		return nil, false
	}
	if validator, ok := any(args).(interface{ IsValid() error }); ok {
		if err := validator.IsValid(); err != nil {
			renderError(ctx, http.StatusBadRequest, err)
			return nil, false
		}
	}
	return args, true
}
