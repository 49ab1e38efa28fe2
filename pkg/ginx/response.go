package ginx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimyag/ofcloud/pkg/apierror"
	"github.com/rs/zerolog"
)

func renderResponse(ctx *gin.Context, response any) {
	if response == nil {
		ctx.Status(http.StatusNoContent)
		return
	}
	if s, ok := response.(string); ok {
		ctx.String(http.StatusOK, s)
		return
	}
	ctx.JSON(http.StatusOK, response)
}

// renderError 渲染错误响应
// *apierror.Error 使用自身的 HTTPStatus，其他错误使用 statusCode
func renderError(ctx *gin.Context, statusCode int, err error) {
	requestID := GetRequestID(ctx)

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatus > 0 {
			statusCode = apiErr.HTTPStatus
		}
		if apiErr.RawError != nil {
			zerolog.Ctx(ctx.Request.Context()).Error().
				Err(apiErr.RawError).
				Str("code", apiErr.Code).
				Msg(apiErr.Message)
		}
		ctx.JSON(statusCode, apierror.NewErrorResponse(requestID, apiErr))
		return
	}

	var errResp *apierror.ErrorResponse
	if errors.As(err, &errResp) {
		if len(errResp.Errors) > 0 && errResp.Errors[0].HTTPStatus > 0 {
			statusCode = errResp.Errors[0].HTTPStatus
		}
		if errResp.RequestID == "" {
			errResp.RequestID = requestID
		}
		ctx.JSON(statusCode, errResp)
		return
	}

	code := "InternalError"
	if statusCode == http.StatusBadRequest {
		code = "InvalidParameterValue"
	}
	ctx.JSON(statusCode, apierror.NewErrorResponse(requestID, apierror.NewErrorWithStatus(code, err.Error(), statusCode)))
}
