package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope codes. 0 is success; the first three digits mirror the HTTP status.
const (
	CodeOK                 = 0
	CodeBadRequest         = 40001
	CodeInvalidRange       = 40002
	CodeRangeTooLong       = 40003
	CodeInvalidDate        = 40004
	CodeInvalidDefer       = 40005
	CodeDayNotClosed       = 40006
	CodeUnauthorized       = 40101
	CodeNotFound           = 40401
	CodeRouteNotFound      = 40400
	CodeConflict           = 40901
	CodeLocked             = 40902
	CodeRateLimited        = 42901
	CodeInternal           = 50001
	CodeStorageUnavailable = 50301
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, CodeOK, "success", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// Abort writes an error response and stops the handler chain.
func Abort(ctx *gin.Context, status int, code int, message string) {
	Error(ctx, status, code, message)
	ctx.Abort()
}
