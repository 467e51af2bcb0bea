package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/services"
	"github.com/cppla/habitcore/utils"
)

// respondError maps service errors onto the response envelope.
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, logicalday.ErrRangeTooLong):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeRangeTooLong, err.Error())
	case errors.Is(err, logicalday.ErrInvalidRange):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeInvalidRange, err.Error())
	case errors.Is(err, services.ErrDayNotClosed):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeDayNotClosed, err.Error())
	case errors.Is(err, services.ErrInvalidDefer):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeInvalidDefer, err.Error())
	case errors.Is(err, services.ErrInstanceNotFound):
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, err.Error())
	case errors.Is(err, services.ErrInstanceTerminal):
		utils.Error(ctx, http.StatusConflict, utils.CodeConflict, err.Error())
	case errors.Is(err, services.ErrLocked):
		utils.Error(ctx, http.StatusConflict, utils.CodeLocked, err.Error())
	case errors.Is(err, services.ErrStorageUnavailable):
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeStorageUnavailable, "storage unavailable")
	default:
		_ = ctx.Error(err)
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "internal error")
	}
}

// bindOptionalJSON decodes the body into out unless it is empty.
func bindOptionalJSON(ctx *gin.Context, out interface{}) bool {
	if ctx.Request.ContentLength == 0 {
		return true
	}
	if err := ctx.ShouldBindJSON(out); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
