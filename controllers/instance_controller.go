package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/services"
	"github.com/cppla/habitcore/utils"
)

// InstanceController applies user actions to single obligation instances.
type InstanceController struct {
	core *services.Core
	now  func() time.Time
}

// NewInstanceController creates a new InstanceController instance.
func NewInstanceController(core *services.Core) *InstanceController {
	return &InstanceController{core: core, now: time.Now}
}

func parseInstanceID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid instance id")
		return 0, false
	}
	return uint(id), true
}

type completeRequest struct {
	ConfirmedAt *time.Time `json:"confirmedAt"`
}

// Complete marks a pending instance done and credits streak, points and achievements.
func (i *InstanceController) Complete(ctx *gin.Context) {
	id, ok := parseInstanceID(ctx)
	if !ok {
		return
	}
	var req completeRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}
	at := i.now()
	if req.ConfirmedAt != nil {
		at = *req.ConfirmedAt
	}

	out, err := i.core.Completion.Complete(ctx.Request.Context(), id, at)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.CacheDelete(ctx.Request.Context(), utils.StatsCacheKey(out.Instance.UserID))
	utils.Success(ctx, out)
}

type deferRequest struct {
	ToDate logicalday.Date `json:"toDate"`
}

// Defer skips a pending instance and reschedules its task on a later day.
func (i *InstanceController) Defer(ctx *gin.Context) {
	id, ok := parseInstanceID(ctx)
	if !ok {
		return
	}
	var req deferRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.ToDate.IsZero() {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeInvalidDate, "toDate (YYYY-MM-DD) is required")
		return
	}
	next, err := i.core.Completion.Defer(ctx.Request.Context(), id, req.ToDate)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, next)
}
