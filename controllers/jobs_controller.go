package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/services"
	"github.com/cppla/habitcore/utils"
)

// JobsController exposes the batch triggers used by external schedulers.
type JobsController struct {
	core *services.Core
	now  func() time.Time
}

// NewJobsController creates a new JobsController instance.
func NewJobsController(core *services.Core) *JobsController {
	return &JobsController{core: core, now: time.Now}
}

type endpointInfo struct {
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method"`
	Auth        string            `json:"auth"`
	Description string            `json:"description"`
	Body        map[string]string `json:"body"`
}

const schedulerAuthDescription = "X-Scheduler-Secret header or Authorization: Bearer <jwt>"

// MaterializeInfo describes the materialize trigger for health checks.
func (j *JobsController) MaterializeInfo(ctx *gin.Context) {
	utils.Success(ctx, endpointInfo{
		Endpoint:    "/api/v1/jobs/materialize",
		Method:      http.MethodPost,
		Auth:        schedulerAuthDescription,
		Description: "Create pending obligation instances for every due recurring task in a date range.",
		Body: map[string]string{
			"userIds":   "optional list of user ids; default all users with active rules",
			"startDate": "YYYY-MM-DD, required",
			"endDate":   "YYYY-MM-DD, required, at most 30 days after startDate",
			"dryRun":    "optional bool",
		},
	})
}

// SweepInfo describes the sweep trigger for health checks.
func (j *JobsController) SweepInfo(ctx *gin.Context) {
	utils.Success(ctx, endpointInfo{
		Endpoint:    "/api/v1/jobs/sweep",
		Method:      http.MethodPost,
		Auth:        schedulerAuthDescription,
		Description: "Expire pending instances of a finished logical day and write daily snapshots.",
		Body: map[string]string{
			"asOfDate": "optional YYYY-MM-DD; default each user's local yesterday",
		},
	})
}

// Materialize runs the materializer over a date range.
func (j *JobsController) Materialize(ctx *gin.Context) {
	var req services.MaterializeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := j.core.Materializer.Run(ctx.Request.Context(), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, result)
}

type asOfRequest struct {
	AsOfDate *logicalday.Date `json:"asOfDate"`
}

// Sweep closes a finished logical day.
func (j *JobsController) Sweep(ctx *gin.Context) {
	var req asOfRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}
	if req.AsOfDate != nil && req.AsOfDate.IsZero() {
		req.AsOfDate = nil
	}
	result, err := j.core.Sweeper.Sweep(ctx.Request.Context(), services.SweepRequest{AsOfDate: req.AsOfDate, Now: j.now()})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, result)
}

type resetResult struct {
	RunID        string   `json:"runId"`
	AsOfDate     string   `json:"asOfDate,omitempty"`
	StreaksReset int64    `json:"streaksReset"`
	Errors       []string `json:"errors"`
}

// ResetStreaks zeroes streaks of users who missed a day. Without asOfDate each
// user's own today is used.
func (j *JobsController) ResetStreaks(ctx *gin.Context) {
	var req asOfRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}
	c := ctx.Request.Context()
	out := resetResult{RunID: uuid.NewString(), Errors: []string{}}

	var (
		n   int64
		err error
	)
	if req.AsOfDate != nil && !req.AsOfDate.IsZero() {
		out.AsOfDate = req.AsOfDate.String()
		if err = services.Ping(c, j.core.DB()); err == nil {
			n, err = j.core.Streaks.ResetStreakIfMissed(c, *req.AsOfDate)
		}
	} else {
		n, err = j.core.Streaks.ResetStreaks(c, j.now())
	}
	if err != nil {
		respondError(ctx, err)
		return
	}
	if n > 0 {
		utils.InvalidateAllStats(c)
	}
	out.StreaksReset = n
	utils.Success(ctx, out)
}
