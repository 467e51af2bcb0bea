package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/habitcore/models"
	"github.com/cppla/habitcore/services"
	"github.com/cppla/habitcore/utils"
)

// StatsController serves per-user gamification and day views.
type StatsController struct {
	core     *services.Core
	cacheTTL time.Duration
	now      func() time.Time
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(core *services.Core, cacheTTL time.Duration) *StatsController {
	return &StatsController{core: core, cacheTTL: cacheTTL, now: time.Now}
}

func userParam(ctx *gin.Context) (string, bool) {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "user id is required")
		return "", false
	}
	return id, true
}

type statsView struct {
	models.GamificationStats
	NextLevelAt int `json:"next_level_at"`
}

// GetStats returns streak, points and level. Responses are cached in Redis
// and invalidated on completion.
func (s *StatsController) GetStats(ctx *gin.Context) {
	userID, ok := userParam(ctx)
	if !ok {
		return
	}
	c := ctx.Request.Context()
	key := utils.StatsCacheKey(userID)

	var view statsView
	if utils.CacheGetJSON(c, key, &view) {
		utils.Success(ctx, view)
		return
	}
	stats, err := s.core.Streaks.Stats(c, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	view = statsView{GamificationStats: stats, NextLevelAt: services.PointsForLevel(stats.Level + 1)}
	utils.CacheSetJSON(c, key, view, s.cacheTTL)
	utils.Success(ctx, view)
}

type achievementView struct {
	services.Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// GetAchievements lists the catalog with the user's unlock state and progress.
func (s *StatsController) GetAchievements(ctx *gin.Context) {
	userID, ok := userParam(ctx)
	if !ok {
		return
	}
	c := ctx.Request.Context()
	rows, err := s.core.Achievements.Unlocked(c, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	progress, err := s.core.Achievements.Progress(c, userID, true)
	if err != nil {
		respondError(ctx, err)
		return
	}

	unlocked := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		unlocked[r.AchievementID] = r.UnlockedAt
	}
	list := make([]achievementView, 0, len(services.Catalog))
	for _, a := range services.Catalog {
		v := achievementView{Achievement: a}
		if at, ok := unlocked[a.ID]; ok {
			at := at
			v.Unlocked = true
			v.UnlockedAt = &at
		}
		list = append(list, v)
	}
	utils.Success(ctx, gin.H{"achievements": list, "progress": progress})
}

// GetToday resolves the user's logical day now and lists that day's instances.
func (s *StatsController) GetToday(ctx *gin.Context) {
	userID, ok := userParam(ctx)
	if !ok {
		return
	}
	today, rows, err := s.core.Completion.Today(ctx.Request.Context(), userID, s.now())
	if err != nil {
		respondError(ctx, err)
		return
	}
	if rows == nil {
		rows = []models.ObligationInstance{}
	}
	utils.Success(ctx, gin.H{"logical_day": today, "instances": rows})
}
