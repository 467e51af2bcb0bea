package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/habitcore/config"
	"github.com/cppla/habitcore/controllers"
	"github.com/cppla/habitcore/middleware"
	"github.com/cppla/habitcore/services"
	"github.com/cppla/habitcore/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, core *services.Core) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(utils.RecoveryWithZap(utils.L(), false))
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.SecretHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		if err := services.Ping(ctx.Request.Context(), core.DB()); err != nil {
			utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeStorageUnavailable, "storage unavailable")
			return
		}
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	jobsController := controllers.NewJobsController(core)
	instanceController := controllers.NewInstanceController(core)
	statsController := controllers.NewStatsController(core, time.Duration(cfg.StatsCacheTTLSec)*time.Second)

	api := r.Group("/api/v1")

	jobs := api.Group("/jobs")
	jobs.GET("/materialize", jobsController.MaterializeInfo)
	jobs.GET("/sweep", jobsController.SweepInfo)

	triggers := jobs.Group("")
	triggers.Use(
		middleware.RateLimit(cfg.RateLimitPerMinute),
		middleware.SchedulerAuth(middleware.SchedulerAuthConfig{JWTSecret: cfg.JWTSecret, SecretHash: cfg.SchedulerSecretHash}),
		middleware.JobAudit(core.DB()),
	)
	triggers.POST("/materialize", jobsController.Materialize)
	triggers.POST("/sweep", jobsController.Sweep)
	triggers.POST("/reset-streaks", jobsController.ResetStreaks)

	instances := api.Group("/instances")
	instances.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	instances.POST("/:id/complete", instanceController.Complete)
	instances.POST("/:id/defer", instanceController.Defer)

	users := api.Group("/users/:id")
	users.GET("/stats", statsController.GetStats)
	users.GET("/achievements", statsController.GetAchievements)
	users.GET("/today", statsController.GetToday)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeRouteNotFound, "api route not found")
	})

	return r
}
