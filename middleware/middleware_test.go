package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/habitcore/models"
	"github.com/cppla/habitcore/utils"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.POST("/api/v1/jobs/sweep", func(c *gin.Context) {
		utils.Success(c, gin.H{"caller": c.GetString(ContextCallerKey)})
	})
	r.POST("/api/v1/jobs/fail", func(c *gin.Context) {
		utils.Error(c, http.StatusBadRequest, utils.CodeBadRequest, "nope")
	})
	return r
}

func do(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSchedulerAuthDisabled(t *testing.T) {
	r := newRouter(SchedulerAuth(SchedulerAuthConfig{}))
	w := do(r, "/api/v1/jobs/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "anonymous")
}

func TestSchedulerAuthSharedSecret(t *testing.T) {
	hash, err := utils.HashSecret("cron-secret")
	require.NoError(t, err)
	r := newRouter(SchedulerAuth(SchedulerAuthConfig{SecretHash: hash}))

	w := do(r, "/api/v1/jobs/sweep", map[string]string{SecretHeader: "cron-secret"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "shared-secret")

	w = do(r, "/api/v1/jobs/sweep", map[string]string{SecretHeader: "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "/api/v1/jobs/sweep", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSchedulerAuthBearerToken(t *testing.T) {
	r := newRouter(SchedulerAuth(SchedulerAuthConfig{JWTSecret: "k"}))
	tok, err := utils.GenerateSchedulerToken("k", "nightly-cron", time.Hour)
	require.NoError(t, err)

	w := do(r, "/api/v1/jobs/sweep", map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "nightly-cron")

	w = do(r, "/api/v1/jobs/sweep", map[string]string{"Authorization": "Token " + tok})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, "/api/v1/jobs/sweep", map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// A shared secret is refused when only JWT auth is configured.
	w = do(r, "/api/v1/jobs/sweep", map[string]string{SecretHeader: "anything"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(2))
	require.Equal(t, http.StatusOK, do(r, "/api/v1/jobs/sweep", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, do(r, "/api/v1/jobs/sweep", nil).Code)

	unlimited := newRouter(RateLimit(0))
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, do(unlimited, "/api/v1/jobs/sweep", nil).Code)
	}
}

func TestJobAuditCountsSuccessfulRuns(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.JobRun{}))

	r := newRouter(JobAudit(db))
	do(r, "/api/v1/jobs/sweep", nil)
	do(r, "/api/v1/jobs/sweep", nil)
	do(r, "/api/v1/jobs/fail", nil)

	var runs []models.JobRun
	require.NoError(t, db.Find(&runs).Error)
	require.Len(t, runs, 1)
	require.Equal(t, "sweep", runs[0].Job)
	require.EqualValues(t, 2, runs[0].Count)
	require.Equal(t, time.Now().UTC().Format("2006-01-02"), runs[0].Date)
}
