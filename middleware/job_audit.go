package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/habitcore/models"
	"github.com/cppla/habitcore/utils"
)

// JobAudit counts successful batch job invocations per UTC day and job name.
// The job name is the last path segment, e.g. "materialize".
func JobAudit(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "POST" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		path := strings.TrimRight(c.Request.URL.Path, "/")
		job := path[strings.LastIndex(path, "/")+1:]
		if job == "" {
			return
		}

		RecordJobRun(db, job, time.Now())
	}
}

// RecordJobRun increments the counter for job on the UTC date of at. Errors are logged only.
func RecordJobRun(db *gorm.DB, job string, at time.Time) {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}, {Name: "job"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": time.Now()}),
	}).Create(&models.JobRun{Date: at.UTC().Format("2006-01-02"), Job: job, Count: 1}).Error
	if err != nil {
		utils.L().Warn("job audit failed", zap.String("job", job), zap.Error(err))
	}
}
