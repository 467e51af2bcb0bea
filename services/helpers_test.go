package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a per-test in-memory database to avoid cross-test interference
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func day(s string) logicalday.Date { return logicalday.MustParse(s) }

func instant(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func seedUser(t *testing.T, db *gorm.DB, id, tz string) {
	t.Helper()
	require.NoError(t, db.Create(&models.User{ID: id, Timezone: tz}).Error)
}

func seedTask(t *testing.T, db *gorm.DB, userID, kind string, created time.Time) models.RecurringTask {
	t.Helper()
	task := models.RecurringTask{
		UserID:    userID,
		Title:     kind + " task",
		CreatedAt: created,
		Rule:      &models.RecurrenceRule{Kind: kind},
	}
	require.NoError(t, db.Create(&task).Error)
	return task
}

func seedStats(t *testing.T, db *gorm.DB, userID string, current, longest int, last *logicalday.Date) {
	t.Helper()
	require.NoError(t, db.Create(&models.GamificationStats{
		UserID:         userID,
		CurrentStreak:  current,
		LongestStreak:  longest,
		Level:          1,
		LastActiveDate: last,
	}).Error)
}

func datePtr(s string) *logicalday.Date {
	d := day(s)
	return &d
}

func loadStats(t *testing.T, db *gorm.DB, userID string) models.GamificationStats {
	t.Helper()
	var s models.GamificationStats
	require.NoError(t, db.Where("user_id = ?", userID).First(&s).Error)
	return s
}

func instancesOn(t *testing.T, db *gorm.DB, userID string, d logicalday.Date) []models.ObligationInstance {
	t.Helper()
	var rows []models.ObligationInstance
	require.NoError(t, db.Where("user_id = ? AND logical_day = ?", userID, d).Order("task_id").Find(&rows).Error)
	return rows
}

type denyLocker struct{ userID string }

func (d denyLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool) {
	if key == "materialize:"+d.userID {
		return nil, false
	}
	return func() {}, true
}
