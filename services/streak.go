package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
)

const pointSourceCompletion = "completion"

// StreakEngine owns writes to GamificationStats for completions and decay.
type StreakEngine struct {
	db       *gorm.DB
	resolver *logicalday.Resolver
	cfg      PointsConfig
	log      *zap.Logger
}

func NewStreakEngine(db *gorm.DB, resolver *logicalday.Resolver, cfg PointsConfig, log *zap.Logger) *StreakEngine {
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = logicalday.NewResolver(log)
	}
	return &StreakEngine{db: db, resolver: resolver, cfg: cfg, log: log}
}

func (e *StreakEngine) Config() PointsConfig { return e.cfg }

type CompletionResult struct {
	UserID         string `json:"user_id"`
	LogicalDay     string `json:"logical_day"`
	PointsAwarded  int    `json:"points_awarded"`
	Streak         int    `json:"streak"`
	LongestStreak  int    `json:"longest_streak"`
	IsNewRecord    bool   `json:"is_new_record"`
	StreakCredited bool   `json:"streak_credited"`
	Points         int    `json:"points"`
	Level          int    `json:"level"`
	LeveledUp      bool   `json:"leveled_up"`
}

// RecordCompletion credits one completed obligation on day. The stats row is
// locked for the whole read-modify-write; the daily cap is read from PointLog.
func (e *StreakEngine) RecordCompletion(ctx context.Context, userID string, day logicalday.Date, instanceID *uint) (*CompletionResult, error) {
	var out *CompletionResult
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = e.recordCompletion(tx, userID, day, instanceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logCompletion(out)
	return out, nil
}

// recordCompletion runs inside the caller's transaction.
func (e *StreakEngine) recordCompletion(tx *gorm.DB, userID string, day logicalday.Date, instanceID *uint) (*CompletionResult, error) {
	stats, err := lockStats(tx, userID)
	if err != nil {
		return nil, err
	}

	streak, credited := NextStreak(stats.CurrentStreak, stats.LastActiveDate, day)

	var already int
	if err := tx.Model(&models.PointLog{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND logical_day = ?", userID, day).
		Scan(&already).Error; err != nil {
		return nil, fmt.Errorf("sum daily points: %w", err)
	}
	award := ClampToDailyCap(e.cfg.StreakPoints(streak), already, e.cfg.DailyCap)
	if award > 0 {
		entry := models.PointLog{
			UserID:     userID,
			LogicalDay: day,
			Amount:     award,
			Source:     pointSourceCompletion,
			InstanceID: instanceID,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("append point log: %w", err)
		}
	}

	oldLevel := stats.Level
	isRecord := streak > stats.LongestStreak
	stats.CurrentStreak = streak
	if isRecord {
		stats.LongestStreak = streak
	}
	if credited {
		d := day
		stats.LastActiveDate = &d
	}
	stats.Points += award
	stats.Level = Level(stats.Points)

	if err := saveStats(tx, stats); err != nil {
		return nil, err
	}

	return &CompletionResult{
		UserID:         userID,
		LogicalDay:     day.String(),
		PointsAwarded:  award,
		Streak:         stats.CurrentStreak,
		LongestStreak:  stats.LongestStreak,
		IsNewRecord:    isRecord,
		StreakCredited: credited,
		Points:         stats.Points,
		Level:          stats.Level,
		LeveledUp:      stats.Level > oldLevel,
	}, nil
}

func (e *StreakEngine) logCompletion(out *CompletionResult) {
	e.log.Info("completion recorded",
		zap.String("user_id", out.UserID),
		zap.String("day", out.LogicalDay),
		zap.Int("streak", out.Streak),
		zap.Int("awarded", out.PointsAwarded))
}

// ResetStreakIfMissed zeroes the streak of every user (or of userIDs) whose last
// active day is before yesterday relative to day. It is the only decay path.
func (e *StreakEngine) ResetStreakIfMissed(ctx context.Context, day logicalday.Date, userIDs ...string) (int64, error) {
	q := e.db.WithContext(ctx).Model(&models.GamificationStats{}).
		Where("current_streak > 0").
		Where("(last_active_date IS NULL OR last_active_date < ?)", day.Yesterday())
	if len(userIDs) > 0 {
		q = q.Where("user_id IN ?", userIDs)
	}
	res := q.Update("current_streak", 0)
	if res.Error != nil {
		return 0, fmt.Errorf("reset streaks for %s: %w", day, res.Error)
	}
	return res.RowsAffected, nil
}

// ResetStreaks runs ResetStreakIfMissed with each user's own "today" at now.
func (e *StreakEngine) ResetStreaks(ctx context.Context, now time.Time) (int64, error) {
	if now.IsZero() {
		now = e.resolver.Now()
	}
	var rows []struct {
		UserID   string
		Timezone string
	}
	err := e.db.WithContext(ctx).Table("gamification_stats AS s").
		Select("s.user_id AS user_id, COALESCE(u.timezone, '') AS timezone").
		Joins("LEFT JOIN users u ON u.id = s.user_id").
		Where("s.current_streak > 0").
		Scan(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	byDay := map[logicalday.Date][]string{}
	for _, r := range rows {
		today := e.resolver.Resolve(now, r.Timezone)
		byDay[today] = append(byDay[today], r.UserID)
	}
	var total int64
	for day, ids := range byDay {
		n, err := e.ResetStreakIfMissed(ctx, day, ids...)
		if err != nil {
			return total, err
		}
		total += n
	}
	e.log.Info("streak decay finished", zap.Int64("reset", total), zap.Int("groups", len(byDay)))
	return total, nil
}

// Stats returns the user's aggregate, or a fresh zero row when none exists.
func (e *StreakEngine) Stats(ctx context.Context, userID string) (models.GamificationStats, error) {
	var stats models.GamificationStats
	err := e.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&stats).Error
	if err != nil {
		return stats, err
	}
	if stats.UserID == "" {
		stats = models.GamificationStats{UserID: userID, Level: 1}
	}
	return stats, nil
}

// lockStats creates the row if missing and reads it FOR UPDATE.
func lockStats(tx *gorm.DB, userID string) (*models.GamificationStats, error) {
	seed := models.GamificationStats{UserID: userID, Level: 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("seed stats: %w", err)
	}
	var stats models.GamificationStats
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&stats).Error; err != nil {
		return nil, fmt.Errorf("lock stats: %w", err)
	}
	return &stats, nil
}

func saveStats(tx *gorm.DB, stats *models.GamificationStats) error {
	err := tx.Model(&models.GamificationStats{}).
		Where("user_id = ?", stats.UserID).
		Updates(map[string]interface{}{
			"current_streak":   stats.CurrentStreak,
			"longest_streak":   stats.LongestStreak,
			"points":           stats.Points,
			"level":            stats.Level,
			"last_active_date": stats.LastActiveDate,
			"updated_at":       time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}
