package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/habitcore/models"
)

// AchievementKind selects the aggregate a threshold is checked against.
type AchievementKind string

const (
	KindStreakDays   AchievementKind = "streak_days"
	KindLevel        AchievementKind = "level"
	KindCompletions  AchievementKind = "lifetime_completions"
	KindPoints       AchievementKind = "points"
	KindPerfectWeeks AchievementKind = "perfect_weeks"
)

type Achievement struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Kind        AchievementKind `json:"kind"`
	Threshold   int             `json:"threshold"`
	BonusPoints int             `json:"bonus_points"`
}

// Catalog is the fixed set of one-time badges.
var Catalog = []Achievement{
	{ID: "first_step", Title: "First Step", Description: "Complete your first obligation", Kind: KindCompletions, Threshold: 1, BonusPoints: 5},
	{ID: "completions_10", Title: "Getting Serious", Description: "Complete 10 obligations", Kind: KindCompletions, Threshold: 10, BonusPoints: 20},
	{ID: "completions_100", Title: "Centurion", Description: "Complete 100 obligations", Kind: KindCompletions, Threshold: 100, BonusPoints: 100},
	{ID: "completions_1000", Title: "Machine", Description: "Complete 1000 obligations", Kind: KindCompletions, Threshold: 1000, BonusPoints: 500},
	{ID: "streak_3", Title: "Warming Up", Description: "Reach a 3-day streak", Kind: KindStreakDays, Threshold: 3, BonusPoints: 10},
	{ID: "streak_7", Title: "One Week", Description: "Reach a 7-day streak", Kind: KindStreakDays, Threshold: 7, BonusPoints: 30},
	{ID: "streak_30", Title: "One Month", Description: "Reach a 30-day streak", Kind: KindStreakDays, Threshold: 30, BonusPoints: 150},
	{ID: "streak_100", Title: "Unbreakable", Description: "Reach a 100-day streak", Kind: KindStreakDays, Threshold: 100, BonusPoints: 500},
	{ID: "level_5", Title: "Level 5", Description: "Reach level 5", Kind: KindLevel, Threshold: 5, BonusPoints: 50},
	{ID: "level_10", Title: "Level 10", Description: "Reach level 10", Kind: KindLevel, Threshold: 10, BonusPoints: 200},
	{ID: "points_1000", Title: "Thousandaire", Description: "Earn 1000 points", Kind: KindPoints, Threshold: 1000, BonusPoints: 50},
	{ID: "points_10000", Title: "Point Hoarder", Description: "Earn 10000 points", Kind: KindPoints, Threshold: 10000, BonusPoints: 250},
	{ID: "perfect_week_1", Title: "Perfect Week", Description: "Complete every obligation for a whole week", Kind: KindPerfectWeeks, Threshold: 1, BonusPoints: 50},
	{ID: "perfect_week_4", Title: "Perfect Month", Description: "Have four perfect weeks", Kind: KindPerfectWeeks, Threshold: 4, BonusPoints: 200},
}

// Progress is the aggregate view thresholds are evaluated against.
type Progress struct {
	LongestStreak int `json:"longest_streak"`
	Level         int `json:"level"`
	Completions   int `json:"completions"`
	Points        int `json:"points"`
	PerfectWeeks  int `json:"perfect_weeks"`
}

func (a Achievement) Satisfied(p Progress) bool {
	switch a.Kind {
	case KindStreakDays:
		return p.LongestStreak >= a.Threshold
	case KindLevel:
		return p.Level >= a.Threshold
	case KindCompletions:
		return p.Completions >= a.Threshold
	case KindPoints:
		return p.Points >= a.Threshold
	case KindPerfectWeeks:
		return p.PerfectWeeks >= a.Threshold
	default:
		return false
	}
}

// CountPerfectWeeks counts ISO weeks where all seven days have a perfect snapshot.
func CountPerfectWeeks(snaps []models.DailySnapshot) int {
	type week struct{ year, num int }
	perfect := map[week]map[string]struct{}{}
	for _, s := range snaps {
		if !s.Perfect() {
			continue
		}
		y, n := s.LogicalDay.ISOWeek()
		k := week{y, n}
		if perfect[k] == nil {
			perfect[k] = map[string]struct{}{}
		}
		perfect[k][s.LogicalDay.String()] = struct{}{}
	}
	count := 0
	for _, days := range perfect {
		if len(days) == 7 {
			count++
		}
	}
	return count
}

type AchievementEvaluator struct {
	db      *gorm.DB
	log     *zap.Logger
	catalog []Achievement
}

func NewAchievementEvaluator(db *gorm.DB, log *zap.Logger) *AchievementEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &AchievementEvaluator{db: db, log: log, catalog: Catalog}
}

// Progress loads the aggregates used by the catalog.
func (a *AchievementEvaluator) Progress(ctx context.Context, userID string, withPerfectWeeks bool) (Progress, error) {
	db := a.db.WithContext(ctx)
	var stats models.GamificationStats
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&stats).Error; err != nil {
		return Progress{}, fmt.Errorf("load stats: %w", err)
	}
	var completions int64
	if err := db.Model(&models.ObligationInstance{}).
		Where("user_id = ? AND status = ?", userID, models.StatusDone).
		Count(&completions).Error; err != nil {
		return Progress{}, fmt.Errorf("count completions: %w", err)
	}
	p := Progress{
		LongestStreak: stats.LongestStreak,
		Level:         Level(stats.Points),
		Completions:   int(completions),
		Points:        stats.Points,
	}
	if withPerfectWeeks {
		var snaps []models.DailySnapshot
		if err := db.Where("user_id = ? AND total_count > 0 AND completed_count = total_count", userID).
			Find(&snaps).Error; err != nil {
			return Progress{}, fmt.Errorf("load snapshots: %w", err)
		}
		p.PerfectWeeks = CountPerfectWeeks(snaps)
	}
	return p, nil
}

// Unlocked lists the user's unlock rows, oldest first.
func (a *AchievementEvaluator) Unlocked(ctx context.Context, userID string) ([]models.AchievementUnlock, error) {
	var rows []models.AchievementUnlock
	err := a.db.WithContext(ctx).Where("user_id = ?", userID).Order("unlocked_at, id").Find(&rows).Error
	return rows, err
}

// CheckUnlocks grants every catalog entry the user newly satisfies and credits
// its bonus. Already-unlocked entries are filtered out first, so repeated calls
// are no-ops for them.
func (a *AchievementEvaluator) CheckUnlocks(ctx context.Context, userID string) ([]Achievement, error) {
	existing, err := a.Unlocked(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load unlocks: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		have[u.AchievementID] = struct{}{}
	}

	var pending []Achievement
	needWeeks := false
	for _, ach := range a.catalog {
		if _, ok := have[ach.ID]; ok {
			continue
		}
		pending = append(pending, ach)
		needWeeks = needWeeks || ach.Kind == KindPerfectWeeks
	}
	if len(pending) == 0 {
		return nil, nil
	}

	progress, err := a.Progress(ctx, userID, needWeeks)
	if err != nil {
		return nil, err
	}

	var satisfied []Achievement
	for _, ach := range pending {
		if ach.Satisfied(progress) {
			satisfied = append(satisfied, ach)
		}
	}
	if len(satisfied) == 0 {
		return nil, nil
	}

	var granted []Achievement
	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		granted = granted[:0]
		bonus := 0
		now := time.Now()
		for _, ach := range satisfied {
			row := models.AchievementUnlock{
				UserID:        userID,
				AchievementID: ach.ID,
				BonusPoints:   ach.BonusPoints,
				UnlockedAt:    now,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
				DoNothing: true,
			}).Create(&row)
			if res.Error != nil {
				return fmt.Errorf("unlock %s: %w", ach.ID, res.Error)
			}
			if res.RowsAffected == 1 {
				granted = append(granted, ach)
				bonus += ach.BonusPoints
			}
		}
		if bonus == 0 {
			return nil
		}
		stats, err := lockStats(tx, userID)
		if err != nil {
			return err
		}
		stats.Points += bonus
		stats.Level = Level(stats.Points)
		return saveStats(tx, stats)
	})
	if err != nil {
		return nil, err
	}

	for _, ach := range granted {
		a.log.Info("achievement unlocked", zap.String("user_id", userID), zap.String("achievement", ach.ID))
	}
	return granted, nil
}
