package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
)

// CompletionService applies user actions to single instances and fans out to
// the streak and achievement engines.
type CompletionService struct {
	db           *gorm.DB
	streaks      *StreakEngine
	achievements *AchievementEvaluator
	log          *zap.Logger
}

func NewCompletionService(db *gorm.DB, streaks *StreakEngine, achievements *AchievementEvaluator, log *zap.Logger) *CompletionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CompletionService{db: db, streaks: streaks, achievements: achievements, log: log}
}

type CompleteOutcome struct {
	Instance   models.ObligationInstance `json:"instance"`
	Completion *CompletionResult         `json:"completion"`
	Unlocked   []Achievement             `json:"unlocked"`
}

func (s *CompletionService) load(ctx context.Context, instanceID uint) (*models.ObligationInstance, error) {
	var inst models.ObligationInstance
	if err := s.db.WithContext(ctx).First(&inst, instanceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return &inst, nil
}

// Complete moves a pending instance to done and credits the streak for the
// instance's own logical day.
func (s *CompletionService) Complete(ctx context.Context, instanceID uint, at time.Time) (*CompleteOutcome, error) {
	inst, err := s.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status.Terminal() {
		return nil, ErrInstanceTerminal
	}
	if at.IsZero() {
		at = time.Now()
	}

	// the status change and the streak credit commit together or not at all
	var result *CompletionResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ObligationInstance{}).
			Where("id = ? AND status = ?", inst.ID, models.StatusPending).
			Updates(map[string]interface{}{"status": models.StatusDone, "confirmed_at": at})
		if res.Error != nil {
			return fmt.Errorf("complete instance %d: %w", inst.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInstanceTerminal
		}
		var err error
		if result, err = s.streaks.recordCompletion(tx, inst.UserID, inst.LogicalDay, &inst.ID); err != nil {
			return fmt.Errorf("record completion: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.streaks.logCompletion(result)
	inst.Status = models.StatusDone
	inst.ConfirmedAt = &at
	out := &CompleteOutcome{Instance: *inst, Completion: result, Unlocked: []Achievement{}}

	unlocked, err := s.achievements.CheckUnlocks(ctx, inst.UserID)
	if err != nil {
		// evaluation is retried on the next completion
		s.log.Warn("achievement check failed", zap.String("user_id", inst.UserID), zap.Error(err))
	} else if len(unlocked) > 0 {
		out.Unlocked = unlocked
	}
	return out, nil
}

// Defer closes a pending instance as skipped and schedules the same task on a
// later day. If the task already has an instance on that day it is returned.
func (s *CompletionService) Defer(ctx context.Context, instanceID uint, to logicalday.Date) (*models.ObligationInstance, error) {
	inst, err := s.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status.Terminal() {
		return nil, ErrInstanceTerminal
	}
	if to.IsZero() || !to.After(inst.LogicalDay) {
		return nil, ErrInvalidDefer
	}

	var next models.ObligationInstance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ObligationInstance{}).
			Where("id = ? AND status = ?", inst.ID, models.StatusPending).
			Update("status", models.StatusSkipped)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInstanceTerminal
		}

		from := inst.ID
		next = models.ObligationInstance{
			TaskID:         inst.TaskID,
			UserID:         inst.UserID,
			LogicalDay:     to,
			Status:         models.StatusPending,
			DeferredFromID: &from,
		}
		res = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}, {Name: "logical_day"}},
			DoNothing: true,
		}).Create(&next)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			next = models.ObligationInstance{}
			return tx.Where("task_id = ? AND logical_day = ?", inst.TaskID, to).First(&next).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInstanceTerminal) {
			return nil, err
		}
		return nil, fmt.Errorf("defer instance %d: %w", instanceID, err)
	}
	s.log.Info("instance deferred", zap.Uint("from", instanceID), zap.Uint("to", next.ID), zap.String("day", to.String()))
	return &next, nil
}

// Day lists a user's instances on one logical day.
func (s *CompletionService) Day(ctx context.Context, userID string, day logicalday.Date) ([]models.ObligationInstance, error) {
	var rows []models.ObligationInstance
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND logical_day = ?", userID, day).
		Order("task_id").
		Find(&rows).Error
	return rows, err
}

// Today resolves the user's current logical day at now and lists its instances.
func (s *CompletionService) Today(ctx context.Context, userID string, now time.Time) (logicalday.Date, []models.ObligationInstance, error) {
	tzs, err := timezones(ctx, s.db, []string{userID})
	if err != nil {
		return logicalday.Date{}, nil, err
	}
	today := s.streaks.resolver.Resolve(now, tzs[userID])
	rows, err := s.Day(ctx, userID, today)
	return today, rows, err
}
