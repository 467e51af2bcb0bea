package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
)

var (
	// ErrStorageUnavailable is the only failure that aborts a whole batch.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInstanceNotFound   = errors.New("obligation instance not found")
	ErrInstanceTerminal   = errors.New("obligation instance already finalized")
	ErrInvalidDefer       = errors.New("defer target must be after the instance day")
	ErrLocked             = errors.New("another run holds the lock")
	ErrDayNotClosed       = errors.New("logical day has not ended yet")
)

// Locker serializes work per key across processes. Implementations should fail open.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool)
}

// Options configures New. Zero values fall back to defaults.
type Options struct {
	Logger       *zap.Logger
	Resolver     *logicalday.Resolver
	Ledger       Ledger
	Locker       Locker
	Points       PointsConfig
	MaxRangeDays int
}

// Core bundles the temporal services over one database handle.
type Core struct {
	db *gorm.DB

	Resolver     *logicalday.Resolver
	Materializer *Materializer
	Sweeper      *Sweeper
	Streaks      *StreakEngine
	Achievements *AchievementEvaluator
	Completion   *CompletionService
}

func New(db *gorm.DB, opts Options) *Core {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Resolver == nil {
		opts.Resolver = logicalday.NewResolver(opts.Logger)
	}
	if opts.Ledger == nil {
		opts.Ledger = NewGormLedger(db)
	}
	if opts.Points == (PointsConfig{}) {
		opts.Points = DefaultPointsConfig()
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = logicalday.MaxRangeDays
	}

	streaks := NewStreakEngine(db, opts.Resolver, opts.Points, opts.Logger)
	achievements := NewAchievementEvaluator(db, opts.Logger)
	mat := NewMaterializer(db, opts.Resolver, opts.Logger)
	mat.maxDays = opts.MaxRangeDays
	mat.locker = opts.Locker

	return &Core{
		db:           db,
		Resolver:     opts.Resolver,
		Materializer: mat,
		Sweeper:      NewSweeper(db, opts.Resolver, opts.Ledger, opts.Logger),
		Streaks:      streaks,
		Achievements: achievements,
		Completion:   NewCompletionService(db, streaks, achievements, opts.Logger),
	}
}

// DB returns the handle the services were built over.
func (c *Core) DB() *gorm.DB { return c.db }

// Ping fails with ErrStorageUnavailable when the database cannot be reached.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// timezones maps each user to its profile timezone. Users without a profile map to "".
func timezones(ctx context.Context, db *gorm.DB, userIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var users []models.User
	if err := db.WithContext(ctx).Select("id", "timezone").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load user timezones: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u.Timezone
	}
	return out, nil
}

// uniqueIDs trims, drops blanks and dedupes, keeping a stable order.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
