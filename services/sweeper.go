package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
)

// Sweeper closes out finished logical days: pending instances become skipped
// and each active user gets one immutable DailySnapshot.
type Sweeper struct {
	db       *gorm.DB
	resolver *logicalday.Resolver
	ledger   Ledger
	log      *zap.Logger
}

func NewSweeper(db *gorm.DB, resolver *logicalday.Resolver, ledger Ledger, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = logicalday.NewResolver(log)
	}
	if ledger == nil {
		ledger = NopLedger{}
	}
	return &Sweeper{db: db, resolver: resolver, ledger: ledger, log: log}
}

// SweepRequest selects the day to close. Without AsOfDate every user is swept
// for their own yesterday, resolved in their timezone at Now.
type SweepRequest struct {
	AsOfDate *logicalday.Date `json:"asOfDate"`
	Now      time.Time        `json:"-"`
}

type SweepResult struct {
	RunID            string   `json:"runId"`
	AsOfDate         string   `json:"asOfDate,omitempty"`
	UsersProcessed   int      `json:"usersProcessed"`
	InstancesExpired int64    `json:"instancesExpired"`
	SnapshotsCreated int64    `json:"snapshotsCreated"`
	Errors           []string `json:"errors"`
}

// earliestZone is the first timezone to finish any calendar day (UTC+14).
const earliestZone = "Etc/GMT-14"

func (s *Sweeper) Sweep(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	if req.Now.IsZero() {
		req.Now = s.resolver.Now()
	}
	if req.AsOfDate != nil && !req.AsOfDate.Before(s.resolver.Resolve(req.Now, earliestZone)) {
		return nil, fmt.Errorf("sweep %s: %w", req.AsOfDate, ErrDayNotClosed)
	}
	if err := Ping(ctx, s.db); err != nil {
		return nil, err
	}
	result := &SweepResult{RunID: uuid.NewString(), Errors: []string{}}
	log := s.log.With(zap.String("run_id", result.RunID))

	targets, open, err := s.targets(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if req.AsOfDate != nil {
		result.AsOfDate = req.AsOfDate.String()
	}
	for _, userID := range open {
		result.Errors = append(result.Errors, fmt.Sprintf("user %s day %s: %v", userID, req.AsOfDate, ErrDayNotClosed))
	}

	userIDs := make([]string, 0, len(targets))
	for id := range targets {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	for _, userID := range userIDs {
		day := targets[userID]
		expired, created, err := s.SweepUser(ctx, userID, day)
		result.InstancesExpired += expired
		if err != nil {
			log.Warn("sweep user failed", zap.String("user_id", userID), zap.String("day", day.String()), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("user %s day %s: %v", userID, day, err))
			continue
		}
		result.UsersProcessed++
		result.SnapshotsCreated += created
	}

	log.Info("sweep finished",
		zap.Int("users", result.UsersProcessed),
		zap.Int64("expired", result.InstancesExpired),
		zap.Int64("snapshots", result.SnapshotsCreated),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// targets picks the day to close for every user that has obligations near it.
// With AsOfDate, users whose local day has not ended yet are returned in open.
func (s *Sweeper) targets(ctx context.Context, req SweepRequest) (map[string]logicalday.Date, []string, error) {
	out := map[string]logicalday.Date{}
	now := req.Now
	if req.AsOfDate != nil {
		var (
			ids  []string
			open []string
		)
		err := s.db.WithContext(ctx).Model(&models.ObligationInstance{}).
			Where("logical_day = ?", *req.AsOfDate).
			Distinct().
			Pluck("user_id", &ids).Error
		if err != nil {
			return nil, nil, err
		}
		tzs, err := timezones(ctx, s.db, ids)
		if err != nil {
			return nil, nil, err
		}
		sort.Strings(ids)
		for _, id := range ids {
			if !req.AsOfDate.Before(s.resolver.Resolve(now, tzs[id])) {
				open = append(open, id)
				continue
			}
			out[id] = *req.AsOfDate
		}
		return out, open, nil
	}

	// Every timezone's yesterday lies within two days before the UTC date.
	utcToday := logicalday.FromTime(now.UTC())
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.ObligationInstance{}).
		Where("logical_day BETWEEN ? AND ?", utcToday.AddDays(-2), utcToday).
		Distinct().
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, nil, err
	}
	tzs, err := timezones(ctx, s.db, ids)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range ids {
		out[id] = s.resolver.Resolve(now, tzs[id]).Yesterday()
	}
	return out, nil, nil
}

// SweepUser expires the user's pending instances on day and writes the
// snapshot if none exists yet. Done and skipped rows are never touched.
func (s *Sweeper) SweepUser(ctx context.Context, userID string, day logicalday.Date) (expired, created int64, err error) {
	db := s.db.WithContext(ctx)

	res := db.Model(&models.ObligationInstance{}).
		Where("user_id = ? AND logical_day = ? AND status = ?", userID, day, models.StatusPending).
		Update("status", models.StatusSkipped)
	if res.Error != nil {
		return 0, 0, fmt.Errorf("expire pending: %w", res.Error)
	}
	expired = res.RowsAffected

	var counts []struct {
		Status models.InstanceStatus
		N      int
	}
	err = db.Model(&models.ObligationInstance{}).
		Select("status, COUNT(*) AS n").
		Where("user_id = ? AND logical_day = ?", userID, day).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return expired, 0, fmt.Errorf("count instances: %w", err)
	}

	snap := models.DailySnapshot{UserID: userID, LogicalDay: day}
	for _, c := range counts {
		snap.TotalCount += c.N
		switch c.Status {
		case models.StatusDone:
			snap.CompletedCount += c.N
		case models.StatusSkipped:
			snap.SkippedCount += c.N
		}
	}
	if snap.TotalCount == 0 {
		return expired, 0, nil
	}

	income, expense, err := s.ledger.DailyTotals(ctx, userID, day)
	if err != nil {
		return expired, 0, err
	}
	snap.Income = income
	snap.Expense = expense
	snap.NetFlow = income - expense

	res = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "logical_day"}},
		DoNothing: true,
	}).Create(&snap)
	if res.Error != nil {
		return expired, 0, fmt.Errorf("write snapshot: %w", res.Error)
	}
	return expired, res.RowsAffected, nil
}
