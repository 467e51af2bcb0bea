package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
	"github.com/cppla/habitcore/recurrence"
)

const (
	materializeBatchSize = 500
	materializeLockTTL   = 2 * time.Minute
)

// Materializer turns recurrence rules into pending obligation instances.
//
// It pre-reads existing (task_id, logical_day) keys only to avoid pointless
// writes. Correctness under concurrent runs comes from the unique index and the
// insert-or-ignore write; the optional Locker merely keeps two runs for the same
// user from doing the same work.
type Materializer struct {
	db       *gorm.DB
	resolver *logicalday.Resolver
	log      *zap.Logger
	locker   Locker
	maxDays  int
}

func NewMaterializer(db *gorm.DB, resolver *logicalday.Resolver, log *zap.Logger) *Materializer {
	if log == nil {
		log = zap.NewNop()
	}
	if resolver == nil {
		resolver = logicalday.NewResolver(log)
	}
	return &Materializer{db: db, resolver: resolver, log: log, maxDays: logicalday.MaxRangeDays}
}

// MaterializeRequest is the batch trigger input.
type MaterializeRequest struct {
	UserIDs   []string        `json:"userIds"`
	StartDate logicalday.Date `json:"startDate"`
	EndDate   logicalday.Date `json:"endDate"`
	DryRun    bool            `json:"dryRun"`
}

// UserError is one user's failure inside a batch.
type UserError struct {
	UserID       string `json:"userId"`
	ErrorMessage string `json:"errorMessage"`
}

type MaterializeResult struct {
	RunID            string         `json:"runId"`
	DryRun           bool           `json:"dryRun"`
	StartDate        string         `json:"startDate"`
	EndDate          string         `json:"endDate"`
	DaysInRange      int            `json:"daysInRange"`
	UsersProcessed   int            `json:"usersProcessed"`
	WouldProcess     int            `json:"wouldProcess,omitempty"`
	InstancesCreated int            `json:"instancesCreated"`
	CreatedByUser    map[string]int `json:"createdByUser"`
	Errors           []UserError    `json:"errors"`
}

type instanceKey struct {
	taskID uint
	day    logicalday.Date
}

type dueRule struct {
	taskID  uint
	rule    recurrence.Rule
	created *logicalday.Date
}

// Run materializes a range for many users. Range errors are returned before any
// work; a storage outage is returned as ErrStorageUnavailable; anything else is
// recorded per user and the loop moves on.
func (m *Materializer) Run(ctx context.Context, req MaterializeRequest) (*MaterializeResult, error) {
	if err := logicalday.ValidateRange(req.StartDate, req.EndDate, m.maxDays); err != nil {
		return nil, err
	}
	if err := Ping(ctx, m.db); err != nil {
		return nil, err
	}

	userIDs := uniqueIDs(req.UserIDs)
	if len(req.UserIDs) == 0 {
		var err error
		if userIDs, err = m.usersWithActiveRules(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	days := req.StartDate.DaysUntil(req.EndDate) + 1
	result := &MaterializeResult{
		RunID:         uuid.NewString(),
		DryRun:        req.DryRun,
		StartDate:     req.StartDate.String(),
		EndDate:       req.EndDate.String(),
		DaysInRange:   days,
		CreatedByUser: map[string]int{},
		Errors:        []UserError{},
	}
	log := m.log.With(zap.String("run_id", result.RunID))

	if req.DryRun {
		result.UsersProcessed = len(userIDs)
		result.WouldProcess = len(userIDs) * days
		log.Info("materialize dry run", zap.Int("users", len(userIDs)), zap.Int("days", days))
		return result, nil
	}

	for _, userID := range userIDs {
		created, skipped, err := m.materialize(ctx, userID, req.StartDate, req.EndDate)
		for _, msg := range skipped {
			result.Errors = append(result.Errors, UserError{UserID: userID, ErrorMessage: msg})
		}
		if err != nil {
			log.Warn("materialize user failed", zap.String("user_id", userID), zap.Error(err))
			result.Errors = append(result.Errors, UserError{UserID: userID, ErrorMessage: err.Error()})
			continue
		}
		result.UsersProcessed++
		result.InstancesCreated += created
		result.CreatedByUser[userID] = created
	}

	log.Info("materialize finished",
		zap.String("start", result.StartDate),
		zap.String("end", result.EndDate),
		zap.Int("users", result.UsersProcessed),
		zap.Int("created", result.InstancesCreated),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// Materialize ensures one pending instance per due (task, day) in [start, end]
// for a single user and returns how many rows were actually inserted.
func (m *Materializer) Materialize(ctx context.Context, userID string, start, end logicalday.Date) (int, error) {
	n, _, err := m.materialize(ctx, userID, start, end)
	return n, err
}

// materialize also returns one message per task skipped for an unusable rule.
func (m *Materializer) materialize(ctx context.Context, userID string, start, end logicalday.Date) (int, []string, error) {
	if err := logicalday.ValidateRange(start, end, m.maxDays); err != nil {
		return 0, nil, err
	}
	if m.locker != nil {
		release, ok := m.locker.TryLock(ctx, "materialize:"+userID, materializeLockTTL)
		if !ok {
			return 0, nil, fmt.Errorf("materialize %s: %w", userID, ErrLocked)
		}
		defer release()
	}

	rules, skipped, err := m.loadRules(ctx, userID)
	if err != nil {
		return 0, skipped, err
	}
	if len(rules) == 0 {
		return 0, skipped, nil
	}

	taskIDs := make([]uint, 0, len(rules))
	for _, r := range rules {
		taskIDs = append(taskIDs, r.taskID)
	}
	existing, err := m.existingKeys(ctx, taskIDs, start, end)
	if err != nil {
		return 0, skipped, err
	}

	var queued []models.ObligationInstance
	for _, day := range logicalday.Range(start, end) {
		for _, r := range rules {
			if !recurrence.IsDue(r.rule, day, r.created) {
				continue
			}
			key := instanceKey{taskID: r.taskID, day: day}
			if _, ok := existing[key]; ok {
				continue
			}
			existing[key] = struct{}{}
			queued = append(queued, models.ObligationInstance{
				TaskID:     r.taskID,
				UserID:     userID,
				LogicalDay: day,
				Status:     models.StatusPending,
			})
		}
	}
	if len(queued) == 0 {
		return 0, skipped, nil
	}

	res := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}, {Name: "logical_day"}},
			DoNothing: true,
		}).
		CreateInBatches(&queued, materializeBatchSize)
	if res.Error != nil {
		return 0, skipped, fmt.Errorf("insert instances for %s: %w", userID, res.Error)
	}
	if int(res.RowsAffected) < len(queued) {
		m.log.Debug("concurrent materialization detected",
			zap.String("user_id", userID),
			zap.Int("queued", len(queued)),
			zap.Int64("inserted", res.RowsAffected))
	}
	return int(res.RowsAffected), skipped, nil
}

func (m *Materializer) loadRules(ctx context.Context, userID string) ([]dueRule, []string, error) {
	var tasks []models.RecurringTask
	err := m.db.WithContext(ctx).
		Preload("Rule").
		Where("user_id = ?", userID).
		Order("id").
		Find(&tasks).Error
	if err != nil {
		return nil, nil, fmt.Errorf("load rules for %s: %w", userID, err)
	}

	var tz string
	if len(tasks) > 0 {
		var user models.User
		err := m.db.WithContext(ctx).Select("id", "timezone").Where("id = ?", userID).Take(&user).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("load profile for %s: %w", userID, err)
		}
		tz = user.Timezone
	}

	out := make([]dueRule, 0, len(tasks))
	var skipped []string
	for _, t := range tasks {
		if t.Rule == nil {
			continue
		}
		rule, err := recurrence.FromKind(t.Rule.Kind, t.Rule.AnchorWeekday)
		if err != nil {
			m.log.Warn("skipping task with unusable rule", zap.Uint("task_id", t.ID), zap.Error(err))
			skipped = append(skipped, fmt.Sprintf("task %d skipped: %v", t.ID, err))
			continue
		}
		var created *logicalday.Date
		if !t.CreatedAt.IsZero() {
			d := m.resolver.Resolve(t.CreatedAt, tz)
			created = &d
		}
		out = append(out, dueRule{taskID: t.ID, rule: rule, created: created})
	}
	return out, skipped, nil
}

func (m *Materializer) existingKeys(ctx context.Context, taskIDs []uint, start, end logicalday.Date) (map[instanceKey]struct{}, error) {
	var rows []struct {
		TaskID     uint
		LogicalDay logicalday.Date
	}
	err := m.db.WithContext(ctx).Model(&models.ObligationInstance{}).
		Select("task_id", "logical_day").
		Where("task_id IN ? AND logical_day BETWEEN ? AND ?", taskIDs, start, end).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load existing instances: %w", err)
	}
	out := make(map[instanceKey]struct{}, len(rows))
	for _, r := range rows {
		out[instanceKey{taskID: r.TaskID, day: r.LogicalDay}] = struct{}{}
	}
	return out, nil
}

func (m *Materializer) usersWithActiveRules(ctx context.Context) ([]string, error) {
	var ids []string
	err := m.db.WithContext(ctx).Model(&models.RecurringTask{}).
		Joins("JOIN recurrence_rules ON recurrence_rules.task_id = recurring_tasks.id").
		Distinct().
		Order("recurring_tasks.user_id").
		Pluck("recurring_tasks.user_id", &ids).Error
	return ids, err
}
