package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
	"github.com/cppla/habitcore/recurrence"
)

func TestMaterializeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "alice", "America/New_York")
	seedTask(t, db, "alice", "daily", instant(t, "2024-04-20T15:00:00Z"))
	// 2024-05-02 02:00Z is Wednesday evening in New York
	weekly := seedTask(t, db, "alice", "weekly", instant(t, "2024-05-02T02:00:00Z"))

	m := NewMaterializer(db, nil, nil)
	start, end := day("2024-05-01"), day("2024-05-14")

	created, err := m.Materialize(ctx, "alice", start, end)
	require.NoError(t, err)
	require.Equal(t, 14+2, created)

	created, err = m.Materialize(ctx, "alice", start, end)
	require.NoError(t, err)
	require.Zero(t, created)

	var total int64
	require.NoError(t, db.Model(&models.ObligationInstance{}).Count(&total).Error)
	require.EqualValues(t, 16, total)

	var weeklyDays []logicalday.Date
	require.NoError(t, db.Model(&models.ObligationInstance{}).
		Where("task_id = ?", weekly.ID).Order("logical_day").
		Pluck("logical_day", &weeklyDays).Error)
	require.Equal(t, []logicalday.Date{day("2024-05-01"), day("2024-05-08")}, weeklyDays)
	for _, d := range weeklyDays {
		require.Equal(t, time.Wednesday, d.Weekday())
	}
}

func TestMaterializeOverlappingRangesOnlyFillsGaps(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTask(t, db, "bob", "daily", instant(t, "2024-01-01T00:00:00Z"))
	m := NewMaterializer(db, nil, nil)

	n, err := m.Materialize(ctx, "bob", day("2024-05-01"), day("2024-05-05"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	n, err = m.Materialize(ctx, "bob", day("2024-05-04"), day("2024-05-10"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestMaterializeSkipsDeletedTasksAndUnknownRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	gone := seedTask(t, db, "carol", "daily", instant(t, "2024-01-01T00:00:00Z"))
	require.NoError(t, db.Delete(&gone).Error)
	seedTask(t, db, "carol", "monthly", instant(t, "2024-01-01T00:00:00Z"))
	require.NoError(t, db.Create(&models.RecurringTask{UserID: "carol", Title: "no rule"}).Error)

	m := NewMaterializer(db, nil, nil)
	n, err := m.Materialize(ctx, "carol", day("2024-05-01"), day("2024-05-03"))
	require.NoError(t, err)
	require.Zero(t, n)

	res, err := m.Run(ctx, MaterializeRequest{UserIDs: []string{"carol"}, StartDate: day("2024-05-01"), EndDate: day("2024-05-03")})
	require.NoError(t, err)
	require.Equal(t, 1, res.UsersProcessed)
	require.Zero(t, res.InstancesCreated)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "carol", res.Errors[0].UserID)
	require.Contains(t, res.Errors[0].ErrorMessage, recurrence.ErrUnknownRuleKind.Error())
	require.Contains(t, res.Errors[0].ErrorMessage, "monthly")
}

func TestMaterializeRejectsBadRanges(t *testing.T) {
	db := newTestDB(t)
	m := NewMaterializer(db, nil, nil)
	ctx := context.Background()

	_, err := m.Materialize(ctx, "dave", day("2024-05-01"), day("2024-06-01"))
	require.ErrorIs(t, err, logicalday.ErrRangeTooLong)

	_, err = m.Materialize(ctx, "dave", day("2024-05-02"), day("2024-05-01"))
	require.ErrorIs(t, err, logicalday.ErrInvalidRange)

	_, err = m.Run(ctx, MaterializeRequest{StartDate: day("2024-05-01"), EndDate: day("2024-06-15")})
	require.ErrorIs(t, err, logicalday.ErrRangeTooLong)
}

func TestUniqueKeyIsEnforcedByStorage(t *testing.T) {
	db := newTestDB(t)
	row := models.ObligationInstance{TaskID: 1, UserID: "erin", LogicalDay: day("2024-05-01"), Status: models.StatusPending}
	require.NoError(t, db.Create(&row).Error)
	dup := row
	dup.ID = 0
	require.Error(t, db.Create(&dup).Error)
}

func TestRunDefaultsToUsersWithActiveRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTask(t, db, "u1", "daily", instant(t, "2024-01-01T00:00:00Z"))
	seedTask(t, db, "u2", "daily", instant(t, "2024-01-01T00:00:00Z"))
	deleted := seedTask(t, db, "u3", "daily", instant(t, "2024-01-01T00:00:00Z"))
	require.NoError(t, db.Delete(&deleted).Error)

	m := NewMaterializer(db, nil, nil)
	req := MaterializeRequest{StartDate: day("2024-05-01"), EndDate: day("2024-05-07"), DryRun: true}

	res, err := m.Run(ctx, req)
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.Equal(t, 2, res.UsersProcessed)
	require.Equal(t, 14, res.WouldProcess)
	require.Zero(t, res.InstancesCreated)
	require.NotNil(t, res.Errors)
	var total int64
	require.NoError(t, db.Model(&models.ObligationInstance{}).Count(&total).Error)
	require.Zero(t, total)

	req.DryRun = false
	res, err = m.Run(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 2, res.UsersProcessed)
	require.Equal(t, 14, res.InstancesCreated)
	require.Equal(t, map[string]int{"u1": 7, "u2": 7}, res.CreatedByUser)
	require.Empty(t, res.Errors)
	require.NotEmpty(t, res.RunID)
}

func TestRunCollectsPerUserFailures(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTask(t, db, "ok", "daily", instant(t, "2024-01-01T00:00:00Z"))
	seedTask(t, db, "busy", "daily", instant(t, "2024-01-01T00:00:00Z"))

	m := NewMaterializer(db, nil, nil)
	m.locker = denyLocker{userID: "busy"}

	res, err := m.Run(ctx, MaterializeRequest{
		UserIDs:   []string{"ok", "busy", "ok", " "},
		StartDate: day("2024-05-01"),
		EndDate:   day("2024-05-03"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.UsersProcessed)
	require.Equal(t, 3, res.InstancesCreated)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "busy", res.Errors[0].UserID)
	require.Contains(t, res.Errors[0].ErrorMessage, ErrLocked.Error())
}

func TestRunFailsHardWhenStorageIsGone(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = NewMaterializer(db, nil, nil).Run(context.Background(), MaterializeRequest{
		StartDate: day("2024-05-01"),
		EndDate:   day("2024-05-02"),
	})
	require.ErrorIs(t, err, ErrStorageUnavailable)
}
