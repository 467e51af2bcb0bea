package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/models"
)

func markDone(t *testing.T, db *gorm.DB, id uint) {
	t.Helper()
	require.NoError(t, db.Model(&models.ObligationInstance{}).Where("id = ?", id).
		Update("status", models.StatusDone).Error)
}

func TestSweepExpiresPendingAndSnapshotsOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTask(t, db, "alice", "daily", instant(t, "2024-01-01T00:00:00Z"))
	seedTask(t, db, "alice", "daily", instant(t, "2024-01-01T00:00:00Z"))
	seedTask(t, db, "alice", "daily", instant(t, "2024-01-01T00:00:00Z"))
	_, err := NewMaterializer(db, nil, nil).Materialize(ctx, "alice", day("2024-05-01"), day("2024-05-02"))
	require.NoError(t, err)

	may1 := instancesOn(t, db, "alice", day("2024-05-01"))
	require.Len(t, may1, 3)
	markDone(t, db, may1[0].ID)
	require.NoError(t, db.Model(&models.ObligationInstance{}).Where("id = ?", may1[1].ID).
		Update("status", models.StatusSkipped).Error)

	require.NoError(t, db.Create(&[]models.LedgerEntry{
		{UserID: "alice", LogicalDay: day("2024-05-01"), Kind: models.LedgerIncome, Amount: 5000},
		{UserID: "alice", LogicalDay: day("2024-05-01"), Kind: models.LedgerExpense, Amount: 700},
		{UserID: "alice", LogicalDay: day("2024-05-01"), Kind: models.LedgerExpense, Amount: 500},
		{UserID: "alice", LogicalDay: day("2024-05-02"), Kind: models.LedgerIncome, Amount: 999},
	}).Error)

	s := NewSweeper(db, nil, NewGormLedger(db), nil)
	asOf := day("2024-05-01")
	res, err := s.Sweep(ctx, SweepRequest{AsOfDate: &asOf})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.InstancesExpired)
	require.EqualValues(t, 1, res.SnapshotsCreated)
	require.Equal(t, 1, res.UsersProcessed)
	require.Empty(t, res.Errors)
	require.Equal(t, "2024-05-01", res.AsOfDate)

	var snap models.DailySnapshot
	require.NoError(t, db.Where("user_id = ? AND logical_day = ?", "alice", asOf).First(&snap).Error)
	require.Equal(t, 3, snap.TotalCount)
	require.Equal(t, 1, snap.CompletedCount)
	require.Equal(t, 2, snap.SkippedCount)
	require.EqualValues(t, 5000, snap.Income)
	require.EqualValues(t, 1200, snap.Expense)
	require.EqualValues(t, 3800, snap.NetFlow)

	after := instancesOn(t, db, "alice", asOf)
	require.Equal(t, models.StatusDone, after[0].Status)
	require.Equal(t, models.StatusSkipped, after[1].Status)
	require.Equal(t, models.StatusSkipped, after[2].Status)
	for _, inst := range instancesOn(t, db, "alice", day("2024-05-02")) {
		require.Equal(t, models.StatusPending, inst.Status)
	}

	// Re-sweeping the same day changes nothing.
	res, err = s.Sweep(ctx, SweepRequest{AsOfDate: &asOf})
	require.NoError(t, err)
	require.Zero(t, res.InstancesExpired)
	require.Zero(t, res.SnapshotsCreated)
	require.Equal(t, after, instancesOn(t, db, "alice", asOf))
	var snaps int64
	require.NoError(t, db.Model(&models.DailySnapshot{}).Count(&snaps).Error)
	require.EqualValues(t, 1, snaps)
}

func TestSweepWithoutDateUsesEachUsersYesterday(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "tokyo", "Asia/Tokyo")
	seedUser(t, db, "la", "America/Los_Angeles")
	m := NewMaterializer(db, nil, nil)
	for _, u := range []string{"tokyo", "la"} {
		seedTask(t, db, u, "daily", instant(t, "2024-01-01T00:00:00Z"))
		_, err := m.Materialize(ctx, u, day("2024-04-30"), day("2024-05-02"))
		require.NoError(t, err)
	}

	// 12:00 May 2 in Tokyo, 20:00 May 1 in Los Angeles.
	res, err := NewSweeper(db, nil, NopLedger{}, nil).Sweep(ctx, SweepRequest{Now: instant(t, "2024-05-02T03:00:00Z")})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.InstancesExpired)
	require.EqualValues(t, 2, res.SnapshotsCreated)

	require.Equal(t, models.StatusSkipped, instancesOn(t, db, "tokyo", day("2024-05-01"))[0].Status)
	require.Equal(t, models.StatusPending, instancesOn(t, db, "tokyo", day("2024-04-30"))[0].Status)
	require.Equal(t, models.StatusSkipped, instancesOn(t, db, "la", day("2024-04-30"))[0].Status)
	require.Equal(t, models.StatusPending, instancesOn(t, db, "la", day("2024-05-01"))[0].Status)
}

type failingLedger struct{ userID string }

func (f failingLedger) DailyTotals(_ context.Context, userID string, _ logicalday.Date) (int64, int64, error) {
	if userID == f.userID {
		return 0, 0, errors.New("ledger offline")
	}
	return 10, 0, nil
}

func TestSweepCollectsSnapshotFailures(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := NewMaterializer(db, nil, nil)
	for _, u := range []string{"a", "b"} {
		seedTask(t, db, u, "daily", instant(t, "2024-01-01T00:00:00Z"))
		_, err := m.Materialize(ctx, u, day("2024-05-01"), day("2024-05-01"))
		require.NoError(t, err)
	}

	asOf := day("2024-05-01")
	res, err := NewSweeper(db, nil, failingLedger{userID: "a"}, nil).Sweep(ctx, SweepRequest{AsOfDate: &asOf})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.InstancesExpired)
	require.EqualValues(t, 1, res.SnapshotsCreated)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "user a")
	require.Contains(t, res.Errors[0], "ledger offline")
}

func TestSweepRejectsDayThatHasNotEnded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTask(t, db, "u1", "daily", instant(t, "2024-01-01T00:00:00Z"))
	_, err := NewMaterializer(db, nil, nil).Materialize(ctx, "u1", day("2024-05-10"), day("2024-05-11"))
	require.NoError(t, err)
	sw := NewSweeper(db, nil, NopLedger{}, nil)
	now := instant(t, "2024-05-10T09:00:00Z")

	for _, d := range []string{"2024-05-10", "2024-05-11"} {
		asOf := day(d)
		_, err = sw.Sweep(ctx, SweepRequest{AsOfDate: &asOf, Now: now})
		require.ErrorIs(t, err, ErrDayNotClosed, d)
		require.Equal(t, models.StatusPending, instancesOn(t, db, "u1", asOf)[0].Status)
	}
	var snaps int64
	require.NoError(t, db.Model(&models.DailySnapshot{}).Count(&snaps).Error)
	require.Zero(t, snaps)
}

func TestSweepSkipsUsersStillInsideTheDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedUser(t, db, "tokyo", "Asia/Tokyo")
	seedUser(t, db, "la", "America/Los_Angeles")
	m := NewMaterializer(db, nil, nil)
	for _, u := range []string{"tokyo", "la"} {
		seedTask(t, db, u, "daily", instant(t, "2024-01-01T00:00:00Z"))
		_, err := m.Materialize(ctx, u, day("2024-05-10"), day("2024-05-10"))
		require.NoError(t, err)
	}

	// 05:00 May 11 in Tokyo, 13:00 May 10 in Los Angeles.
	asOf := day("2024-05-10")
	res, err := NewSweeper(db, nil, NopLedger{}, nil).Sweep(ctx, SweepRequest{AsOfDate: &asOf, Now: instant(t, "2024-05-10T20:00:00Z")})
	require.NoError(t, err)
	require.Equal(t, 1, res.UsersProcessed)
	require.EqualValues(t, 1, res.InstancesExpired)
	require.Len(t, res.Errors, 1)
	require.Contains(t, res.Errors[0], "user la")
	require.Equal(t, models.StatusSkipped, instancesOn(t, db, "tokyo", asOf)[0].Status)
	require.Equal(t, models.StatusPending, instancesOn(t, db, "la", asOf)[0].Status)
}
