package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cppla/habitcore/models"
)

func newEngine(t *testing.T) (*StreakEngine, func(string) models.GamificationStats) {
	db := newTestDB(t)
	e := NewStreakEngine(db, nil, DefaultPointsConfig(), nil)
	return e, func(userID string) models.GamificationStats { return loadStats(t, db, userID) }
}

func TestRecordCompletionStartsStreakForNewUser(t *testing.T) {
	e, stats := newEngine(t)
	res, err := e.RecordCompletion(context.Background(), "u1", day("2024-05-10"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Streak)
	require.Equal(t, 11, res.PointsAwarded)
	require.True(t, res.IsNewRecord)
	require.True(t, res.StreakCredited)
	require.Equal(t, 1, res.Level)

	s := stats("u1")
	require.Equal(t, 1, s.CurrentStreak)
	require.Equal(t, 1, s.LongestStreak)
	require.Equal(t, 11, s.Points)
	require.Equal(t, day("2024-05-10"), *s.LastActiveDate)
}

func TestRecordCompletionExtendsStreakFromYesterday(t *testing.T) {
	e, stats := newEngine(t)
	seedStats(t, e.db, "u1", 3, 5, datePtr("2024-05-09"))

	res, err := e.RecordCompletion(context.Background(), "u1", day("2024-05-10"), nil)
	require.NoError(t, err)
	require.Equal(t, 4, res.Streak)
	require.Equal(t, 14, res.PointsAwarded)
	require.False(t, res.IsNewRecord)
	require.Equal(t, 5, stats("u1").LongestStreak)

	res, err = e.RecordCompletion(context.Background(), "u1", day("2024-05-11"), nil)
	require.NoError(t, err)
	require.Equal(t, 5, res.Streak)
	require.False(t, res.IsNewRecord)

	res, err = e.RecordCompletion(context.Background(), "u1", day("2024-05-12"), nil)
	require.NoError(t, err)
	require.Equal(t, 6, res.Streak)
	require.True(t, res.IsNewRecord)
	require.Equal(t, 6, stats("u1").LongestStreak)
}

func TestRecordCompletionAfterGapResetsToOne(t *testing.T) {
	e, stats := newEngine(t)
	seedStats(t, e.db, "u1", 5, 5, datePtr("2024-05-07"))

	res, err := e.RecordCompletion(context.Background(), "u1", day("2024-05-10"), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Streak)
	require.True(t, res.StreakCredited)
	s := stats("u1")
	require.Equal(t, 1, s.CurrentStreak)
	require.Equal(t, 5, s.LongestStreak)
}

func TestRecordCompletionSameDayCountsStreakOnce(t *testing.T) {
	e, stats := newEngine(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := e.RecordCompletion(ctx, "u1", day("2024-05-10"), nil)
		require.NoError(t, err)
		require.Equal(t, 1, res.Streak)
		require.Equal(t, i == 0, res.StreakCredited)
	}
	s := stats("u1")
	require.Equal(t, 1, s.CurrentStreak)
	require.Equal(t, 33, s.Points)
}

func TestRecordCompletionBackdatedRestartsStreak(t *testing.T) {
	e, stats := newEngine(t)
	seedStats(t, e.db, "u1", 4, 4, datePtr("2024-05-10"))

	res, err := e.RecordCompletion(context.Background(), "u1", day("2024-05-08"), nil)
	require.NoError(t, err)
	require.True(t, res.StreakCredited)
	require.Equal(t, 1, res.Streak)
	require.Equal(t, 4, res.LongestStreak)
	require.False(t, res.IsNewRecord)
	require.Equal(t, 11, res.PointsAwarded)
	require.Equal(t, day("2024-05-08"), *stats("u1").LastActiveDate)
}

func TestRecordCompletionRespectsDailyCap(t *testing.T) {
	e, stats := newEngine(t)
	ctx := context.Background()
	id := uint(7)
	total := 0
	for i := 0; i < 12; i++ {
		res, err := e.RecordCompletion(ctx, "u1", day("2024-05-10"), &id)
		require.NoError(t, err)
		total += res.PointsAwarded
	}
	require.Equal(t, 100, total)
	require.Equal(t, 100, stats("u1").Points)

	var logged int
	require.NoError(t, e.db.Model(&models.PointLog{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND logical_day = ?", "u1", day("2024-05-10")).
		Scan(&logged).Error)
	require.Equal(t, 100, logged)

	// The cap is per logical day.
	res, err := e.RecordCompletion(ctx, "u1", day("2024-05-11"), &id)
	require.NoError(t, err)
	require.Equal(t, 2, res.Streak)
	require.Equal(t, 12, res.PointsAwarded)
}

func TestRecordCompletionLevelsUp(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.db.Create(&models.GamificationStats{UserID: "u1", Points: 190, Level: 2}).Error)

	res, err := e.RecordCompletion(context.Background(), "u1", day("2024-05-10"), nil)
	require.NoError(t, err)
	require.Equal(t, 201, res.Points)
	require.Equal(t, 3, res.Level)
	require.True(t, res.LeveledUp)
}

func TestResetStreakIfMissed(t *testing.T) {
	e, stats := newEngine(t)
	ctx := context.Background()
	seedStats(t, e.db, "active", 4, 4, datePtr("2024-05-09"))
	seedStats(t, e.db, "today", 2, 2, datePtr("2024-05-10"))
	seedStats(t, e.db, "lapsed", 6, 9, datePtr("2024-05-08"))
	seedStats(t, e.db, "zero", 0, 3, datePtr("2024-05-01"))

	n, err := e.ResetStreakIfMissed(ctx, day("2024-05-10"))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, 4, stats("active").CurrentStreak)
	require.Equal(t, 2, stats("today").CurrentStreak)
	require.Equal(t, 0, stats("lapsed").CurrentStreak)
	require.Equal(t, 9, stats("lapsed").LongestStreak)

	n, err = e.ResetStreakIfMissed(ctx, day("2024-05-10"))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = e.ResetStreakIfMissed(ctx, day("2024-05-12"), "today")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, 4, stats("active").CurrentStreak)
}

func TestResetStreaksUsesEachUsersToday(t *testing.T) {
	e, stats := newEngine(t)
	seedUser(t, e.db, "east", "Pacific/Kiritimati")
	seedUser(t, e.db, "west", "Etc/GMT+12")
	seedStats(t, e.db, "east", 3, 3, datePtr("2024-06-14"))
	seedStats(t, e.db, "west", 3, 3, datePtr("2024-06-14"))

	// 02:00 June 16 in Kiritimati, 00:00 June 15 at UTC-12.
	n, err := e.ResetStreaks(context.Background(), instant(t, "2024-06-15T12:00:00Z"))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, 0, stats("east").CurrentStreak)
	require.Equal(t, 3, stats("west").CurrentStreak)
}

func TestStatsDefaultsForUnknownUser(t *testing.T) {
	e, _ := newEngine(t)
	s, err := e.Stats(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, "ghost", s.UserID)
	require.Equal(t, 1, s.Level)
	require.Zero(t, s.Points)
	require.Nil(t, s.LastActiveDate)
}
