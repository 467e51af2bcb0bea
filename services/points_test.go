package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelCurve(t *testing.T) {
	require.Equal(t, 1, Level(0))
	require.Equal(t, 1, Level(49))
	require.Equal(t, 2, Level(50))
	require.Equal(t, 3, Level(200))
	require.Equal(t, 1, Level(-10))

	prev := Level(0)
	for p := 1; p <= 20000; p += 7 {
		l := Level(p)
		require.GreaterOrEqual(t, l, prev, "points=%d", p)
		prev = l
	}
}

func TestStreakMultiplierSaturates(t *testing.T) {
	cfg := DefaultPointsConfig()
	require.Equal(t, 10, cfg.StreakPoints(0))
	require.Equal(t, 11, cfg.StreakPoints(1))
	require.Equal(t, 15, cfg.StreakPoints(5))
	require.InDelta(t, 2.0, cfg.Multiplier(10), 1e-9)
	require.Equal(t, 20, cfg.StreakPoints(10))
	require.Equal(t, cfg.StreakPoints(10), cfg.StreakPoints(100))
}

func TestClampToDailyCap(t *testing.T) {
	require.Equal(t, 5, ClampToDailyCap(20, 95, 100))
	require.Equal(t, 0, ClampToDailyCap(20, 100, 100))
	require.Equal(t, 0, ClampToDailyCap(20, 130, 100))
	require.Equal(t, 20, ClampToDailyCap(20, 0, 100))
	require.Equal(t, 20, ClampToDailyCap(20, 500, 0))
	require.Equal(t, 0, ClampToDailyCap(0, 0, 100))
}

func TestNextStreak(t *testing.T) {
	today := day("2024-05-10")

	s, credited := NextStreak(0, nil, today)
	require.Equal(t, 1, s)
	require.True(t, credited)

	s, credited = NextStreak(3, datePtr("2024-05-09"), today)
	require.Equal(t, 4, s)
	require.True(t, credited)

	s, credited = NextStreak(4, datePtr("2024-05-10"), today)
	require.Equal(t, 4, s)
	require.False(t, credited)

	s, credited = NextStreak(5, datePtr("2024-05-07"), today)
	require.Equal(t, 1, s)
	require.True(t, credited)

	s, credited = NextStreak(6, datePtr("2024-05-12"), today)
	require.Equal(t, 1, s)
	require.True(t, credited)
}

func TestPointsForLevelInvertsLevel(t *testing.T) {
	require.Equal(t, 0, PointsForLevel(1))
	for lvl := 2; lvl <= 12; lvl++ {
		p := PointsForLevel(lvl)
		require.Equal(t, lvl, Level(p), "level %d", lvl)
		require.Equal(t, lvl-1, Level(p-1), "level %d", lvl)
	}
}
