package services

import (
	"math"

	"github.com/cppla/habitcore/logicalday"
)

// PointsConfig tunes streak-scaled awards.
type PointsConfig struct {
	BasePoints    int     `json:"base_points"`
	BonusRate     float64 `json:"bonus_rate"`
	MaxMultiplier float64 `json:"max_multiplier"`
	DailyCap      int     `json:"daily_cap"`
}

func DefaultPointsConfig() PointsConfig {
	return PointsConfig{BasePoints: 10, BonusRate: 0.1, MaxMultiplier: 2.0, DailyCap: 100}
}

// Multiplier is 1 + streak*rate, saturating at MaxMultiplier.
func (c PointsConfig) Multiplier(streak int) float64 {
	if streak < 0 {
		streak = 0
	}
	return math.Min(1+float64(streak)*c.BonusRate, c.MaxMultiplier)
}

// StreakPoints is the uncapped award for one completion at the given streak.
func (c PointsConfig) StreakPoints(streak int) int {
	return int(math.Round(float64(c.BasePoints) * c.Multiplier(streak)))
}

// ClampToDailyCap trims award so that alreadyToday+award never exceeds limit.
// A non-positive limit disables the cap.
func ClampToDailyCap(award, alreadyToday, limit int) int {
	if award <= 0 {
		return 0
	}
	if limit <= 0 {
		return award
	}
	room := limit - alreadyToday
	if room <= 0 {
		return 0
	}
	if award > room {
		return room
	}
	return award
}

// Level is floor(sqrt(points/50)) + 1.
func Level(points int) int {
	if points <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(points)/50))) + 1
}

// NextStreak applies one day's activity to a streak. credited is false when the
// day was already counted, in which case lastActive must not move.
func NextStreak(current int, lastActive *logicalday.Date, day logicalday.Date) (streak int, credited bool) {
	switch {
	case lastActive == nil || lastActive.IsZero():
		return 1, true
	case *lastActive == day:
		return current, false
	case *lastActive == day.Yesterday():
		return current + 1, true
	default:
		// a gap, or a day older than lastActive, starts over
		return 1, true
	}
}

// PointsForLevel is the smallest point total that reaches level.
func PointsForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	return 50 * (level - 1) * (level - 1)
}
