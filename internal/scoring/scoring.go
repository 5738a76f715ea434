// Package scoring maps an answer's correctness, speed and streak to points.
package scoring

import "math"

// StreakMultiplier returns the bonus tier for a streak that already counts the
// answer being scored.
func StreakMultiplier(streak int) float64 {
	switch {
	case streak >= 5:
		return 2.0
	case streak >= 3:
		return 1.5
	case streak >= 2:
		return 1.2
	default:
		return 1.0
	}
}

// Points scores a single answer. A correct answer earns between half and all of
// basePoints depending on speed, then the streak and modifier multipliers apply.
// math.Round rounds half away from zero.
func Points(correct bool, elapsedFraction float64, basePoints, streak int, modifierMultiplier float64) int {
	if !correct {
		return 0
	}
	timeBonus := 1 - ClampFraction(elapsedFraction)
	base := math.Round(float64(basePoints) * (0.5 + 0.5*timeBonus))
	if modifierMultiplier <= 0 {
		modifierMultiplier = 1
	}
	return int(math.Round(base * StreakMultiplier(streak) * modifierMultiplier))
}

// ElapsedFraction converts a server-measured elapsed time into [0,1] of the limit.
func ElapsedFraction(elapsedMillis int64, timeLimitSeconds int) float64 {
	if timeLimitSeconds <= 0 {
		return 1
	}
	return ClampFraction(float64(elapsedMillis) / float64(int64(timeLimitSeconds)*1000))
}

// ClampFraction bounds f to [0,1]; NaN is treated as the slowest answer.
func ClampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 1
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
