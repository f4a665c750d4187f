package memorybank

import (
	"math"
	"time"
)

// strengthFloor guards the score computation against non-positive
// strength values so the exponent never divides by zero.
const strengthFloor = 0.01

const secondsPerDay = 24 * 3600

// Scorer computes Ebbinghaus retention scores.
//
// Score = e^(-t/S) where t is days elapsed since last access and S is
// the item's memory strength. A disabled scorer always returns 1.0 so
// decay never influences retrieval (useful for deterministic tests).
type Scorer struct {
	enabled bool
}

// NewScorer returns a Scorer. Pass false to disable forgetting.
func NewScorer(enabled bool) Scorer {
	return Scorer{enabled: enabled}
}

// Enabled reports whether forgetting is active.
func (s Scorer) Enabled() bool {
	return s.enabled
}

// Score returns the retention score in (0, 1]. Future-dated access times
// are clamped to zero elapsed time; scoring never errors.
func (s Scorer) Score(now, lastAccess time.Time, strength float64) float64 {
	if !s.enabled {
		return 1.0
	}
	if strength <= 0 {
		strength = strengthFloor
	}
	elapsed := now.Sub(lastAccess).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Exp(-(elapsed / secondsPerDay) / strength)
}
