package memorybank_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Zoiudp/Dolores-AI/memorybank"
)

func TestScorer_FreshItemScoresOne(t *testing.T) {
	s := memorybank.NewScorer(true)
	now := time.Now()

	assert.Equal(t, 1.0, s.Score(now, now, 1.0))
	assert.Equal(t, 1.0, s.Score(now, now, 5.0))
}

func TestScorer_DecayCurve(t *testing.T) {
	s := memorybank.NewScorer(true)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	oneDayAgo := now.Add(-24 * time.Hour)
	assert.InDelta(t, math.Exp(-1), s.Score(now, oneDayAgo, 1.0), 1e-9)

	thirtyDaysAgo := now.Add(-30 * 24 * time.Hour)
	assert.InDelta(t, math.Exp(-30), s.Score(now, thirtyDaysAgo, 1.0), 1e-12)
	assert.Less(t, s.Score(now, thirtyDaysAgo, 1.0), 0.1)
}

func TestScorer_StrengthSlowsDecay(t *testing.T) {
	s := memorybank.NewScorer(true)
	now := time.Now()
	lastAccess := now.Add(-24 * time.Hour)

	weak := s.Score(now, lastAccess, 1.0)
	strong := s.Score(now, lastAccess, 5.0)
	assert.Greater(t, strong, weak)
	assert.InDelta(t, math.Exp(-1.0/5.0), strong, 1e-9)
}

func TestScorer_MonotonicInTime(t *testing.T) {
	s := memorybank.NewScorer(true)
	now := time.Now()

	prev := 1.1
	for days := 0; days <= 90; days += 5 {
		score := s.Score(now, now.Add(-time.Duration(days)*24*time.Hour), 2.0)
		assert.Greater(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
		assert.Less(t, score, prev)
		prev = score
	}
}

func TestScorer_FutureAccessClampedToFresh(t *testing.T) {
	s := memorybank.NewScorer(true)
	now := time.Now()

	assert.Equal(t, 1.0, s.Score(now, now.Add(time.Hour), 1.0))
}

func TestScorer_NonPositiveStrengthFloored(t *testing.T) {
	s := memorybank.NewScorer(true)
	now := time.Now()
	lastAccess := now.Add(-time.Minute)

	score := s.Score(now, lastAccess, 0)
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	score = s.Score(now, lastAccess, -3)
	assert.Greater(t, score, 0.0)
}

func TestScorer_DisabledAlwaysOne(t *testing.T) {
	s := memorybank.NewScorer(false)
	now := time.Now()

	assert.False(t, s.Enabled())
	assert.Equal(t, 1.0, s.Score(now, now.Add(-365*24*time.Hour), 0.5))
}
