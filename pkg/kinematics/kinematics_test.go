package kinematics

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legalPercents(l Limits, steps int) []float64 {
	// stay a hair inside the legal limit so rounding cannot push it over
	top := PercentFor(l, l.LegalDistanceLimit) * (1 - 1e-9)
	out := make([]float64, 0, steps+1)
	for i := 0; i <= steps; i++ {
		out = append(out, top*float64(i)/float64(steps))
	}
	return out
}

func TestDefaultLimitsValid(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())
}

func TestRoundTrip(t *testing.T) {
	l := DefaultLimits()
	for _, p := range legalPercents(l, 50) {
		sol, err := Solve(l, p)
		require.NoError(t, err, "percent %.3f", p)

		// the slide tip lands on the floor at the effective reach
		assert.InDelta(t, sol.EffectiveDistance, sol.EndEffector.X, 1e-6)
		assert.InDelta(t, 0, sol.EndEffector.Z, 1e-6)
		assert.InDelta(t, sol.SlideLength, math.Hypot(l.ArmBaseHeight, sol.EffectiveDistance), 1e-9)
		assert.InDelta(t, sol.SlideLength, l.SlideBaseLength+sol.SlideTarget*l.MaxExtensionDistance, 1e-6)
	}
}

func TestMonotonic(t *testing.T) {
	l := DefaultLimits()
	var prev Solution
	first := true
	for _, p := range legalPercents(l, 100) {
		sol, err := Solve(l, p)
		require.NoError(t, err)
		if !first && sol.Distance > l.MinimumDistanceLimit {
			assert.Greater(t, sol.SlideLength, prev.SlideLength)
			assert.Greater(t, sol.ArmAngle, prev.ArmAngle)
			assert.Greater(t, sol.WristAngle, 0.0)
		}
		prev, first = sol, false
	}
}

func TestBoundaryEquality(t *testing.T) {
	l := DefaultLimits()
	sol, err := Solve(l, PercentFor(l, l.MinimumDistanceLimit))
	require.NoError(t, err)
	assert.InDelta(t, l.MinAngle(), sol.ArmAngle, 1e-9)

	sol, err = Solve(l, 0)
	require.NoError(t, err, "zero reach is clamped to the minimum, not rejected")
	assert.InDelta(t, l.MinAngle(), sol.ArmAngle, 1e-9)
}

func TestRejectAboveClampBelow(t *testing.T) {
	l := DefaultLimits()

	below, err := Solve(l, PercentFor(l, l.MinimumDistanceLimit/2))
	require.NoError(t, err)
	assert.True(t, below.Clamped())
	assert.Equal(t, l.MinimumDistanceLimit, below.EffectiveDistance)
	assert.InDelta(t, l.MinimumDistanceLimit/2, below.Distance, 1e-9)

	_, err = Solve(l, PercentFor(l, l.LegalDistanceLimit+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTarget))

	var ite *IllegalTargetError
	require.ErrorAs(t, err, &ite)
	assert.InDelta(t, l.LegalDistanceLimit+1, ite.Distance, 1e-9)
}

func TestRejectOutOfRangePercent(t *testing.T) {
	l := DefaultLimits()
	for _, p := range []float64{-0.01, 1.01, math.NaN(), math.Inf(1)} {
		_, err := Solve(l, p)
		assert.ErrorIs(t, err, ErrIllegalTarget, "percent %v", p)
	}
}

func TestExplicitMinimumAngle(t *testing.T) {
	l := DefaultLimits()
	l.MinimumAngleLimit = -40 // tighter than the geometry allows at 22cm

	_, err := Solve(l, 0)
	assert.ErrorIs(t, err, ErrIllegalTarget)

	// far enough that the angle is above -40
	sol, err := Solve(l, PercentFor(l, 60))
	require.NoError(t, err)
	assert.Greater(t, sol.ArmAngle, -40.0)
}

func TestFullReachWhenLegal(t *testing.T) {
	l := DefaultLimits()
	l.LegalDistanceLimit = l.MaxTargetDistance()

	sol, err := Solve(l, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1, sol.SlideTarget, 1e-9)
	assert.InDelta(t, l.MaxExtension(), sol.SlideLength, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Limits)
	}{
		{"no height", func(l *Limits) { l.ArmBaseHeight = 0 }},
		{"short slide", func(l *Limits) { l.SlideBaseLength = 1; l.MaxExtensionDistance = 1 }},
		{"no minimum", func(l *Limits) { l.MinimumDistanceLimit = 0 }},
		{"legal below minimum", func(l *Limits) { l.LegalDistanceLimit = 10 }},
		{"positive angle", func(l *Limits) { l.MinimumAngleLimit = 5 }},
		{"base longer than minimum reach", func(l *Limits) { l.SlideBaseLength = 50 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLimits()
			tt.mutate(&l)
			assert.Error(t, l.Validate())
		})
	}
}
