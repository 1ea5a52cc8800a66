package slide

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

func newSlide(t *testing.T, motor *hardware.SimMotor) (*Slide, *config.Store, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	reg := hardware.NewSimRegistry()
	if motor != nil {
		reg.Add(MotorName, hardware.KindMotor, motor)
	}
	store := config.NewStore(nil)
	s, err := New(context.Background(), reg, store, clk, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return s, store, clk
}

func TestConvergesToTarget(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	motor := hardware.NewSimMotor(clk, 2000)

	reg := hardware.NewSimRegistry()
	reg.Add(MotorName, hardware.KindMotor, motor)
	s, err := New(ctx, reg, config.NewStore(nil), clk, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	s.SetTargetHeight(0.5)
	for range 500 {
		s.Update(ctx)
		clk.Add(20 * time.Millisecond)
	}
	h, ok := s.CurrentHeight(ctx)
	require.True(t, ok)
	assert.InDelta(t, 0.5, h, 0.02)
}

func TestTargetIsClamped(t *testing.T) {
	s, _, _ := newSlide(t, nil)
	s.SetTargetHeight(1.4)
	assert.Equal(t, 1.0, s.TargetHeight())
	s.SetTargetHeight(-1)
	assert.Equal(t, 0.0, s.TargetHeight())
}

func TestMissingMotorIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newSlide(t, nil)

	assert.False(t, s.Connected())
	s.SetTargetHeight(0.7)
	for range 100 {
		s.Update(ctx)
	}
	_, ok := s.CurrentHeight(ctx)
	assert.False(t, ok)
	assert.NoError(t, s.ResetEncoder(ctx))
	s.EnsureSafety(ctx)
}

func TestGainsFollowConfig(t *testing.T) {
	ctx := context.Background()
	motor := hardware.NewSimMotor(clock.NewMock(), 1000)
	s, store, _ := newSlide(t, motor)

	require.NoError(t, store.Update(func(c *config.Config) { c.Slide.Gains.KP = 0 }))
	s.SetTargetHeight(1)
	s.Update(ctx)
	assert.Equal(t, 0.0, motor.Power(), "zero gain produces no output")

	require.NoError(t, store.Update(func(c *config.Config) { c.Slide.Gains.KP = 0.5 }))
	s.Update(ctx)
	assert.InDelta(t, 0.5, motor.Power(), 1e-9)
}

func TestEnsureSafety(t *testing.T) {
	ctx := context.Background()
	motor := hardware.NewSimMotor(clock.NewMock(), 1000)
	s, _, _ := newSlide(t, motor)

	s.SetTargetHeight(1)
	s.Update(ctx)
	require.NotZero(t, motor.Power())

	s.EnsureSafety(ctx)
	assert.Zero(t, motor.Power())
	assert.Zero(t, s.TargetHeight())

	rec := telemetry.NewRecorder()
	s.Log(rec)
	rec.Flush()
	v, _ := rec.Value("slide/connected")
	assert.Equal(t, true, v)
}
