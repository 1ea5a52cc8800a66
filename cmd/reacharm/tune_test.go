package main

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
)

func TestTuneStats(t *testing.T) {
	var s tuneStats
	mean, std, final := s.summary()
	assert.Zero(t, mean)
	assert.Zero(t, std)
	assert.Zero(t, final)

	s.add(8, 10)
	s.add(12, 10)
	s.add(10, 14)
	mean, std, final = s.summary()
	assert.InDelta(t, 8.0/3, mean, 1e-9)
	assert.Positive(t, std)
	assert.Equal(t, 4.0, final)

	s.reset()
	s.add(1, 2)
	mean, std, _ = s.summary()
	assert.Equal(t, 1.0, mean)
	assert.Zero(t, std)
}

func TestTuneLoopConvergesOnSimSlide(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := config.NewStore(nil)
	reg := newSimRegistry(store.Load(), clk)

	loop, err := newTuneLoop(ctx, "slide", 50, reg, store, clk, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	loop.setTarget(true)

	for range 500 {
		clk.Add(20 * time.Millisecond)
		loop.update(ctx)
	}
	value, target, ok := loop.measure(ctx)
	require.True(t, ok)
	assert.Equal(t, 50.0, target)
	assert.InDelta(t, 50, value, 2)
}

func TestTuneLoopMissingDevice(t *testing.T) {
	ctx := context.Background()
	_, err := newTuneLoop(ctx, "arm", 30, hardware.NewSimRegistry(), config.NewStore(nil), clock.NewMock(), zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "not connected")

	_, err = newTuneLoop(ctx, "wrist", 30, hardware.NewSimRegistry(), config.NewStore(nil), clock.NewMock(), zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "unknown device")
}
