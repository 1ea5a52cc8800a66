package control

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/reacharm/pkg/arm"
	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/intake"
	"github.com/gwillem/reacharm/pkg/kinematics"
	"github.com/gwillem/reacharm/pkg/slide"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

type rig struct {
	c     *Coordinator
	clock *clock.Mock
	store *config.Store
	wrist *hardware.SimServo
	cfg   *config.Config
}

// newRig wires a coordinator to a wrist servo only, so arm and slide never
// converge and every deadline runs its full length.
func newRig(t *testing.T) *rig {
	t.Helper()
	clk := clock.NewMock()
	store := config.NewStore(nil)
	reg := hardware.NewSimRegistry()
	wrist := &hardware.SimServo{}
	reg.Add(intake.WristServoName, hardware.KindServo, wrist)

	c, err := New(context.Background(), reg, store, clk, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return &rig{c: c, clock: clk, store: store, wrist: wrist, cfg: store.Load()}
}

func TestNewCoordinatorStartsWristWithArm(t *testing.T) {
	r := newRig(t)
	assert.True(t, r.c.Arm().Active())
	assert.True(t, r.c.Intake().WristActive())

	sol, err := r.c.SetTargetDistance(context.Background(), 0.5)
	require.NoError(t, err)
	assert.InDelta(t, (sol.WristAngle-r.cfg.Wrist.ZeroDegrees)/r.cfg.Wrist.RangeDegrees, r.c.Intake().WristPosition(), 1e-9)
	assert.Positive(t, r.wrist.Writes())
}

func TestSetTargetDistanceWritesAllJoints(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	percent := kinematics.PercentFor(r.cfg.Kinematics, 50)
	sol, err := r.c.SetTargetDistance(ctx, percent)
	require.NoError(t, err)

	assert.InDelta(t, sol.SlideTarget, r.c.Slide().TargetHeight(), 1e-9)
	assert.InDelta(t, sol.ArmAngle, r.c.Arm().TargetAngle(), 1e-9)
	assert.InDelta(t, (sol.WristAngle-r.cfg.Wrist.ZeroDegrees)/r.cfg.Wrist.RangeDegrees, r.c.Intake().WristPosition(), 1e-9)

	last, ok := r.c.LastSolution()
	require.True(t, ok)
	assert.Equal(t, sol, last)
}

func TestRejectedDistanceKeepsTargets(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	_, err := r.c.SetTargetDistance(ctx, kinematics.PercentFor(r.cfg.Kinematics, 40))
	require.NoError(t, err)
	slideBefore := r.c.Slide().TargetHeight()
	armBefore := r.c.Arm().TargetAngle()
	wristWrites := r.wrist.Writes()

	_, err = r.c.SetTargetDistance(ctx, kinematics.PercentFor(r.cfg.Kinematics, r.cfg.Kinematics.LegalDistanceLimit+5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, kinematics.ErrIllegalTarget))

	assert.Equal(t, slideBefore, r.c.Slide().TargetHeight())
	assert.Equal(t, armBefore, r.c.Arm().TargetAngle())
	assert.Equal(t, wristWrites, r.wrist.Writes())

	rec := telemetry.NewRecorder()
	r.c.Log(rec)
	rec.Flush()
	_, ok := rec.Value("reach/rejected")
	assert.True(t, ok)

	// the next legal request clears the rejection
	_, err = r.c.SetTargetDistance(ctx, kinematics.PercentFor(r.cfg.Kinematics, 40))
	require.NoError(t, err)
	r.c.Log(rec)
	rec.Flush()
	_, ok = rec.Value("reach/rejected")
	assert.False(t, ok)
}

func TestWristFallback(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	require.NoError(t, r.store.Update(func(c *config.Config) { c.Wrist.UseFallback = true }))

	_, err := r.c.SetTargetDistance(ctx, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 150/r.cfg.Wrist.RangeDegrees, r.c.Intake().WristPosition(), 1e-9)
}

func TestIntakeModeQueuesDescent(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	r.c.SetToIntakeMode(ctx)
	assert.True(t, r.c.InIntakeMode())
	assert.InDelta(t, r.cfg.Arm.RotationMoving, r.c.Arm().TargetAngle(), 1e-9)

	ready, err := kinematics.Solve(r.cfg.Kinematics, 0)
	require.NoError(t, err)
	q, ok := r.c.Arm().Queued()
	require.True(t, ok)
	assert.InDelta(t, ready.ArmAngle, q, 1e-9)

	// reach requests while the pre-move is pending land in the queue
	sol, err := r.c.SetTargetDistance(ctx, kinematics.PercentFor(r.cfg.Kinematics, 45))
	require.NoError(t, err)
	assert.InDelta(t, r.cfg.Arm.RotationMoving, r.c.Arm().TargetAngle(), 1e-9)

	r.clock.Add(r.cfg.Arm.RotationDelay())
	r.c.Update(ctx)
	assert.InDelta(t, sol.ArmAngle, r.c.Arm().TargetAngle(), 1e-9)
}

func TestPresets(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	cfg := r.cfg

	tests := []struct {
		name   string
		set    func(context.Context)
		mode   Mode
		height float64
		angle  float64
	}{
		{"moving", r.c.SetToMovingMode, ModeMoving, cfg.Slide.HeightMoving, cfg.Arm.RotationMoving},
		{"scoring", r.c.SetToScoringMode, ModeScoring, cfg.Slide.HeightScoring, cfg.Arm.RotationScoring},
		{"hang setup", r.c.SetToHangSetup, ModeHangSetup, cfg.Slide.HeightHang, cfg.Arm.RotationHangSetup},
		{"hang grab", r.c.SetToHangGrab, ModeHangGrab, cfg.Slide.HeightHang, cfg.Arm.RotationHangGrab},
		{"hang pull", r.c.SetToHangPull, ModeHangPull, cfg.Slide.HeightMoving, cfg.Arm.RotationHangPull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r.c.SetToIntakeMode(ctx) // leaves a queue behind
			tt.set(ctx)
			assert.Equal(t, tt.mode, r.c.Mode())
			assert.Equal(t, tt.height, r.c.Slide().TargetHeight())
			assert.InDelta(t, tt.angle, r.c.Arm().TargetAngle(), 1e-9)
			_, queued := r.c.Arm().Queued()
			assert.False(t, queued)
		})
	}
}

func TestStartSystemSequence(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)
	a := r.c.Arm()

	r.c.StartSystem(ctx)
	assert.True(t, r.c.StartupPending())
	assert.Equal(t, r.cfg.Arm.InitialJumpAngle, a.TargetRotation())
	assert.Equal(t, r.cfg.Wrist.HoldPosition, r.c.Intake().WristPosition())

	r.clock.Add(r.cfg.Arm.InitialJumpTime() - time.Millisecond)
	r.c.Update(ctx)
	assert.True(t, r.c.StartupPending())

	r.clock.Add(time.Millisecond)
	r.c.Update(ctx)
	assert.False(t, r.c.StartupPending())
	assert.True(t, r.c.DeactivationPending())
	assert.InDelta(t, r.cfg.Arm.RotationIntake, a.TargetAngle(), 1e-9)
	assert.Equal(t, r.cfg.Wrist.PositionDeactivated, r.c.Intake().WristPosition())
	assert.True(t, a.Active(), "still active while settling")

	r.clock.Add(r.cfg.Arm.SettleTime())
	r.c.Update(ctx)
	assert.False(t, a.Active())
	assert.False(t, r.c.Intake().WristActive())

	r.c.ActivateArm()
	assert.True(t, a.Active())
	assert.True(t, r.c.Intake().WristActive())
}

func TestActivateCancelsDeactivation(t *testing.T) {
	ctx := context.Background()
	r := newRig(t)

	r.c.DeactivateArm(ctx)
	require.True(t, r.c.DeactivationPending())
	r.c.ActivateArm()
	assert.False(t, r.c.DeactivationPending())

	r.clock.Add(time.Hour)
	r.c.Update(ctx)
	assert.True(t, r.c.Arm().Active())
}

func TestDeactivateEndsEarlyWhenSettled(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	store := config.NewStore(nil)
	reg := hardware.NewSimRegistry()
	motor := hardware.NewSimMotor(clk, 3000)
	reg.Add(arm.MotorName, hardware.KindMotor, motor)
	reg.Add(slide.MotorName, hardware.KindMotor, hardware.NewSimMotor(clk, 2000))

	c, err := New(ctx, reg, store, clk, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	// start at the intake angle so the arm is settled immediately
	cfg := store.Load()
	motor.SetTicks(int((cfg.Arm.RotationIntake - cfg.Arm.CalibrationAngle) * cfg.Arm.TicksPerDegree))

	c.DeactivateArm(ctx)
	c.Update(ctx)
	assert.False(t, c.Arm().Active())
	assert.Zero(t, motor.Power(), "deactivated arm rests")
}

func TestNoDevicesIsHarmless(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, hardware.NewSimRegistry(), config.NewStore(nil), clock.NewMock(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	for _, m := range c.Modules() {
		assert.False(t, m.Connected())
	}
	c.StartSystem(ctx)
	for range 100 {
		c.Update(ctx)
		c.IntakeGrab(ctx)
		_, _ = c.SetTargetDistance(ctx, 0.5)
	}
	assert.False(t, c.MonitorArmPositionSwitch(ctx))
	c.EnsureSafety(ctx)
}

func TestRegistryFailurePropagates(t *testing.T) {
	reg := hardware.NewSimRegistry()
	reg.Fail(arm.MotorName, errors.New("bus fault"))

	_, err := New(context.Background(), reg, config.NewStore(nil), clock.NewMock(), zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
