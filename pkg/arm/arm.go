// Package arm controls the pivoting arm: angle targets relative to a fixed
// calibration reference, an active/inactive state and one queued,
// time-delayed target change.
package arm

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/pidf"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

// Registry names of the arm devices.
const (
	MotorName  = "Arm Motor"
	SwitchName = "Arm Position Switch"
)

// WristLink is told when the arm changes state so the wrist follows it.
type WristLink interface {
	SetWristActive(active bool)
}

type queued struct {
	target   float64
	deadline time.Time
}

// Arm targets are stored in the actuator frame: degrees relative to where
// the encoder reads zero. Geometric angles are converted by subtracting the
// configured calibration angle.
type Arm struct {
	motor     hardware.Optional[hardware.Motor]
	posSwitch hardware.Optional[hardware.Switch]
	pid       *pidf.Controller
	store     *config.Store
	clock     clock.Clock
	wrist     WristLink
	logger    *zap.SugaredLogger

	target float64
	active bool
	queue  *queued
	power  float64
}

// New acquires the arm motor and position switch. The arm starts active,
// holding the calibration pose, and activates the wrist with it.
func New(ctx context.Context, reg hardware.Registry, store *config.Store, clk clock.Clock, wrist WristLink, logger *zap.SugaredLogger) (*Arm, error) {
	motor, err := hardware.TryAcquire[hardware.Motor](ctx, reg, hardware.KindMotor, MotorName)
	if err != nil {
		return nil, err
	}
	posSwitch, err := hardware.TryAcquire[hardware.Switch](ctx, reg, hardware.KindSwitch, SwitchName)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{motor.String(), posSwitch.String()} {
		logger.Debugf("arm device %s", name)
	}

	cfg := store.Load()
	a := &Arm{
		motor:     motor,
		posSwitch: posSwitch,
		pid:       pidf.New(cfg.Arm.Gains, pidf.WithClock(clk), pidf.WithPeriod(cfg.Loop.Period())),
		store:     store,
		clock:     clk,
		wrist:     wrist,
		logger:    logger,
		active:    true,
	}

	var initErr error
	motor.RunIfAvailable(func(m hardware.Motor) {
		if cfg.Arm.Reversed {
			m.SetDirection(hardware.Reverse)
		}
		initErr = m.ResetEncoder(ctx)
	})
	if initErr != nil {
		logger.Warnf("%s: reset encoder: %v", MotorName, initErr)
	}
	// the wrist follows the arm from the start
	wrist.SetWristActive(true)
	return a, nil
}

// SetTargetRotation sets a geometric angle. While a queued change is pending
// this replaces the queued target instead, so the pre-move stays in effect
// until the deadline.
func (a *Arm) SetTargetRotation(degrees float64) {
	rel := degrees - a.store.Load().Arm.CalibrationAngle
	if a.queue != nil {
		a.queue.target = rel
		return
	}
	a.target = rel
}

// SetTargetRotationAbsolute sets an actuator-frame angle and drops any queue.
func (a *Arm) SetTargetRotationAbsolute(degrees float64) {
	a.queue = nil
	a.target = degrees
}

// AdjustTargetRotation offsets the committed target.
func (a *Arm) AdjustTargetRotation(delta float64) {
	a.target += delta
}

// SetTargetRotationQueued commits pre now and target once delay has passed.
// Both are geometric angles. A pending queue is replaced.
func (a *Arm) SetTargetRotationQueued(pre, target float64, delay time.Duration) {
	calib := a.store.Load().Arm.CalibrationAngle
	a.target = pre - calib
	a.queue = &queued{
		target:   target - calib,
		deadline: a.clock.Now().Add(delay),
	}
}

// ClearQueue drops a pending queued target.
func (a *Arm) ClearQueue() {
	a.queue = nil
}

// Queued returns the pending geometric target, if any.
func (a *Arm) Queued() (float64, bool) {
	if a.queue == nil {
		return 0, false
	}
	return a.queue.target + a.store.Load().Arm.CalibrationAngle, true
}

// TargetAngle is the committed target as a geometric angle.
func (a *Arm) TargetAngle() float64 {
	return a.target + a.store.Load().Arm.CalibrationAngle
}

// TargetRotation is the committed target in the actuator frame.
func (a *Arm) TargetRotation() float64 {
	return a.target
}

// CurrentAngle is the measured geometric angle.
func (a *Arm) CurrentAngle(ctx context.Context) (angle float64, ok bool) {
	cfg := a.store.Load()
	a.motor.RunIfAvailable(func(m hardware.Motor) {
		ticks, err := m.Position(ctx)
		if err != nil {
			a.logger.Debugf("%s: read position: %v", MotorName, err)
			return
		}
		angle, ok = float64(ticks)/cfg.Arm.TicksPerDegree+cfg.Arm.CalibrationAngle, true
	})
	return angle, ok
}

// AtTarget reports whether the arm is within tolerance degrees of its
// committed target. A missing motor is never at target.
func (a *Arm) AtTarget(ctx context.Context, tolerance float64) bool {
	angle, ok := a.CurrentAngle(ctx)
	return ok && math.Abs(angle-a.TargetAngle()) <= tolerance
}

func (a *Arm) Active() bool {
	return a.active
}

// Activate resumes closed-loop control. It does nothing if already active.
func (a *Arm) Activate() {
	if a.active {
		return
	}
	a.active = true
	a.pid.Reset()
	a.wrist.SetWristActive(true)
	a.logger.Debug("arm activated")
}

// Deactivate lets the arm rest with zero power. It does nothing if already
// inactive.
func (a *Arm) Deactivate() {
	if !a.active {
		return
	}
	a.active = false
	a.wrist.SetWristActive(false)
	a.logger.Debug("arm deactivated")
}

// MonitorPositionSwitch reads the position switch. A missing switch reads as
// released.
func (a *Arm) MonitorPositionSwitch(ctx context.Context) bool {
	pressed := false
	a.posSwitch.RunIfAvailable(func(s hardware.Switch) {
		var err error
		if pressed, err = s.Pressed(ctx); err != nil {
			a.logger.Debugf("%s: %v", SwitchName, err)
			pressed = false
		}
	})
	return pressed
}

// Update commits an elapsed queued target, then runs one control step.
func (a *Arm) Update(ctx context.Context) {
	if a.queue != nil && !a.clock.Now().Before(a.queue.deadline) {
		a.target = a.queue.target
		a.queue = nil
	}

	cfg := a.store.Load()
	a.motor.RunIfAvailable(func(m hardware.Motor) {
		if !a.active {
			a.power = 0
			if err := m.SetPower(ctx, 0); err != nil {
				a.logger.Debugf("%s: set power: %v", MotorName, err)
			}
			return
		}
		ticks, err := m.Position(ctx)
		if err != nil {
			a.logger.Debugf("%s: read position: %v", MotorName, err)
			return
		}
		a.pid.SetCoefficients(cfg.Arm.Gains)
		a.pid.SetSetpoint(a.target)
		a.power = a.pid.Compute(float64(ticks) / cfg.Arm.TicksPerDegree)
		if err := m.SetPower(ctx, a.power); err != nil {
			a.logger.Debugf("%s: set power: %v", MotorName, err)
		}
	})
}

func (a *Arm) Connected() bool {
	return a.motor.Available() || a.posSwitch.Available()
}

// EnsureSafety cuts power and drops any queued move.
func (a *Arm) EnsureSafety(ctx context.Context) {
	a.queue = nil
	a.power = 0
	a.motor.RunIfAvailable(func(m hardware.Motor) {
		if err := m.SetPower(ctx, 0); err != nil {
			a.logger.Warnf("%s: stop: %v", MotorName, err)
		}
	})
	a.pid.Reset()
}

func (a *Arm) Log(sink telemetry.Sink) {
	sink.AddData("arm/connected", a.motor.Available())
	sink.AddData("arm/active", a.active)
	sink.AddData("arm/target", a.TargetAngle())
	sink.AddData("arm/power", a.power)
	if q, ok := a.Queued(); ok {
		sink.AddData("arm/queued", q)
	}
}
