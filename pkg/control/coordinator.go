// Package control coordinates the slide, arm and intake from a single reach
// input and a set of named postures.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/reacharm/pkg/arm"
	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/intake"
	"github.com/gwillem/reacharm/pkg/kinematics"
	"github.com/gwillem/reacharm/pkg/slide"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

// Module is the contract shared by every subsystem.
type Module interface {
	Connected() bool
	EnsureSafety(ctx context.Context)
	Log(sink telemetry.Sink)
}

var (
	_ Module = (*slide.Slide)(nil)
	_ Module = (*arm.Arm)(nil)
	_ Module = (*intake.Intake)(nil)
)

// Mode is the posture last selected.
type Mode int

const (
	ModeMoving Mode = iota
	ModeScoring
	ModeIntake
	ModeHangSetup
	ModeHangGrab
	ModeHangPull
)

func (m Mode) String() string {
	switch m {
	case ModeMoving:
		return "moving"
	case ModeScoring:
		return "scoring"
	case ModeIntake:
		return "intake"
	case ModeHangSetup:
		return "hang-setup"
	case ModeHangGrab:
		return "hang-grab"
	case ModeHangPull:
		return "hang-pull"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Coordinator owns the three modules. It is driven by one goroutine calling
// the setters and then Update once per tick.
type Coordinator struct {
	slide  *slide.Slide
	arm    *arm.Arm
	intake *intake.Intake
	store  *config.Store
	clock  clock.Clock
	logger *zap.SugaredLogger

	mode     Mode
	last     kinematics.Solution
	solved   bool
	rejected error

	startupDeadline    time.Time
	startupPending     bool
	deactivateDeadline time.Time
	deactivatePending  bool
}

// New builds the modules from reg. Missing devices are tolerated; registry
// failures are not.
func New(ctx context.Context, reg hardware.Registry, store *config.Store, clk clock.Clock, logger *zap.SugaredLogger) (*Coordinator, error) {
	s, err := slide.New(ctx, reg, store, clk, logger.Named("slide"))
	if err != nil {
		return nil, err
	}
	in, err := intake.New(ctx, reg, store, logger.Named("intake"))
	if err != nil {
		return nil, err
	}
	a, err := arm.New(ctx, reg, store, clk, in, logger.Named("arm"))
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		slide:  s,
		arm:    a,
		intake: in,
		store:  store,
		clock:  clk,
		logger: logger,
	}, nil
}

func (c *Coordinator) Slide() *slide.Slide    { return c.slide }
func (c *Coordinator) Arm() *arm.Arm          { return c.arm }
func (c *Coordinator) Intake() *intake.Intake { return c.intake }

// Modules returns the subsystems in update order.
func (c *Coordinator) Modules() []Module {
	return []Module{c.slide, c.arm, c.intake}
}

func (c *Coordinator) Mode() Mode {
	return c.mode
}

func (c *Coordinator) InIntakeMode() bool {
	return c.mode == ModeIntake
}

// LastSolution returns the most recent accepted solve.
func (c *Coordinator) LastSolution() (kinematics.Solution, bool) {
	return c.last, c.solved
}

// SetTargetDistance positions slide, arm and wrist for percent of the
// maximum reach. A rejected request changes nothing.
func (c *Coordinator) SetTargetDistance(ctx context.Context, percent float64) (kinematics.Solution, error) {
	cfg := c.store.Load()
	sol, err := kinematics.Solve(cfg.Kinematics, percent)
	if err != nil {
		// the operator holds the stick past the limit for many ticks; warn
		// once per excursion
		if c.rejected == nil {
			c.logger.Warnf("reach rejected: %v", err)
		}
		c.rejected = err
		return sol, err
	}
	c.rejected = nil

	c.slide.SetTargetHeight(sol.SlideTarget)
	c.arm.SetTargetRotation(sol.ArmAngle)
	wrist := sol.WristAngle
	if cfg.Wrist.UseFallback {
		wrist = cfg.Wrist.FallbackAngle
	}
	c.intake.RotateWristToDegrees(ctx, wrist)

	c.last, c.solved = sol, true
	return sol, nil
}

// SetToIntakeMode swings the arm up to the moving angle first and down to
// the minimum-reach angle after the rotation delay, so the intake clears the
// chassis.
func (c *Coordinator) SetToIntakeMode(ctx context.Context) {
	cfg := c.store.Load()
	c.mode = ModeIntake
	c.cancelDeactivation()
	c.slide.SetTargetHeight(cfg.Slide.HeightMoving)

	ready, err := kinematics.Solve(cfg.Kinematics, 0)
	if err != nil {
		c.logger.Warnf("intake posture: %v", err)
		return
	}
	c.arm.SetTargetRotationQueued(cfg.Arm.RotationMoving, ready.ArmAngle, cfg.Arm.RotationDelay())
	c.intake.MoveWristTo(ctx, cfg.Wrist.PositionMoving)
}

func (c *Coordinator) SetToMovingMode(ctx context.Context) {
	cfg := c.store.Load()
	c.preset(ctx, ModeMoving, cfg.Slide.HeightMoving, cfg.Arm.RotationMoving)
}

func (c *Coordinator) SetToScoringMode(ctx context.Context) {
	cfg := c.store.Load()
	c.preset(ctx, ModeScoring, cfg.Slide.HeightScoring, cfg.Arm.RotationScoring)
}

func (c *Coordinator) SetToHangSetup(ctx context.Context) {
	cfg := c.store.Load()
	c.preset(ctx, ModeHangSetup, cfg.Slide.HeightHang, cfg.Arm.RotationHangSetup)
}

func (c *Coordinator) SetToHangGrab(ctx context.Context) {
	cfg := c.store.Load()
	c.preset(ctx, ModeHangGrab, cfg.Slide.HeightHang, cfg.Arm.RotationHangGrab)
}

func (c *Coordinator) SetToHangPull(ctx context.Context) {
	cfg := c.store.Load()
	c.preset(ctx, ModeHangPull, cfg.Slide.HeightMoving, cfg.Arm.RotationHangPull)
}

func (c *Coordinator) preset(ctx context.Context, mode Mode, height, rotation float64) {
	c.mode = mode
	c.cancelDeactivation()
	c.arm.ClearQueue()
	c.slide.SetTargetHeight(height)
	c.arm.SetTargetRotation(rotation)
	c.intake.MoveWristTo(ctx, c.store.Load().Wrist.PositionMoving)
}

// ActivateArm resumes arm control and abandons a pending deactivation.
func (c *Coordinator) ActivateArm() {
	c.cancelDeactivation()
	c.arm.Activate()
}

// DeactivateArm lowers the arm to the intake-safe angle, parks the wrist and
// cuts arm power once the arm has settled or the settle time has passed.
func (c *Coordinator) DeactivateArm(ctx context.Context) {
	if !c.arm.Active() || c.deactivatePending {
		return
	}
	cfg := c.store.Load()
	c.arm.ClearQueue()
	c.slide.SetTargetHeight(cfg.Slide.HeightMoving)
	c.arm.SetTargetRotation(cfg.Arm.RotationIntake)
	c.intake.MoveWristTo(ctx, cfg.Wrist.PositionDeactivated)

	c.deactivatePending = true
	c.deactivateDeadline = c.clock.Now().Add(cfg.Arm.SettleTime())
}

// DeactivationPending reports whether the arm is settling before power is cut.
func (c *Coordinator) DeactivationPending() bool {
	return c.deactivatePending
}

func (c *Coordinator) cancelDeactivation() {
	c.deactivatePending = false
}

// StartSystem puts everything in the moving posture and lifts the arm off
// its rest. After the jump time the arm is lowered and deactivated, which
// keeps the wrist from rotating until the arm has cleared the ground.
func (c *Coordinator) StartSystem(ctx context.Context) {
	cfg := c.store.Load()
	c.SetToMovingMode(ctx)
	c.intake.HoldWristRotation(ctx)
	c.arm.SetTargetRotationAbsolute(cfg.Arm.InitialJumpAngle)

	c.startupPending = true
	c.startupDeadline = c.clock.Now().Add(cfg.Arm.InitialJumpTime())
	c.logger.Info("system started")
}

// StartupPending reports whether the initial jump is still in progress.
func (c *Coordinator) StartupPending() bool {
	return c.startupPending
}

// Update advances the timed sequences and runs one control step on the slide
// and arm.
func (c *Coordinator) Update(ctx context.Context) {
	now := c.clock.Now()
	if c.startupPending && !now.Before(c.startupDeadline) {
		c.startupPending = false
		c.DeactivateArm(ctx)
	}
	if c.deactivatePending {
		tol := c.store.Load().Arm.SettleTolerance
		settled := tol > 0 && c.arm.AtTarget(ctx, tol)
		if settled || !now.Before(c.deactivateDeadline) {
			c.deactivatePending = false
			c.arm.Deactivate()
		}
	}

	c.slide.Update(ctx)
	c.arm.Update(ctx)
}

func (c *Coordinator) MonitorArmPositionSwitch(ctx context.Context) bool {
	return c.arm.MonitorPositionSwitch(ctx)
}

func (c *Coordinator) IntakeGrab(ctx context.Context)   { c.intake.Grab(ctx) }
func (c *Coordinator) IntakeEject(ctx context.Context)  { c.intake.Eject(ctx) }
func (c *Coordinator) IntakeSettle(ctx context.Context) { c.intake.Settle(ctx) }

// EnsureSafety stops every module.
func (c *Coordinator) EnsureSafety(ctx context.Context) {
	c.startupPending = false
	c.deactivatePending = false
	for _, m := range c.Modules() {
		m.EnsureSafety(ctx)
	}
}

// Log writes coordinator state and every module to sink. It does not flush.
func (c *Coordinator) Log(sink telemetry.Sink) {
	sink.AddData("mode", c.mode.String())
	if c.solved {
		sink.AddData("reach/percent", c.last.Percent)
		sink.AddData("reach/distance", c.last.EffectiveDistance)
		sink.AddData("reach/clamped", c.last.Clamped())
	}
	if c.rejected != nil {
		sink.AddData("reach/rejected", c.rejected.Error())
	}
	for _, m := range c.Modules() {
		m.Log(sink)
	}
}
