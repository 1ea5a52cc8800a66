// Package teleop runs the operator control loop: it polls gamepads, maps them
// onto coordinator commands and publishes state for display.
package teleop

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/reacharm/pkg/control"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

// State is a snapshot of the appendage after one tick.
type State struct {
	Mode        control.Mode
	ArmActive   bool
	Reach       float64
	SlideTarget float64
	SlideHeight float64
	ArmTarget   float64
	ArmAngle    float64
	Timestamp   time.Time
	Error       error
}

// Controller manages the teleoperation control loop.
type Controller struct {
	coord  *control.Coordinator
	input  InputSource
	sink   telemetry.Sink
	closer io.Closer
	clock  clock.Clock
	logger *zap.SugaredLogger
	hz     int

	mu      sync.RWMutex
	running bool
	stateCh chan State
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Coordinator *control.Coordinator
	Input       InputSource
	// Sink receives coordinator telemetry every tick. Optional.
	Sink telemetry.Sink
	// Closer is closed by Close, typically the device registry. Optional.
	Closer io.Closer
	Hz     int
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// NewController creates a new teleoperation controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Coordinator == nil {
		return nil, errors.New("teleop: coordinator required")
	}
	if cfg.Input == nil {
		return nil, errors.New("teleop: input source required")
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.Nop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 50
	}

	return &Controller{
		coord:   cfg.Coordinator,
		input:   cfg.Input,
		sink:    cfg.Sink,
		closer:  cfg.Closer,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		hz:      cfg.Hz,
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}, nil
}

// Close stops the controller and releases the registry.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	if c.closer == nil {
		return nil
	}
	return errors.Wrap(c.closer.Close(), "close registry")
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

func (c *Controller) log(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.logger.Info(text)
	msg := fmt.Sprintf("[%s] %s", c.clock.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the control loop until ctx is cancelled or an operator presses
// Guide. A Guide stop returns nil.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("already running")
	}
	c.running = true
	c.mu.Unlock()

	for _, m := range []struct {
		name   string
		module control.Module
	}{
		{"slide", c.coord.Slide()},
		{"arm", c.coord.Arm()},
		{"intake", c.coord.Intake()},
	} {
		if !m.module.Connected() {
			c.log("Warning: %s not connected, running without it", m.name)
		}
	}

	c.coord.StartSystem(ctx)
	c.log("Teleoperation started at %d Hz", c.hz)

	ticker := c.clock.Ticker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			if !c.Step(ctx) {
				c.shutdown()
				return nil
			}
		}
	}
}

// Step runs one tick. It returns false when an operator asked to stop.
func (c *Controller) Step(ctx context.Context) bool {
	in := c.input.Snapshot()
	if in.Driver.Guide || in.Operator.Guide {
		c.log("Stop requested")
		return false
	}
	op := in.Operator

	switch {
	case in.Driver.LeftBumper:
		c.coord.IntakeGrab(ctx)
	case in.Driver.RightBumper:
		c.coord.IntakeEject(ctx)
	default:
		c.coord.IntakeSettle(ctx)
	}

	switch {
	case op.A:
		c.coord.SetToMovingMode(ctx)
	case op.X:
		c.coord.SetToScoringMode(ctx)
	case op.B:
		c.coord.SetToIntakeMode(ctx)
	}

	var reachErr error
	activate := true
	switch {
	case c.coord.InIntakeMode():
		_, reachErr = c.coord.SetTargetDistance(ctx, ReachFromStick(op.LeftStickY))
	case op.DpadUp:
		c.coord.SetToHangSetup(ctx)
	case op.DpadLeft:
		c.coord.SetToHangGrab(ctx)
	case op.DpadDown:
		c.coord.SetToHangPull(ctx)
	default:
		activate = false
	}

	if op.Y {
		c.coord.DeactivateArm(ctx)
	} else if activate || c.coord.MonitorArmPositionSwitch(ctx) {
		c.coord.ActivateArm()
	}

	c.coord.Update(ctx)

	c.coord.Log(c.sink)
	c.sink.Flush()
	c.sendState(c.snapshot(ctx, reachErr))
	return true
}

func (c *Controller) snapshot(ctx context.Context, reachErr error) State {
	s := State{
		Mode:        c.coord.Mode(),
		ArmActive:   c.coord.Arm().Active(),
		SlideTarget: c.coord.Slide().TargetHeight(),
		ArmTarget:   c.coord.Arm().TargetAngle(),
		Timestamp:   c.clock.Now(),
		Error:       reachErr,
	}
	if sol, ok := c.coord.LastSolution(); ok {
		s.Reach = sol.Percent
	}
	if h, ok := c.coord.Slide().CurrentHeight(ctx); ok {
		s.SlideHeight = h
	}
	if a, ok := c.coord.Arm().CurrentAngle(ctx); ok {
		s.ArmAngle = a
	}
	return s
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.coord.EnsureSafety(context.Background())
	c.log("Teleoperation stopped")
}
