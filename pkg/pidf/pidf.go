// Package pidf implements a single-axis PIDF position controller.
package pidf

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
)

// DefaultPeriod is the nominal tick used for the first Compute call.
const DefaultPeriod = 20 * time.Millisecond

// Gains are the proportional, integral, derivative and feedforward terms.
type Gains struct {
	KP float64 `json:"kp" yaml:"kp"`
	KI float64 `json:"ki" yaml:"ki"`
	KD float64 `json:"kd" yaml:"kd"`
	KF float64 `json:"kf" yaml:"kf"`
}

// Controller turns a position error into a power command in [-1, 1].
// It is not safe for concurrent use; one controller belongs to one actuator.
type Controller struct {
	clock  clock.Clock
	period time.Duration

	gains     Gains
	setpoint  float64
	integral  float64
	lastError float64
	last      time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used to measure dt between Compute calls.
func WithClock(c clock.Clock) Option {
	return func(p *Controller) { p.clock = c }
}

// WithPeriod sets the nominal tick period.
func WithPeriod(d time.Duration) Option {
	return func(p *Controller) {
		if d > 0 {
			p.period = d
		}
	}
}

// New returns a controller with the given gains and a zero setpoint.
func New(gains Gains, opts ...Option) *Controller {
	c := &Controller{
		clock:  clock.New(),
		period: DefaultPeriod,
		gains:  gains,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCoefficients replaces the gains. The integral is kept so live tuning
// does not kick the output.
func (c *Controller) SetCoefficients(g Gains) {
	c.gains = g
}

func (c *Controller) Coefficients() Gains {
	return c.gains
}

func (c *Controller) SetSetpoint(v float64) {
	c.setpoint = v
}

func (c *Controller) Setpoint() float64 {
	return c.setpoint
}

// LastError is the error seen by the most recent computation.
func (c *Controller) LastError() float64 {
	return c.lastError
}

// Compute runs one step using the time since the previous Compute as dt.
// The first call after New or Reset uses the nominal period.
func (c *Controller) Compute(measured float64) float64 {
	now := c.clock.Now()
	dt := c.period
	if !c.last.IsZero() {
		if elapsed := now.Sub(c.last); elapsed > 0 {
			dt = elapsed
		}
	}
	c.last = now
	return c.Next(measured, dt)
}

// Next runs one step with an explicit dt.
func (c *Controller) Next(measured float64, dt time.Duration) float64 {
	seconds := dt.Seconds()
	if seconds <= 0 {
		seconds = c.period.Seconds()
	}

	e := c.setpoint - measured
	c.integral += e * seconds
	derivative := (e - c.lastError) / seconds
	c.lastError = e

	out := c.gains.KP*e + c.gains.KI*c.integral + c.gains.KD*derivative + c.gains.KF
	return lo.Clamp(out, -1, 1)
}

// Reset clears the accumulated state. Gains and setpoint are kept.
func (c *Controller) Reset() {
	c.integral = 0
	c.lastError = 0
	c.last = time.Time{}
}
