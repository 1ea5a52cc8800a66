// Package slide drives the telescoping slide to a normalized extension.
package slide

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/pidf"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

// MotorName is the registry name of the slide motor.
const MotorName = "Slide Motor"

// Slide holds the extension target and closes the loop on it every Update.
// 0 is fully retracted and 1 is fully extended.
type Slide struct {
	motor  hardware.Optional[hardware.Motor]
	pid    *pidf.Controller
	store  *config.Store
	logger *zap.SugaredLogger

	target float64
	power  float64
}

// New acquires the slide motor. A missing motor is not an error; every
// operation then becomes a no-op.
func New(ctx context.Context, reg hardware.Registry, store *config.Store, clk clock.Clock, logger *zap.SugaredLogger) (*Slide, error) {
	motor, err := hardware.TryAcquire[hardware.Motor](ctx, reg, hardware.KindMotor, MotorName)
	if err != nil {
		return nil, err
	}
	if !motor.Available() {
		logger.Debugf("%s not available", MotorName)
	}

	cfg := store.Load()
	s := &Slide{
		motor:  motor,
		pid:    pidf.New(cfg.Slide.Gains, pidf.WithClock(clk), pidf.WithPeriod(cfg.Loop.Period())),
		store:  store,
		logger: logger,
	}

	var initErr error
	motor.RunIfAvailable(func(m hardware.Motor) {
		if cfg.Slide.Reversed {
			m.SetDirection(hardware.Reverse)
		}
		initErr = m.ResetEncoder(ctx)
	})
	if initErr != nil {
		logger.Warnf("%s: reset encoder: %v", MotorName, initErr)
	}
	return s, nil
}

// SetTargetHeight stores the target; the next Update acts on it.
func (s *Slide) SetTargetHeight(normalized float64) {
	s.target = min(max(normalized, 0), 1)
}

func (s *Slide) TargetHeight() float64 {
	return s.target
}

// CurrentHeight returns the measured extension. ok is false when the motor is
// missing or the read failed.
func (s *Slide) CurrentHeight(ctx context.Context) (height float64, ok bool) {
	s.motor.RunIfAvailable(func(m hardware.Motor) {
		ticks, err := m.Position(ctx)
		if err != nil {
			s.logger.Debugf("%s: read position: %v", MotorName, err)
			return
		}
		height, ok = heightFromTicks(s.store.Load(), ticks), true
	})
	return height, ok
}

func heightFromTicks(cfg *config.Config, ticks int) float64 {
	cm := float64(ticks) / cfg.Slide.TicksPerCm
	return cm / cfg.Kinematics.MaxExtensionDistance
}

// Update runs one control step with the gains of the current config.
func (s *Slide) Update(ctx context.Context) {
	cfg := s.store.Load()
	s.motor.RunIfAvailable(func(m hardware.Motor) {
		ticks, err := m.Position(ctx)
		if err != nil {
			s.logger.Debugf("%s: read position: %v", MotorName, err)
			return
		}
		s.pid.SetCoefficients(cfg.Slide.Gains)
		s.pid.SetSetpoint(s.target)
		s.power = s.pid.Compute(heightFromTicks(cfg, ticks))
		if err := m.SetPower(ctx, s.power); err != nil {
			s.logger.Debugf("%s: set power: %v", MotorName, err)
		}
	})
}

// ResetEncoder zeroes the encoder at the current position.
func (s *Slide) ResetEncoder(ctx context.Context) error {
	var err error
	s.motor.RunIfAvailable(func(m hardware.Motor) {
		err = m.ResetEncoder(ctx)
		s.pid.Reset()
	})
	return err
}

func (s *Slide) Connected() bool {
	return s.motor.Available()
}

// EnsureSafety stops the motor and retracts the target.
func (s *Slide) EnsureSafety(ctx context.Context) {
	s.target = 0
	s.power = 0
	s.motor.RunIfAvailable(func(m hardware.Motor) {
		if err := m.SetPower(ctx, 0); err != nil {
			s.logger.Warnf("%s: stop: %v", MotorName, err)
		}
	})
	s.pid.Reset()
}

func (s *Slide) Log(sink telemetry.Sink) {
	sink.AddData("slide/connected", s.Connected())
	sink.AddData("slide/target", s.target)
	sink.AddData("slide/power", s.power)
}
