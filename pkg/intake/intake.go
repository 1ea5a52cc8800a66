// Package intake drives the roller servos and the wrist at the end of the
// arm.
package intake

import (
	"context"

	"go.uber.org/zap"

	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

// Registry names of the intake devices.
const (
	LeftServoName  = "Left Intake Servo"
	RightServoName = "Right Intake Servo"
	WristServoName = "Wrist Servo"
)

type Intake struct {
	left   hardware.Optional[hardware.CRServo]
	right  hardware.Optional[hardware.CRServo]
	wrist  hardware.Optional[hardware.Servo]
	store  *config.Store
	logger *zap.SugaredLogger

	wristActive   bool
	wristPosition float64
	rollerPower   float64
}

// New acquires the rollers and wrist. The right roller is mounted mirrored
// and runs reversed. The wrist starts inactive until the arm activates it.
func New(ctx context.Context, reg hardware.Registry, store *config.Store, logger *zap.SugaredLogger) (*Intake, error) {
	left, err := hardware.TryAcquire[hardware.CRServo](ctx, reg, hardware.KindCRServo, LeftServoName)
	if err != nil {
		return nil, err
	}
	right, err := hardware.TryAcquire[hardware.CRServo](ctx, reg, hardware.KindCRServo, RightServoName)
	if err != nil {
		return nil, err
	}
	wrist, err := hardware.TryAcquire[hardware.Servo](ctx, reg, hardware.KindServo, WristServoName)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{left.String(), right.String(), wrist.String()} {
		logger.Debugf("intake device %s", name)
	}

	right.RunIfAvailable(func(s hardware.CRServo) {
		s.SetDirection(hardware.Reverse)
	})

	return &Intake{
		left:   left,
		right:  right,
		wrist:  wrist,
		store:  store,
		logger: logger,
	}, nil
}

func (i *Intake) setRollers(ctx context.Context, power float64) {
	i.rollerPower = power
	for _, roller := range []hardware.Optional[hardware.CRServo]{i.left, i.right} {
		roller.RunIfAvailable(func(s hardware.CRServo) {
			if err := s.SetPower(ctx, power); err != nil {
				i.logger.Debugf("%s: set power: %v", roller.Name(), err)
			}
		})
	}
}

// Grab spins the rollers inward.
func (i *Intake) Grab(ctx context.Context) {
	i.setRollers(ctx, i.store.Load().Wrist.RollerPower)
}

// Eject spins the rollers outward.
func (i *Intake) Eject(ctx context.Context) {
	i.setRollers(ctx, -i.store.Load().Wrist.RollerPower)
}

// Settle stops the rollers.
func (i *Intake) Settle(ctx context.Context) {
	i.setRollers(ctx, 0)
}

func (i *Intake) RollerPower() float64 {
	return i.rollerPower
}

// MoveWristTo commands a normalized wrist position regardless of whether
// the wrist is active.
func (i *Intake) MoveWristTo(ctx context.Context, position float64) {
	position = min(max(position, 0), 1)
	i.wrist.RunIfAvailable(func(s hardware.Servo) {
		if err := s.SetPosition(ctx, position); err != nil {
			i.logger.Debugf("%s: set position: %v", WristServoName, err)
			return
		}
		i.wristPosition = position
	})
}

// Turn toggles the wrist between 0 and the turn position.
func (i *Intake) Turn(ctx context.Context) {
	if i.wristPosition == 0 {
		i.MoveWristTo(ctx, i.store.Load().Wrist.TurnPosition)
		return
	}
	i.MoveWristTo(ctx, 0)
}

// HoldWristRotation parks the wrist at its hold position.
func (i *Intake) HoldWristRotation(ctx context.Context) {
	i.MoveWristTo(ctx, i.store.Load().Wrist.HoldPosition)
}

// RotateWristToDegrees points the wrist at an angle. It is ignored while the
// wrist is inactive.
func (i *Intake) RotateWristToDegrees(ctx context.Context, degrees float64) {
	if !i.wristActive {
		return
	}
	w := i.store.Load().Wrist
	i.MoveWristTo(ctx, (degrees-w.ZeroDegrees)/w.RangeDegrees)
}

func (i *Intake) SetWristActive(active bool) {
	i.wristActive = active
}

func (i *Intake) WristActive() bool {
	return i.wristActive
}

// WristPosition is the last position written to the wrist.
func (i *Intake) WristPosition() float64 {
	return i.wristPosition
}

// Connected reports whether any intake device is present.
func (i *Intake) Connected() bool {
	return i.left.Available() || i.right.Available() || i.wrist.Available()
}

// EnsureSafety stops the rollers and parks the wrist.
func (i *Intake) EnsureSafety(ctx context.Context) {
	i.Settle(ctx)
	i.HoldWristRotation(ctx)
}

func (i *Intake) Log(sink telemetry.Sink) {
	sink.AddData("intake/connected", i.Connected())
	sink.AddData("intake/rollers", i.rollerPower)
	sink.AddData("intake/wrist", i.wristPosition)
	sink.AddData("intake/wrist_active", i.wristActive)
}
