package robot

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"

	"github.com/gwillem/reacharm/pkg/hardware"
)

var errNotOnBus = errors.New("servo not found on bus")

// positioner is the subset of *feetech.Servo the device adapters use.
type positioner interface {
	Position(ctx context.Context) (int, error)
	SetPosition(ctx context.Context, position int) error
}

var _ positioner = (*feetech.Servo)(nil)

type servoDevice struct {
	name    string
	port    string
	binding Binding
	servo   positioner
}

func (d *servoDevice) ConnectionInfo(ctx context.Context) (string, error) {
	if d.servo == nil {
		return "", errors.Wrapf(errNotOnBus, "%s id %d", d.name, d.binding.ID)
	}
	if _, err := d.servo.Position(ctx); err != nil {
		return "", errors.Wrapf(err, "%s id %d", d.name, d.binding.ID)
	}
	return fmt.Sprintf("feetech id %d on %s", d.binding.ID, d.port), nil
}

// nudge moves the servo by power*step raw units from where it is now.
// Position servos have no power mode; repeated nudges every tick approximate
// a velocity command.
func (d *servoDevice) nudge(ctx context.Context, power float64, sign float64) error {
	raw, err := d.servo.Position(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s: read position", d.name)
	}
	step := int(math.Round(power * sign * float64(d.binding.Step())))
	target := d.binding.Limit(raw + step)
	return errors.Wrapf(d.servo.SetPosition(ctx, target), "%s: write position", d.name)
}

// servoMotor presents a position servo as an encoder motor.
type servoMotor struct {
	servoDevice

	mu        sync.Mutex
	zero      int
	direction hardware.Direction
}

func (m *servoMotor) Position(ctx context.Context) (int, error) {
	raw, err := m.servo.Position(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: read position", m.name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(float64(raw-m.zero) * m.direction.Sign()), nil
}

func (m *servoMotor) SetPower(ctx context.Context, power float64) error {
	m.mu.Lock()
	sign := m.direction.Sign()
	m.mu.Unlock()
	return m.nudge(ctx, power, sign)
}

func (m *servoMotor) ResetEncoder(ctx context.Context) error {
	raw, err := m.servo.Position(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s: reset encoder", m.name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zero = raw
	return nil
}

func (m *servoMotor) SetDirection(d hardware.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction = d
}

// positionServo maps [0, 1] through the calibrated range.
type positionServo struct {
	servoDevice
}

func (s *positionServo) Position(ctx context.Context) (float64, error) {
	raw, err := s.servo.Position(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "%s: read position", s.name)
	}
	return s.binding.Normalize(raw), nil
}

func (s *positionServo) SetPosition(ctx context.Context, position float64) error {
	raw := s.binding.Denormalize(position)
	return errors.Wrapf(s.servo.SetPosition(ctx, raw), "%s: write position", s.name)
}

// crServo spins a position servo by nudging it on every SetPower.
type crServo struct {
	servoDevice

	mu        sync.Mutex
	power     float64
	direction hardware.Direction
}

func (s *crServo) Power() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

func (s *crServo) SetPower(ctx context.Context, power float64) error {
	s.mu.Lock()
	s.power = power
	sign := s.direction.Sign()
	s.mu.Unlock()
	if power == 0 {
		return nil
	}
	return s.nudge(ctx, power, sign)
}

func (s *crServo) SetDirection(d hardware.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direction = d
}
