// Package hardware describes the devices the appendage drives and the
// availability wrapper that lets callers treat missing hardware as a no-op.
package hardware

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies the capability a logical device name is resolved as.
type Kind int

// Device kinds understood by a Registry.
const (
	KindMotor Kind = iota + 1
	KindServo
	KindCRServo
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindMotor:
		return "motor"
	case KindServo:
		return "servo"
	case KindCRServo:
		return "crservo"
	case KindSwitch:
		return "switch"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a config string back into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindMotor, KindServo, KindCRServo, KindSwitch} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("unknown device kind %q", s)
}

// Direction flips the sign of power and encoder readings.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// Sign returns +1 for Forward and -1 for Reverse.
func (d Direction) Sign() float64 {
	if d == Reverse {
		return -1
	}
	return 1
}

var (
	// ErrNotRegistered is wrapped by a Registry when no device of the requested
	// kind is bound to a name.
	ErrNotRegistered = errors.New("device not registered")

	// ErrMissingDevice is the panic value of Optional.Require on an
	// unavailable device.
	ErrMissingDevice = errors.New("device is not available")
)

// Device is the common part of every device handle.
type Device interface {
	// ConnectionInfo describes the physical connection. It has no side
	// effects and fails when the device is not actually present.
	ConnectionInfo(ctx context.Context) (string, error)
}

// Motor is an encoder-equipped actuator driven by power in [-1, 1].
type Motor interface {
	Device
	// Position returns the encoder count relative to the last reset.
	Position(ctx context.Context) (int, error)
	SetPower(ctx context.Context, power float64) error
	ResetEncoder(ctx context.Context) error
	SetDirection(d Direction)
}

// Servo is a positional servo commanded in normalized units [0, 1].
type Servo interface {
	Device
	Position(ctx context.Context) (float64, error)
	SetPosition(ctx context.Context, position float64) error
}

// CRServo is a continuous-rotation servo driven by power in [-1, 1].
type CRServo interface {
	Device
	Power() float64
	SetPower(ctx context.Context, power float64) error
	SetDirection(d Direction)
}

// Switch is a level-triggered limit or position switch.
type Switch interface {
	Device
	Pressed(ctx context.Context) (bool, error)
}

// Registry resolves logical device names to device handles.
//
// Resolve wraps ErrNotRegistered when name is unknown or bound to another
// kind. Any other error means the registry itself failed.
type Registry interface {
	Resolve(ctx context.Context, name string, kind Kind) (Device, error)
}
