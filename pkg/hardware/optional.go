package hardware

import (
	"context"

	"github.com/pkg/errors"
)

// Optional holds a device that may not be physically present.
//
// Optional values are immutable; they are created once per logical device
// name when a module is constructed.
type Optional[T Device] struct {
	name      string
	device    T
	available bool
}

// Present wraps a device known to be usable.
func Present[T Device](name string, device T) Optional[T] {
	return Optional[T]{name: name, device: device, available: true}
}

// Absent returns an unavailable wrapper for name.
func Absent[T Device](name string) Optional[T] {
	return Optional[T]{name: name}
}

// TryAcquire resolves name as kind and verifies the device is connected.
//
// It always returns a wrapper. A name that is not registered, or a device that
// fails its ConnectionInfo check, yields an unavailable wrapper and a nil
// error. Other registry failures are returned alongside an unavailable wrapper.
func TryAcquire[T Device](ctx context.Context, reg Registry, kind Kind, name string) (Optional[T], error) {
	dev, err := reg.Resolve(ctx, name, kind)
	if err != nil {
		if errors.Is(err, ErrNotRegistered) {
			return Absent[T](name), nil
		}
		return Absent[T](name), errors.Wrapf(err, "resolve %s %q", kind, name)
	}

	typed, ok := dev.(T)
	if !ok {
		return Absent[T](name), errors.Errorf("device %q resolved as %T, which is not a %s", name, dev, kind)
	}

	// The registry only knows the name is bound; a read that touches the
	// hardware tells us whether anything is plugged in.
	if _, err := typed.ConnectionInfo(ctx); err != nil {
		return Absent[T](name), nil
	}

	return Present(name, typed), nil
}

// Name returns the logical device name.
func (o Optional[T]) Name() string {
	return o.name
}

// Available reports whether the device can be used.
func (o Optional[T]) Available() bool {
	return o.available
}

// Require returns the device. Callers must have checked Available; an
// unavailable device panics with ErrMissingDevice.
func (o Optional[T]) Require() T {
	if !o.available {
		panic(errors.Wrapf(ErrMissingDevice, "require %q", o.name))
	}
	return o.device
}

// RunIfAvailable calls fn with the device, or does nothing.
func (o Optional[T]) RunIfAvailable(fn func(T)) {
	o.RunIfAvailableElse(fn, func() {})
}

// RunIfAvailableElse calls fn with the device, or onUnavailable when there is
// no device.
func (o Optional[T]) RunIfAvailableElse(fn func(T), onUnavailable func()) {
	if o.available {
		fn(o.device)
		return
	}
	onUnavailable()
}

// Equal reports whether both wrappers hold the same device. Unavailable
// wrappers are never equal to anything. Devices are compared as interface
// values, so T must be a comparable handle such as a pointer; a struct
// device holding a slice or map panics here.
func (o Optional[T]) Equal(other Optional[T]) bool {
	if !o.available || !other.available {
		return false
	}
	return any(o.device) == any(other.device)
}

func (o Optional[T]) String() string {
	if !o.available {
		return o.name + " (unavailable)"
	}
	return o.name
}
