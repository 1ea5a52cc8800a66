package teleop

// Gamepad is one controller's state at the start of a tick. Stick Y is -1
// when pushed away from the operator.
type Gamepad struct {
	LeftStickX, LeftStickY   float64
	RightStickX, RightStickY float64
	LeftTrigger              float64
	RightTrigger             float64

	A, B, X, Y bool

	DpadUp, DpadDown, DpadLeft, DpadRight bool

	LeftBumper, RightBumper bool

	Back, Start, Guide bool
}

// Input holds both pads. The driver runs the rollers; the operator runs the
// appendage.
type Input struct {
	Driver   Gamepad
	Operator Gamepad
}

// InputSource is polled once per tick. There is no debouncing: a held button
// is seen on every tick.
type InputSource interface {
	Snapshot() Input
}

// InputFunc adapts a function to InputSource.
type InputFunc func() Input

func (f InputFunc) Snapshot() Input { return f() }

// ReachFromStick maps stick Y onto a reach fraction: centred is half reach,
// pulled fully back is full reach.
func ReachFromStick(y float64) float64 {
	return min(max((y+1)*0.5, 0), 1)
}
