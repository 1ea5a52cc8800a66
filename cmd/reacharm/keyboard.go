package main

import (
	"sync"

	"github.com/gwillem/reacharm/pkg/teleop"
)

const stickStep = 0.1

// keyboardInput turns terminal key presses into gamepad snapshots. Buttons
// are held for one tick; the stick and the rollers latch.
type keyboardInput struct {
	mu      sync.Mutex
	stickY  float64
	rollers int // -1 eject, 0 settle, 1 grab
	pending teleop.Input
}

func newKeyboardInput() *keyboardInput {
	return &keyboardInput{}
}

func (k *keyboardInput) Snapshot() teleop.Input {
	k.mu.Lock()
	defer k.mu.Unlock()

	in := k.pending
	k.pending = teleop.Input{}
	in.Operator.LeftStickY = k.stickY
	in.Driver.LeftBumper = k.rollers > 0
	in.Driver.RightBumper = k.rollers < 0
	return in
}

// Press maps a key and reports whether it was recognised.
func (k *keyboardInput) Press(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	op := &k.pending.Operator
	switch key {
	case "up", "k":
		k.stickY = min(k.stickY+stickStep, 1)
	case "down", "j":
		k.stickY = max(k.stickY-stickStep, -1)
	case "a":
		op.A = true
	case "x":
		op.X = true
	case "b":
		op.B = true
	case "y":
		op.Y = true
	case "1":
		op.DpadUp = true
	case "2":
		op.DpadLeft = true
	case "3":
		op.DpadDown = true
	case "g":
		k.rollers = toggle(k.rollers, 1)
	case "e":
		k.rollers = toggle(k.rollers, -1)
	case " ":
		k.rollers = 0
	case "esc":
		op.Guide = true
	default:
		return false
	}
	return true
}

// Reach is the reach fraction the stick currently asks for.
func (k *keyboardInput) Reach() float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return teleop.ReachFromStick(k.stickY)
}

func toggle(cur, want int) int {
	if cur == want {
		return 0
	}
	return want
}
