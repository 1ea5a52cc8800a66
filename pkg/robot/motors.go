package robot

import (
	"slices"

	"github.com/samber/lo"
)

// DefaultMaxStep is the raw position change a full-power command produces
// per write on motor and crservo bindings.
const DefaultMaxStep = 40

// Binding attaches a logical device name to one servo on the bus.
type Binding struct {
	// Kind is "motor", "servo" or "crservo".
	Kind    string `json:"kind" yaml:"kind"`
	MaxStep int    `json:"max_step,omitempty" yaml:"max_step,omitempty"`

	MotorCalibration `yaml:",inline"`
}

// Step returns the configured nudge size or the default.
func (b Binding) Step() int {
	if b.MaxStep > 0 {
		return b.MaxStep
	}
	return DefaultMaxStep
}

// Bindings maps logical device names to servos.
type Bindings map[string]Binding

// Names returns the bound names in sorted order.
func (b Bindings) Names() []string {
	names := lo.Keys(b)
	slices.Sort(names)
	return names
}

// IDs returns the servo IDs for all bindings, ordered by name.
func (b Bindings) IDs() []int {
	ids := make([]int, 0, len(b))
	for _, name := range b.Names() {
		ids = append(ids, b[name].ID)
	}
	return ids
}

// ByID returns the name and binding for a given servo ID.
func (b Bindings) ByID(id int) (string, Binding, bool) {
	for _, name := range b.Names() {
		if b[name].ID == id {
			return name, b[name], true
		}
	}
	return "", Binding{}, false
}
