package robot

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gwillem/reacharm/pkg/hardware"
)

// DefaultBaudRate is the STS bus speed.
const DefaultBaudRate = 1_000_000

// Config describes the servo bus and which servo backs each device name.
type Config struct {
	Port      string   `json:"port" yaml:"port"`
	BaudRate  int      `json:"baud_rate" yaml:"baud_rate"`
	TimeoutMs int      `json:"timeout_ms" yaml:"timeout_ms"`
	Devices   Bindings `json:"devices,omitempty" yaml:"devices,omitempty"`
}

// IsConfigured returns true if a port and at least one device are set.
func (c Config) IsConfigured() bool {
	return c.Port != "" && len(c.Devices) > 0
}

// Timeout is the per-transaction bus timeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Validate checks the bindings. An empty config is valid; it simply binds
// nothing.
func (c Config) Validate() error {
	seen := map[int]string{}
	for _, name := range c.Devices.Names() {
		b := c.Devices[name]
		kind, err := hardware.ParseKind(b.Kind)
		if err != nil {
			return errors.Wrapf(err, "device %q", name)
		}
		if kind == hardware.KindSwitch {
			return errors.Errorf("device %q: the servo bus has no switch inputs", name)
		}
		if b.ID < 1 || b.ID > 253 {
			return errors.Errorf("device %q: servo id %d out of range", name, b.ID)
		}
		if other, ok := seen[b.ID]; ok {
			return errors.Errorf("devices %q and %q share servo id %d", other, name, b.ID)
		}
		seen[b.ID] = name
		if b.RangeMax < b.RangeMin {
			return errors.Errorf("device %q: range_max below range_min", name)
		}
	}
	return nil
}
