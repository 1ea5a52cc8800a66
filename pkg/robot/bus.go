// Package robot backs the hardware registry with a feetech STS servo bus.
package robot

import (
	"context"
	"sync"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/reacharm/pkg/hardware"
)

// servoGroup is the sync read side of a feetech servo group, keyed by id.
type servoGroup interface {
	Positions(ctx context.Context) (map[int]int, error)
	DisableAll(ctx context.Context) error
}

type feetechGroup struct {
	*feetech.ServoGroup
}

func (g feetechGroup) Positions(ctx context.Context) (map[int]int, error) {
	raw, err := g.ServoGroup.Positions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(raw))
	for id, pos := range raw {
		out[id] = pos
	}
	return out, nil
}

// Bus is a hardware.Registry over one serial servo bus.
type Bus struct {
	bus    *feetech.Bus
	cfg    Config
	logger *zap.SugaredLogger

	found map[int]feetech.FoundServo
	group servoGroup

	mu      sync.Mutex
	devices map[string]hardware.Device
	servos  []*feetech.Servo
}

// Open connects to the bus and scans for the configured servo IDs.
func Open(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*Bus, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  cfg.Timeout(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open bus %s", cfg.Port)
	}

	b := &Bus{
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		found:   map[int]feetech.FoundServo{},
		devices: map[string]hardware.Device{},
	}

	ids := cfg.Devices.IDs()
	if len(ids) == 0 {
		return b, nil
	}
	lo, hi := ids[0], ids[0]
	for _, id := range ids {
		lo, hi = min(lo, id), max(hi, id)
	}
	found, err := bus.Scan(ctx, lo, hi)
	if err != nil {
		bus.Close()
		return nil, errors.Wrapf(err, "scan %s", cfg.Port)
	}
	for _, s := range found {
		b.found[s.ID] = s
	}
	for _, name := range cfg.Devices.Names() {
		if _, ok := b.found[cfg.Devices[name].ID]; !ok {
			logger.Debugf("%s: servo %d not on bus", name, cfg.Devices[name].ID)
		}
	}
	b.group = feetechGroup{feetech.NewServoGroupByIDs(bus, ids...)}

	return b, nil
}

// Resolve implements hardware.Registry. A name bound to a servo that did not
// answer the scan still resolves; its ConnectionInfo fails.
func (b *Bus) Resolve(ctx context.Context, name string, kind hardware.Kind) (hardware.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	binding, ok := b.cfg.Devices[name]
	if !ok {
		return nil, errors.Wrapf(hardware.ErrNotRegistered, "%q", name)
	}
	bound, err := hardware.ParseKind(binding.Kind)
	if err != nil {
		return nil, errors.Wrapf(err, "device %q", name)
	}
	if bound != kind {
		return nil, errors.Wrapf(hardware.ErrNotRegistered, "%q is a %s, not a %s", name, bound, kind)
	}
	if dev, ok := b.devices[name]; ok {
		return dev, nil
	}

	var servo *feetech.Servo
	if s, ok := b.found[binding.ID]; ok {
		servo = feetech.NewServo(b.bus, s.ID, s.Model)
		if err := servo.Enable(ctx); err != nil {
			b.logger.Warnf("%s: enable torque: %v", name, err)
		}
		b.servos = append(b.servos, servo)
	}

	base := servoDevice{name: name, port: b.cfg.Port, binding: binding}
	if servo != nil {
		base.servo = servo
	}
	var dev hardware.Device
	switch kind {
	case hardware.KindMotor:
		dev = &servoMotor{servoDevice: base}
	case hardware.KindServo:
		dev = &positionServo{servoDevice: base}
	case hardware.KindCRServo:
		dev = &crServo{servoDevice: base}
	default:
		return nil, errors.Wrapf(hardware.ErrNotRegistered, "%q: no %s support on the servo bus", name, kind)
	}
	b.devices[name] = dev
	return dev, nil
}

// Positions reads all bound servos in one sync read, keyed by device name.
func (b *Bus) Positions(ctx context.Context) (map[string]int, error) {
	if b.group == nil {
		return map[string]int{}, nil
	}
	raw, err := b.group.Positions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read positions")
	}
	positions := make(map[string]int, len(raw))
	for id, pos := range raw {
		if name, _, ok := b.cfg.Devices.ByID(id); ok {
			positions[name] = pos
		}
	}
	return positions, nil
}

// Release switches torque off on every bound servo so the mechanism can be
// moved by hand.
func (b *Bus) Release(ctx context.Context) error {
	if b.group == nil {
		return nil
	}
	return errors.Wrap(b.group.DisableAll(ctx), "release torque")
}

// Close releases torque on every servo that was handed out and closes the
// port.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx := context.Background()
	var err error
	for _, s := range b.servos {
		err = multierr.Append(err, s.Disable(ctx))
	}
	b.servos = nil
	return multierr.Append(err, b.bus.Close())
}
