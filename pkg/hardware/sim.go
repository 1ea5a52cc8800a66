package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

var errSimDisconnected = errors.New("simulated device disconnected")

type simEntry struct {
	kind   Kind
	device Device
}

// SimRegistry is an in-memory Registry for tests and the simulator.
type SimRegistry struct {
	mu       sync.Mutex
	devices  map[string]simEntry
	failures map[string]error
}

// NewSimRegistry returns an empty registry.
func NewSimRegistry() *SimRegistry {
	return &SimRegistry{
		devices:  map[string]simEntry{},
		failures: map[string]error{},
	}
}

// Add binds dev to name as kind.
func (r *SimRegistry) Add(name string, kind Kind, dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[name] = simEntry{kind: kind, device: dev}
}

// Fail makes every Resolve of name return err.
func (r *SimRegistry) Fail(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = err
}

// Names returns the bound names.
func (r *SimRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Keys(r.devices)
}

func (r *SimRegistry) Resolve(_ context.Context, name string, kind Kind) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.failures[name]; ok {
		return nil, err
	}
	entry, ok := r.devices[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotRegistered, "%q", name)
	}
	if entry.kind != kind {
		return nil, errors.Wrapf(ErrNotRegistered, "%q is a %s, not a %s", name, entry.kind, kind)
	}
	return entry.device, nil
}

// SimMotor is a first-order motor plant: the encoder advances at
// power*TicksPerSecond, integrated over clock time.
type SimMotor struct {
	mu             sync.Mutex
	clock          clock.Clock
	ticksPerSecond float64
	ticks          float64
	power          float64
	direction      Direction
	last           time.Time
	disconnected   bool
	writes         int
}

// NewSimMotor returns a motor that moves ticksPerSecond at full power.
func NewSimMotor(clk clock.Clock, ticksPerSecond float64) *SimMotor {
	return &SimMotor{clock: clk, ticksPerSecond: ticksPerSecond, last: clk.Now()}
}

// advance integrates motion since the last call. Caller holds mu.
func (m *SimMotor) advance() {
	now := m.clock.Now()
	dt := now.Sub(m.last).Seconds()
	m.last = now
	if dt > 0 {
		m.ticks += m.power * m.direction.Sign() * m.ticksPerSecond * dt
	}
}

func (m *SimMotor) ConnectionInfo(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnected {
		return "", errSimDisconnected
	}
	return fmt.Sprintf("sim motor %.0f ticks/s", m.ticksPerSecond), nil
}

func (m *SimMotor) Position(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	return int(m.ticks * m.direction.Sign()), nil
}

func (m *SimMotor) SetPower(_ context.Context, power float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	m.power = lo.Clamp(power, -1, 1)
	m.writes++
	return nil
}

func (m *SimMotor) ResetEncoder(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	m.ticks = 0
	return nil
}

func (m *SimMotor) SetDirection(d Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.direction = d
}

// Power returns the last commanded power.
func (m *SimMotor) Power() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.power
}

// Writes counts SetPower calls.
func (m *SimMotor) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// SetTicks places the encoder at ticks, e.g. to start mid-travel.
func (m *SimMotor) SetTicks(ticks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance()
	m.ticks = float64(ticks) * m.direction.Sign()
}

// Disconnect makes ConnectionInfo fail.
func (m *SimMotor) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
}

// SimServo reports its last commanded position.
type SimServo struct {
	mu           sync.Mutex
	position     float64
	disconnected bool
	writes       int
}

func (s *SimServo) ConnectionInfo(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return "", errSimDisconnected
	}
	return "sim servo", nil
}

func (s *SimServo) Position(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, nil
}

func (s *SimServo) SetPosition(_ context.Context, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = lo.Clamp(position, 0, 1)
	s.writes++
	return nil
}

// Writes counts SetPosition calls.
func (s *SimServo) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Disconnect makes ConnectionInfo fail.
func (s *SimServo) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true
}

// SimCRServo records its power. Power is reported as commanded; the
// direction is applied on the way out, as on real hardware.
type SimCRServo struct {
	mu        sync.Mutex
	power     float64
	direction Direction
}

func (s *SimCRServo) ConnectionInfo(context.Context) (string, error) {
	return "sim crservo", nil
}

func (s *SimCRServo) Power() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power
}

// Output is the signed power after the direction is applied.
func (s *SimCRServo) Output() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.power * s.direction.Sign()
}

func (s *SimCRServo) SetPower(_ context.Context, power float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.power = lo.Clamp(power, -1, 1)
	return nil
}

func (s *SimCRServo) SetDirection(d Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direction = d
}

// SimSwitch is a switch whose level is set by the test or simulator.
type SimSwitch struct {
	mu      sync.Mutex
	pressed bool
}

func (s *SimSwitch) ConnectionInfo(context.Context) (string, error) {
	return "sim switch", nil
}

func (s *SimSwitch) Pressed(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressed, nil
}

// Set changes the switch level.
func (s *SimSwitch) Set(pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed = pressed
}
