package telemetry

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// RegisterWriter is the part of a modbus.Client the sink needs.
type RegisterWriter interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) (results []byte, err error)
}

// ModbusSink mirrors numeric values into holding registers so a panel or PLC
// can display them. Each mapped key occupies two registers holding a
// big-endian float32. Unmapped and non-numeric values are ignored.
//
// Flush never touches the network: it hands the frame to a writer goroutine
// and returns. While the writer is busy only the newest frame is kept.
type ModbusSink struct {
	client    RegisterWriter
	registers map[string]uint16
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]float32
	closed  bool

	frames  chan map[string]float32
	done    chan struct{}
	failing atomic.Bool
}

// NewModbusSink wraps an existing register writer and starts its writer.
// Close stops it.
func NewModbusSink(client RegisterWriter, registers map[string]uint16, logger *zap.SugaredLogger) *ModbusSink {
	m := &ModbusSink{
		client:    client,
		registers: registers,
		pending:   map[string]float32{},
		logger:    logger,
		frames:    make(chan map[string]float32, 1),
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

// DialModbus connects to a Modbus TCP endpoint. The returned close func
// stops the writer and releases the connection.
func DialModbus(endpoint string, unitID uint8, timeout time.Duration, registers map[string]uint16, logger *zap.SugaredLogger) (*ModbusSink, func() error, error) {
	if endpoint == "" {
		return nil, nil, errors.New("modbus telemetry: endpoint required")
	}
	h := modbus.NewTCPClientHandler(endpoint)
	h.Timeout = timeout
	h.SlaveId = unitID
	if err := h.Connect(); err != nil {
		return nil, nil, errors.Wrapf(err, "connect %s", endpoint)
	}
	sink := NewModbusSink(modbus.NewClient(h), registers, logger)
	closeFn := func() error {
		return multierr.Append(sink.Close(), h.Close())
	}
	return sink, closeFn, nil
}

func (m *ModbusSink) AddData(key string, value any) {
	if _, ok := m.registers[key]; !ok {
		return
	}
	v, ok := toFloat(value)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[key] = v
}

func (m *ModbusSink) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || len(m.pending) == 0 {
		return
	}
	frame := m.pending
	m.pending = make(map[string]float32, len(frame))

	select {
	case m.frames <- frame:
	default:
		// writer still busy: replace the queued frame with this one
		select {
		case <-m.frames:
		default:
		}
		m.frames <- frame
	}
}

// Close stops accepting frames and waits for the writer to finish the one
// in flight. It is safe to call more than once.
func (m *ModbusSink) Close() error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.frames)
	}
	m.mu.Unlock()
	<-m.done
	return nil
}

// Failing reports whether the last frame failed to write.
func (m *ModbusSink) Failing() bool {
	return m.failing.Load()
}

func (m *ModbusSink) run() {
	defer close(m.done)
	for frame := range m.frames {
		m.write(frame)
	}
}

func (m *ModbusSink) write(frame map[string]float32) {
	keys := make([]string, 0, len(frame))
	for k := range frame {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var failed error
	for _, key := range keys {
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, math.Float32bits(frame[key]))
		if _, err := m.client.WriteMultipleRegisters(m.registers[key], 2, payload); err != nil {
			failed = errors.Wrapf(err, "write %s", key)
			break
		}
	}

	// log transitions only; the loop runs far faster than anyone reads logs
	switch {
	case failed != nil && !m.failing.Load():
		m.logger.Warnf("modbus telemetry: %v", failed)
		m.failing.Store(true)
	case failed == nil && m.failing.Load():
		m.logger.Infof("modbus telemetry recovered")
		m.failing.Store(false)
	}
}

func toFloat(value any) (float32, bool) {
	switch v := value.(type) {
	case float64:
		return float32(v), true
	case float32:
		return v, true
	case int:
		return float32(v), true
	case int64:
		return float32(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
