package telemetry

import (
	"encoding/binary"
	"maps"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.AddData("slide/height", 0.4)
	r.AddData("arm/angle", -30.0)

	_, ok := r.Value("slide/height")
	assert.False(t, ok, "nothing visible before flush")

	r.Flush()
	v, ok := r.Value("slide/height")
	require.True(t, ok)
	assert.Equal(t, 0.4, v)
	assert.Equal(t, []Entry{{"slide/height", 0.4}, {"arm/angle", -30.0}}, r.Last())

	r.Flush()
	assert.Empty(t, r.Last())
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi{a, b, Nop{}, NewZapSink(zaptest.NewLogger(t).Sugar())}
	m.AddData("k", 1)
	m.Flush()

	for _, r := range []*Recorder{a, b} {
		v, ok := r.Value("k")
		require.True(t, ok)
		assert.Equal(t, 1, v)
	}
}

type fakeRegisters struct {
	mu     sync.Mutex
	writes map[uint16][]byte
	frames int
	err    error
	delay  time.Duration
}

func (f *fakeRegisters) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.writes == nil {
		f.writes = map[uint16][]byte{}
	}
	f.writes[address] = value
	f.frames++
	return nil, nil
}

func (f *fakeRegisters) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRegisters) snapshot() (map[uint16][]byte, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.writes), f.frames
}

func registerFloat(b []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

func TestModbusSink(t *testing.T) {
	regs := &fakeRegisters{}
	sink := NewModbusSink(regs, map[string]uint16{
		"slide/height": 0,
		"arm/active":   2,
	}, zaptest.NewLogger(t).Sugar())

	sink.AddData("slide/height", 0.25)
	sink.AddData("arm/active", true)
	sink.AddData("mode", "intake")   // unmapped
	sink.AddData("arm/angle", -12.0) // unmapped
	sink.Flush()
	sink.Flush() // nothing new since the last flush
	require.NoError(t, sink.Close())

	writes, n := regs.snapshot()
	require.Len(t, writes, 2)
	assert.Equal(t, 2, n, "second flush sends no frame")
	assert.Equal(t, float32(0.25), registerFloat(writes[0]))
	assert.Equal(t, float32(1), registerFloat(writes[2]))

	sink.AddData("slide/height", 0.5)
	assert.NotPanics(t, sink.Flush, "flush after close is a no-op")
	assert.NoError(t, sink.Close())
}

func TestModbusSinkDropsOnError(t *testing.T) {
	regs := &fakeRegisters{err: errors.New("connection reset")}
	sink := NewModbusSink(regs, map[string]uint16{"x": 0}, zaptest.NewLogger(t).Sugar())
	defer sink.Close()

	sink.AddData("x", 1.0)
	assert.NotPanics(t, sink.Flush)
	assert.Eventually(t, sink.Failing, time.Second, 5*time.Millisecond)

	regs.setErr(nil)
	sink.AddData("x", 2.0)
	sink.Flush()
	assert.Eventually(t, func() bool { return !sink.Failing() }, time.Second, 5*time.Millisecond)
	writes, _ := regs.snapshot()
	require.Len(t, writes, 1)
	assert.Equal(t, float32(2), registerFloat(writes[0]))
}

func TestModbusSinkFlushDoesNotWaitForWrites(t *testing.T) {
	regs := &fakeRegisters{delay: 100 * time.Millisecond}
	sink := NewModbusSink(regs, map[string]uint16{"a": 0, "b": 2, "c": 4}, zaptest.NewLogger(t).Sugar())

	// a control tick at 50 Hz is 20ms; three slow writes take 300ms
	var slowest time.Duration
	for i := range 3 {
		sink.AddData("a", float64(i))
		sink.AddData("b", float64(i))
		sink.AddData("c", float64(i))
		start := time.Now()
		sink.Flush()
		slowest = max(slowest, time.Since(start))
	}
	assert.Less(t, slowest, 20*time.Millisecond)

	require.NoError(t, sink.Close())
	writes, n := regs.snapshot()
	assert.Equal(t, float32(2), registerFloat(writes[0]), "newest frame wins")
	assert.LessOrEqual(t, n, 6, "stale frames are dropped while the writer is busy")
}
