// Package telemetry collects per-tick key/value diagnostics. Sinks are
// best-effort: a sink that cannot deliver drops the frame.
package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

// Sink receives key/value pairs during a tick and publishes them on Flush.
type Sink interface {
	AddData(key string, value any)
	Flush()
}

// Entry is one recorded key/value pair.
type Entry struct {
	Key   string
	Value any
}

// Nop discards everything.
type Nop struct{}

func (Nop) AddData(string, any) {}
func (Nop) Flush()              {}

// Multi fans out to several sinks.
type Multi []Sink

func (m Multi) AddData(key string, value any) {
	for _, s := range m {
		s.AddData(key, value)
	}
}

func (m Multi) Flush() {
	for _, s := range m {
		s.Flush()
	}
}

// Recorder keeps the last flushed frame in insertion order.
type Recorder struct {
	mu      sync.Mutex
	pending []Entry
	last    []Entry
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) AddData(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, Entry{Key: key, Value: value})
}

func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = r.pending
	r.pending = nil
}

// Last returns a copy of the last flushed frame.
func (r *Recorder) Last() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.last...)
}

// Value returns the last flushed value for key. Later entries win.
func (r *Recorder) Value(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.last) - 1; i >= 0; i-- {
		if r.last[i].Key == key {
			return r.last[i].Value, true
		}
	}
	return nil, false
}

// ZapSink writes each frame as one debug line.
type ZapSink struct {
	logger *zap.SugaredLogger
	fields []any
}

func NewZapSink(logger *zap.SugaredLogger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (z *ZapSink) AddData(key string, value any) {
	z.fields = append(z.fields, key, value)
}

func (z *ZapSink) Flush() {
	if len(z.fields) == 0 {
		return
	}
	z.logger.Debugw("telemetry", z.fields...)
	z.fields = z.fields[:0]
}
