// Package metrics defines the sink consumed by the mutation path and the
// broadcast router.
package metrics

import "time"

// Sink records operational measurements. Implementations must be safe for
// concurrent use; recording must never fail the operation being measured.
type Sink interface {
	// RecordMutation counts a mutation attempt on an entity kind.
	RecordMutation(entity, op string, err error)
	// RecordEvent counts a change event emitted after a successful commit.
	RecordEvent(name string)
	// RecordSend counts one per-connection broadcast send.
	RecordSend(event string, ok bool, latency time.Duration)
	// RecordPosition captures a vehicle position sample.
	RecordPosition(vehicleID int64, lat, lon float64, ts time.Time)
}

// NopSink discards all measurements.
type NopSink struct{}

func (NopSink) RecordMutation(string, string, error)          {}
func (NopSink) RecordEvent(string)                            {}
func (NopSink) RecordSend(string, bool, time.Duration)        {}
func (NopSink) RecordPosition(int64, float64, float64, time.Time) {}

// MultiSink fans measurements out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) RecordMutation(entity, op string, err error) {
	for _, s := range m.sinks {
		s.RecordMutation(entity, op, err)
	}
}

func (m *MultiSink) RecordEvent(name string) {
	for _, s := range m.sinks {
		s.RecordEvent(name)
	}
}

func (m *MultiSink) RecordSend(event string, ok bool, latency time.Duration) {
	for _, s := range m.sinks {
		s.RecordSend(event, ok, latency)
	}
}

func (m *MultiSink) RecordPosition(vehicleID int64, lat, lon float64, ts time.Time) {
	for _, s := range m.sinks {
		s.RecordPosition(vehicleID, lat, lon, ts)
	}
}
