package pipeline

import (
	"time"

	"github.com/banshee-data/vibration.report/internal/units"
)

// Emitter receives one finished summary row per axis per window. The bins
// slice is reused by the caller and is only valid for the duration of the
// call; implementations that retain it must copy.
type Emitter interface {
	Emit(axis units.Axis, ts time.Time, bins []float64) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(axis units.Axis, ts time.Time, bins []float64) error

// Emit calls f.
func (f EmitterFunc) Emit(axis units.Axis, ts time.Time, bins []float64) error {
	return f(axis, ts, bins)
}

// MultiEmitter fans one summary out to several sinks. Every sink is
// attempted; the first error encountered is returned.
type MultiEmitter []Emitter

// Emit delivers the summary to each sink in order.
func (m MultiEmitter) Emit(axis units.Axis, ts time.Time, bins []float64) error {
	var firstErr error
	for _, e := range m {
		if err := e.Emit(axis, ts, bins); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
