package pipeline

import (
	"github.com/banshee-data/vibration.report/internal/units"
)

// Ingest feeds decoded sample batches into a Ring, advancing it every time a
// full second of samples has been written. It runs on the producer goroutine.
type Ingest struct {
	ring *Ring

	// count is rows written into the current slot.
	count int
}

// NewIngest creates an Ingest writing into ring.
func NewIngest(ring *Ring) *Ingest {
	return &Ingest{ring: ring}
}

// OnSampleBatch appends every sample row in the batch. Batches may be any
// size; slot boundaries fall wherever the running row count crosses the
// sample rate. An overrun on advance is logged and swallowed so capture
// keeps running.
func (in *Ingest) OnSampleBatch(batch []units.Triple) {
	for _, t := range batch {
		for _, a := range units.Axes() {
			if err := in.ring.Append(a, t.Component(a)); err != nil {
				Opsf("ingest append: %v", err)
				return
			}
		}
		in.count++
		if in.count < in.ring.Rate() {
			continue
		}
		in.count = 0
		if in.ring.Advance() {
			Opsf("realtime error: consumer lagging, %d overruns total", in.ring.Stats().Overruns)
		}
	}
}
