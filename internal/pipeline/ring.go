// Package pipeline moves accelerometer samples from the ingest boundary
// through per-second FFT frames to windowed spectrum summaries.
//
// The stages are a single-producer single-consumer ring of sample slots
// (Ring), a poll-driven consumer (Runner) that turns ready slots into
// amplitude spectra, and an Aggregator that folds spectra into windowed
// summaries and hands them to an Emitter.
package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/vibration.report/internal/units"
)

// DefaultDepth is the number of slots a Ring holds unless configured
// otherwise. At one slot per second this buffers 100 seconds of samples.
const DefaultDepth = 100

// Slot is one second of samples for all three axes. The producer fills it,
// marks it ready, and moves on; the consumer processes it and clears the
// flag. A slot that is still ready when the producer wraps back onto it gets
// overwritten in place.
type Slot struct {
	index   int
	samples [units.NumAxes][]float64
	ready   atomic.Bool
}

// Index returns the slot's position in the ring.
func (s *Slot) Index() int { return s.index }

// Samples returns the slot's sample frame for one axis. The returned slice
// is owned by the ring and is only stable while the slot is ready.
func (s *Slot) Samples(a units.Axis) []float64 { return s.samples[a] }

// RingConfig configures a Ring.
type RingConfig struct {
	// Rate is samples per second per axis, which is also the frame length
	// of every slot.
	Rate int

	// Depth is the number of slots. Zero means DefaultDepth.
	Depth int

	// Lag is the consumer's scan offset from the producer's head slot.
	// Zero means Depth/10 (at least 1). Scanning from head+Lag keeps the
	// consumer away from the slot being filled.
	Lag int
}

// Ring is a fixed-size ring of sample slots shared by one producer and one
// consumer goroutine. All slot memory is allocated up front; steady-state
// operation performs no allocation.
type Ring struct {
	rate  int
	depth int
	lag   int
	slots []*Slot

	// head is the index of the slot the producer is currently filling.
	head atomic.Int64

	// offsets tracks the producer's write position per axis within the
	// head slot. Producer-owned; never touched by the consumer.
	offsets [units.NumAxes]int

	produced atomic.Uint64
	drained  atomic.Uint64
	overruns atomic.Uint64
}

// NewRing creates a Ring with all slots allocated.
func NewRing(cfg RingConfig) (*Ring, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("pipeline: sample rate must be positive, got %d", cfg.Rate)
	}
	if cfg.Depth == 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.Depth <= 1 {
		return nil, fmt.Errorf("pipeline: ring depth must be at least 2, got %d", cfg.Depth)
	}
	if cfg.Lag == 0 {
		cfg.Lag = cfg.Depth / 10
		if cfg.Lag < 1 {
			cfg.Lag = 1
		}
	}
	if cfg.Lag < 0 || cfg.Lag >= cfg.Depth {
		return nil, fmt.Errorf("pipeline: lag %d out of range for depth %d", cfg.Lag, cfg.Depth)
	}

	r := &Ring{
		rate:  cfg.Rate,
		depth: cfg.Depth,
		lag:   cfg.Lag,
		slots: make([]*Slot, cfg.Depth),
	}
	for i := range r.slots {
		s := &Slot{index: i}
		for a := range s.samples {
			s.samples[a] = make([]float64, cfg.Rate)
		}
		r.slots[i] = s
	}
	return r, nil
}

// Rate returns samples per second per axis.
func (r *Ring) Rate() int { return r.rate }

// Depth returns the number of slots.
func (r *Ring) Depth() int { return r.depth }

// Lag returns the consumer scan offset.
func (r *Ring) Lag() int { return r.lag }

// Append writes one sample for one axis into the head slot. Producer only.
func (r *Ring) Append(a units.Axis, v float64) error {
	if a < 0 || int(a) >= units.NumAxes {
		return fmt.Errorf("pipeline: invalid axis %d", a)
	}
	if r.offsets[a] >= r.rate {
		return fmt.Errorf("pipeline: slot %d full on axis %s, advance before appending", r.head.Load(), a)
	}
	r.slots[r.head.Load()].samples[a][r.offsets[a]] = v
	r.offsets[a]++
	return nil
}

// Advance marks the head slot ready for the consumer and moves the producer
// to the next slot. It reports whether the next slot is still waiting to be
// consumed, which means the consumer is not keeping up and the slot's
// previous frame will be overwritten. Producer only.
func (r *Ring) Advance() (overrun bool) {
	head := r.head.Load()
	r.slots[head].ready.Store(true)
	r.produced.Add(1)

	next := (head + 1) % int64(r.depth)
	r.head.Store(next)
	for a := range r.offsets {
		r.offsets[a] = 0
	}

	if r.slots[next].ready.Load() {
		r.overruns.Add(1)
		return true
	}
	return false
}

// DrainReady visits every ready slot once, scanning from head+lag so the
// oldest pending slots are reached before recently filled ones. Each visited
// slot's ready flag is cleared even when visit returns an error; the first
// error is returned after the scan completes. Consumer only.
func (r *Ring) DrainReady(visit func(*Slot) error) (int, error) {
	head := r.head.Load()
	var firstErr error
	n := 0
	for k := 0; k < r.depth; k++ {
		ptr := (head + int64(k) + int64(r.lag)) % int64(r.depth)
		s := r.slots[ptr]
		if !s.ready.Load() {
			continue
		}
		if err := visit(s); err != nil && firstErr == nil {
			firstErr = err
		}
		s.ready.Store(false)
		r.drained.Add(1)
		n++
	}
	return n, firstErr
}

// RingStats is a point-in-time snapshot of ring counters. Ready is
// approximate while the producer and consumer are running.
type RingStats struct {
	Rate     int    `json:"rate"`
	Depth    int    `json:"depth"`
	Lag      int    `json:"lag"`
	Ready    int    `json:"ready"`
	Produced uint64 `json:"produced"`
	Drained  uint64 `json:"drained"`
	Overruns uint64 `json:"overruns"`
}

// Stats returns a snapshot of the ring's counters.
func (r *Ring) Stats() RingStats {
	ready := 0
	for _, s := range r.slots {
		if s.ready.Load() {
			ready++
		}
	}
	return RingStats{
		Rate:     r.rate,
		Depth:    r.depth,
		Lag:      r.lag,
		Ready:    ready,
		Produced: r.produced.Load(),
		Drained:  r.drained.Load(),
		Overruns: r.overruns.Load(),
	}
}
