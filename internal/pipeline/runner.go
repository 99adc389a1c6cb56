package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/vibration.report/internal/spectral"
	"github.com/banshee-data/vibration.report/internal/timeutil"
	"github.com/banshee-data/vibration.report/internal/units"
)

// DefaultPollInterval is how often the Runner sweeps the ring for ready
// slots. Well under a second, so a slot is normally picked up on the first
// poll after it fills.
const DefaultPollInterval = 2 * time.Millisecond

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Ring       *Ring
	Engine     *spectral.Engine
	Aggregator *Aggregator

	// Poll is the sweep interval. Zero means DefaultPollInterval.
	Poll time.Duration

	// Clock drives the poll ticker. Nil means timeutil.RealClock.
	Clock timeutil.Clock
}

// Runner is the consumer side of the pipeline: it drains ready slots from
// the ring, computes each axis's amplitude spectrum, and feeds the
// aggregator. One spectrum buffer is reused for every frame.
type Runner struct {
	ring     *Ring
	engine   *spectral.Engine
	agg      *Aggregator
	poll     time.Duration
	clock    timeutil.Clock
	spectrum []float64
}

// NewRunner validates that the stages agree on frame geometry and returns a
// ready-to-run consumer.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Ring == nil || cfg.Engine == nil || cfg.Aggregator == nil {
		return nil, fmt.Errorf("pipeline: runner requires ring, engine and aggregator")
	}
	if cfg.Engine.FrameLen() != cfg.Ring.Rate() {
		return nil, fmt.Errorf("pipeline: engine frame length %d does not match ring rate %d",
			cfg.Engine.FrameLen(), cfg.Ring.Rate())
	}
	if cfg.Aggregator.MaxFreq()+1 > cfg.Engine.BinCount() {
		return nil, fmt.Errorf("pipeline: aggregator needs %d bins but engine produces %d",
			cfg.Aggregator.MaxFreq()+1, cfg.Engine.BinCount())
	}
	if cfg.Poll == 0 {
		cfg.Poll = DefaultPollInterval
	}
	if cfg.Poll < 0 {
		return nil, fmt.Errorf("pipeline: poll interval must be positive, got %v", cfg.Poll)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	return &Runner{
		ring:     cfg.Ring,
		engine:   cfg.Engine,
		agg:      cfg.Aggregator,
		poll:     cfg.Poll,
		clock:    cfg.Clock,
		spectrum: make([]float64, cfg.Engine.BinCount()),
	}, nil
}

// ProcessOnce drains every slot that is currently ready and returns how many
// were processed. Slot errors are logged, not returned; a failing sink must
// not stop capture.
func (r *Runner) ProcessOnce() int {
	n, err := r.ring.DrainReady(r.processSlot)
	if err != nil {
		Opsf("slot processing: %v", err)
	}
	if n > 0 {
		Tracef("drained %d slots", n)
	}
	return n
}

// processSlot computes and ingests the spectrum for each axis of one slot.
// A spectrum failure aborts the slot since it means the stages disagree on
// frame geometry; an ingest failure is collected but the remaining axes are
// still processed.
func (r *Runner) processSlot(s *Slot) error {
	var firstErr error
	for _, a := range units.Axes() {
		if _, err := r.engine.AmplitudeSpectrum(s.Samples(a), r.spectrum); err != nil {
			return fmt.Errorf("slot %d axis %s: %w", s.Index(), a, err)
		}
		if err := r.agg.Ingest(a, r.spectrum); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run sweeps the ring on the poll interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			r.ProcessOnce()
		}
	}
}
