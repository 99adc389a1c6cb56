package pipeline

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/vibration.report/internal/timeutil"
	"github.com/banshee-data/vibration.report/internal/units"
)

// Policy selects how per-second spectra fold into a windowed summary.
type Policy string

const (
	// PolicyMean averages each bin over the window. Emitted values are in
	// mg when the input samples are in g.
	PolicyMean Policy = "mean"

	// PolicyMax tracks the per-bin peak over the window, reproducing the
	// historical fold where the rate scale divides the accumulator on
	// every second rather than once at emission.
	PolicyMax Policy = "max"
)

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyMean:
		return PolicyMean, nil
	case PolicyMax:
		return PolicyMax, nil
	}
	return "", fmt.Errorf("pipeline: unknown aggregation policy %q", s)
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Rate is samples per second per axis, used to scale emitted values.
	Rate int

	// Window is the number of per-second spectra folded into one summary.
	Window int

	// MaxFreq is the highest frequency bin emitted; rows carry bins
	// 0..MaxFreq inclusive. Must not exceed the Nyquist bin Rate/2.
	MaxFreq int

	// Policy selects the fold. Empty means PolicyMean.
	Policy Policy

	// Emitter receives finished summary rows.
	Emitter Emitter

	// Clock stamps emissions. Nil means timeutil.RealClock.
	Clock timeutil.Clock
}

// Aggregator folds per-second amplitude spectra into per-axis windowed
// summaries. Not safe for concurrent use; the Runner calls it from a single
// goroutine.
type Aggregator struct {
	rate    int
	window  int
	maxFreq int
	policy  Policy
	emitter Emitter
	clock   timeutil.Clock

	acc  [units.NumAxes][]float64
	fill [units.NumAxes]int
	out  []float64

	emissions atomic.Uint64
}

// NewAggregator validates the config and allocates the per-axis accumulators.
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("pipeline: sample rate must be positive, got %d", cfg.Rate)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("pipeline: window must be positive, got %d", cfg.Window)
	}
	if cfg.MaxFreq < 0 || cfg.MaxFreq > cfg.Rate/2 {
		return nil, fmt.Errorf("pipeline: max frequency %d out of range 0..%d", cfg.MaxFreq, cfg.Rate/2)
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyMean
	}
	if _, err := ParsePolicy(string(cfg.Policy)); err != nil {
		return nil, err
	}
	if cfg.Emitter == nil {
		return nil, fmt.Errorf("pipeline: aggregator requires an emitter")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	g := &Aggregator{
		rate:    cfg.Rate,
		window:  cfg.Window,
		maxFreq: cfg.MaxFreq,
		policy:  cfg.Policy,
		emitter: cfg.Emitter,
		clock:   cfg.Clock,
		out:     make([]float64, cfg.MaxFreq+1),
	}
	for a := range g.acc {
		g.acc[a] = make([]float64, cfg.MaxFreq+1)
	}
	return g, nil
}

// Rate returns samples per second per axis.
func (g *Aggregator) Rate() int { return g.rate }

// Window returns seconds per emitted summary.
func (g *Aggregator) Window() int { return g.window }

// MaxFreq returns the highest emitted frequency bin.
func (g *Aggregator) MaxFreq() int { return g.maxFreq }

// Policy returns the configured fold policy.
func (g *Aggregator) Policy() Policy { return g.policy }

// Emissions returns the number of summary rows handed to the emitter.
func (g *Aggregator) Emissions() uint64 { return g.emissions.Load() }

// Ingest folds one second's spectrum for one axis into the window
// accumulator, emitting a summary row when the axis completes its window.
// The spectrum must carry at least MaxFreq+1 bins; bins above MaxFreq are
// ignored.
func (g *Aggregator) Ingest(axis units.Axis, spectrum []float64) error {
	if axis < 0 || int(axis) >= units.NumAxes {
		return fmt.Errorf("pipeline: invalid axis %d", axis)
	}
	if len(spectrum) < g.maxFreq+1 {
		return fmt.Errorf("pipeline: spectrum has %d bins, need at least %d", len(spectrum), g.maxFreq+1)
	}

	acc := g.acc[axis]
	switch g.policy {
	case PolicyMax:
		// The accumulator is divided by the rate scale on every second,
		// while each incoming bin competes against the already-scaled
		// value. Historical CSV rows depend on this exact fold.
		scale := units.MilliScale(g.rate)
		first := g.fill[axis] == 0
		for k := 0; k <= g.maxFreq; k++ {
			if v := spectrum[k]; first || v > acc[k] {
				acc[k] = v
			}
			acc[k] /= scale
		}
	default: // PolicyMean
		for k := 0; k <= g.maxFreq; k++ {
			acc[k] += spectrum[k]
		}
	}

	g.fill[axis]++
	if g.fill[axis] < g.window {
		return nil
	}
	return g.emitAxis(axis)
}

// emitAxis finishes the axis's window: scales the accumulator into the
// output row, resets the window state, and hands the row to the emitter.
func (g *Aggregator) emitAxis(axis units.Axis) error {
	acc := g.acc[axis]
	switch g.policy {
	case PolicyMax:
		copy(g.out, acc)
	default: // PolicyMean
		div := float64(g.window*g.rate) / 1000.0
		for k := range g.out {
			g.out[k] = acc[k] / div
		}
	}

	g.fill[axis] = 0
	for k := range acc {
		acc[k] = 0
	}

	ts := g.clock.Now()
	g.emissions.Add(1)
	if err := g.emitter.Emit(axis, ts, g.out); err != nil {
		return fmt.Errorf("pipeline: emit %s summary: %w", axis, err)
	}
	return nil
}
