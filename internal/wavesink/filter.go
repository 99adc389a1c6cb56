// Package wavesink streams gravity-filtered raw samples to daily WAV files
// alongside the spectrum pipeline.
package wavesink

import (
	"fmt"
	"math"

	"github.com/banshee-data/vibration.report/internal/units"
)

// GravityFilter removes the slow-moving gravity component from each axis
// with an exponential moving average whose half-life is tau seconds.
type GravityFilter struct {
	avgconst float64
	avg      [units.NumAxes]float64
}

// NewGravityFilter creates a filter for the given half-life and sample rate.
func NewGravityFilter(tau float64, rate int) (*GravityFilter, error) {
	if tau <= 0 {
		return nil, fmt.Errorf("wavesink: tau must be positive, got %g", tau)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("wavesink: sample rate must be positive, got %d", rate)
	}
	return &GravityFilter{
		avgconst: math.Pow(2, -1.0/(tau*float64(rate))),
	}, nil
}

// Seed sets the moving averages to t, so the next Apply of the same value
// returns zero. Called whenever a new output file starts.
func (f *GravityFilter) Seed(t units.Triple) {
	f.avg[units.AxisX] = t.X
	f.avg[units.AxisY] = t.Y
	f.avg[units.AxisZ] = t.Z
}

// Apply advances the moving averages by one sample and returns t with the
// averages subtracted.
func (f *GravityFilter) Apply(t units.Triple) units.Triple {
	c := f.avgconst
	f.avg[units.AxisX] = c*f.avg[units.AxisX] + (1-c)*t.X
	f.avg[units.AxisY] = c*f.avg[units.AxisY] + (1-c)*t.Y
	f.avg[units.AxisZ] = c*f.avg[units.AxisZ] + (1-c)*t.Z
	return units.Triple{
		X: t.X - f.avg[units.AxisX],
		Y: t.Y - f.avg[units.AxisY],
		Z: t.Z - f.avg[units.AxisZ],
	}
}
