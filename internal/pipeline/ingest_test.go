package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/banshee-data/vibration.report/internal/units"
)

func TestIngestAdvancesAtRate(t *testing.T) {
	r, err := NewRing(RingConfig{Rate: 4, Depth: 8, Lag: 1})
	if err != nil {
		t.Fatal(err)
	}
	in := NewIngest(r)

	// Ten rows with a rate of 4 crosses two slot boundaries.
	batch := make([]units.Triple, 10)
	for i := range batch {
		batch[i] = units.Triple{X: 1, Y: 2, Z: 3}
	}
	in.OnSampleBatch(batch)

	if got := r.Stats().Produced; got != 2 {
		t.Errorf("Produced = %d, want 2", got)
	}

	// Two leftover rows join the next batch; two more rows complete the
	// third slot.
	in.OnSampleBatch(batch[:2])
	if got := r.Stats().Produced; got != 3 {
		t.Errorf("Produced = %d, want 3", got)
	}
}

func TestIngestSampleValuesLandPerAxis(t *testing.T) {
	r, err := NewRing(RingConfig{Rate: 3, Depth: 4, Lag: 1})
	if err != nil {
		t.Fatal(err)
	}
	in := NewIngest(r)

	in.OnSampleBatch([]units.Triple{
		{X: 0.1, Y: 1.1, Z: 2.1},
		{X: 0.2, Y: 1.2, Z: 2.2},
		{X: 0.3, Y: 1.3, Z: 2.3},
	})

	var slot *Slot
	n, err := r.DrainReady(func(s *Slot) error {
		slot = s
		return nil
	})
	if err != nil || n != 1 {
		t.Fatalf("drain = (%d, %v), want one slot", n, err)
	}

	wants := map[units.Axis][]float64{
		units.AxisX: {0.1, 0.2, 0.3},
		units.AxisY: {1.1, 1.2, 1.3},
		units.AxisZ: {2.1, 2.2, 2.3},
	}
	for a, want := range wants {
		got := slot.Samples(a)
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("axis %s sample %d = %g, want %g", a, i, got[i], want[i])
			}
		}
	}
}

func TestIngestLogsOverrun(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})
	defer SetLogWriters(LogWriters{})

	r, err := NewRing(RingConfig{Rate: 1, Depth: 2, Lag: 1})
	if err != nil {
		t.Fatal(err)
	}
	in := NewIngest(r)

	// Two seconds with no consumer wraps the two-slot ring onto the
	// unconsumed first slot.
	in.OnSampleBatch([]units.Triple{{X: 1}, {X: 2}})

	if !strings.Contains(ops.String(), "realtime error") {
		t.Errorf("ops log = %q, want a realtime error entry", ops.String())
	}
	if got := r.Stats().Overruns; got != 1 {
		t.Errorf("Overruns = %d, want 1", got)
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	r, err := NewRing(RingConfig{Rate: 4, Depth: 4, Lag: 1})
	if err != nil {
		t.Fatal(err)
	}
	in := NewIngest(r)

	in.OnSampleBatch(nil)
	in.OnSampleBatch([]units.Triple{})

	if got := r.Stats().Produced; got != 0 {
		t.Errorf("Produced = %d, want 0", got)
	}
}
