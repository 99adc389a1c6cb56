package api

import (
	"sync"
	"time"

	"github.com/banshee-data/vibration.report/internal/units"
)

// LatestRow is the most recent windowed spectrum emitted for one axis.
type LatestRow struct {
	Axis      string    `json:"axis"`
	Timestamp time.Time `json:"timestamp"`
	Bins      []float64 `json:"bins"`
}

// LatestCache keeps the newest emitted spectrum per axis for the status
// and chart endpoints. It satisfies the pipeline's emitter contract.
type LatestCache struct {
	mu   sync.RWMutex
	rows map[units.Axis]LatestRow
}

func NewLatestCache() *LatestCache {
	return &LatestCache{rows: make(map[units.Axis]LatestRow)}
}

// Emit stores the row for the axis. The bins slice is copied because the
// caller reuses it between emissions.
func (c *LatestCache) Emit(axis units.Axis, ts time.Time, bins []float64) error {
	row := LatestRow{
		Axis:      axis.String(),
		Timestamp: ts,
		Bins:      append([]float64(nil), bins...),
	}

	c.mu.Lock()
	c.rows[axis] = row
	c.mu.Unlock()
	return nil
}

// Snapshot returns the cached rows in axis order. Axes that have not
// emitted yet are omitted.
func (c *LatestCache) Snapshot() []LatestRow {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := make([]LatestRow, 0, len(c.rows))
	for _, axis := range units.Axes() {
		if row, ok := c.rows[axis]; ok {
			rows = append(rows, row)
		}
	}
	return rows
}
