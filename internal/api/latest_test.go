package api

import (
	"testing"
	"time"

	"github.com/banshee-data/vibration.report/internal/units"
)

func TestLatestCacheSnapshotOrder(t *testing.T) {
	cache := NewLatestCache()
	ts := time.Date(2026, 3, 1, 10, 0, 10, 0, time.UTC)

	if err := cache.Emit(units.AxisZ, ts, []float64{3}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if err := cache.Emit(units.AxisX, ts, []float64{1}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	rows := cache.Snapshot()
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Axis != "x" || rows[1].Axis != "z" {
		t.Errorf("Expected axis order x,z, got %s,%s", rows[0].Axis, rows[1].Axis)
	}
}

func TestLatestCacheEmptySnapshot(t *testing.T) {
	cache := NewLatestCache()

	rows := cache.Snapshot()
	if len(rows) != 0 {
		t.Errorf("Expected empty snapshot, got %d rows", len(rows))
	}
}

func TestLatestCacheCopiesBins(t *testing.T) {
	cache := NewLatestCache()
	ts := time.Date(2026, 3, 1, 10, 0, 10, 0, time.UTC)

	bins := []float64{0.5, 1.5}
	if err := cache.Emit(units.AxisX, ts, bins); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	// the aggregator reuses its output buffer between emissions
	bins[0] = 99

	rows := cache.Snapshot()
	if rows[0].Bins[0] != 0.5 {
		t.Errorf("Expected cached bins unaffected by caller mutation, got %v", rows[0].Bins[0])
	}
}

func TestLatestCacheOverwritesAxis(t *testing.T) {
	cache := NewLatestCache()
	ts := time.Date(2026, 3, 1, 10, 0, 10, 0, time.UTC)

	if err := cache.Emit(units.AxisY, ts, []float64{1}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	later := ts.Add(10 * time.Second)
	if err := cache.Emit(units.AxisY, later, []float64{2}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	rows := cache.Snapshot()
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].Bins[0] != 2 {
		t.Errorf("Expected latest emission to win, got bins[0]=%v", rows[0].Bins[0])
	}
	if !rows[0].Timestamp.Equal(later) {
		t.Errorf("Expected timestamp %v, got %v", later, rows[0].Timestamp)
	}
}
