package accelmux

import (
	"testing"
)

func TestDeviceState_Update(t *testing.T) {
	state := NewDeviceState()

	if err := state.Update(`{"rate":1000,"units":"g"}`); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap := state.Snapshot()
	if snap["rate"] != float64(1000) {
		t.Errorf("rate = %v, want 1000", snap["rate"])
	}
	if snap["units"] != "g" {
		t.Errorf("units = %v, want g", snap["units"])
	}
}

func TestDeviceState_UpdateMerges(t *testing.T) {
	state := NewDeviceState()

	if err := state.Update(`{"rate":1000,"units":"g"}`); err != nil {
		t.Fatalf("first Update failed: %v", err)
	}
	if err := state.Update(`{"rate":500,"streaming":true}`); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}

	snap := state.Snapshot()
	if snap["rate"] != float64(500) {
		t.Errorf("rate = %v, want 500 after merge", snap["rate"])
	}
	if snap["units"] != "g" {
		t.Errorf("units = %v, earlier keys should survive a merge", snap["units"])
	}
	if snap["streaming"] != true {
		t.Errorf("streaming = %v, want true", snap["streaming"])
	}
}

func TestDeviceState_UpdateInvalidJSON(t *testing.T) {
	state := NewDeviceState()

	if err := state.Update("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if len(state.Snapshot()) != 0 {
		t.Error("failed update should not modify state")
	}
}

func TestDeviceState_SnapshotIsCopy(t *testing.T) {
	state := NewDeviceState()
	if err := state.Update(`{"rate":1000}`); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	snap := state.Snapshot()
	snap["rate"] = float64(9999)

	if state.Snapshot()["rate"] != float64(1000) {
		t.Error("mutating a snapshot should not affect the state")
	}
}
