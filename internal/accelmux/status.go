package accelmux

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DeviceState accumulates the latest status values received from the device.
// Query commands like "?" make the device print a JSON object; the monitor
// loop feeds those lines here so the API layer can report them.
type DeviceState struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewDeviceState() *DeviceState {
	return &DeviceState{values: make(map[string]any)}
}

// Update merges a JSON status payload into the current state.
func (d *DeviceState) Update(payload string) error {
	var statusValues map[string]any

	if err := json.Unmarshal([]byte(payload), &statusValues); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %v", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range statusValues {
		d.values[k] = v
	}
	return nil
}

// Snapshot returns a copy of the current state values.
func (d *DeviceState) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}
