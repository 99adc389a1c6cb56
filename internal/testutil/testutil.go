// Package testutil provides shared fixtures for exercising the capture
// pipeline: canned sample batches, synthetic waveforms, and small HTTP
// assertion helpers for the API tests.
package testutil

import (
	"encoding/json"
	"math"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/vibration.report/internal/units"
)

// ConstantTriples returns n sample rows all carrying the same per-axis
// values, the shape a steady accelerometer produces.
func ConstantTriples(n int, x, y, z float64) []units.Triple {
	batch := make([]units.Triple, n)
	for i := range batch {
		batch[i] = units.Triple{X: x, Y: y, Z: z}
	}
	return batch
}

// SineFrame returns one second of a pure sinusoid at freqHz for the given
// sample rate. With frame length equal to the rate the tone lands exactly on
// bin freqHz of the amplitude spectrum.
func SineFrame(rate, freqHz int, amp float64) []float64 {
	frame := make([]float64, rate)
	for i := range frame {
		frame[i] = amp * math.Sin(2*math.Pi*float64(freqHz)*float64(i)/float64(rate))
	}
	return frame
}

// SineTriples returns n sample rows whose three axes carry sinusoids at
// distinct frequencies, so each axis's spectrum peaks at a different bin.
func SineTriples(n, rate int, xHz, yHz, zHz int, amp float64) []units.Triple {
	batch := make([]units.Triple, n)
	for i := range batch {
		arg := 2 * math.Pi * float64(i) / float64(rate)
		batch[i] = units.Triple{
			X: amp * math.Sin(arg*float64(xHz)),
			Y: amp * math.Sin(arg*float64(yHz)),
			Z: amp * math.Sin(arg*float64(zHz)),
		}
	}
	return batch
}

// AssertStatusCode checks a recorded HTTP status.
func AssertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("status code = %d, want %d", rec.Code, want)
	}
}

// DecodeJSON decodes a recorded JSON response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}
