package accelmux

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/vibration.report/internal/units"
)

const (
	LineKindSample  = "sample"
	LineKindStatus  = "status"
	LineKindUnknown = "unknown"
)

// ClassifyLine inspects a line from the device and returns a simple kind
// token. Sample lines are bare "x,y,z" float triples; status lines are JSON
// objects emitted in response to query commands.
func ClassifyLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		return LineKindStatus
	}
	if strings.Count(trimmed, ",") == 2 {
		return LineKindSample
	}
	return LineKindUnknown
}

// ParseSampleLine parses an "x,y,z" sample line into per-axis g values.
func ParseSampleLine(line string) (units.Triple, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return units.Triple{}, fmt.Errorf("sample line has %d fields, expected 3", len(fields))
	}

	var values [3]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return units.Triple{}, fmt.Errorf("failed to parse %s value %q: %w", units.Axis(i), field, err)
		}
		values[i] = v
	}

	return units.Triple{X: values[0], Y: values[1], Z: values[2]}, nil
}
