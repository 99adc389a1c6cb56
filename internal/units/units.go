// Package units provides the measurement primitives shared by the
// acquisition and reporting layers: axis identifiers, raw sample triples,
// and the milli-g scaling applied to emitted spectra.
package units

import "fmt"

// Axis identifies one accelerometer axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// NumAxes is the number of axes every sample carries.
const NumAxes = 3

// Axes lists all axes in ingest order.
func Axes() [NumAxes]Axis {
	return [NumAxes]Axis{AxisX, AxisY, AxisZ}
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// ParseAxis maps an axis name ("x", "y" or "z") to its Axis value.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q (want x, y or z)", s)
}

// Triple is one accelerometer sample: acceleration in g per axis.
type Triple struct {
	X float64
	Y float64
	Z float64
}

// Component returns the triple's value for the given axis.
func (t Triple) Component(a Axis) float64 {
	switch a {
	case AxisX:
		return t.X
	case AxisY:
		return t.Y
	case AxisZ:
		return t.Z
	}
	return 0
}

// MilliScale is the divisor that converts raw spectrum magnitudes into
// milli-g rows for the given sample rate.
func MilliScale(sampleRate int) float64 {
	return float64(sampleRate) / 1000.0
}

// BinLabel formats the column label for frequency bin k. With the frame
// length equal to the sample rate, bin k covers k Hz.
func BinLabel(k int) string {
	return fmt.Sprintf("%d Hz", k)
}
