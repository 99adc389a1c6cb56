package accelmux

import (
	"io"
	"time"
)

// SamplePorter defines the minimal interface needed for the accelerometer's
// serial port. This abstraction enables unit testing without real hardware.
type SamplePorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSamplePorter extends SamplePorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSamplePorter interface {
	SamplePorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}
