package accelmux

import (
	"go.bug.st/serial"
)

// NewRealAccelMux creates an AccelMux instance backed by a real serial port at
// the given path using the provided serial options.
func NewRealAccelMux(path string, opts PortOptions, sampleRate int) (*AccelMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewAccelMux[serial.Port](port, sampleRate), nil
}

// ListPorts returns the serial port paths present on the system, for device
// discovery from the command line.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
