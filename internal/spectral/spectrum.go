// Package spectral computes amplitude spectra from fixed-length frames of
// accelerometer samples.
//
// Amplitudes are unnormalized magnitudes of the real-input FFT half-spectrum,
// from the DC bin through the Nyquist bin. With one-second frames (frame
// length equal to the sample rate), bin k corresponds to k Hz.
package spectral

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Engine turns sample frames into amplitude spectra. The FFT plan and
// coefficient scratch are allocated once and reused across frames, so an
// Engine is not safe for concurrent use.
type Engine struct {
	n     int
	fft   *fourier.FFT
	coeff []complex128
}

// NewEngine creates an Engine for frames of frameLen samples.
func NewEngine(frameLen int) (*Engine, error) {
	if frameLen <= 0 {
		return nil, fmt.Errorf("spectral: frame length must be positive, got %d", frameLen)
	}
	return &Engine{
		n:     frameLen,
		fft:   fourier.NewFFT(frameLen),
		coeff: make([]complex128, frameLen/2+1),
	}, nil
}

// FrameLen returns the expected input frame length.
func (e *Engine) FrameLen() int { return e.n }

// BinCount returns the number of spectrum bins produced per frame,
// frameLen/2 + 1.
func (e *Engine) BinCount() int { return e.n/2 + 1 }

// AmplitudeSpectrum computes the amplitude spectrum of one frame. The frame
// must hold exactly FrameLen samples. If dst is nil a new slice is allocated;
// otherwise it must hold exactly BinCount elements. The filled slice is
// returned.
func (e *Engine) AmplitudeSpectrum(frame []float64, dst []float64) ([]float64, error) {
	if len(frame) != e.n {
		return nil, fmt.Errorf("spectral: frame length %d, want %d", len(frame), e.n)
	}
	if dst == nil {
		dst = make([]float64, e.BinCount())
	} else if len(dst) != e.BinCount() {
		return nil, fmt.Errorf("spectral: dst length %d, want %d", len(dst), e.BinCount())
	}

	e.fft.Coefficients(e.coeff, frame)
	for k, c := range e.coeff {
		dst[k] = cmplx.Abs(c)
	}
	return dst, nil
}
