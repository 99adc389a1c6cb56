package wavesink

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/banshee-data/vibration.report/internal/security"
	"github.com/banshee-data/vibration.report/internal/timeutil"
	"github.com/banshee-data/vibration.report/internal/units"
)

const (
	// FullScaleG maps accelerometer g values to WAV full scale: a sample
	// of FullScaleG g is written as 1.0.
	FullScaleG = 0.005

	// DefaultTau is the gravity filter half-life in seconds.
	DefaultTau = 10.0

	outputMarker = "accel"
)

// SinkConfig configures a Sink.
type SinkConfig struct {
	// Dir is the output directory, shared with the CSV sink.
	Dir string

	// Rate is samples per second per axis.
	Rate int

	// Tau is the gravity filter half-life in seconds. Zero means
	// DefaultTau.
	Tau float64

	// Clock names the output files. Nil means timeutil.RealClock.
	Clock timeutil.Clock
}

// Sink writes gravity-filtered samples as 3-channel 16-bit PCM WAV files,
// one file per day. The WAV header is finalized on Close, so a file that
// already exists for today (from an earlier run) is left alone and a
// timestamped sibling is started instead.
type Sink struct {
	dir    string
	rate   int
	filter *GravityFilter
	clock  timeutil.Clock

	enc  *wav.Encoder
	f    *os.File
	date string
	pcm  []int
}

// NewSink creates the output directory if needed and returns the sink. No
// file is opened until the first batch arrives.
func NewSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Rate <= 0 {
		return nil, fmt.Errorf("wavesink: sample rate must be positive, got %d", cfg.Rate)
	}
	if cfg.Tau == 0 {
		cfg.Tau = DefaultTau
	}
	filter, err := NewGravityFilter(cfg.Tau, cfg.Rate)
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("wavesink: create output directory %s: %w", cfg.Dir, err)
	}
	return &Sink{
		dir:    cfg.Dir,
		rate:   cfg.Rate,
		filter: filter,
		clock:  cfg.Clock,
	}, nil
}

// WriteBatch scales, filters and writes one batch of samples. Day changes
// rotate the output file between batches; the gravity filter re-seeds from
// the first sample of the batch that opens a file, so every file starts
// from a zero deviation.
func (s *Sink) WriteBatch(batch []units.Triple) error {
	if len(batch) == 0 {
		return nil
	}

	now := s.clock.Now()
	opened, err := s.ensureFile(now.Format("2006-01-02"), now.Format("2006-01-02_150405"))
	if err != nil {
		return err
	}

	if cap(s.pcm) < len(batch)*units.NumAxes {
		s.pcm = make([]int, 0, len(batch)*units.NumAxes)
	}
	s.pcm = s.pcm[:0]

	for i, t := range batch {
		scaled := units.Triple{
			X: t.X / FullScaleG,
			Y: t.Y / FullScaleG,
			Z: t.Z / FullScaleG,
		}
		if opened && i == 0 {
			s.filter.Seed(scaled)
		}
		d := s.filter.Apply(scaled)
		s.pcm = append(s.pcm, pcm16(d.X), pcm16(d.Y), pcm16(d.Z))
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: units.NumAxes, SampleRate: s.rate},
		Data:           s.pcm,
		SourceBitDepth: 16,
	}
	if err := s.enc.Write(buf); err != nil {
		return fmt.Errorf("wavesink: write %s: %w", s.f.Name(), err)
	}
	return nil
}

// ensureFile opens the day's output file if it isn't already the current
// one, closing the previous day's file first. It reports whether a new file
// was opened.
func (s *Sink) ensureFile(date, stamp string) (bool, error) {
	if s.enc != nil && s.date == date {
		return false, nil
	}
	if s.enc != nil {
		if err := s.closeFile(); err != nil {
			return false, err
		}
	}

	name := filepath.Join(s.dir, date+"_"+outputMarker+".wav")
	if _, err := os.Stat(name); err == nil {
		// A finalized file from an earlier run. Appending would need the
		// RIFF header rewritten, so start a sibling instead.
		name = filepath.Join(s.dir, stamp+"_"+outputMarker+".wav")
	}
	if err := security.ValidatePathWithinDirectory(name, s.dir); err != nil {
		return false, fmt.Errorf("wavesink: %w", err)
	}

	f, err := os.Create(name)
	if err != nil {
		return false, fmt.Errorf("wavesink: create %s: %w", name, err)
	}
	s.f = f
	s.enc = wav.NewEncoder(f, s.rate, 16, units.NumAxes, 1)
	s.date = date
	return true, nil
}

// closeFile finalizes the WAV header and closes the file.
func (s *Sink) closeFile() error {
	encErr := s.enc.Close()
	fileErr := s.f.Close()
	s.enc = nil
	s.f = nil
	if encErr != nil {
		return fmt.Errorf("wavesink: finalize %s: %w", s.date, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("wavesink: close %s: %w", s.date, fileErr)
	}
	return nil
}

// Close finalizes the current file, if any.
func (s *Sink) Close() error {
	if s.enc == nil {
		return nil
	}
	return s.closeFile()
}

// pcm16 converts a full-scale float sample to a 16-bit PCM value, clipping
// at the rails.
func pcm16(v float64) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(math.Round(v * 32767))
}
