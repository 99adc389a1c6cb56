// Package report writes windowed spectrum summaries to per-day, per-axis
// CSV files.
package report

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/vibration.report/internal/fsutil"
	"github.com/banshee-data/vibration.report/internal/security"
	"github.com/banshee-data/vibration.report/internal/units"
)

// OutputMarker tags every file this sink writes.
const OutputMarker = "accel"

// CSVSink appends one row per emitted summary to a file named
// <dir>/<YYYY-MM-DD>_<axis>_accel.csv, creating the file with a header row
// the first time a (date, axis) pair appears. Files are opened and closed
// per row so a crash never strands an open handle, and restarting mid-day
// appends to the existing file.
type CSVSink struct {
	dir     string
	maxFreq int
	fs      fsutil.FileSystem
	record  []string
}

// NewCSVSink creates the output directory if needed and returns the sink.
// A nil fs means the real filesystem.
func NewCSVSink(dir string, maxFreq int, fs fsutil.FileSystem) (*CSVSink, error) {
	if maxFreq < 0 {
		return nil, fmt.Errorf("report: max frequency must not be negative, got %d", maxFreq)
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("report: create output directory %s: %w", dir, err)
	}
	return &CSVSink{
		dir:     dir,
		maxFreq: maxFreq,
		fs:      fs,
		record:  make([]string, maxFreq+2),
	}, nil
}

// Emit appends one summary row. The bins slice must hold exactly maxFreq+1
// values so rows always line up with the header.
func (s *CSVSink) Emit(axis units.Axis, ts time.Time, bins []float64) error {
	if len(bins) != s.maxFreq+1 {
		return fmt.Errorf("report: row has %d bins, want %d", len(bins), s.maxFreq+1)
	}

	name := filepath.Join(s.dir, ts.Format("2006-01-02")+"_"+axis.String()+"_"+OutputMarker+".csv")
	if err := security.ValidatePathWithinDirectory(name, s.dir); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if !s.fs.Exists(name) {
		if err := s.writeHeader(name); err != nil {
			return err
		}
	}

	f, err := s.fs.OpenAppend(name)
	if err != nil {
		return fmt.Errorf("report: open %s: %w", name, err)
	}

	s.record[0] = ts.Format("2006-01-02 15:04:05")
	for k, v := range bins {
		s.record[k+1] = fmt.Sprintf("%.6f", v)
	}

	w := csv.NewWriter(f)
	w.Write(s.record)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("report: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", name, err)
	}
	return nil
}

// writeHeader creates the file with a timestamp column followed by one
// column per frequency bin.
func (s *CSVSink) writeHeader(name string) error {
	f, err := s.fs.Create(name)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", name, err)
	}

	header := make([]string, s.maxFreq+2)
	header[0] = "timestamp"
	for k := 0; k <= s.maxFreq; k++ {
		header[k+1] = units.BinLabel(k)
	}

	w := csv.NewWriter(f)
	w.Write(header)
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("report: write header %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", name, err)
	}
	return nil
}
