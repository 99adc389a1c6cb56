package db

import (
	"time"

	"github.com/banshee-data/vibration.report/internal/units"
)

// SummaryRecorder persists finished window rows under a capture session. It
// satisfies the pipeline's emitter contract; bins are encoded before the
// call returns, so the caller may reuse the slice.
type SummaryRecorder struct {
	db            *DB
	sessionID     string
	policy        string
	windowSeconds int
}

func NewSummaryRecorder(db *DB, session Session) *SummaryRecorder {
	return &SummaryRecorder{
		db:            db,
		sessionID:     session.ID,
		policy:        session.Policy,
		windowSeconds: session.WindowSeconds,
	}
}

func (r *SummaryRecorder) Emit(axis units.Axis, ts time.Time, bins []float64) error {
	return r.db.RecordSummary(r.sessionID, axis, r.policy, r.windowSeconds, ts, bins)
}
