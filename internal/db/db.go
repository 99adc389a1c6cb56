// Package db persists capture sessions and windowed spectrum summaries to
// SQLite, and exposes the database on the admin surface for live inspection
// and backup.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/vibration.report/internal/units"
)

type DB struct {
	*sql.DB
	path string
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS capture_sessions (
			session_id        TEXT PRIMARY KEY,
			started_at        TIMESTAMP,
			device            TEXT,
			sample_rate       BIGINT,
			window_seconds    BIGINT,
			max_freq_hz       BIGINT,
			policy            TEXT
		);
		CREATE TABLE IF NOT EXISTS spectrum_summaries (
			session_id        TEXT,
			axis              TEXT,
			policy            TEXT,
			window_seconds    BIGINT,
			bins              TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES capture_sessions(session_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db, path}, nil
}

// Session describes one run of the capture pipeline. Every summary row
// written during the run carries its ID.
type Session struct {
	ID            string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	Device        string    `json:"device"`
	SampleRate    int       `json:"sample_rate"`
	WindowSeconds int       `json:"window_seconds"`
	MaxFreqHz     int       `json:"max_freq_hz"`
	Policy        string    `json:"policy"`
}

func NewSession(device string, sampleRate, windowSeconds, maxFreqHz int, policy string) Session {
	return Session{
		ID:            uuid.New().String(),
		StartedAt:     time.Now().UTC(),
		Device:        device,
		SampleRate:    sampleRate,
		WindowSeconds: windowSeconds,
		MaxFreqHz:     maxFreqHz,
		Policy:        policy,
	}
}

func (db *DB) RecordSession(s Session) error {
	_, err := db.Exec(
		`INSERT INTO capture_sessions (
			session_id, started_at, device, sample_rate, window_seconds, max_freq_hz, policy
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StartedAt.UTC().Format(time.RFC3339), s.Device,
		s.SampleRate, s.WindowSeconds, s.MaxFreqHz, s.Policy,
	)
	if err != nil {
		return fmt.Errorf("failed to record capture session: %w", err)
	}
	return nil
}

func (db *DB) SessionCount() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM capture_sessions").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// RecordSummary stores one finished window row. Bins are stored as a JSON
// array so the schema does not depend on the configured frequency ceiling.
func (db *DB) RecordSummary(sessionID string, axis units.Axis, policy string, windowSeconds int, ts time.Time, bins []float64) error {
	encoded, err := json.Marshal(bins)
	if err != nil {
		return fmt.Errorf("failed to encode bins: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO spectrum_summaries (
			session_id, axis, policy, window_seconds, bins, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, axis.String(), policy, windowSeconds,
		string(encoded), ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record summary: %w", err)
	}
	return nil
}

// SummaryRow is one stored window summary with its bins decoded.
type SummaryRow struct {
	SessionID     string    `json:"session_id"`
	Axis          string    `json:"axis"`
	Policy        string    `json:"policy"`
	WindowSeconds int       `json:"window_seconds"`
	Timestamp     time.Time `json:"timestamp"`
	Bins          []float64 `json:"bins"`
}

// Summaries returns stored rows newest first, optionally filtered to one
// axis. A non-positive limit defaults to 100.
func (db *DB) Summaries(axis string, limit int) ([]SummaryRow, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if axis == "" {
		rows, err = db.Query(
			`SELECT session_id, axis, policy, window_seconds, bins, timestamp
			 FROM spectrum_summaries ORDER BY timestamp DESC LIMIT ?`, limit)
	} else {
		rows, err = db.Query(
			`SELECT session_id, axis, policy, window_seconds, bins, timestamp
			 FROM spectrum_summaries WHERE axis = ? ORDER BY timestamp DESC LIMIT ?`, axis, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

// LatestSummaries returns the most recent row for each axis. SQLite resolves
// the bare columns from the row that supplies MAX(timestamp).
func (db *DB) LatestSummaries() ([]SummaryRow, error) {
	rows, err := db.Query(
		`SELECT session_id, axis, policy, window_seconds, bins, MAX(timestamp) AS timestamp
		 FROM spectrum_summaries GROUP BY axis ORDER BY axis`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]SummaryRow, error) {
	var summaries []SummaryRow
	for rows.Next() {
		var (
			row       SummaryRow
			bins      string
			timestamp string
		)
		if err := rows.Scan(&row.SessionID, &row.Axis, &row.Policy, &row.WindowSeconds, &bins, &timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(bins), &row.Bins); err != nil {
			return nil, fmt.Errorf("failed to decode bins: %w", err)
		}
		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to parse timestamp %q: %w", timestamp, err)
		}
		row.Timestamp = ts
		summaries = append(summaries, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Vibration DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
