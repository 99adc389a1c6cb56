// Package api serves the JSON status and summary endpoints plus the
// spectrum chart for a running capture.
package api

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/vibration.report/internal/accelmux"
	"github.com/banshee-data/vibration.report/internal/config"
	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/httputil"
	"github.com/banshee-data/vibration.report/internal/pipeline"
	"github.com/banshee-data/vibration.report/internal/units"
	"github.com/banshee-data/vibration.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ServerConfig collects the collaborators the HTTP API reads from. Tuning
// defaults to an empty config; the other fields may be nil and the handlers
// answer with what is available.
type ServerConfig struct {
	Mux     accelmux.AccelMuxInterface
	DB      *db.DB
	Tuning  *config.TuningConfig
	Ring    *pipeline.Ring
	Agg     *pipeline.Aggregator
	Session db.Session
	Latest  *LatestCache
	State   *accelmux.DeviceState
}

type Server struct {
	mux     accelmux.AccelMuxInterface
	db      *db.DB
	tuning  *config.TuningConfig
	ring    *pipeline.Ring
	agg     *pipeline.Aggregator
	session db.Session
	latest  *LatestCache
	state   *accelmux.DeviceState
	started time.Time
}

func NewServer(cfg ServerConfig) *Server {
	tuning := cfg.Tuning
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{
		mux:     cfg.Mux,
		db:      cfg.DB,
		tuning:  tuning,
		ring:    cfg.Ring,
		agg:     cfg.Agg,
		session: cfg.Session,
		latest:  cfg.Latest,
		state:   cfg.State,
		started: time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/summaries", s.listSummaries)
	mux.HandleFunc("/api/spectra/latest", s.listLatestSpectra)
	mux.HandleFunc("/api/command", s.sendCommandHandler)
	mux.HandleFunc("/chart", s.spectrumChartHandler)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if s.mux == nil {
		http.Error(w, "No device attached", http.StatusServiceUnavailable)
		return
	}

	if err := s.mux.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

type statusResponse struct {
	Version       string              `json:"version"`
	UptimeSeconds float64             `json:"uptime_seconds"`
	Session       db.Session          `json:"session"`
	Ring          *pipeline.RingStats `json:"ring,omitempty"`
	Emissions     uint64              `json:"emissions"`
	Device        map[string]any      `json:"device,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statusResponse{
		Version:       version.String(),
		UptimeSeconds: time.Since(s.started).Seconds(),
		Session:       s.session,
	}
	if s.ring != nil {
		stats := s.ring.Stats()
		resp.Ring = &stats
	}
	if s.agg != nil {
		resp.Emissions = s.agg.Emissions()
	}
	if s.state != nil {
		resp.Device = s.state.Snapshot()
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	config := map[string]interface{}{
		"sample_rate_hz":           s.tuning.GetSampleRateHz(),
		"average_interval_seconds": s.tuning.GetAverageIntervalSeconds(),
		"max_frequency_hz":         s.tuning.GetMaxFrequencyHz(),
		"aggregation_policy":       s.tuning.GetAggregationPolicy(),
		"pipeline_depth":           s.tuning.GetPipelineDepth(),
		"consumer_lag_slots":       s.tuning.GetConsumerLagSlots(),
		"poll_interval_ms":         int(s.tuning.GetPollInterval() / time.Millisecond),
		"wav_enabled":              s.tuning.GetWavEnabled(),
		"wav_tau_seconds":          s.tuning.GetWavTauSeconds(),
		"output_dir":               s.tuning.GetOutputDir(),
		"device_label":             s.tuning.GetDeviceLabel(),
	}

	httputil.WriteJSONOK(w, config)
}

func (s *Server) listSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.InternalServerError(w, "No database attached")
		return
	}

	axis := r.URL.Query().Get("axis")
	if axis != "" {
		if _, err := units.ParseAxis(axis); err != nil {
			httputil.BadRequest(w, "Invalid 'axis' parameter")
			return
		}
	}

	limit := 0 // 0 lets the store apply its default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	rows, err := s.db.Summaries(axis, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve summaries: %v", err))
		return
	}
	if rows == nil {
		rows = []db.SummaryRow{}
	}

	httputil.WriteJSONOK(w, rows)
}

func (s *Server) listLatestSpectra(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.latest == nil {
		httputil.WriteJSONOK(w, []LatestRow{})
		return
	}

	httputil.WriteJSONOK(w, s.latest.Snapshot())
}
