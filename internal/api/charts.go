package api

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/vibration.report/internal/units"
)

// echartsAssetsPrefix hosts the echarts javascript bundles referenced by
// rendered pages.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// spectrumChartHandler renders the most recent windowed spectrum per axis
// as a line chart, one series per axis.
func (s *Server) spectrumChartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rows []LatestRow
	if s.latest != nil {
		rows = s.latest.Snapshot()
	}
	if len(rows) == 0 {
		http.Error(w, "No spectra captured yet", http.StatusNotFound)
		return
	}

	binCount := 0
	var newest time.Time
	for _, row := range rows {
		if len(row.Bins) > binCount {
			binCount = len(row.Bins)
		}
		if row.Timestamp.After(newest) {
			newest = row.Timestamp
		}
	}
	labels := make([]string, binCount)
	for k := range labels {
		labels[k] = units.BinLabel(k)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Vibration Report",
			Theme:      "dark",
			Width:      "1200px",
			Height:     "600px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Amplitude spectrum by axis",
			Subtitle: fmt.Sprintf("%s over %ds windows, updated %s",
				s.tuning.GetAggregationPolicy(),
				s.tuning.GetAverageIntervalSeconds(),
				newest.UTC().Format(time.RFC3339)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Hz"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "mg"}),
	)

	line.SetXAxis(labels)
	for _, row := range rows {
		data := make([]opts.LineData, len(row.Bins))
		for k, v := range row.Bins {
			data[k] = opts.LineData{Value: v}
		}
		line.AddSeries(row.Axis, data)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("Error writing chart response: %v", err)
	}
}
