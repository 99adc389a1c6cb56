// Command spectrogram renders recorded spectrum summaries as per-axis PNG
// charts. It reads rows either from a running capture daemon's HTTP API or
// straight from the SQLite database, so plots can be produced on the capture
// box or from a copied database file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/httputil"
	"github.com/banshee-data/vibration.report/internal/version"
)

var (
	apiBase     = flag.String("api", "", "Base URL of a running capture daemon (e.g. http://localhost:8080)")
	dbFile      = flag.String("db", "", "Path to a SQLite database file (used when -api is empty)")
	axisFilter  = flag.String("axis", "", "Only plot one axis (x, y or z)")
	limit       = flag.Int("limit", 20, "Number of most recent windows to plot per axis")
	outDir      = flag.String("out", ".", "Directory for the generated PNG files")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	rows, err := loadSummaries()
	if err != nil {
		log.Fatalf("load summaries: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("no summaries recorded for the requested axis")
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	byAxis := make(map[string][]db.SummaryRow)
	for _, row := range rows {
		byAxis[row.Axis] = append(byAxis[row.Axis], row)
	}

	var axes []string
	for axis := range byAxis {
		axes = append(axes, axis)
	}
	sort.Strings(axes)

	for _, axis := range axes {
		out := filepath.Join(*outDir, fmt.Sprintf("spectrum_%s.png", axis))
		if err := plotAxis(axis, byAxis[axis], out); err != nil {
			log.Fatalf("plot axis %s: %v", axis, err)
		}
		log.Printf("wrote %s (%d windows)", out, len(byAxis[axis]))
	}
}

// loadSummaries fetches summary rows from the API when -api is set,
// otherwise from the database file.
func loadSummaries() ([]db.SummaryRow, error) {
	if *apiBase != "" {
		return fetchSummaries(httputil.NewStandardClient(nil), *apiBase)
	}
	if *dbFile == "" {
		return nil, fmt.Errorf("either -api or -db is required")
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", *dbFile, err)
	}
	defer store.Close()

	return store.Summaries(*axisFilter, *limit)
}

// fetchSummaries pulls rows from the daemon's /api/summaries endpoint.
func fetchSummaries(client httputil.HTTPClient, base string) ([]db.SummaryRow, error) {
	url := fmt.Sprintf("%s/api/summaries?limit=%d", base, *limit)
	if *axisFilter != "" {
		url += "&axis=" + *axisFilter
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: status %d: %s", url, resp.StatusCode, body)
	}

	var rows []db.SummaryRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	return rows, nil
}

// plotAxis draws one amplitude-vs-frequency line per window. Rows arrive
// newest first; the newest window is drawn last, full-strength and wider, on
// top of the faded older windows.
func plotAxis(axis string, rows []db.SummaryRow, out string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Axis %s - Amplitude Spectrum (%s)", axis, rows[0].Policy)
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Amplitude (mg)"

	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		pts := make(plotter.XYs, len(row.Bins))
		for k, v := range row.Bins {
			pts[k] = plotter.XY{X: float64(k), Y: v}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		if i == 0 {
			line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
			line.Width = vg.Points(2)
			p.Legend.Add(row.Timestamp.Local().Format("2006-01-02 15:04:05"), line)
		} else {
			// Older windows fade towards the back of the stack.
			alpha := uint8(40 + 140*(len(rows)-i)/len(rows))
			line.Color = color.RGBA{R: 120, G: 120, B: 120, A: alpha}
			line.Width = vg.Points(1)
		}
		p.Add(line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(14*vg.Inch, 6*vg.Inch, out)
}
