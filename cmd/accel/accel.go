package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/vibration.report/internal/accelmux"
	"github.com/banshee-data/vibration.report/internal/api"
	"github.com/banshee-data/vibration.report/internal/config"
	"github.com/banshee-data/vibration.report/internal/db"
	"github.com/banshee-data/vibration.report/internal/pipeline"
	"github.com/banshee-data/vibration.report/internal/replay"
	"github.com/banshee-data/vibration.report/internal/report"
	"github.com/banshee-data/vibration.report/internal/spectral"
	"github.com/banshee-data/vibration.report/internal/timeutil"
	"github.com/banshee-data/vibration.report/internal/units"
	"github.com/banshee-data/vibration.report/internal/version"
	"github.com/banshee-data/vibration.report/internal/wavesink"

	_ "modernc.org/sqlite"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address for the status API")
	portPath      = flag.String("port", "/dev/ttyUSB0", "Serial port the accelerometer is attached to")
	baudRate      = flag.Int("baud", 0, "Serial baud rate (0 uses the device default)")
	mockMode      = flag.Bool("mock", false, "Use a synthetic accelerometer instead of real hardware")
	listPorts     = flag.Bool("list-ports", false, "List available serial ports and exit")
	replayFile    = flag.String("replay", "", "Regenerate reports from a pcap capture file and exit")
	replayPort    = flag.Int("replay-port", 7332, "UDP port to select packets from the capture (0 accepts any)")
	dbFile        = flag.String("db", "accel.db", "Path to the SQLite database file")
	configFile    = flag.String("config", "", "Path to a tuning config JSON file")
	outputDir     = flag.String("out", "", "Directory for CSV and WAV output (overrides config)")
	sampleRate    = flag.Int("rate", 0, "Sample rate in Hz (overrides config)")
	interval      = flag.Int("interval", 0, "Aggregation window in seconds (overrides config)")
	maxFreq       = flag.Int("max-freq", 0, "Highest reported frequency in Hz (overrides config)")
	calcMax       = flag.Bool("calc-max", false, "Report per-bin maxima instead of means")
	wavEnabled    = flag.Bool("wav", false, "Archive gravity-filtered samples to daily WAV files")
	deviceLabel   = flag.String("device-label", "", "Device name recorded with the capture session (overrides config)")
	migrationsDir = flag.String("migrations-dir", "", "Directory with SQL migrations to check at startup (empty skips the check)")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

// runMigrate handles the migrate subcommand before the main flag set parses.
// Verbs come first so "accel migrate up -db other.db" works.
func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateDB := fs.String("db", "accel.db", "Path to the SQLite database file")
	migrateDir := fs.String("migrations-dir", "internal/db/migrations", "Directory with SQL migration files")

	var verbs []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		verbs = append(verbs, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}
	if len(verbs) == 0 {
		db.PrintMigrateHelp()
		os.Exit(1)
	}

	db.RunMigrateCommand(verbs, *migrateDB, *migrateDir)
}

// applyFlagOverrides copies explicitly-set command line flags onto the tuning
// config so they win over values loaded from the config file. The set map
// holds the names reported by flag.Visit.
func applyFlagOverrides(tuning *config.TuningConfig, set map[string]bool) {
	if set["rate"] {
		tuning.SampleRateHz = sampleRate
	}
	if set["interval"] {
		tuning.AverageIntervalSeconds = interval
	}
	if set["max-freq"] {
		tuning.MaxFrequencyHz = maxFreq
	}
	if set["out"] {
		tuning.OutputDir = outputDir
	}
	if set["wav"] {
		tuning.WavEnabled = wavEnabled
	}
	if set["device-label"] {
		tuning.DeviceLabel = deviceLabel
	}
	if *calcMax {
		policy := string(pipeline.PolicyMax)
		tuning.AggregationPolicy = &policy
	}
}

// loadTuning assembles the effective capture configuration from the config
// file (when given) and command line overrides, then validates it.
func loadTuning() (*config.TuningConfig, error) {
	tuning := config.EmptyTuningConfig()
	if *configFile != "" {
		loaded, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			return nil, err
		}
		tuning = loaded
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	applyFlagOverrides(tuning, set)

	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	return tuning, nil
}

// initPipelineLogging routes the pipeline's ops stream to w so overruns and
// summary sink failures land in the process log. The diag and trace streams
// stay off.
func initPipelineLogging(w io.Writer) {
	pipeline.SetLogWriters(pipeline.LogWriters{Ops: w})
}

// capturePipeline bundles the stages built from one tuning config.
type capturePipeline struct {
	ring   *pipeline.Ring
	runner *pipeline.Runner
	agg    *pipeline.Aggregator
}

func buildPipeline(tuning *config.TuningConfig, emitter pipeline.Emitter, clock timeutil.Clock) (*capturePipeline, error) {
	rate := tuning.GetSampleRateHz()

	ring, err := pipeline.NewRing(pipeline.RingConfig{
		Rate:  rate,
		Depth: tuning.GetPipelineDepth(),
		Lag:   tuning.GetConsumerLagSlots(),
	})
	if err != nil {
		return nil, err
	}

	engine, err := spectral.NewEngine(rate)
	if err != nil {
		return nil, err
	}

	agg, err := pipeline.NewAggregator(pipeline.AggregatorConfig{
		Rate:    rate,
		Window:  tuning.GetAverageIntervalSeconds(),
		MaxFreq: tuning.GetMaxFrequencyHz(),
		Policy:  pipeline.Policy(tuning.GetAggregationPolicy()),
		Emitter: emitter,
		Clock:   clock,
	})
	if err != nil {
		return nil, err
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Ring:       ring,
		Engine:     engine,
		Aggregator: agg,
		Poll:       tuning.GetPollInterval(),
		Clock:      clock,
	})
	if err != nil {
		return nil, err
	}

	return &capturePipeline{ring: ring, runner: runner, agg: agg}, nil
}

// runReplay regenerates CSV reports from a pcap capture and exits. Summary
// timestamps follow the capture's packet times so rows land on the dates the
// samples were recorded, not the date of the replay.
func runReplay(ctx context.Context, tuning *config.TuningConfig) error {
	sink, err := report.NewCSVSink(tuning.GetOutputDir(), tuning.GetMaxFrequencyHz(), nil)
	if err != nil {
		return err
	}

	clock := timeutil.NewMockClock(time.Time{})
	p, err := buildPipeline(tuning, sink, clock)
	if err != nil {
		return err
	}

	ingest := pipeline.NewIngest(p.ring)
	stats, err := replay.Run(ctx, *replayFile, *replayPort, func(ts time.Time, samples []units.Triple) {
		clock.Set(ts)
		ingest.OnSampleBatch(samples)
		p.runner.ProcessOnce()
	})
	if err != nil {
		return err
	}
	p.runner.ProcessOnce()

	log.Printf("Replayed %d packets, %d samples (%d lines skipped), emitted %d summaries",
		stats.Packets, stats.Triples, stats.SkippedLines, p.agg.Emissions())
	return nil
}

// handleLine routes one line from the device to the sample pipeline or the
// status state.
func handleLine(line string, ingest *pipeline.Ingest, wavSink *wavesink.Sink, state *accelmux.DeviceState) {
	switch accelmux.ClassifyLine(line) {
	case accelmux.LineKindSample:
		t, err := accelmux.ParseSampleLine(line)
		if err != nil {
			log.Printf("bad sample line: %v", err)
			return
		}
		batch := []units.Triple{t}
		if wavSink != nil {
			if err := wavSink.WriteBatch(batch); err != nil {
				log.Printf("wav archive write: %v", err)
			}
		}
		ingest.OnSampleBatch(batch)
	case accelmux.LineKindStatus:
		if err := state.Update(line); err != nil {
			log.Printf("bad status line: %v", err)
		}
	default:
		log.Printf("unrecognised line from device: %q", line)
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}

	flag.Parse()
	initPipelineLogging(os.Stderr)

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *listPorts {
		ports, err := accelmux.ListPorts()
		if err != nil {
			log.Fatalf("Failed to list serial ports: %v", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	tuning, err := loadTuning()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *replayFile != "" {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := runReplay(ctx, tuning); err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		return
	}

	var m accelmux.AccelMuxInterface
	if *mockMode {
		m = accelmux.NewMockAccelMux(tuning.GetSampleRateHz())
	} else {
		rm, err := accelmux.NewRealAccelMux(*portPath, accelmux.PortOptions{BaudRate: *baudRate}, tuning.GetSampleRateHz())
		if err != nil {
			log.Fatalf("Failed to open accelerometer port %s: %v", *portPath, err)
		}
		m = rm
	}
	defer m.Close()

	if err := m.Initialize(); err != nil {
		log.Fatalf("Failed to initialize device: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if *migrationsDir != "" {
		if _, err := database.CheckAndPromptMigrations(*migrationsDir); err != nil {
			log.Fatalf("Migration check failed: %v", err)
		}
	}

	device := *portPath
	if *mockMode {
		device = "mock"
	}
	if label := tuning.GetDeviceLabel(); label != "" {
		device = label
	}

	session := db.NewSession(device, tuning.GetSampleRateHz(), tuning.GetAverageIntervalSeconds(),
		tuning.GetMaxFrequencyHz(), tuning.GetAggregationPolicy())
	if err := database.RecordSession(session); err != nil {
		log.Fatalf("Failed to record capture session: %v", err)
	}
	log.Printf("Capture session %s on %s: %d Hz, %ds windows, %s fold up to %d Hz",
		session.ID, device, session.SampleRate, session.WindowSeconds, session.Policy, session.MaxFreqHz)

	csvSink, err := report.NewCSVSink(tuning.GetOutputDir(), tuning.GetMaxFrequencyHz(), nil)
	if err != nil {
		log.Fatalf("Failed to create CSV sink: %v", err)
	}
	latest := api.NewLatestCache()
	emitter := pipeline.MultiEmitter{
		csvSink,
		db.NewSummaryRecorder(database, session),
		latest,
	}

	p, err := buildPipeline(tuning, emitter, nil)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	var wavSink *wavesink.Sink
	if tuning.GetWavEnabled() {
		wavSink, err = wavesink.NewSink(wavesink.SinkConfig{
			Dir:  tuning.GetOutputDir(),
			Rate: tuning.GetSampleRateHz(),
			Tau:  tuning.GetWavTauSeconds(),
		})
		if err != nil {
			log.Fatalf("Failed to create WAV archive: %v", err)
		}
		defer wavSink.Close()
	}

	state := accelmux.NewDeviceState()
	ingest := pipeline.NewIngest(p.ring)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// feed device lines into the pipeline until shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case line := <-lines:
				handleLine(line, ingest, wavSink, state)
			case <-ctx.Done():
				log.Print("ingest routine terminated")
				return
			}
		}
	}()

	// drain ready seconds into spectra and windowed summaries
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.runner.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("pipeline consumer error: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(api.ServerConfig{
			Mux:     m,
			DB:      database,
			Tuning:  tuning,
			Ring:    p.ring,
			Agg:     p.agg,
			Session: session,
			Latest:  latest,
			State:   state,
		}).ServeMux()

		// mount the admin debugging routes alongside the public API
		m.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
