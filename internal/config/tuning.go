package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig represents the root configuration for capture parameters.
// All fields are pointers so a partial JSON file only overrides what it
// names; the Get* methods supply defaults for everything else.
type TuningConfig struct {
	// Capture params
	SampleRateHz           *int    `json:"sample_rate_hz,omitempty"`
	AverageIntervalSeconds *int    `json:"average_interval_seconds,omitempty"`
	MaxFrequencyHz         *int    `json:"max_frequency_hz,omitempty"`
	AggregationPolicy      *string `json:"aggregation_policy,omitempty"` // "mean" or "max"

	// Pipeline params
	PipelineDepth    *int `json:"pipeline_depth,omitempty"`
	ConsumerLagSlots *int `json:"consumer_lag_slots,omitempty"`
	PollIntervalMs   *int `json:"poll_interval_ms,omitempty"`

	// WAV archive params
	WavEnabled    *bool    `json:"wav_enabled,omitempty"`
	WavTauSeconds *float64 `json:"wav_tau_seconds,omitempty"`

	// Reporting params
	OutputDir   *string `json:"output_dir,omitempty"`
	DeviceLabel *string `json:"device_label,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid. Cross-field
// checks use the effective values so a partial config cannot place the
// frequency ceiling above the Nyquist bin.
func (c *TuningConfig) Validate() error {
	if c.SampleRateHz != nil && *c.SampleRateHz <= 0 {
		return fmt.Errorf("sample_rate_hz must be positive, got %d", *c.SampleRateHz)
	}

	if c.AverageIntervalSeconds != nil && *c.AverageIntervalSeconds <= 0 {
		return fmt.Errorf("average_interval_seconds must be positive, got %d", *c.AverageIntervalSeconds)
	}

	if c.MaxFrequencyHz != nil && *c.MaxFrequencyHz < 0 {
		return fmt.Errorf("max_frequency_hz must be non-negative, got %d", *c.MaxFrequencyHz)
	}
	if nyquist := c.GetSampleRateHz() / 2; c.GetMaxFrequencyHz() > nyquist {
		return fmt.Errorf("max_frequency_hz %d exceeds the Nyquist bin %d for sample_rate_hz %d",
			c.GetMaxFrequencyHz(), nyquist, c.GetSampleRateHz())
	}

	if c.AggregationPolicy != nil {
		switch *c.AggregationPolicy {
		case "mean", "max":
		default:
			return fmt.Errorf("aggregation_policy must be \"mean\" or \"max\", got %q", *c.AggregationPolicy)
		}
	}

	if c.PipelineDepth != nil && *c.PipelineDepth < 2 {
		return fmt.Errorf("pipeline_depth must be at least 2, got %d", *c.PipelineDepth)
	}

	if c.ConsumerLagSlots != nil {
		if *c.ConsumerLagSlots < 0 {
			return fmt.Errorf("consumer_lag_slots must be non-negative, got %d", *c.ConsumerLagSlots)
		}
		if *c.ConsumerLagSlots >= c.GetPipelineDepth() {
			return fmt.Errorf("consumer_lag_slots %d must be below pipeline_depth %d",
				*c.ConsumerLagSlots, c.GetPipelineDepth())
		}
	}

	if c.PollIntervalMs != nil && *c.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", *c.PollIntervalMs)
	}

	if c.WavTauSeconds != nil && *c.WavTauSeconds <= 0 {
		return fmt.Errorf("wav_tau_seconds must be positive, got %f", *c.WavTauSeconds)
	}

	return nil
}

// GetSampleRateHz returns the sample_rate_hz value or the default.
func (c *TuningConfig) GetSampleRateHz() int {
	if c.SampleRateHz == nil {
		return 1000 // default
	}
	return *c.SampleRateHz
}

// GetAverageIntervalSeconds returns the average_interval_seconds value or the default.
func (c *TuningConfig) GetAverageIntervalSeconds() int {
	if c.AverageIntervalSeconds == nil {
		return 10 // default
	}
	return *c.AverageIntervalSeconds
}

// GetMaxFrequencyHz returns the max_frequency_hz value or the default.
func (c *TuningConfig) GetMaxFrequencyHz() int {
	if c.MaxFrequencyHz == nil {
		return 150 // default
	}
	return *c.MaxFrequencyHz
}

// GetAggregationPolicy returns the aggregation_policy value or the default.
func (c *TuningConfig) GetAggregationPolicy() string {
	if c.AggregationPolicy == nil {
		return "mean" // default
	}
	return *c.AggregationPolicy
}

// GetPipelineDepth returns the pipeline_depth value or the default.
func (c *TuningConfig) GetPipelineDepth() int {
	if c.PipelineDepth == nil {
		return 100 // default
	}
	return *c.PipelineDepth
}

// GetConsumerLagSlots returns the consumer_lag_slots value or the default,
// which is a tenth of the pipeline depth.
func (c *TuningConfig) GetConsumerLagSlots() int {
	if c.ConsumerLagSlots == nil {
		lag := c.GetPipelineDepth() / 10
		if lag < 1 {
			lag = 1
		}
		return lag
	}
	return *c.ConsumerLagSlots
}

// GetPollInterval returns the poll_interval_ms value as a time.Duration.
func (c *TuningConfig) GetPollInterval() time.Duration {
	if c.PollIntervalMs == nil {
		return 2 * time.Millisecond // default
	}
	return time.Duration(*c.PollIntervalMs) * time.Millisecond
}

// GetWavEnabled returns the wav_enabled value or the default.
func (c *TuningConfig) GetWavEnabled() bool {
	if c.WavEnabled == nil {
		return false // default: WAV archiving disabled
	}
	return *c.WavEnabled
}

// GetWavTauSeconds returns the wav_tau_seconds value or the default.
func (c *TuningConfig) GetWavTauSeconds() float64 {
	if c.WavTauSeconds == nil {
		return 10.0 // default
	}
	return *c.WavTauSeconds
}

// GetOutputDir returns the output_dir value or the default.
func (c *TuningConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return "." // default: current directory
	}
	return *c.OutputDir
}

// GetDeviceLabel returns the device_label value or the default.
func (c *TuningConfig) GetDeviceLabel() string {
	if c.DeviceLabel == nil {
		return "" // default: use the serial port path
	}
	return *c.DeviceLabel
}
