// Package config loads the flow counter settings from a YAML file,
// PLANKTRACK_ prefixed environment variables and command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/spf13/viper"
	"github.com/swdee/go-planktrack/counter"
	"github.com/swdee/go-planktrack/logger"
	"github.com/swdee/go-planktrack/tracker"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"strings"
)

// EnvPrefix is the prefix of environment variables overriding settings,
// eg: PLANKTRACK_MODEL_CONFIDENCE
const EnvPrefix = "PLANKTRACK"

// Config is the complete configuration of a counting run
type Config struct {
	// Source is a video file, image file or camera device index
	Source  string         `mapstructure:"source" yaml:"source"`
	Model   ModelConfig    `mapstructure:"model" yaml:"model"`
	Tracker tracker.Config `mapstructure:"tracker" yaml:"tracker"`
	Counter CounterConfig  `mapstructure:"counter" yaml:"counter"`
	Output  OutputConfig   `mapstructure:"output" yaml:"output"`
	Session SessionConfig  `mapstructure:"session" yaml:"session"`
	HTTP    HTTPConfig     `mapstructure:"http" yaml:"http"`
	Log     logger.Config  `mapstructure:"log" yaml:"log"`
	// Display shows the annotated frames in a window with q/r/s keys
	Display bool `mapstructure:"display" yaml:"display"`
	// MaxFrames stops the run after this many frames, zero for no limit
	MaxFrames int `mapstructure:"max_frames" yaml:"max_frames"`
	// MaxDetectorErrors is the number of consecutive failed frames
	// tolerated before the run is aborted
	MaxDetectorErrors int `mapstructure:"max_detector_errors" yaml:"max_detector_errors"`
	// Database is the session history file, empty disables history
	Database string `mapstructure:"database" yaml:"database"`
}

// ModelConfig configures the YOLO detector
type ModelConfig struct {
	Path        string   `mapstructure:"path" yaml:"path"`
	Labels      string   `mapstructure:"labels" yaml:"labels"`
	InputWidth  int      `mapstructure:"input_width" yaml:"input_width"`
	InputHeight int      `mapstructure:"input_height" yaml:"input_height"`
	Confidence  float32  `mapstructure:"confidence" yaml:"confidence"`
	NMS         float32  `mapstructure:"nms" yaml:"nms"`
	Classes     []string `mapstructure:"classes" yaml:"classes"`
	Backend     string   `mapstructure:"backend" yaml:"backend"`
	Target      string   `mapstructure:"target" yaml:"target"`
	Tiled       bool     `mapstructure:"tiled" yaml:"tiled"`
	TileOverlap float32  `mapstructure:"tile_overlap" yaml:"tile_overlap"`
}

// CounterConfig configures the unique count aggregator
type CounterConfig struct {
	GracePeriod int    `mapstructure:"grace_period" yaml:"grace_period"`
	LabelPolicy string `mapstructure:"label_policy" yaml:"label_policy"`
}

// OutputConfig configures files written by a run
type OutputConfig struct {
	// Video is the annotated video file, empty disables it
	Video string `mapstructure:"video" yaml:"video"`
	// ExportDir receives the counts, tracks, report and summary files
	ExportDir string `mapstructure:"export_dir" yaml:"export_dir"`
	// SnapshotDir receives snapshot images and exports
	SnapshotDir string `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`
	// DumpDetections records detections as JSON lines for replay
	DumpDetections string `mapstructure:"dump_detections" yaml:"dump_detections"`
	// TrailLength is the number of centre points kept per track
	TrailLength int `mapstructure:"trail_length" yaml:"trail_length"`
}

// SessionConfig describes the sample being counted
type SessionConfig struct {
	Location string `mapstructure:"location" yaml:"location"`
	// FlowRate is the pump rate in mL/min used for concentration
	FlowRate float64 `mapstructure:"flow_rate" yaml:"flow_rate"`
	// BloomThreshold is the share of one class reported as a bloom
	BloomThreshold float64 `mapstructure:"bloom_threshold" yaml:"bloom_threshold"`
}

// HTTPConfig configures the dashboard server
type HTTPConfig struct {
	// Addr is the listen address, empty disables the server
	Addr string `mapstructure:"addr" yaml:"addr"`
	// JPEGQuality of streamed frames
	JPEGQuality int `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Model: ModelConfig{
			Path:        "models/plankton.onnx",
			Labels:      "models/plankton_labels.txt",
			InputWidth:  640,
			InputHeight: 640,
			Confidence:  0.25,
			NMS:         0.45,
			Classes:     []string{},
			Backend:     "default",
			Target:      "cpu",
			TileOverlap: 0.2,
		},
		Tracker: tracker.DefaultConfig(),
		Counter: CounterConfig{
			GracePeriod: 0,
			LabelPolicy: counter.FirstSeen.String(),
		},
		Output: OutputConfig{
			ExportDir:   "results",
			SnapshotDir: "results/snapshots",
			TrailLength: 30,
		},
		Session: SessionConfig{
			BloomThreshold: 0.7,
		},
		HTTP: HTTPConfig{
			JPEGQuality: 80,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		MaxDetectorErrors: 10,
		Database:          "results/sessions.db",
	}
}

// NewViper returns a viper instance seeded with the defaults and reading
// PLANKTRACK_ environment variables.  Flags can be bound to it before Load.
func NewViper() (*viper.Viper, error) {

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// reading the defaults as a config registers every key so environment
	// variables are seen by Unmarshal
	defaults, err := yaml.Marshal(Default())

	if err != nil {
		return nil, fmt.Errorf("error encoding defaults: %w", err)
	}

	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("error reading defaults: %w", err)
	}

	return v, nil
}

// Load merges the config file, when given, over the defaults in v and
// returns the validated configuration
func Load(v *viper.Viper, file string) (*Config, error) {

	if file != "" {
		v.SetConfigFile(file)

		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings are usable
func (c *Config) Validate() error {

	var errs []error

	if c.Model.InputWidth <= 0 || c.Model.InputHeight <= 0 {
		errs = append(errs, fmt.Errorf("model input size must be positive, got %dx%d",
			c.Model.InputWidth, c.Model.InputHeight))
	}

	if c.Model.Confidence < 0 || c.Model.Confidence > 1 {
		errs = append(errs, fmt.Errorf("model confidence must be within [0,1], got %v",
			c.Model.Confidence))
	}

	if c.Model.NMS < 0 || c.Model.NMS > 1 {
		errs = append(errs, fmt.Errorf("model nms must be within [0,1], got %v", c.Model.NMS))
	}

	if c.Model.TileOverlap < 0 || c.Model.TileOverlap >= 1 {
		errs = append(errs, fmt.Errorf("model tile overlap must be within [0,1), got %v",
			c.Model.TileOverlap))
	}

	if err := c.Tracker.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Counter.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("counter grace period must not be negative, got %d",
			c.Counter.GracePeriod))
	}

	if _, err := counter.ParseLabelPolicy(c.Counter.LabelPolicy); err != nil {
		errs = append(errs, err)
	}

	if c.Output.TrailLength < 0 {
		errs = append(errs, fmt.Errorf("trail length must not be negative, got %d",
			c.Output.TrailLength))
	}

	if c.Session.FlowRate < 0 {
		errs = append(errs, fmt.Errorf("flow rate must not be negative, got %v",
			c.Session.FlowRate))
	}

	if c.Session.BloomThreshold < 0 || c.Session.BloomThreshold > 1 {
		errs = append(errs, fmt.Errorf("bloom threshold must be within [0,1], got %v",
			c.Session.BloomThreshold))
	}

	if c.HTTP.JPEGQuality < 1 || c.HTTP.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality must be within [1,100], got %d",
			c.HTTP.JPEGQuality))
	}

	if c.MaxFrames < 0 {
		errs = append(errs, fmt.Errorf("max frames must not be negative, got %d", c.MaxFrames))
	}

	if c.MaxDetectorErrors < 0 {
		errs = append(errs, fmt.Errorf("max detector errors must not be negative, got %d",
			c.MaxDetectorErrors))
	}

	return errors.Join(errs...)
}

// LabelPolicy returns the parsed counter label policy
func (c *Config) LabelPolicy() counter.LabelPolicy {
	p, _ := counter.ParseLabelPolicy(c.Counter.LabelPolicy)
	return p
}

// WriteDefault writes the default configuration to file as YAML.  An
// existing file is not overwritten.
func WriteDefault(file string) error {

	if _, err := os.Stat(file); err == nil {
		return fmt.Errorf("config file %s already exists", file)
	}

	data, err := yaml.Marshal(Default())

	if err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}

	if dir := filepath.Dir(file); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}

	return os.WriteFile(file, data, 0o644)
}
