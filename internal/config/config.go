// Package config loads the startup configuration of the classifier.
//
// Configuration is read once through viper from, in increasing precedence:
// built-in defaults, the selected preset, a YAML file, SHAPECLS_* environment
// variables and command-line flags. Nothing here is reconfigurable per frame.
package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ironsheep/shape-classifier/internal/frame"
	"github.com/ironsheep/shape-classifier/internal/scores"
	"github.com/ironsheep/shape-classifier/internal/tensor"
)

// EnvPrefix is prepended to environment variable overrides, with dots in
// keys replaced by underscores (SHAPECLS_PIPELINE_SIDE).
const EnvPrefix = "SHAPECLS"

// Config is the complete startup configuration.
type Config struct {
	Preset     string         `mapstructure:"preset"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
	Labels     []string       `mapstructure:"labels"`
	LabelsFile string         `mapstructure:"labels_file"`
	Model      ModelConfig    `mapstructure:"model"`
	Source     SourceConfig   `mapstructure:"source"`
	Sink       SinkConfig     `mapstructure:"sink"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
	Debug      DebugConfig    `mapstructure:"debug"`
	Log        LogConfig      `mapstructure:"log"`
}

// PipelineConfig selects the decode and pack variant.
type PipelineConfig struct {
	ColorMode      string `mapstructure:"color_mode"`
	Side           int    `mapstructure:"side"`
	Channels       int    `mapstructure:"channels"`
	Normalization  string `mapstructure:"normalization"`
	Interpolation  string `mapstructure:"interpolation"`
	Layout         string `mapstructure:"layout"`
	PreserveAspect bool   `mapstructure:"preserve_aspect"`
}

// ModelConfig locates the model asset and selects the engine.
type ModelConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	Threads     int    `mapstructure:"threads"`
	InputName   string `mapstructure:"input_name"`
	OutputName  string `mapstructure:"output_name"`
	LibraryPath string `mapstructure:"library_path"`
}

// SourceConfig selects the frame supply.
type SourceConfig struct {
	// Kind is "images" or "raw".
	Kind string `mapstructure:"kind"`
	// Path is an image file, a directory of images, a raw frame file or "-"
	// for stdin.
	Path     string        `mapstructure:"path"`
	Loop     bool          `mapstructure:"loop"`
	Interval time.Duration `mapstructure:"interval"`
	Width    int           `mapstructure:"width"`
	Height   int           `mapstructure:"height"`
	Format   string        `mapstructure:"format"`
}

// SinkConfig selects where labels are delivered.
type SinkConfig struct {
	Outputs []string   `mapstructure:"outputs"`
	TopN    int        `mapstructure:"top_n"`
	MQTT    MQTTConfig `mapstructure:"mqtt"`
}

// MQTTConfig configures the MQTT result sink.
type MQTTConfig struct {
	Broker   string        `mapstructure:"broker"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	QoS      byte          `mapstructure:"qos"`
	Retain   bool          `mapstructure:"retain"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// DebugConfig controls diagnostic snapshots of the packed input.
type DebugConfig struct {
	SnapshotDir   string `mapstructure:"snapshot_dir"`
	SnapshotEvery int    `mapstructure:"snapshot_every"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Presets reproduce the preprocessing variants the camera app shipped with.
// Keys set explicitly in a file, environment or flag still win.
var Presets = map[string]map[string]interface{}{
	"color-zero-one": {
		"pipeline.color_mode":    "yuv",
		"pipeline.channels":      3,
		"pipeline.normalization": "zero_one",
	},
	"gray-signed-unit": {
		"pipeline.color_mode":    "grayscale",
		"pipeline.channels":      1,
		"pipeline.normalization": "signed_unit",
	},
	"yuv-signed-unit": {
		"pipeline.color_mode":    "yuv",
		"pipeline.channels":      3,
		"pipeline.normalization": "signed_unit",
	},
}

// DefaultPreset is applied when no preset is configured.
const DefaultPreset = "yuv-signed-unit"

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("preset", DefaultPreset)

	v.SetDefault("pipeline.side", 224)
	v.SetDefault("pipeline.interpolation", "nearest")
	v.SetDefault("pipeline.layout", "hwc")
	v.SetDefault("pipeline.preserve_aspect", false)

	v.SetDefault("labels", scores.ShapeLabels)

	v.SetDefault("model.backend", "tflite")
	v.SetDefault("model.path", "shape_classification_model.tflite")
	v.SetDefault("model.input_name", "input")
	v.SetDefault("model.output_name", "output")

	v.SetDefault("source.kind", "images")
	v.SetDefault("source.interval", 100*time.Millisecond)
	v.SetDefault("source.format", "nv21")

	v.SetDefault("sink.outputs", []string{"log"})
	v.SetDefault("sink.top_n", 3)
	v.SetDefault("sink.mqtt.topic", "shape-classifier/label")
	v.SetDefault("sink.mqtt.client_id", "shape-classifier")
	v.SetDefault("sink.mqtt.timeout", 10*time.Second)

	v.SetDefault("debug.snapshot_every", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges the YAML file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load applies the selected preset, decodes v into a Config, resolves the
// label table and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	preset := v.GetString("preset")
	if preset == "" {
		preset = DefaultPreset
	}
	values, ok := Presets[preset]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q (available: %s)", preset, strings.Join(PresetNames(), ", "))
	}
	for key, val := range values {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Preset = preset

	if cfg.LabelsFile != "" {
		labels, err := ReadLabels(cfg.LabelsFile)
		if err != nil {
			return nil, err
		}
		cfg.Labels = labels
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadLabels reads one label per line, skipping blank lines.
func ReadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			labels = append(labels, label)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

// FrameMode returns the parsed colour mode.
func (c *Config) FrameMode() (frame.ColorMode, error) {
	return frame.ParseColorMode(c.Pipeline.ColorMode)
}

// TensorSpec returns the parsed and validated tensor spec.
func (c *Config) TensorSpec() (tensor.Spec, error) {
	norm, err := tensor.ParseNormalization(c.Pipeline.Normalization)
	if err != nil {
		return tensor.Spec{}, err
	}
	interp, err := tensor.ParseInterpolation(c.Pipeline.Interpolation)
	if err != nil {
		return tensor.Spec{}, err
	}
	layout, err := tensor.ParseLayout(c.Pipeline.Layout)
	if err != nil {
		return tensor.Spec{}, err
	}

	spec := tensor.Spec{
		Side:           c.Pipeline.Side,
		Channels:       c.Pipeline.Channels,
		Normalization:  norm,
		Interpolation:  interp,
		Layout:         layout,
		PreserveAspect: c.Pipeline.PreserveAspect,
	}
	if err := spec.Validate(); err != nil {
		return tensor.Spec{}, err
	}
	return spec, nil
}

// RawFormat returns the parsed raw source format.
func (c *Config) RawFormat() (frame.Format, error) {
	return frame.ParseFormat(c.Source.Format)
}

// Validate checks every field that is used at startup.
func (c *Config) Validate() error {
	if _, err := c.FrameMode(); err != nil {
		return fmt.Errorf("pipeline.color_mode: %w", err)
	}
	if _, err := c.TensorSpec(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if len(c.Labels) == 0 {
		return fmt.Errorf("labels: label table is empty")
	}
	seen := make(map[string]bool, len(c.Labels))
	for i, label := range c.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("labels: entry %d is blank", i)
		}
		if seen[label] {
			return fmt.Errorf("labels: duplicate label %q", label)
		}
		seen[label] = true
	}

	switch c.Model.Backend {
	case "tflite", "onnx":
	default:
		return fmt.Errorf("model.backend: unknown backend %q", c.Model.Backend)
	}

	switch c.Source.Kind {
	case "images":
	case "raw":
		if c.Source.Width <= 0 || c.Source.Height <= 0 {
			return fmt.Errorf("source: raw frames need positive width and height, got %dx%d", c.Source.Width, c.Source.Height)
		}
		if err := frame.CheckDimensions(c.Source.Width, c.Source.Height); err != nil {
			return fmt.Errorf("source: %w", err)
		}
		format, err := c.RawFormat()
		if err != nil {
			return fmt.Errorf("source.format: %w", err)
		}
		if mode, _ := c.FrameMode(); format == frame.FormatGray && mode == frame.ColorYUV {
			return fmt.Errorf("source.format: gray frames carry no chroma for color_mode yuv")
		}
	default:
		return fmt.Errorf("source.kind: unknown source %q", c.Source.Kind)
	}
	if c.Source.Interval < 0 {
		return fmt.Errorf("source.interval: must not be negative")
	}

	for _, out := range c.Sink.Outputs {
		switch out {
		case "log", "json":
		case "mqtt":
			if c.Sink.MQTT.Broker == "" {
				return fmt.Errorf("sink.mqtt.broker: required when the mqtt output is enabled")
			}
			if c.Sink.MQTT.QoS > 2 {
				return fmt.Errorf("sink.mqtt.qos: must be 0, 1 or 2")
			}
		default:
			return fmt.Errorf("sink.outputs: unknown output %q", out)
		}
	}

	if c.Debug.SnapshotDir != "" && c.Debug.SnapshotEvery <= 0 {
		return fmt.Errorf("debug.snapshot_every: must be positive")
	}

	return nil
}
