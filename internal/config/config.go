// Package config loads the TrafficCV configuration from defaults, an
// optional YAML file, a .env file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ayusman/trafficcv/internal/detector"
	"github.com/ayusman/trafficcv/internal/track"
	"github.com/ayusman/trafficcv/internal/tracker"
	"github.com/ayusman/trafficcv/internal/units"
)

// ErrInvalid is returned when a configuration value is out of range.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix prefixes every environment variable, e.g. TRAFFICCV_PPM.
const EnvPrefix = "TRAFFICCV"

// CommandReport is the positional argument selecting the report command.
const CommandReport = "report"

// ModelConfig locates the detection model and its label file.
type ModelConfig struct {
	Dir     string `mapstructure:"dir"`
	File    string `mapstructure:"file"`
	Labels  string `mapstructure:"labels"`
	EdgeTPU bool   `mapstructure:"edgetpu"`
	Threads int    `mapstructure:"threads"`
}

// DetectorConfig selects the detector backend and its output filter.
type DetectorConfig struct {
	Kind     string   `mapstructure:"kind"`
	Command  []string `mapstructure:"command"`
	MinScore float64  `mapstructure:"min_score"`
	Classes  []string `mapstructure:"classes"`
}

// TrackerConfig selects the visual tracker.
type TrackerConfig struct {
	Kind         string  `mapstructure:"kind"`
	QualityScale float64 `mapstructure:"quality_scale"`
}

// CalibrationConfig holds the measurement band and eviction thresholds.
type CalibrationConfig struct {
	MinQuality float64 `mapstructure:"min_quality"`
	BandMin    int     `mapstructure:"band_min"`
	BandMax    int     `mapstructure:"band_max"`
	DisplayMin int     `mapstructure:"display_min"`
	KMHFactor  float64 `mapstructure:"kmh_factor"`
}

// LogConfig sets the log level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig locates the measurement database. An empty path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig sets the HTTP listen address. An empty address disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// HooksConfig configures speed hooks.
type HooksConfig struct {
	Dir      string        `mapstructure:"dir"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MinSpeed float64       `mapstructure:"min_speed"`
}

// Config is the full configuration bundle.
type Config struct {
	Source      string            `mapstructure:"source"`
	Model       ModelConfig       `mapstructure:"model"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	PPM         float64           `mapstructure:"ppm"`
	FPS         float64           `mapstructure:"fps"`
	FC          int               `mapstructure:"fc"`
	MeasuredFPS bool              `mapstructure:"measured_fps"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Info        bool              `mapstructure:"info"`
	NoWindow    bool              `mapstructure:"nowindow"`
	Log         LogConfig         `mapstructure:"log"`
	Store       StoreConfig       `mapstructure:"store"`
	Server      ServerConfig      `mapstructure:"server"`
	Hooks       HooksConfig       `mapstructure:"hooks"`
	Units       string            `mapstructure:"units"`
	Tray        bool              `mapstructure:"tray"`
	// Run restricts the report command to one run id.
	Run string `mapstructure:"run"`

	// Command is the positional subcommand, empty for the detector run.
	Command string `mapstructure:"-"`
	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
	// Defaulted lists the calibration keys (ppm, fps, fc) not set by the user.
	Defaulted []string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	cal := track.DefaultCalibration()

	v.SetDefault("source", "")
	v.SetDefault("model.dir", "models")
	v.SetDefault("model.file", "ssd_mobilenet_v1_coco_quant_postprocess_edgetpu.tflite")
	v.SetDefault("model.labels", filepath.Join("labels", "coco_labels.txt"))
	v.SetDefault("model.edgetpu", false)
	v.SetDefault("model.threads", 4)
	v.SetDefault("detector.kind", string(detector.KindTFLite))
	v.SetDefault("detector.command", []string{})
	v.SetDefault("detector.min_score", detector.DefaultConfig().MinScore)
	v.SetDefault("detector.classes", []string{})
	v.SetDefault("tracker.kind", string(tracker.KindMIL))
	v.SetDefault("tracker.quality_scale", tracker.DefaultConfig().QualityScale)
	v.SetDefault("ppm", cal.PPM)
	v.SetDefault("fps", cal.FPS)
	v.SetDefault("fc", 10)
	v.SetDefault("measured_fps", false)
	v.SetDefault("calibration.min_quality", cal.MinQuality)
	v.SetDefault("calibration.band_min", cal.BandMin)
	v.SetDefault("calibration.band_max", cal.BandMax)
	v.SetDefault("calibration.display_min", cal.DisplayMin)
	v.SetDefault("calibration.kmh_factor", cal.KMHFactor)
	v.SetDefault("info", false)
	v.SetDefault("nowindow", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.path", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("hooks.dir", "")
	v.SetDefault("hooks.timeout", 5*time.Second)
	v.SetDefault("hooks.min_speed", 0.0)
	v.SetDefault("units", units.KPH)
	v.SetDefault("tray", false)
	v.SetDefault("run", "")
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"source":         "source",
	"model-dir":      "model.dir",
	"model":          "model.file",
	"labels":         "model.labels",
	"edgetpu":        "model.edgetpu",
	"threads":        "model.threads",
	"detector":       "detector.kind",
	"detector-cmd":   "detector.command",
	"min-score":      "detector.min_score",
	"classes":        "detector.classes",
	"tracker":        "tracker.kind",
	"ppm":            "ppm",
	"fps":            "fps",
	"fc":             "fc",
	"measured-fps":   "measured_fps",
	"info":           "info",
	"nowindow":       "nowindow",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"store":          "store.path",
	"listen":         "server.addr",
	"hooks":          "hooks.dir",
	"hook-min-speed": "hooks.min_speed",
	"units":          "units",
	"tray":           "tray",
	"run":            "run",
}

// NewFlagSet declares the command-line flags.
func NewFlagSet(name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.String("config", "", "config file (default trafficcv.yaml in . or $HOME/.trafficcv)")
	flags.String("source", "", "video file path or device index")
	flags.String("model-dir", "", "directory holding the detection model")
	flags.String("model", "", "model file name, optionally suffixed with @device")
	flags.String("labels", "", "label file")
	flags.Bool("edgetpu", false, "run the model on an Edge TPU")
	flags.Int("threads", 0, "interpreter threads")
	flags.String("detector", "", "detector backend: tflite, subprocess or mock")
	flags.StringSlice("detector-cmd", nil, "command for the subprocess detector")
	flags.Float64("min-score", 0, "minimum detection score")
	flags.StringSlice("classes", nil, "class labels to keep (default all)")
	flags.String("tracker", "", "tracker: mil, kcf or csrt")
	flags.Float64("ppm", 0, "pixels per metre")
	flags.Float64("fps", 0, "frames per second used in the speed formula")
	flags.Int("fc", 0, "run detection every fc frames")
	flags.Bool("measured-fps", false, "use the measured loop rate in the speed formula")
	flags.Bool("info", false, "print model and video source information and exit")
	flags.Bool("nowindow", false, "do not show the preview window")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format: console or json")
	flags.String("store", "", "SQLite database for measurements")
	flags.String("listen", "", "HTTP listen address, e.g. :8080")
	flags.String("hooks", "", "directory of speed hooks")
	flags.Float64("hook-min-speed", 0, "only run hooks at or above this speed")
	flags.String("units", "", "report units: kph, mph or mps")
	flags.Bool("tray", false, "show a system tray icon")
	flags.String("run", "", "report only this run id")
	return flags
}

// Load parses args (without the program name) and returns the merged
// configuration. Precedence is flag, environment, config file, default.
func Load(args []string) (*Config, error) {
	flags := NewFlagSet("trafficcv")
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	file, _ := flags.GetString("config")
	if err := readConfigFile(v, file); err != nil {
		return nil, err
	}

	cfg := &Config{File: v.ConfigFileUsed()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	positional := flags.Args()
	if len(positional) > 0 && positional[0] == CommandReport {
		cfg.Command = CommandReport
		if len(positional) > 1 {
			cfg.Run = positional[1]
		}
	} else if cfg.Source == "" && len(positional) > 0 {
		cfg.Source = positional[0]
	}

	for _, key := range []string{"ppm", "fps", "fc"} {
		if !userSet(v, flags, key) {
			cfg.Defaulted = append(cfg.Defaulted, key)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// userSet reports whether a top-level key came from a flag, the
// environment or the config file. viper's IsSet also counts defaults.
func userSet(v *viper.Viper, flags *pflag.FlagSet, key string) bool {
	if flags.Changed(key) {
		return true
	}
	if _, ok := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(key)); ok {
		return true
	}
	return v.InConfig(key)
}

func readConfigFile(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
		return nil
	}

	v.SetConfigName("trafficcv")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".trafficcv"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Validate reports the first out-of-range value.
func (c *Config) Validate() error {
	if err := c.Calibration().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.FC <= 0 {
		return fmt.Errorf("%w: fc must be positive, got %d", ErrInvalid, c.FC)
	}
	switch detector.Kind(c.Detector.Kind) {
	case detector.KindTFLite, detector.KindMock:
	case detector.KindSubprocess:
		if len(c.Detector.Command) == 0 {
			return fmt.Errorf("%w: detector.command is required for the subprocess detector", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown detector %q", ErrInvalid, c.Detector.Kind)
	}
	if c.Detector.MinScore < 0 || c.Detector.MinScore > 1 {
		return fmt.Errorf("%w: detector.min_score must be in [0,1], got %v", ErrInvalid, c.Detector.MinScore)
	}
	if _, err := tracker.ParseKind(c.Tracker.Kind); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Tracker.QualityScale <= 0 {
		return fmt.Errorf("%w: tracker.quality_scale must be positive", ErrInvalid)
	}
	if _, err := units.Normalize(c.Units); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Hooks.Timeout <= 0 {
		return fmt.Errorf("%w: hooks.timeout must be positive", ErrInvalid)
	}
	if c.Command == "" && !c.Info && c.Source == "" {
		return fmt.Errorf("%w: a video source is required", ErrInvalid)
	}
	return nil
}

// Calibration returns the speed calibration.
func (c *Config) Calibration() track.Calibration {
	return track.Calibration{
		PPM:        c.PPM,
		FPS:        c.FPS,
		MinQuality: c.Calibration.MinQuality,
		BandMin:    c.Calibration.BandMin,
		BandMax:    c.Calibration.BandMax,
		DisplayMin: c.Calibration.DisplayMin,
		KMHFactor:  c.Calibration.KMHFactor,
	}
}

// ModelPath joins the model directory and file, keeping any @device suffix.
func (c *Config) ModelPath() string {
	return filepath.Join(c.Model.Dir, c.Model.File)
}

// DetectorConfig returns the detection filter settings.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{MinScore: c.Detector.MinScore, Classes: c.Detector.Classes}
}

// TrackerConfig returns the visual tracker settings.
func (c *Config) TrackerConfig() tracker.Config {
	kind, _ := tracker.ParseKind(c.Tracker.Kind)
	return tracker.Config{Kind: kind, QualityScale: c.Tracker.QualityScale}
}

// LogDefaults logs the calibration keys that fell back to their defaults.
func (c *Config) LogDefaults() {
	for _, key := range c.Defaulted {
		var value any
		switch key {
		case "ppm":
			value = c.PPM
		case "fps":
			value = c.FPS
		case "fc":
			value = c.FC
		}
		log.Info().Str("key", key).Interface("value", value).Msgf("%s argument not specified, using default value", key)
	}
}
