// Package config loads mudra's YAML configuration, applies environment
// overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/dispatch"
	"github.com/ayusman/mudra/internal/practice"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/speech"
)

// Environment variables that override file values.
const (
	EnvClassifierEndpoint = "MUDRA_CLASSIFIER_ENDPOINT"
	EnvLogLevel           = "MUDRA_LOG_LEVEL"
	EnvListenAddr         = "MUDRA_LISTEN_ADDR"
	EnvSpeechEngine       = "MUDRA_SPEECH_ENGINE"
	EnvStorePath          = "MUDRA_STORE_PATH"
)

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Camera     CameraConfig     `yaml:"camera"`
	Detector   DetectorConfig   `yaml:"detector"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Session    SessionConfig    `yaml:"session"`
	Speech     SpeechConfig     `yaml:"speech"`
	Store      StoreConfig      `yaml:"store"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Practice   PracticeConfig   `yaml:"practice"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tray       TrayConfig       `yaml:"tray"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	File  string `yaml:"file"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
	StaticDir  string `yaml:"static_dir"`
}

type CameraConfig struct {
	DeviceID int `yaml:"device_id" validate:"gte=0"`
	FPS      int `yaml:"fps" validate:"gt=0,lte=120"`
	Width    int `yaml:"width" validate:"gt=0"`
	Height   int `yaml:"height" validate:"gt=0"`
}

// Capture converts the section to camera settings.
func (c CameraConfig) Capture() capture.Config {
	return capture.Config{DeviceID: c.DeviceID, FPS: c.FPS, Width: c.Width, Height: c.Height}
}

type DetectorConfig struct {
	MaxHands               int     `yaml:"max_hands" validate:"gte=1,lte=4"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence" validate:"gte=0,lte=1"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence" validate:"gte=0,lte=1"`
	ScriptPath             string  `yaml:"script_path"`
	PythonPath             string  `yaml:"python_path"`
}

type ClassifierConfig struct {
	Endpoint string        `yaml:"endpoint" validate:"required,url"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`
}

type SessionConfig struct {
	WindowLength        int           `yaml:"window_length" validate:"gt=0"`
	ThrottleInterval    time.Duration `yaml:"throttle_interval" validate:"gt=0"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" validate:"gte=0,lte=100"`
	DiscardStaleOnGap   bool          `yaml:"discard_stale_on_gap"`
}

type SpeechConfig struct {
	Engine          string  `yaml:"engine" validate:"required"`
	Interrupt       bool    `yaml:"interrupt"`
	GateOnThreshold bool    `yaml:"gate_on_threshold"`
	Lang            string  `yaml:"lang" validate:"required"`
	Rate            float64 `yaml:"rate" validate:"gt=0,lte=10"`
	Pitch           float64 `yaml:"pitch" validate:"gte=0,lte=2"`
	Volume          float64 `yaml:"volume" validate:"gte=0,lte=2"`
}

type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type PluginsConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type PracticeConfig struct {
	WordTimeLimit  time.Duration `yaml:"word_time_limit" validate:"gt=0"`
	PassConfidence float64       `yaml:"pass_confidence" validate:"gte=0,lte=100"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration. Paths under the home
// directory are resolved by Load.
func Default() *Config {
	voice := speech.DefaultVoice()
	return &Config{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{ListenAddr: ":8080"},
		Camera: CameraConfig{DeviceID: 0, FPS: 30, Width: capture.DefaultWidth, Height: capture.DefaultHeight},
		Detector: DetectorConfig{
			MaxHands:               2,
			MinDetectionConfidence: 0.5,
			MinTrackingConfidence:  0.5,
		},
		Classifier: ClassifierConfig{Endpoint: classifier.DefaultEndpoint},
		Session: SessionConfig{
			WindowLength:        sequence.DefaultLength,
			ThrottleInterval:    dispatch.DefaultInterval,
			ConfidenceThreshold: 50,
		},
		Speech: SpeechConfig{
			Engine:          "auto",
			Interrupt:       true,
			GateOnThreshold: true,
			Lang:            voice.Lang,
			Rate:            voice.Rate,
			Pitch:           voice.Pitch,
			Volume:          voice.Volume,
		},
		Store:   StoreConfig{Path: "~/.mudra/mudra.db"},
		Plugins: PluginsConfig{Dir: "~/.mudra/plugins", Timeout: 5 * time.Second},
		Practice: PracticeConfig{
			WordTimeLimit:  practice.DefaultWordTimeLimit,
			PassConfidence: practice.DefaultPassConfidence,
		},
		Metrics: MetricsConfig{Enabled: true},
		Tray:    TrayConfig{Enabled: true},
	}
}

// Voice returns the configured speech voice.
func (c SpeechConfig) Voice() speech.Voice {
	return speech.Voice{Lang: c.Lang, Rate: c.Rate, Pitch: c.Pitch, Volume: c.Volume}
}

// Load builds the configuration: defaults, then the YAML file at path (a
// missing file is not an error), then .env and environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config %q: %w", path, err)
		default:
			defer f.Close()
			if err := decode(f, cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(cfg)

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates it.
// Environment overrides are not applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvClassifierEndpoint); v != "" {
		cfg.Classifier.Endpoint = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvSpeechEngine); v != "" {
		cfg.Speech.Engine = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.Store.Path = v
	}
}

func (c *Config) resolvePaths() error {
	var err error
	for _, p := range []*string{&c.Store.Path, &c.Plugins.Dir, &c.Log.File, &c.Server.StaticDir} {
		if *p, err = ExpandHome(*p); err != nil {
			return err
		}
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

var validate = validator.New()

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
