// Package config loads the skygraph process configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/skygraph/internal/core/observability/log"
	"github.com/zeusync/skygraph/internal/core/scene"
	"github.com/zeusync/skygraph/internal/core/simclock"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Log     LogConfig       `yaml:"log"`
	Clock   ClockConfig     `yaml:"clock"`
	Engine  EngineConfig    `yaml:"engine"`
	Feed    FeedConfig      `yaml:"feed"`
	Server  ServerConfig    `yaml:"server"`
	Metrics MetricsConfig   `yaml:"metrics"`
	Scene   SceneConfig     `yaml:"scene"`
	Toggles map[string]bool `yaml:"toggles"`
	// Camera is the initial camera position in the root frame.
	Camera []float64 `yaml:"camera"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
}

type ClockConfig struct {
	// Start is the first simulation instant. Zero means the wall time at startup.
	Start time.Time `yaml:"start"`
	Warp  float64   `yaml:"warp"`
}

type EngineConfig struct {
	FPS int `yaml:"fps"`
}

type FeedConfig struct {
	Path         string        `yaml:"path"`
	SendQueue    int           `yaml:"send_queue"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Token, when set, must be presented by feed clients.
	Token string `yaml:"token"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SceneConfig struct {
	// Path of the YAML scene description.
	Path string `yaml:"path"`
}

// Default returns a configuration that runs without any file.
func Default() Config {
	return Config{
		Log:    LogConfig{Level: "info", Encoding: "json"},
		Clock:  ClockConfig{Warp: 1},
		Engine: EngineConfig{FPS: 30},
		Feed: FeedConfig{
			Path:         "/feed",
			SendQueue:    8,
			WriteTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Camera:  []float64{0, 0, 0},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return LoadYAML(f)
}

// LoadYAML decodes YAML over the defaults and validates the result. Keys
// unknown to Config are rejected.
func LoadYAML(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and names.
func (c Config) Validate() error {
	var errs []error
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Encoding {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log encoding %q", c.Log.Encoding))
	}
	if math.IsNaN(c.Clock.Warp) || math.IsInf(c.Clock.Warp, 0) || c.Clock.Warp < 0 || c.Clock.Warp > simclock.MaxWarp {
		errs = append(errs, fmt.Errorf("clock warp %v", c.Clock.Warp))
	}
	if c.Engine.FPS <= 0 || c.Engine.FPS > 1000 {
		errs = append(errs, fmt.Errorf("engine fps %d", c.Engine.FPS))
	}
	if !strings.HasPrefix(c.Feed.Path, "/") {
		errs = append(errs, fmt.Errorf("feed path %q", c.Feed.Path))
	}
	if c.Feed.SendQueue <= 0 {
		errs = append(errs, fmt.Errorf("feed send queue %d", c.Feed.SendQueue))
	}
	if c.Feed.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("feed write timeout %v", c.Feed.WriteTimeout))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr is empty"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics path %q", c.Metrics.Path))
	}
	if c.Metrics.Enabled && c.Metrics.Path == c.Feed.Path {
		errs = append(errs, fmt.Errorf("metrics and feed share path %q", c.Feed.Path))
	}
	for name := range c.Toggles {
		if _, err := scene.ParseComponentType(name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.Camera) != 3 {
		errs = append(errs, fmt.Errorf("camera needs 3 components, got %d", len(c.Camera)))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoggerConfig converts the log section for the logger constructor.
func (c Config) LoggerConfig() log.Config {
	level, _ := log.ParseLevel(c.Log.Level)
	return log.Config{Level: level, Encoding: c.Log.Encoding, Development: c.Log.Development}
}

// SceneToggles applies the toggles section over the all-on default.
func (c Config) SceneToggles() scene.Toggles {
	t := scene.NewToggles()
	for name, on := range c.Toggles {
		if ct, err := scene.ParseComponentType(name); err == nil {
			t.Set(ct, on)
		}
	}
	return t
}

// StartTime is the configured start, or now when unset.
func (c Config) StartTime(now time.Time) time.Time {
	if c.Clock.Start.IsZero() {
		return now.UTC()
	}
	return c.Clock.Start.UTC()
}
