// Package config loads the YAML configuration of the loadgate server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/scene"
)

// Config is the root configuration
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Gate        GateConfig        `yaml:"gate"`
	Assets      AssetsConfig      `yaml:"assets"`
	Scenes      []SceneConfig     `yaml:"scenes"`
	Breakpoints scene.Breakpoints `yaml:"breakpoints"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LogConfig configures the telemetry logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GateConfig configures every barrier the server creates
type GateConfig struct {
	Variant       core.Variant       `yaml:"variant"`
	FailurePolicy core.FailurePolicy `yaml:"failure_policy"`
	SettleWindow  time.Duration      `yaml:"settle_window"`
	StallInterval time.Duration      `yaml:"stall_interval"`
}

// Barrier returns the barrier configuration
func (g GateConfig) Barrier() core.BarrierConfig {
	return core.BarrierConfig{
		Variant:       g.Variant,
		FailurePolicy: g.FailurePolicy,
		SettleWindow:  g.SettleWindow,
		StallInterval: g.StallInterval,
	}
}

// AssetsConfig configures shader fetching
type AssetsConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	// BaseURL resolves relative shader paths. Empty means the server itself.
	BaseURL string `yaml:"base_url"`
}

// SceneConfig names the shaders of one canvas
type SceneConfig struct {
	Name    string            `yaml:"name"`
	Shaders map[string]string `yaml:"shaders"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	StaticDir       string        `yaml:"static_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"`
}

// Defaults returns the configuration used for absent keys
func Defaults() Config {
	barrier := core.DefaultBarrierConfig()
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Gate: GateConfig{
			Variant:       barrier.Variant,
			FailurePolicy: barrier.FailurePolicy,
			SettleWindow:  barrier.SettleWindow,
			StallInterval: barrier.StallInterval,
		},
		Assets: AssetsConfig{Concurrency: 4, Timeout: 10 * time.Second},
		Scenes: []SceneConfig{
			{Name: "intro", Shaders: map[string]string{
				"simple.vert": "/glsl/simple.vert.glsl",
				"intro.frag":  "/glsl/intro.frag.glsl",
			}},
			{Name: "nwa", Shaders: map[string]string{
				"nwa.frag": "/glsl/nwa.frag.glsl",
				"nwa.vert": "/glsl/nwa.vert.glsl",
			}},
		},
		Breakpoints: slices.Clone(scene.DefaultBreakpoints),
		Server: ServerConfig{
			Addr:            ":8080",
			StaticDir:       "public",
			ShutdownTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true, Namespace: "loadgate", Path: "/metrics"},
	}
}

// Load reads the YAML file at path over the defaults and validates it.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Defaults()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Defaults()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be json or console, got %q", c.Log.Format))
	}

	if !c.Gate.Variant.Valid() {
		errs = append(errs, fmt.Errorf("gate.variant: unknown variant %q", c.Gate.Variant))
	}
	if !c.Gate.FailurePolicy.Valid() {
		errs = append(errs, fmt.Errorf("gate.failure_policy: unknown policy %q", c.Gate.FailurePolicy))
	}
	if c.Gate.SettleWindow < 0 {
		errs = append(errs, errors.New("gate.settle_window: must not be negative"))
	}
	if c.Gate.StallInterval < 0 {
		errs = append(errs, errors.New("gate.stall_interval: must not be negative"))
	}

	if c.Assets.Concurrency < 0 {
		errs = append(errs, errors.New("assets.concurrency: must not be negative"))
	}
	if c.Assets.Timeout < 0 {
		errs = append(errs, errors.New("assets.timeout: must not be negative"))
	}

	names := make(map[string]bool, len(c.Scenes))
	for i, s := range c.Scenes {
		switch {
		case s.Name == "":
			errs = append(errs, fmt.Errorf("scenes[%d]: name is required", i))
		case names[s.Name]:
			errs = append(errs, fmt.Errorf("scenes[%d]: duplicate name %q", i, s.Name))
		}
		names[s.Name] = true
	}

	for i, b := range c.Breakpoints {
		if b.Class == "" || b.MaxWidth <= 0 {
			errs = append(errs, fmt.Errorf("breakpoints[%d]: class and positive max_width are required", i))
		}
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr: is required"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path: must start with /, got %q", c.Metrics.Path))
	}

	return errors.Join(errs...)
}
