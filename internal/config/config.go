// Package config loads the motiond configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/fleet-motion/core"
	"github.com/signalsfoundry/fleet-motion/internal/logging"
	"github.com/signalsfoundry/fleet-motion/model"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Controller ControllerConfig `yaml:"controller"`
	Engine     EngineConfig     `yaml:"engine"`
	Policy     PolicyConfig     `yaml:"policy"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr" validate:"required"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// ControllerConfig tunes the frame loop. A zero max_future_skew disables
// the future timestamp check.
type ControllerConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval" validate:"gt=0"`
	MaxFrameGap   time.Duration `yaml:"max_frame_gap" validate:"gte=0"`
	MaxFutureSkew time.Duration `yaml:"max_future_skew" validate:"gte=0"`
}

// EngineConfig mirrors core.EngineOptions. Zero values select the engine
// defaults.
type EngineConfig struct {
	BufferCapacity      int     `yaml:"buffer_capacity" validate:"gte=0"`
	BlendFactor         float64 `yaml:"blend_factor" validate:"gte=0,lte=1"`
	BaselineUncertainty float64 `yaml:"baseline_uncertainty_m" validate:"gte=0"`
	TeleportThresholdM  float64 `yaml:"teleport_threshold_m" validate:"gte=0"`
	StationarySpeedKmh  float64 `yaml:"stationary_speed_kmh" validate:"gte=0"`
	IntentWindow        int     `yaml:"intent_window" validate:"omitempty,gte=2"`
	UncertaintyGrowth   float64 `yaml:"uncertainty_growth" validate:"gte=0"`
}

type PolicyConfig struct {
	FullConfidence time.Duration `yaml:"full_confidence" validate:"gt=0"`
	Decay          time.Duration `yaml:"decay" validate:"gt=0"`
	MaxStale       time.Duration `yaml:"max_stale" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	engine := core.DefaultEngineOptions()
	return Config{
		Server: ServerConfig{
			GRPCAddr:    ":50051",
			MetricsAddr: ":9090",
		},
		Controller: ControllerConfig{
			FrameInterval: core.DefaultFrameInterval,
			MaxFrameGap:   core.DefaultMaxFrameGap,
			MaxFutureSkew: core.DefaultMaxFutureSkew,
		},
		Engine: EngineConfig{
			BufferCapacity:      engine.BufferCapacity,
			BlendFactor:         engine.BlendFactor,
			BaselineUncertainty: engine.BaselineUncertainty,
			TeleportThresholdM:  engine.TeleportThreshold,
			StationarySpeedKmh:  engine.StationarySpeedKmh,
			IntentWindow:        engine.IntentWindow,
			UncertaintyGrowth:   engine.UncertaintyGrowth,
		},
		Policy: PolicyConfig{
			FullConfidence: engine.Policy.FullConfidence,
			Decay:          engine.Policy.Decay,
			MaxStale:       engine.Policy.MaxStale,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates the file at path. An empty path yields Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the confidence policy.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.ConfidencePolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) ConfidencePolicy() model.ConfidencePolicy {
	return model.ConfidencePolicy{
		FullConfidence: c.Policy.FullConfidence,
		Decay:          c.Policy.Decay,
		MaxStale:       c.Policy.MaxStale,
	}
}

// EngineOptions converts the engine and policy sections for the controller.
func (c Config) EngineOptions() core.EngineOptions {
	return core.EngineOptions{
		Policy:              c.ConfidencePolicy(),
		BufferCapacity:      c.Engine.BufferCapacity,
		BlendFactor:         c.Engine.BlendFactor,
		BaselineUncertainty: c.Engine.BaselineUncertainty,
		TeleportThreshold:   c.Engine.TeleportThresholdM,
		StationarySpeedKmh:  c.Engine.StationarySpeedKmh,
		IntentWindow:        c.Engine.IntentWindow,
		UncertaintyGrowth:   c.Engine.UncertaintyGrowth,
	}
}

func (c Config) LoggerConfig() logging.Config {
	return logging.Config{Level: c.Logging.Level, Format: c.Logging.Format}
}
