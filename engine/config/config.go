// Package config loads the engine settings from a TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/tempo/engine/core"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Application struct {
	// The application name used in windowing.
	Name string `toml:"name"`
	// Window starting position.
	PosX uint32 `toml:"pos_x"`
	PosY uint32 `toml:"pos_y"`
	// Window starting size.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Renderer struct {
	FramesInFlight int    `toml:"frames_in_flight"`
	ArenaCapacity  uint64 `toml:"arena_capacity"`
	MinAlignment   uint64 `toml:"min_alignment"`
	// Zero waits forever.
	FenceTimeoutMS int        `toml:"fence_timeout_ms"`
	PresentMode    string     `toml:"present_mode"`
	Validation     bool       `toml:"validation"`
	ClearColor     [4]float32 `toml:"clear_color"`
}

type Log struct {
	Level string `toml:"level"`
}

type Config struct {
	Application Application `toml:"application"`
	Renderer    Renderer    `toml:"renderer"`
	Log         Log         `toml:"log"`
}

func Default() *Config {
	return &Config{
		Application: Application{
			Name:   "Tempo Testbed",
			PosX:   100,
			PosY:   100,
			Width:  1280,
			Height: 720,
		},
		Renderer: Renderer{
			FramesInFlight: 2,
			ArenaCapacity:  64 * 1024,
			FenceTimeoutMS: 1000,
			PresentMode:    "mailbox",
			ClearColor:     [4]float32{0.0, 0.0, 0.2, 1.0},
		},
		Log: Log{Level: "info"},
	}
}

// Parse decodes data over the defaults. Unknown keys are rejected so a typo
// does not silently fall back to a default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strict.String())
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalidConfig, c.Application.Width, c.Application.Height)
	}
	if c.Renderer.FramesInFlight < 2 || c.Renderer.FramesInFlight > 3 {
		return fmt.Errorf("%w: frames_in_flight must be 2 or 3, got %d", ErrInvalidConfig, c.Renderer.FramesInFlight)
	}
	if c.Renderer.ArenaCapacity == 0 {
		return fmt.Errorf("%w: arena_capacity must be positive", ErrInvalidConfig)
	}
	if a := c.Renderer.MinAlignment; a&(a-1) != 0 {
		return fmt.Errorf("%w: min_alignment %d is not a power of two", ErrInvalidConfig, a)
	}
	if c.Renderer.FenceTimeoutMS < 0 {
		return fmt.Errorf("%w: fence_timeout_ms is negative", ErrInvalidConfig)
	}
	switch c.Renderer.PresentMode {
	case "fifo", "mailbox", "immediate":
	default:
		return fmt.Errorf("%w: unknown present_mode %q", ErrInvalidConfig, c.Renderer.PresentMode)
	}
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) FenceTimeout() time.Duration {
	return time.Duration(c.Renderer.FenceTimeoutMS) * time.Millisecond
}

// LogLevel assumes a validated config.
func (c *Config) LogLevel() core.LogLevel {
	level, _ := core.ParseLogLevel(c.Log.Level)
	return level
}
