package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/tempo/engine/core"
)

const sample = `
[application]
name = "demo"
width = 800
height = 600

[renderer]
frames_in_flight = 3
arena_capacity = 131072
min_alignment = 256
fence_timeout_ms = 250
present_mode = "fifo"
validation = true
clear_color = [0.1, 0.2, 0.3, 1.0]

[log]
level = "debug"
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "tempo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.Application.Name)
	assert.Equal(t, uint32(800), cfg.Application.Width)
	// Unset keys keep their defaults.
	assert.Equal(t, uint32(100), cfg.Application.PosX)
	assert.Equal(t, 3, cfg.Renderer.FramesInFlight)
	assert.Equal(t, uint64(131072), cfg.Renderer.ArenaCapacity)
	assert.Equal(t, uint64(256), cfg.Renderer.MinAlignment)
	assert.Equal(t, 250*time.Millisecond, cfg.FenceTimeout())
	assert.Equal(t, "fifo", cfg.Renderer.PresentMode)
	assert.True(t, cfg.Renderer.Validation)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1.0}, cfg.Renderer.ClearColor)
	assert.Equal(t, core.DebugLevel, cfg.LogLevel())
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"too few frames":  "[renderer]\nframes_in_flight = 1\n",
		"too many frames": "[renderer]\nframes_in_flight = 4\n",
		"zero arena":      "[renderer]\narena_capacity = 0\n",
		"odd alignment":   "[renderer]\nmin_alignment = 48\n",
		"present mode":    "[renderer]\npresent_mode = \"vsync\"\n",
		"zero window":     "[application]\nwidth = 0\n",
		"log level":       "[log]\nlevel = \"loud\"\n",
		"unknown key":     "[renderer]\nframes = 2\n",
		"bad syntax":      "[renderer\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcherReloads(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sample)

	changes := make(chan *Config, 16)
	w, err := NewWatcher(path, func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(replaceLevel(sample, "warn")), 0o644))

	// A single write can surface as several events.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.LogLevel() == core.WarnLevel {
				return
			}
		case <-timeout:
			t.Fatal("no reload after write")
		}
	}
}

func TestWatcherIgnoresInvalidEdit(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sample)

	called := 0
	w, err := NewWatcher(path, func(cfg *Config) { called++ })
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 9\n"), 0o644))
	assert.False(t, w.reload())
	assert.Equal(t, 0, called)

	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	assert.True(t, w.reload())
	assert.Equal(t, 1, called)
	assert.NoError(t, w.Close())
}

func replaceLevel(content, level string) string {
	cfg := content[:len(content)-len("level = \"debug\"\n")]
	return cfg + "level = \"" + level + "\"\n"
}
