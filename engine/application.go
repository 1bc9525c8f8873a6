package engine

import (
	"errors"
	"io/fs"

	"github.com/spaghettifunk/tempo/engine/config"
	"github.com/spaghettifunk/tempo/engine/core"
)

type ApplicationConfig struct {
	// Path of the TOML settings file. Empty runs on the settings given and
	// disables hot reload.
	ConfigPath string
	Settings   *config.Config
}

// LoadApplicationConfig reads the settings at path. A missing file falls
// back to the defaults and is still watched, so creating it later applies
// the new values.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	settings, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("config file %s not found, using defaults", path)
		return &ApplicationConfig{ConfigPath: path, Settings: config.Default()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &ApplicationConfig{ConfigPath: path, Settings: settings}, nil
}
