//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the testbed. TEMPO_CONFIG overrides the settings file.
func (Run) Engine() error {
	mg.Deps(Build.Engine)

	config := os.Getenv("TEMPO_CONFIG")
	if config == "" {
		config = "tempo.toml"
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("bin/tempo", withArgs("-config", config), withStream()); err != nil {
		return err
	}
	return nil
}
