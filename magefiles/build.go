//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Tidies the module and builds the testbed binary into bin/.
func (Build) Engine() error {
	if err := goModTidy(); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/tempo", "."), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs the unit tests. None of them need a GPU.
func (Test) Unit() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
