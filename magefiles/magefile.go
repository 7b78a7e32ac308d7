//go:build mage

// Package main contains Mage build targets for watermark-remover.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	cmdRoot = "./cmd"
)

// binaries maps each binary name to its package.
var binaries = map[string]string{
	"watermark-remover": cmdRoot + "/watermark-remover",
	"detect-blank":      cmdRoot + "/detect-blank",
}

// projectDirs lists the working directories the default configuration uses.
var projectDirs = []string{"processed_pdfs", "logs"}

// Default target when mage runs without arguments.
var Default = Build

// Init creates the default working directories.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}

		fmt.Println("  ", dir)
	}

	return nil
}

// Build compiles every binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}

	version, _ := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if version == "" {
		version = "dev"
	}

	for name, pkg := range binaries {
		out := filepath.Join(binDir, name)

		if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, pkg); err != nil {
			return fmt.Errorf("go build %s: %w", pkg, err)
		}

		fmt.Printf("Built %s\n", out)
	}

	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Lint runs go vet and golangci-lint.
func Lint() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}

	return sh.RunV("golangci-lint", "run", "./...")
}

// Check runs lint and tests.
func Check() {
	mg.SerialDeps(Lint, Test)
}

// Clean removes build output.
func Clean() error {
	return sh.Rm(binDir)
}
