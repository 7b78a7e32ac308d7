// Package report writes the YAML run report next to the cleaned PDFs.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/book-expert/pdf-watermark-remover/internal/model"
)

// ErrRunIDRequired is returned when the summary has no run ID.
var ErrRunIDRequired = errors.New("run id is required")

const (
	defaultDirMode  = 0o750
	defaultFileMode = 0o644
)

// Run is the report document.
type Run struct {
	Summary   model.Summary          `yaml:"summary"`
	Documents []model.DocumentResult `yaml:"documents"`
}

// FileName is the report file name for a run.
func FileName(runID string) string {
	return "report_" + runID + ".yaml"
}

// Write stores the run as report_<runID>.yaml in dir and returns its path.
func Write(dir string, run Run) (string, error) {
	if run.Summary.RunID == "" {
		return "", ErrRunIDRequired
	}

	if mkdirErr := os.MkdirAll(dir, defaultDirMode); mkdirErr != nil {
		return "", fmt.Errorf("creating report directory: %w", mkdirErr)
	}

	data, marshalErr := yaml.Marshal(run)
	if marshalErr != nil {
		return "", fmt.Errorf("marshaling report: %w", marshalErr)
	}

	path := filepath.Join(dir, FileName(run.Summary.RunID))
	if writeErr := os.WriteFile(path, data, defaultFileMode); writeErr != nil {
		return "", fmt.Errorf("writing report: %w", writeErr)
	}

	return path, nil
}

// Read loads a report written by Write.
func Read(path string) (Run, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return Run{}, fmt.Errorf("reading report: %w", readErr)
	}

	var run Run
	if unmarshalErr := yaml.Unmarshal(data, &run); unmarshalErr != nil {
		return Run{}, fmt.Errorf("parsing report %s: %w", path, unmarshalErr)
	}

	return run, nil
}
