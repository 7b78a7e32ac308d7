package assemble

import (
	"fmt"
	"image"
	"os"
	"sort"
)

const (
	largeBatchMB    = 50
	largeBatchPages = 100
)

// ValidationReport summarizes a set of images before assembly.
type ValidationReport struct {
	Valid           []string
	Invalid         []string
	Missing         []string
	Sizes           []string
	Recommendations []string
	TotalMB         float64
}

// Validate checks that each path exists and decodes, and suggests fixes for
// mixed page sizes and very large batches.
func Validate(paths []string) ValidationReport {
	var report ValidationReport

	sizes := make(map[string]bool)

	var totalBytes int64

	for _, path := range paths {
		stat, statErr := os.Stat(path)
		if statErr != nil {
			report.Missing = append(report.Missing, path)

			continue
		}

		size, configErr := decodeSize(path)
		if configErr != nil {
			report.Invalid = append(report.Invalid, path)

			continue
		}

		report.Valid = append(report.Valid, path)
		sizes[size] = true
		totalBytes += stat.Size()
	}

	for size := range sizes {
		report.Sizes = append(report.Sizes, size)
	}

	sort.Strings(report.Sizes)

	report.TotalMB = float64(totalBytes) / bytesPerMB

	if len(report.Sizes) > 1 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("images have %d different sizes; pages will not be uniform", len(report.Sizes)))
	}

	if report.TotalMB > largeBatchMB {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("images total %.1f MB; consider a lower JPEG quality", report.TotalMB))
	}

	if len(report.Valid) > largeBatchPages {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d pages; consider splitting the document", len(report.Valid)))
	}

	return report
}

func decodeSize(path string) (string, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return "", openErr
	}
	defer file.Close()

	config, _, configErr := image.DecodeConfig(file)
	if configErr != nil {
		return "", configErr
	}

	return fmt.Sprintf("%dx%d", config.Width, config.Height), nil
}
