package pdfrender

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DiscoverPDFs finds all PDF files in a directory, sorted by name.
// The match is case-insensitive and does not recurse into subdirectories.
func DiscoverPDFs(dirPath string) ([]string, error) {
	dirEntries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		return nil, fmt.Errorf(
			"could not read directory %s: %w",
			dirPath,
			readErr,
		)
	}

	var pdfPaths []string

	for _, entry := range dirEntries {
		if !entry.IsDir() &&
			strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			pdfPaths = append(pdfPaths, filepath.Join(dirPath, entry.Name()))
		}
	}

	sort.Strings(pdfPaths)

	return pdfPaths, nil
}
