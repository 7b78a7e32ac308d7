// Command detect-blank analyzes a page image and exits with a code indicating
// whether the page is blank (mostly white) or carries content. It runs the same
// check the watermark remover applies before submitting a page to the service.
//
// Usage: detect-blank <filepath> <fuzz_percent> <non_white_threshold>
// - fuzz_percent: 0..100 tolerated deviation from pure white (higher = more tolerant)
// - non_white_threshold: 0.0..1.0 minimum ratio of non-white pixels to consider content
//
// Exit codes:
//
//	0 = blank image
//	1 = image has content
//	2 = error (bad args, cannot open/parse image, etc.)
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/book-expert/pdf-watermark-remover/internal/blank"
)

// ErrInvalidArguments is returned when the argument count is wrong.
var ErrInvalidArguments = errors.New("invalid number of arguments")

// arguments holds the parsed command-line arguments.
type arguments struct {
	filePath    string
	fuzzPercent int
	threshold   float64
}

const (
	exitCodeBlank    = 0
	exitCodeNotBlank = 1
	exitCodeError    = 2

	expectedArgCount = 4
)

func main() {
	os.Exit(run(os.Args))
}

// run returns the process exit code for the given argv.
func run(argv []string) int {
	args, parseErr := parseArguments(argv)
	if parseErr != nil {
		fmt.Fprintf(os.Stderr, "Argument error: %v\n", parseErr)

		return exitCodeError
	}

	result, analyzeErr := blank.AnalyzeFile(args.filePath, args.fuzzPercent, args.threshold)
	if analyzeErr != nil {
		fmt.Fprintf(os.Stderr, "Image analysis error: %v\n", analyzeErr)

		return exitCodeError
	}

	if result.Blank {
		return exitCodeBlank
	}

	return exitCodeNotBlank
}

// parseArguments converts argv into arguments. Range checks are left to the
// blank package.
func parseArguments(argv []string) (arguments, error) {
	if len(argv) != expectedArgCount {
		return arguments{}, fmt.Errorf(
			"expected 3 arguments, but got %d. Usage: <program> <filepath> <fuzz_percent> <threshold>: %w",
			len(argv)-1,
			ErrInvalidArguments,
		)
	}

	fuzzPercent, fuzzErr := strconv.Atoi(argv[2])
	if fuzzErr != nil {
		return arguments{}, fmt.Errorf("invalid fuzz percentage '%s': %w", argv[2], fuzzErr)
	}

	threshold, thresholdErr := strconv.ParseFloat(argv[3], 64)
	if thresholdErr != nil {
		return arguments{}, fmt.Errorf("invalid non-white threshold '%s': %w", argv[3], thresholdErr)
	}

	return arguments{
		filePath:    argv[1],
		fuzzPercent: fuzzPercent,
		threshold:   threshold,
	}, nil
}
