// Package blank decides whether a rendered page image carries any content.
package blank

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // Register the JPEG decoder.
	_ "image/png"  // Register the PNG decoder.
	"os"
)

var (
	// ErrInvalidFuzzPercent is returned for a fuzz outside 0..100.
	ErrInvalidFuzzPercent = errors.New("fuzz percentage must be between 0 and 100")
	// ErrInvalidThreshold is returned for a threshold outside 0.0..1.0.
	ErrInvalidThreshold = errors.New("non-white threshold must be between 0.0 and 1.0")
	// ErrImageZeroPixels is returned for an empty image.
	ErrImageZeroPixels = errors.New("image has zero pixels")
)

const (
	percentToRatio = 100.0
	maxColorValue  = 255.0
	bitsToShift    = 8
)

// Result is the outcome of analysing one image.
type Result struct {
	NonWhitePixels int
	TotalPixels    int
	NonWhiteRatio  float64
	Blank          bool
}

// Analyze counts the pixels that are darker than white by more than fuzzPercent
// and reports the image blank when their share is below threshold.
func Analyze(img image.Image, fuzzPercent int, threshold float64) (Result, error) {
	if fuzzPercent < 0 || fuzzPercent > 100 {
		return Result{}, fmt.Errorf("got %d: %w", fuzzPercent, ErrInvalidFuzzPercent)
	}

	if threshold < 0 || threshold > 1.0 {
		return Result{}, fmt.Errorf("got %f: %w", threshold, ErrInvalidThreshold)
	}

	bounds := img.Bounds()

	totalPixels := bounds.Dx() * bounds.Dy()
	if totalPixels == 0 {
		return Result{}, ErrImageZeroPixels
	}

	fuzzFactor := float64(fuzzPercent) / percentToRatio
	nonWhite := countNonWhitePixels(img, fuzzFactor)
	ratio := float64(nonWhite) / float64(totalPixels)

	return Result{
		NonWhitePixels: nonWhite,
		TotalPixels:    totalPixels,
		NonWhiteRatio:  ratio,
		Blank:          ratio < threshold,
	}, nil
}

// AnalyzeFile decodes the image at path and runs Analyze on it.
func AnalyzeFile(path string, fuzzPercent int, threshold float64) (Result, error) {
	img, loadErr := loadImage(path)
	if loadErr != nil {
		return Result{}, loadErr
	}

	return Analyze(img, fuzzPercent, threshold)
}

func loadImage(filePath string) (image.Image, error) {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return nil, fmt.Errorf("could not open file %s: %w", filePath, openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	img, _, decodeErr := image.Decode(file)
	if decodeErr != nil {
		return nil, fmt.Errorf("could not decode image file %s: %w", filePath, decodeErr)
	}

	return img, nil
}

func countNonWhitePixels(img image.Image, fuzzFactor float64) int {
	nonWhiteCount := 0
	whiteThreshold := uint32((1.0 - fuzzFactor) * maxColorValue)

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if isNonWhite(img.At(x, y), whiteThreshold) {
				nonWhiteCount++
			}
		}
	}

	return nonWhiteCount
}

// isNonWhite compares the 8-bit channels of c against whiteThreshold.
func isNonWhite(c color.Color, whiteThreshold uint32) bool {
	r, g, b, _ := c.RGBA()
	r8, g8, b8 := r>>bitsToShift, g>>bitsToShift, b>>bitsToShift

	return r8 < whiteThreshold || g8 < whiteThreshold || b8 < whiteThreshold
}
