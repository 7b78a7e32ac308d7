package assemble

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp" // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

const bytesPerMB = 1024 * 1024

// imageExtensions lists the file types picked up from a folder.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".gif":  true,
	".webp": true,
}

// ListImages returns the supported images directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		return nil, fmt.Errorf("could not read directory %s: %w", dir, readErr)
	}

	var images []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			images = append(images, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(images)

	return images, nil
}

// convertToJPEG decodes src, flattens it onto white and writes an RGB JPEG.
// It returns the image's pixel size.
func convertToJPEG(src, dst string, quality int) (image.Point, error) {
	img, decodeErr := decodeImage(src)
	if decodeErr != nil {
		return image.Point{}, decodeErr
	}

	out, createErr := os.Create(dst)
	if createErr != nil {
		return image.Point{}, fmt.Errorf("could not create %s: %w", dst, createErr)
	}

	encodeErr := jpeg.Encode(out, flatten(img), &jpeg.Options{Quality: quality})
	closeErr := out.Close()

	if joined := errors.Join(encodeErr, closeErr); joined != nil {
		return image.Point{}, fmt.Errorf("could not encode %s: %w", dst, joined)
	}

	return img.Bounds().Size(), nil
}

func decodeImage(path string) (image.Image, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, openErr)
	}
	defer file.Close()

	img, _, decodeErr := image.Decode(file)
	if decodeErr != nil {
		return nil, fmt.Errorf("could not decode %s: %w", path, decodeErr)
	}

	return img, nil
}

// flatten composites img over a white background.
func flatten(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Over)

	return canvas
}
