package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArguments(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		asserter func(t *testing.T, result arguments, err error)
		name     string
		args     []string
	}{
		{
			name: "Valid arguments",
			args: []string{"./detect-blank", "image.png", "10", "0.1"},
			asserter: func(t *testing.T, result arguments, err error) {
				t.Helper()
				require.NoError(t, err)
				assert.Equal(t, arguments{filePath: "image.png", fuzzPercent: 10, threshold: 0.1}, result)
			},
		},
		{
			name: "Too few arguments",
			args: []string{"./detect-blank", "image.png"},
			asserter: func(t *testing.T, _ arguments, err error) {
				t.Helper()
				require.ErrorIs(t, err, ErrInvalidArguments)
			},
		},
		{
			name: "Non-numeric fuzz",
			args: []string{"./detect-blank", "image.png", "ten", "0.1"},
			asserter: func(t *testing.T, _ arguments, err error) {
				t.Helper()
				require.ErrorIs(t, err, strconv.ErrSyntax)
			},
		},
		{
			name: "Non-numeric threshold",
			args: []string{"./detect-blank", "image.png", "10", "low"},
			asserter: func(t *testing.T, _ arguments, err error) {
				t.Helper()
				require.ErrorIs(t, err, strconv.ErrSyntax)
			},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result, err := parseArguments(testCase.args)
			testCase.asserter(t, result, err)
		})
	}
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := range 10 {
		for x := range 10 {
			img.Set(x, y, c)
		}
	}

	file, err := os.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, file.Close()) })
	require.NoError(t, png.Encode(file, img))
}

func TestRunExitCodes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	whitePath := filepath.Join(dir, "white.png")
	blackPath := filepath.Join(dir, "black.png")
	writePNG(t, whitePath, color.White)
	writePNG(t, blackPath, color.Black)

	assert.Equal(t, exitCodeBlank, run([]string{"detect-blank", whitePath, "5", "0.01"}))
	assert.Equal(t, exitCodeNotBlank, run([]string{"detect-blank", blackPath, "5", "0.01"}))
	assert.Equal(t, exitCodeError, run([]string{"detect-blank", blackPath, "500", "0.01"}))
	assert.Equal(t, exitCodeError, run([]string{"detect-blank", filepath.Join(dir, "none.png"), "5", "0.01"}))
	assert.Equal(t, exitCodeError, run([]string{"detect-blank"}))
}
