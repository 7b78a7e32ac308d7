package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-watermark-remover/internal/config"
)

func subcommand(t *testing.T, name string) *cobra.Command {
	t.Helper()

	cmd, _, findErr := newRootCommand().Find([]string{name})
	require.NoError(t, findErr)
	require.Equal(t, name, cmd.Name())

	return cmd
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func testApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()

	log, err := logger.New(t.TempDir(), "t.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return &app{cfg: cfg, log: log}
}

// TestNewApp_FlagsOverrideConfig verifies that flags the user set win over the
// file, and that unset flags leave file values alone.
func TestNewApp_FlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	logsDir := t.TempDir()
	cfgFile := writeConfig(t, `
[paths]
output_dir = "/config/out"
logs_dir = "`+logsDir+`"

[render]
dpi = 200
workers = 3
`)

	cmd := subcommand(t, "process")
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", cfgFile,
		"--dpi", "150",
		"--output", "/flag/out",
		"--keep-failed",
		"--document-delay", "9s",
	}))

	application, appErr := newApp(cmd)
	require.NoError(t, appErr)

	defer application.close()

	assert.Equal(t, 150, application.cfg.Render.DPI)
	assert.Equal(t, 3, application.cfg.Render.Workers)
	assert.Equal(t, "/flag/out", application.cfg.Paths.OutputDir)
	assert.True(t, application.cfg.Assemble.KeepFailedPages)
	assert.Equal(t, 9*time.Second, application.cfg.Service.DocumentDelay.Duration)
	assert.True(t, application.cfg.Browser.Headless)

	entries, readErr := os.ReadDir(logsDir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestNewApp_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfgFile := writeConfig(t, `
[paths]
logs_dir = "`+t.TempDir()+`"

[render]
dpi = 300
`)

	cmd := subcommand(t, "rasterize")
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgFile, "--backend", "imagemagick"}))

	_, appErr := newApp(cmd)
	require.ErrorIs(t, appErr, config.ErrInvalidConfig)
}

func TestConfigPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rootConfig := filepath.Join(root, "project.toml")
	require.NoError(t, os.WriteFile(rootConfig, []byte("[render]\ndpi = 200\n"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o750))

	nested := filepath.Join(root, "books", "2026")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	t.Run("Found at the project root", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, rootConfig, configPath(subcommand(t, "process"), nested))
	})

	t.Run("Flag wins", func(t *testing.T) {
		t.Parallel()

		cmd := subcommand(t, "process")
		require.NoError(t, cmd.ParseFlags([]string{"--config", "/etc/wm.toml"}))
		assert.Equal(t, "/etc/wm.toml", configPath(cmd, nested))
	})
}

// TestNewApp_AssembleOutputIsAFile verifies that assemble --output names the
// PDF and leaves paths.output_dir alone.
func TestNewApp_AssembleOutputIsAFile(t *testing.T) {
	t.Parallel()

	cfgFile := writeConfig(t, `
[paths]
output_dir = "/config/out"
logs_dir = "`+t.TempDir()+`"
`)

	cmd := subcommand(t, "assemble")
	require.NoError(t, cmd.ParseFlags([]string{"--config", cfgFile, "--output", "/tmp/book.pdf"}))

	application, appErr := newApp(cmd)
	require.NoError(t, appErr)

	defer application.close()

	assert.Equal(t, "/config/out", application.cfg.Paths.OutputDir)
	assert.Equal(t, "/tmp/book.pdf", assembledPath(cmd, application.cfg.Paths.OutputDir))
}

func TestInputPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		args     []string
		fallback string
		want     string
		wantErr  error
	}{
		{name: "Argument wins", args: []string{"book.pdf"}, fallback: "in", want: "book.pdf"},
		{name: "Configured input dir", args: nil, fallback: "in", want: "in"},
		{name: "Nothing to process", args: nil, fallback: "", wantErr: ErrInputRequired},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := inputPath(tc.args, tc.fallback)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAssembleInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	images, sorted, err := assembleInputs([]string{dir})
	require.NoError(t, err)
	assert.True(t, sorted)
	assert.Equal(t, []string{filepath.Join(dir, "a.jpg"), filepath.Join(dir, "b.png")}, images)

	files := []string{"z.png", "a.png"}
	images, sorted, err = assembleInputs(files)
	require.NoError(t, err)
	assert.False(t, sorted)
	assert.Equal(t, files, images)

	_, _, err = assembleInputs([]string{t.TempDir()})
	require.Error(t, err)
}

func TestAssembledPath(t *testing.T) {
	t.Parallel()

	cmd := subcommand(t, "assemble")
	assert.Equal(t, filepath.Join("out", "assembled.pdf"), assembledPath(cmd, "out"))

	require.NoError(t, cmd.ParseFlags([]string{"--output", "/tmp/book.pdf"}))
	assert.Equal(t, "/tmp/book.pdf", assembledPath(cmd, "out"))
}

func TestPipelineOptions(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Paths.OutputDir = "/out"
	cfg.BlankDetection.Enabled = true
	cfg.History.Enabled = false
	cfg.History.SkipProcessed = true
	cfg.Service.DocumentDelay.Duration = 7 * time.Second

	opts := testApp(t, cfg).pipelineOptions(pipelineMode{notify: false, writeReport: true})

	assert.Equal(t, "/out", opts.OutputDir)
	assert.Equal(t, "NoWatermark_", opts.OutputPrefix)
	assert.Equal(t, 7*time.Second, opts.DocumentDelay)
	assert.True(t, opts.PassThroughBlank)
	assert.True(t, opts.WriteReport)
	assert.False(t, opts.SkipProcessed, "skipping needs the history store")
}

func TestCoordinator_WiresHistory(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.HistoryDB = filepath.Join(t.TempDir(), "history.db")

	coordinator, release, err := testApp(t, cfg).coordinator(pipelineMode{notify: true, writeReport: false})
	require.NoError(t, err)
	require.NoError(t, release())
	assert.NotEmpty(t, coordinator.RunID())
	assert.FileExists(t, cfg.Paths.HistoryDB)
}

func TestCoordinator_UnreachableNATS(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.History.Enabled = false
	cfg.NATS.URL = "nats://127.0.0.1:1"

	_, _, err := testApp(t, cfg).coordinator(pipelineMode{notify: true, writeReport: false})
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	rootCmd := newRootCommand()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "watermark-remover dev\n", out.String())
}
