// Package main is the entry point for the watermark-remover CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/pdf-watermark-remover/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

const defaultConfigFile = "project.toml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "watermark-remover",
		Short: "Remove watermarks from PDF pages through a web removal service",
		Long: `watermark-remover rasterizes PDF pages, submits every page image to a
watermark removal web service through an automated Chrome session and
reassembles the cleaned images into a new PDF.

Each stage is also available on its own: rasterize, clean and assemble.
The worker subcommand runs the same pipeline for PDFs announced on NATS.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", defaultConfigFile,
		"TOML configuration file (default: project.toml at the project root)")
	rootCmd.PersistentFlags().String("logs-dir", "", "directory for log files")

	rootCmd.AddCommand(
		newProcessCommand(),
		newRasterizeCommand(),
		newCleanCommand(),
		newAssembleCommand(),
		newHistoryCommand(),
		newWorkerCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

// app is the resolved configuration and logger shared by the subcommands.
type app struct {
	cfg *config.Config
	log *logger.Logger
}

// newApp resolves the configuration for cmd (file, environment, then the
// flags the user set) and opens a log file in the configured logs directory.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, resolveErr := config.Resolve(configPath(cmd, "."), cmd.Flags())
	if resolveErr != nil {
		return nil, fmt.Errorf("could not load configuration: %w", resolveErr)
	}

	log, logErr := setupLogger(cfg.Paths.LogsDir)
	if logErr != nil {
		return nil, fmt.Errorf("could not set up logger: %w", logErr)
	}

	return &app{cfg: cfg, log: log}, nil
}

// configPath is --config when the user set it, else the project.toml found by
// walking up from startDir, else project.toml in the working directory.
func configPath(cmd *cobra.Command, startDir string) string {
	if flag := cmd.Flags().Lookup("config"); flag != nil && flag.Changed {
		return flag.Value.String()
	}

	_, found, findErr := configurator.FindProjectRoot(startDir)
	if findErr != nil || found == "" {
		return defaultConfigFile
	}

	return found
}

func (application *app) close() {
	if closeErr := application.log.Close(); closeErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
	}
}

// setupLogger creates a timestamped log file in logDir.
func setupLogger(logDir string) (*logger.Logger, error) {
	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("20060102_150405"))

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}
