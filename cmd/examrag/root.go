package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"examrag/internal/config"
	"examrag/internal/logger"
	"examrag/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	logLevel   string
	tuningFile string
)

var rootCmd = &cobra.Command{
	Use:           "examrag",
	Short:         "Ingest exam papers and syllabi into a searchable corpus",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if tuningFile != "" {
			os.Setenv("TUNING_FILE", tuningFile)
		}
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		logger.Init(loaded.LogLevel, loaded.LogFormat)
		for _, w := range loaded.Warnings() {
			logger.Warn(w)
		}
		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "YAML tuning file; overrides TUNING_FILE")
}

// withDeps builds the shared components, runs fn with an interruptible
// context and closes the components afterwards.
func withDeps(cmd *cobra.Command, fn func(ctx context.Context, d *pipeline.Deps) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	d, err := pipeline.NewDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
