// Package cli wires the aviation-risk commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kartoza/aviation-risk/internal/config"
	"github.com/kartoza/aviation-risk/internal/logger"
)

// WindowFunc opens a desktop window on url and blocks until the window is
// closed or done is closed
type WindowFunc func(title, url string, done <-chan struct{}) error

// NewRootCommand builds the command tree. openWindow may be nil, in which
// case serve always runs headless.
func NewRootCommand(version string, openWindow WindowFunc) *cobra.Command {
	d := config.Defaults()

	root := &cobra.Command{
		Use:           "aviation-risk",
		Short:         "Aviation incident risk assessment",
		Long:          "Scores a single flight scenario for incident risk and explains the score with its strongest contributing features.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("artifact", d.ArtifactPath, "Path to the fitted pipeline artifact (JSON definition or model pack)")
	pf.String("name-mode", d.NameMode, "Feature name resolution: legacy or structured")
	pf.String("log-level", d.LogLevel, "Log level: debug, info, warn, error, disabled")
	pf.Bool("log-console", d.LogConsole, "Human readable console logs instead of JSON")

	root.AddCommand(
		newServeCommand(version, openWindow),
		newScoreCommand(version),
		newPackCommand(version),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure
func Execute(version string, openWindow WindowFunc) {
	if err := NewRootCommand(version, openWindow).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves flags, environment and defaults for a command and
// initialises logging
func loadConfig(cmd *cobra.Command, version string) (config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(v, version)
	if err != nil {
		return config.Config{}, err
	}
	logger.Init(cfg.LogLevel, cfg.LogConsole)
	return cfg, nil
}
