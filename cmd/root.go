package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/greyhound/internal/config"
	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/sketch"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:          "greyhound",
	Short:        "Greyhound: fast gather and search over scaled MinHash signatures",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `Greyhound indexes reference signatures by hash and decomposes query
signatures into the references that explain them.

Defaults come from ~/.greyhound/config.yaml, GREYHOUND_* environment
variables and ~/.greyhound/.env, in increasing priority; flags override all.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.greyhound/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug messages")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger returns the stderr logger for the current verbosity.
func newLogger() logger.Logger {
	if flagVerbose {
		return logger.NewVerboseLogger(os.Stderr)
	}
	return logger.NewStandardLogger(os.Stderr)
}

// loadConfig resolves file, environment and defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	return cfg, nil
}

// templateFlags registers --ksize and --scaled on c.
func templateFlags(c *cobra.Command, ksize *uint32, scaled *uint64) {
	c.Flags().Uint32VarP(ksize, "ksize", "k", 31, "k-mer size of the sketches to use")
	c.Flags().Uint64VarP(scaled, "scaled", "s", 1000, "scaled factor of the sketches to use")
}

// resolveTemplate combines flag values with cfg, preferring flags the user
// set explicitly.
func resolveTemplate(c *cobra.Command, cfg *config.Config, ksize uint32, scaled uint64) sketch.Template {
	if !c.Flags().Changed("ksize") {
		ksize = cfg.KSize
	}
	if !c.Flags().Changed("scaled") {
		scaled = cfg.Scaled
	}
	return sketch.NewTemplate(ksize, scaled)
}
