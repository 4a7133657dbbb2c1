package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/greyhound/internal/config"
)

var flagInitForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config and .env template under ~/.greyhound",
	Long: `Create ~/.greyhound/config.yaml (or the --config path) with the built-in
defaults and ~/.greyhound/.env listing every GREYHOUND_* key. Existing files
are left alone unless --force is given for the config.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	cfgPath := flagConfig
	if cfgPath == "" {
		var err error
		if cfgPath, err = config.ConfigPath(); err != nil {
			return err
		}
	}

	printSection("Init")

	// ── 1. Write config.yaml if missing ──────────────────────────────────────
	if _, err := os.Stat(cfgPath); err == nil && !flagInitForce {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat config %s: %w", cfgPath, err)
	} else {
		if err := config.Save(cfgPath, config.DefaultConfig()); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	}

	// ── 2. Create the .env template ──────────────────────────────────────────
	if err := config.EnsureDotEnvTemplate(); err != nil {
		return err
	}
	envPath, err := config.DotEnvPath()
	if err != nil {
		return err
	}
	printOK("", fmt.Sprintf("Environment template ready: %s", envPath))
	return nil
}
