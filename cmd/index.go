package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/greyhound/internal/loader"
	"github.com/kamusis/greyhound/internal/revindex"
)

var (
	flagIndexKSize  uint32
	flagIndexScaled uint64
)

var indexCmd = &cobra.Command{
	Use:   "index <output> <siglist>",
	Short: "Build an index from a list of signature files and save it",
	Long: `Read every signature path listed in <siglist>, index the sketch matching
--ksize/--scaled, and write the index to <output>. Signatures without a
matching sketch are skipped with a warning.`,
	Args: cobra.ExactArgs(2),
	RunE: runIndex,
}

func init() {
	templateFlags(indexCmd, &flagIndexKSize, &flagIndexScaled)
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	output, siglist := args[0], args[1]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()
	tpl := resolveTemplate(cmd, cfg, flagIndexKSize, flagIndexScaled)

	start := time.Now()
	paths, err := loader.ReadPaths(siglist)
	if err != nil {
		return fmt.Errorf("%w: %w", loader.ErrIndexLoad, err)
	}
	log.Infof("loaded %d sig paths in siglist", len(paths))

	ri, err := revindex.Build(paths, tpl, revindex.BuildOptions{Logger: log})
	if err != nil {
		return fmt.Errorf("%w: %w", loader.ErrIndexLoad, err)
	}
	if err := ri.Save(output); err != nil {
		return fmt.Errorf("cannot save index: %w", err)
	}

	printSection("Index")
	printOK("", fmt.Sprintf("%d datasets (%s) written to %s", ri.Len(), tpl, output))
	if skipped := len(paths) - ri.Len(); skipped > 0 {
		printSkip("", fmt.Sprintf("%d signatures without a %s sketch", skipped, tpl))
	}
	printInfo("", fmt.Sprintf("took %s", time.Since(start).Round(time.Millisecond)))
	return nil
}
