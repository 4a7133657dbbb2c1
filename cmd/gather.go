package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/greyhound/internal/dispatch"
	"github.com/kamusis/greyhound/internal/loader"
	"github.com/kamusis/greyhound/internal/results"
	"github.com/kamusis/greyhound/internal/sketch"
	"github.com/kamusis/greyhound/internal/threshold"
)

// gatherFlags holds flag values for the `greyhound gather` command.
type gatherFlags struct {
	ksize       uint32
	scaled      uint64
	thresholdBP uint64
	output      string
	fromFile    bool
	lazy        bool
	preload     bool
	workers     int
}

var flagGather gatherFlags

var gatherCmd = &cobra.Command{
	Use:   "gather <query_path> <siglist>",
	Short: "Run gather for every query in a list against one shared index",
	Long: `Decompose every query signature listed in <query_path> into reference
datasets and write one result file per query under --output.

<siglist> is a saved index, or with --from-file a list of signature paths
to index in memory. Queries are read up front unless --lazy is given (and
always when --from-file is set), which lets the index keep only what the
queries can match.`,
	Args: cobra.ExactArgs(2),
	RunE: runGather,
}

func init() {
	f := &flagGather
	templateFlags(gatherCmd, &f.ksize, &f.scaled)
	gatherCmd.Flags().Uint64VarP(&f.thresholdBP, "threshold_bp", "t", 50000, "Minimum base pairs a match must explain")
	gatherCmd.Flags().StringVarP(&f.output, "output", "o", results.DefaultDir, "Directory for per-query results")
	gatherCmd.Flags().BoolVar(&f.fromFile, "from-file", false, "Treat <siglist> as a list of signature paths instead of a saved index")
	gatherCmd.Flags().BoolVar(&f.lazy, "lazy", false, "Read query signatures in the workers instead of up front")
	gatherCmd.Flags().BoolVar(&f.preload, "preload", false, "Keep every reference sketch in memory")
	gatherCmd.Flags().IntVarP(&f.workers, "workers", "j", 0, "Concurrent queries (default: number of CPUs)")
	rootCmd.AddCommand(gatherCmd)
}

func runGather(cmd *cobra.Command, args []string) error {
	queryList, siglist := args[0], args[1]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()
	f := flagGather
	tpl := resolveTemplate(cmd, cfg, f.ksize, f.scaled)
	if !cmd.Flags().Changed("threshold_bp") {
		f.thresholdBP = cfg.ThresholdBP
	}
	if !cmd.Flags().Changed("output") {
		f.output = cfg.Output
	}
	if !cmd.Flags().Changed("workers") {
		f.workers = cfg.Workers
	}

	start := time.Now()
	queryPaths, err := loader.ReadPaths(queryList)
	if err != nil {
		return err
	}
	log.Infof("loaded %d query paths", len(queryPaths))

	var (
		queries     []dispatch.Query
		loadFailed  []dispatch.Failure
		querySketch []*sketch.Sketch
		minHashes   uint64
	)
	if !f.lazy || f.fromFile {
		queries, loadFailed = dispatch.LoadQueries(queryPaths, tpl)
		for _, fail := range loadFailed {
			log.Errorf("cannot load query %s: %v", fail.Path, fail.Err)
		}
		querySketch = dispatch.Sketches(queries)
		minHashes = threshold.Min(f.thresholdBP, querySketch)
		log.Infof("loaded %d query signatures (min threshold %d hashes)", len(queries), minHashes)
	} else {
		queries = dispatch.LazyQueries(queryPaths)
	}

	mode := loader.ModeFor(f.fromFile, f.preload)
	ri, err := loader.Load(siglist, loader.Options{
		Mode:      mode,
		Template:  tpl,
		Threshold: minHashes,
		Queries:   querySketch,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := &results.Writer{Dir: f.output}
	d := &dispatch.Dispatcher{
		Index:       ri,
		Template:    ri.Template(),
		ThresholdBP: f.thresholdBP,
		Workers:     f.workers,
		Sink:        sink,
		Logger:      log,
	}
	report := d.Run(ctx, queries)
	report.Failed = append(loadFailed, report.Failed...)

	printSection("Gather")
	for _, s := range report.Skipped {
		printSkip(filepath.Base(s), "query sketch is empty")
	}
	for _, fail := range report.Failed {
		printErr(filepath.Base(fail.Path), fail.Err.Error())
	}
	printOK("", fmt.Sprintf("%d processed, %d skipped, %d failed (%s, %s)",
		len(report.Processed), len(report.Skipped), len(report.Failed), mode, ri.Template()))
	printInfo("", fmt.Sprintf("results in %s, took %s", sink.Dir, time.Since(start).Round(time.Millisecond)))
	return report.Err()
}
