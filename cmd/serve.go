package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kamusis/greyhound/internal/loader"
	"github.com/kamusis/greyhound/internal/server"
	"github.com/kamusis/greyhound/internal/sketch"
)

// serveFlags holds flag values for the `greyhound serve` command.
type serveFlags struct {
	ksize    uint32
	scaled   uint64
	fromFile bool
	preload  bool
	listen   string
}

var flagServe serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve <index_path>",
	Short: "Serve gather and search for single queries over HTTP",
	Long: `Load one index and answer POST /gather and POST /search until
interrupted. GET /health reports liveness and GET /metrics exposes
Prometheus metrics.

<index_path> is a saved index, or with --from-file a list of signature
paths to index at startup (which requires --ksize/--scaled or config).`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	f := &flagServe
	templateFlags(serveCmd, &f.ksize, &f.scaled)
	serveCmd.Flags().BoolVar(&f.fromFile, "from-file", false, "Treat <index_path> as a list of signature paths")
	serveCmd.Flags().BoolVar(&f.preload, "preload", true, "Keep every reference sketch in memory")
	serveCmd.Flags().StringVarP(&f.listen, "listen", "l", server.DefaultConfig().Listen, "Address to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger()
	f := flagServe
	if !cmd.Flags().Changed("listen") {
		f.listen = cfg.Listen
	}

	// A saved index carries its own template; only check it when asked.
	tpl := resolveTemplate(cmd, cfg, f.ksize, f.scaled)
	if !f.fromFile && !cmd.Flags().Changed("ksize") && !cmd.Flags().Changed("scaled") {
		tpl = sketch.Template{}
	}

	ri, err := loader.Load(args[0], loader.Options{
		Mode:     loader.ModeFor(f.fromFile, f.preload),
		Template: tpl,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	log.Infof("serving %d datasets (%s)", ri.Len(), ri.Template())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scfg := server.DefaultConfig()
	scfg.Listen = f.listen
	h := server.NewHandler(server.NewService(ri, log.WithPrefix("[service] ")), log.WithPrefix("[http] "))
	return server.New(scfg, h, log).ListenAndServe(ctx)
}
