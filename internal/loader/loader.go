// Package loader turns a reference collection into a queryable index using
// one of four strategies: build from a signature list or load a serialized
// index, each either preloading dataset sketches or paging them in lazily.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/revindex"
	"github.com/kamusis/greyhound/internal/sketch"
)

// ErrIndexLoad wraps every loading failure.
var ErrIndexLoad = errors.New("couldn't load the index")

// Mode selects a loading strategy.
type Mode int

const (
	BuildPreload Mode = iota
	BuildLazy
	LoadPreload
	LoadLazy
)

// ModeFor maps the --from-file and --preload flags to a Mode.
func ModeFor(fromFile, preload bool) Mode {
	switch {
	case fromFile && preload:
		return BuildPreload
	case fromFile:
		return BuildLazy
	case preload:
		return LoadPreload
	default:
		return LoadLazy
	}
}

// FromFile reports whether the source is a signature list.
func (m Mode) FromFile() bool { return m == BuildPreload || m == BuildLazy }

// Preload reports whether dataset sketches are read up front.
func (m Mode) Preload() bool { return m == BuildPreload || m == LoadPreload }

func (m Mode) String() string {
	switch m {
	case BuildPreload:
		return "build+preload"
	case BuildLazy:
		return "build+lazy"
	case LoadPreload:
		return "load+preload"
	case LoadLazy:
		return "load+lazy"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Options are the explicit inputs of every strategy.
type Options struct {
	Mode Mode
	// Template selects sketches when building. When loading, a non-zero
	// Template must equal the serialized index's template.
	Template sketch.Template
	// Threshold and Queries prune the index to what the queries can match.
	Threshold uint64
	Queries   []*sketch.Sketch
	Logger    logger.Logger
}

type strategy func(src string, opts Options) (*revindex.RevIndex, error)

var strategies = map[Mode]strategy{
	BuildPreload: buildPreload,
	BuildLazy:    buildLazy,
	LoadPreload:  loadPreload,
	LoadLazy:     loadLazy,
}

// Load runs the strategy for opts.Mode against src. The returned index is
// never mutated and may be shared freely.
func Load(src string, opts Options) (*revindex.RevIndex, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NopLogger
	}
	s, ok := strategies[opts.Mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %s", ErrIndexLoad, opts.Mode)
	}

	start := time.Now()
	opts.Logger.Infof("loading %s (%s, %d queries, threshold %d)", src, opts.Mode, len(opts.Queries), opts.Threshold)
	ri, err := s(src, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}
	opts.Logger.Infof("loaded %d datasets in %s", ri.Len(), time.Since(start).Round(time.Millisecond))
	return ri, nil
}

func buildPreload(src string, opts Options) (*revindex.RevIndex, error) {
	return build(src, opts, true)
}

func buildLazy(src string, opts Options) (*revindex.RevIndex, error) {
	return build(src, opts, false)
}

func loadPreload(src string, opts Options) (*revindex.RevIndex, error) {
	return load(src, opts, true)
}

func loadLazy(src string, opts Options) (*revindex.RevIndex, error) {
	return load(src, opts, false)
}

func build(src string, opts Options, preload bool) (*revindex.RevIndex, error) {
	paths, err := ReadPaths(src)
	if err != nil {
		return nil, err
	}
	opts.Logger.Infof("loaded %d sig paths in siglist", len(paths))
	return revindex.Build(paths, opts.Template, revindex.BuildOptions{
		Threshold: opts.Threshold,
		Queries:   opts.Queries,
		Preload:   preload,
		Logger:    opts.Logger,
	})
}

func load(src string, opts Options, preload bool) (*revindex.RevIndex, error) {
	ri, err := revindex.Load(src, revindex.LoadOptions{
		Queries: opts.Queries,
		Preload: preload,
	})
	if err != nil {
		return nil, err
	}
	if opts.Template != (sketch.Template{}) && opts.Template != ri.Template() {
		return nil, fmt.Errorf("index %s was built with %s, requested %s", src, ri.Template(), opts.Template)
	}
	return ri, nil
}

// ReadPaths reads a newline-delimited list of paths. Lines are taken
// verbatim apart from the line terminator; a blank line becomes an empty
// path that fails when opened.
func ReadPaths(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open path list %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read path list %s: %w", path, err)
	}
	return out, nil
}
