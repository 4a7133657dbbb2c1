package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/revindex"
	"github.com/kamusis/greyhound/internal/sketch"
	"github.com/kamusis/greyhound/internal/threshold"
)

// Query is one unit of batch work. Eager queries carry their sketch; lazy
// queries only carry Path and are read by the worker.
type Query struct {
	Path   string
	Sketch *sketch.Sketch
}

// Failure records why a query produced no output.
type Failure struct {
	Path string
	Err  error
}

// Report summarizes a batch run, in query order.
type Report struct {
	Processed []string
	Skipped   []string
	Failed    []Failure
}

// Total is the number of queries accounted for.
func (r *Report) Total() int {
	return len(r.Processed) + len(r.Skipped) + len(r.Failed)
}

// Err is non-nil when at least one query failed. Skipped queries are not
// failures.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return fmt.Errorf("%d of %d queries failed: %w", len(r.Failed), r.Total(), errors.Join(errs...))
}

// ErrDuplicateOutput marks a query whose output file is already claimed by an
// earlier query in the same batch.
var ErrDuplicateOutput = errors.New("output file already claimed by another query")

// Sink receives the matches of every successful query. Path names the file
// Write will produce for a query.
type Sink interface {
	Path(queryPath string) string
	Write(queryPath string, matches []revindex.GatherResult) error
}

// Dispatcher runs gather for many queries against one shared index.
type Dispatcher struct {
	Index       revindex.Index
	Template    sketch.Template
	ThresholdBP uint64
	// Workers bounds concurrency; values below 1 mean runtime.NumCPU().
	Workers int
	Sink    Sink
	Logger  logger.Logger
}

type outcome struct {
	status string
	err    error
}

// Run processes queries and returns once all dispatched queries finished.
// Cancelling ctx stops dispatching; queries not yet started are reported
// as failed with the context error.
func (d *Dispatcher) Run(ctx context.Context, queries []Query) *Report {
	workers := d.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	log := d.Logger
	if log == nil {
		log = logger.NopLogger
	}

	outcomes := make([]outcome, len(queries))
	claimed := make(map[string]string, len(queries))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			outcomes[i] = outcome{status: OutcomeFailed, err: err}
			continue
		}
		out := d.Sink.Path(q.Path)
		if prev, ok := claimed[out]; ok {
			log.Errorf("%s: %s is already written by %s", q.Path, out, prev)
			outcomes[i] = outcome{status: OutcomeFailed, err: fmt.Errorf("%w: %s (claimed by %s)", ErrDuplicateOutput, out, prev)}
			continue
		}
		claimed[out] = q.Path
		i, q := i, q
		g.Go(func() error {
			start := time.Now()
			outcomes[i] = d.runOne(log.WithPrefix(fmt.Sprintf("[%s] ", filepath.Base(q.Path))), q)
			HistogramQueryDuration.Observe(time.Since(start).Seconds())
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for i, o := range outcomes {
		CounterQueries.WithLabelValues(o.status).Inc()
		path := queries[i].Path
		switch o.status {
		case OutcomeProcessed:
			report.Processed = append(report.Processed, path)
		case OutcomeSkipped:
			report.Skipped = append(report.Skipped, path)
		default:
			report.Failed = append(report.Failed, Failure{Path: path, Err: o.err})
		}
	}
	return report
}

func (d *Dispatcher) runOne(log logger.Logger, q Query) outcome {
	sk := q.Sketch
	if sk == nil {
		var err error
		_, sk, err = sketch.SelectFromFile(q.Path, d.Template)
		if err != nil {
			log.Errorf("cannot load query: %v", err)
			return outcome{status: OutcomeFailed, err: err}
		}
	}

	thr, ok := threshold.ForQuery(d.ThresholdBP, sk)
	if !ok {
		log.Infof("query sketch is empty, skipping")
		return outcome{status: OutcomeSkipped}
	}

	log.Debugf("build counter for query (threshold %d hashes)", thr)
	counter := d.Index.CounterForQuery(sk)

	log.Debugf("starting gather")
	matches, err := d.Index.Gather(counter, thr, sk)
	if err != nil {
		log.Errorf("gather failed: %v", err)
		return outcome{status: OutcomeFailed, err: err}
	}

	log.Infof("saving %d matches", len(matches))
	if err := d.Sink.Write(q.Path, matches); err != nil {
		log.Errorf("cannot save matches: %v", err)
		return outcome{status: OutcomeFailed, err: err}
	}
	return outcome{status: OutcomeProcessed}
}

// LoadQueries reads every query up front and selects its template-compatible
// sketch. Paths that cannot be loaded are returned as failures instead of
// aborting the batch.
func LoadQueries(paths []string, tpl sketch.Template) ([]Query, []Failure) {
	queries := make([]Query, 0, len(paths))
	var failed []Failure
	for _, p := range paths {
		_, sk, err := sketch.SelectFromFile(p, tpl)
		if err != nil {
			failed = append(failed, Failure{Path: p, Err: err})
			continue
		}
		queries = append(queries, Query{Path: p, Sketch: sk})
	}
	return queries, failed
}

// LazyQueries wraps paths for workers to load themselves.
func LazyQueries(paths []string) []Query {
	queries := make([]Query, len(paths))
	for i, p := range paths {
		queries[i] = Query{Path: p}
	}
	return queries
}

// Sketches returns the sketches of eager queries.
func Sketches(queries []Query) []*sketch.Sketch {
	out := make([]*sketch.Sketch, 0, len(queries))
	for _, q := range queries {
		if q.Sketch != nil {
			out = append(out, q.Sketch)
		}
	}
	return out
}
