package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/results"
	"github.com/kamusis/greyhound/internal/revindex"
	"github.com/kamusis/greyhound/internal/sketch"
)

const scaled = 10

func writeSig(t *testing.T, dir, name string, ksize uint32, from, to uint64) string {
	t.Helper()
	var hashes []uint64
	for h := from; h <= to && to != 0; h++ {
		hashes = append(hashes, h)
	}
	sk, err := sketch.New(ksize, sketch.MaxHashForScaled(scaled), hashes)
	require.NoError(t, err)
	path := filepath.Join(dir, name+".sig")
	require.NoError(t, sketch.SaveFile(path, []*sketch.Signature{{Name: name, Sketches: []*sketch.Sketch{sk}}}, false))
	return path
}

type env struct {
	tpl    sketch.Template
	index  *revindex.RevIndex
	refs   []string
	outDir string
	qdir   string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	tpl := sketch.NewTemplate(31, scaled)
	refs := []string{
		writeSig(t, dir, "ref-a", 31, 1, 60),
		writeSig(t, dir, "ref-b", 31, 41, 100),
	}
	ri, err := revindex.Build(refs, tpl, revindex.BuildOptions{Preload: true})
	require.NoError(t, err)

	qdir := filepath.Join(dir, "queries")
	require.NoError(t, os.MkdirAll(qdir, 0o755))
	return &env{tpl: tpl, index: ri, refs: refs, outDir: filepath.Join(dir, "outputs"), qdir: qdir}
}

func (e *env) dispatcher(t *testing.T) *Dispatcher {
	return &Dispatcher{
		Index:       e.index,
		Template:    e.tpl,
		ThresholdBP: 0,
		Workers:     4,
		Sink:        &results.Writer{Dir: e.outDir},
		Logger:      logger.NewLogfLogger(t),
	}
}

func TestRun_IsolatesFailuresAndSkipsEmpty(t *testing.T) {
	e := newEnv(t)
	good := writeSig(t, e.qdir, "good", 31, 1, 100)
	empty := writeSig(t, e.qdir, "empty", 31, 0, 0)
	k21 := writeSig(t, e.qdir, "k21", 21, 1, 100)
	missing := filepath.Join(e.qdir, "missing.sig")

	report := e.dispatcher(t).Run(context.Background(), LazyQueries([]string{good, empty, k21, missing}))

	require.Equal(t, []string{good}, report.Processed)
	require.Equal(t, []string{empty}, report.Skipped)
	require.Len(t, report.Failed, 2)
	require.Equal(t, k21, report.Failed[0].Path)
	require.True(t, errors.Is(report.Failed[0].Err, sketch.ErrUnsupportedSketch))
	require.Equal(t, missing, report.Failed[1].Path)
	require.Error(t, report.Err())

	b, err := os.ReadFile(filepath.Join(e.outDir, "good.sig"))
	require.NoError(t, err)
	require.Equal(t, e.refs[0]+"\n"+e.refs[1]+"\n", string(b))

	_, err = os.Stat(filepath.Join(e.outDir, "empty.sig"))
	require.True(t, os.IsNotExist(err), "empty query must not produce output")
}

func TestRun_EagerQueries(t *testing.T) {
	e := newEnv(t)
	var paths []string
	for i := 0; i < 20; i++ {
		paths = append(paths, writeSig(t, e.qdir, fmt.Sprintf("q%02d", i), 31, uint64(i+1), uint64(i+50)))
	}
	paths = append(paths, filepath.Join(e.qdir, "gone.sig"))

	queries, failed := LoadQueries(paths, e.tpl)
	require.Len(t, queries, 20)
	require.Len(t, failed, 1)
	require.Len(t, Sketches(queries), 20)

	report := e.dispatcher(t).Run(context.Background(), queries)
	require.NoError(t, report.Err())
	require.Len(t, report.Processed, 20)
	require.Equal(t, paths[:20], report.Processed)
	for _, p := range report.Processed {
		_, err := os.Stat(filepath.Join(e.outDir, filepath.Base(p)))
		require.NoError(t, err)
	}
}

func TestRun_Threshold(t *testing.T) {
	e := newEnv(t)
	q := writeSig(t, e.qdir, "q", 31, 1, 100)

	d := e.dispatcher(t)
	// 50000bp over a 100-hash query at scaled 10 requires 50 shared hashes.
	d.ThresholdBP = 50 * 100 * scaled
	report := d.Run(context.Background(), LazyQueries([]string{q}))
	require.NoError(t, report.Err())

	b, err := os.ReadFile(filepath.Join(e.outDir, "q.sig"))
	require.NoError(t, err)
	require.Equal(t, e.refs[0]+"\n", string(b))
}

func TestRun_CancelledContext(t *testing.T) {
	e := newEnv(t)
	q := writeSig(t, e.qdir, "q", 31, 1, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := e.dispatcher(t).Run(ctx, LazyQueries([]string{q}))
	require.Len(t, report.Failed, 1)
	require.True(t, errors.Is(report.Failed[0].Err, context.Canceled))
}

func TestRun_SameBaseNameDoesNotShareOutput(t *testing.T) {
	e := newEnv(t)
	d1 := filepath.Join(e.qdir, "s1")
	d2 := filepath.Join(e.qdir, "s2")
	require.NoError(t, os.MkdirAll(d1, 0o755))
	require.NoError(t, os.MkdirAll(d2, 0o755))
	first := writeSig(t, d1, "q", 31, 1, 100)
	second := writeSig(t, d2, "q", 31, 61, 100)

	report := e.dispatcher(t).Run(context.Background(), LazyQueries([]string{first, second}))

	require.Equal(t, []string{first}, report.Processed)
	require.Len(t, report.Failed, 1)
	require.Equal(t, second, report.Failed[0].Path)
	require.True(t, errors.Is(report.Failed[0].Err, ErrDuplicateOutput))
	require.Error(t, report.Err())

	b, err := os.ReadFile(filepath.Join(e.outDir, "q.sig"))
	require.NoError(t, err)
	require.Equal(t, e.refs[0]+"\n"+e.refs[1]+"\n", string(b), "output must hold the first query's matches")
}

// flakyIndex fails gather for one query size.
type flakyIndex struct {
	revindex.Index
	failSize int
}

func (f *flakyIndex) Gather(c revindex.Counter, thr uint64, q *sketch.Sketch) ([]revindex.GatherResult, error) {
	if q.Size() == f.failSize {
		return nil, revindex.ErrGather
	}
	return f.Index.Gather(c, thr, q)
}

func TestRun_GatherErrorIsolated(t *testing.T) {
	e := newEnv(t)
	bad := writeSig(t, e.qdir, "bad", 31, 1, 7)
	ok := writeSig(t, e.qdir, "ok", 31, 1, 100)

	d := e.dispatcher(t)
	d.Index = &flakyIndex{Index: e.index, failSize: 7}
	report := d.Run(context.Background(), LazyQueries([]string{bad, ok}))

	require.Equal(t, []string{ok}, report.Processed)
	require.Len(t, report.Failed, 1)
	require.True(t, errors.Is(report.Failed[0].Err, revindex.ErrGather))
}
