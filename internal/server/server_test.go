package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/revindex"
	"github.com/kamusis/greyhound/internal/sketch"
)

const scaled = 10

func span(from, to uint64) []uint64 {
	var out []uint64
	for h := from; h <= to; h++ {
		out = append(out, h)
	}
	return out
}

func sigBytes(t *testing.T, ksize uint32, hashes []uint64, compress bool) []byte {
	t.Helper()
	sk, err := sketch.New(ksize, sketch.MaxHashForScaled(scaled), hashes)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, sketch.WriteSignatures(&buf, []*sketch.Signature{{Name: "query", Sketches: []*sketch.Sketch{sk}}}, compress))
	return buf.Bytes()
}

func buildIndex(t *testing.T) (*revindex.RevIndex, []string) {
	t.Helper()
	dir := t.TempDir()
	var refs []string
	for _, r := range []struct {
		name     string
		from, to uint64
	}{{"a", 1, 600}, {"b", 401, 1000}} {
		sk, err := sketch.New(31, sketch.MaxHashForScaled(scaled), span(r.from, r.to))
		require.NoError(t, err)
		p := filepath.Join(dir, r.name+".sig")
		require.NoError(t, sketch.SaveFile(p, []*sketch.Signature{{Name: r.name, Sketches: []*sketch.Sketch{sk}}}, true))
		refs = append(refs, p)
	}
	ri, err := revindex.Build(refs, sketch.NewTemplate(31, scaled), revindex.BuildOptions{Preload: true})
	require.NoError(t, err)
	return ri, refs
}

// spyIndex records the search threshold it receives.
type spyIndex struct {
	revindex.Index
	searchThreshold uint64
	failGather      bool
}

func (s *spyIndex) Search(c revindex.Counter, similarity bool, thr uint64) ([]string, error) {
	s.searchThreshold = thr
	return s.Index.Search(c, similarity, thr)
}

func (s *spyIndex) Gather(c revindex.Counter, thr uint64, q *sketch.Sketch) ([]revindex.GatherResult, error) {
	if s.failGather {
		return nil, io.ErrUnexpectedEOF
	}
	return s.Index.Gather(c, thr, q)
}

func newTestServer(t *testing.T, idx revindex.Index) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewHandler(NewService(idx, logger.NewLogfLogger(t)), logger.NewLogfLogger(t)))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, contentType string, body []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, contentType, bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func errorKind(t *testing.T, body []byte) string {
	t.Helper()
	var e map[string]string
	require.NoError(t, json.Unmarshal(body, &e))
	return e["kind"]
}

func TestGather_FullDecomposition(t *testing.T) {
	ri, refs := buildIndex(t)
	ts := newTestServer(t, ri)

	for _, compress := range []bool{false, true} {
		resp, body := post(t, ts.URL+"/gather", "application/octet-stream", sigBytes(t, 31, span(1, 1000), compress))
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var res []revindex.GatherResult
		require.NoError(t, json.Unmarshal(body, &res))
		require.Len(t, res, 2)
		require.Equal(t, refs[0], res[0].Filename)
		require.EqualValues(t, 6000, res[0].IntersectBP)
		require.Equal(t, refs[1], res[1].Filename)
		require.EqualValues(t, 4000, res[1].IntersectBP)
	}
}

func TestGather_IncompatibleKsize(t *testing.T) {
	ri, _ := buildIndex(t)
	ts := newTestServer(t, ri)

	resp, body := post(t, ts.URL+"/gather", "application/octet-stream", sigBytes(t, 21, span(1, 100), false))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, KindUnsupportedSketch, errorKind(t, body))
}

func TestGather_NoSketches(t *testing.T) {
	ri, _ := buildIndex(t)
	ts := newTestServer(t, ri)

	resp, body := post(t, ts.URL+"/gather", "application/json", []byte(`[{"name":"bare","signatures":[]}]`))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, KindUnsupportedSignature, errorKind(t, body))
}

func TestGather_Malformed(t *testing.T) {
	ri, _ := buildIndex(t)
	ts := newTestServer(t, ri)

	for _, body := range [][]byte{nil, []byte("garbage"), []byte("[]")} {
		resp, out := post(t, ts.URL+"/gather", "application/octet-stream", body)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(out))
		require.Equal(t, KindMalformed, errorKind(t, out))
	}
}

func TestGather_IndexFailure(t *testing.T) {
	ri, _ := buildIndex(t)
	ts := newTestServer(t, &spyIndex{Index: ri, failGather: true})

	resp, body := post(t, ts.URL+"/gather", "application/octet-stream", sigBytes(t, 31, span(1, 10), false))
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, KindGather, errorKind(t, body))
}

func TestSearch_FractionThreshold(t *testing.T) {
	ri, refs := buildIndex(t)
	spy := &spyIndex{Index: ri}
	ts := newTestServer(t, spy)

	req, err := json.Marshal(SearchRequest{
		Similarity: false,
		Threshold:  0.5,
		Signature:  string(sigBytes(t, 31, span(1, 1000), false)),
	})
	require.NoError(t, err)

	resp, body := post(t, ts.URL+"/search", "application/json", req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.EqualValues(t, 500, spy.searchThreshold)

	var names []string
	require.NoError(t, json.Unmarshal(body, &names))
	require.Equal(t, refs, names)
}

func TestSearch_Errors(t *testing.T) {
	ri, _ := buildIndex(t)
	ts := newTestServer(t, ri)

	cases := []struct {
		body string
		code int
		kind string
	}{
		{`{"threshold": 0.1`, http.StatusBadRequest, KindMalformed},
		{`{"threshold": 0.1, "signature": ""}`, http.StatusBadRequest, KindMalformed},
		{`{"threshold": 1.5, "signature": "[]"}`, http.StatusBadRequest, KindMalformed},
		{`{"threshold": 0.1, "signature": "not a signature"}`, http.StatusBadRequest, KindMalformed},
	}
	for _, c := range cases {
		resp, body := post(t, ts.URL+"/search", "application/json", []byte(c.body))
		require.Equal(t, c.code, resp.StatusCode, c.body)
		require.Equal(t, c.kind, errorKind(t, body), c.body)
	}

	k21, err := json.Marshal(SearchRequest{Threshold: 0.1, Signature: string(sigBytes(t, 21, span(1, 10), false))})
	require.NoError(t, err)
	resp, body := post(t, ts.URL+"/search", "application/json", k21)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, KindUnsupportedSketch, errorKind(t, body))
}

func TestHealthAndMetrics(t *testing.T) {
	ri, _ := buildIndex(t)
	ts := newTestServer(t, ri)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.Contains(string(b), "greyhound_http_requests_total"))

	resp, err = http.Get(ts.URL + "/gather")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_ShutsDownOnCancel(t *testing.T) {
	ri, _ := buildIndex(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Listen = ln.Addr().String()
	srv := New(cfg, NewHandler(NewService(ri, nil), nil), logger.NewLogfLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Listen + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
