package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/revindex"
	"github.com/kamusis/greyhound/internal/sketch"
)

// MaxBodyBytes caps request bodies.
var MaxBodyBytes int64 = 64 << 20

// JSON is an ad hoc response object, used for health and error bodies.
type JSON map[string]any

// Handler routes HTTP requests to a Service.
type Handler struct {
	service *Service
	logger  logger.Logger
}

// NewHandler returns the full HTTP handler: routes, metrics, access log and
// panic recovery.
func NewHandler(svc *Service, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.NopLogger
	}
	h := &Handler{service: svc, logger: log}

	r := mux.NewRouter()
	r.HandleFunc("/gather", h.handlePostGather).Methods(http.MethodPost)
	r.HandleFunc("/search", h.handlePostSearch).Methods(http.MethodPost)
	r.HandleFunc("/health", h.handleGetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Use(collectStats)

	var hh http.Handler = r
	hh = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log}),
		handlers.PrintRecoveryStack(true),
	)(hh)
	hh = handlers.CombinedLoggingHandler(logWriter{log}, hh)
	return hh
}

func (h *Handler) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JSON{"status": "ok"})
}

func (h *Handler) handlePostGather(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.service.Gather(body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handlePostSearch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req SearchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid json: %v", ErrMalformedRequest, err))
		return
	}
	res, err := h.service.Search(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return body, nil
}

// Error kinds reported in error bodies.
const (
	KindMalformed            = "malformed_request"
	KindUnsupportedSignature = "unsupported_signature"
	KindUnsupportedSketch    = "unsupported_sketch"
	KindGather               = "gather_error"
	KindSearch               = "search_error"
	KindInternal             = "internal_error"
)

// classify maps an error to its HTTP status and kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMalformedRequest), errors.Is(err, sketch.ErrMalformed):
		return http.StatusBadRequest, KindMalformed
	case errors.Is(err, sketch.ErrUnsupportedSignature):
		return http.StatusUnprocessableEntity, KindUnsupportedSignature
	case errors.Is(err, sketch.ErrUnsupportedSketch):
		return http.StatusUnprocessableEntity, KindUnsupportedSketch
	case errors.Is(err, revindex.ErrGather):
		return http.StatusInternalServerError, KindGather
	case errors.Is(err, revindex.ErrSearch):
		return http.StatusInternalServerError, KindSearch
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s: %v", kind, err)
	} else {
		h.logger.Debugf("%s: %v", kind, err)
	}
	writeJSON(w, status, JSON{"error": err.Error(), "kind": kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recoveryLogger adapts Logger to handlers.RecoveryHandlerLogger.
type recoveryLogger struct{ logger.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.Errorf("%s", strings.TrimRight(fmt.Sprintln(v...), "\n"))
}

// logWriter turns access-log lines into info log entries.
type logWriter struct{ logger.Logger }

func (l logWriter) Write(p []byte) (int, error) {
	l.Infof("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
