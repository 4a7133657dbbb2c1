// Package server serves gather and search for single queries over HTTP
// against one shared, read-only index.
package server

import (
	"errors"
	"fmt"

	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/revindex"
	"github.com/kamusis/greyhound/internal/sketch"
	"github.com/kamusis/greyhound/internal/threshold"
)

// ErrMalformedRequest indicates a request body that cannot be interpreted.
var ErrMalformedRequest = errors.New("malformed request")

// SearchRequest is the JSON body of POST /search.
type SearchRequest struct {
	Similarity bool    `json:"similarity"`
	Threshold  float64 `json:"threshold"`
	Signature  string  `json:"signature"`
}

// Service runs single queries synchronously. It holds no per-request state.
type Service struct {
	index  revindex.Index
	logger logger.Logger
}

// NewService returns a Service over idx.
func NewService(idx revindex.Index, log logger.Logger) *Service {
	if log == nil {
		log = logger.NopLogger
	}
	return &Service{index: idx, logger: log}
}

// Gather decomposes the first signature in raw with no threshold, returning
// the full decomposition.
func (s *Service) Gather(raw []byte) ([]revindex.GatherResult, error) {
	query, err := s.selectQuery(raw)
	if err != nil {
		return nil, err
	}
	counter := s.index.CounterForQuery(query)
	res, err := s.index.Gather(counter, 0, query)
	if err != nil {
		if !errors.Is(err, revindex.ErrGather) {
			err = fmt.Errorf("%w: %w", revindex.ErrGather, err)
		}
		return nil, err
	}
	s.logger.Debugf("gather: %d hashes, %d matches", query.Size(), len(res))
	return res, nil
}

// Search returns dataset filenames sharing at least req.Threshold of the
// query's hashes. Unlike batch gather, the threshold is a fraction of the
// query, not a base-pair budget.
func (s *Service) Search(req SearchRequest) ([]string, error) {
	if req.Signature == "" {
		return nil, fmt.Errorf("%w: signature is required", ErrMalformedRequest)
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return nil, fmt.Errorf("%w: threshold %v outside [0, 1]", ErrMalformedRequest, req.Threshold)
	}
	query, err := s.selectQuery([]byte(req.Signature))
	if err != nil {
		return nil, err
	}
	counter := s.index.CounterForQuery(query)
	abs := threshold.Fraction(req.Threshold, query.Size())
	res, err := s.index.Search(counter, req.Similarity, abs)
	if err != nil {
		if !errors.Is(err, revindex.ErrSearch) {
			err = fmt.Errorf("%w: %w", revindex.ErrSearch, err)
		}
		return nil, err
	}
	s.logger.Debugf("search: %d hashes, threshold %d, %d matches", query.Size(), abs, len(res))
	return res, nil
}

func (s *Service) selectQuery(raw []byte) (*sketch.Sketch, error) {
	sig, err := sketch.FirstSignature(raw)
	if err != nil {
		return nil, err
	}
	return sig.Select(s.index.Template())
}
