package revindex

import (
	"errors"
	"fmt"

	"github.com/kamusis/greyhound/internal/logger"
	"github.com/kamusis/greyhound/internal/sketch"
)

// BuildOptions controls index building.
type BuildOptions struct {
	// Threshold is the minimum number of hashes a dataset must share with at
	// least one of Queries to be kept. Ignored when Queries is empty.
	Threshold uint64
	// Queries, when set, prunes the index to datasets and hashes relevant
	// to these sketches.
	Queries []*sketch.Sketch
	// Preload keeps every dataset sketch in memory.
	Preload bool
	Logger  logger.Logger
}

// Build reads every signature file in paths and indexes the sketch matching
// tpl. Files without a compatible sketch are skipped; an unreadable file
// fails the build.
func Build(paths []string, tpl sketch.Template, opts BuildOptions) (*RevIndex, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NopLogger
	}

	var queryHashes map[uint64]struct{}
	if len(opts.Queries) > 0 {
		queryHashes = make(map[uint64]struct{})
		for _, q := range opts.Queries {
			for _, h := range q.Hashes() {
				queryHashes[h] = struct{}{}
			}
		}
	}

	ri := &RevIndex{
		template: tpl,
		postings: make(map[uint64][]uint32),
	}
	if opts.Preload {
		ri.sketches = []*sketch.Sketch{}
	}

	compatible := 0
	for _, path := range paths {
		sig, sk, err := sketch.SelectFromFile(path, tpl)
		if err != nil {
			if errors.Is(err, sketch.ErrUnsupportedSignature) || errors.Is(err, sketch.ErrUnsupportedSketch) {
				log.Warnf("skipping %s: %v", path, err)
				continue
			}
			return nil, err
		}
		compatible++

		if queryHashes != nil && !relevant(sk, opts.Queries, opts.Threshold) {
			log.Debugf("pruned %s: below threshold for every query", path)
			continue
		}

		id := uint32(len(ri.datasets))
		ri.datasets = append(ri.datasets, Dataset{
			Filename: path,
			Name:     sig.Name,
			Size:     sk.Size(),
		})
		for _, h := range sk.Hashes() {
			if queryHashes != nil {
				if _, ok := queryHashes[h]; !ok {
					continue
				}
			}
			ri.postings[h] = append(ri.postings[h], id)
		}
		if opts.Preload {
			ri.sketches = append(ri.sketches, sk)
		}
	}

	if compatible == 0 {
		return nil, fmt.Errorf("%w (%d paths, %s)", ErrNoDatasets, len(paths), tpl)
	}
	log.Infof("indexed %d of %d signatures (%d hashes)", len(ri.datasets), len(paths), len(ri.postings))
	return ri, nil
}

// relevant reports whether sk shares at least threshold hashes (and at
// least one) with any query.
func relevant(sk *sketch.Sketch, queries []*sketch.Sketch, threshold uint64) bool {
	for _, q := range queries {
		n := uint64(sk.IntersectionSize(q))
		if n > 0 && n >= threshold {
			return true
		}
	}
	return false
}
