package revindex

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/kamusis/greyhound/internal/sketch"
)

// LoadOptions controls index loading.
type LoadOptions struct {
	// Queries, when set, drops postings for hashes no query contains.
	Queries []*sketch.Sketch
	// Preload reads every dataset sketch into memory.
	Preload bool
}

// Load reads an index written by Save.
func Load(path string, opts LoadOptions) (*RevIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open index %s: %w", path, err)
	}
	defer f.Close()

	fi, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("cannot read index %s: %w", path, err)
	}
	if fi.Version != indexVersion {
		return nil, fmt.Errorf("%w: %s has version %d, want %d", ErrCorruptIndex, path, fi.Version, indexVersion)
	}
	tpl := sketch.Template{KSize: fi.KSize, MaxHash: fi.MaxHash}
	if got := checksum(tpl, fi.Datasets, fi.Postings); got != fi.Checksum {
		return nil, fmt.Errorf("%w: %s checksum mismatch (got %s want %s)", ErrCorruptIndex, path, got, fi.Checksum)
	}

	var keep map[uint64]struct{}
	if len(opts.Queries) > 0 {
		keep = make(map[uint64]struct{})
		for _, q := range opts.Queries {
			for _, h := range q.Hashes() {
				keep[h] = struct{}{}
			}
		}
	}

	ri := &RevIndex{
		template: tpl,
		datasets: fi.Datasets,
		postings: make(map[uint64][]uint32, len(fi.Postings)),
	}
	for _, p := range fi.Postings {
		for _, id := range p.Datasets {
			if int(id) >= len(fi.Datasets) {
				return nil, fmt.Errorf("%w: %s references dataset %d of %d", ErrCorruptIndex, path, id, len(fi.Datasets))
			}
		}
		if keep != nil {
			if _, ok := keep[p.Hash]; !ok {
				continue
			}
		}
		ri.postings[p.Hash] = p.Datasets
	}

	if opts.Preload {
		ri.sketches = make([]*sketch.Sketch, len(ri.datasets))
		for i, ds := range ri.datasets {
			_, sk, err := sketch.SelectFromFile(ds.Filename, tpl)
			if err != nil {
				return nil, fmt.Errorf("cannot preload dataset %s: %w", ds.Filename, err)
			}
			ri.sketches[i] = sk
		}
	}
	return ri, nil
}

func decode(r io.Reader) (*fileIndex, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
		}
		defer zr.Close()
		src = zr
	}

	var fi fileIndex
	if err := json.NewDecoder(src).Decode(&fi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
	}
	return &fi, nil
}
