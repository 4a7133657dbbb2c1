// Package revindex is an inverted index from sketch hashes to the reference
// datasets containing them, with the gather and search algorithms on top.
//
// A RevIndex is immutable once Build or Load returns and may be shared by
// any number of goroutines without locking.
package revindex

import (
	"fmt"

	"github.com/kamusis/greyhound/internal/sketch"
)

// Index is the capability set the query layer needs from an index.
type Index interface {
	Template() sketch.Template
	CounterForQuery(query *sketch.Sketch) Counter
	Gather(counter Counter, threshold uint64, query *sketch.Sketch) ([]GatherResult, error)
	Search(counter Counter, similarity bool, threshold uint64) ([]string, error)
}

var _ Index = (*RevIndex)(nil)

// Dataset is one reference row of the index.
type Dataset struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Size     int    `json:"size"`
}

// GatherResult is one match of a gather decomposition.
type GatherResult struct {
	Rank          int     `json:"rank"`
	IntersectBP   uint64  `json:"intersect_bp"`
	FOrigQuery    float64 `json:"f_orig_query"`
	FMatch        float64 `json:"f_match"`
	FOverlapQuery float64 `json:"f_overlap_query"`
	MatchSize     int     `json:"match_size"`
	Name          string  `json:"name"`
	Filename      string  `json:"filename"`
}

// RevIndex maps hash -> ascending dataset ids.
type RevIndex struct {
	template sketch.Template
	datasets []Dataset
	postings map[uint64][]uint32

	// sketches is nil unless the index was preloaded.
	sketches []*sketch.Sketch
}

// Template returns the compatibility key every indexed sketch matches.
func (ri *RevIndex) Template() sketch.Template { return ri.template }

// Len is the number of datasets.
func (ri *RevIndex) Len() int { return len(ri.datasets) }

// Datasets returns a copy of the dataset table.
func (ri *RevIndex) Datasets() []Dataset {
	out := make([]Dataset, len(ri.datasets))
	copy(out, ri.datasets)
	return out
}

// Preloaded reports whether dataset sketches are held in memory.
func (ri *RevIndex) Preloaded() bool { return ri.sketches != nil }

// datasetSketch returns the sketch for id, reading it from disk when the
// index was not preloaded.
func (ri *RevIndex) datasetSketch(id uint32) (*sketch.Sketch, error) {
	if int(id) >= len(ri.datasets) {
		return nil, fmt.Errorf("dataset id %d out of range", id)
	}
	if ri.sketches != nil {
		return ri.sketches[id], nil
	}
	_, sk, err := sketch.SelectFromFile(ri.datasets[id].Filename, ri.template)
	if err != nil {
		return nil, err
	}
	return sk, nil
}
