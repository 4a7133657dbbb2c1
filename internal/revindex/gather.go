package revindex

import (
	"fmt"
	"sort"

	"github.com/kamusis/greyhound/internal/sketch"
)

// Gather greedily decomposes query into datasets. Each round takes the
// dataset sharing the most not-yet-explained hashes, stops once that count
// falls below threshold, then removes the explained hashes from every other
// dataset's count. counter is consumed.
func (ri *RevIndex) Gather(counter Counter, threshold uint64, query *sketch.Sketch) ([]GatherResult, error) {
	if !ri.template.Matches(query) {
		return nil, fmt.Errorf("%w: query %d/%d does not match %s", ErrGather, query.KSize, query.Scaled(), ri.template)
	}
	origSize := query.Size()
	if origSize == 0 {
		return []GatherResult{}, nil
	}
	scaled := query.Scaled()
	if scaled == 0 {
		scaled = 1
	}

	remaining := make(map[uint64]struct{}, origSize)
	for _, h := range query.Hashes() {
		remaining[h] = struct{}{}
	}

	results := []GatherResult{}
	for counter.Len() > 0 {
		best, _ := counter.top()
		if uint64(best.Count) < threshold {
			break
		}

		match, err := ri.datasetSketch(best.Dataset)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGather, err)
		}

		var unique int
		for _, h := range query.Hashes() {
			if _, ok := remaining[h]; !ok || !match.Contains(h) {
				continue
			}
			delete(remaining, h)
			unique++
			for _, id := range ri.postings[h] {
				counter.decrement(id)
			}
		}
		delete(counter.counts, best.Dataset)
		if unique == 0 {
			continue
		}

		ds := ri.datasets[best.Dataset]
		fMatch := 0.0
		if match.Size() > 0 {
			fMatch = float64(unique) / float64(match.Size())
		}
		results = append(results, GatherResult{
			Rank:          len(results),
			IntersectBP:   uint64(unique) * scaled,
			FOrigQuery:    float64(unique) / float64(origSize),
			FMatch:        fMatch,
			FOverlapQuery: float64(query.IntersectionSize(match)) / float64(origSize),
			MatchSize:     match.Size(),
			Name:          ds.Name,
			Filename:      ds.Filename,
		})
	}
	return results, nil
}

// Search lists the filenames of datasets sharing at least threshold hashes
// with the query. With similarity set the list is ranked by Jaccard
// similarity, otherwise by shared hashes (containment).
func (ri *RevIndex) Search(counter Counter, similarity bool, threshold uint64) ([]string, error) {
	type scored struct {
		id    uint32
		score float64
	}

	var hits []scored
	for _, e := range counter.MostCommon() {
		if uint64(e.Count) < threshold {
			break
		}
		if int(e.Dataset) >= len(ri.datasets) {
			return nil, fmt.Errorf("%w: dataset id %d out of range", ErrSearch, e.Dataset)
		}
		score := float64(e.Count)
		if similarity {
			union := counter.querySize + ri.datasets[e.Dataset].Size - int(e.Count)
			score = 0
			if union > 0 {
				score = float64(e.Count) / float64(union)
			}
		}
		hits = append(hits, scored{id: e.Dataset, score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, ri.datasets[h.id].Filename)
	}
	return out, nil
}
