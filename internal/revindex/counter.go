package revindex

import (
	"sort"

	"github.com/kamusis/greyhound/internal/sketch"
)

// Counter tallies, per dataset, the query hashes it shares. A Counter
// belongs to the query that created it and is consumed by Gather.
type Counter struct {
	counts    map[uint32]uint
	querySize int
}

// Entry is one (dataset, shared hashes) pair.
type Entry struct {
	Dataset uint32
	Count   uint
}

// CounterForQuery counts shared hashes between query and every dataset.
func (ri *RevIndex) CounterForQuery(query *sketch.Sketch) Counter {
	c := Counter{counts: make(map[uint32]uint), querySize: query.Size()}
	for _, h := range query.Hashes() {
		for _, id := range ri.postings[h] {
			c.counts[id]++
		}
	}
	return c
}

// Len is the number of datasets with a non-zero count.
func (c Counter) Len() int { return len(c.counts) }

// Count returns the shared hashes for dataset id.
func (c Counter) Count(id uint32) uint { return c.counts[id] }

// MostCommon lists entries by count descending, ties by dataset id.
func (c Counter) MostCommon() []Entry {
	out := make([]Entry, 0, len(c.counts))
	for id, n := range c.counts {
		out = append(out, Entry{Dataset: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Dataset < out[j].Dataset
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// top returns the MostCommon head without sorting.
func (c Counter) top() (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for id, n := range c.counts {
		if !found || n > best.Count || (n == best.Count && id < best.Dataset) {
			best = Entry{Dataset: id, Count: n}
			found = true
		}
	}
	return best, found
}

func (c Counter) decrement(id uint32) {
	n, ok := c.counts[id]
	if !ok {
		return
	}
	if n <= 1 {
		delete(c.counts, id)
		return
	}
	c.counts[id] = n - 1
}
