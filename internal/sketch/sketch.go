// Package sketch models scaled MinHash sketches and the signatures that
// carry them, and decodes signature files.
package sketch

import (
	"fmt"
	"math"
	"sort"
)

// MaxHashForScaled returns the hash cutoff for a scaled factor.
// A scaled of 0 means "no down-sampling" and yields 0.
func MaxHashForScaled(scaled uint64) uint64 {
	if scaled == 0 {
		return 0
	}
	return math.MaxUint64 / scaled
}

// ScaledForMaxHash is the inverse of MaxHashForScaled, rounded to the
// nearest integer. Signatures written by sourmash compute max_hash in
// floating point and may sit one above MaxHashForScaled; both map back to
// the same scaled.
func ScaledForMaxHash(maxHash uint64) uint64 {
	if maxHash == 0 {
		return 0
	}
	r := math.Round(float64(math.MaxUint64) / float64(maxHash))
	if r >= float64(math.MaxUint64) {
		return math.MaxUint64
	}
	return uint64(r)
}

// Sketch is an ordered set of k-mer hashes kept below MaxHash.
type Sketch struct {
	KSize    uint32
	MaxHash  uint64
	Seed     uint64
	Molecule string

	mins []uint64
}

// New builds a sketch from hashes. The hashes are sorted and de-duplicated;
// a hash above maxHash is rejected.
func New(ksize uint32, maxHash uint64, hashes []uint64) (*Sketch, error) {
	mins := make([]uint64, len(hashes))
	copy(mins, hashes)
	sort.Slice(mins, func(i, j int) bool { return mins[i] < mins[j] })

	out := mins[:0]
	for i, h := range mins {
		if maxHash != 0 && h > maxHash {
			return nil, fmt.Errorf("%w: hash %d above max_hash %d", ErrMalformed, h, maxHash)
		}
		if i > 0 && h == mins[i-1] {
			continue
		}
		out = append(out, h)
	}
	return &Sketch{KSize: ksize, MaxHash: maxHash, mins: out}, nil
}

// Hashes returns the sorted hashes. Callers must not modify the slice.
func (s *Sketch) Hashes() []uint64 { return s.mins }

// Size is the number of hashes in the sketch.
func (s *Sketch) Size() int { return len(s.mins) }

// Scaled is the down-sampling factor implied by MaxHash.
func (s *Sketch) Scaled() uint64 { return ScaledForMaxHash(s.MaxHash) }

// Compatible reports whether two sketches can be compared.
func (s *Sketch) Compatible(other *Sketch) bool {
	return s.KSize == other.KSize && s.Scaled() == other.Scaled()
}

// Contains reports whether h is in the sketch.
func (s *Sketch) Contains(h uint64) bool {
	i := sort.Search(len(s.mins), func(i int) bool { return s.mins[i] >= h })
	return i < len(s.mins) && s.mins[i] == h
}

// IntersectionSize counts the hashes shared with other.
func (s *Sketch) IntersectionSize(other *Sketch) int {
	a, b := s.mins, other.mins
	var i, j, n int
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			n++
			i++
			j++
		}
	}
	return n
}

// Jaccard estimates the Jaccard similarity between the two sketches.
func (s *Sketch) Jaccard(other *Sketch) float64 {
	shared := s.IntersectionSize(other)
	union := s.Size() + other.Size() - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// Template is the (ksize, max_hash) key used to pick comparable sketches.
type Template struct {
	KSize   uint32
	MaxHash uint64
}

// NewTemplate builds a template from command-line parameters.
func NewTemplate(ksize uint32, scaled uint64) Template {
	return Template{KSize: ksize, MaxHash: MaxHashForScaled(scaled)}
}

// Scaled is the down-sampling factor of the template.
func (t Template) Scaled() uint64 { return ScaledForMaxHash(t.MaxHash) }

// Matches reports whether s is comparable with the template. Sketches are
// compared by scaled rather than by exact max_hash.
func (t Template) Matches(s *Sketch) bool {
	return s.KSize == t.KSize && s.Scaled() == t.Scaled()
}

func (t Template) String() string {
	return fmt.Sprintf("k=%d scaled=%d", t.KSize, t.Scaled())
}

// Signature is a named collection of sketches for one dataset.
type Signature struct {
	Name     string
	Filename string
	License  string
	Sketches []*Sketch
}

// Select returns the first sketch compatible with tpl.
func (sig *Signature) Select(tpl Template) (*Sketch, error) {
	if len(sig.Sketches) == 0 {
		return nil, ErrUnsupportedSignature
	}
	for _, s := range sig.Sketches {
		if tpl.Matches(s) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no sketch with %s in %q", ErrUnsupportedSketch, tpl, sig.DisplayName())
}

// DisplayName is the name, falling back to the filename.
func (sig *Signature) DisplayName() string {
	if sig.Name != "" {
		return sig.Name
	}
	return sig.Filename
}
