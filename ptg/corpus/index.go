package corpus

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/RoaringBitmap/roaring"
	"github.com/fxamacker/cbor/v2"
)

// ResumeIndex holds a shuffled ordering over sample ordinals together with
// the sidecar protocol that persists the unconsumed suffix across process
// restarts.
type ResumeIndex struct {
	order []int
}

// NewResumeIndex builds a freshly shuffled ordering over [0, n).
func NewResumeIndex(n int, rng *rand.Rand) *ResumeIndex {
	return &ResumeIndex{order: rng.Perm(n)}
}

// Len reports the ordering length.
func (ix *ResumeIndex) Len() int { return len(ix.order) }

// At returns the sample ordinal at position i.
func (ix *ResumeIndex) At(i int) int { return ix.order[i] }

// Order returns the underlying ordering. Callers must not mutate it.
func (ix *ResumeIndex) Order() []int { return ix.order }

// MergeSidecar places a previously persisted suffix before the fresh
// ordering and removes duplicates while preserving first occurrence, so the
// previously unseen tail is consumed before any ordinal repeats.
func (ix *ResumeIndex) MergeSidecar(prev []int) {
	if len(prev) == 0 {
		return
	}
	seen := roaring.New()
	merged := make([]int, 0, len(ix.order))
	for _, v := range prev {
		if v >= 0 && v < len(ix.order) && seen.CheckedAdd(uint32(v)) {
			merged = append(merged, v)
		}
	}
	for _, v := range ix.order {
		if seen.CheckedAdd(uint32(v)) {
			merged = append(merged, v)
		}
	}
	ix.order = merged
}

// DumpSuffix persists the unconsumed suffix of the ordering after step
// consumed positions. The step wraps modulo the ordering length so a dump
// mid-epoch records exactly what remains of that epoch.
func (ix *ResumeIndex) DumpSuffix(path string, step int) error {
	if len(ix.order) == 0 {
		return fmt.Errorf("%w: empty index", ErrEmptyCorpus)
	}
	suffix := ix.order[step%len(ix.order):]
	data, err := cbor.Marshal(suffix)
	if err != nil {
		return fmt.Errorf("encode index sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write index sidecar %s: %w", path, err)
	}
	return nil
}

// LoadSidecar reads a persisted suffix. A missing sidecar is not an error;
// it simply yields no suffix.
func LoadSidecar(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index sidecar %s: %w", path, err)
	}
	var suffix []int
	if err := cbor.Unmarshal(data, &suffix); err != nil {
		return nil, fmt.Errorf("decode index sidecar %s: %w", path, err)
	}
	return suffix, nil
}
