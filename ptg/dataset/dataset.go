// Package dataset combines a corpus store with the feature encoder into a
// random-access example source consumed by the epoch cache and by training
// loops.
package dataset

import (
	"math/rand"

	"github.com/ZanzyTHEbar/pretraingen/ptg/corpus"
	"github.com/ZanzyTHEbar/pretraingen/ptg/encode"
)

// PairDataset draws NSP sentence pairs and encodes them with the per-token
// masking policy.
type PairDataset struct {
	store corpus.PairSource
	enc   *encode.Encoder
}

// NewPairDataset binds a pair source to an encoder.
func NewPairDataset(store corpus.PairSource, enc *encode.Encoder) *PairDataset {
	return &PairDataset{store: store, enc: enc}
}

// Len reports the number of sample ordinals.
func (d *PairDataset) Len() int { return d.store.Len() }

// Example produces the Feature for ordinal i.
func (d *PairDataset) Example(i int, rng *rand.Rand) (encode.Feature, error) {
	a, b, isNext, err := d.store.RandomSent(i, rng)
	if err != nil {
		return encode.Feature{}, err
	}
	return d.enc.EncodePair(rng, a, b, isNext), nil
}

// BlockDataset serves single-segment MLM blocks encoded with the span
// masking policy, and forwards resume bookkeeping to the store.
type BlockDataset struct {
	store *corpus.BlockStore
	enc   *encode.Encoder
}

// NewBlockDataset binds a block store to an encoder.
func NewBlockDataset(store *corpus.BlockStore, enc *encode.Encoder) *BlockDataset {
	return &BlockDataset{store: store, enc: enc}
}

// Len reports the number of blocks in the current ordering.
func (d *BlockDataset) Len() int { return d.store.Len() }

// Example produces the Feature for ordering position i.
func (d *BlockDataset) Example(i int, rng *rand.Rand) (encode.Feature, error) {
	block, err := d.store.Block(i)
	if err != nil {
		return encode.Feature{}, err
	}
	return d.enc.EncodeBlock(rng, block), nil
}

// DumpResumeIndices persists the unconsumed ordering suffix after steps
// consumed examples.
func (d *BlockDataset) DumpResumeIndices(steps int) error {
	return d.store.DumpResumeIndices(steps)
}
