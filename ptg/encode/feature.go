package encode

import (
	"math/rand"

	"github.com/ZanzyTHEbar/pretraingen/ptg/corpus"
	"github.com/ZanzyTHEbar/pretraingen/ptg/tokenizer"
)

// Feature is one fixed-length training example. Every array has length
// exactly maxPos; the input mask sums to the number of non-padding tokens.
type Feature struct {
	InputIDs   []int `cbor:"input_ids"`
	SegmentIDs []int `cbor:"segment_ids"`
	InputMask  []int `cbor:"input_mask"`
	IsNext     int   `cbor:"is_next"`
	LabelIDs   []int `cbor:"label_ids"`
}

// Encoder turns token-id segments into Features: truncation, special-token
// insertion, masking and padding. All randomness flows through the rng
// handle passed to each call, never package state.
type Encoder struct {
	reserved tokenizer.Reserved
	tok      tokenizer.Tokenizer
	maxPos   int

	maskProb       float64
	shortSeqProb   float64
	maxWordsLength int
}

// EncoderOption customizes an Encoder.
type EncoderOption func(*Encoder)

// WithMaskProb overrides the masked-token ratio (default 0.15). Zero
// disables masking entirely.
func WithMaskProb(p float64) EncoderOption {
	return func(e *Encoder) { e.maskProb = p }
}

// WithShortSeqProb overrides the short-sequence probability (default 0.1).
func WithShortSeqProb(p float64) EncoderOption {
	return func(e *Encoder) { e.shortSeqProb = p }
}

// WithMaxWordsLength caps the span length drawn in span masking
// (default 10).
func WithMaxWordsLength(n int) EncoderOption {
	return func(e *Encoder) { e.maxWordsLength = n }
}

// NewEncoder resolves the reserved control-token ids once and reuses them
// for the encoder lifetime.
func NewEncoder(tok tokenizer.Tokenizer, maxPos int, opts ...EncoderOption) (*Encoder, error) {
	reserved, err := tokenizer.ResolveReserved(tok)
	if err != nil {
		return nil, err
	}
	e := &Encoder{
		reserved:       reserved,
		tok:            tok,
		maxPos:         maxPos,
		maskProb:       0.15,
		shortSeqProb:   0.1,
		maxWordsLength: 10,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MaxPos reports the fixed output length.
func (e *Encoder) MaxPos() int { return e.maxPos }

// Reserved exposes the resolved control-token ids.
func (e *Encoder) Reserved() tokenizer.Reserved { return e.reserved }

// EncodePair encodes a two-segment NSP example: truncate the pair to fit,
// insert CLS/SEP, mask per token, pad. Segment B must be non-empty.
func (e *Encoder) EncodePair(rng *rand.Rand, tokensA, tokensB corpus.Sentence, isNext int) Feature {
	target := e.maxPos - 3
	a := append([]int(nil), tokensA...)
	b := append([]int(nil), tokensB...)

	target = e.shortTarget(rng, target)
	a, b = truncateSeqPair(a, b, target)

	// CLS heads segment A; both separators close segment B
	a = append([]int{e.reserved.Cls}, a...)
	b = append(b, e.reserved.Sep, e.reserved.Sep)

	tokens := make([]int, 0, len(a)+len(b))
	tokens = append(tokens, a...)
	tokens = append(tokens, b...)
	segments := make([]int, len(tokens))
	for i := len(a); i < len(tokens); i++ {
		segments[i] = 1
	}

	labels := append([]int(nil), tokens...)
	e.maskPerToken(rng, tokens)

	return e.finish(tokens, segments, labels, isNext)
}

// EncodeBlock encodes a single-segment MLM example with span masking.
func (e *Encoder) EncodeBlock(rng *rand.Rand, block corpus.Sentence) Feature {
	target := e.maxPos - 2
	a := append([]int(nil), block...)

	target = e.shortTarget(rng, target)
	a, _ = truncateSeqPair(a, nil, target)

	tokens := make([]int, 0, len(a)+2)
	tokens = append(tokens, e.reserved.Cls)
	tokens = append(tokens, a...)
	tokens = append(tokens, e.reserved.Sep)

	labels := append([]int(nil), tokens...)
	e.maskSpans(rng, tokens)

	return e.finish(tokens, make([]int, len(tokens)), labels, 0)
}

// shortTarget occasionally shrinks the target length so the model also
// sees sequences shorter than the maximum.
func (e *Encoder) shortTarget(rng *rand.Rand, target int) int {
	if e.shortSeqProb > 0 && target > 2 && rng.Float64() < e.shortSeqProb {
		return 2 + rng.Intn(target-1)
	}
	return target
}

// truncateSeqPair pops one token at a time from the end of whichever
// segment is currently longer until the pair fits. It never removes from
// the shorter side and is a no-op when the pair already fits.
func truncateSeqPair(a, b []int, maxLen int) ([]int, []int) {
	for len(a)+len(b) > maxLen {
		if len(a) > len(b) {
			a = a[:len(a)-1]
		} else {
			b = b[:len(b)-1]
		}
	}
	return a, b
}

// finish pads every array to maxPos and assembles the Feature.
func (e *Encoder) finish(tokens, segments, labels []int, isNext int) Feature {
	n := len(tokens)
	f := Feature{
		InputIDs:   make([]int, e.maxPos),
		SegmentIDs: make([]int, e.maxPos),
		InputMask:  make([]int, e.maxPos),
		LabelIDs:   make([]int, e.maxPos),
		IsNext:     isNext,
	}
	copy(f.InputIDs, tokens)
	copy(f.SegmentIDs, segments)
	copy(f.LabelIDs, labels)
	for i := 0; i < n; i++ {
		f.InputMask[i] = 1
	}
	for i := n; i < e.maxPos; i++ {
		f.InputIDs[i] = e.reserved.Pad
		f.LabelIDs[i] = e.reserved.Pad
	}
	return f
}
