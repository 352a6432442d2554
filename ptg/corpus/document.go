package corpus

import (
	"errors"
	"math/rand"
)

// Sentence is an ordered, non-empty sequence of token ids produced by
// tokenizing one non-blank input line.
type Sentence []int

// Document is an ordered sequence of Sentences. Document boundaries are
// blank input lines.
type Document []Sentence

// Locator addresses one sentence within a corpus. The index holds plain
// integer ids into the document arena, never node references.
type Locator struct {
	DocID  int
	Offset int
}

// Common corpus error conditions. All are fatal at construction or lookup
// time and never retried.
var (
	ErrEmptyCorpus   = errors.New("corpus contains no documents")
	ErrOutOfRange    = errors.New("sample ordinal out of range")
	ErrShortDocument = errors.New("document too short for pair sampling")
)

// PairSource yields successor sentence pairs and negative draws for
// next-sentence-prediction sampling. Implementations are not safe for
// concurrent use; assign one instance per worker.
type PairSource interface {
	// Len reports the number of usable sample ordinals.
	Len() int
	// RandomSent returns a (first, second, isNext) triple for ordinal i.
	// With probability 0.5 the second segment is the true successor
	// (label 0); otherwise it is drawn from another document (label 1).
	RandomSent(i int, rng *rand.Rand) (Sentence, Sentence, int, error)
}
