package tokenizer

import (
	"fmt"
	"math/rand"
)

// Reserved vocabulary entries every backend must carry.
const (
	PadToken  = "[PAD]"
	UnkToken  = "[UNK]"
	ClsToken  = "[CLS]"
	SepToken  = "[SEP]"
	MaskToken = "[MASK]"
)

// Tokenizer converts raw text to token strings and token ids the pipeline
// consumes. Backends are selected by configuration, not inheritance.
type Tokenizer interface {
	// Tokenize splits raw text into token strings. Deterministic given input.
	Tokenize(text string) []string
	// ConvertTokensToIDs maps token strings to vocabulary ids; unknown
	// tokens map to the UNK id.
	ConvertTokensToIDs(tokens []string) []int
	// ConvertIDsToTokens maps vocabulary ids back to token strings; unknown
	// ids map to "[UNK]".
	ConvertIDsToTokens(ids []int) []string
	// RandomTokenID draws a uniform id over the non-control vocabulary.
	RandomTokenID(rng *rand.Rand) int
}

// Config holds basic tokenizer settings
type Config struct {
	Backend   string
	VocabPath string
}

// ErrUnsupported indicates the tokenizer could not be initialized
var ErrUnsupported = fmt.Errorf("unsupported tokenizer configuration")

// Reserved holds the control-token ids resolved once from a backend and
// reused for the process lifetime.
type Reserved struct {
	Pad  int
	Cls  int
	Sep  int
	Mask int
}

// ResolveReserved looks up the ids of the reserved tokens through the
// adapter. Every reserved token must exist in the vocabulary.
func ResolveReserved(t Tokenizer) (Reserved, error) {
	names := []string{PadToken, ClsToken, SepToken, MaskToken}
	ids := t.ConvertTokensToIDs(names)
	unk := t.ConvertTokensToIDs([]string{UnkToken})[0]
	for i, id := range ids {
		// A reserved token that resolves to the UNK id is absent from the vocab.
		if id == unk {
			return Reserved{}, fmt.Errorf("reserved token %s missing from vocabulary", names[i])
		}
	}
	return Reserved{Pad: ids[0], Cls: ids[1], Sep: ids[2], Mask: ids[3]}, nil
}

// IsControl reports whether id is one of the reserved control ids.
func (r Reserved) IsControl(id int) bool {
	return id == r.Pad || id == r.Cls || id == r.Sep || id == r.Mask
}

// New builds a Tokenizer for the configured backend.
func New(cfg Config) (Tokenizer, error) {
	switch cfg.Backend {
	case "", "wordpiece":
		return LoadWordPieceFromVocab(cfg.VocabPath)
	case "sugarme":
		return NewSugarWordPiece(cfg.VocabPath)
	default:
		return nil, fmt.Errorf("%w: backend %q", ErrUnsupported, cfg.Backend)
	}
}
