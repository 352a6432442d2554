package tokenizer

import (
	"math/rand"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
)

// SugarWordPiece wraps sugarme/tokenizer WordPiece (BERT-style)
type SugarWordPiece struct {
	t *tk.Tokenizer
}

// NewSugarWordPiece loads vocab.txt and builds a BERT WordPiece tokenizer
func NewSugarWordPiece(vocabPath string) (*SugarWordPiece, error) {
	// Prefer initializing WordPiece from a vocab file to avoid nil-map panics
	var wp wordpiece.WordPiece
	if fi, err := os.Stat(vocabPath); err == nil && !fi.IsDir() {
		if nw, err := wordpiece.NewWordPieceFromFile(vocabPath, UnkToken); err == nil {
			wp = nw
		} else {
			builder := wordpiece.NewWordPieceBuilder().Files(vocabPath)
			wp = builder.Build()
		}
	} else {
		vocabFile := filepath.Join(vocabPath, "vocab.txt")
		if nw, err := wordpiece.NewWordPieceFromFile(vocabFile, UnkToken); err == nil {
			wp = nw
		} else {
			// fallback: try builder directly with provided path
			builder := wordpiece.NewWordPieceBuilder().Files(vocabPath)
			wp = builder.Build()
		}
	}

	t := tk.NewTokenizer(wp)

	// Basic normalizer and pre-tokenizer similar to BERT
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	return &SugarWordPiece{t: t}, nil
}

// Tokenize returns the raw wordpiece strings without special tokens; the
// feature encoder inserts CLS/SEP itself.
func (s *SugarWordPiece) Tokenize(text string) []string {
	enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), false)
	if err != nil {
		return nil
	}
	return enc.GetTokens()
}

func (s *SugarWordPiece) ConvertTokensToIDs(tokens []string) []int {
	ids := make([]int, len(tokens))
	unk, _ := s.t.TokenToId(UnkToken)
	for i, tok := range tokens {
		if id, ok := s.t.TokenToId(tok); ok {
			ids[i] = id
		} else {
			ids[i] = unk
		}
	}
	return ids
}

func (s *SugarWordPiece) ConvertIDsToTokens(ids []int) []string {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		if tok, ok := s.t.IdToToken(id); ok {
			tokens[i] = tok
		} else {
			tokens[i] = UnkToken
		}
	}
	return tokens
}

// RandomTokenID draws uniformly over the non-control vocabulary.
func (s *SugarWordPiece) RandomTokenID(rng *rand.Rand) int {
	size := s.t.GetVocabSize(true)
	for {
		id := rng.Intn(size)
		tok, ok := s.t.IdToToken(id)
		if !ok {
			continue
		}
		switch tok {
		case PadToken, UnkToken, ClsToken, SepToken, MaskToken:
			continue
		}
		return id
	}
}
