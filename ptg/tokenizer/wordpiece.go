package tokenizer

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

const maxWordChars = 100

// WordPiece is a vocab-file backed greedy longest-match-first tokenizer.
// One token per line, id = line number. Control tokens are expected at the
// head of the file the way BERT vocabularies ship them.
type WordPiece struct {
	vocab      map[string]int
	tokens     []string
	unkID      int
	controlIDs map[int]bool
}

// LoadWordPieceFromVocab reads a plain vocabulary file.
func LoadWordPieceFromVocab(path string) (*WordPiece, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	wp, err := newWordPiece(f)
	if err != nil {
		return nil, fmt.Errorf("load vocab %s: %w", path, err)
	}
	return wp, nil
}

// NewWordPieceFromTokens builds a tokenizer from an in-memory vocabulary,
// in vocabulary-id order.
func NewWordPieceFromTokens(tokens []string) *WordPiece {
	wp := &WordPiece{
		vocab:      make(map[string]int, len(tokens)),
		controlIDs: make(map[int]bool),
	}
	for _, tok := range tokens {
		wp.add(tok)
	}
	wp.resolveUnk()
	return wp
}

func newWordPiece(f *os.File) (*WordPiece, error) {
	wp := &WordPiece{
		vocab:      make(map[string]int, 32000),
		controlIDs: make(map[int]bool),
	}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		wp.add(tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(wp.tokens) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	wp.resolveUnk()
	return wp, nil
}

func (w *WordPiece) add(tok string) {
	id := len(w.tokens)
	w.vocab[tok] = id
	w.tokens = append(w.tokens, tok)
	switch tok {
	case PadToken, UnkToken, ClsToken, SepToken, MaskToken:
		w.controlIDs[id] = true
	}
}

func (w *WordPiece) resolveUnk() {
	if id, ok := w.vocab[UnkToken]; ok {
		w.unkID = id
	}
}

// Tokenize lowercased-whitespace splits then greedily matches the longest
// vocabulary entry, emitting "##" continuation pieces for word suffixes.
func (w *WordPiece) Tokenize(text string) []string {
	var out []string
	for _, word := range strings.Fields(text) {
		runes := []rune(word)
		if len(runes) > maxWordChars {
			out = append(out, UnkToken)
			continue
		}
		pieces, ok := w.splitWord(runes)
		if !ok {
			out = append(out, UnkToken)
			continue
		}
		out = append(out, pieces...)
	}
	return out
}

func (w *WordPiece) splitWord(runes []rune) ([]string, bool) {
	var pieces []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		cur := ""
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := w.vocab[sub]; ok {
				cur = sub
				break
			}
			end--
		}
		if cur == "" {
			return nil, false
		}
		pieces = append(pieces, cur)
		start = end
	}
	return pieces, true
}

func (w *WordPiece) ConvertTokensToIDs(tokens []string) []int {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		if id, ok := w.vocab[tok]; ok {
			ids[i] = id
		} else {
			ids[i] = w.unkID
		}
	}
	return ids
}

func (w *WordPiece) ConvertIDsToTokens(ids []int) []string {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		if id >= 0 && id < len(w.tokens) {
			tokens[i] = w.tokens[id]
		} else {
			tokens[i] = UnkToken
		}
	}
	return tokens
}

// RandomTokenID draws uniformly over the non-control vocabulary.
func (w *WordPiece) RandomTokenID(rng *rand.Rand) int {
	for {
		id := rng.Intn(len(w.tokens))
		if !w.controlIDs[id] {
			return id
		}
	}
}

// VocabSize reports the vocabulary size including control tokens.
func (w *WordPiece) VocabSize() int { return len(w.tokens) }
