package corpus

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/pretraingen/ptg/tokenizer"
)

// PairStore materializes the whole corpus in memory: a document arena plus
// a flat sample index mapping ordinal -> (doc, sentence) locator.
type PairStore struct {
	tok       tokenizer.Tokenizer
	documents []Document
	locators  []Locator

	corpusLines int
	numDocs     int

	// document of the most recent true-pair lookup; negative draws avoid it
	currentDoc int

	logger *slog.Logger
}

// PairStoreOption customizes a PairStore.
type PairStoreOption func(*PairStore)

// WithPairStoreLogger sets a custom logger
func WithPairStoreLogger(logger *slog.Logger) PairStoreOption {
	return func(s *PairStore) { s.logger = logger }
}

// NewPairStoreFromFile loads a line-oriented corpus file. One sentence per
// line; a blank line closes the current document; a document still open at
// EOF is committed.
func NewPairStoreFromFile(tok tokenizer.Tokenizer, path string, opts ...PairStoreOption) (*PairStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()
	s, err := newPairStore(tok, f, opts...)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", path, err)
	}
	return s, nil
}

// NewPairStoreFromTexts loads the corpus from in-memory lines.
func NewPairStoreFromTexts(tok tokenizer.Tokenizer, texts []string, opts ...PairStoreOption) (*PairStore, error) {
	return newPairStore(tok, strings.NewReader(strings.Join(texts, "\n")), opts...)
}

func newPairStore(tok tokenizer.Tokenizer, r io.Reader, opts ...PairStoreOption) (*PairStore, error) {
	s := &PairStore{tok: tok, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	var doc Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		doc = s.loadLine(doc, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	// commit a document left open by a missing terminal blank line
	if len(doc) > 0 {
		s.documents = append(s.documents, doc)
		s.locators = s.locators[:len(s.locators)-1]
	}
	s.numDocs = len(s.documents)
	if s.numDocs == 0 {
		return nil, ErrEmptyCorpus
	}
	if s.Len() <= 0 {
		return nil, fmt.Errorf("%w: no usable sentence pairs", ErrEmptyCorpus)
	}

	s.logger.Info("corpus loaded",
		"documents", s.numDocs,
		"lines", s.corpusLines,
		"samples", s.Len())
	return s, nil
}

func (s *PairStore) loadLine(doc Document, text string) Document {
	text = strings.TrimSpace(text)
	if text == "" {
		if len(doc) > 0 {
			s.documents = append(s.documents, doc)
			// the final sentence of a closed document has no successor
			s.locators = s.locators[:len(s.locators)-1]
			return nil
		}
		return doc
	}
	s.locators = append(s.locators, Locator{DocID: len(s.documents), Offset: len(doc)})
	ids := s.tok.ConvertTokensToIDs(s.tok.Tokenize(text))
	s.corpusLines++
	return append(doc, ids)
}

// Len reports the number of usable sample ordinals. The last line of each
// document has no successor, and ordinals start at zero.
func (s *PairStore) Len() int {
	return s.corpusLines - s.numDocs - 1
}

// NumDocs reports the number of loaded documents.
func (s *PairStore) NumDocs() int { return s.numDocs }

// Pair returns the true successor pair for ordinal i.
func (s *PairStore) Pair(i int) (Sentence, Sentence, error) {
	if i < 0 || i >= s.Len() {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, s.Len())
	}
	loc := s.locators[i]
	doc := s.documents[loc.DocID]
	s.currentDoc = loc.DocID
	return doc[loc.Offset], doc[loc.Offset+1], nil
}

// RandomSent implements PairSource.
func (s *PairStore) RandomSent(i int, rng *rand.Rand) (Sentence, Sentence, int, error) {
	t1, t2, err := s.Pair(i)
	if err != nil {
		return nil, nil, 0, err
	}
	if rng.Float64() > 0.5 {
		return t1, t2, 0, nil
	}
	return t1, s.randomLine(rng), 1, nil
}

// randomLine draws a sentence from a uniformly random document, retrying up
// to ten times while the draw lands in the current document. The last draw
// is accepted on exhaustion.
func (s *PairStore) randomLine(rng *rand.Rand) Sentence {
	var line Sentence
	for try := 0; try < 10; try++ {
		docIdx := rng.Intn(len(s.documents))
		doc := s.documents[docIdx]
		line = doc[rng.Intn(len(doc))]
		if docIdx != s.currentDoc {
			break
		}
	}
	return line
}
