package corpus

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/ZanzyTHEbar/pretraingen/ptg/tokenizer"
)

// BlockStore is the single-segment (MLM-only) corpus: documents reduced to
// flat token-id blocks, an ordering over them, and the optional sidecar
// resume state when the store was opened from a serialized blocks file.
type BlockStore struct {
	tok    tokenizer.Tokenizer
	maxPos int

	// sentenceStack packs consecutive sentences of a document into one
	// block of at most maxPos-2 ids instead of one block per line
	sentenceStack bool

	blocks []Sentence
	index  *ResumeIndex

	// set only when loaded from a blocks file; enables the resume sidecar
	sidecarPath string

	logger *slog.Logger
}

// BlockStoreOption customizes a BlockStore.
type BlockStoreOption func(*BlockStore)

// WithSentenceStack toggles packing of consecutive sentences into blocks.
func WithSentenceStack(stack bool) BlockStoreOption {
	return func(s *BlockStore) { s.sentenceStack = stack }
}

// WithBlockStoreLogger sets a custom logger
func WithBlockStoreLogger(logger *slog.Logger) BlockStoreOption {
	return func(s *BlockStore) { s.logger = logger }
}

// NewBlockStoreFromFile tokenizes a line-oriented corpus file into blocks
// and shuffles the ordering with rng.
func NewBlockStoreFromFile(tok tokenizer.Tokenizer, path string, maxPos int, rng *rand.Rand, opts ...BlockStoreOption) (*BlockStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()
	s, err := newBlockStore(tok, f, maxPos, rng, opts...)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", path, err)
	}
	return s, nil
}

// NewBlockStoreFromTexts builds the store from in-memory lines.
func NewBlockStoreFromTexts(tok tokenizer.Tokenizer, texts []string, maxPos int, rng *rand.Rand, opts ...BlockStoreOption) (*BlockStore, error) {
	return newBlockStore(tok, strings.NewReader(strings.Join(texts, "\n")), maxPos, rng, opts...)
}

func newBlockStore(tok tokenizer.Tokenizer, r io.Reader, maxPos int, rng *rand.Rand, opts ...BlockStoreOption) (*BlockStore, error) {
	s := &BlockStore{tok: tok, maxPos: maxPos, sentenceStack: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	var stack Sentence
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		stack = s.loadLine(stack, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(stack) > 0 {
		s.blocks = append(s.blocks, stack)
	}
	if len(s.blocks) == 0 {
		return nil, ErrEmptyCorpus
	}
	s.index = NewResumeIndex(len(s.blocks), rng)
	s.logger.Info("blocks loaded", "blocks", len(s.blocks))
	return s, nil
}

func (s *BlockStore) loadLine(stack Sentence, text string) Sentence {
	text = strings.TrimSpace(text)
	if text == "" {
		if len(stack) > 0 {
			s.blocks = append(s.blocks, stack)
			return nil
		}
		return stack
	}
	ids := s.tok.ConvertTokensToIDs(s.tok.Tokenize(text))
	if !s.sentenceStack {
		s.blocks = append(s.blocks, ids)
		return stack
	}
	// flush a block that the next sentence would overflow; the sentence
	// starts the next block instead of being dropped
	if len(stack)+len(ids) > s.maxPos-2 && len(stack) > 0 {
		s.blocks = append(s.blocks, stack)
		stack = nil
	}
	return append(stack, ids...)
}

// Len reports the number of blocks in the current ordering.
func (s *BlockStore) Len() int { return s.index.Len() }

// Block returns the token block at ordering position i.
func (s *BlockStore) Block(i int) (Sentence, error) {
	if i < 0 || i >= s.index.Len() {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, s.index.Len())
	}
	return s.blocks[s.index.At(i)], nil
}

// Index exposes the ordering for resume bookkeeping.
func (s *BlockStore) Index() *ResumeIndex { return s.index }

// SaveBlocks serializes the token blocks so later runs can skip
// tokenization entirely. A ".gz" suffix selects transparent compression.
func (s *BlockStore) SaveBlocks(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create blocks file %s: %w", path, err)
	}
	defer f.Close()
	var w io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	if err := cbor.NewEncoder(w).Encode(s.blocks); err != nil {
		return fmt.Errorf("encode blocks %s: %w", path, err)
	}
	return nil
}

// NewBlockStoreFromBlocks opens a serialized blocks file, shuffles a fresh
// ordering, and replays the ".index" sidecar if one survives from an
// earlier run: its unconsumed order comes first, duplicates removed with
// first occurrence preserved.
func NewBlockStoreFromBlocks(path string, rng *rand.Rand, opts ...BlockStoreOption) (*BlockStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blocks file %s: %w", path, err)
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip blocks %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	s := &BlockStore{logger: slog.Default(), sidecarPath: path + ".index"}
	for _, opt := range opts {
		opt(s)
	}
	if err := cbor.NewDecoder(r).Decode(&s.blocks); err != nil {
		return nil, fmt.Errorf("decode blocks %s: %w", path, err)
	}
	if len(s.blocks) == 0 {
		return nil, ErrEmptyCorpus
	}
	s.index = NewResumeIndex(len(s.blocks), rng)
	prev, err := LoadSidecar(s.sidecarPath)
	if err != nil {
		return nil, err
	}
	if len(prev) > 0 {
		s.index.MergeSidecar(prev)
		s.logger.Info("resume indices loaded", "remaining", len(prev))
	}
	s.logger.Info("blocks loaded", "blocks", len(s.blocks), "ordering", s.index.Len())
	return s, nil
}

// DumpResumeIndices persists the unconsumed suffix of the ordering after
// steps consumed examples. It is a no-op for stores without a sidecar
// (stores built directly from raw text).
func (s *BlockStore) DumpResumeIndices(steps int) error {
	if s.sidecarPath == "" {
		return nil
	}
	return s.index.DumpSuffix(s.sidecarPath, steps)
}
