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

// seqCursor is the sequential file cursor: an open handle, a one-line
// lookback buffer so the second sentence of a pair becomes the first
// sentence of the next pair, and the id of the document it is inside.
type seqCursor struct {
	path     string
	file     *os.File
	scanner  *bufio.Scanner
	lookback string
	hasLook  bool
	docID    int
}

func openSeqCursor(path string) (*seqCursor, error) {
	c := &seqCursor{path: path}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *seqCursor) reset() error {
	if c.file != nil {
		c.file.Close()
	}
	f, err := os.Open(c.path)
	if err != nil {
		return err
	}
	c.file = f
	c.scanner = bufio.NewScanner(f)
	c.scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	c.lookback = ""
	c.hasLook = false
	c.docID = 0
	return nil
}

func (c *seqCursor) nextLine() (string, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.scanner.Text()), nil
}

// nextPair returns the next adjacent sentence pair, skipping blank
// separator lines and counting document boundaries as it crosses them.
func (c *seqCursor) nextPair() (string, string, error) {
	var t1, t2 string
	var err error
	if !c.hasLook {
		for t1 == "" || t2 == "" {
			if t1, err = c.nextLine(); err != nil {
				return "", "", err
			}
			if t2, err = c.nextLine(); err != nil {
				return "", "", err
			}
		}
	} else {
		t1 = c.lookback
		if t2, err = c.nextLine(); err != nil {
			return "", "", err
		}
		for t2 == "" || t1 == "" {
			if t1, err = c.nextLine(); err != nil {
				return "", "", err
			}
			if t2, err = c.nextLine(); err != nil {
				return "", "", err
			}
			c.docID++
		}
	}
	c.lookback = t2
	c.hasLook = true
	return t1, t2, nil
}

func (c *seqCursor) close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

// randCursor is the independent random-access cursor used only for
// negative draws. It wraps to the start of the file on exhaustion and
// tracks which document it is inside by counting blank lines.
type randCursor struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	docID   int
}

func openRandCursor(path string) (*randCursor, error) {
	c := &randCursor{path: path}
	if err := c.reopen(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *randCursor) reopen() error {
	if c.file != nil {
		c.file.Close()
	}
	f, err := os.Open(c.path)
	if err != nil {
		return err
	}
	c.file = f
	c.scanner = bufio.NewScanner(f)
	c.scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	return nil
}

func (c *randCursor) scanLine() (string, bool, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return strings.TrimSpace(c.scanner.Text()), true, nil
}

// nextLine returns the next non-blank line, wrapping at EOF.
func (c *randCursor) nextLine() (string, error) {
	line, ok, err := c.scanLine()
	if err != nil {
		return "", err
	}
	if !ok {
		if err := c.reopen(); err != nil {
			return "", err
		}
		if line, ok, err = c.scanLine(); err != nil || !ok {
			return "", fmt.Errorf("random cursor: empty file after wrap")
		}
	}
	if line == "" {
		c.docID++
		return c.nextLine()
	}
	return line, nil
}

func (c *randCursor) close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

// LazyPairStore scans the corpus once to count lines and documents, then
// serves pairs from two live file cursors without holding tokenized
// documents in memory. Not safe for concurrent use; assign one instance
// per worker.
type LazyPairStore struct {
	tok  tokenizer.Tokenizer
	path string

	corpusLines int
	numDocs     int

	seq  *seqCursor
	rand *randCursor

	sampleCounter int

	logger *slog.Logger
}

// NewLazyPairStore pre-scans path, then opens the sequential and random
// cursors.
func NewLazyPairStore(tok tokenizer.Tokenizer, path string, logger *slog.Logger) (*LazyPairStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LazyPairStore{tok: tok, path: path, logger: logger}
	if err := s.scanCounts(); err != nil {
		return nil, fmt.Errorf("scan corpus %s: %w", path, err)
	}
	if s.Len() <= 0 {
		return nil, fmt.Errorf("%w: no usable sentence pairs in %s", ErrEmptyCorpus, path)
	}
	var err error
	if s.seq, err = openSeqCursor(path); err != nil {
		return nil, err
	}
	if s.rand, err = openRandCursor(path); err != nil {
		s.seq.close()
		return nil, err
	}
	logger.Info("corpus scanned",
		"documents", s.numDocs,
		"lines", s.corpusLines,
		"samples", s.Len())
	return s, nil
}

// scanCounts counts non-blank lines and document boundaries without
// tokenizing anything.
func (s *LazyPairStore) scanCounts() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	last := ""
	seen := false
	for scanner.Scan() {
		seen = true
		last = strings.TrimSpace(scanner.Text())
		if last == "" {
			s.numDocs++
		} else {
			s.corpusLines++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !seen {
		return ErrEmptyCorpus
	}
	// a document open at EOF without a trailing blank line still counts
	if last != "" {
		s.numDocs++
	}
	return nil
}

// Len mirrors the in-memory accounting: the last line of each document has
// no successor and ordinals start at zero.
func (s *LazyPairStore) Len() int {
	return s.corpusLines - s.numDocs - 1
}

// Pair returns the next sequential sentence pair. The ordinal is bounds
// checked but consumption is strictly sequential; after a full epoch the
// sequential cursor starts over from the beginning of the file.
func (s *LazyPairStore) Pair(i int) (Sentence, Sentence, error) {
	if i < 0 || i >= s.Len() {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, s.Len())
	}
	if s.sampleCounter != 0 && s.sampleCounter%s.Len() == 0 {
		if err := s.seq.reset(); err != nil {
			return nil, nil, err
		}
	}
	s.sampleCounter++

	t1, t2, err := s.seq.nextPair()
	if err == io.EOF {
		// start over when the file runs out mid-epoch
		if err = s.seq.reset(); err == nil {
			t1, t2, err = s.seq.nextPair()
		}
	}
	if err != nil {
		return nil, nil, err
	}
	a := s.tok.ConvertTokensToIDs(s.tok.Tokenize(t1))
	b := s.tok.ConvertTokensToIDs(s.tok.Tokenize(t2))
	return a, b, nil
}

// RandomSent implements PairSource.
func (s *LazyPairStore) RandomSent(i int, rng *rand.Rand) (Sentence, Sentence, int, error) {
	t1, t2, err := s.Pair(i)
	if err != nil {
		return nil, nil, 0, err
	}
	if rng.Float64() > 0.5 {
		return t1, t2, 0, nil
	}
	neg, err := s.randomLine(rng)
	if err != nil {
		return nil, nil, 0, err
	}
	return t1, neg, 1, nil
}

// randomLine walks the random cursor a bounded pseudo-random number of
// steps, retrying up to ten times while it lands in the document the
// sequential cursor is inside. The last draw is accepted on exhaustion.
func (s *LazyPairStore) randomLine(rng *rand.Rand) (Sentence, error) {
	bound := s.corpusLines
	if bound > 1000 {
		bound = 1000
	}
	var raw string
	for try := 0; try < 10; try++ {
		steps := rng.Intn(bound) + 1
		for j := 0; j < steps; j++ {
			line, err := s.rand.nextLine()
			if err != nil {
				return nil, err
			}
			raw = line
		}
		if s.rand.docID != s.seq.docID {
			break
		}
	}
	return s.tok.ConvertTokensToIDs(s.tok.Tokenize(raw)), nil
}

// Close releases both file cursors.
func (s *LazyPairStore) Close() error {
	if err := s.seq.close(); err != nil {
		s.rand.close()
		return err
	}
	return s.rand.close()
}
