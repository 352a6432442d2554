package corpus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pretraingen/ptg/tokenizer"
)

func testTok() *tokenizer.WordPiece {
	return tokenizer.NewWordPieceFromTokens([]string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
		"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog",
		"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta",
	})
}

// two documents, three sentences each
func testCorpusLines() []string {
	return []string{
		"the quick brown",
		"fox jumps over",
		"lazy dog",
		"",
		"alpha beta",
		"gamma delta epsilon",
		"zeta eta theta",
	}
}

func TestPairStoreLoad(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"DocumentBoundaries", testStoreBoundaries},
		{"TrailingDocumentCommitted", testStoreTrailingDoc},
		{"SampleIndexSkipsLastLine", testStoreSampleIndex},
		{"EmptyCorpusFails", testStoreEmpty},
		{"OutOfRangeOrdinal", testStoreOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testStoreBoundaries(t *testing.T) {
	s, err := NewPairStoreFromTexts(testTok(), testCorpusLines())
	require.NoError(t, err)

	assert.Equal(t, 2, s.NumDocs())
	assert.Equal(t, 6, s.corpusLines)
	// 6 lines - 2 docs - 1 = 3 usable ordinals
	assert.Equal(t, 3, s.Len())
}

func testStoreTrailingDoc(t *testing.T) {
	// no trailing blank line: the open document is still committed
	withBlank := append(testCorpusLines(), "")
	a, err := NewPairStoreFromTexts(testTok(), testCorpusLines())
	require.NoError(t, err)
	b, err := NewPairStoreFromTexts(testTok(), withBlank)
	require.NoError(t, err)

	assert.Equal(t, a.NumDocs(), b.NumDocs())
	assert.Equal(t, a.Len(), b.Len())
}

func testStoreSampleIndex(t *testing.T) {
	tok := testTok()
	s, err := NewPairStoreFromTexts(tok, testCorpusLines())
	require.NoError(t, err)

	// ordinal 0 is (line 0, line 1) of document 0
	t1, t2, err := s.Pair(0)
	require.NoError(t, err)
	assert.Equal(t, Sentence(tok.ConvertTokensToIDs([]string{"the", "quick", "brown"})), t1)
	assert.Equal(t, Sentence(tok.ConvertTokensToIDs([]string{"fox", "jumps", "over"})), t2)

	// ordinal 2 crosses into document 1
	t1, t2, err = s.Pair(2)
	require.NoError(t, err)
	assert.Equal(t, Sentence(tok.ConvertTokensToIDs([]string{"alpha", "beta"})), t1)
	assert.Equal(t, Sentence(tok.ConvertTokensToIDs([]string{"gamma", "delta", "epsilon"})), t2)
}

func testStoreEmpty(t *testing.T) {
	_, err := NewPairStoreFromTexts(testTok(), []string{"", "", ""})
	assert.ErrorIs(t, err, ErrEmptyCorpus)

	_, err = NewPairStoreFromTexts(testTok(), nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func testStoreOutOfRange(t *testing.T) {
	s, err := NewPairStoreFromTexts(testTok(), testCorpusLines())
	require.NoError(t, err)

	_, _, err = s.Pair(s.Len())
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, _, err = s.Pair(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRandomSentLabels(t *testing.T) {
	s, err := NewPairStoreFromTexts(testTok(), testCorpusLines())
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(21))

	positives, negatives := 0, 0
	for i := 0; i < 400; i++ {
		t1, t2, isNext, err := s.RandomSent(i%s.Len(), rng)
		require.NoError(t, err)
		require.NotEmpty(t, t1)
		require.NotEmpty(t, t2)

		switch isNext {
		case 0:
			positives++
			_, want, err := s.Pair(i % s.Len())
			require.NoError(t, err)
			assert.Equal(t, want, t2, "is-next pair must be the true successor")
		case 1:
			negatives++
		default:
			t.Fatalf("unexpected label %d", isNext)
		}
	}
	// both labels occur with roughly even frequency
	assert.Greater(t, positives, 120)
	assert.Greater(t, negatives, 120)
}
