package corpus

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCorpusFile(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestLazyPairStore(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{"ScanCountsMatchMemory", testLazyScanCounts},
		{"SequentialPairsMatchMemory", testLazySequentialPairs},
		{"WrapsAfterEpoch", testLazyEpochWrap},
		{"RandomCursorWraps", testLazyRandomCursor},
		{"EmptyCorpusFails", testLazyEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.test)
	}
}

func testLazyScanCounts(t *testing.T) {
	path := writeCorpusFile(t, testCorpusLines())
	tok := testTok()

	lazy, err := NewLazyPairStore(tok, path, nil)
	require.NoError(t, err)
	defer lazy.Close()

	mem, err := NewPairStoreFromTexts(tok, testCorpusLines())
	require.NoError(t, err)

	assert.Equal(t, mem.Len(), lazy.Len())
	assert.Equal(t, mem.corpusLines, lazy.corpusLines)
}

func testLazySequentialPairs(t *testing.T) {
	path := writeCorpusFile(t, testCorpusLines())
	tok := testTok()

	lazy, err := NewLazyPairStore(tok, path, nil)
	require.NoError(t, err)
	defer lazy.Close()

	mem, err := NewPairStoreFromTexts(tok, testCorpusLines())
	require.NoError(t, err)

	for i := 0; i < mem.Len(); i++ {
		wantA, wantB, err := mem.Pair(i)
		require.NoError(t, err)
		gotA, gotB, err := lazy.Pair(i)
		require.NoError(t, err)
		assert.Equal(t, wantA, gotA, "pair %d first segment", i)
		assert.Equal(t, wantB, gotB, "pair %d second segment", i)
	}
}

func testLazyEpochWrap(t *testing.T) {
	path := writeCorpusFile(t, testCorpusLines())
	tok := testTok()

	lazy, err := NewLazyPairStore(tok, path, nil)
	require.NoError(t, err)
	defer lazy.Close()

	var first [][2]string
	for epoch := 0; epoch < 2; epoch++ {
		for i := 0; i < lazy.Len(); i++ {
			a, b, err := lazy.Pair(i)
			require.NoError(t, err)
			if epoch == 0 {
				first = append(first, [2]string{fingerprint(a), fingerprint(b)})
			} else {
				assert.Equal(t, first[i][0], fingerprint(a), "epoch repeat pair %d", i)
				assert.Equal(t, first[i][1], fingerprint(b), "epoch repeat pair %d", i)
			}
		}
	}
}

func testLazyRandomCursor(t *testing.T) {
	path := writeCorpusFile(t, testCorpusLines())
	tok := testTok()

	lazy, err := NewLazyPairStore(tok, path, nil)
	require.NoError(t, err)
	defer lazy.Close()
	rng := rand.New(rand.NewSource(77))

	// walk far enough to wrap the file several times
	for i := 0; i < 50; i++ {
		line, err := lazy.randomLine(rng)
		require.NoError(t, err)
		assert.NotEmpty(t, line)
	}
}

func testLazyEmpty(t *testing.T) {
	path := writeCorpusFile(t, []string{"", "", ""})
	_, err := NewLazyPairStore(testTok(), path, nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}
