package encode

import (
	"math"
	"math/rand"
)

// geomProb is the success probability of the geometric draw that picks a
// span length in span masking.
const geomProb = 0.2

// maskCandidates collects the positions eligible for masking: everything
// not holding a control CLS/SEP token.
func (e *Encoder) maskCandidates(tokens []int) []int {
	candidates := make([]int, 0, len(tokens))
	for i, tok := range tokens {
		if tok != e.reserved.Cls && tok != e.reserved.Sep {
			candidates = append(candidates, i)
		}
	}
	return candidates
}

// maskCount is the number of positions to touch, clamped so it can never
// exceed the candidate pool.
func (e *Encoder) maskCount(total, candidates int) int {
	count := int(math.Round(float64(total) * e.maskProb))
	if count > candidates {
		count = candidates
	}
	return count
}

// substitute applies the 80/10/10 rule to one position: 80% MASK, 10% a
// uniformly random non-control id, 10% left unchanged. The label keeps the
// original id regardless.
func (e *Encoder) substitute(rng *rand.Rand, tokens []int, pos int) {
	if rng.Float64() < 0.8 {
		tokens[pos] = e.reserved.Mask
	} else if rng.Float64() < 0.5 {
		tokens[pos] = e.tok.RandomTokenID(rng)
	}
}

// maskPerToken is the two-segment policy: shuffle the candidate positions
// and substitute the first maskCount of them independently.
func (e *Encoder) maskPerToken(rng *rand.Rand, tokens []int) {
	candidates := e.maskCandidates(tokens)
	count := e.maskCount(len(tokens), len(candidates))
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for _, pos := range candidates[:count] {
		e.substitute(rng, tokens, pos)
	}
}

// maskSpans is the single-segment policy: draw one span length from a
// geometric distribution, partition the candidate positions into chunks of
// that length, then substitute chunk by chunk in shuffled order until
// maskCount positions are touched. Adjacent positions are masked together,
// which biases the signal toward span prediction.
func (e *Encoder) maskSpans(rng *rand.Rand, tokens []int) {
	candidates := e.maskCandidates(tokens)
	count := e.maskCount(len(tokens), len(candidates))

	spanLen := geometricDraw(rng, geomProb)
	if spanLen > e.maxWordsLength {
		spanLen = e.maxWordsLength
	}
	if spanLen > count {
		spanLen = count
	}
	if spanLen > len(candidates) {
		spanLen = len(candidates)
	}
	if spanLen <= 0 {
		return
	}

	chunks := splitChunks(candidates, len(candidates)/spanLen)
	rng.Shuffle(len(chunks), func(i, j int) {
		chunks[i], chunks[j] = chunks[j], chunks[i]
	})

	masked := 0
	for _, chunk := range chunks {
		for _, pos := range chunk {
			masked++
			e.substitute(rng, tokens, pos)
			if masked == count {
				return
			}
		}
	}
}

// geometricDraw samples from a geometric distribution with support
// {1, 2, ...} by inversion.
func geometricDraw(rng *rand.Rand, p float64) int {
	u := rng.Float64()
	k := int(math.Ceil(math.Log(1-u) / math.Log(1-p)))
	if k < 1 {
		k = 1
	}
	return k
}

// splitChunks partitions xs into n nearly equal contiguous chunks; the
// leading chunks take the remainder, one element each.
func splitChunks(xs []int, n int) [][]int {
	if n < 1 {
		n = 1
	}
	if n > len(xs) {
		n = len(xs)
	}
	size := len(xs) / n
	rem := len(xs) % n
	chunks := make([][]int, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		chunks = append(chunks, xs[start:end])
		start = end
	}
	return chunks
}
