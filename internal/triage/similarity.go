package triage

import "slices"

// Scorer blends token-set overlap with an edit-distance ratio. Weights are
// relative; they do not have to sum to one.
type Scorer struct {
	SetWeight  float64
	EditWeight float64
}

// DefaultScorer weights Jaccard overlap 0.6 and edit ratio 0.4.
var DefaultScorer = Scorer{SetWeight: 0.6, EditWeight: 0.4}

// Similarity scores a and b with DefaultScorer.
func Similarity(a, b NormalizedText) float64 {
	return DefaultScorer.Score(a, b)
}

// Score returns a value in [0, 1]. It is symmetric, identical token
// sequences score 1.0, two empty texts score 1.0, and empty against
// non-empty scores 0.0.
func (s Scorer) Score(a, b NormalizedText) float64 {
	switch {
	case a.Empty() && b.Empty():
		return 1
	case a.Empty() || b.Empty():
		return 0
	case slices.Equal(a.Tokens, b.Tokens):
		return 1
	}

	total := s.SetWeight + s.EditWeight
	if total <= 0 {
		return 0
	}
	score := (s.SetWeight*jaccard(a, b) + s.EditWeight*editRatio(a.Joined(), b.Joined())) / total
	return clamp01(score)
}

// jaccard is |A ∩ B| / |A ∪ B| over the distinct tokens.
func jaccard(a, b NormalizedText) float64 {
	as, bs := a.set(), b.set()
	inter := 0
	for tok := range as {
		if _, ok := bs[tok]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// editRatio is 1 - levenshtein(a, b) / max(len(a), len(b)), counted in runes.
func editRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
