package sampling

import (
	"fmt"
	"slices"
)

// TokenProb is one entry of a ranked distribution.
type TokenProb struct {
	ID          int     `json:"id"`
	Token       string  `json:"token"`
	Probability float32 `json:"probability"`
}

// DecodeFunc maps a single token id to its text.
type DecodeFunc func(id int) (string, error)

// Rank pairs every index of prob with its decoded text and orders the result
// by descending probability. Ties keep index order. Zero-probability entries
// are kept so the result always covers the whole vocabulary.
func Rank(prob []float32, decode DecodeFunc) ([]TokenProb, error) {
	out := make([]TokenProb, len(prob))
	for i, p := range prob {
		text, err := decode(i)
		if err != nil {
			return nil, fmt.Errorf("decode token %d: %w", i, err)
		}
		out[i] = TokenProb{ID: i, Token: text, Probability: p}
	}
	slices.SortStableFunc(out, func(a, b TokenProb) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

// Probabilities returns the probabilities of a ranked list indexed by token id.
func Probabilities(ranked []TokenProb) []float32 {
	out := make([]float32, len(ranked))
	for _, tp := range ranked {
		if tp.ID >= 0 && tp.ID < len(out) {
			out[tp.ID] = tp.Probability
		}
	}
	return out
}
