package sampling

import (
	"math"
	"math/rand"
	"slices"
)

// Options configures Distribution. Zero values disable the matching step.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopK        int     `json:"topK,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
}

// Distribution turns a vector of scores into a probability distribution over
// the same index space. The steps are applied in this order:
//
//  1. Scores are divided by Temperature when it is positive and not 1.
//  2. If 0 < TopK < len(scores), every score outside the TopK highest is set
//     to -Inf.
//  3. A softmax is computed after subtracting the largest finite score.
//  4. If 0 < TopP < 1, only the shortest descending prefix whose cumulative
//     probability reaches TopP is kept and the survivors are renormalised.
//
// The returned slice always has len(scores) entries. If some scores are
// +Inf they split the mass equally. If no score is finite every entry is 0.
func Distribution(scores []float32, opts Options) []float32 {
	n := len(scores)
	if n == 0 {
		return []float32{}
	}

	work := make([]float64, n)
	for i, s := range scores {
		work[i] = float64(s)
	}

	if t := opts.Temperature; t > 0 && t != 1 {
		for i := range work {
			work[i] /= t
		}
	}

	if opts.TopK > 0 && opts.TopK < n {
		order := descending(work)
		for _, idx := range order[opts.TopK:] {
			work[idx] = math.Inf(-1)
		}
	}

	prob := softmax(work)

	if opts.TopP > 0 && opts.TopP < 1 {
		nucleus(prob, opts.TopP)
	}

	out := make([]float32, n)
	for i, p := range prob {
		out[i] = float32(p)
	}
	return out
}

// softmax normalises x in place and returns it. Entries at -Inf or NaN
// become 0. Any +Inf entries share all of the mass equally.
func softmax(x []float64) []float64 {
	if inf := countPosInf(x); inf > 0 {
		share := 1 / float64(inf)
		for i, v := range x {
			if math.IsInf(v, 1) {
				x[i] = share
			} else {
				x[i] = 0
			}
		}
		return x
	}

	maxv := math.Inf(-1)
	for _, v := range x {
		if !math.IsInf(v, 0) && !math.IsNaN(v) && v > maxv {
			maxv = v
		}
	}
	if math.IsInf(maxv, -1) {
		clear(x)
		return x
	}

	var sum float64
	for i, v := range x {
		if math.IsInf(v, -1) || math.IsNaN(v) {
			x[i] = 0
			continue
		}
		e := math.Exp(v - maxv)
		x[i] = e
		sum += e
	}
	if sum == 0 {
		return x
	}
	inv := 1.0 / sum
	for i := range x {
		x[i] *= inv
	}
	return x
}

func countPosInf(x []float64) int {
	n := 0
	for _, v := range x {
		if math.IsInf(v, 1) {
			n++
		}
	}
	return n
}

// nucleus keeps the smallest descending prefix of prob whose cumulative sum
// reaches p, zeroes the rest and renormalises in place.
func nucleus(prob []float64, p float64) {
	order := descending(prob)

	cut := len(order)
	var c float64
	for i, idx := range order {
		c += prob[idx]
		if c >= p {
			cut = i + 1
			break
		}
	}
	for _, idx := range order[cut:] {
		prob[idx] = 0
	}

	var kept float64
	for _, idx := range order[:cut] {
		kept += prob[idx]
	}
	if kept <= 0 {
		return
	}
	inv := 1.0 / kept
	for _, idx := range order[:cut] {
		prob[idx] *= inv
	}
}

// descending returns the indices of x ordered by decreasing value. Equal
// values keep their index order.
func descending(x []float64) []int {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case x[a] > x[b]:
			return -1
		case x[a] < x[b]:
			return 1
		default:
			return 0
		}
	})
	return order
}

// Sampler draws token indices from a distribution produced by Distribution.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a sampler seeded with seed.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Draw picks an index with probability proportional to prob. It falls back
// to the argmax when the distribution carries no mass.
func (s *Sampler) Draw(prob []float32) int {
	if len(prob) == 0 {
		return -1
	}
	var total float64
	for _, p := range prob {
		total += float64(p)
	}
	if total <= 0 {
		return Argmax(prob)
	}

	r := s.rng.Float64() * total
	var c float64
	last := -1
	for i, p := range prob {
		if p <= 0 {
			continue
		}
		c += float64(p)
		last = i
		if r < c {
			return i
		}
	}
	return last
}

// Argmax returns the index of the largest value, or -1 for an empty slice.
func Argmax(x []float32) int {
	if len(x) == 0 {
		return -1
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
