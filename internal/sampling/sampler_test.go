package sampling

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"testing"
)

const tol = 1e-5

func sum(x []float32) float64 {
	var s float64
	for _, v := range x {
		s += float64(v)
	}
	return s
}

func nonZero(x []float32) int {
	n := 0
	for _, v := range x {
		if v != 0 {
			n++
		}
	}
	return n
}

func randomScores(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64() * 3)
	}
	return out
}

func TestDistributionSumsToOne(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(1))
	opts := []Options{
		{},
		{Temperature: 0.7},
		{Temperature: 1.8, TopK: 5},
		{TopP: 0.9},
		{Temperature: 0.5, TopK: 10, TopP: 0.5},
		{TopK: 1},
	}
	for trial := 0; trial < 50; trial++ {
		scores := randomScores(rng, 32)
		for _, o := range opts {
			got := sum(Distribution(scores, o))
			if math.Abs(got-1) > tol {
				t.Fatalf("trial %d opts %+v: sum=%v", trial, o, got)
			}
		}
	}
}

func TestDistributionTopKKeepsExactlyK(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(2))
	for k := 1; k < 16; k++ {
		scores := randomScores(rng, 16)
		prob := Distribution(scores, Options{TopK: k})
		if n := nonZero(prob); n != k {
			t.Fatalf("k=%d: expected %d non-zero entries, got %d", k, k, n)
		}
	}
}

func TestDistributionTopKOutOfRangeIsNoop(t *testing.T) {
	t.Parallel()
	scores := []float32{0.5, 1, -2, 3}
	base := Distribution(scores, Options{})
	for _, k := range []int{0, -1, 4, 10} {
		got := Distribution(scores, Options{TopK: k})
		for i := range got {
			if got[i] != base[i] {
				t.Fatalf("k=%d index %d: got %v want %v", k, i, got[i], base[i])
			}
		}
	}
}

func TestDistributionTopPKeepsMinimalPrefix(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 40; trial++ {
		scores := randomScores(rng, 20)
		p := 0.1 + rng.Float64()*0.8

		full := Distribution(scores, Options{})
		filtered := Distribution(scores, Options{TopP: p})

		kept := make([]int, 0, len(full))
		for i, v := range filtered {
			if v > 0 {
				kept = append(kept, i)
			}
		}
		sort.Slice(kept, func(a, b int) bool { return full[kept[a]] > full[kept[b]] })

		var cum float64
		for _, idx := range kept {
			cum += float64(full[idx])
		}
		if cum < p-tol {
			t.Fatalf("trial %d: kept mass %v below p=%v", trial, cum, p)
		}
		without := cum - float64(full[kept[len(kept)-1]])
		if without > p+tol {
			t.Fatalf("trial %d: prefix is not minimal, %v already reaches p=%v", trial, without, p)
		}
		// every dropped entry is no more probable than the least kept one
		minKept := full[kept[len(kept)-1]]
		for i, v := range filtered {
			if v == 0 && full[i] > minKept {
				t.Fatalf("trial %d: dropped index %d (%v) is above kept minimum %v", trial, i, full[i], minKept)
			}
		}
	}
}

func TestDistributionTemperatureOneIsNoop(t *testing.T) {
	t.Parallel()
	scores := []float32{1.5, -0.25, 3, 0}
	a := Distribution(scores, Options{Temperature: 1})
	b := Distribution(scores, Options{})
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("index %d: %v != %v", i, a[i], b[i])
		}
	}
	c := Distribution(scores, Options{Temperature: -3})
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("negative temperature changed index %d: %v != %v", i, c[i], a[i])
		}
	}
}

func TestDistributionTemperatureSharpens(t *testing.T) {
	t.Parallel()
	scores := []float32{2, 1, 0}
	cold := Distribution(scores, Options{Temperature: 0.5})
	warm := Distribution(scores, Options{Temperature: 2})
	if !(cold[0] > warm[0]) {
		t.Fatalf("expected lower temperature to sharpen: cold=%v warm=%v", cold, warm)
	}
}

func TestDistributionThreeScores(t *testing.T) {
	t.Parallel()
	prob := Distribution([]float32{2.0, 1.0, 0.1}, Options{Temperature: 1})
	if len(prob) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(prob))
	}
	if !(prob[0] > prob[1] && prob[1] > prob[2]) {
		t.Fatalf("unexpected ordering: %v", prob)
	}
	if math.Abs(sum(prob)-1) > tol {
		t.Fatalf("sum=%v", sum(prob))
	}
	// softmax([2,1,0.1]) ≈ [0.659, 0.242, 0.099]
	if math.Abs(float64(prob[0])-0.659) > 1e-3 {
		t.Fatalf("unexpected p0: %v", prob[0])
	}
}

func TestDistributionTopKOne(t *testing.T) {
	t.Parallel()
	scores := []float32{-1, 5, 3, 7, 2}
	prob := Distribution(scores, Options{TopK: 1})
	if nonZero(prob) != 1 {
		t.Fatalf("expected a single non-zero entry, got %v", prob)
	}
	if prob[3] != 1 {
		t.Fatalf("expected index 3 to hold 1.0, got %v", prob)
	}
}

func TestDistributionTopKTieKeepsLowerIndex(t *testing.T) {
	t.Parallel()
	prob := Distribution([]float32{1, 4, 4, 0}, Options{TopK: 1})
	if prob[1] != 1 || prob[2] != 0 {
		t.Fatalf("expected the first of the tied maxima to survive, got %v", prob)
	}
}

func TestDistributionEdgeCases(t *testing.T) {
	t.Parallel()
	if got := Distribution(nil, Options{TopK: 3}); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
	inf := float32(math.Inf(-1))
	got := Distribution([]float32{inf, inf}, Options{})
	if got[0] != 0 || got[1] != 0 {
		t.Fatalf("expected zeros when nothing is finite, got %v", got)
	}
	got = Distribution([]float32{inf, 0, inf}, Options{})
	if got[1] != 1 {
		t.Fatalf("expected all mass on the only finite score, got %v", got)
	}
}

func TestDistributionPositiveInfinity(t *testing.T) {
	t.Parallel()
	pinf := float32(math.Inf(1))
	got := Distribution([]float32{pinf, 1, 0}, Options{})
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("expected all mass on +Inf, got %v", got)
	}

	got = Distribution([]float32{pinf, 5, pinf, float32(math.NaN())}, Options{Temperature: 0.5, TopP: 0.9})
	for i, p := range got {
		if math.IsNaN(float64(p)) {
			t.Fatalf("entry %d is NaN: %v", i, got)
		}
	}
	if math.Abs(sum(got)-1) > tol {
		t.Fatalf("expected sum 1, got %v (%v)", sum(got), got)
	}
	if got[0] != got[2] || got[1] != 0 || got[3] != 0 {
		t.Fatalf("expected +Inf entries to share the mass, got %v", got)
	}
}

func TestRankOrdersByProbability(t *testing.T) {
	t.Parallel()
	prob := []float32{0.1, 0.5, 0.1, 0.3}
	ranked, err := Rank(prob, func(id int) (string, error) { return "t" + strconv.Itoa(id), nil })
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	wantIDs := []int{1, 3, 0, 2}
	for i, tp := range ranked {
		if tp.ID != wantIDs[i] {
			t.Fatalf("position %d: got id %d want %d (%+v)", i, tp.ID, wantIDs[i], ranked)
		}
		if tp.Token != "t"+strconv.Itoa(tp.ID) {
			t.Fatalf("position %d: unexpected token %q", i, tp.Token)
		}
	}

	back := Probabilities(ranked)
	for i := range prob {
		if back[i] != prob[i] {
			t.Fatalf("Probabilities mismatch at %d: %v vs %v", i, back[i], prob[i])
		}
	}
}

func TestRankKeepsZeroEntries(t *testing.T) {
	t.Parallel()
	prob := Distribution([]float32{3, 1, 0, -1}, Options{TopK: 2})
	ranked, err := Rank(prob, func(id int) (string, error) { return "x", nil })
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(ranked) != 4 {
		t.Fatalf("expected every index to be present, got %d", len(ranked))
	}
	if ranked[2].Probability != 0 || ranked[3].Probability != 0 {
		t.Fatalf("expected filtered entries at the tail with probability 0: %+v", ranked)
	}
}

func TestSamplerDeterminism(t *testing.T) {
	t.Parallel()
	prob := Distribution([]float32{0, 1, 2, 3, 4, 5}, Options{Temperature: 0.9, TopK: 4, TopP: 0.95})
	s1 := NewSampler(42)
	s2 := NewSampler(42)
	for i := 0; i < 10; i++ {
		a := s1.Draw(prob)
		b := s2.Draw(prob)
		if a != b {
			t.Fatalf("expected deterministic draw, got %d vs %d", a, b)
		}
		if prob[a] == 0 {
			t.Fatalf("drew filtered index %d", a)
		}
	}
}

func TestSamplerDrawFallsBackToArgmax(t *testing.T) {
	t.Parallel()
	s := NewSampler(7)
	if got := s.Draw([]float32{0, 0, 0}); got != 0 {
		t.Fatalf("expected argmax fallback 0, got %d", got)
	}
	if got := s.Draw(nil); got != -1 {
		t.Fatalf("expected -1 for empty input, got %d", got)
	}
	if got := Argmax([]float32{-1, 5, 3, 7, 2}); got != 3 {
		t.Fatalf("expected argmax 3, got %d", got)
	}
}
