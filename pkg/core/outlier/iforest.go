package outlier

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	eulerGamma    = 0.5772156649
	maxSampleSize = 256
)

// IsolationForest scores points by how quickly random splits isolate them.
// Scores near 1 are anomalies, around 0.5 or below are normal. The top
// ceil(contamination·n) points are flagged when their score exceeds 0.5.
// A fixed seed makes runs reproducible.
type IsolationForest struct {
	trees         int
	contamination float64
	seed          uint64
}

func NewIsolationForest(trees int, contamination float64, seed uint64) *IsolationForest {
	return &IsolationForest{trees: trees, contamination: contamination, seed: seed}
}

func (f *IsolationForest) Name() string   { return "isolation_forest" }
func (f *IsolationForest) MinPoints() int { return 4 }

type itree struct {
	split       float64
	left, right *itree
	size        int // leaf only
}

func (f *IsolationForest) Detect(values []float64) []bool {
	out := make([]bool, len(values))
	scores := f.Scores(values)
	if scores == nil {
		return out
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	k := int(math.Ceil(f.contamination * float64(len(values))))
	for _, i := range order[:min(k, len(order))] {
		if scores[i] > 0.5 {
			out[i] = true
		}
	}
	return out
}

// Scores returns the anomaly score of every value.
func (f *IsolationForest) Scores(values []float64) []float64 {
	n := len(values)
	if n < 2 {
		return nil
	}
	rng := rand.New(rand.NewPCG(f.seed, f.seed^0x9e3779b97f4a7c15))
	psi := min(n, maxSampleSize)
	limit := int(math.Ceil(math.Log2(float64(psi))))

	forest := make([]*itree, f.trees)
	for t := range forest {
		forest[t] = grow(subsample(values, psi, rng), 0, limit, rng)
	}

	norm := avgPathLength(psi)
	scores := make([]float64, n)
	for i, v := range values {
		var total float64
		for _, tree := range forest {
			total += pathLength(v, tree, 0)
		}
		scores[i] = math.Pow(2, -(total/float64(len(forest)))/norm)
	}
	return scores
}

func subsample(values []float64, size int, rng *rand.Rand) []float64 {
	perm := rng.Perm(len(values))
	out := make([]float64, size)
	for i := range out {
		out[i] = values[perm[i]]
	}
	return out
}

func grow(sample []float64, depth, limit int, rng *rand.Rand) *itree {
	if depth >= limit || len(sample) <= 1 {
		return &itree{size: len(sample)}
	}
	lo, hi := floats.Min(sample), floats.Max(sample)
	if lo == hi {
		return &itree{size: len(sample)}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right []float64
	for _, v := range sample {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}
	return &itree{
		split: split,
		left:  grow(left, depth+1, limit, rng),
		right: grow(right, depth+1, limit, rng),
	}
}

func pathLength(v float64, t *itree, depth int) float64 {
	if t.left == nil {
		return float64(depth) + avgPathLength(t.size)
	}
	if v < t.split {
		return pathLength(v, t.left, depth+1)
	}
	return pathLength(v, t.right, depth+1)
}

// avgPathLength is c(n), the mean unsuccessful-search depth of a BST.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
