// Package anomaly watches operational metrics for outliers using an
// isolation forest and writes explained anomaly alerts to the store.
package anomaly

import (
	"math"
	"math/rand"
	"sort"
)

const (
	numTrees     = 100
	maxSubsample = 256
	forestSeed   = 42
)

// IsolationForest isolates points by random axis-aligned splits; points
// with short average path lengths are outliers. Fitting is deterministic
// for a given input since the source is seeded.
type IsolationForest struct {
	trees         []*isoNode
	subsample     int
	contamination float64
	offset        float64
}

type isoNode struct {
	left, right  *isoNode
	splitFeature int
	splitValue   float64
	size         int
}

// NewIsolationForest builds a forest with the given expected outlier
// fraction. Contamination sets the decision threshold after fitting.
func NewIsolationForest(contamination float64) *IsolationForest {
	return &IsolationForest{contamination: contamination}
}

// FitPredict fits the forest on X and returns, per row, the prediction
// (-1 outlier, 1 inlier) and the decision score (negative = outlier,
// more negative = more anomalous).
func (f *IsolationForest) FitPredict(X [][]float64) (preds []int, scores []float64) {
	n := len(X)
	preds = make([]int, n)
	scores = make([]float64, n)
	if n == 0 {
		return preds, scores
	}

	f.subsample = maxSubsample
	if n < f.subsample {
		f.subsample = n
	}

	rng := rand.New(rand.NewSource(forestSeed))
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(f.subsample), 2))))
	f.trees = make([]*isoNode, numTrees)
	for t := 0; t < numTrees; t++ {
		idx := rng.Perm(n)[:f.subsample]
		sample := make([][]float64, f.subsample)
		for i, j := range idx {
			sample[i] = X[j]
		}
		f.trees[t] = buildTree(sample, 0, heightLimit, rng)
	}

	raw := make([]float64, n)
	cNorm := avgPathLength(f.subsample)
	for i, x := range X {
		sum := 0.0
		for _, tree := range f.trees {
			sum += pathLength(x, tree, 0)
		}
		mean := sum / float64(len(f.trees))
		// score_samples convention: -2^(-E[h]/c), in [-1, 0).
		raw[i] = -math.Pow(2, -mean/cNorm)
	}

	f.offset = percentile(raw, f.contamination*100)
	for i, s := range raw {
		scores[i] = s - f.offset
		if scores[i] < 0 {
			preds[i] = -1
		} else {
			preds[i] = 1
		}
	}
	return preds, scores
}

func buildTree(X [][]float64, depth, heightLimit int, rng *rand.Rand) *isoNode {
	n := len(X)
	if n <= 1 || depth >= heightLimit {
		return &isoNode{size: n}
	}

	nFeat := len(X[0])
	feat := rng.Intn(nFeat)
	lo, hi := X[0][feat], X[0][feat]
	for _, row := range X[1:] {
		if row[feat] < lo {
			lo = row[feat]
		}
		if row[feat] > hi {
			hi = row[feat]
		}
	}
	if lo == hi {
		return &isoNode{size: n}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range X {
		if row[feat] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &isoNode{
		splitFeature: feat,
		splitValue:   split,
		left:         buildTree(left, depth+1, heightLimit, rng),
		right:        buildTree(right, depth+1, heightLimit, rng),
		size:         n,
	}
}

func pathLength(x []float64, node *isoNode, depth int) float64 {
	if node.left == nil {
		return float64(depth) + avgPathLength(node.size)
	}
	if x[node.splitFeature] < node.splitValue {
		return pathLength(x, node.left, depth+1)
	}
	return pathLength(x, node.right, depth+1)
}

// avgPathLength is the expected path length of an unsuccessful BST
// search over n points, used to normalize isolation depths.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	harmonic := math.Log(fn-1) + 0.5772156649
	return 2*harmonic - 2*(fn-1)/fn
}

// percentile interpolates linearly between order statistics.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
