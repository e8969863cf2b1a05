// Package trainer fits and evaluates the resale price regression model and
// decides when the deployed model needs retraining.
package trainer

import (
	"math"
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"
)

// Model scores feature vectors against known prices.
type Model interface {
	Predict(features []float64) float64
	Score(features [][]float64, labels []float64) float64
}

// GBDTParams configures gradient boosted regression.
type GBDTParams struct {
	Estimators   int     `json:"estimators"`
	MaxDepth     int     `json:"max_depth"`
	LearningRate float64 `json:"learning_rate"`
	Subsample    float64 `json:"subsample"`
	MinLeaf      int     `json:"min_leaf"`
	Seed         int64   `json:"seed"`
}

// DefaultGBDTParams mirrors the hyperparameters the model was tuned with.
func DefaultGBDTParams() GBDTParams {
	return GBDTParams{
		Estimators:   100,
		MaxDepth:     6,
		LearningRate: 0.1,
		Subsample:    0.8,
		MinLeaf:      5,
		Seed:         42,
	}
}

// treeNode is one node of a regression tree, stored flat for JSON round-trips.
// Leaf nodes have Left == -1.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		v := x[n.Feature]
		// Missing values follow the left branch.
		if math.IsNaN(v) || v <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBDT is a gradient boosted decision tree regressor with squared loss.
type GBDT struct {
	Params GBDTParams       `json:"params"`
	Base   float64          `json:"base"`
	Trees  []regressionTree `json:"trees"`
}

// Fit trains the ensemble on the given feature matrix and labels.
func Fit(features [][]float64, labels []float64, params GBDTParams) (*GBDT, error) {
	if len(features) == 0 {
		return nil, eris.New("trainer: fit on empty dataset")
	}
	if len(features) != len(labels) {
		return nil, eris.Errorf("trainer: %d feature rows but %d labels", len(features), len(labels))
	}

	base := mean(labels)
	m := &GBDT{Params: params, Base: base}

	rng := rand.New(rand.NewSource(params.Seed))
	residuals := make([]float64, len(labels))
	preds := make([]float64, len(labels))
	for i := range preds {
		preds[i] = base
	}

	sampleSize := int(params.Subsample * float64(len(features)))
	if sampleSize < 1 {
		sampleSize = len(features)
	}

	for e := 0; e < params.Estimators; e++ {
		for i := range labels {
			residuals[i] = labels[i] - preds[i]
		}

		idx := rng.Perm(len(features))[:sampleSize]
		tree := buildTree(features, residuals, idx, params)
		m.Trees = append(m.Trees, tree)

		for i, x := range features {
			preds[i] += params.LearningRate * tree.predict(x)
		}
	}
	return m, nil
}

// Predict returns the predicted price for one feature vector.
func (m *GBDT) Predict(x []float64) float64 {
	p := m.Base
	for i := range m.Trees {
		p += m.Params.LearningRate * m.Trees[i].predict(x)
	}
	return p
}

// Score returns the coefficient of determination (R^2) on the given set.
func (m *GBDT) Score(features [][]float64, labels []float64) float64 {
	if len(features) == 0 {
		return math.NaN()
	}
	mu := mean(labels)
	var ssRes, ssTot float64
	for i, x := range features {
		d := labels[i] - m.Predict(x)
		ssRes += d * d
		t := labels[i] - mu
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// buildTree grows one depth-limited regression tree on the sampled rows,
// fitting the current residuals.
func buildTree(features [][]float64, target []float64, idx []int, params GBDTParams) regressionTree {
	t := regressionTree{}
	t.grow(features, target, idx, 0, params)
	return t
}

func (t *regressionTree) grow(features [][]float64, target []float64, idx []int, depth int, params GBDTParams) int {
	node := treeNode{Left: -1, Right: -1, Value: meanAt(target, idx)}
	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, node)

	if depth >= params.MaxDepth || len(idx) < 2*params.MinLeaf {
		return self
	}

	feature, threshold, ok := bestSplit(features, target, idx, params.MinLeaf)
	if !ok {
		return self
	}

	var left, right []int
	for _, i := range idx {
		v := features[i][feature]
		if math.IsNaN(v) || v <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < params.MinLeaf || len(right) < params.MinLeaf {
		return self
	}

	t.Nodes[self].Feature = feature
	t.Nodes[self].Threshold = threshold
	t.Nodes[self].Left = t.grow(features, target, left, depth+1, params)
	t.Nodes[self].Right = t.grow(features, target, right, depth+1, params)
	return self
}

// bestSplit scans every feature for the threshold that minimizes the summed
// squared error of the two partitions.
func bestSplit(features [][]float64, target []float64, idx []int, minLeaf int) (int, float64, bool) {
	nFeatures := len(features[idx[0]])
	bestScore := math.Inf(1)
	bestFeature, bestThreshold := -1, 0.0

	vals := make([]float64, 0, len(idx))
	for f := 0; f < nFeatures; f++ {
		vals = vals[:0]
		for _, i := range idx {
			if v := features[i][f]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) < 2 {
			continue
		}
		sort.Float64s(vals)

		for k := 0; k+1 < len(vals); k++ {
			if vals[k] == vals[k+1] {
				continue
			}
			threshold := (vals[k] + vals[k+1]) / 2

			var lSum, lSq, rSum, rSq float64
			var lN, rN int
			for _, i := range idx {
				v := features[i][f]
				y := target[i]
				if math.IsNaN(v) || v <= threshold {
					lSum += y
					lSq += y * y
					lN++
				} else {
					rSum += y
					rSq += y * y
					rN++
				}
			}
			if lN < minLeaf || rN < minLeaf {
				continue
			}
			score := (lSq - lSum*lSum/float64(lN)) + (rSq - rSum*rSum/float64(rN))
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = threshold
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func meanAt(xs []float64, idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += xs[i]
	}
	return s / float64(len(idx))
}
