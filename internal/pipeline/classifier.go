package pipeline

import (
	"fmt"
	"math"
)

// Classifier kinds as stored in artifacts
const (
	ClassifierTreeEnsemble = "tree_ensemble"
	ClassifierLogistic     = "logistic"
)

// DefaultThreshold is the decision threshold when the artifact sets none
const DefaultThreshold = 0.5

func sigmoid(m float64) float64 {
	return 1 / (1 + math.Exp(-m))
}

func probaFromMargin(m float64) [2]float64 {
	p := sigmoid(m)
	return [2]float64{1 - p, p}
}

// Node is one node of a regression tree. Leaves have Feature < 0.
// Rows with row[Feature] <= Threshold go Left.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	// Cover is the training weight that reached the node
	Cover float64
}

// IsLeaf reports whether the node is a leaf
func (n Node) IsLeaf() bool {
	return n.Feature < 0
}

// Tree is a regression tree rooted at Nodes[0]
type Tree struct {
	Nodes []Node
}

// Leaf returns the index of the leaf the row falls into
func (t Tree) Leaf(row []float64) int {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Predict returns the leaf value for the row
func (t Tree) Predict(row []float64) float64 {
	return t.Nodes[t.Leaf(row)].Value
}

// ExpectedValue is the cover-weighted mean leaf value
func (t Tree) ExpectedValue() float64 {
	root := t.Nodes[0].Cover
	if root == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range t.Nodes {
		if n.IsLeaf() {
			sum += n.Value * n.Cover
		}
	}
	return sum / root
}

func (t Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for i, n := range t.Nodes {
		if n.IsLeaf() {
			continue
		}
		if n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d, only %d features", i, n.Feature, width)
		}
		// children after parents keeps every tree acyclic
		for _, c := range []int{n.Left, n.Right} {
			if c <= i || c >= len(t.Nodes) {
				return fmt.Errorf("node %d has invalid child %d", i, c)
			}
		}
		if n.Cover <= 0 {
			return fmt.Errorf("node %d has non-positive cover", i)
		}
	}
	return nil
}

// TreeEnsemble is a boosted tree classifier scoring in log-odds space
type TreeEnsemble struct {
	Trees     []Tree
	BaseScore float64
	Threshold float64
}

func (e *TreeEnsemble) Kind() string { return ClassifierTreeEnsemble }

// Margin returns the raw log-odds score
func (e *TreeEnsemble) Margin(row []float64) float64 {
	m := e.BaseScore
	for _, t := range e.Trees {
		m += t.Predict(row)
	}
	return m
}

// ExpectedMargin is the margin averaged over the training distribution
func (e *TreeEnsemble) ExpectedMargin() float64 {
	m := e.BaseScore
	for _, t := range e.Trees {
		m += t.ExpectedValue()
	}
	return m
}

func (e *TreeEnsemble) PredictProba(row []float64) [2]float64 {
	return probaFromMargin(e.Margin(row))
}

func (e *TreeEnsemble) Predict(row []float64) int {
	if e.PredictProba(row)[1] >= e.Threshold {
		return 1
	}
	return 0
}

// Logistic is a linear classifier over the transformed row
type Logistic struct {
	Weights   []float64
	Intercept float64
	Threshold float64
}

func (l *Logistic) Kind() string { return ClassifierLogistic }

// Margin returns intercept + w·x
func (l *Logistic) Margin(row []float64) float64 {
	m := l.Intercept
	for i, w := range l.Weights {
		m += w * row[i]
	}
	return m
}

func (l *Logistic) PredictProba(row []float64) [2]float64 {
	return probaFromMargin(l.Margin(row))
}

func (l *Logistic) Predict(row []float64) int {
	if l.PredictProba(row)[1] >= l.Threshold {
		return 1
	}
	return 0
}
