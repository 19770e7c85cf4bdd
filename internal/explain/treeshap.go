package explain

import "github.com/kartoza/aviation-risk/internal/pipeline"

// pathElement tracks one feature on the current root-to-node path
type pathElement struct {
	feature int
	zero    float64 // fraction of cover flowing down this path when the feature is absent
	one     float64 // 1 if the row follows this path when the feature is present
	weight  float64
}

// TreeSHAP returns exact path-dependent Shapley values of the ensemble's
// margin for one row, using node covers as the background distribution.
func TreeSHAP(ens *pipeline.TreeEnsemble, row []float64) []float64 {
	phi := make([]float64, len(row))
	for _, t := range ens.Trees {
		w := &treeWalker{nodes: t.Nodes, row: row, phi: phi}
		maxDepth := len(t.Nodes) + 1
		w.recurse(0, 0, make([]pathElement, 0, maxDepth), 1, 1, -1)
	}
	return phi
}

type treeWalker struct {
	nodes []pipeline.Node
	row   []float64
	phi   []float64
}

func (w *treeWalker) recurse(node, depth int, parent []pathElement, zero, one float64, feature int) {
	path := make([]pathElement, depth+1)
	copy(path, parent[:depth])
	extendPath(path, depth, zero, one, feature)

	n := w.nodes[node]
	if n.IsLeaf() {
		for i := 1; i <= depth; i++ {
			s := unwoundPathSum(path, depth, i)
			el := path[i]
			w.phi[el.feature] += s * (el.one - el.zero) * n.Value
		}
		return
	}

	hot, cold := n.Left, n.Right
	if w.row[n.Feature] > n.Threshold {
		hot, cold = n.Right, n.Left
	}
	hotZero := w.nodes[hot].Cover / n.Cover
	coldZero := w.nodes[cold].Cover / n.Cover

	incomingZero, incomingOne := 1.0, 1.0
	// a feature split on twice is undone before being redone here
	for k := 1; k <= depth; k++ {
		if path[k].feature == n.Feature {
			incomingZero, incomingOne = path[k].zero, path[k].one
			unwindPath(path, depth, k)
			depth--
			break
		}
	}

	w.recurse(hot, depth+1, path, hotZero*incomingZero, incomingOne, n.Feature)
	w.recurse(cold, depth+1, path, coldZero*incomingZero, 0, n.Feature)
}

func extendPath(path []pathElement, depth int, zero, one float64, feature int) {
	path[depth] = pathElement{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

func unwindPath(path []pathElement, depth, index int) {
	one, zero := path[index].one, path[index].zero
	next := path[depth].weight
	d := float64(depth + 1)

	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}

	for i := index; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

func unwoundPathSum(path []pathElement, depth, index int) float64 {
	one, zero := path[index].one, path[index].zero
	next := path[depth].weight
	d := float64(depth + 1)
	total := 0.0

	for i := depth - 1; i >= 0; i-- {
		switch {
		case one != 0:
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/d
		case zero != 0:
			total += (path[i].weight / zero) / (float64(depth-i) / d)
		}
	}
	return total
}
