package explain

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/kartoza/aviation-risk/internal/pipeline"
	"github.com/kartoza/aviation-risk/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func TestTopK(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		k      int
		want   []int
	}{
		{"by magnitude", []float64{0.1, -0.9, 0.5, 0.05}, 2, []int{1, 2}},
		{"ties keep position order", []float64{0.3, -0.3, 0.3}, 2, []int{0, 1}},
		{"k larger than values", []float64{0.2, -0.4}, 5, []int{1, 0}},
		{"single value", []float64{-1.5}, 2, []int{0}},
		{"empty", nil, 2, []int{}},
		{"zero k", []float64{1, 2}, 0, []int{}},
		{"all zero", []float64{0, 0, 0}, 2, []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TopK(tt.values, tt.k))
		})
	}
}

func stump() *pipeline.TreeEnsemble {
	return &pipeline.TreeEnsemble{
		Trees: []pipeline.Tree{{Nodes: []pipeline.Node{
			{Feature: 0, Threshold: 0, Left: 1, Right: 2, Cover: 100},
			{Feature: -1, Value: 1, Cover: 30},
			{Feature: -1, Value: -1, Cover: 70},
		}}},
		Threshold: 0.5,
	}
}

func TestTreeSHAPStump(t *testing.T) {
	ens := stump()

	// left leaf: 1 - (0.3*1 + 0.7*-1) = 1.4
	phi := TreeSHAP(ens, []float64{-1, 7})
	assert.InDelta(t, 1.4, phi[0], tolerance)
	assert.InDelta(t, 0, phi[1], tolerance)

	phi = TreeSHAP(ens, []float64{2, 7})
	assert.InDelta(t, -0.6, phi[0], tolerance)
}

// deepTree splits feature 0 twice on one path and mixes in two other features
func deepTree() *pipeline.TreeEnsemble {
	return &pipeline.TreeEnsemble{
		BaseScore: 0.25,
		Threshold: 0.5,
		Trees: []pipeline.Tree{
			{Nodes: []pipeline.Node{
				{Feature: 0, Threshold: 0.5, Left: 1, Right: 2, Cover: 100},
				{Feature: 1, Threshold: 2, Left: 3, Right: 4, Cover: 60},
				{Feature: 0, Threshold: 1.5, Left: 5, Right: 6, Cover: 40},
				{Feature: -1, Value: 0.8, Cover: 25},
				{Feature: 2, Threshold: 0, Left: 7, Right: 8, Cover: 35},
				{Feature: -1, Value: -0.4, Cover: 15},
				{Feature: -1, Value: 1.2, Cover: 25},
				{Feature: -1, Value: 0.1, Cover: 20},
				{Feature: -1, Value: -0.9, Cover: 15},
			}},
			{Nodes: []pipeline.Node{
				{Feature: 2, Threshold: 0.5, Left: 1, Right: 2, Cover: 100},
				{Feature: -1, Value: -0.3, Cover: 45},
				{Feature: 1, Threshold: 1, Left: 3, Right: 4, Cover: 55},
				{Feature: -1, Value: 0.6, Cover: 30},
				{Feature: -1, Value: -0.2, Cover: 25},
			}},
		},
	}
}

// conditional is the cover-weighted expectation of a tree's output when
// only the features in known are fixed to the row's values
func conditional(nodes []pipeline.Node, i int, row []float64, known map[int]bool) float64 {
	n := nodes[i]
	if n.IsLeaf() {
		return n.Value
	}
	if known[n.Feature] {
		if row[n.Feature] <= n.Threshold {
			return conditional(nodes, n.Left, row, known)
		}
		return conditional(nodes, n.Right, row, known)
	}
	l, r := nodes[n.Left], nodes[n.Right]
	return (l.Cover*conditional(nodes, n.Left, row, known) + r.Cover*conditional(nodes, n.Right, row, known)) / n.Cover
}

func bruteForceSHAP(ens *pipeline.TreeEnsemble, row []float64) []float64 {
	m := len(row)
	value := func(mask int) float64 {
		known := map[int]bool{}
		for j := 0; j < m; j++ {
			if mask&(1<<j) != 0 {
				known[j] = true
			}
		}
		total := 0.0
		for _, t := range ens.Trees {
			total += conditional(t.Nodes, 0, row, known)
		}
		return total
	}

	fact := func(n int) float64 {
		f := 1.0
		for i := 2; i <= n; i++ {
			f *= float64(i)
		}
		return f
	}

	phi := make([]float64, m)
	for i := 0; i < m; i++ {
		for mask := 0; mask < 1<<m; mask++ {
			if mask&(1<<i) != 0 {
				continue
			}
			size := 0
			for j := 0; j < m; j++ {
				if mask&(1<<j) != 0 {
					size++
				}
			}
			w := fact(size) * fact(m-size-1) / fact(m)
			phi[i] += w * (value(mask|1<<i) - value(mask))
		}
	}
	return phi
}

func TestTreeSHAPMatchesBruteForce(t *testing.T) {
	ens := deepTree()
	rows := [][]float64{
		{0, 0, 0},
		{1, 3, -1},
		{2, 3, 1},
		{0.5, 2, 0.5},
		{-4, 5, 2},
		{1.7, 0.5, 0},
	}

	for _, row := range rows {
		got := TreeSHAP(ens, row)
		want := bruteForceSHAP(ens, row)
		require.Len(t, got, len(want))
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-9, "row %v feature %d", row, i)
		}
	}
}

func TestTreeSHAPAdditivity(t *testing.T) {
	ens := deepTree()
	for _, row := range [][]float64{{0, 0, 0}, {2, 3, 1}, {1, 1, 1}} {
		phi := TreeSHAP(ens, row)
		sum := 0.0
		for _, v := range phi {
			sum += v
		}
		assert.InDelta(t, ens.Margin(row)-ens.ExpectedMargin(), sum, 1e-9)
	}
}

func TestTreeSHAPUnusedFeatureIsZero(t *testing.T) {
	ens := deepTree()
	phi := TreeSHAP(ens, []float64{1, 3, -1, 42})
	require.Len(t, phi, 4)
	assert.Equal(t, 0.0, phi[3])
}

func loadDemo(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Load(filepath.Join("..", "..", "model_pipeline.json"))
	require.NoError(t, err)
	return p
}

func TestDemoPipelineAttributions(t *testing.T) {
	p := loadDemo(t)
	ens, ok := p.Clf.(*pipeline.TreeEnsemble)
	require.True(t, ok)

	tests := []struct {
		sample string
		top    []string
		values []float64
	}{
		{"sample_input_0.csv", []string{"cat__Weather_Storm", "num__PilotHours"}, []float64{0.75, 0.66}},
		{"sample_input_1.csv", []string{"num__Visibility", "cat__Weather_Storm"}, []float64{-0.217647, -0.207353}},
		{"sample_input_2.csv", []string{"num__Visibility", "cat__Phase_Takeoff"}, []float64{0.707353, 0.1825}},
	}

	for _, tt := range tests {
		t.Run(tt.sample, func(t *testing.T) {
			rec, err := record.ReadFile(filepath.Join("..", "..", "samples", tt.sample))
			require.NoError(t, err)
			row, err := p.Transform(rec)
			require.NoError(t, err)

			phi, err := NewAuto(p.Pre).Attributions(p.Clf, row)
			require.NoError(t, err)
			require.Len(t, phi, len(p.FeatureNames()))

			sum := 0.0
			for _, v := range phi {
				sum += v
			}
			assert.InDelta(t, ens.Margin(row)-ens.ExpectedMargin(), sum, 1e-9)

			top := TopK(phi, 2)
			require.Len(t, top, 2)
			for i, pos := range top {
				assert.Equal(t, tt.top[i], p.FeatureNames()[pos])
				assert.InDelta(t, tt.values[i], phi[pos], 1e-6)
			}
		})
	}
}

func TestLinear(t *testing.T) {
	clf := &pipeline.Logistic{Weights: []float64{2, -1, 0.5}, Intercept: 0.3, Threshold: 0.5}
	row := []float64{1, 2, 4}
	bg := []float64{0.5, 1, 0}

	phi := Linear(clf, row, bg)
	assert.InDeltaSlice(t, []float64{1, -1, 2}, phi, tolerance)

	sum := phi[0] + phi[1] + phi[2]
	assert.InDelta(t, clf.Margin(row)-clf.Margin(bg), sum, tolerance)

	phi = Linear(clf, row, nil)
	assert.InDeltaSlice(t, []float64{2, -2, 2}, phi, tolerance)
}

func TestAutoLinear(t *testing.T) {
	clf := &pipeline.Logistic{Weights: []float64{1, 1}, Threshold: 0.5}
	phi, err := Auto{Background: []float64{1, 1}}.Attributions(clf, []float64{3, 0})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, -1}, phi, tolerance)

	_, err = Auto{}.Attributions(clf, []float64{1})
	assert.Error(t, err)
}

type constClassifier struct{}

func (constClassifier) Kind() string                       { return "constant" }
func (constClassifier) PredictProba(_ []float64) [2]float64 { return [2]float64{0.5, 0.5} }
func (constClassifier) Predict(_ []float64) int             { return 0 }

func TestAutoUnsupportedClassifier(t *testing.T) {
	_, err := Auto{}.Attributions(constClassifier{}, []float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constant")
}

func TestEngineFunc(t *testing.T) {
	var e Engine = EngineFunc(func(_ pipeline.Classifier, row []float64) ([]float64, error) {
		out := make([]float64, len(row))
		for i, v := range row {
			out[i] = math.Abs(v)
		}
		return out, nil
	})
	phi, err := e.Attributions(constClassifier{}, []float64{-2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, phi)
}
