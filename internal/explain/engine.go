// Package explain computes additive feature attributions for a single
// transformed row and turns encoded feature names into readable labels.
package explain

import (
	"fmt"

	"github.com/kartoza/aviation-risk/internal/pipeline"
)

// Engine computes one signed attribution per transformed feature. The
// values sum to the classifier's margin for the row minus its expected margin.
type Engine interface {
	Attributions(clf pipeline.Classifier, row []float64) ([]float64, error)
}

// EngineFunc adapts a function to the Engine interface
type EngineFunc func(clf pipeline.Classifier, row []float64) ([]float64, error)

func (f EngineFunc) Attributions(clf pipeline.Classifier, row []float64) ([]float64, error) {
	return f(clf, row)
}

// Auto picks the exact algorithm for the classifier's type
type Auto struct {
	// Background is the expected transformed row, used by linear models
	Background []float64
}

// NewAuto builds an engine with the preprocessing stage's background row
func NewAuto(pre *pipeline.Preprocessor) Auto {
	bg := make([]float64, pre.Width())
	for i, f := range pre.Features() {
		bg[i] = f.Background
	}
	return Auto{Background: bg}
}

func (a Auto) Attributions(clf pipeline.Classifier, row []float64) ([]float64, error) {
	switch c := clf.(type) {
	case *pipeline.TreeEnsemble:
		return TreeSHAP(c, row), nil
	case *pipeline.Logistic:
		if len(c.Weights) != len(row) {
			return nil, fmt.Errorf("linear attribution: %d weights for a row of %d", len(c.Weights), len(row))
		}
		return Linear(c, row, a.Background), nil
	default:
		return nil, fmt.Errorf("no attribution method for classifier kind %q", clf.Kind())
	}
}

// Linear returns w_i * (x_i - background_i). A nil background means zeros.
func Linear(clf *pipeline.Logistic, row, background []float64) []float64 {
	phi := make([]float64, len(row))
	for i, w := range clf.Weights {
		b := 0.0
		if i < len(background) {
			b = background[i]
		}
		phi[i] = w * (row[i] - b)
	}
	return phi
}
