// Package pipeline holds the fitted two-stage model: a preprocessing stage
// that encodes a raw record into a numeric row, and a classifier stage that
// scores that row.
package pipeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/kartoza/aviation-risk/internal/record"
)

// Stage keys used in artifacts
const (
	StagePreprocess = "pre"
	StageClassifier = "clf"
)

// FeatureKind says how a transformed feature is derived from its column
type FeatureKind string

const (
	KindNumeric     FeatureKind = "numeric"
	KindCategorical FeatureKind = "categorical"
)

// Feature is one output position of the preprocessing stage
type Feature struct {
	// Name is the encoded identifier, e.g. "num__Altitude" or "cat__Weather_Fog"
	Name   string
	Column string
	Kind   FeatureKind
	// Category is the one-hot category for categorical features
	Category string
	// Center and Scale standardise numeric features: (x - Center) / Scale
	Center float64
	Scale  float64
	// Background is the expected transformed value over the training data
	Background float64
}

// Preprocessor is the fitted preprocessing stage
type Preprocessor struct {
	features []Feature
	columns  []string
}

// NewPreprocessor builds the stage from its ordered output features
func NewPreprocessor(features []Feature) (*Preprocessor, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("preprocessing stage has no features")
	}

	seenName := make(map[string]bool, len(features))
	seenCol := make(map[string]bool)
	p := &Preprocessor{features: make([]Feature, len(features))}

	for i, f := range features {
		if f.Name == "" {
			return nil, fmt.Errorf("feature %d has no name", i)
		}
		if seenName[f.Name] {
			return nil, fmt.Errorf("duplicate feature name %q", f.Name)
		}
		seenName[f.Name] = true

		if f.Column == "" {
			return nil, fmt.Errorf("feature %q has no source column", f.Name)
		}
		switch f.Kind {
		case KindNumeric:
			if f.Scale == 0 {
				f.Scale = 1
			}
		case KindCategorical:
			if f.Category == "" {
				return nil, fmt.Errorf("categorical feature %q has no category", f.Name)
			}
		default:
			return nil, fmt.Errorf("feature %q has unknown kind %q", f.Name, f.Kind)
		}

		if !seenCol[f.Column] {
			seenCol[f.Column] = true
			p.columns = append(p.columns, f.Column)
		}
		p.features[i] = f
	}

	sort.Strings(p.columns)
	return p, nil
}

// Features returns a copy of the ordered output features
func (p *Preprocessor) Features() []Feature {
	out := make([]Feature, len(p.features))
	copy(out, p.features)
	return out
}

// FeatureNames returns the encoded feature names in output order
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, len(p.features))
	for i, f := range p.features {
		names[i] = f.Name
	}
	return names
}

// Feature returns the feature at a position
func (p *Preprocessor) Feature(i int) Feature {
	return p.features[i]
}

// Width is the length of every transformed row
func (p *Preprocessor) Width() int {
	return len(p.features)
}

// RequiredColumns returns the sorted raw columns the stage was fitted on
func (p *Preprocessor) RequiredColumns() []string {
	out := make([]string, len(p.columns))
	copy(out, p.columns)
	return out
}

// Transform encodes one record. Extra columns in the record are ignored.
func (p *Preprocessor) Transform(rec record.RawRecord) ([]float64, error) {
	var missing []string
	for _, col := range p.columns {
		if !rec.Has(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Missing: missing}
	}

	row := make([]float64, len(p.features))
	invalid := make(map[string]string)

	for i, f := range p.features {
		v, _ := rec.Get(f.Column)
		switch f.Kind {
		case KindNumeric:
			x, ok := v.Float()
			if !ok || math.IsNaN(x) {
				invalid[f.Column] = fmt.Sprintf("%q is not a number", v.String())
				continue
			}
			row[i] = (x - f.Center) / f.Scale
		case KindCategorical:
			if v.String() == f.Category {
				row[i] = 1
			}
		}
	}

	if len(invalid) > 0 {
		return nil, &SchemaMismatchError{Invalid: invalid}
	}
	return row, nil
}

// Classifier is the fitted classifier stage. Probability and label are
// derived independently, so a tuned decision threshold may label a record
// differently from a naive 0.5 cut.
type Classifier interface {
	Kind() string
	// PredictProba returns [P(no incident), P(incident)]
	PredictProba(row []float64) [2]float64
	// Predict returns the class label, 0 or 1
	Predict(row []float64) int
}

// Metadata describes an artifact
type Metadata struct {
	Format      string
	Version     string
	Description string
}

// Pipeline is the loaded artifact. It is read-only after construction.
type Pipeline struct {
	Metadata Metadata
	Pre      *Preprocessor
	Clf      Classifier
}

// FeatureNames returns the encoded names of the transformed features
func (p *Pipeline) FeatureNames() []string {
	return p.Pre.FeatureNames()
}

// Transform applies the preprocessing stage
func (p *Pipeline) Transform(rec record.RawRecord) ([]float64, error) {
	return p.Pre.Transform(rec)
}

// PredictProba runs both stages and returns the class probabilities
func (p *Pipeline) PredictProba(rec record.RawRecord) ([2]float64, error) {
	row, err := p.Pre.Transform(rec)
	if err != nil {
		return [2]float64{}, err
	}
	return p.Clf.PredictProba(row), nil
}

// Predict runs both stages and returns the class label
func (p *Pipeline) Predict(rec record.RawRecord) (int, error) {
	row, err := p.Pre.Transform(rec)
	if err != nil {
		return 0, err
	}
	return p.Clf.Predict(row), nil
}
