package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
)

// FormatName identifies pipeline artifacts
const FormatName = "flightrisk-pipeline"

// Definition is the serialisable form of a pipeline, shared by the JSON
// artifact and the SQLite model pack
type Definition struct {
	Metadata MetadataDef   `json:"metadata"`
	Pre      PreprocessDef `json:"pre"`
	Clf      ClassifierDef `json:"clf"`
}

// MetadataDef describes the artifact itself
type MetadataDef struct {
	Format      string `json:"format"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

// PreprocessDef lists the transformed features in output order
type PreprocessDef struct {
	Features []FeatureDef `json:"features"`
}

// FeatureDef is one transformed feature and the raw column it reads
type FeatureDef struct {
	Name       string  `json:"name"`
	Column     string  `json:"column"`
	Kind       string  `json:"kind"`
	Category   string  `json:"category,omitempty"`
	Center     float64 `json:"center,omitempty"`
	Scale      float64 `json:"scale,omitempty"`
	Background float64 `json:"background,omitempty"`
}

// ClassifierDef holds either a tree ensemble or logistic coefficients, selected by Kind
type ClassifierDef struct {
	Kind         string      `json:"kind"`
	BaseScore    float64     `json:"base_score,omitempty"`
	Intercept    float64     `json:"intercept,omitempty"`
	Threshold    *float64    `json:"threshold,omitempty"`
	Trees        [][]NodeDef `json:"trees,omitempty"`
	Coefficients []float64   `json:"coefficients,omitempty"`
}

// NodeDef is one tree node. A negative Feature marks a leaf.
type NodeDef struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Cover     float64 `json:"cover"`
}

// DecodeDefinition reads a JSON definition
func DecodeDefinition(r io.Reader) (*Definition, error) {
	var def Definition
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Build validates a definition and assembles the pipeline
func Build(def *Definition) (*Pipeline, error) {
	if def.Metadata.Format != FormatName {
		return nil, fmt.Errorf("unexpected format %q", def.Metadata.Format)
	}

	features := make([]Feature, len(def.Pre.Features))
	for i, f := range def.Pre.Features {
		features[i] = Feature{
			Name:       f.Name,
			Column:     f.Column,
			Kind:       FeatureKind(f.Kind),
			Category:   f.Category,
			Center:     f.Center,
			Scale:      f.Scale,
			Background: f.Background,
		}
	}
	pre, err := NewPreprocessor(features)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StagePreprocess, err)
	}

	clf, err := buildClassifier(def.Clf, pre.Width())
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StageClassifier, err)
	}

	return &Pipeline{
		Metadata: Metadata{
			Format:      def.Metadata.Format,
			Version:     def.Metadata.Version,
			Description: def.Metadata.Description,
		},
		Pre: pre,
		Clf: clf,
	}, nil
}

func buildClassifier(def ClassifierDef, width int) (Classifier, error) {
	threshold := DefaultThreshold
	if def.Threshold != nil {
		threshold = *def.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("decision threshold %v outside [0,1]", threshold)
	}

	switch def.Kind {
	case ClassifierTreeEnsemble:
		if len(def.Trees) == 0 {
			return nil, fmt.Errorf("tree ensemble has no trees")
		}
		ens := &TreeEnsemble{
			Trees:     make([]Tree, len(def.Trees)),
			BaseScore: def.BaseScore,
			Threshold: threshold,
		}
		for ti, nodes := range def.Trees {
			t := Tree{Nodes: make([]Node, len(nodes))}
			for ni, n := range nodes {
				t.Nodes[ni] = Node{
					Feature:   n.Feature,
					Threshold: n.Threshold,
					Left:      n.Left,
					Right:     n.Right,
					Value:     n.Value,
					Cover:     n.Cover,
				}
			}
			if err := t.validate(width); err != nil {
				return nil, fmt.Errorf("tree %d: %w", ti, err)
			}
			ens.Trees[ti] = t
		}
		return ens, nil

	case ClassifierLogistic:
		if len(def.Coefficients) != width {
			return nil, fmt.Errorf("logistic model has %d coefficients for %d features", len(def.Coefficients), width)
		}
		weights := make([]float64, width)
		copy(weights, def.Coefficients)
		return &Logistic{Weights: weights, Intercept: def.Intercept, Threshold: threshold}, nil

	default:
		return nil, fmt.Errorf("unknown classifier kind %q", def.Kind)
	}
}

// Define converts a pipeline back to its definition
func Define(p *Pipeline) (*Definition, error) {
	def := &Definition{
		Metadata: MetadataDef{
			Format:      p.Metadata.Format,
			Version:     p.Metadata.Version,
			Description: p.Metadata.Description,
		},
	}
	for _, f := range p.Pre.Features() {
		def.Pre.Features = append(def.Pre.Features, FeatureDef{
			Name:       f.Name,
			Column:     f.Column,
			Kind:       string(f.Kind),
			Category:   f.Category,
			Center:     f.Center,
			Scale:      f.Scale,
			Background: f.Background,
		})
	}

	switch clf := p.Clf.(type) {
	case *TreeEnsemble:
		threshold := clf.Threshold
		def.Clf = ClassifierDef{Kind: ClassifierTreeEnsemble, BaseScore: clf.BaseScore, Threshold: &threshold}
		for _, t := range clf.Trees {
			nodes := make([]NodeDef, len(t.Nodes))
			for i, n := range t.Nodes {
				nodes[i] = NodeDef(n)
			}
			def.Clf.Trees = append(def.Clf.Trees, nodes)
		}
	case *Logistic:
		threshold := clf.Threshold
		def.Clf = ClassifierDef{Kind: ClassifierLogistic, Intercept: clf.Intercept, Threshold: &threshold}
		def.Clf.Coefficients = append([]float64(nil), clf.Weights...)
	default:
		return nil, fmt.Errorf("cannot serialise classifier of kind %q", p.Clf.Kind())
	}
	return def, nil
}
