// Package inference scores one flight record against the loaded pipeline
// and explains the score with its two strongest contributing features.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/kartoza/aviation-risk/internal/explain"
	"github.com/kartoza/aviation-risk/internal/metrics"
	"github.com/kartoza/aviation-risk/internal/models"
	"github.com/kartoza/aviation-risk/internal/pipeline"
	"github.com/kartoza/aviation-risk/internal/record"
)

// TopFeatureCount is how many contributing factors a Result carries
const TopFeatureCount = 2

// ProbabilityPlaces is the number of decimal places kept in a Result
const ProbabilityPlaces = 4

// Error kinds reported by ErrorKind
const (
	KindSchemaMismatch   = "schema_mismatch"
	KindEmptyInput       = "empty_input"
	KindMalformedInput   = "malformed_input"
	KindArtifactNotFound = "artifact_not_found"
	KindArtifactCorrupt  = "artifact_corrupt"
	KindInternal         = "internal"
)

// ErrorKind classifies an error returned by this package
func ErrorKind(err error) string {
	var (
		schema    *pipeline.SchemaMismatchError
		empty     *record.EmptyInputError
		malformed *record.MalformedInputError
		notFound  *pipeline.ArtifactNotFoundError
		corrupt   *pipeline.ArtifactCorruptError
	)
	switch {
	case errors.As(err, &schema):
		return KindSchemaMismatch
	case errors.As(err, &empty):
		return KindEmptyInput
	case errors.As(err, &malformed):
		return KindMalformedInput
	case errors.As(err, &notFound):
		return KindArtifactNotFound
	case errors.As(err, &corrupt):
		return KindArtifactCorrupt
	default:
		return KindInternal
	}
}

// exactDigits is enough fractional digits to write any float64 exactly
const exactDigits = 1074

// RoundProbability rounds the exact binary value of p to ProbabilityPlaces.
// Only values that are exactly halfway round to even.
func RoundProbability(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return p
	}
	d, err := decimal.NewFromString(new(big.Float).SetFloat64(p).Text('f', exactDigits))
	if err != nil {
		return p
	}
	f, _ := d.RoundBank(ProbabilityPlaces).Float64()
	return f
}

// Run scores rec with p and explains the score. A nil engine picks the
// exact method for the classifier. Any failure aborts the whole run and no
// partial Result is returned.
func Run(rec record.RawRecord, p *pipeline.Pipeline, engine explain.Engine, resolver explain.Resolver) (models.Result, error) {
	row, err := p.Transform(rec)
	if err != nil {
		return models.Result{}, err
	}

	proba := p.Clf.PredictProba(row)[1]
	if math.IsNaN(proba) || proba < 0 || proba > 1 {
		return models.Result{}, fmt.Errorf("classifier returned probability %v outside [0, 1]", proba)
	}
	label := models.Label(p.Clf.Predict(row))

	if engine == nil {
		engine = explain.NewAuto(p.Pre)
	}
	phi, err := engine.Attributions(p.Clf, row)
	if err != nil {
		return models.Result{}, fmt.Errorf("failed to compute attributions: %w", err)
	}
	if len(phi) != p.Pre.Width() {
		return models.Result{}, fmt.Errorf("attribution engine returned %d values for %d features", len(phi), p.Pre.Width())
	}

	top := explain.TopK(phi, TopFeatureCount)
	features := make([]models.TopFeature, 0, len(top))
	for _, pos := range top {
		f := p.Pre.Feature(pos)
		features = append(features, models.TopFeature{
			EncodedName: f.Name,
			Attribution: phi[pos],
			Description: resolver.Describe(f, rec),
		})
	}

	return models.Result{
		PredictionLabel:       label,
		PredictionProbability: RoundProbability(proba),
		TopFeatures:           features,
	}, nil
}

// Options configures a Service
type Options struct {
	// Engine overrides the attribution method. Nil selects it per classifier.
	Engine   explain.Engine
	Resolver explain.Resolver
	Metrics  *metrics.Collector
}

// Service scores records against the registry's current pipeline. It is
// safe for concurrent use.
type Service struct {
	registry *pipeline.Registry
	engine   explain.Engine
	resolver explain.Resolver
	metrics  *metrics.Collector
}

// NewService creates a service over a loaded registry
func NewService(reg *pipeline.Registry, opts Options) *Service {
	return &Service{
		registry: reg,
		engine:   opts.Engine,
		resolver: opts.Resolver,
		metrics:  opts.Metrics,
	}
}

// Registry returns the pipeline registry the service reads from
func (s *Service) Registry() *pipeline.Registry {
	return s.registry
}

// Resolver returns the configured name resolver
func (s *Service) Resolver() explain.Resolver {
	return s.resolver
}

// Infer scores one record with the current pipeline
func (s *Service) Infer(ctx context.Context, rec record.RawRecord, source string) (models.Prediction, error) {
	start := time.Now()
	id := uuid.NewString()
	logger := log.With().Str("request_id", id).Str("source", source).Logger()

	fail := func(err error) (models.Prediction, error) {
		kind := ErrorKind(err)
		s.metrics.ObserveFailure(kind, time.Since(start))
		logger.Error().Err(err).Str("kind", kind).Msg("inference failed")
		return models.Prediction{}, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	loaded := s.registry.Current()
	if loaded == nil {
		return fail(&pipeline.ArtifactNotFoundError{Path: s.registry.Path()})
	}

	result, err := Run(rec, loaded.Pipeline, s.engine, s.resolver)
	if err != nil {
		return fail(err)
	}

	elapsed := time.Since(start)
	s.metrics.ObserveInference(result.PredictionLabel, result.PredictionProbability, elapsed)
	logger.Info().
		Str("label", result.PredictionLabel).
		Float64("probability", result.PredictionProbability).
		Dur("took", elapsed).
		Msg("record scored")

	return models.Prediction{RequestID: id, Source: source, Result: result}, nil
}

// InferReader reads one CSV record from r and scores it
func (s *Service) InferReader(ctx context.Context, r io.Reader, source string) (models.Prediction, error) {
	rec, err := record.Read(r, source)
	if err != nil {
		s.metrics.ObserveFailure(ErrorKind(err), 0)
		return models.Prediction{}, err
	}
	return s.Infer(ctx, rec, source)
}

// InferFile reads one CSV record from disk and scores it
func (s *Service) InferFile(ctx context.Context, path string) (models.Prediction, error) {
	rec, err := record.ReadFile(path)
	if err != nil {
		s.metrics.ObserveFailure(ErrorKind(err), 0)
		return models.Prediction{}, err
	}
	return s.Infer(ctx, rec, path)
}
