package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/aviation-risk/internal/config"
	"github.com/kartoza/aviation-risk/internal/inference"
	"github.com/kartoza/aviation-risk/internal/metrics"
	"github.com/kartoza/aviation-risk/internal/models"
	"github.com/kartoza/aviation-risk/internal/pipeline"
	"github.com/kartoza/aviation-risk/internal/samples"
)

var samplesDir = filepath.Join("..", "..", "samples")

func newTestServer(t *testing.T, withCatalog bool) *Server {
	t.Helper()
	artifact := filepath.Join("..", "..", "model_pipeline.json")
	p, err := pipeline.Load(artifact)
	require.NoError(t, err)

	m := metrics.New()
	svc := inference.NewService(pipeline.NewStaticRegistry(p, artifact), inference.Options{Metrics: m})

	var catalog *samples.Catalog
	if withCatalog {
		catalog, err = samples.NewCatalog(samplesDir)
		require.NoError(t, err)
	}

	cfg := config.Defaults()
	cfg.InputPath = filepath.Join(samplesDir, "sample_input_1.csv")
	cfg.Version = "test"

	s, err := New(cfg, svc, catalog, m)
	require.NoError(t, err)
	return s
}

func get(s *Server, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestPageDefaultsToFirstSample(t *testing.T) {
	s := newTestServer(t, true)

	w := get(s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, "Aviation Incident Risk Assessment System (DEMO)")
	assert.Contains(t, body, `class="selected"`)
	assert.Contains(t, body, "Test Case 1")
	assert.Contains(t, body, "Test Case 3")
	assert.Contains(t, body, "<td>FlightID</td><td>FR-1021</td>")
	assert.Contains(t, body, "83.89%")
	assert.Contains(t, body, `<div class="risk-class incident">Incident</div>`)
	assert.Contains(t, body, "1. Weather = Storm (Storm)")
	// html/template escapes the explicit plus sign
	assert.Contains(t, body, "Increases Risk (SHAP &#43;0.7500)")
	assert.Contains(t, body, "2. PilotHours")
	assert.Contains(t, body, "Increases Risk (SHAP &#43;0.6600)")
	assert.Contains(t, body, "proof-of-concept")
}

func TestPageSelectedSample(t *testing.T) {
	s := newTestServer(t, true)

	w := get(s, "/?sample=sample_input_1.csv")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, "19.78%")
	assert.Contains(t, body, `<div class="risk-class no-incident">No Incident</div>`)
	assert.Contains(t, body, "Decreases Risk (SHAP -0.2176)")
	assert.Contains(t, body, "Weather = Clear (Storm)")
	assert.Contains(t, body, "impact-decreases")
}

func TestPageThresholdLabel(t *testing.T) {
	s := newTestServer(t, true)

	w := get(s, "/?sample=sample_input_2.csv")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, "47.50%")
	assert.Contains(t, body, `<div class="risk-class incident">Incident</div>`)
}

func TestPageUnknownSample(t *testing.T) {
	s := newTestServer(t, true)

	w := get(s, "/?sample=..%2Fmodel_pipeline.json")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Analysis failed (not_found)")
	assert.NotContains(t, body, "Risk Probability")
}

func TestPageFallsBackToInputPath(t *testing.T) {
	s := newTestServer(t, false)

	w := get(s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "19.78%")
}

func uploadRequest(t *testing.T, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("record", "upload.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	s := newTestServer(t, true)
	csv, err := os.ReadFile(filepath.Join(samplesDir, "sample_input_0.csv"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, string(csv)))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "83.89%")
	assert.NotContains(t, body, `class="selected"`)
}

func TestUploadSchemaMismatchShowsError(t *testing.T) {
	s := newTestServer(t, true)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "Altitude,Airspeed\n1000,200\n"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Analysis failed (schema_mismatch)")
	assert.Contains(t, body, "missing columns")
	assert.Contains(t, body, "<td>Altitude</td><td>1000</td>")
	assert.NotContains(t, body, "Key Contributing Factors")
}

func TestUploadEmpty(t *testing.T) {
	s := newTestServer(t, true)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, uploadRequest(t, "Altitude,Airspeed\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Analysis failed (empty_input)")
}

func TestStaticAssets(t *testing.T) {
	s := newTestServer(t, true)

	w := get(s, "/static/style.css")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ".risk-percentage")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, true)
	require.Equal(t, http.StatusOK, get(s, "/?sample=sample_input_0.csv").Code)

	w := get(s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `aviation_risk_inferences_total{label="Incident"} 1`)
}

func TestAPIMounted(t *testing.T) {
	s := newTestServer(t, true)

	w := get(s, "/api/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `"ok"`))
}

func TestNewResultView(t *testing.T) {
	v := newResultView(models.Result{
		PredictionLabel:       models.LabelNoIncident,
		PredictionProbability: 0.0512,
		TopFeatures: []models.TopFeature{
			{EncodedName: "num__Visibility", Attribution: 0, Description: "Visibility"},
		},
	})
	assert.Equal(t, "5.12%", v.Percent)
	assert.Equal(t, "no-incident", v.LabelClass)
	require.Len(t, v.Factors, 1)
	assert.Equal(t, "Decreases", v.Factors[0].Direction)
	assert.Equal(t, "+0.0000", v.Factors[0].SHAP)
	assert.Equal(t, "impact-decreases", v.Factors[0].Class)
}

func TestStopWithoutStart(t *testing.T) {
	s := newTestServer(t, false)
	assert.NoError(t, s.Stop())
}
