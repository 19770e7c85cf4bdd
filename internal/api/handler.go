package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/kartoza/aviation-risk/internal/config"
	"github.com/kartoza/aviation-risk/internal/inference"
	"github.com/kartoza/aviation-risk/internal/models"
	"github.com/kartoza/aviation-risk/internal/pipeline"
	"github.com/kartoza/aviation-risk/internal/record"
	"github.com/kartoza/aviation-risk/internal/samples"
)

// MaxUploadBytes caps an uploaded record file
const MaxUploadBytes = 1 << 20

// UploadField is the multipart field holding an uploaded record
const UploadField = "record"

// Handler provides HTTP API endpoints
type Handler struct {
	svc     *inference.Service
	catalog *samples.Catalog
	cfg     config.Config
}

// NewHandler creates a new API handler. catalog may be nil.
func NewHandler(svc *inference.Service, catalog *samples.Catalog, cfg config.Config) *Handler {
	return &Handler{
		svc:     svc,
		catalog: catalog,
		cfg:     cfg,
	}
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Health and info
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	// Sample records
	r.HandleFunc("/samples", h.handleListSamples).Methods("GET")
	r.HandleFunc("/samples/{name}/predict", h.handleSamplePredict).Methods("GET")

	// Scoring
	r.HandleFunc("/predict", h.handlePredict).Methods("POST")
	r.HandleFunc("/reload", h.handleReload).Methods("POST")
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("error encoding response")
	}
}

// respondError sends a JSON error response
func respondError(w http.ResponseWriter, status int, err error) {
	body := models.ErrorResponse{Error: err.Error(), Kind: KindFor(err)}
	var schema *pipeline.SchemaMismatchError
	if errors.As(err, &schema) {
		body.Missing = schema.Missing
		body.Invalid = schema.Invalid
	}
	respondJSON(w, status, body)
}

// KindFor names the error kind reported to clients
func KindFor(err error) string {
	if errors.Is(err, samples.ErrNotFound) {
		return "not_found"
	}
	return inference.ErrorKind(err)
}

// StatusFor maps a scoring error to an HTTP status code
func StatusFor(err error) int {
	if errors.Is(err, samples.ErrNotFound) {
		return http.StatusNotFound
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch inference.ErrorKind(err) {
	case inference.KindEmptyInput, inference.KindMalformedInput:
		return http.StatusBadRequest
	case inference.KindSchemaMismatch:
		return http.StatusUnprocessableEntity
	case inference.KindArtifactNotFound, inference.KindArtifactCorrupt:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ReadUpload returns the record file carried by a request: the multipart
// field "record" for form posts, otherwise the raw body.
func ReadUpload(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, "request body", nil
	}

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		return nil, "", &record.MalformedInputError{Source: "upload", Reason: "unreadable form", Err: err}
	}
	file, header, err := r.FormFile(UploadField)
	if err != nil {
		return nil, "", &record.MalformedInputError{Source: "upload", Reason: fmt.Sprintf("no %q file", UploadField), Err: err}
	}
	return file, header.Filename, nil
}

// handleHealth returns server health status
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.svc.Registry().Current() == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no pipeline loaded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo returns server and artifact information
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	reg := h.svc.Registry()
	loaded := reg.Current()
	if loaded == nil {
		respondError(w, http.StatusServiceUnavailable, &pipeline.ArtifactNotFoundError{Path: reg.Path()})
		return
	}

	p := loaded.Pipeline
	respondJSON(w, http.StatusOK, models.InfoResponse{
		Version:         h.cfg.Version,
		ArtifactPath:    loaded.Path,
		ArtifactFormat:  p.Metadata.Format,
		ArtifactVersion: p.Metadata.Version,
		Description:     p.Metadata.Description,
		Classifier:      p.Clf.Kind(),
		LoadedAt:        loaded.LoadedAt,
		Reloads:         reg.Reloads(),
		NameMode:        h.svc.Resolver().Mode.String(),
		RequiredColumns: p.Pre.RequiredColumns(),
		Features:        p.FeatureNames(),
	})
}

// handleListSamples returns the bundled sample records
func (h *Handler) handleListSamples(w http.ResponseWriter, r *http.Request) {
	resp := models.SamplesResponse{Samples: []models.SampleInfo{}}
	if h.catalog == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	list, err := h.catalog.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	for _, s := range list {
		resp.Samples = append(resp.Samples, models.SampleInfo{Name: s.Name, Label: s.Label})
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleSamplePredict scores one bundled sample
func (h *Handler) handleSamplePredict(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		respondError(w, http.StatusNotFound, samples.ErrNotFound)
		return
	}

	s, rec, err := h.catalog.Load(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, StatusFor(err), err)
		return
	}

	pred, err := h.svc.Infer(r.Context(), rec, s.Name)
	if err != nil {
		respondError(w, StatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, pred)
}

// handlePredict scores a record posted as CSV
func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, source, err := ReadUpload(w, r)
	if err != nil {
		status := StatusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		respondError(w, status, err)
		return
	}
	defer body.Close()

	pred, err := h.svc.InferReader(r.Context(), body, source)
	if err != nil {
		respondError(w, StatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, pred)
}

// handleReload re-reads the artifact from disk
func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	reg := h.svc.Registry()
	if err := reg.Reload(); err != nil {
		respondError(w, StatusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "reloaded",
		"reloads": reg.Reloads(),
	})
}
