package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kartoza/aviation-risk/internal/api"
	"github.com/kartoza/aviation-risk/internal/models"
	"github.com/kartoza/aviation-risk/internal/record"
)

type sampleLink struct {
	Name     string
	Label    string
	Selected bool
}

type inputRow struct {
	Feature string
	Value   string
}

type factorView struct {
	Rank        int
	Description string
	Direction   string
	Class       string
	SHAP        string
}

type resultView struct {
	Percent    string
	Label      string
	LabelClass string
	Factors    []factorView
}

type errorView struct {
	Kind    string
	Message string
}

type pageData struct {
	Samples []sampleLink
	Inputs  []inputRow
	Result  *resultView
	Error   *errorView
}

func newResultView(res models.Result) *resultView {
	v := &resultView{
		Percent:    fmt.Sprintf("%.2f%%", res.PredictionProbability*100),
		Label:      res.PredictionLabel,
		LabelClass: "no-incident",
	}
	if res.PredictionLabel == models.LabelIncident {
		v.LabelClass = "incident"
	}
	for i, f := range res.TopFeatures {
		class := "impact-decreases"
		if f.Direction() == "Increases" {
			class = "impact-increases"
		}
		v.Factors = append(v.Factors, factorView{
			Rank:        i + 1,
			Description: f.Description,
			Direction:   f.Direction(),
			Class:       class,
			SHAP:        fmt.Sprintf("%+.4f", f.Attribution),
		})
	}
	return v
}

func inputRows(rec record.RawRecord) []inputRow {
	rows := make([]inputRow, 0, rec.Len())
	for _, col := range rec.Columns {
		v, _ := rec.Get(col)
		rows = append(rows, inputRow{Feature: col, Value: v.String()})
	}
	return rows
}

// sampleLinks lists the catalog with one entry marked selected. An empty
// selection picks the first sample.
func (s *Server) sampleLinks(selected string) ([]sampleLink, string) {
	if s.catalog == nil {
		return nil, selected
	}
	list, err := s.catalog.List()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list samples")
		return nil, selected
	}
	if selected == "" && len(list) > 0 {
		selected = list[0].Name
	}
	links := make([]sampleLink, len(list))
	for i, sm := range list {
		links[i] = sampleLink{Name: sm.Name, Label: sm.Label, Selected: sm.Name == selected}
	}
	return links, selected
}

// handlePage renders the assessment for a bundled sample, or for the
// configured input file when no samples exist
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	links, selected := s.sampleLinks(r.URL.Query().Get("sample"))
	data := pageData{Samples: links}

	var (
		rec    record.RawRecord
		source string
		err    error
	)
	if selected != "" && s.catalog != nil {
		source = selected
		_, rec, err = s.catalog.Load(selected)
	} else {
		source = s.cfg.InputPath
		rec, err = record.ReadFile(source)
	}

	s.score(w, r, &data, rec, source, err)
}

// handleUpload renders the assessment for an uploaded record file
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	links, _ := s.sampleLinks("")
	for i := range links {
		links[i].Selected = false
	}
	data := pageData{Samples: links}

	body, source, err := api.ReadUpload(w, r)
	if err != nil {
		s.score(w, r, &data, record.RawRecord{}, source, err)
		return
	}
	defer body.Close()

	rec, err := record.Read(body, source)
	s.score(w, r, &data, rec, source, err)
}

// score runs the record through the service unless reading it already
// failed, then renders the page
func (s *Server) score(w http.ResponseWriter, r *http.Request, data *pageData, rec record.RawRecord, source string, readErr error) {
	status := http.StatusOK
	err := readErr
	if err == nil {
		data.Inputs = inputRows(rec)
		var pred models.Prediction
		pred, err = s.svc.Infer(r.Context(), rec, source)
		if err == nil {
			data.Result = newResultView(pred.Result)
		}
	}
	if err != nil {
		status = api.StatusFor(err)
		if status == http.StatusInternalServerError && readErr != nil {
			status = http.StatusBadRequest
		}
		data.Error = &errorView{Kind: api.KindFor(err), Message: err.Error()}
	}

	s.render(w, status, data)
}

func (s *Server) render(w http.ResponseWriter, status int, data *pageData) {
	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		log.Error().Err(err).Msg("failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Warn().Err(err).Msg("failed to write page")
	}
}
