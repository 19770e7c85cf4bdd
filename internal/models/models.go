package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Prediction labels shown to the user
const (
	LabelIncident   = "Incident"
	LabelNoIncident = "No Incident"
)

// Label maps a classifier label (1 = incident) to its display string
func Label(class int) string {
	if class == 1 {
		return LabelIncident
	}
	return LabelNoIncident
}

// TopFeature is one contributing factor. It is encoded on the wire as a
// three element array: [encoded_name, attribution, description].
type TopFeature struct {
	EncodedName string
	Attribution float64
	Description string
}

// Direction reports whether the feature pushed risk up or down
func (f TopFeature) Direction() string {
	if f.Attribution > 0 {
		return "Increases"
	}
	return "Decreases"
}

func (f TopFeature) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{f.EncodedName, f.Attribution, f.Description})
}

func (f *TopFeature) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("top feature: expected 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &f.EncodedName); err != nil {
		return fmt.Errorf("top feature name: %w", err)
	}
	if err := json.Unmarshal(raw[1], &f.Attribution); err != nil {
		return fmt.Errorf("top feature attribution: %w", err)
	}
	if err := json.Unmarshal(raw[2], &f.Description); err != nil {
		return fmt.Errorf("top feature description: %w", err)
	}
	return nil
}

// Result is the outcome of scoring one record
type Result struct {
	PredictionLabel       string       `json:"prediction_label"`
	PredictionProbability float64      `json:"prediction_probability"`
	TopFeatures           []TopFeature `json:"top_features"`
}

// Prediction wraps a Result with request bookkeeping for the API
type Prediction struct {
	RequestID string `json:"request_id"`
	Source    string `json:"source,omitempty"`
	Result    Result `json:"result"`
}

// SampleInfo describes one bundled sample record
type SampleInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// SamplesResponse lists the bundled samples
type SamplesResponse struct {
	Samples []SampleInfo `json:"samples"`
}

// InfoResponse describes the running service and its loaded artifact
type InfoResponse struct {
	Version         string    `json:"version"`
	ArtifactPath    string    `json:"artifact_path"`
	ArtifactFormat  string    `json:"artifact_format"`
	ArtifactVersion string    `json:"artifact_version,omitempty"`
	Description     string    `json:"description,omitempty"`
	Classifier      string    `json:"classifier"`
	LoadedAt        time.Time `json:"loaded_at"`
	Reloads         int64     `json:"reloads"`
	NameMode        string    `json:"name_mode"`
	RequiredColumns []string  `json:"required_columns"`
	Features        []string  `json:"features"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error   string            `json:"error"`
	Kind    string            `json:"kind"`
	Missing []string          `json:"missing,omitempty"`
	Invalid map[string]string `json:"invalid,omitempty"`
}
