package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// ArtifactNotFoundError is returned when the artifact path does not resolve
type ArtifactNotFoundError struct {
	Path string
	Err  error
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("pipeline artifact not found: %s", e.Path)
}

func (e *ArtifactNotFoundError) Unwrap() error {
	return e.Err
}

// ArtifactCorruptError is returned when the artifact cannot be decoded
// or does not hold the expected preprocessing and classifier stages
type ArtifactCorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactCorruptError) Error() string {
	msg := fmt.Sprintf("pipeline artifact %s is corrupt: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArtifactCorruptError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError is returned by Transform when the record lacks
// columns the preprocessing stage was fitted on, or holds values it cannot encode
type SchemaMismatchError struct {
	Missing []string
	Invalid map[string]string
}

func (e *SchemaMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		cols := make([]string, 0, len(e.Invalid))
		for c := range e.Invalid {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		for _, c := range cols {
			parts = append(parts, fmt.Sprintf("column %s: %s", c, e.Invalid[c]))
		}
	}
	return "input does not match the fitted schema: " + strings.Join(parts, "; ")
}

func corrupt(path, reason string, err error) error {
	return &ArtifactCorruptError{Path: path, Reason: reason, Err: err}
}
