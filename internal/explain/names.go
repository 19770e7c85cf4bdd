package explain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kartoza/aviation-risk/internal/pipeline"
	"github.com/kartoza/aviation-risk/internal/record"
)

const (
	stageSeparator = "__"
	valueSeparator = "_"
)

// NameMode selects how encoded feature names are turned into labels
type NameMode int

const (
	// LegacyNames parses the encoded name string. A column whose name
	// contains "_" is split at its first underscore.
	LegacyNames NameMode = iota
	// StructuredNames uses the (column, category) pair kept by the preprocessing stage
	StructuredNames
)

// ParseNameMode maps a configuration value to a NameMode
func ParseNameMode(s string) (NameMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy":
		return LegacyNames, nil
	case "structured":
		return StructuredNames, nil
	default:
		return LegacyNames, fmt.Errorf("unknown name mode %q", s)
	}
}

func (m NameMode) String() string {
	if m == StructuredNames {
		return "structured"
	}
	return "legacy"
}

// ResolveName turns an encoded feature name into a human readable description.
//
//	"num__Altitude"     -> "Altitude"
//	"cat__Weather_Fog"  -> "Weather = <record value> (Fog)"
//	"Altitude_ft"       -> "Altitude ft"
func ResolveName(encoded string, rec record.RawRecord) string {
	if encoded == "" {
		return ""
	}

	if !strings.Contains(encoded, stageSeparator) {
		return strings.ReplaceAll(encoded, valueSeparator, " ")
	}

	_, remainder, _ := strings.Cut(encoded, stageSeparator)
	column, emitted, found := strings.Cut(remainder, valueSeparator)
	if !found {
		return remainder
	}

	display := emitted
	if v, ok := rec.Get(column); ok {
		display = displayValue(v)
	}
	return fmt.Sprintf("%s = %s (%s)", strings.ReplaceAll(column, valueSeparator, " "), display, emitted)
}

// ResolveFeature describes a feature from its structured column and category
func ResolveFeature(f pipeline.Feature, rec record.RawRecord) string {
	column := strings.ReplaceAll(f.Column, valueSeparator, " ")
	if f.Kind != pipeline.KindCategorical {
		return column
	}

	display := f.Category
	if v, ok := rec.Get(f.Column); ok {
		display = displayValue(v)
	}
	return fmt.Sprintf("%s = %s (%s)", column, display, f.Category)
}

// Resolver describes transformed features in the configured mode
type Resolver struct {
	Mode NameMode
}

// Describe returns the friendly description of a feature
func (r Resolver) Describe(f pipeline.Feature, rec record.RawRecord) string {
	if r.Mode == StructuredNames {
		return ResolveFeature(f, rec)
	}
	return ResolveName(f.Name, rec)
}

// displayValue renders a cell the way it reads once typed: integers lose
// signs and leading zeros, floats print in shortest form with a ".0" or an
// exponent past 1e16, and an empty cell is "nan". Anything else is kept as
// written.
func displayValue(v record.Value) string {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return "nan"
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if strings.ContainsAny(s, "xX_") {
		return v.String()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return v.String()
	}
	return formatFloat(f)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if f != 0 && (exp < -4 || exp >= 16) {
		return sci
	}

	out := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}
