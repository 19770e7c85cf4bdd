package explain

import (
	"testing"

	"github.com/kartoza/aviation-risk/internal/pipeline"
	"github.com/kartoza/aviation-risk/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(pairs ...string) record.RawRecord {
	var cols, vals []string
	for i := 0; i+1 < len(pairs); i += 2 {
		cols = append(cols, pairs[i])
		vals = append(vals, pairs[i+1])
	}
	return record.New(cols, vals)
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
		record  record.RawRecord
		want    string
	}{
		{"numeric with stage tag", "num__Altitude", rec("Altitude", "32000"), "Altitude"},
		{"categorical", "cat__Weather_Fog", rec("Weather", "Fog"), "Weather = Fog (Fog)"},
		{"categorical prefers record value", "cat__Weather_Storm", rec("Weather", "Clear"), "Weather = Clear (Storm)"},
		{"categorical column absent", "cat__Weather_Fog", rec("Altitude", "100"), "Weather = Fog (Fog)"},
		{"no stage tag", "Altitude_ft", rec(), "Altitude ft"},
		{"no stage tag no underscore", "Altitude", rec(), "Altitude"},
		{"only first stage separator splits", "a__b__c", rec(), "b = _c (_c)"},
		{"empty", "", rec("Weather", "Fog"), ""},
		// column names containing "_" split at their first underscore
		{"underscored column", "cat__Weather_Condition_Fog", rec("Weather_Condition", "Fog"), "Weather = Condition_Fog (Condition_Fog)"},
		{"underscored numeric column", "num__Altitude_ft", rec("Altitude_ft", "100"), "Altitude = ft (ft)"},
		{"category with underscore", "cat__Phase_Go_Around", rec("Phase", "Go_Around"), "Phase = Go_Around (Go_Around)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveName(tt.encoded, tt.record))
		})
	}
}

func TestResolveNameShowsTypedValue(t *testing.T) {
	tests := []struct {
		cell string
		want string
	}{
		{"3.50", "Engines = 3.5 (3)"},
		{"3", "Engines = 3 (3)"},
		{"003", "Engines = 3 (3)"},
		{"+3", "Engines = 3 (3)"},
		{"3.0", "Engines = 3.0 (3)"},
		{"1e3", "Engines = 1000.0 (3)"},
		{"0.00001", "Engines = 1e-05 (3)"},
		{"1e16", "Engines = 1e+16 (3)"},
		{" 2.25 ", "Engines = 2.25 (3)"},
		{"", "Engines = nan (3)"},
		{"Twin", "Engines = Twin (3)"},
		{"0x10", "Engines = 0x10 (3)"},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveName("cat__Engines_3", rec("Engines", tt.cell)))
		})
	}
}

func TestResolveNameDeterministic(t *testing.T) {
	r := rec("Weather", "Rain", "Phase", "Landing")
	first := ResolveName("cat__Phase_Landing", r)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveName("cat__Phase_Landing", r))
	}
}

func TestResolveFeature(t *testing.T) {
	tests := []struct {
		name    string
		feature pipeline.Feature
		record  record.RawRecord
		want    string
	}{
		{
			"categorical with underscored column",
			pipeline.Feature{Name: "cat__Weather_Condition_Fog", Column: "Weather_Condition", Kind: pipeline.KindCategorical, Category: "Fog"},
			rec("Weather_Condition", "Fog"),
			"Weather Condition = Fog (Fog)",
		},
		{
			"numeric with underscored column",
			pipeline.Feature{Name: "num__Altitude_ft", Column: "Altitude_ft", Kind: pipeline.KindNumeric},
			rec("Altitude_ft", "100"),
			"Altitude ft",
		},
		{
			"categorical numeric cell shown typed",
			pipeline.Feature{Name: "cat__Engines_2.5", Column: "Engines", Kind: pipeline.KindCategorical, Category: "2.5"},
			rec("Engines", "2.50"),
			"Engines = 2.5 (2.5)",
		},
		{
			"categorical column absent",
			pipeline.Feature{Name: "cat__Phase_Cruise", Column: "Phase", Kind: pipeline.KindCategorical, Category: "Cruise"},
			rec(),
			"Phase = Cruise (Cruise)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFeature(tt.feature, tt.record))
		})
	}
}

func TestResolverModes(t *testing.T) {
	f := pipeline.Feature{Name: "cat__Weather_Condition_Fog", Column: "Weather_Condition", Kind: pipeline.KindCategorical, Category: "Fog"}
	r := rec("Weather_Condition", "Fog")

	assert.Equal(t, "Weather = Condition_Fog (Condition_Fog)", Resolver{Mode: LegacyNames}.Describe(f, r))
	assert.Equal(t, "Weather Condition = Fog (Fog)", Resolver{Mode: StructuredNames}.Describe(f, r))
}

func TestParseNameMode(t *testing.T) {
	m, err := ParseNameMode("Structured")
	require.NoError(t, err)
	assert.Equal(t, StructuredNames, m)

	m, err = ParseNameMode("")
	require.NoError(t, err)
	assert.Equal(t, LegacyNames, m)
	assert.Equal(t, "legacy", m.String())

	_, err = ParseNameMode("smart")
	assert.Error(t, err)
}
