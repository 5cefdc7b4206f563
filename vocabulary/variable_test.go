package vocabulary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "specific conductance", NormalizeLabel("  Specific   Conductance "))
	assert.Equal(t, "air temperature", NormalizeLabel("Air\tTemperature"))
	assert.Equal(t, "", NormalizeLabel("   "))
}

func TestMappingValidate(t *testing.T) {
	valid := Mapping{
		Dataset:     "USGS_NWIS",
		NativeID:    "00095",
		CanonicalID: "water:specific_conductance_us_cm",
		Confidence:  0.98,
		Status:      StatusAccepted,
		Timestamp:   time.Now(),
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(*Mapping)
	}{
		{"missing dataset", func(m *Mapping) { m.Dataset = "" }},
		{"missing native id", func(m *Mapping) { m.NativeID = "" }},
		{"missing canonical id", func(m *Mapping) { m.CanonicalID = "" }},
		{"confidence below zero", func(m *Mapping) { m.Confidence = -0.1 }},
		{"confidence above one", func(m *Mapping) { m.Confidence = 1.1 }},
		{"unmapped status", func(m *Mapping) { m.Status = StatusUnmapped }},
		{"bogus status", func(m *Mapping) { m.Status = "maybe" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.modify(&m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestMappingEquivalent(t *testing.T) {
	base := Mapping{
		Dataset:     "A",
		NativeID:    "p1",
		CanonicalID: "atm:air_temperature_2m",
		Confidence:  0.75,
		Breakdown:   map[string]float64{"label_equal": 0.25},
		Status:      StatusSuggested,
		Timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Provenance:  Provenance{Source: ProvenanceAuto, RunID: "run-1"},
	}

	same := base
	same.Timestamp = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	same.Provenance.RunID = "run-2"
	assert.True(t, base.Equivalent(same), "timestamp and provenance must not affect equivalence")

	differentCanonical := base
	differentCanonical.CanonicalID = "atm:dew_point_2m"
	assert.False(t, base.Equivalent(differentCanonical))

	differentConfidence := base
	differentConfidence.Confidence = 0.80
	assert.False(t, base.Equivalent(differentConfidence))

	differentBreakdown := base
	differentBreakdown.Breakdown = map[string]float64{"label_equal": 0.20}
	assert.False(t, base.Equivalent(differentBreakdown))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "USGS_NWIS:00095", Key{Dataset: "USGS_NWIS", NativeID: "00095"}.String())
}
