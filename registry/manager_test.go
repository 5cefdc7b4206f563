package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semharvest/vocabulary"
)

var testSeed = []vocabulary.CanonicalVariable{
	{
		ID:                  "water:specific_conductance_us_cm",
		Labels:              []string{"specific conductance"},
		ObservedPropertyURI: "http://vocabulary.odm2.org/variablename/specificConductance/",
		PreferredUnit:       "uS/cm",
		Domain:              "water",
	},
	{
		ID:            "atm:air_temperature_2m",
		Labels:        []string{"air temperature", "temperature"},
		PreferredUnit: "degC",
		Domain:        "atmosphere",
	},
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, WriteSeed(filepath.Join(dir, SeedFile), testSeed))
	m, err := Open(dir, nil)
	require.NoError(t, err)
	return m
}

func acceptedMapping(nativeID, canonicalID string, confidence float64) vocabulary.Mapping {
	return vocabulary.Mapping{
		Dataset:     "USGS_NWIS",
		NativeID:    nativeID,
		CanonicalID: canonicalID,
		Confidence:  confidence,
		Breakdown:   map[string]float64{"rulepack_exact_id": 0.95, "unit_preferred": 0.03},
		Status:      vocabulary.StatusAccepted,
		Timestamp:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Provenance:  vocabulary.Provenance{Source: vocabulary.ProvenanceAuto, RunID: "run-1", AutoAcceptThreshold: 0.90},
	}
}

func suggestedMapping(nativeID, canonicalID string, confidence float64) vocabulary.Mapping {
	m := acceptedMapping(nativeID, canonicalID, confidence)
	m.Status = vocabulary.StatusSuggested
	m.Breakdown = map[string]float64{"label_equal": confidence}
	return m
}

func TestOpenEmptyDirectory(t *testing.T) {
	m, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, m.Seed())
	assert.Empty(t, m.Overrides())
	assert.Empty(t, m.Delta())
}

func TestApplyHarvestResult(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	params := []vocabulary.NativeParameter{
		{Dataset: "USGS_NWIS", NativeID: "00095", Label: "Specific conductance", Unit: "uS/cm"},
		{Dataset: "USGS_NWIS", NativeID: "00010", Label: "Temperature, water", Unit: "deg C"},
	}
	mappings := []vocabulary.Mapping{
		acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98),
		suggestedMapping("00010", "atm:air_temperature_2m", 0.75),
	}

	result, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", params, mappings, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, result.Suggested)
	assert.Empty(t, result.Conflicts)

	require.Len(t, m.Overrides(), 1)
	require.Len(t, m.Delta(), 1)

	// Harvest snapshot is persisted sorted by native id.
	snapshot := m.HarvestSnapshot("USGS_NWIS")
	require.Len(t, snapshot, 2)
	assert.Equal(t, "00010", snapshot[0].NativeID)
	assert.Equal(t, "00095", snapshot[1].NativeID)
}

func TestApplyHarvestResultIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	params := []vocabulary.NativeParameter{
		{Dataset: "USGS_NWIS", NativeID: "00095", Label: "Specific conductance"},
	}
	first := []vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", params, first, false)
	require.NoError(t, err)

	readLayers := func() (string, string) {
		overrides, err := os.ReadFile(filepath.Join(m.Dir(), OverridesFile))
		require.NoError(t, err)
		harvest, err := os.ReadFile(filepath.Join(m.Dir(), HarvestDir, "USGS_NWIS.json"))
		require.NoError(t, err)
		return string(overrides), string(harvest)
	}
	overridesBefore, harvestBefore := readLayers()

	// Same decision, new timestamp and run id: files must not change.
	second := []vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}
	second[0].Timestamp = time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	second[0].Provenance.RunID = "run-2"

	_, err = m.ApplyHarvestResult(ctx, "USGS_NWIS", params, second, false)
	require.NoError(t, err)

	overridesAfter, harvestAfter := readLayers()
	assert.Equal(t, overridesBefore, overridesAfter, "unchanged refresh must rewrite byte-identical overrides")
	assert.Equal(t, harvestBefore, harvestAfter, "unchanged refresh must rewrite byte-identical snapshots")
}

func TestApplyHarvestResultConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}, false)
	require.NoError(t, err)

	// A contradictory accepted mapping without allowOverwrite is refused.
	result, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "atm:air_temperature_2m", 0.95)}, false)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "water:specific_conductance_us_cm", result.Conflicts[0].ExistingID)
	assert.Equal(t, "atm:air_temperature_2m", result.Conflicts[0].RequestedID)

	overrides := m.Overrides()
	require.Len(t, overrides, 1)
	assert.Equal(t, "water:specific_conductance_us_cm", overrides[0].CanonicalID, "registry must stay unchanged on conflict")

	// With allowOverwrite the mapping is replaced.
	result, err = m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "atm:air_temperature_2m", 0.95)}, true)
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "atm:air_temperature_2m", m.Overrides()[0].CanonicalID)
}

func TestApplyHarvestResultRejectsUnknownCanonical(t *testing.T) {
	m := newTestManager(t)

	result, err := m.ApplyHarvestResult(context.Background(), "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("99999", "water:not_in_seed", 0.98)}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"99999"}, result.Rejected)
	assert.Empty(t, m.Overrides())
}

func TestApplyHarvestResultAcceptedClearsDelta(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{suggestedMapping("00095", "water:specific_conductance_us_cm", 0.75)}, false)
	require.NoError(t, err)
	require.Len(t, m.Delta(), 1)

	_, err = m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}, false)
	require.NoError(t, err)

	assert.Empty(t, m.Delta(), "acceptance must remove the pending suggestion for the key")
	assert.Len(t, m.Overrides(), 1)
}

func TestSuggestionNeverShadowsAccepted(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}, false)
	require.NoError(t, err)

	_, err = m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{suggestedMapping("00095", "atm:air_temperature_2m", 0.70)}, false)
	require.NoError(t, err)

	assert.Empty(t, m.Delta())
	view := m.MergedView()
	resolved := view[vocabulary.Key{Dataset: "USGS_NWIS", NativeID: "00095"}]
	assert.Equal(t, "water:specific_conductance_us_cm", resolved.Variable.ID)
}

func TestPromote(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{suggestedMapping("00010", "atm:air_temperature_2m", 0.75)}, false)
	require.NoError(t, err)

	promoted, err := m.Promote(ctx, "USGS_NWIS", "00010", "atm:air_temperature_2m", false)
	require.NoError(t, err)

	assert.Equal(t, vocabulary.StatusAccepted, promoted.Status)
	assert.Equal(t, 0.75, promoted.Confidence, "confidence carries over from the suggestion")
	assert.Equal(t, vocabulary.ProvenanceManual, promoted.Provenance.Source)

	assert.Empty(t, m.Delta(), "promote must remove the delta entry")

	view := m.MergedView()
	resolved, ok := view[vocabulary.Key{Dataset: "USGS_NWIS", NativeID: "00010"}]
	require.True(t, ok)
	assert.Equal(t, "atm:air_temperature_2m", resolved.Variable.ID)
}

func TestPromoteWithoutSuggestion(t *testing.T) {
	m := newTestManager(t)

	promoted, err := m.Promote(context.Background(), "USGS_NWIS", "00400", "atm:air_temperature_2m", false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promoted.Confidence)
	assert.Equal(t, vocabulary.ProvenanceManual, promoted.Provenance.Source)
}

func TestPromoteConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}, false)
	require.NoError(t, err)

	_, err = m.Promote(ctx, "USGS_NWIS", "00095", "atm:air_temperature_2m", false)
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "water:specific_conductance_us_cm", conflict.ExistingID)
	assert.Equal(t, "atm:air_temperature_2m", conflict.RequestedID)

	// Force replaces the accepted mapping.
	promoted, err := m.Promote(ctx, "USGS_NWIS", "00095", "atm:air_temperature_2m", true)
	require.NoError(t, err)
	assert.Equal(t, "atm:air_temperature_2m", promoted.CanonicalID)
}

func TestPromoteUnknownCanonical(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Promote(context.Background(), "USGS_NWIS", "00095", "water:not_in_seed", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the seed")
}

func TestMergedViewExcludesSuggestedByDefault(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil, []vocabulary.Mapping{
		acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98),
		suggestedMapping("00010", "atm:air_temperature_2m", 0.75),
	}, false)
	require.NoError(t, err)

	view := m.MergedView()
	assert.Len(t, view, 1)
	_, ok := view[vocabulary.Key{Dataset: "USGS_NWIS", NativeID: "00010"}]
	assert.False(t, ok)

	withSuggested := m.MergedView(IncludeSuggested())
	assert.Len(t, withSuggested, 2)
	resolved := withSuggested[vocabulary.Key{Dataset: "USGS_NWIS", NativeID: "00010"}]
	assert.Equal(t, vocabulary.StatusSuggested, resolved.Mapping.Status)
}

func TestResolve(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil, []vocabulary.Mapping{
		acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98),
		suggestedMapping("00010", "atm:air_temperature_2m", 0.75),
	}, false)
	require.NoError(t, err)

	resolved, err := m.Resolve("USGS_NWIS", "00095")
	require.NoError(t, err)
	assert.Equal(t, "water:specific_conductance_us_cm", resolved.Variable.ID)
	assert.Equal(t, "http://vocabulary.odm2.org/variablename/specificConductance/", resolved.Variable.ObservedPropertyURI)

	// Suggested mappings do not resolve.
	_, err = m.Resolve("USGS_NWIS", "00010")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Resolve("USGS_NWIS", "no_such")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListUnknowns(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first := suggestedMapping("00010", "atm:air_temperature_2m", 0.75)
	second := suggestedMapping("00300", "water:specific_conductance_us_cm", 0.62)
	other := suggestedMapping("pm25", "atm:air_temperature_2m", 0.65)
	other.Dataset = "AIRNOW"

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil, []vocabulary.Mapping{second, first}, false)
	require.NoError(t, err)
	_, err = m.ApplyHarvestResult(ctx, "AIRNOW", nil, []vocabulary.Mapping{other}, false)
	require.NoError(t, err)

	all := m.ListUnknowns("")
	require.Len(t, all, 3)
	assert.Equal(t, "AIRNOW", all[0].Dataset)
	assert.Equal(t, "00010", all[1].NativeID)
	assert.Equal(t, "00300", all[2].NativeID)

	nwis := m.ListUnknowns("USGS_NWIS")
	assert.Len(t, nwis, 2)
}

func TestRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	params := []vocabulary.NativeParameter{
		{Dataset: "USGS_NWIS", NativeID: "00095", Label: "Specific conductance", Unit: "uS/cm"},
	}
	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", params, []vocabulary.Mapping{
		acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98),
		suggestedMapping("00010", "atm:air_temperature_2m", 0.75),
	}, false)
	require.NoError(t, err)

	reloaded, err := Open(m.Dir(), nil)
	require.NoError(t, err)

	assert.Equal(t, m.Seed(), reloaded.Seed())
	assert.Equal(t, m.Overrides(), reloaded.Overrides())
	assert.Equal(t, m.Delta(), reloaded.Delta())
	assert.Equal(t, m.HarvestSnapshot("USGS_NWIS"), reloaded.HarvestSnapshot("USGS_NWIS"))
}

func TestLoadFailsClosedOnCorruption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteSeed(filepath.Join(dir, SeedFile), testSeed))
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverridesFile), []byte("{not json"), 0o644))

	_, err := Open(dir, nil)
	require.Error(t, err)

	var corrupt *CorruptionError
	assert.True(t, errors.As(err, &corrupt))
}

func TestLoadRejectsWrongStatusInLayer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteSeed(filepath.Join(dir, SeedFile), testSeed))

	// A suggested entry inside the overrides file is structural corruption.
	overrides := `{"USGS_NWIS": {"00095": {"canonical_id": "water:specific_conductance_us_cm", "confidence": 0.7, "status": "suggested", "timestamp": "2026-08-01T12:00:00Z", "provenance": {"source": "auto"}}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, OverridesFile), []byte(overrides), 0o644))

	_, err := Open(dir, nil)
	var corrupt *CorruptionError
	require.True(t, errors.As(err, &corrupt))
}

func TestApplyHarvestResultClearsStaleFlag(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}, false)
	require.NoError(t, err)

	// Shrink the seed so the persisted mapping dangles on reload.
	require.NoError(t, WriteSeed(filepath.Join(m.Dir(), SeedFile), testSeed[1:]))
	reloaded, err := Open(m.Dir(), nil)
	require.NoError(t, err)
	require.Empty(t, reloaded.MergedView())

	// A later harvest mapping the key to a variable present in the seed
	// must become visible immediately, not only after the next reload.
	result, err := reloaded.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "atm:air_temperature_2m", 0.95)}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)

	view := reloaded.MergedView()
	resolved, ok := view[vocabulary.Key{Dataset: "USGS_NWIS", NativeID: "00095"}]
	require.True(t, ok)
	assert.Equal(t, "atm:air_temperature_2m", resolved.Variable.ID)

	direct, err := reloaded.Resolve("USGS_NWIS", "00095")
	require.NoError(t, err)
	assert.Equal(t, "atm:air_temperature_2m", direct.Variable.ID)
}

func TestLoadFlagsUnknownCanonicalIDs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.ApplyHarvestResult(ctx, "USGS_NWIS", nil,
		[]vocabulary.Mapping{acceptedMapping("00095", "water:specific_conductance_us_cm", 0.98)}, false)
	require.NoError(t, err)

	// Shrink the seed so the persisted mapping dangles, then reload.
	require.NoError(t, WriteSeed(filepath.Join(m.Dir(), SeedFile), testSeed[1:]))
	reloaded, err := Open(m.Dir(), nil)
	require.NoError(t, err)

	assert.Len(t, reloaded.Overrides(), 1, "flagged mappings stay on disk")
	assert.Empty(t, reloaded.MergedView(), "flagged mappings are excluded from the merged view")
}
