package vocabulary

import (
	"fmt"
	"strings"
	"time"
)

// CanonicalVariable is an ontology-backed variable shared across all data
// sources. Seed entries are curated out-of-band and treated as immutable for
// the process lifetime.
type CanonicalVariable struct {
	// ID is the unique canonical identifier, e.g. "water:specific_conductance_us_cm".
	ID string `json:"id"`
	// Labels lists human-readable synonyms in preference order.
	Labels []string `json:"labels"`
	// ObservedPropertyURI is the ontology URI for the observed property.
	ObservedPropertyURI string `json:"observed_property_uri,omitempty"`
	// PreferredUnit is the canonical short unit form, e.g. "uS/cm".
	PreferredUnit string `json:"preferred_unit,omitempty"`
	// AlternateUnits lists additional units the variable is commonly
	// published in.
	AlternateUnits []string `json:"alternate_units,omitempty"`
	// UnitURI is the ontology URI for the preferred unit.
	UnitURI string `json:"unit_uri,omitempty"`
	// Domain is a free-text domain hint, e.g. "water".
	Domain string `json:"domain,omitempty"`
}

// Validate checks that the variable is usable as a seed entry.
func (v CanonicalVariable) Validate() error {
	if strings.TrimSpace(v.ID) == "" {
		return fmt.Errorf("canonical variable id is required")
	}
	return nil
}

// NativeParameter is a source-specific parameter as published by one
// external data service. It is produced by harvest adapters and is
// read-only input to matching.
type NativeParameter struct {
	Dataset    string `json:"dataset"`
	NativeID   string `json:"native_id"`
	Label      string `json:"label"`
	Unit       string `json:"unit,omitempty"`
	DomainHint string `json:"domain_hint,omitempty"`
}

// MappingStatus represents the decision state of a native→canonical mapping.
type MappingStatus string

const (
	// StatusAccepted means the mapping met the auto-accept threshold or was
	// promoted manually. Accepted mappings live in the overrides layer.
	StatusAccepted MappingStatus = "accepted"
	// StatusSuggested means the mapping met the suggest threshold and awaits
	// human review in the delta layer.
	StatusSuggested MappingStatus = "suggested"
	// StatusUnmapped means no candidate scored high enough. Unmapped results
	// are never persisted; absence implies them.
	StatusUnmapped MappingStatus = "unmapped"
)

// Provenance sources.
const (
	ProvenanceAuto   = "auto"
	ProvenanceManual = "manual"
)

// Provenance records how a mapping came to be.
type Provenance struct {
	// Source is "auto" for harvester-produced mappings, "manual" for
	// promoted ones.
	Source string `json:"source"`
	// RunID identifies the refresh cycle that produced an auto mapping.
	RunID string `json:"run_id,omitempty"`
	// AutoAcceptThreshold is the threshold in effect when an accepted
	// mapping was produced. Historical record only; not re-validated on
	// reload.
	AutoAcceptThreshold float64 `json:"auto_accept_threshold,omitempty"`
}

// Mapping is the persisted unit of work: one native parameter bound to one
// canonical variable with a confidence score and signal breakdown.
type Mapping struct {
	Dataset     string             `json:"dataset"`
	NativeID    string             `json:"native_id"`
	CanonicalID string             `json:"canonical_id"`
	Confidence  float64            `json:"confidence"`
	Breakdown   map[string]float64 `json:"score_breakdown,omitempty"`
	Status      MappingStatus      `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	Provenance  Provenance         `json:"provenance"`
}

// Key identifies a mapping within a registry layer.
type Key struct {
	Dataset  string
	NativeID string
}

// String returns the "dataset:nativeID" form of the key.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Dataset, k.NativeID)
}

// Key returns the layer key for the mapping.
func (m Mapping) Key() Key {
	return Key{Dataset: m.Dataset, NativeID: m.NativeID}
}

// Validate checks structural invariants of a mapping before persistence.
func (m Mapping) Validate() error {
	if m.Dataset == "" || m.NativeID == "" {
		return fmt.Errorf("mapping requires dataset and native id, got %q:%q", m.Dataset, m.NativeID)
	}
	if m.CanonicalID == "" {
		return fmt.Errorf("mapping %s has no canonical id", m.Key())
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("mapping %s confidence %f outside [0,1]", m.Key(), m.Confidence)
	}
	switch m.Status {
	case StatusAccepted, StatusSuggested:
	default:
		return fmt.Errorf("mapping %s has non-persistable status %q", m.Key(), m.Status)
	}
	return nil
}

// Equivalent reports whether two mappings carry the same decision: same
// canonical id, confidence, status, and breakdown. Timestamp and provenance
// are ignored so an unchanged re-harvest keeps the stored entry untouched.
func (m Mapping) Equivalent(other Mapping) bool {
	if m.Dataset != other.Dataset || m.NativeID != other.NativeID {
		return false
	}
	if m.CanonicalID != other.CanonicalID || m.Status != other.Status {
		return false
	}
	if m.Confidence != other.Confidence {
		return false
	}
	if len(m.Breakdown) != len(other.Breakdown) {
		return false
	}
	for signal, score := range m.Breakdown {
		if other.Breakdown[signal] != score {
			return false
		}
	}
	return true
}

// NormalizeLabel case-folds, trims, and collapses inner whitespace so all
// label comparisons share one normal form.
func NormalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
