// Package broker scores native parameters against canonical variable
// candidates. Matching is pure and deterministic: identical inputs produce
// identical results regardless of call order, so datasets can be scored in
// parallel and refreshes re-run safely.
package broker

import (
	"sort"
	"strings"

	"github.com/c360studio/semharvest/units"
	"github.com/c360studio/semharvest/vocabulary"
)

// Signal names recorded in score breakdowns.
const (
	SignalExactID         = "rulepack_exact_id"
	SignalLabelHint       = "rulepack_label_hint"
	SignalLabelEqual      = "label_equal"
	SignalLabelPartial    = "label_partial"
	SignalUnitPreferred   = "unit_preferred"
	SignalUnitAlternate   = "unit_alternate"
	SignalUnitConvertible = "unit_convertible"
	SignalDomainHint      = "domain_hint"
)

// Thresholds holds the decision boundaries for mapping status.
type Thresholds struct {
	// AutoAccept is the minimum confidence for status accepted.
	AutoAccept float64 `yaml:"auto_accept" json:"auto_accept"`
	// Suggest is the minimum confidence for status suggested.
	Suggest float64 `yaml:"suggest" json:"suggest"`
}

// DefaultThresholds returns the standard 0.90/0.60 policy.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoAccept: 0.90, Suggest: 0.60}
}

// Status maps a confidence to a mapping status under the thresholds.
func (t Thresholds) Status(confidence float64) vocabulary.MappingStatus {
	switch {
	case confidence >= t.AutoAccept:
		return vocabulary.StatusAccepted
	case confidence >= t.Suggest:
		return vocabulary.StatusSuggested
	default:
		return vocabulary.StatusUnmapped
	}
}

// Weights holds the per-signal score contributions. They are configuration:
// the ordering and threshold semantics matter, not the literal constants.
type Weights struct {
	ExactID         float64
	LabelHint       float64
	LabelEqual      float64
	LabelPartialMin float64
	LabelPartialMax float64
	UnitPreferred   float64
	UnitAlternate   float64
	UnitConvertible float64
	DomainHint      float64
}

// DefaultWeights returns the standard signal contributions.
func DefaultWeights() Weights {
	return Weights{
		ExactID:         0.95,
		LabelHint:       0.70,
		LabelEqual:      0.25,
		LabelPartialMin: 0.10,
		LabelPartialMax: 0.20,
		UnitPreferred:   0.03,
		UnitAlternate:   0.02,
		UnitConvertible: 0.01,
		DomainHint:      0.01,
	}
}

// MatchResult is the deterministic decision for one native parameter.
type MatchResult struct {
	// CanonicalID is the best-scoring candidate, also set for unmapped
	// results so callers can inspect near misses.
	CanonicalID string
	// Confidence is the capped additive score in [0,1].
	Confidence float64
	// Breakdown maps signal names to their contributions, for provenance.
	Breakdown map[string]float64
	// Status is the threshold decision: accepted, suggested, or unmapped.
	Status vocabulary.MappingStatus
}

// Config configures a Broker. Zero-value weights fall back to defaults.
type Config struct {
	Weights Weights
	Units   *units.Normalizer
}

// Broker is the stateless scoring engine.
type Broker struct {
	weights Weights
	units   *units.Normalizer
}

// NewDefault returns a Broker with default weights and built-in unit tables.
func NewDefault() *Broker {
	return New(Config{})
}

// New builds a Broker from the config.
func New(cfg Config) *Broker {
	w := cfg.Weights
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	n := cfg.Units
	if n == nil {
		n = units.NewDefault()
	}
	return &Broker{weights: w, units: n}
}

type candidateScore struct {
	canonicalID string
	total       float64
	breakdown   map[string]float64
	exactID     bool
}

// Match scores every candidate for one native parameter and returns the
// winner with its threshold decision. Missing inputs (no unit, no rule
// pack) degrade the corresponding signal to zero; they never fail the
// match. Ties break toward rule-pack exact-id matches, then toward the
// lexicographically smallest canonical id.
func (b *Broker) Match(
	param vocabulary.NativeParameter,
	candidates []vocabulary.CanonicalVariable,
	pack *vocabulary.RulePack,
	thresholds Thresholds,
) MatchResult {
	if len(candidates) == 0 {
		return MatchResult{Status: vocabulary.StatusUnmapped, Breakdown: map[string]float64{}}
	}

	label := vocabulary.NormalizeLabel(param.Label)
	domain := vocabulary.NormalizeLabel(param.DomainHint)
	unit, _ := b.units.Normalize(param.Unit)

	scores := make([]candidateScore, 0, len(candidates))
	for _, candidate := range candidates {
		scores = append(scores, b.score(param, label, domain, unit, candidate, pack))
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].total != scores[j].total {
			return scores[i].total > scores[j].total
		}
		if scores[i].exactID != scores[j].exactID {
			return scores[i].exactID
		}
		return scores[i].canonicalID < scores[j].canonicalID
	})

	best := scores[0]
	return MatchResult{
		CanonicalID: best.canonicalID,
		Confidence:  best.total,
		Breakdown:   best.breakdown,
		Status:      thresholds.Status(best.total),
	}
}

// score computes one candidate's additive total. The label channel takes the
// strongest single label signal (exact id, then hint, then equality, then
// partial); the unit and domain channels add on top, capped at 1.0.
func (b *Broker) score(
	param vocabulary.NativeParameter,
	label, domain, unit string,
	candidate vocabulary.CanonicalVariable,
	pack *vocabulary.RulePack,
) candidateScore {
	cs := candidateScore{canonicalID: candidate.ID, breakdown: map[string]float64{}}

	signal, contribution, exact := b.labelSignal(param, label, candidate, pack)
	if contribution > 0 {
		cs.breakdown[signal] = contribution
		cs.total += contribution
		cs.exactID = exact
	}

	if signal, contribution := b.unitSignal(unit, candidate); contribution > 0 {
		cs.breakdown[signal] = contribution
		cs.total += contribution
	}

	if domain != "" && domain == vocabulary.NormalizeLabel(candidate.Domain) {
		cs.breakdown[SignalDomainHint] = b.weights.DomainHint
		cs.total += b.weights.DomainHint
	}

	if cs.total > 1.0 {
		cs.total = 1.0
	}
	return cs
}

func (b *Broker) labelSignal(
	param vocabulary.NativeParameter,
	label string,
	candidate vocabulary.CanonicalVariable,
	pack *vocabulary.RulePack,
) (string, float64, bool) {
	if canonicalID, ok := pack.ExactCanonical(param.NativeID); ok && canonicalID == candidate.ID {
		return SignalExactID, b.weights.ExactID, true
	}
	if pack.HintMatches(candidate.ID, label) {
		return SignalLabelHint, b.weights.LabelHint, false
	}
	if label == "" {
		return "", 0, false
	}

	bestPartial := 0.0
	for _, candidateLabel := range candidate.Labels {
		normalized := vocabulary.NormalizeLabel(candidateLabel)
		if normalized == "" {
			continue
		}
		if normalized == label {
			return SignalLabelEqual, b.weights.LabelEqual, false
		}
		if partial := b.partialScore(label, normalized); partial > bestPartial {
			bestPartial = partial
		}
	}
	if bestPartial > 0 {
		return SignalLabelPartial, bestPartial, false
	}
	return "", 0, false
}

// partialScore scores substring containment between the native label and a
// candidate label, scaled by match length ratio between the partial min and
// max weights.
func (b *Broker) partialScore(label, candidateLabel string) float64 {
	shorter, longer := label, candidateLabel
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return 0
	}
	ratio := float64(len(shorter)) / float64(len(longer))
	return b.weights.LabelPartialMin + (b.weights.LabelPartialMax-b.weights.LabelPartialMin)*ratio
}

func (b *Broker) unitSignal(unit string, candidate vocabulary.CanonicalVariable) (string, float64) {
	if unit == "" || candidate.PreferredUnit == "" {
		return "", 0
	}
	preferred, _ := b.units.Normalize(candidate.PreferredUnit)
	if unit == preferred {
		return SignalUnitPreferred, b.weights.UnitPreferred
	}
	for _, alternate := range candidate.AlternateUnits {
		if normalized, _ := b.units.Normalize(alternate); unit == normalized {
			return SignalUnitAlternate, b.weights.UnitAlternate
		}
	}
	if b.units.Convertible(unit, preferred) {
		return SignalUnitConvertible, b.weights.UnitConvertible
	}
	return "", 0
}
