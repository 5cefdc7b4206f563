// Package units canonicalizes free-form unit strings and performs
// best-effort conversion between compatible units. The alias and conversion
// tables are data: built-in defaults extended by optional YAML files, so
// new units never require recompiling the matcher.
package units

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Info describes a canonical unit form.
type Info struct {
	// Canonical is the short canonical form, e.g. "degC" or "ft3/s".
	Canonical string `yaml:"canonical"`
	// URI is the ontology URI for the unit, when known.
	URI string `yaml:"uri,omitempty"`
}

// Converter is a pluggable numeric-conversion backend. The built-in affine
// table is consulted only when no backend is configured or the backend has
// no path.
type Converter interface {
	Convert(value float64, from, to string) (float64, error)
	Convertible(from, to string) bool
}

// ConversionError reports that no conversion path exists between two units.
// Callers must treat it as "value unconverted, warning emitted", never as a
// hard failure.
type ConversionError struct {
	From string
	To   string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("no unit conversion path from %q to %q", e.From, e.To)
}

// Config configures a Normalizer.
type Config struct {
	// AliasFile is an optional YAML file of additional aliases, merged over
	// the built-in table. Format: map of alias string to {canonical, uri}.
	AliasFile string
	// Converter is an optional numeric-conversion backend tried before the
	// built-in fallback table.
	Converter Converter
}

// Normalizer maps unit spellings to canonical forms and converts values
// between compatible units.
type Normalizer struct {
	aliases   map[string]Info
	converter Converter
}

// NewDefault returns a Normalizer with only the built-in tables.
func NewDefault() *Normalizer {
	n, _ := New(Config{})
	return n
}

// New builds a Normalizer from the config. The alias file, when given, must
// parse; a missing file is an error so a typo'd path never silently drops
// curated aliases.
func New(cfg Config) (*Normalizer, error) {
	aliases := make(map[string]Info, len(builtinAliases))
	for alias, info := range builtinAliases {
		aliases[aliasKey(alias)] = info
	}

	if cfg.AliasFile != "" {
		data, err := os.ReadFile(cfg.AliasFile)
		if err != nil {
			return nil, fmt.Errorf("read unit alias file: %w", err)
		}
		var extra map[string]Info
		if err := yaml.Unmarshal(data, &extra); err != nil {
			return nil, fmt.Errorf("parse unit alias file %s: %w", cfg.AliasFile, err)
		}
		for alias, info := range extra {
			if info.Canonical == "" {
				return nil, fmt.Errorf("unit alias file %s: alias %q has no canonical form", cfg.AliasFile, alias)
			}
			aliases[aliasKey(alias)] = info
		}
	}

	return &Normalizer{aliases: aliases, converter: cfg.Converter}, nil
}

// Normalize maps a free-form unit string to its canonical short form and
// ontology URI. Unknown strings pass through trimmed, with no URI.
func (n *Normalizer) Normalize(unit string) (string, string) {
	trimmed := strings.TrimSpace(unit)
	if trimmed == "" {
		return "", ""
	}
	if info, ok := n.aliases[aliasKey(trimmed)]; ok {
		return info.Canonical, info.URI
	}
	return trimmed, ""
}

// Convert converts a value between units, trying the pluggable backend
// first and falling back to the built-in affine table. When no path exists
// it returns the value unchanged alongside a *ConversionError.
func (n *Normalizer) Convert(value float64, from, to string) (float64, error) {
	cFrom, _ := n.Normalize(from)
	cTo, _ := n.Normalize(to)
	if cFrom == cTo {
		return value, nil
	}

	if n.converter != nil && n.converter.Convertible(cFrom, cTo) {
		return n.converter.Convert(value, cFrom, cTo)
	}

	if conv, ok := lookupConversion(cFrom, cTo); ok {
		return conv.apply(value), nil
	}
	return value, &ConversionError{From: from, To: to}
}

// Convertible reports whether Convert would find a path between the units.
func (n *Normalizer) Convertible(from, to string) bool {
	cFrom, _ := n.Normalize(from)
	cTo, _ := n.Normalize(to)
	if cFrom == "" || cTo == "" {
		return false
	}
	if cFrom == cTo {
		return true
	}
	if n.converter != nil && n.converter.Convertible(cFrom, cTo) {
		return true
	}
	_, ok := lookupConversion(cFrom, cTo)
	return ok
}

func aliasKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
