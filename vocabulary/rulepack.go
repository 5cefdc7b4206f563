package vocabulary

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// RulePack is a per-dataset, externally authored table of exact-id and
// label-hint mappings used to boost matching confidence. Packs are read-only
// once loaded.
type RulePack struct {
	// Dataset names the data source this pack applies to.
	Dataset string `yaml:"dataset" json:"dataset"`
	// ExactIDs maps native ids directly to canonical ids.
	ExactIDs map[string]string `yaml:"exact_ids" json:"exact_ids,omitempty"`
	// LabelHints maps canonical ids to label substrings that identify them.
	LabelHints map[string][]string `yaml:"label_hints" json:"label_hints,omitempty"`
}

// Validate checks the pack is structurally usable.
func (p *RulePack) Validate() error {
	if strings.TrimSpace(p.Dataset) == "" {
		return fmt.Errorf("rule pack requires a dataset")
	}
	for nativeID, canonicalID := range p.ExactIDs {
		if strings.TrimSpace(canonicalID) == "" {
			return fmt.Errorf("rule pack %s: exact id %q maps to empty canonical id", p.Dataset, nativeID)
		}
	}
	for canonicalID, hints := range p.LabelHints {
		if strings.TrimSpace(canonicalID) == "" {
			return fmt.Errorf("rule pack %s: label hints keyed by empty canonical id", p.Dataset)
		}
		for _, hint := range hints {
			if NormalizeLabel(hint) == "" {
				return fmt.Errorf("rule pack %s: empty label hint for %s", p.Dataset, canonicalID)
			}
		}
	}
	return nil
}

// normalized returns a copy with native ids case-folded/trimmed and label
// hints in label normal form, so lookups during scoring are exact map hits.
func (p *RulePack) normalized() *RulePack {
	out := &RulePack{Dataset: p.Dataset}
	if len(p.ExactIDs) > 0 {
		out.ExactIDs = make(map[string]string, len(p.ExactIDs))
		for nativeID, canonicalID := range p.ExactIDs {
			out.ExactIDs[strings.ToLower(strings.TrimSpace(nativeID))] = canonicalID
		}
	}
	if len(p.LabelHints) > 0 {
		out.LabelHints = make(map[string][]string, len(p.LabelHints))
		for canonicalID, hints := range p.LabelHints {
			normalized := make([]string, 0, len(hints))
			for _, hint := range hints {
				normalized = append(normalized, NormalizeLabel(hint))
			}
			out.LabelHints[canonicalID] = normalized
		}
	}
	return out
}

// ExactCanonical returns the canonical id mapped from a native id, if any.
// Native ids match case-insensitively with surrounding whitespace trimmed.
// Packs loaded from disk carry pre-folded keys for the map-hit fast path;
// hand-built packs fall back to a scan with folded comparison.
func (p *RulePack) ExactCanonical(nativeID string) (string, bool) {
	if p == nil || len(p.ExactIDs) == 0 {
		return "", false
	}
	folded := strings.ToLower(strings.TrimSpace(nativeID))
	if canonicalID, ok := p.ExactIDs[folded]; ok {
		return canonicalID, true
	}
	for key, canonicalID := range p.ExactIDs {
		if strings.ToLower(strings.TrimSpace(key)) == folded {
			return canonicalID, true
		}
	}
	return "", false
}

// HintMatches reports whether any label hint for the canonical id is a
// substring of the normalized label. Hints are put in label normal form
// before comparing, so hand-built packs need no pre-normalization.
func (p *RulePack) HintMatches(canonicalID, normalizedLabel string) bool {
	if p == nil || normalizedLabel == "" {
		return false
	}
	for _, hint := range p.LabelHints[canonicalID] {
		if hint = NormalizeLabel(hint); hint != "" && strings.Contains(normalizedLabel, hint) {
			return true
		}
	}
	return false
}

// PackSet holds the rule packs for all datasets, indexed by dataset, and can
// reload them from disk when pack files change.
type PackSet struct {
	pattern string
	logger  *slog.Logger

	mu    sync.RWMutex
	packs map[string]*RulePack
}

// LoadPacks discovers rule pack files matching the doublestar pattern
// (e.g. "rulepacks/**/*.yaml") and loads them. An empty pattern yields an
// empty set; matching is then rule-pack free.
func LoadPacks(pattern string, logger *slog.Logger) (*PackSet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &PackSet{pattern: pattern, logger: logger, packs: map[string]*RulePack{}}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads all pack files matching the pattern, replacing the set
// wholesale. A malformed pack file fails the whole reload so a partial set
// never goes live.
func (s *PackSet) Reload() error {
	if s.pattern == "" {
		return nil
	}
	matches, err := doublestar.FilepathGlob(s.pattern)
	if err != nil {
		return fmt.Errorf("glob rule packs %q: %w", s.pattern, err)
	}
	sort.Strings(matches)

	packs := make(map[string]*RulePack, len(matches))
	for _, path := range matches {
		pack, err := loadPackFile(path)
		if err != nil {
			return err
		}
		if _, exists := packs[pack.Dataset]; exists {
			return fmt.Errorf("duplicate rule pack for dataset %s at %s", pack.Dataset, path)
		}
		packs[pack.Dataset] = pack.normalized()
	}

	s.mu.Lock()
	s.packs = packs
	s.mu.Unlock()
	s.logger.Debug("rule packs loaded", slog.Int("count", len(packs)), slog.String("pattern", s.pattern))
	return nil
}

func loadPackFile(path string) (*RulePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack %s: %w", path, err)
	}
	var pack RulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse rule pack %s: %w", path, err)
	}
	if pack.Dataset == "" {
		// Fall back to the file name so single-dataset packs stay terse.
		pack.Dataset = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := pack.Validate(); err != nil {
		return nil, fmt.Errorf("rule pack %s: %w", path, err)
	}
	return &pack, nil
}

// For returns the pack for a dataset, or nil when none is configured.
func (s *PackSet) For(dataset string) *RulePack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packs[dataset]
}

// Datasets returns the datasets with packs, sorted.
func (s *PackSet) Datasets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	datasets := make([]string, 0, len(s.packs))
	for dataset := range s.packs {
		datasets = append(datasets, dataset)
	}
	sort.Strings(datasets)
	return datasets
}

// Watch reloads the set whenever files under the pattern's base directory
// change, invoking onChange after each successful reload. It blocks until
// the context is cancelled.
func (s *PackSet) Watch(ctx context.Context, onChange func()) error {
	if s.pattern == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(s.pattern))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rule pack watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.FromSlash(base)); err != nil {
		return fmt.Errorf("watch rule pack dir %s: %w", base, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("rule pack reload failed",
					slog.String("path", event.Name),
					slog.String("error", err.Error()))
				continue
			}
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("rule pack watcher error", slog.String("error", err.Error()))
		}
	}
}
