// Package registry provides durable, crash-safe storage for the four
// mapping layers: curated seed, accepted overrides, suggested delta, and
// per-dataset harvest snapshots. All writes are atomic temp-file-then-rename
// and mutating calls are serialized behind a directory-scoped advisory lock,
// so a reader never observes a partially written layer.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/c360studio/semharvest/vocabulary"
)

// Layer file names inside the registry directory.
const (
	SeedFile      = "registry_seed.json"
	OverridesFile = "registry_overrides.json"
	DeltaFile     = "registry_delta.json"
	HarvestDir    = "harvest"

	lockFile      = ".lock"
	lockRetry     = 50 * time.Millisecond
	layerFileMode = 0o644
)

// storedMapping is the on-disk shape of a mapping. Dataset and native id are
// implied by the file's nesting keys.
type storedMapping struct {
	CanonicalID string                   `json:"canonical_id"`
	Confidence  float64                  `json:"confidence"`
	Breakdown   map[string]float64       `json:"score_breakdown,omitempty"`
	Status      vocabulary.MappingStatus `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	Provenance  vocabulary.Provenance    `json:"provenance"`
}

func toStored(m vocabulary.Mapping) storedMapping {
	return storedMapping{
		CanonicalID: m.CanonicalID,
		Confidence:  m.Confidence,
		Breakdown:   m.Breakdown,
		Status:      m.Status,
		Timestamp:   m.Timestamp,
		Provenance:  m.Provenance,
	}
}

func (s storedMapping) toMapping(dataset, nativeID string) vocabulary.Mapping {
	return vocabulary.Mapping{
		Dataset:     dataset,
		NativeID:    nativeID,
		CanonicalID: s.CanonicalID,
		Confidence:  s.Confidence,
		Breakdown:   s.Breakdown,
		Status:      s.Status,
		Timestamp:   s.Timestamp,
		Provenance:  s.Provenance,
	}
}

type layer map[string]map[string]vocabulary.Mapping

func (l layer) get(key vocabulary.Key) (vocabulary.Mapping, bool) {
	m, ok := l[key.Dataset][key.NativeID]
	return m, ok
}

func (l layer) set(m vocabulary.Mapping) {
	if l[m.Dataset] == nil {
		l[m.Dataset] = make(map[string]vocabulary.Mapping)
	}
	l[m.Dataset][m.NativeID] = m
}

func (l layer) remove(key vocabulary.Key) bool {
	byNative, ok := l[key.Dataset]
	if !ok {
		return false
	}
	if _, ok := byNative[key.NativeID]; !ok {
		return false
	}
	delete(byNative, key.NativeID)
	if len(byNative) == 0 {
		delete(l, key.Dataset)
	}
	return true
}

func (l layer) sorted() []vocabulary.Mapping {
	out := make([]vocabulary.Mapping, 0)
	for _, byNative := range l {
		for _, m := range byNative {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dataset != out[j].Dataset {
			return out[i].Dataset < out[j].Dataset
		}
		return out[i].NativeID < out[j].NativeID
	})
	return out
}

// Resolved joins an accepted (or suggested) mapping to its seed variable in
// the merged view.
type Resolved struct {
	Variable vocabulary.CanonicalVariable
	Mapping  vocabulary.Mapping
}

// Conflict records one refused overwrite of an accepted mapping.
type Conflict struct {
	NativeID    string `json:"native_id"`
	ExistingID  string `json:"existing_canonical_id"`
	RequestedID string `json:"requested_canonical_id"`
}

// ApplyResult summarizes one ApplyHarvestResult call.
type ApplyResult struct {
	Dataset   string     `json:"dataset"`
	Accepted  int        `json:"accepted"`
	Suggested int        `json:"suggested"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	// Rejected lists native ids whose mappings referenced canonical ids
	// absent from the seed and were refused.
	Rejected []string `json:"rejected,omitempty"`
}

// Manager owns one registry directory: loading, merging, and persisting the
// four layers. It is safe for concurrent use; reads never block on the
// writer lock beyond the brief window of an in-flight rename.
type Manager struct {
	dir      string
	logger   *slog.Logger
	fileLock *flock.Flock

	// wmu serializes mutating operations in-process; fileLock serializes
	// them across processes sharing the directory.
	wmu sync.Mutex

	mu        sync.RWMutex
	seed      []vocabulary.CanonicalVariable
	seedIndex map[string]vocabulary.CanonicalVariable
	overrides layer
	delta     layer
	harvest   map[string][]vocabulary.NativeParameter
	// flagged marks keys whose persisted canonical id is missing from the
	// seed; they are kept on disk but excluded from the merged view.
	flagged map[vocabulary.Key]bool
}

// Open creates a Manager for the directory and loads all layers. The
// directory and its harvest subdirectory are created if absent; a missing
// seed file yields an empty seed (first run), but malformed content fails
// closed with a *CorruptionError.
func Open(dir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, HarvestDir), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	m := &Manager{
		dir:      dir,
		logger:   logger,
		fileLock: flock.New(filepath.Join(dir, lockFile)),
	}
	if err := m.LoadAll(); err != nil {
		return nil, err
	}
	return m, nil
}

// Dir returns the registry directory.
func (m *Manager) Dir() string {
	return m.dir
}

// LoadAll (re)reads every layer from disk, replacing the in-memory state
// wholesale on success and leaving it untouched on failure.
func (m *Manager) LoadAll() error {
	seed, err := readSeed(filepath.Join(m.dir, SeedFile))
	if err != nil {
		return err
	}
	seedIndex := make(map[string]vocabulary.CanonicalVariable, len(seed))
	for _, v := range seed {
		if err := v.Validate(); err != nil {
			return &CorruptionError{Path: filepath.Join(m.dir, SeedFile), Err: err}
		}
		if _, dup := seedIndex[v.ID]; dup {
			return &CorruptionError{
				Path: filepath.Join(m.dir, SeedFile),
				Err:  fmt.Errorf("duplicate canonical id %s", v.ID),
			}
		}
		seedIndex[v.ID] = v
	}

	overrides, err := readLayer(filepath.Join(m.dir, OverridesFile), vocabulary.StatusAccepted)
	if err != nil {
		return err
	}
	delta, err := readLayer(filepath.Join(m.dir, DeltaFile), vocabulary.StatusSuggested)
	if err != nil {
		return err
	}
	harvest, err := readHarvest(filepath.Join(m.dir, HarvestDir))
	if err != nil {
		return err
	}

	flagged := make(map[vocabulary.Key]bool)
	for _, l := range []layer{overrides, delta} {
		for _, mapping := range l.sorted() {
			if _, known := seedIndex[mapping.CanonicalID]; !known {
				flagged[mapping.Key()] = true
				m.logger.Warn("mapping references canonical id missing from seed; excluded from merged view",
					slog.String("key", mapping.Key().String()),
					slog.String("canonical_id", mapping.CanonicalID))
			}
		}
	}

	m.mu.Lock()
	m.seed = seed
	m.seedIndex = seedIndex
	m.overrides = overrides
	m.delta = delta
	m.harvest = harvest
	m.flagged = flagged
	m.mu.Unlock()

	m.logger.Debug("registry loaded",
		slog.String("dir", m.dir),
		slog.Int("seed", len(seed)),
		slog.Int("overrides", len(overrides.sorted())),
		slog.Int("delta", len(delta.sorted())))
	return nil
}

func readSeed(path string) ([]vocabulary.CanonicalVariable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed []vocabulary.CanonicalVariable
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	return seed, nil
}

func readLayer(path string, want vocabulary.MappingStatus) (layer, error) {
	out := make(layer)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read layer %s: %w", path, err)
	}
	var raw map[string]map[string]storedMapping
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CorruptionError{Path: path, Err: err}
	}
	for dataset, byNative := range raw {
		for nativeID, stored := range byNative {
			mapping := stored.toMapping(dataset, nativeID)
			if mapping.Status != want {
				return nil, &CorruptionError{
					Path: path,
					Err:  fmt.Errorf("entry %s has status %q, want %q", mapping.Key(), mapping.Status, want),
				}
			}
			if err := mapping.Validate(); err != nil {
				return nil, &CorruptionError{Path: path, Err: err}
			}
			out.set(mapping)
		}
	}
	return out, nil
}

func readHarvest(dir string) (map[string][]vocabulary.NativeParameter, error) {
	out := make(map[string][]vocabulary.NativeParameter)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read harvest dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read harvest snapshot %s: %w", path, err)
		}
		var params []vocabulary.NativeParameter
		if err := json.Unmarshal(data, &params); err != nil {
			return nil, &CorruptionError{Path: path, Err: err}
		}
		out[strings.TrimSuffix(entry.Name(), ".json")] = params
	}
	return out, nil
}

// Seed returns the canonical variables, in seed order.
func (m *Manager) Seed() []vocabulary.CanonicalVariable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]vocabulary.CanonicalVariable, len(m.seed))
	copy(out, m.seed)
	return out
}

// Variable looks up one canonical variable by id.
func (m *Manager) Variable(canonicalID string) (vocabulary.CanonicalVariable, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.seedIndex[canonicalID]
	return v, ok
}

// Overrides returns all accepted mappings, sorted by dataset then native id.
func (m *Manager) Overrides() []vocabulary.Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overrides.sorted()
}

// Delta returns all suggested mappings, sorted by dataset then native id.
func (m *Manager) Delta() []vocabulary.Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.delta.sorted()
}

// HarvestSnapshot returns the most recently persisted native-parameter
// catalog for a dataset, or nil when none exists.
func (m *Manager) HarvestSnapshot(dataset string) []vocabulary.NativeParameter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	params := m.harvest[dataset]
	out := make([]vocabulary.NativeParameter, len(params))
	copy(out, params)
	return out
}

type viewConfig struct {
	includeSuggested bool
}

// ViewOption configures MergedView.
type ViewOption func(*viewConfig)

// IncludeSuggested makes delta entries visible in the merged view. They
// never shadow accepted entries and are meant for review tooling only;
// semantics attachment uses the default accepted-only view.
func IncludeSuggested() ViewOption {
	return func(c *viewConfig) { c.includeSuggested = true }
}

// MergedView returns the read-only (dataset, nativeID) → canonical variable
// view. Overrides take precedence; unmapped native ids are simply absent.
// Lookup misses are the consumer's concern; this never errors.
func (m *Manager) MergedView(opts ...ViewOption) map[vocabulary.Key]Resolved {
	var cfg viewConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	view := make(map[vocabulary.Key]Resolved)
	add := func(l layer) {
		for _, mapping := range l.sorted() {
			key := mapping.Key()
			if m.flagged[key] {
				continue
			}
			if _, taken := view[key]; taken {
				continue
			}
			variable, ok := m.seedIndex[mapping.CanonicalID]
			if !ok {
				continue
			}
			view[key] = Resolved{Variable: variable, Mapping: mapping}
		}
	}
	add(m.overrides)
	if cfg.includeSuggested {
		add(m.delta)
	}
	return view
}

// Resolve looks up the canonical variable for one native parameter. Only
// accepted, unflagged mappings resolve; everything else is ErrNotFound.
func (m *Manager) Resolve(dataset, nativeID string) (Resolved, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := vocabulary.Key{Dataset: dataset, NativeID: nativeID}
	if m.flagged[key] {
		return Resolved{}, ErrNotFound
	}
	mapping, ok := m.overrides.get(key)
	if !ok {
		return Resolved{}, ErrNotFound
	}
	variable, ok := m.seedIndex[mapping.CanonicalID]
	if !ok {
		return Resolved{}, ErrNotFound
	}
	return Resolved{Variable: variable, Mapping: mapping}, nil
}

// ListUnknowns enumerates suggested mappings awaiting review, sorted by
// dataset then native id. An empty dataset selects all datasets.
func (m *Manager) ListUnknowns(dataset string) []vocabulary.Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.delta.sorted()
	if dataset == "" {
		return all
	}
	out := make([]vocabulary.Mapping, 0, len(all))
	for _, mapping := range all {
		if mapping.Dataset == dataset {
			out = append(out, mapping)
		}
	}
	return out
}

// ApplyHarvestResult overwrites the harvest snapshot for the dataset and
// upserts the new mappings: accepted into overrides, suggested into delta.
// An accepted upsert that would change an existing accepted canonical id is
// refused and recorded as a conflict unless allowOverwrite is set; the
// registry stays unchanged for that key. Upserts that do not change the
// stored decision keep the stored entry byte-for-byte, so re-applying an
// unchanged harvest rewrites identical files.
func (m *Manager) ApplyHarvestResult(
	ctx context.Context,
	dataset string,
	params []vocabulary.NativeParameter,
	mappings []vocabulary.Mapping,
	allowOverwrite bool,
) (ApplyResult, error) {
	result := ApplyResult{Dataset: dataset}
	if dataset == "" {
		return result, fmt.Errorf("dataset is required")
	}

	m.wmu.Lock()
	defer m.wmu.Unlock()
	unlock, err := m.acquireFileLock(ctx)
	if err != nil {
		return result, err
	}
	defer unlock()

	m.mu.RLock()
	overrides := cloneLayer(m.overrides)
	delta := cloneLayer(m.delta)
	seedIndex := m.seedIndex
	m.mu.RUnlock()

	overridesDirty := false
	deltaDirty := false
	// Keys upserted this call; any stale flagged mark (canonical id missing
	// from seed at load time) is cleared for them on commit.
	unflag := make([]vocabulary.Key, 0)

	for _, mapping := range mappings {
		if mapping.Dataset == "" {
			mapping.Dataset = dataset
		}
		if mapping.Dataset != dataset {
			return result, fmt.Errorf("mapping %s does not belong to dataset %s", mapping.Key(), dataset)
		}
		if err := mapping.Validate(); err != nil {
			return result, err
		}
		if _, known := seedIndex[mapping.CanonicalID]; !known {
			result.Rejected = append(result.Rejected, mapping.NativeID)
			m.logger.Warn("rejecting mapping with unknown canonical id",
				slog.String("key", mapping.Key().String()),
				slog.String("canonical_id", mapping.CanonicalID))
			continue
		}

		key := mapping.Key()
		switch mapping.Status {
		case vocabulary.StatusAccepted:
			if existing, ok := overrides.get(key); ok {
				if existing.CanonicalID != mapping.CanonicalID && !allowOverwrite {
					result.Conflicts = append(result.Conflicts, Conflict{
						NativeID:    mapping.NativeID,
						ExistingID:  existing.CanonicalID,
						RequestedID: mapping.CanonicalID,
					})
					continue
				}
				if existing.Equivalent(mapping) {
					result.Accepted++
					unflag = append(unflag, key)
					if delta.remove(key) {
						deltaDirty = true
					}
					continue
				}
			}
			overrides.set(mapping)
			overridesDirty = true
			unflag = append(unflag, key)
			if delta.remove(key) {
				deltaDirty = true
			}
			result.Accepted++

		case vocabulary.StatusSuggested:
			if _, accepted := overrides.get(key); accepted {
				// Delta never shadows an accepted mapping.
				continue
			}
			if existing, ok := delta.get(key); ok && existing.Equivalent(mapping) {
				result.Suggested++
				unflag = append(unflag, key)
				continue
			}
			delta.set(mapping)
			deltaDirty = true
			unflag = append(unflag, key)
			result.Suggested++
		}
	}

	sorted := make([]vocabulary.NativeParameter, len(params))
	copy(sorted, params)
	for i := range sorted {
		if sorted[i].Dataset == "" {
			sorted[i].Dataset = dataset
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NativeID < sorted[j].NativeID })

	if err := writeJSONAtomic(filepath.Join(m.dir, HarvestDir, dataset+".json"), sorted); err != nil {
		return result, err
	}
	if overridesDirty {
		if err := writeJSONAtomic(filepath.Join(m.dir, OverridesFile), layerToStored(overrides)); err != nil {
			return result, err
		}
	}
	if deltaDirty {
		if err := writeJSONAtomic(filepath.Join(m.dir, DeltaFile), layerToStored(delta)); err != nil {
			return result, err
		}
	}

	m.mu.Lock()
	m.overrides = overrides
	m.delta = delta
	m.harvest[dataset] = sorted
	for _, key := range unflag {
		delete(m.flagged, key)
	}
	m.mu.Unlock()

	return result, nil
}

// Promote is the manual curation path: it removes any delta entry for the
// key and upserts an accepted override. Confidence and breakdown carry over
// from the prior suggestion when it proposed the same canonical id, and
// default to 1.0 otherwise. A conflicting accepted entry fails with a
// *ConflictError unless force is set.
func (m *Manager) Promote(ctx context.Context, dataset, nativeID, canonicalID string, force bool) (vocabulary.Mapping, error) {
	if dataset == "" || nativeID == "" || canonicalID == "" {
		return vocabulary.Mapping{}, fmt.Errorf("promote requires dataset, native id, and canonical id")
	}

	m.wmu.Lock()
	defer m.wmu.Unlock()
	unlock, err := m.acquireFileLock(ctx)
	if err != nil {
		return vocabulary.Mapping{}, err
	}
	defer unlock()

	m.mu.RLock()
	_, known := m.seedIndex[canonicalID]
	overrides := cloneLayer(m.overrides)
	delta := cloneLayer(m.delta)
	m.mu.RUnlock()

	if !known {
		return vocabulary.Mapping{}, fmt.Errorf("canonical id %q is not in the seed", canonicalID)
	}

	key := vocabulary.Key{Dataset: dataset, NativeID: nativeID}
	if existing, ok := overrides.get(key); ok && existing.CanonicalID != canonicalID && !force {
		return vocabulary.Mapping{}, &ConflictError{
			Dataset:     dataset,
			NativeID:    nativeID,
			ExistingID:  existing.CanonicalID,
			RequestedID: canonicalID,
		}
	}

	promoted := vocabulary.Mapping{
		Dataset:     dataset,
		NativeID:    nativeID,
		CanonicalID: canonicalID,
		Confidence:  1.0,
		Status:      vocabulary.StatusAccepted,
		Timestamp:   time.Now().UTC(),
		Provenance:  vocabulary.Provenance{Source: vocabulary.ProvenanceManual},
	}
	if suggestion, ok := delta.get(key); ok && suggestion.CanonicalID == canonicalID {
		promoted.Confidence = suggestion.Confidence
		promoted.Breakdown = suggestion.Breakdown
	}

	deltaDirty := delta.remove(key)
	overrides.set(promoted)

	if err := writeJSONAtomic(filepath.Join(m.dir, OverridesFile), layerToStored(overrides)); err != nil {
		return vocabulary.Mapping{}, err
	}
	if deltaDirty {
		if err := writeJSONAtomic(filepath.Join(m.dir, DeltaFile), layerToStored(delta)); err != nil {
			return vocabulary.Mapping{}, err
		}
	}

	m.mu.Lock()
	m.overrides = overrides
	m.delta = delta
	delete(m.flagged, key)
	m.mu.Unlock()

	return promoted, nil
}

func (m *Manager) acquireFileLock(ctx context.Context) (func(), error) {
	locked, err := m.fileLock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("acquire registry lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire registry lock: not acquired")
	}
	return func() {
		if err := m.fileLock.Unlock(); err != nil {
			m.logger.Warn("release registry lock", slog.String("error", err.Error()))
		}
	}, nil
}

func cloneLayer(l layer) layer {
	out := make(layer, len(l))
	for dataset, byNative := range l {
		copied := make(map[string]vocabulary.Mapping, len(byNative))
		for nativeID, mapping := range byNative {
			copied[nativeID] = mapping
		}
		out[dataset] = copied
	}
	return out
}

func layerToStored(l layer) map[string]map[string]storedMapping {
	out := make(map[string]map[string]storedMapping, len(l))
	for dataset, byNative := range l {
		stored := make(map[string]storedMapping, len(byNative))
		for nativeID, mapping := range byNative {
			stored[nativeID] = toStored(mapping)
		}
		out[dataset] = stored
	}
	return out
}

// WriteSeed persists a canonical variable set as a seed file. Seeds are
// curated out-of-band; this helper exists for tooling and tests.
func WriteSeed(path string, seed []vocabulary.CanonicalVariable) error {
	return writeJSONAtomic(path, seed)
}

// writeJSONAtomic writes via a temp file in the target directory followed
// by a rename, so readers never observe a partial file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, layerFileMode); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
