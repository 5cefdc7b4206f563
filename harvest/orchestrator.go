// Package harvest drives refresh cycles across independent data-source
// collaborators: each source's catalog is scored against the canonical seed
// and the results are persisted through the registry manager. Sources run in
// parallel and fail independently; one broken source never aborts the cycle
// or corrupts registry state for the others.
package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/semharvest/broker"
	"github.com/c360studio/semharvest/registry"
	"github.com/c360studio/semharvest/vocabulary"
)

// Harvestable is the single capability contract implemented by each
// data-source adapter: return the current native-parameter catalog. Adapters
// wrapping capabilities()-style services collapse that shape before reaching
// this interface. Each adapter enforces its own timeout; the orchestrator
// treats a timeout like any other harvest error.
type Harvestable interface {
	Dataset() string
	Harvest(ctx context.Context) ([]vocabulary.NativeParameter, error)
}

// DatasetReport summarizes one dataset's refresh outcome.
type DatasetReport struct {
	Dataset   string `json:"dataset"`
	Harvested int    `json:"harvested"`
	Accepted  int    `json:"accepted"`
	Suggested int    `json:"suggested"`
	Unmapped  int    `json:"unmapped"`
	Conflicts int    `json:"conflicts,omitempty"`
	Rejected  int    `json:"rejected,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RefreshReport is the only output of a refresh cycle. Counts are
// deterministic for deterministic inputs; only timestamps and the run id
// vary between identical runs.
type RefreshReport struct {
	RunID    string                   `json:"run_id"`
	Started  time.Time                `json:"started"`
	Finished time.Time                `json:"finished"`
	Datasets map[string]DatasetReport `json:"datasets"`
}

// Sorted returns the per-dataset reports ordered by dataset name.
func (r *RefreshReport) Sorted() []DatasetReport {
	out := make([]DatasetReport, 0, len(r.Datasets))
	for _, rep := range r.Datasets {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}

// Errored reports whether any dataset failed.
func (r *RefreshReport) Errored() bool {
	for _, rep := range r.Datasets {
		if rep.Error != "" {
			return true
		}
	}
	return false
}

// Config configures an Orchestrator.
type Config struct {
	// Workers bounds the number of sources refreshed concurrently.
	Workers int
	// Thresholds is the acceptance policy applied to every match.
	Thresholds broker.Thresholds
	// AllowOverwrite lets accepted mappings be replaced when a re-harvest
	// disagrees with the stored canonical id. Off by default.
	AllowOverwrite bool
	Logger         *slog.Logger
	// Metrics receives per-dataset counters when non-nil.
	Metrics *Metrics
	// Announcer publishes per-dataset summaries when non-nil.
	Announcer *Announcer
}

// Orchestrator runs refresh cycles.
type Orchestrator struct {
	broker  *broker.Broker
	manager *registry.Manager
	packs   *vocabulary.PackSet
	cfg     Config
}

// New wires an Orchestrator. The broker and manager are required; packs may
// be nil for rule-pack-free matching.
func New(b *broker.Broker, m *registry.Manager, packs *vocabulary.PackSet, cfg Config) (*Orchestrator, error) {
	if b == nil || m == nil {
		return nil, fmt.Errorf("orchestrator requires a broker and a registry manager")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Thresholds == (broker.Thresholds{}) {
		cfg.Thresholds = broker.DefaultThresholds()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{broker: b, manager: m, packs: packs, cfg: cfg}, nil
}

// Refresh drives one cycle across the sources. Per-source failures are
// recorded in the report, never propagated; the returned error covers only
// context cancellation of the cycle itself.
func (o *Orchestrator) Refresh(ctx context.Context, sources []Harvestable) (*RefreshReport, error) {
	report := &RefreshReport{
		RunID:    uuid.New().String(),
		Started:  time.Now().UTC(),
		Datasets: make(map[string]DatasetReport, len(sources)),
	}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(o.cfg.Workers)

	for _, source := range sources {
		source := source
		g.Go(func() error {
			rep := o.refreshOne(ctx, report.RunID, source)
			mu.Lock()
			report.Datasets[rep.Dataset] = rep
			mu.Unlock()

			if o.cfg.Metrics != nil {
				o.cfg.Metrics.observeDataset(rep)
			}
			if o.cfg.Announcer != nil {
				if err := o.cfg.Announcer.Announce(rep); err != nil {
					o.cfg.Logger.Warn("announce refresh result",
						slog.String("dataset", rep.Dataset),
						slog.String("error", err.Error()))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now().UTC()
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.observeRefresh(report.Finished.Sub(report.Started))
	}

	o.cfg.Logger.Info("refresh cycle complete",
		slog.String("run_id", report.RunID),
		slog.Int("datasets", len(report.Datasets)),
		slog.Bool("errored", report.Errored()))

	return report, ctx.Err()
}

// refreshOne harvests, scores, and persists a single dataset. Panics from a
// misbehaving adapter are contained as that dataset's error.
func (o *Orchestrator) refreshOne(ctx context.Context, runID string, source Harvestable) (rep DatasetReport) {
	rep = DatasetReport{Dataset: source.Dataset()}
	defer func() {
		if r := recover(); r != nil {
			rep.Error = fmt.Sprintf("harvest panic: %v", r)
			o.cfg.Logger.Error("harvest source panicked",
				slog.String("dataset", rep.Dataset),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()

	params, err := source.Harvest(ctx)
	if err != nil {
		rep.Error = err.Error()
		o.cfg.Logger.Warn("harvest failed",
			slog.String("dataset", rep.Dataset),
			slog.String("error", err.Error()))
		return rep
	}
	rep.Harvested = len(params)

	candidates := o.manager.Seed()
	var pack *vocabulary.RulePack
	if o.packs != nil {
		pack = o.packs.For(rep.Dataset)
	}

	now := time.Now().UTC()
	mappings := make([]vocabulary.Mapping, 0, len(params))
	for i := range params {
		params[i].Dataset = rep.Dataset
		result := o.broker.Match(params[i], candidates, pack, o.cfg.Thresholds)
		if result.Status == vocabulary.StatusUnmapped {
			rep.Unmapped++
			continue
		}
		mappings = append(mappings, vocabulary.Mapping{
			Dataset:     rep.Dataset,
			NativeID:    params[i].NativeID,
			CanonicalID: result.CanonicalID,
			Confidence:  result.Confidence,
			Breakdown:   result.Breakdown,
			Status:      result.Status,
			Timestamp:   now,
			Provenance: vocabulary.Provenance{
				Source:              vocabulary.ProvenanceAuto,
				RunID:               runID,
				AutoAcceptThreshold: o.cfg.Thresholds.AutoAccept,
			},
		})
	}

	applied, err := o.manager.ApplyHarvestResult(ctx, rep.Dataset, params, mappings, o.cfg.AllowOverwrite)
	if err != nil {
		rep.Error = fmt.Sprintf("apply harvest result: %v", err)
		return rep
	}
	rep.Accepted = applied.Accepted
	rep.Suggested = applied.Suggested
	rep.Conflicts = len(applied.Conflicts)
	rep.Rejected = len(applied.Rejected)
	return rep
}
