package main

import (
	"fmt"
	"log/slog"

	"github.com/c360studio/semharvest/broker"
	"github.com/c360studio/semharvest/config"
	"github.com/c360studio/semharvest/harvest"
	"github.com/c360studio/semharvest/registry"
	"github.com/c360studio/semharvest/units"
	"github.com/c360studio/semharvest/vocabulary"
)

// App wires the registry manager, matcher, and orchestrator from config.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	manager      *registry.Manager
	packs        *vocabulary.PackSet
	orchestrator *harvest.Orchestrator
	metrics      *harvest.Metrics
	announcer    *harvest.Announcer
}

// NewApp builds the application from a validated config.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	manager, err := registry.Open(cfg.Registry.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}

	normalizer, err := units.New(units.Config{AliasFile: cfg.Units.Aliases})
	if err != nil {
		return nil, fmt.Errorf("initialize units: %w", err)
	}

	packs, err := vocabulary.LoadPacks(cfg.Harvest.RulePacks, logger)
	if err != nil {
		return nil, fmt.Errorf("load rule packs: %w", err)
	}

	app := &App{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		packs:   packs,
		metrics: harvest.NewMetrics(),
	}

	if cfg.NATS.URL != "" {
		announcer, err := harvest.NewAnnouncer(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			return nil, fmt.Errorf("connect announcer: %w", err)
		}
		app.announcer = announcer
	}

	app.orchestrator, err = harvest.New(
		broker.New(broker.Config{Units: normalizer}),
		manager,
		packs,
		harvest.Config{
			Workers:        cfg.Harvest.Workers,
			Thresholds:     broker.Thresholds{AutoAccept: cfg.Match.AutoAccept, Suggest: cfg.Match.Suggest},
			AllowOverwrite: cfg.Harvest.AllowOverwrite,
			Logger:         logger,
			Metrics:        app.metrics,
			Announcer:      app.announcer,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return app, nil
}

// Sources discovers the catalog-backed harvest sources from config.
func (a *App) Sources() ([]harvest.Harvestable, error) {
	sources, err := harvest.DiscoverCatalogs(a.cfg.Harvest.Catalogs)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no catalogs match %q", a.cfg.Harvest.Catalogs)
	}
	return sources, nil
}

// Close releases external connections.
func (a *App) Close() {
	if a.announcer != nil {
		a.announcer.Close()
	}
}
