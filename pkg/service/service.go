// Package service runs the optimization loop: each interval it snapshots
// live plant data, executes the strategy, checks the recommendations against
// the guardrails, and persists the accepted result set. It also hosts the
// strategy hot-reload watcher and the read-only API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/optikiln/optikiln/pkg/api"
	"github.com/optikiln/optikiln/pkg/artifacts"
	"github.com/optikiln/optikiln/pkg/config"
	"github.com/optikiln/optikiln/pkg/policy"
	"github.com/optikiln/optikiln/pkg/stores"
	"github.com/optikiln/optikiln/pkg/strategy"
	"github.com/optikiln/optikiln/pkg/telemetry"
)

// cacheStatsEvery is how many cycles pass between artifact cache stat dumps.
const cacheStatsEvery = 10

// DataSource supplies the newest plant values for a set of variables.
type DataSource interface {
	Latest(ctx context.Context, ids []string, since time.Time) (map[string]float64, error)
}

// ResultSink persists accepted recommendation sets.
type ResultSink interface {
	SaveRecommendations(ctx context.Context, recs []stores.Recommendation) error
	SetLastRun(ctx context.Context, at time.Time) error
}

// Service owns the optimization loop and its collaborators.
type Service struct {
	cfg    *config.ServiceConfig
	tel    *telemetry.Telemetry
	logger zerolog.Logger
	runID  string

	store     *stores.SQLiteStore
	data      DataSource
	results   ResultSink
	artifacts artifacts.Store
	cache     *artifacts.CachedStore
	policies  *policy.Engine
	parser    *config.StrategyParser

	mu    sync.RWMutex
	strat *strategy.Strategy

	cycle uint64
}

// New wires a service from configuration: database, artifact store chain,
// guardrails, and the initial strategy build.
func New(ctx context.Context, cfg *config.ServiceConfig, tel *telemetry.Telemetry) (*Service, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.DatabasePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Each process gets a run id so overlapping log streams from restarts
	// stay distinguishable.
	s := &Service{
		cfg:     cfg,
		tel:     tel,
		runID:   uuid.NewString(),
		store:   store,
		data:    store,
		results: store,
	}
	s.logger = tel.Logger.With().Str("component", "service").Str("run_id", s.runID).Logger()

	s.artifacts, s.cache, err = BuildArtifactStore(cfg.Artifacts, tel.Logger)
	if err != nil {
		return nil, fmt.Errorf("build artifact store: %w", err)
	}

	if cfg.Guardrails.Enabled {
		s.policies, err = policy.NewEngine(tel.Logger)
		if err != nil {
			return nil, fmt.Errorf("build policy engine: %w", err)
		}
		if cfg.Guardrails.PolicyDir != "" {
			if err := s.policies.LoadDir(cfg.Guardrails.PolicyDir); err != nil {
				return nil, fmt.Errorf("load operator policies: %w", err)
			}
		}
	}

	s.parser, err = config.NewStrategyParser()
	if err != nil {
		return nil, err
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildArtifactStore assembles the configured backend with its decorators.
// The cache sits outermost so invalidations reach it first; the returned
// CachedStore is nil when caching is disabled.
func BuildArtifactStore(cfg config.ArtifactsConfig, logger zerolog.Logger) (artifacts.Store, *artifacts.CachedStore, error) {
	var store artifacts.Store
	var err error
	switch cfg.Backend {
	case "sftp":
		store, err = artifacts.NewSFTPStore(cfg.SFTP, logger)
	default:
		store, err = artifacts.NewFSStore(cfg.Root, logger)
	}
	if err != nil {
		return nil, nil, err
	}
	if cfg.Breaker {
		store = artifacts.NewBreakerStore(store, logger)
	}
	if cfg.CacheSize > 0 {
		cached, err := artifacts.NewCachedStore(store, cfg.CacheSize, logger)
		if err != nil {
			return nil, nil, err
		}
		return cached, cached, nil
	}
	return store, nil, nil
}

// reload parses the strategy document and swaps in a freshly built strategy.
func (s *Service) reload(ctx context.Context) error {
	cfg, err := s.parser.ParseFile(s.cfg.StrategyPath)
	if err != nil {
		return err
	}
	strat, err := strategy.New(ctx, *cfg, strategy.Deps{
		Artifacts: s.artifacts,
		Logger:    s.tel.Logger,
		Metrics:   s.tel.Metrics,
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.strat = strat
	s.mu.Unlock()
	return nil
}

func (s *Service) current() *strategy.Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strat
}

// StrategyPath returns the configured strategy document path.
func (s *Service) StrategyPath() string { return s.cfg.StrategyPath }

// Optimizable returns the loaded strategy's optimizable variable ids.
func (s *Service) Optimizable() []string { return s.current().Optimizable() }

// Store returns the persistence layer, for the API.
func (s *Service) Store() *stores.SQLiteStore { return s.store }

// Close releases the service's resources.
func (s *Service) Close() error { return s.store.Close() }

// Run executes the cycle loop, the strategy watcher, and the API until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runLoop(ctx) })
	g.Go(func() error { return s.runWatcher(ctx) })

	if s.cfg.API.Enabled {
		server := api.New(
			s.cfg.API.Listen,
			s.store,
			s.tel.Cycles,
			s.tel.Metrics.Handler(),
			func() (string, []string) { return s.StrategyPath(), s.Optimizable() },
			s.tel.Logger,
		)
		g.Go(func() error { return server.Run(ctx) })
	}
	return g.Wait()
}

// runLoop runs one cycle per interval. Missing plant data and guardrail
// blocks skip the cycle; only unrecoverable setup problems stop the loop.
func (s *Service) runLoop(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.cfg.CycleInterval.Std()).Msg("cycle loop started")
	ticker := time.NewTicker(s.cfg.CycleInterval.Std())
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runWatcher rebuilds the strategy when its document changes on disk. A
// broken document keeps the previous strategy running.
func (s *Service) runWatcher(ctx context.Context) error {
	watcher, err := config.NewWatcher(s.cfg.StrategyPath, s.tel.Logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(ctx) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-watcher.Changes():
				if err := s.reload(ctx); err != nil {
					s.logger.Error().Err(err).Msg("strategy reload failed, keeping previous strategy")
					continue
				}
				s.logger.Info().Msg("strategy reloaded")
			}
		}
	})
	return g.Wait()
}

// RunOnce executes a single optimization cycle end to end.
func (s *Service) RunOnce(ctx context.Context) (*Report, error) {
	s.cycle++
	cycle := s.cycle
	started := time.Now()

	ctx, span := s.tel.Tracer.StartCycle(ctx, cycle)
	defer span.End()

	report, err := s.runCycle(ctx, cycle, started)
	duration := time.Since(started)

	record := telemetry.CycleRecord{
		Number:    cycle,
		StartedAt: started,
		Duration:  duration,
		Status:    "success",
	}
	switch {
	case err != nil && strategy.IsInput(err):
		record.Status = "skipped"
		record.Error = err.Error()
		s.logger.Warn().Strs("missing", strategy.MissingVariables(err)).
			Uint64("cycle", cycle).Msg("cycle skipped, live data incomplete")
	case err != nil:
		record.Status = "error"
		record.Error = err.Error()
		s.logger.Error().Err(err).Uint64("cycle", cycle).Msg("cycle failed")
	case report.Blocked:
		record.Status = "blocked"
		record.Recommendations = len(report.Recommendations)
		s.logger.Warn().Uint64("cycle", cycle).
			Int("violations", len(report.Violations)).Msg("recommendations blocked by guardrails")
	default:
		record.Recommendations = len(report.Recommendations)
		s.logger.Info().Uint64("cycle", cycle).Dur("duration", duration).
			Int("recommendations", len(report.Recommendations)).Msg("cycle completed")
	}
	s.tel.Cycles.Add(record)

	if s.cache != nil && cycle%cacheStatsEvery == 0 {
		stats := s.cache.Stats()
		s.tel.Metrics.ArtifactCacheStats(stats.Hits, stats.Misses)
		s.logger.Info().Uint64("hits", stats.Hits).Uint64("misses", stats.Misses).
			Int("entries", stats.Entries).Msg("artifact cache stats")
	}

	if report != nil {
		report.Duration = duration
	}
	return report, err
}

func (s *Service) runCycle(ctx context.Context, cycle uint64, started time.Time) (*Report, error) {
	strat := s.current()

	since := time.Time{}
	if s.cfg.DataWindow.Std() > 0 {
		since = started.Add(-s.cfg.DataWindow.Std())
	}
	data, err := s.data.Latest(ctx, strat.RequiredInputs(), since)
	if err != nil {
		return nil, strategy.NewCollaboratorError("plant data source unavailable", err)
	}

	dc, err := strat.RunCycle(ctx, data)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Cycle:           cycle,
		Recommendations: buildRecommendations(dc, strat.Optimizable(), cycle, started),
	}

	if violations := nonFiniteViolations(report.Recommendations); len(violations) > 0 {
		report.Violations = violations
		report.Blocked = true
		s.tel.Metrics.GuardrailViolation()
		return report, nil
	}

	if s.policies != nil && len(report.Recommendations) > 0 {
		result, err := s.policies.Evaluate(ctx, policyInput(dc, report.Recommendations, cycle))
		if err != nil {
			return nil, strategy.NewCollaboratorError("guardrail evaluation failed", err)
		}
		report.Violations = result.Violations
		if !result.Allowed {
			report.Blocked = true
			s.tel.Metrics.GuardrailViolation()
			return report, nil
		}
	}

	if err := s.results.SaveRecommendations(ctx, report.Recommendations); err != nil {
		return nil, strategy.NewCollaboratorError("persist recommendations", err)
	}
	if err := s.results.SetLastRun(ctx, started); err != nil {
		return nil, strategy.NewCollaboratorError("persist last run", err)
	}
	s.tel.Metrics.RecommendationsPersisted()
	return report, nil
}
