// Package monitor ties collection, delta classification, rule evaluation
// and persistence together into the collection cycle.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dbmon/internal/collector"
	"dbmon/internal/config"
	"dbmon/internal/delta"
	"dbmon/internal/elasticsearch"
	"dbmon/internal/event"
	"dbmon/internal/explain"
	"dbmon/internal/logger"
	"dbmon/internal/models"
	"dbmon/internal/rules"
)

// CycleResult summarizes one collection run.
type CycleResult struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	DurationMS      int64     `json:"duration_ms"`
	EventsCollected int       `json:"events_collected"`
	EventsIndexed   int       `json:"events_indexed"`
	AlertsRaised    int       `json:"alerts_raised"`
}

// Service runs the collection cycle and answers the queries behind the API:
// collect a batch, persist it, evaluate alert rules, and classify fresh
// samples against the previous persisted snapshot.
type Service struct {
	cfg       *config.Config
	es        *elasticsearch.Client
	sql       *collector.SQLCollector
	replay    *collector.ReplayCollector
	explainer *explain.Engine
	engine    *rules.Engine

	mu      sync.RWMutex
	ruleSet []models.Rule
}

func NewService(cfg *config.Config, es *elasticsearch.Client) (*Service, error) {
	norm := &event.Normalizer{
		Host:     cfg.Collector.HostName,
		Instance: cfg.Collector.SQLInstance,
	}

	explainer := explain.NewEngine(explain.Config{
		Enabled: cfg.AI.Enabled,
		URL:     cfg.AI.URL,
		Model:   cfg.AI.Model,
		Timeout: time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})

	s := &Service{
		cfg:       cfg,
		es:        es,
		explainer: explainer,
		engine:    rules.NewEngine(explainer),
	}

	switch cfg.Collector.Mode {
	case config.ModeLive:
		sqlCollector, err := collector.NewSQLCollector(cfg.Collector.ConnectionString, norm)
		if err != nil {
			return nil, err
		}
		s.sql = sqlCollector
	case config.ModeMock:
		s.replay = collector.NewReplayCollector(cfg.Collector.SamplePath, norm)
	default:
		return nil, fmt.Errorf("unknown collector mode: %s", cfg.Collector.Mode)
	}

	if err := s.ReloadRules(); err != nil {
		logger.Warn("Alert rules not loaded, alerting disabled",
			zap.String("path", cfg.Alerting.RulesPath),
			zap.Error(err),
		)
	}

	return s, nil
}

func (s *Service) Close() error {
	if s.sql != nil {
		return s.sql.Close()
	}
	return nil
}

// ReloadRules re-reads the rule file, replacing the active set atomically.
func (s *Service) ReloadRules() error {
	ruleSet, err := rules.Load(s.cfg.Alerting.RulesPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ruleSet = ruleSet
	s.mu.Unlock()
	logger.Info("Alert rules loaded",
		zap.String("path", s.cfg.Alerting.RulesPath),
		zap.Int("count", len(ruleSet)),
	)
	return nil
}

// Rules returns a copy of the active rule set.
func (s *Service) Rules() []models.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Rule, len(s.ruleSet))
	copy(out, s.ruleSet)
	return out
}

// RunCycle executes one full collection run: sample every event type, index
// the batch in chunks, evaluate alert rules and index any alerts raised.
func (s *Service) RunCycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	log := logger.GetLogger().With(zap.String("run_id", result.RunID))
	log.Info("Collection cycle started", zap.String("mode", s.cfg.Collector.Mode))

	events, err := s.collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collection failed: %w", err)
	}
	result.EventsCollected = len(events)

	for _, chunk := range collector.Chunk(events, s.cfg.Collector.ChunkSize) {
		if err := s.es.IndexEvents(ctx, chunk); err != nil {
			return nil, fmt.Errorf("failed to index events: %w", err)
		}
		result.EventsIndexed += len(chunk)
	}

	alerts := s.engine.Evaluate(ctx, events, s.Rules())
	result.AlertsRaised = len(alerts)
	if len(alerts) > 0 {
		if err := s.es.IndexAlerts(ctx, alerts); err != nil {
			return nil, fmt.Errorf("failed to index alerts: %w", err)
		}
	}

	result.DurationMS = time.Since(result.StartedAt).Milliseconds()
	log.Info("Collection cycle finished",
		zap.Int("events", result.EventsCollected),
		zap.Int("alerts", result.AlertsRaised),
		zap.Int64("duration_ms", result.DurationMS),
	)
	return result, nil
}

func (s *Service) collect(ctx context.Context) ([]models.Event, error) {
	if s.sql != nil {
		return s.sql.Collect(ctx)
	}
	return s.replay.Collect()
}

// Start runs collection cycles on the configured interval until the context
// is cancelled. A zero interval disables the scheduler.
func (s *Service) Start(ctx context.Context) {
	interval := time.Duration(s.cfg.Collector.IntervalSeconds) * time.Second
	if interval <= 0 {
		logger.Info("Periodic collection disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logger.Info("Periodic collection started", zap.Duration("interval", interval))

		for {
			select {
			case <-ctx.Done():
				logger.Info("Periodic collection stopped")
				return
			case <-ticker.C:
				if _, err := s.RunCycle(ctx); err != nil {
					logger.Error("Collection cycle failed", zap.Error(err))
				}
			}
		}
	}()
}

// DeltaView classifies the current state of one event type against the
// previous snapshot. In live mode the current batch is sampled fresh and
// compared against the latest persisted documents; in mock mode both sides
// come from the store, split by recency. Live-only event types skip
// comparison entirely.
func (s *Service) DeltaView(ctx context.Context, eventType string) (delta.Result, error) {
	if delta.LiveOnly(eventType) {
		current, err := s.currentEvents(ctx, eventType)
		if err != nil {
			return delta.Result{}, err
		}
		return delta.Passthrough(current), nil
	}

	current, err := s.currentEvents(ctx, eventType)
	if err != nil {
		return delta.Result{}, err
	}

	previous, err := s.previousSnapshot(ctx, eventType)
	if err != nil {
		return delta.Result{}, err
	}

	return delta.Classify(current, previous, delta.SensitiveFields(eventType)), nil
}

func (s *Service) currentEvents(ctx context.Context, eventType string) ([]models.Event, error) {
	if s.sql != nil {
		return s.sql.CollectType(ctx, eventType)
	}
	events, _, err := s.es.SearchEvents(ctx, elasticsearch.Query{
		EventType: eventType,
		Start:     "now-2m",
		End:       "now",
		Size:      100,
	})
	return events, err
}

func (s *Service) previousSnapshot(ctx context.Context, eventType string) (map[string]models.Event, error) {
	if s.sql != nil {
		return s.es.LatestSnapshot(ctx, eventType)
	}
	// Mock mode: the window just before the current one stands in for the
	// previous cycle.
	events, _, err := s.es.SearchEvents(ctx, elasticsearch.Query{
		EventType: eventType,
		Start:     "now-1h",
		End:       "now-2m",
		Size:      100,
	})
	if err != nil {
		return nil, err
	}
	return snapshotOf(events), nil
}

// snapshotOf groups events by identity key, first occurrence wins. Input is
// expected newest first; keyless events cannot be compared and are dropped.
func snapshotOf(events []models.Event) map[string]models.Event {
	snapshot := make(map[string]models.Event, len(events))
	for _, ev := range events {
		key, ok := event.Key(ev.EventType, ev.Payload)
		if !ok {
			continue
		}
		if _, seen := snapshot[key]; !seen {
			snapshot[key] = ev
		}
	}
	return snapshot
}

// LiveEvents returns the current batch for one event type without delta
// classification.
func (s *Service) LiveEvents(ctx context.Context, eventType string) ([]models.Event, error) {
	return s.currentEvents(ctx, eventType)
}

// Explain resolves an explanation for one event, reporting which strategy
// produced it.
func (s *Service) Explain(ctx context.Context, ev models.Event) (models.Explanation, explain.Source) {
	return s.explainer.Resolve(ctx, ev)
}

// KillSession terminates a SQL Server session. Only available in live mode.
func (s *Service) KillSession(ctx context.Context, sessionID int) error {
	if s.sql == nil {
		return fmt.Errorf("kill-session requires live mode")
	}
	return s.sql.KillSession(ctx, sessionID)
}

// Store exposes the persistence client for read-side handlers.
func (s *Service) Store() *elasticsearch.Client { return s.es }

// Mode reports the configured collector mode.
func (s *Service) Mode() string { return s.cfg.Collector.Mode }

// CheckSQL pings the live instance; a no-op in mock mode.
func (s *Service) CheckSQL(ctx context.Context) error {
	if s.sql == nil {
		return nil
	}
	return s.sql.TestConnection(ctx)
}
