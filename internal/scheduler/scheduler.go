package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verdantworks/verdant/internal/alerts"
	"github.com/verdantworks/verdant/internal/analysis"
	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/metrics"
	"github.com/verdantworks/verdant/internal/persistence"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Notifier fans freshly recomputed alert clusters out to subscribers.
// Clusters handed to Publish are fully formed: severity resolved and
// related lists populated.
type Notifier interface {
	Publish(ctx context.Context, clusters []domain.AlertCluster) error
}

// Status is the operational snapshot exposed for visibility.
type Status struct {
	State             State         `json:"state"`
	LastTickTime      time.Time     `json:"last_tick_time"`
	TickCount         int64         `json:"tick_count"`
	ErrorCount        int64         `json:"error_count"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	ActiveUnitCount   int           `json:"active_unit_count"`
}

// Scheduler drives the periodic evaluation of every active unit
// through the analysis stages and turns the results into published
// alert clusters. Errors inside a tick degrade to logging and
// counters; only Stop ends the loop.
type Scheduler struct {
	cfg       config.SchedulerConfig
	alertsCfg config.AlertsConfig
	repo      persistence.Repository
	stages    []analysis.Stage
	clusterer *alerts.Clusterer
	policy    alerts.RepublishPolicy
	notifier  Notifier
	metrics   *metrics.Registry

	mu          sync.Mutex
	state       State
	cancel      context.CancelFunc
	done        chan struct{}
	lastPublish time.Time // cutoff of the last successful publish
	status      Status
}

// New wires a scheduler. Stage order matters: the recommendation
// synthesis stage must come after the stages it consumes.
func New(cfg config.SchedulerConfig, alertsCfg config.AlertsConfig, repo persistence.Repository,
	stages []analysis.Stage, clusterer *alerts.Clusterer, notifier Notifier, reg *metrics.Registry) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		alertsCfg: alertsCfg,
		repo:      repo,
		stages:    stages,
		clusterer: clusterer,
		policy:    alerts.RepublishPolicy{RepublishAcknowledged: alertsCfg.RepublishAcknowledged},
		notifier:  notifier,
		metrics:   reg,
		state:     StateStopped,
	}
}

// Start launches the monitoring loop. Returns an error if already
// running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return fmt.Errorf("scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning
	s.status.State = StateRunning
	if s.metrics != nil {
		s.metrics.SchedulerRunning.Set(1)
	}

	go s.run(loopCtx)

	log.Info().Dur("interval", s.cfg.TickInterval).Int("concurrency", s.cfg.Concurrency).
		Msg("monitoring scheduler started")
	return nil
}

// Stop ends the loop cooperatively: the in-flight tick is abandoned at
// its configured deadline, then the loop exits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.state = StateStopped
	s.status.State = StateStopped
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SchedulerRunning.Set(0)
	}
	log.Info().Msg("monitoring scheduler stopped")
}

// Status returns the current operational snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	// First evaluation fires immediately rather than one interval in.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// RunOnce executes one tick synchronously. Used by tests and the
// one-shot CLI path.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	var tickErrors int64

	units, err := s.repo.ListActiveUnits(ctx)
	if err != nil {
		log.Error().Err(err).Msg("tick aborted: failed to list active units")
		s.recordTick(started, 0, 1)
		return
	}

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	var errMu sync.Mutex

	for _, unit := range units {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.recordTick(started, len(units), tickErrors)
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(unit domain.UnitSnapshot) {
			defer wg.Done()
			defer func() { <-sem }()

			unitCtx, cancel := context.WithTimeout(ctx, s.cfg.TickDeadline)
			defer cancel()

			if n := s.evaluateUnit(unitCtx, unit); n > 0 {
				errMu.Lock()
				tickErrors += n
				errMu.Unlock()
			}
		}(unit)
	}
	wg.Wait()

	// Persistence for this tick is complete before clustering reads
	// the open working set, so clustering sees a consistent snapshot.
	if err := s.publish(ctx); err != nil {
		log.Error().Err(err).Msg("failed to publish alert clusters")
		tickErrors++
	}

	s.recordTick(started, len(units), tickErrors)
}

// evaluateUnit runs every stage for one unit, isolating failures, and
// persists the resulting candidates. Returns the number of errors
// encountered.
func (s *Scheduler) evaluateUnit(ctx context.Context, unit domain.UnitSnapshot) int64 {
	var errorCount int64

	history, err := s.repo.History(ctx, unit.ID, s.cfg.HistoryWindow)
	if err != nil {
		log.Warn().Err(err).Str("unit", unit.ID).Msg("failed to load history, evaluating on current readings only")
		errorCount++
	}

	var accumulated []domain.InsightCandidate
	for _, stage := range s.stages {
		candidates, err := s.runStage(ctx, stage, analysis.Input{
			Unit:    unit,
			History: history,
			Prior:   accumulated,
		})
		if err != nil {
			// Contained: the stage is skipped for this unit and tick,
			// remaining stages still run.
			log.Warn().Err(err).Str("unit", unit.ID).Str("stage", stage.Name()).
				Msg("analysis stage failed")
			if s.metrics != nil {
				s.metrics.StageErrors.WithLabelValues(stage.Name()).Inc()
			}
			errorCount++
			continue
		}
		accumulated = append(accumulated, candidates...)
	}

	for _, candidate := range accumulated {
		if _, err := s.repo.Append(ctx, candidate); err != nil {
			// The candidate is lost for clustering but never silently:
			// the failure is recorded with its identity.
			log.Error().Err(err).Str("unit", candidate.UnitID).Str("type", string(candidate.Type)).
				Str("source_key", candidate.SourceKey).Msg("failed to persist insight")
			if s.metrics != nil {
				s.metrics.PersistFailures.Inc()
			}
			errorCount++
			continue
		}
		if s.metrics != nil {
			s.metrics.InsightsEmitted.WithLabelValues(string(candidate.Type)).Inc()
		}
	}

	if s.metrics != nil {
		s.metrics.UnitsProcessed.Inc()
	}
	return errorCount
}

// runStage bounds one stage by its individual timeout and converts a
// panic into an error so a faulty stage cannot take down the loop.
func (s *Scheduler) runStage(ctx context.Context, stage analysis.Stage, in analysis.Input) (candidates []domain.InsightCandidate, err error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()

	type result struct {
		candidates []domain.InsightCandidate
		err        error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		out, evalErr := stage.Evaluate(stageCtx, in)
		ch <- result{candidates: out, err: evalErr}
	}()

	select {
	case res := <-ch:
		return res.candidates, res.err
	case <-stageCtx.Done():
		if s.metrics != nil {
			s.metrics.StageTimeouts.WithLabelValues(stage.Name()).Inc()
		}
		return nil, fmt.Errorf("stage %s timed out: %w", stage.Name(), stageCtx.Err())
	}
}

// publish recomputes clusters over the open insight working set and
// hands the fresh ones to the notification channel.
func (s *Scheduler) publish(ctx context.Context) error {
	// Everything persisted this tick predates the cutoff, so after a
	// successful publish those clusters count as already seen.
	cutoff := time.Now()

	open, err := s.repo.Open(ctx, s.cfg.HistoryWindow)
	if err != nil {
		return fmt.Errorf("failed to load open insights: %w", err)
	}

	clusters := s.clusterer.Recompute(open)

	s.mu.Lock()
	lastPublish := s.lastPublish
	s.mu.Unlock()

	fresh := s.policy.Filter(clusters, lastPublish)
	if len(fresh) > 0 {
		if err := s.notifier.Publish(ctx, fresh); err != nil {
			// Cutoff stays put so these clusters retry next tick.
			return fmt.Errorf("notification channel rejected clusters: %w", err)
		}
		if s.metrics != nil {
			s.metrics.ClustersPublished.Add(float64(len(fresh)))
		}
		log.Info().Int("clusters", len(fresh)).Int("open_insights", len(open)).
			Msg("alert clusters published")
	}

	s.mu.Lock()
	s.lastPublish = cutoff
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) recordTick(started time.Time, unitCount int, errorCount int64) {
	duration := time.Since(started)

	s.mu.Lock()
	s.status.LastTickTime = started
	s.status.TickCount++
	s.status.ErrorCount += errorCount
	s.status.LastCycleDuration = duration
	s.status.ActiveUnitCount = unitCount
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
		s.metrics.TickDuration.Observe(duration.Seconds())
		s.metrics.TickErrors.Add(float64(errorCount))
		s.metrics.ActiveUnits.Set(float64(unitCount))
	}

	log.Debug().Dur("duration", duration).Int("units", unitCount).
		Int64("errors", errorCount).Msg("tick complete")
}
