package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantworks/verdant/internal/alerts"
	"github.com/verdantworks/verdant/internal/analysis"
	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/persistence"
)

// fakeStage scripts behavior per unit id.
type fakeStage struct {
	name      string
	mu        sync.Mutex
	evaluated []string // unit ids seen, in order
	failFor   map[string]bool
	hangFor   map[string]bool
	emit      func(unit domain.UnitSnapshot, prior []domain.InsightCandidate) []domain.InsightCandidate
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Evaluate(ctx context.Context, in analysis.Input) ([]domain.InsightCandidate, error) {
	f.mu.Lock()
	f.evaluated = append(f.evaluated, in.Unit.ID)
	f.mu.Unlock()

	if f.hangFor[in.Unit.ID] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failFor[in.Unit.ID] {
		return nil, errors.New("scripted failure")
	}
	if f.emit != nil {
		return f.emit(in.Unit, in.Prior), nil
	}
	return nil, nil
}

func (f *fakeStage) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.evaluated))
	copy(out, f.evaluated)
	return out
}

type fakeNotifier struct {
	mu        sync.Mutex
	published [][]domain.AlertCluster
	err       error
}

func (f *fakeNotifier) Publish(ctx context.Context, clusters []domain.AlertCluster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, clusters)
	return nil
}

func (f *fakeNotifier) batches() [][]domain.AlertCluster {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]domain.AlertCluster(nil), f.published...)
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		TickInterval:  time.Hour, // ticks driven manually via RunOnce
		TickDeadline:  2 * time.Second,
		StageTimeout:  200 * time.Millisecond,
		Concurrency:   4,
		HistoryWindow: 24 * time.Hour,
	}
}

func newTestScheduler(repo persistence.Repository, stages []analysis.Stage, notifier Notifier) *Scheduler {
	return New(
		testSchedulerConfig(),
		config.AlertsConfig{ClusterWindow: 5 * time.Minute, MaxVisible: 10},
		repo, stages,
		alerts.NewClusterer(5*time.Minute, 10),
		notifier, nil,
	)
}

func seedUnits(repo *persistence.MemoryRepo, ids ...string) {
	for _, id := range ids {
		repo.PutUnit(domain.UnitSnapshot{
			ID: id, PlantType: "tomato", GrowthStage: "vegetative",
			Readings: map[domain.Factor]float64{domain.FactorTemperature: 23},
		})
	}
}

func TestFailureInUnitAIsolatedFromUnitB(t *testing.T) {
	repo := persistence.NewMemoryRepo()
	seedUnits(repo, "unit-a", "unit-b")

	failing := &fakeStage{name: "risk", failFor: map[string]bool{"unit-a": true}}
	following := &fakeStage{name: "stress", emit: func(unit domain.UnitSnapshot, _ []domain.InsightCandidate) []domain.InsightCandidate {
		return []domain.InsightCandidate{{
			UnitID: unit.ID, Type: domain.InsightStress,
			Severity: domain.SeverityWarning, SourceKey: unit.ID + ":stress",
		}}
	}}

	s := newTestScheduler(repo, []analysis.Stage{failing, following}, &fakeNotifier{})
	s.RunOnce(context.Background())

	assert.ElementsMatch(t, []string{"unit-a", "unit-b"}, failing.seen())
	assert.ElementsMatch(t, []string{"unit-a", "unit-b"}, following.seen(),
		"a stage failure must not skip later stages or other units")

	stored, err := repo.Query(context.Background(), persistence.InsightFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 2, "both units' stress insights persisted")

	status := s.Status()
	assert.Equal(t, int64(1), status.TickCount)
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Equal(t, 2, status.ActiveUnitCount)
}

func TestStageTimeoutIsContained(t *testing.T) {
	repo := persistence.NewMemoryRepo()
	seedUnits(repo, "unit-a")

	hanging := &fakeStage{name: "risk", hangFor: map[string]bool{"unit-a": true}}
	following := &fakeStage{name: "stress"}

	s := newTestScheduler(repo, []analysis.Stage{hanging, following}, &fakeNotifier{})
	s.RunOnce(context.Background())

	assert.Equal(t, []string{"unit-a"}, following.seen(), "timeout must not abort the unit")
	assert.Equal(t, int64(1), s.Status().ErrorCount)
}

func TestLaterStageSeesPriorCandidates(t *testing.T) {
	repo := persistence.NewMemoryRepo()
	seedUnits(repo, "unit-a")

	first := &fakeStage{name: "stress", emit: func(unit domain.UnitSnapshot, _ []domain.InsightCandidate) []domain.InsightCandidate {
		return []domain.InsightCandidate{{
			UnitID: unit.ID, Type: domain.InsightStress,
			Severity: domain.SeverityCritical, SourceKey: unit.ID + ":stress",
		}}
	}}

	var sawPrior []domain.InsightCandidate
	second := &fakeStage{name: "recommendation", emit: func(_ domain.UnitSnapshot, prior []domain.InsightCandidate) []domain.InsightCandidate {
		sawPrior = prior
		return nil
	}}

	s := newTestScheduler(repo, []analysis.Stage{first, second}, &fakeNotifier{})
	s.RunOnce(context.Background())

	require.Len(t, sawPrior, 1)
	assert.Equal(t, domain.InsightStress, sawPrior[0].Type)
}

func TestPublishOnlyClustersWithFreshPrimary(t *testing.T) {
	repo := persistence.NewMemoryRepo()
	seedUnits(repo, "unit-a")

	emitOnFirst := true
	stage := &fakeStage{name: "stress", emit: func(unit domain.UnitSnapshot, _ []domain.InsightCandidate) []domain.InsightCandidate {
		if !emitOnFirst {
			return nil
		}
		return []domain.InsightCandidate{{
			UnitID: unit.ID, Type: domain.InsightStress,
			Severity: domain.SeverityWarning, SourceKey: unit.ID + ":stress",
			Timestamp: time.Now(),
		}}
	}}

	notifier := &fakeNotifier{}
	s := newTestScheduler(repo, []analysis.Stage{stage}, notifier)

	s.RunOnce(context.Background())
	require.Len(t, notifier.batches(), 1, "first tick publishes the new cluster")

	emitOnFirst = false
	s.RunOnce(context.Background())
	assert.Len(t, notifier.batches(), 1,
		"unchanged insight set must not be republished")
}

func TestAcknowledgedInsightLeavesClustering(t *testing.T) {
	repo := persistence.NewMemoryRepo()
	seedUnits(repo, "unit-a")

	stage := &fakeStage{name: "stress", emit: func(unit domain.UnitSnapshot, _ []domain.InsightCandidate) []domain.InsightCandidate {
		return []domain.InsightCandidate{{
			UnitID: unit.ID, Type: domain.InsightStress,
			Severity: domain.SeverityWarning, SourceKey: unit.ID + ":stress",
			Timestamp: time.Now(),
		}}
	}}

	notifier := &fakeNotifier{}
	s := newTestScheduler(repo, []analysis.Stage{stage}, notifier)
	s.RunOnce(context.Background())

	open, err := repo.Open(context.Background(), time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, open)
	for _, insight := range open {
		require.NoError(t, repo.Acknowledge(context.Background(), insight.ID, "op"))
	}

	batches := notifier.batches()
	s.RunOnce(context.Background()) // emits a new insight, clusters again
	require.Greater(t, len(notifier.batches()), len(batches))
	for _, cluster := range notifier.batches()[len(batches)] {
		assert.False(t, cluster.Primary.Acknowledged)
		for _, related := range cluster.Related {
			assert.False(t, related.Acknowledged)
		}
	}
}

func TestStartStopStateMachine(t *testing.T) {
	repo := persistence.NewMemoryRepo()
	s := newTestScheduler(repo, nil, &fakeNotifier{})

	assert.Equal(t, StateStopped, s.Status().State)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.Status().State)
	assert.Error(t, s.Start(context.Background()), "double start rejected")

	require.Eventually(t, func() bool {
		return s.Status().TickCount >= 1
	}, time.Second, 5*time.Millisecond, "startup tick fires without waiting an interval")

	s.Stop()
	assert.Equal(t, StateStopped, s.Status().State)

	s.Stop() // idempotent
	assert.Equal(t, StateStopped, s.Status().State)
}

func TestNotifierFailureDoesNotStopLoop(t *testing.T) {
	repo := persistence.NewMemoryRepo()
	seedUnits(repo, "unit-a")

	stage := &fakeStage{name: "stress", emit: func(unit domain.UnitSnapshot, _ []domain.InsightCandidate) []domain.InsightCandidate {
		return []domain.InsightCandidate{{
			UnitID: unit.ID, Type: domain.InsightStress,
			Severity: domain.SeverityWarning, SourceKey: unit.ID + ":stress",
			Timestamp: time.Now(),
		}}
	}}

	s := newTestScheduler(repo, []analysis.Stage{stage}, &fakeNotifier{err: errors.New("channel closed")})
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	status := s.Status()
	assert.Equal(t, int64(2), status.TickCount, "publish failures never end the loop")
	assert.GreaterOrEqual(t, status.ErrorCount, int64(2))
}
