package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdantworks/verdant/internal/domain"
)

// MemoryRepo is an in-process Repository used by tests and the
// --memory development mode. All reads return copies so callers get
// consistent snapshots regardless of concurrent appends.
type MemoryRepo struct {
	mu       sync.RWMutex
	units    []domain.UnitSnapshot
	history  map[string]domain.ReadingSeries
	insights []domain.Insight
}

// NewMemoryRepo creates an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{history: make(map[string]domain.ReadingSeries)}
}

// PutUnit registers or replaces a unit snapshot.
func (m *MemoryRepo) PutUnit(unit domain.UnitSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.units {
		if existing.ID == unit.ID {
			m.units[i] = unit
			return
		}
	}
	m.units = append(m.units, unit)
}

// AddReading appends a reading to a unit's history.
func (m *MemoryRepo) AddReading(unitID string, reading domain.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[unitID] = append(m.history[unitID], reading)
}

func (m *MemoryRepo) ListActiveUnits(ctx context.Context) ([]domain.UnitSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.UnitSnapshot, len(m.units))
	copy(out, m.units)
	return out, nil
}

func (m *MemoryRepo) History(ctx context.Context, unitID string, window time.Duration) (domain.ReadingSeries, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	var out domain.ReadingSeries
	for _, reading := range m.history[unitID] {
		if reading.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, reading)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryRepo) Append(ctx context.Context, candidate domain.InsightCandidate) (domain.Insight, error) {
	insight := domain.Insight{
		ID:        uuid.NewString(),
		UnitID:    candidate.UnitID,
		Type:      candidate.Type,
		Severity:  candidate.Severity,
		SourceKey: candidate.SourceKey,
		Timestamp: candidate.Timestamp,
		Payload:   candidate.Payload,
	}
	if insight.Timestamp.IsZero() {
		insight.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.insights = append(m.insights, insight)
	m.mu.Unlock()
	return insight, nil
}

func (m *MemoryRepo) Query(ctx context.Context, filter InsightFilter) ([]domain.Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Insight
	for _, insight := range m.insights {
		if filter.UnitID != "" && insight.UnitID != filter.UnitID {
			continue
		}
		if filter.Type != "" && insight.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && insight.Severity != filter.Severity {
			continue
		}
		if !filter.Range.Contains(insight.Timestamp) {
			continue
		}
		if filter.Acknowledged != nil && insight.Acknowledged != *filter.Acknowledged {
			continue
		}
		out = append(out, insight)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryRepo) Open(ctx context.Context, window time.Duration) ([]domain.Insight, error) {
	acked := false
	return m.Query(ctx, InsightFilter{
		Range:        domain.TimeRange{From: time.Now().Add(-window)},
		Acknowledged: &acked,
	})
}

func (m *MemoryRepo) Acknowledge(ctx context.Context, insightID, actorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.insights {
		if m.insights[i].ID == insightID {
			m.insights[i].Acknowledged = true
			return nil
		}
	}
	return ErrNotFound
}
