package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/verdantworks/verdant/internal/domain"
)

// Clusterer groups open insights into the delivery-ready alert feed.
// Clusters are rebuilt from scratch on every call: no incremental
// state survives between recomputes, which keeps the algorithm correct
// under acknowledgment between ticks at the cost of O(n²) comparisons
// over the low hundreds of open insights expected per tick.
type Clusterer struct {
	// Window is the maximum timestamp distance (inclusive) between an
	// insight and a cluster primary for them to be related.
	Window time.Duration
	// MaxVisible caps the number of clusters formed per recompute.
	// Insights left unassigned stay in the store and are reconsidered
	// next time.
	MaxVisible int
}

// NewClusterer creates a clusterer with the given window and cap.
func NewClusterer(window time.Duration, maxVisible int) *Clusterer {
	return &Clusterer{Window: window, MaxVisible: maxVisible}
}

// Recompute sorts the insights by (severity rank asc, timestamp desc)
// and greedily forms clusters: each unassigned insight in turn becomes
// a primary and absorbs every remaining unassigned insight sharing its
// source key within the window. Every insight lands in at most one
// cluster; the result is deterministic for a given input set.
func (c *Clusterer) Recompute(insights []domain.Insight) []domain.AlertCluster {
	sorted := make([]domain.Insight, len(insights))
	copy(sorted, insights)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Severity.Rank(), sorted[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	assigned := make(map[string]bool, len(sorted))
	var clusters []domain.AlertCluster

	for i, primary := range sorted {
		if len(clusters) >= c.MaxVisible {
			break
		}
		if assigned[primary.ID] {
			continue
		}
		assigned[primary.ID] = true

		cluster := domain.AlertCluster{
			ID:          fmt.Sprintf("%s/%d", primary.ID, primary.Timestamp.Unix()),
			Primary:     primary,
			Severity:    primary.Severity,
			SourceKey:   primary.SourceKey,
			WindowStart: primary.Timestamp,
		}

		for _, candidate := range sorted[i+1:] {
			if assigned[candidate.ID] {
				continue
			}
			if !c.related(primary, candidate) {
				continue
			}
			assigned[candidate.ID] = true
			cluster.Related = append(cluster.Related, candidate)
			cluster.Severity = domain.MostSevere(cluster.Severity, candidate.Severity)
			if candidate.Timestamp.Before(cluster.WindowStart) {
				cluster.WindowStart = candidate.Timestamp
			}
		}

		clusters = append(clusters, cluster)
	}

	return clusters
}

// related applies the grouping rule: same source key and timestamps no
// further apart than the window, boundary inclusive.
func (c *Clusterer) related(a, b domain.Insight) bool {
	if a.SourceKey != b.SourceKey {
		return false
	}
	delta := a.Timestamp.Sub(b.Timestamp)
	if delta < 0 {
		delta = -delta
	}
	return delta <= c.Window
}
