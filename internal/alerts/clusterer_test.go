package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantworks/verdant/internal/domain"
)

func insight(id, source string, severity domain.Severity, ts time.Time) domain.Insight {
	return domain.Insight{ID: id, SourceKey: source, Severity: severity, Timestamp: ts}
}

func TestRecomputeGroupsBySourceWithinWindow(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewClusterer(5*time.Minute, 10)

	clusters := c.Recompute([]domain.Insight{
		insight("1", "sensorA", domain.SeverityCritical, base.Add(100*time.Second)),
		insight("2", "sensorA", domain.SeverityWarning, base.Add(200*time.Second)),
		insight("3", "sensorB", domain.SeverityWarning, base.Add(150*time.Second)),
	})

	require.Len(t, clusters, 2)

	assert.Equal(t, "1", clusters[0].Primary.ID)
	require.Len(t, clusters[0].Related, 1)
	assert.Equal(t, "2", clusters[0].Related[0].ID)
	assert.Equal(t, domain.SeverityCritical, clusters[0].Severity)

	assert.Equal(t, "3", clusters[1].Primary.ID)
	assert.Empty(t, clusters[1].Related)
}

func TestRecomputeDifferentSourcesNeverCluster(t *testing.T) {
	ts := time.Unix(1000, 0)
	c := NewClusterer(5*time.Minute, 10)

	clusters := c.Recompute([]domain.Insight{
		insight("1", "sensorA", domain.SeverityWarning, ts),
		insight("2", "sensorB", domain.SeverityWarning, ts),
	})

	require.Len(t, clusters, 2)
	for _, cluster := range clusters {
		assert.Empty(t, cluster.Related)
	}
}

func TestRecomputeWindowBoundaryInclusive(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewClusterer(5*time.Minute, 10)

	exactly := c.Recompute([]domain.Insight{
		insight("1", "sensorA", domain.SeverityWarning, base),
		insight("2", "sensorA", domain.SeverityInfo, base.Add(5*time.Minute)),
	})
	require.Len(t, exactly, 1, "exactly the window apart is related")
	assert.Len(t, exactly[0].Related, 1)

	beyond := c.Recompute([]domain.Insight{
		insight("1", "sensorA", domain.SeverityWarning, base),
		insight("2", "sensorA", domain.SeverityInfo, base.Add(5*time.Minute+time.Second)),
	})
	assert.Len(t, beyond, 2, "one second past the window is not related")
}

func TestRecomputePartition(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewClusterer(5*time.Minute, 10)

	var insights []domain.Insight
	severities := []domain.Severity{domain.SeverityCritical, domain.SeverityWarning, domain.SeverityInfo}
	for i := 0; i < 30; i++ {
		insights = append(insights, insight(
			fmt.Sprintf("i%d", i),
			fmt.Sprintf("sensor%d", i%4),
			severities[i%3],
			base.Add(time.Duration(i*40)*time.Second),
		))
	}

	clusters := c.Recompute(insights)

	seen := make(map[string]int)
	for _, cluster := range clusters {
		seen[cluster.Primary.ID]++
		for _, related := range cluster.Related {
			seen[related.ID]++
		}
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "insight %s appears in more than one cluster", id)
	}
}

func TestRecomputeSeverityUpgrade(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewClusterer(5*time.Minute, 10)

	// The warning is newer but the critical member must set the
	// cluster severity.
	clusters := c.Recompute([]domain.Insight{
		insight("1", "sensorA", domain.SeverityWarning, base.Add(time.Minute)),
		insight("2", "sensorA", domain.SeverityCritical, base),
	})

	require.Len(t, clusters, 1)
	assert.Equal(t, "2", clusters[0].Primary.ID, "critical sorts first")
	assert.Equal(t, domain.SeverityCritical, clusters[0].Severity)
	assert.Equal(t, base, clusters[0].WindowStart)
}

func TestRecomputeMaxVisibleCap(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewClusterer(time.Minute, 3)

	var insights []domain.Insight
	for i := 0; i < 8; i++ {
		insights = append(insights, insight(
			fmt.Sprintf("i%d", i), fmt.Sprintf("sensor%d", i),
			domain.SeverityWarning, base.Add(time.Duration(i)*time.Hour),
		))
	}

	clusters := c.Recompute(insights)
	assert.Len(t, clusters, 3, "formation stops at the cap; the rest wait for the next recompute")
}

func TestRecomputeIdempotent(t *testing.T) {
	base := time.Unix(1000, 0)
	c := NewClusterer(5*time.Minute, 10)

	insights := []domain.Insight{
		insight("1", "sensorA", domain.SeverityCritical, base.Add(100*time.Second)),
		insight("2", "sensorA", domain.SeverityWarning, base.Add(200*time.Second)),
		insight("3", "sensorB", domain.SeverityWarning, base.Add(150*time.Second)),
		insight("4", "sensorB", domain.SeverityInfo, base.Add(160*time.Second)),
	}

	first := c.Recompute(insights)
	second := c.Recompute(insights)
	assert.Equal(t, first, second)
}

func TestRecomputeEmptyInput(t *testing.T) {
	c := NewClusterer(5*time.Minute, 10)
	assert.Empty(t, c.Recompute(nil))
}

func TestRepublishPolicyFiltersStaleClusters(t *testing.T) {
	base := time.Unix(1000, 0)
	lastTick := base.Add(time.Hour)

	fresh := domain.AlertCluster{Primary: insight("new", "s", domain.SeverityWarning, lastTick.Add(time.Minute))}
	stale := domain.AlertCluster{Primary: insight("old", "s", domain.SeverityWarning, base)}

	out := RepublishPolicy{}.Filter([]domain.AlertCluster{fresh, stale}, lastTick)
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Primary.ID)
}

func TestRepublishPolicyFirstTickPublishesAll(t *testing.T) {
	stale := domain.AlertCluster{Primary: insight("old", "s", domain.SeverityWarning, time.Unix(0, 0))}
	out := RepublishPolicy{}.Filter([]domain.AlertCluster{stale}, time.Time{})
	assert.Len(t, out, 1)
}

func TestRepublishPolicyAcknowledgedSuppression(t *testing.T) {
	lastTick := time.Unix(1000, 0)
	acked := insight("a", "s", domain.SeverityWarning, lastTick.Add(time.Minute))
	acked.Acknowledged = true
	cluster := domain.AlertCluster{Primary: acked}

	assert.Empty(t, RepublishPolicy{}.Filter([]domain.AlertCluster{cluster}, lastTick))
	assert.Len(t, RepublishPolicy{RepublishAcknowledged: true}.Filter([]domain.AlertCluster{cluster}, lastTick), 1)
}
