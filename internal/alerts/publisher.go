package alerts

import (
	"time"

	"github.com/verdantworks/verdant/internal/domain"
)

// RepublishPolicy decides which clusters go out after a recompute,
// suppressing notification storms: a cluster is republished only when
// its primary insight was created since the last successful tick.
// Clusters whose primary predates the last tick but was acknowledged
// in the meantime never reach clustering at all (acknowledged insights
// leave the open working set), so the remaining choice is whether a
// cluster counts as new when its fresh primary is already
// acknowledged; that is configurable and off by default.
type RepublishPolicy struct {
	RepublishAcknowledged bool
}

// Filter returns the clusters worth publishing given the time of the
// last successful tick. A zero lastTick publishes everything (first
// tick after startup).
func (p RepublishPolicy) Filter(clusters []domain.AlertCluster, lastTick time.Time) []domain.AlertCluster {
	if lastTick.IsZero() {
		return clusters
	}

	var out []domain.AlertCluster
	for _, cluster := range clusters {
		if cluster.Primary.Timestamp.Before(lastTick) {
			continue
		}
		if cluster.Primary.Acknowledged && !p.RepublishAcknowledged {
			continue
		}
		out = append(out, cluster)
	}
	return out
}
