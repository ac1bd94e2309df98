package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantworks/verdant/internal/alerts"
	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/metrics"
	"github.com/verdantworks/verdant/internal/notify"
	"github.com/verdantworks/verdant/internal/persistence"
	"github.com/verdantworks/verdant/internal/scheduler"
)

func testServer(t *testing.T) (*Server, *persistence.MemoryRepo) {
	t.Helper()
	repo := persistence.NewMemoryRepo()
	cfg := config.Default()
	sched := scheduler.New(cfg.Scheduler, cfg.Alerts, repo, nil,
		alerts.NewClusterer(cfg.Alerts.ClusterWindow, cfg.Alerts.MaxVisible),
		notify.NewHub(), nil)
	return New(":0", sched, repo, notify.NewHub(), metrics.NewRegistry()), repo
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, scheduler.StateStopped, status.State)
}

func TestQueryInsightsFilters(t *testing.T) {
	server, repo := testServer(t)
	ctx := context.Background()

	_, err := repo.Append(ctx, domain.InsightCandidate{
		UnitID: "u1", Type: domain.InsightRisk, Severity: domain.SeverityCritical, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	_, err = repo.Append(ctx, domain.InsightCandidate{
		UnitID: "u2", Type: domain.InsightTrend, Severity: domain.SeverityInfo, Timestamp: time.Now(),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights?unit=u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count    int              `json:"count"`
		Insights []domain.Insight `json:"insights"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "u1", body.Insights[0].UnitID)
}

func TestQueryInsightsRejectsBadTimestamp(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/insights?since=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeEndpoint(t *testing.T) {
	server, repo := testServer(t)

	insight, err := repo.Append(context.Background(), domain.InsightCandidate{
		UnitID: "u1", Type: domain.InsightStress, Severity: domain.SeverityWarning,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/insights/"+insight.ID+"/ack", strings.NewReader(`{"actor_id":"operator-3"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	open, err := repo.Open(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAcknowledgeUnknownInsightIs404(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/insights/missing/ack", strings.NewReader(`{"actor_id":"operator-3"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcknowledgeRequiresActor(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		"/insights/x/ack", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointServesExposition(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "verdant_")
}
