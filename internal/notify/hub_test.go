package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantworks/verdant/internal/domain"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversClustersToSubscribers(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)

	cluster := domain.AlertCluster{
		ID:        "c1",
		Primary:   domain.Insight{ID: "i1", SourceKey: "unit-1:stress", Severity: domain.SeverityCritical},
		Severity:  domain.SeverityCritical,
		SourceKey: "unit-1:stress",
	}
	require.NoError(t, hub.Publish(context.Background(), []domain.AlertCluster{cluster}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg alertsMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "alerts", msg.Kind)
	require.Len(t, msg.Clusters, 1)
	assert.Equal(t, "i1", msg.Clusters[0].Primary.ID)
}

func TestHubPublishWithoutSubscribersSucceeds(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	assert.NoError(t, hub.Publish(context.Background(), nil))
}

func TestHubClosedRejectsPublish(t *testing.T) {
	hub := NewHub()
	hub.Close()
	assert.Error(t, hub.Publish(context.Background(), nil))
}

func TestHubDropsDisconnectedSubscriber(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 },
		time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)
}
