package api

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

	"github.com/jmellor/marginboard/internal/leaderboard"
	"github.com/jmellor/marginboard/internal/universe"
	"github.com/jmellor/marginboard/pkg/config"
	"github.com/jmellor/marginboard/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "development", LogLevel: "error"})
}

func testRegistry() *universe.Registry {
	return universe.NewRegistry(
		universe.New("DOW30", []string{"NYSE:KO"}),
		universe.New("TECH", []string{"NASDAQ:AAPL"}),
	)
}

type fakeSource struct {
	snapshots map[string]*leaderboard.Snapshot
}

func (f *fakeSource) GetSnapshot(_ context.Context, universeName string) (*leaderboard.Snapshot, bool, error) {
	snapshot, ok := f.snapshots[universeName]
	return snapshot, ok, nil
}

func dialHub(t *testing.T, hub *Hub, universeName string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?universe=" + universeName
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) *leaderboard.Snapshot {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var snapshot leaderboard.Snapshot
	require.NoError(t, json.Unmarshal(payload, &snapshot))
	return &snapshot
}

func TestStreamSendsInitialSnapshot(t *testing.T) {
	source := &fakeSource{
		snapshots: map[string]*leaderboard.Snapshot{
			"DOW30": {Universe: "DOW30", PeriodHint: "FY2025"},
		},
	}
	hub := NewHub(source, testRegistry(), testLogger())

	conn := dialHub(t, hub, "DOW30")

	snapshot := readSnapshot(t, conn)
	assert.Equal(t, "DOW30", snapshot.Universe)
	assert.Equal(t, "FY2025", snapshot.PeriodHint)
}

func TestStreamBroadcastReachesSubscribers(t *testing.T) {
	hub := NewHub(&fakeSource{}, testRegistry(), testLogger())

	conn := dialHub(t, hub, "TECH")

	// Wait for registration before broadcasting
	require.Eventually(t, func() bool {
		return hub.ClientCount("TECH") == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(&leaderboard.Snapshot{Universe: "TECH", PeriodHint: "Q2 2025"})

	snapshot := readSnapshot(t, conn)
	assert.Equal(t, "TECH", snapshot.Universe)
	assert.Equal(t, "Q2 2025", snapshot.PeriodHint)
}

func TestStreamBroadcastScopedToUniverse(t *testing.T) {
	hub := NewHub(&fakeSource{}, testRegistry(), testLogger())

	conn := dialHub(t, hub, "DOW30")

	require.Eventually(t, func() bool {
		return hub.ClientCount("DOW30") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A TECH broadcast must not reach a DOW30 subscriber
	hub.Broadcast(&leaderboard.Snapshot{Universe: "TECH"})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestStreamUnknownUniverseFallsBack(t *testing.T) {
	hub := NewHub(&fakeSource{}, testRegistry(), testLogger())

	dialHub(t, hub, "NOPE")

	require.Eventually(t, func() bool {
		return hub.ClientCount("DOW30") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamDisconnectUnregisters(t *testing.T) {
	hub := NewHub(&fakeSource{}, testRegistry(), testLogger())

	conn := dialHub(t, hub, "DOW30")

	require.Eventually(t, func() bool {
		return hub.ClientCount("DOW30") == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount("DOW30") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastNilSnapshot(t *testing.T) {
	hub := NewHub(&fakeSource{}, testRegistry(), testLogger())
	hub.Broadcast(nil)
}
