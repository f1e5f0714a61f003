package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/vitest-bridge/types"
)

func TestSummaryEndpoint(t *testing.T) {
	rs := NewResultsServer(log.New())

	rec := httptest.NewRecorder()
	rs.handleSummary(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no summary before the first run completes")

	rs.PublishSummary(types.Summary{RunID: "run-1", Requested: 2, Passed: 2})

	rec = httptest.NewRecorder()
	rs.handleSummary(rec, httptest.NewRequest(http.MethodGet, "/api/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got types.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 2, got.Passed)
}

func TestStreamHubBroadcast(t *testing.T) {
	hub := NewStreamHub(log.New())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	test := types.NewTest("auth", "login works")
	hub.MarkRunning(test)
	hub.MarkPassed(test, 12*time.Millisecond)
	hub.PublishSummary(types.Summary{RunID: "run-1", Passed: 1})

	readEvent := func() StreamEvent {
		var ev StreamEvent
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	ev := readEvent()
	assert.Equal(t, "running", ev.Type)
	assert.Equal(t, "auth > login works", ev.Test)

	ev = readEvent()
	assert.Equal(t, "passed", ev.Type)
	assert.Equal(t, int64(12), ev.DurationMs)

	ev = readEvent()
	assert.Equal(t, "summary", ev.Type)
	require.NotNil(t, ev.Summary)
	assert.Equal(t, "run-1", ev.Summary.RunID)
}

func TestStreamHubDropsSlowClient(t *testing.T) {
	hub := NewStreamHub(log.New())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	// the client never reads; overflowing its send buffer must drop it
	// instead of blocking the broadcaster
	test := types.NewTest("s", "t")
	padding := strings.Repeat("x", 16*1024)
	for i := 0; i < clientSendBuffer*64 && hub.ClientCount() > 0; i++ {
		hub.MarkFailed(test, padding, time.Millisecond)
	}

	assert.Zero(t, hub.ClientCount())
}
