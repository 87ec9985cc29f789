package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/roulette-vrf-client/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHubDeliversOnlyToSubscribers(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	watcher := dial(t, srv)
	other := dial(t, srv)

	require.NoError(t, watcher.WriteJSON(ClientMsg{Type: "subscribe", Wager: "W1"}))
	var ack map[string]string
	require.NoError(t, watcher.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack["type"])

	require.NoError(t, other.WriteJSON(ClientMsg{Type: "subscribe", Wager: "W2"}))
	require.NoError(t, other.ReadJSON(&ack))
	assert.Equal(t, 1, hub.Subscribers("W1"))

	outcome := uint8(17)
	hub.Broadcast(events.WagerStatus{Wager: "W1", State: "SETTLED", Outcome: &outcome, Won: true, Payout: 3600})

	var got events.WagerStatus
	require.NoError(t, watcher.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, watcher.ReadJSON(&got))
	assert.Equal(t, "SETTLED", got.State)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, uint8(17), *got.Outcome)

	// W2 não recebe o status de W1
	require.NoError(t, other.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	assert.Error(t, other.ReadJSON(&got))
}

func TestHubPingAndUnsubscribe(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv)
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "ping"}))
	var pong map[string]string
	require.NoError(t, c.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])

	require.NoError(t, c.WriteJSON(ClientMsg{Type: "subscribe", Wager: "W1"}))
	require.NoError(t, c.ReadJSON(&pong))
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "unsubscribe", Wager: "W1"}))
	// ping como barreira: o unsubscribe já foi processado quando o pong chega
	require.NoError(t, c.WriteJSON(ClientMsg{Type: "ping"}))
	require.NoError(t, c.ReadJSON(&pong))
	assert.Zero(t, hub.Subscribers("W1"))
}
