package hass_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainwatch/internal/adapter/hass"
	"rainwatch/internal/config"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://localhost:8123", want: "ws://localhost:8123/api/websocket"},
		{base: "https://ha.example.net/", want: "wss://ha.example.net/api/websocket"},
		{base: "http://10.0.0.5:8123/", want: "ws://10.0.0.5:8123/api/websocket"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hass.WebsocketURL(tt.base))
	}
}

// fakeHassServer speaks just enough of the Home Assistant WebSocket protocol
// for the stream to authenticate, subscribe, and receive events.
type fakeHassServer struct {
	t       *testing.T
	events  []map[string]any
	gotAuth chan string
}

func (f *fakeHassServer) handler(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	require.NoError(f.t, err)
	defer conn.Close()

	require.NoError(f.t, conn.WriteJSON(map[string]any{"type": "auth_required"}))

	var auth struct {
		Type        string `json:"type"`
		AccessToken string `json:"access_token"`
	}
	require.NoError(f.t, conn.ReadJSON(&auth))
	f.gotAuth <- auth.AccessToken
	require.NoError(f.t, conn.WriteJSON(map[string]any{"type": "auth_ok"}))

	var sub struct {
		ID        int    `json:"id"`
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	require.NoError(f.t, conn.ReadJSON(&sub))
	require.Equal(f.t, "subscribe_events", sub.Type)
	require.Equal(f.t, "state_changed", sub.EventType)
	require.NoError(f.t, conn.WriteJSON(map[string]any{"id": sub.ID, "type": "result", "success": true}))

	for _, ev := range f.events {
		require.NoError(f.t, conn.WriteJSON(ev))
	}

	// Hold the connection open until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func stateChanged(id int, entity, state string) map[string]any {
	return map[string]any{
		"id":   id,
		"type": "event",
		"event": map[string]any{
			"event_type": "state_changed",
			"data": map[string]any{
				"entity_id": entity,
				"new_state": map[string]any{"state": state},
			},
		},
	}
}

func TestEventStream_ForwardsWatchedTransitions(t *testing.T) {
	fake := &fakeHassServer{
		t:       t,
		gotAuth: make(chan string, 1),
		events: []map[string]any{
			stateChanged(1, "binary_sensor.balcony_door", "on"),
			stateChanged(1, "light.kitchen", "on"), // not watched
			stateChanged(1, "binary_sensor.balcony_door", "off"),
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	var mu sync.Mutex
	var got []string
	handler := func(entity, state string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, entity+"="+state)
	}

	cfg := &config.Config{
		HassURL:           srv.URL,
		HassToken:         testToken,
		DoorWindowSensors: []string{"binary_sensor.balcony_door"},
	}
	stream := hass.NewEventStream(cfg, handler, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()

	assert.Equal(t, testToken, <-fake.gotAuth)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	assert.Equal(t, []string{"binary_sensor.balcony_door=on", "binary_sensor.balcony_door=off"}, got)
	mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}

func TestEventStream_InvalidTokenIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteJSON(map[string]any{"type": "auth_required"}))
		var auth map[string]any
		require.NoError(t, conn.ReadJSON(&auth))
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "Invalid access token"}))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		HassURL:           srv.URL,
		HassToken:         "bad-token",
		DoorWindowSensors: []string{"binary_sensor.balcony_door"},
	}
	stream := hass.NewEventStream(cfg, func(string, string) {}, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := stream.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication rejected")
}
