package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rainwatch/internal/config"
)

// StateChangeHandler receives (entity id, new state) for watched entities.
type StateChangeHandler func(entityID, newState string)

// EventStream subscribes to state_changed events over the Home Assistant
// WebSocket API and forwards transitions on the configured opening sensors
// to the handler. The connection is re-established with backoff on drop.
type EventStream struct {
	wsURL    string
	token    string
	entities map[string]struct{}
	handler  StateChangeHandler
	logger   *slog.Logger
}

// NewEventStream creates a stream watching the configured door/window
// sensors.
func NewEventStream(cfg *config.Config, handler StateChangeHandler, logger *slog.Logger) *EventStream {
	entities := make(map[string]struct{}, len(cfg.DoorWindowSensors))
	for _, id := range cfg.DoorWindowSensors {
		entities[id] = struct{}{}
	}
	return &EventStream{
		wsURL:    WebsocketURL(cfg.HassURL),
		token:    cfg.HassToken,
		entities: entities,
		handler:  handler,
		logger:   logger,
	}
}

// WebsocketURL derives the WebSocket endpoint from the REST base URL.
func WebsocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/websocket"
}

// wsMessage covers every server frame the stream cares about.
type wsMessage struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
}

type stateChangedEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string `json:"entity_id"`
		NewState *struct {
			State string `json:"state"`
		} `json:"new_state"`
	} `json:"data"`
}

// Run connects, authenticates, subscribes, and pumps events until the
// context is cancelled. Returns an error only on invalid credentials; every
// other failure is retried with backoff.
func (s *EventStream) Run(ctx context.Context) error {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.session(ctx)
		if errors.Is(err, errAuthInvalid) {
			return fmt.Errorf("home assistant websocket: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.logger.Warn("websocket session ended, reconnecting", "error", err, "backoff", backoff)
		}

		if !sleepWithContext(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

var errAuthInvalid = errors.New("authentication rejected")

// session runs one connect-auth-subscribe-read cycle.
func (s *EventStream) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	// Close the connection when the context is cancelled so the read loop
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := s.authenticate(conn); err != nil {
		return err
	}
	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.logger.Info("subscribed to state_changed events", "entities", len(s.entities))

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if msg.Type != "event" {
			continue
		}
		s.dispatchEvent(msg.Event)
	}
}

func (s *EventStream) authenticate(conn *websocket.Conn) error {
	var hello wsMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected handshake frame %q", hello.Type)
	}

	auth := map[string]string{"type": "auth", "access_token": s.token}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var result wsMessage
	if err := conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	switch result.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return fmt.Errorf("%w: %s", errAuthInvalid, result.Message)
	default:
		return fmt.Errorf("unexpected auth result %q", result.Type)
	}
}

func (s *EventStream) subscribe(conn *websocket.Conn) error {
	sub := map[string]any{"id": 1, "type": "subscribe_events", "event_type": "state_changed"}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	var result wsMessage
	if err := conn.ReadJSON(&result); err != nil {
		return fmt.Errorf("read subscribe result: %w", err)
	}
	if result.Type != "result" || result.Success == nil || !*result.Success {
		return fmt.Errorf("subscribe rejected: %s", result.Message)
	}
	return nil
}

// dispatchEvent forwards a state_changed event when it concerns a watched
// entity and carries a new state.
func (s *EventStream) dispatchEvent(raw json.RawMessage) {
	var ev stateChangedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.logger.Warn("malformed event payload", "error", err)
		return
	}
	if ev.EventType != "state_changed" || ev.Data.NewState == nil {
		return
	}
	if _, watched := s.entities[ev.Data.EntityID]; !watched {
		return
	}
	s.handler(ev.Data.EntityID, ev.Data.NewState.State)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
