// Package mqttstream is an alternative event source: it subscribes to the
// Home Assistant MQTT statestream integration, which republishes entity
// states as retained MQTT messages under
// <prefix>/<domain>/<object_id>/state.
package mqttstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rainwatch/internal/config"
)

// StateChangeHandler receives (entity id, new state) for watched entities.
type StateChangeHandler func(entityID, newState string)

// Source bridges statestream messages to the monitor.
type Source struct {
	broker   string
	clientID string
	prefix   string
	entities map[string]struct{}
	handler  StateChangeHandler
	logger   *slog.Logger
}

// New creates an MQTT statestream source watching the configured door/window
// sensors.
func New(cfg *config.Config, handler StateChangeHandler, logger *slog.Logger) *Source {
	entities := make(map[string]struct{}, len(cfg.DoorWindowSensors))
	for _, id := range cfg.DoorWindowSensors {
		entities[id] = struct{}{}
	}
	return &Source{
		broker:   cfg.MQTTBroker,
		clientID: cfg.MQTTClientID,
		prefix:   strings.TrimRight(cfg.MQTTStatestreamPrefix, "/"),
		entities: entities,
		handler:  handler,
		logger:   logger,
	}
}

// Run connects to the broker, subscribes to the statestream state topics,
// and forwards watched-entity state changes until the context is cancelled.
func (s *Source) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID(s.clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect to %s: %w", s.broker, token.Error())
	}
	defer client.Disconnect(250)
	s.logger.Info("connected to mqtt broker", "broker", s.broker)

	topic := s.prefix + "/+/+/state"
	callback := func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	}
	if token := client.Subscribe(topic, 0, callback); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	s.logger.Info("subscribed to statestream", "topic", topic, "entities", len(s.entities))

	<-ctx.Done()
	return nil
}

// handleMessage maps a statestream topic back to an entity id and forwards
// the state when the entity is watched.
func (s *Source) handleMessage(topic string, payload []byte) {
	entityID, ok := topicToEntity(s.prefix, topic)
	if !ok {
		return
	}
	if _, watched := s.entities[entityID]; !watched {
		return
	}
	s.handler(entityID, strings.TrimSpace(string(payload)))
}

// topicToEntity converts "<prefix>/binary_sensor/front_door/state" into
// "binary_sensor.front_door". Returns false for topics outside the
// statestream state layout.
func topicToEntity(prefix, topic string) (string, bool) {
	rest, found := strings.CutPrefix(topic, prefix+"/")
	if !found {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "state" || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}
