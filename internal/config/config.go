package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Person is one notification recipient. NotifyService names the Home
// Assistant notify service to call (e.g. "mobile_app_alice_phone"); a person
// without one is skipped at dispatch time.
type Person struct {
	Name          string
	NotifyService string
}

// PersonList parses the PERSONS environment variable: a comma-separated list
// of "name:notify_service" pairs. The name is optional; a bare entry is
// treated as a notify service.
type PersonList []Person

// Decode implements envconfig.Decoder.
func (p *PersonList) Decode(value string) error {
	var persons []Person
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, service, found := strings.Cut(entry, ":")
		if !found {
			persons = append(persons, Person{NotifyService: strings.TrimSpace(name)})
			continue
		}
		persons = append(persons, Person{
			Name:          strings.TrimSpace(name),
			NotifyService: strings.TrimSpace(service),
		})
	}
	*p = persons
	return nil
}

// Config holds all service settings, populated from environment variables
// once at startup and immutable thereafter.
type Config struct {
	// Home Assistant connection.
	HassURL     string        `envconfig:"HASS_URL" default:"http://localhost:8123"`
	HassToken   string        `envconfig:"HASS_TOKEN"`
	HassTimeout time.Duration `envconfig:"HASS_TIMEOUT" default:"10s"`

	// Rain warning rule.
	NowcastSensor     string        `envconfig:"NOWCAST_SENSOR"`
	ForecastAttribute string        `envconfig:"FORECAST_ATTRIBUTE" default:"forecast_json"`
	DoorWindowSensors []string      `envconfig:"DOOR_WINDOW_SENSORS"`
	OpenStates        []string      `envconfig:"OPEN_STATES" default:"on,open"`
	Persons           PersonList    `envconfig:"PERSONS"`
	Lookahead         time.Duration `envconfig:"LOOKAHEAD" default:"30m"`
	Cooldown          time.Duration `envconfig:"COOLDOWN" default:"180s"`
	CheckInterval     time.Duration `envconfig:"CHECK_INTERVAL" default:"5m"`

	// Event source: "websocket" (Home Assistant WebSocket API) or "mqtt"
	// (Home Assistant MQTT statestream).
	EventSource           string `envconfig:"EVENT_SOURCE" default:"websocket"`
	MQTTBroker            string `envconfig:"MQTT_BROKER" default:"tcp://localhost:1883"`
	MQTTClientID          string `envconfig:"MQTT_CLIENT_ID" default:"rainwatch"`
	MQTTStatestreamPrefix string `envconfig:"MQTT_STATESTREAM_PREFIX" default:"homeassistant"`

	// Warning audit stream. Disabled when no brokers are configured.
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	KafkaAuditTopic string   `envconfig:"KAFKA_AUDIT_TOPIC" default:"rain-warnings"`

	// Per-day debug log. Disabled when empty.
	DebugLogDir string `envconfig:"DEBUG_LOG_DIR"`

	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads configuration from environment variables, applying defaults
// where unset. A missing required field is a fatal configuration error: the
// caller must log it and start nothing.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.HassToken == "" {
		return nil, errors.New("HASS_TOKEN is required")
	}
	if cfg.NowcastSensor == "" {
		return nil, errors.New("NOWCAST_SENSOR is required")
	}
	if len(cfg.DoorWindowSensors) == 0 {
		return nil, errors.New("DOOR_WINDOW_SENSORS is required")
	}
	if len(cfg.Persons) == 0 {
		return nil, errors.New("PERSONS is required")
	}
	if !cfg.HasNotifiablePerson() {
		return nil, errors.New("PERSONS has no entry with a notify service")
	}
	if cfg.Lookahead <= 0 {
		return nil, errors.New("LOOKAHEAD must be positive")
	}
	if cfg.Cooldown < 0 {
		return nil, errors.New("COOLDOWN must not be negative")
	}
	if cfg.CheckInterval <= 0 {
		return nil, errors.New("CHECK_INTERVAL must be positive")
	}
	switch cfg.EventSource {
	case "websocket", "mqtt":
	default:
		return nil, fmt.Errorf("EVENT_SOURCE must be websocket or mqtt, got %q", cfg.EventSource)
	}
	if cfg.EventSource == "mqtt" && cfg.MQTTBroker == "" {
		return nil, errors.New("MQTT_BROKER is required when EVENT_SOURCE is mqtt")
	}

	return &cfg, nil
}

// HasNotifiablePerson reports whether at least one recipient has a notify
// service configured.
func (c *Config) HasNotifiablePerson() bool {
	for _, p := range c.Persons {
		if p.NotifyService != "" {
			return true
		}
	}
	return false
}

// AuditEnabled reports whether the Kafka warning audit stream is configured.
func (c *Config) AuditEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// DebugLogEnabled reports whether the per-day debug log is configured.
func (c *Config) DebugLogEnabled() bool {
	return c.DebugLogDir != ""
}
