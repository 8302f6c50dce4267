package domain

import (
	"encoding/json"
	"time"
)

// Trigger sources for an evaluation.
const (
	TriggerTimer       = "timer"
	TriggerStateChange = "state_change"
)

// Trigger identifies what caused an evaluation: the periodic timer (no
// entity context) or a state change on a specific opening sensor.
type Trigger struct {
	Source   string `json:"source"`
	Entity   string `json:"entity,omitempty"`
	NewState string `json:"new_state,omitempty"`
}

// OpeningState is the observed state of one door/window sensor at
// evaluation time.
type OpeningState struct {
	Entity string `json:"entity"`
	State  string `json:"state"`
	Open   bool   `json:"open"`
}

// CooldownSnapshot captures the cooldown math at evaluation time.
type CooldownSnapshot struct {
	LastSentAt time.Time     `json:"last_sent_at,omitempty"`
	SinceLast  time.Duration `json:"since_last,omitempty"`
	Cooldown   time.Duration `json:"cooldown"`
	Active     bool          `json:"active"`
}

// Evaluation captures one dispatch-eligible pass through the warning
// pipeline. Transient: built per evaluation for the debug log and audit
// stream, never persisted by the monitor itself.
type Evaluation struct {
	At       time.Time        `json:"at"`
	Trigger  Trigger          `json:"trigger"`
	Rain     RainCheck        `json:"rain"`
	Openings []OpeningState   `json:"openings"`
	Cooldown CooldownSnapshot `json:"cooldown"`

	// RawForecast is the forecast attribute exactly as read, for the
	// debug log's pretty-printed dump.
	RawForecast json.RawMessage `json:"-"`
}

// OpenEntities returns the entity ids of openings currently open.
func (e Evaluation) OpenEntities() []string {
	var open []string
	for _, o := range e.Openings {
		if o.Open {
			open = append(open, o.Entity)
		}
	}
	return open
}

// WarningEvent is the audit record published to the warning stream after a
// notification has been dispatched.
type WarningEvent struct {
	SentAt        time.Time `json:"sent_at"`
	NowcastEntity string    `json:"nowcast_entity"`
	RainMinutes   int       `json:"rain_minutes"`
	RainAt        time.Time `json:"rain_at"`
	OpenEntities  []string  `json:"open_entities"`
	Recipients    []string  `json:"recipients"`
	Message       string    `json:"message"`
}
