// Package debuglog appends human-readable evaluation records to one plain
// text file per calendar day. It exists for after-the-fact inspection of why
// a warning did or did not fire; every failure here is reported to the
// caller and must never block notification dispatch.
package debuglog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rainwatch/internal/config"
	"rainwatch/internal/domain"
)

// Recorder writes per-day debug log files. It implements monitor.Recorder.
type Recorder struct {
	dir string
	cfg *config.Config
}

// NewRecorder creates a recorder writing under cfg.DebugLogDir.
func NewRecorder(cfg *config.Config) *Recorder {
	return &Recorder{dir: cfg.DebugLogDir, cfg: cfg}
}

// Record appends one evaluation block to today's file, creating the
// directory and file as needed.
func (r *Recorder) Record(e domain.Evaluation) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create debug log dir: %w", err)
	}

	name := fmt.Sprintf("rainwatch-%s.log", e.At.Format("2006-01-02"))
	path := filepath.Join(r.dir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(r.formatBlock(e)); err != nil {
		return fmt.Errorf("append debug log: %w", err)
	}
	return nil
}

func (r *Recorder) formatBlock(e domain.Evaluation) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== evaluation %s ===\n", e.At.Format("2006-01-02T15:04:05Z07:00"))

	switch e.Trigger.Source {
	case domain.TriggerStateChange:
		fmt.Fprintf(&b, "trigger: state_change entity=%s new_state=%s\n", e.Trigger.Entity, e.Trigger.NewState)
	default:
		fmt.Fprintf(&b, "trigger: %s\n", e.Trigger.Source)
	}

	fmt.Fprintf(&b, "rain: found=%t minutes=%d at=%s\n",
		e.Rain.Found, e.Rain.Minutes, e.Rain.At.Format("15:04:05"))

	b.WriteString("openings:\n")
	for _, o := range e.Openings {
		mark := "closed"
		if o.Open {
			mark = "open"
		}
		fmt.Fprintf(&b, "  %s: %q (%s)\n", o.Entity, o.State, mark)
	}

	if e.Cooldown.LastSentAt.IsZero() {
		fmt.Fprintf(&b, "cooldown: never notified, window=%s\n", e.Cooldown.Cooldown)
	} else {
		fmt.Fprintf(&b, "cooldown: last_sent=%s since=%s window=%s active=%t\n",
			e.Cooldown.LastSentAt.Format("15:04:05"), e.Cooldown.SinceLast, e.Cooldown.Cooldown, e.Cooldown.Active)
	}

	fmt.Fprintf(&b, "config: nowcast=%s attribute=%s sensors=%s open_states=%s lookahead=%s\n",
		r.cfg.NowcastSensor,
		r.cfg.ForecastAttribute,
		strings.Join(r.cfg.DoorWindowSensors, ","),
		strings.Join(r.cfg.OpenStates, ","),
		r.cfg.Lookahead,
	)

	b.WriteString("forecast:\n")
	b.WriteString(indentJSON(e.RawForecast))
	b.WriteString("\n\n")

	return b.String()
}

// indentJSON pretty-prints the raw forecast payload, falling back to the
// raw text when it is not valid JSON.
func indentJSON(raw []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
