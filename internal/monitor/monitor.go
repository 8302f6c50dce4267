// Package monitor implements the rain-warning decision pipeline: parse the
// nowcast, test the look-ahead window, test the opening sensors, apply the
// notification cooldown, dispatch.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"rainwatch/internal/config"
	"rainwatch/internal/domain"
	"rainwatch/internal/observability"
)

// StateReader reads current entity state from the home-automation runtime.
type StateReader interface {
	// GetState returns the current state string of an entity.
	GetState(ctx context.Context, entityID string) (string, error)

	// GetAttribute returns an entity attribute's current value, or "" when
	// the attribute is absent.
	GetAttribute(ctx context.Context, entityID, attribute string) (string, error)
}

// Notifier delivers a message through a named notification channel.
// Delivery is fire-and-forget: the monitor never retries.
type Notifier interface {
	Send(ctx context.Context, service, message string) error
}

// AuditPublisher records dispatched warnings on an external stream.
type AuditPublisher interface {
	Publish(ctx context.Context, event domain.WarningEvent) error
}

// Recorder appends a debug record for a dispatch-eligible evaluation.
type Recorder interface {
	Record(e domain.Evaluation) error
}

// Monitor owns the rule configuration, the in-memory cooldown state, and the
// evaluation pipeline. All triggers (sensor state changes and the periodic
// timer) are serialized onto the Run goroutine, so the cooldown field needs
// no locking.
type Monitor struct {
	cfg      *config.Config
	states   StateReader
	notifier Notifier
	audit    AuditPublisher // nil when the audit stream is disabled
	recorder Recorder       // nil when debug logging is disabled
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	triggers chan domain.Trigger
	ready    atomic.Bool

	// lastNotification is zero until the first dispatch. Only the Run
	// goroutine touches it, so no locking. In memory only; lost on restart.
	lastNotification time.Time
}

// New creates a Monitor. Audit and recorder may be nil. New returns an error
// when a required configuration field is empty; the caller must log it once
// and register nothing.
func New(
	cfg *config.Config,
	states StateReader,
	notifier Notifier,
	audit AuditPublisher,
	recorder Recorder,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*Monitor, error) {
	if cfg.NowcastSensor == "" || len(cfg.DoorWindowSensors) == 0 || len(cfg.Persons) == 0 {
		return nil, errors.New("missing required configuration: nowcast sensor, door/window sensors, and persons must all be set")
	}
	if states == nil || notifier == nil {
		return nil, errors.New("state reader and notifier are required")
	}

	return &Monitor{
		cfg:      cfg,
		states:   states,
		notifier: notifier,
		audit:    audit,
		recorder: recorder,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		triggers: make(chan domain.Trigger, 16),
	}, nil
}

// CheckReadiness returns nil once the monitor has completed at least one
// evaluation.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("monitor has not completed an evaluation yet")
	}
	return nil
}

// HandleStateChange enqueues an evaluation for a sensor state transition.
// Safe to call from event-source goroutines; the evaluation itself runs on
// the Run goroutine. A full queue drops the trigger: the periodic timer
// covers any missed transition within one interval.
func (m *Monitor) HandleStateChange(entityID, newState string) {
	trg := domain.Trigger{Source: domain.TriggerStateChange, Entity: entityID, NewState: newState}
	select {
	case m.triggers <- trg:
	default:
		m.logger.Warn("trigger queue full, dropping state change", "entity", entityID, "new_state", newState)
	}
}

// Run executes an immediate first evaluation, then evaluates on every
// periodic tick and every queued sensor trigger until the context is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		"nowcast_sensor", m.cfg.NowcastSensor,
		"door_window_sensors", len(m.cfg.DoorWindowSensors),
		"recipients", len(m.cfg.Persons),
		"lookahead", m.cfg.Lookahead,
		"cooldown", m.cfg.Cooldown,
		"check_interval", m.cfg.CheckInterval,
	)
	m.metrics.MonitorRunning.Set(1)
	defer m.metrics.MonitorRunning.Set(0)

	m.Evaluate(ctx, domain.Trigger{Source: domain.TriggerTimer})

	ticker := m.clock.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			m.Evaluate(ctx, domain.Trigger{Source: domain.TriggerTimer})
		case trg := <-m.triggers:
			m.Evaluate(ctx, trg)
		}
	}
}

// Evaluate runs one pass of the pipeline. Errors are logged here and never
// propagate: a failed evaluation degrades to "no notification this cycle"
// and must not destabilize the loop.
func (m *Monitor) Evaluate(ctx context.Context, trg domain.Trigger) {
	m.metrics.Evaluations.WithLabelValues(trg.Source).Inc()

	if err := m.evaluate(ctx, trg); err != nil && ctx.Err() == nil {
		m.metrics.EvaluationErrors.Inc()
		m.logger.Error("evaluation failed",
			"trigger", trg.Source,
			"entity", trg.Entity,
			"error", err,
		)
	}
	m.ready.Store(true)
}

func (m *Monitor) evaluate(ctx context.Context, trg domain.Trigger) error {
	// A close transition cannot create a warning condition; only check when
	// a sensor opens. Timer triggers carry no entity and always evaluate.
	if trg.Entity != "" && !m.isOpenState(trg.NewState) {
		m.logger.Debug("opening closed, skipping evaluation", "entity", trg.Entity, "new_state", trg.NewState)
		return nil
	}

	raw, err := m.states.GetAttribute(ctx, m.cfg.NowcastSensor, m.cfg.ForecastAttribute)
	if err != nil {
		return fmt.Errorf("read forecast attribute: %w", err)
	}
	if raw == "" {
		m.logger.Debug("no forecast data", "sensor", m.cfg.NowcastSensor)
		return nil
	}

	points, err := domain.ParseForecast([]byte(raw))
	if err != nil {
		return err
	}
	m.metrics.ForecastPoints.Observe(float64(len(points)))

	now := m.clock.Now().UTC()
	rain := domain.FindRain(points, now, m.cfg.Lookahead)
	if !rain.Found {
		return nil
	}
	m.metrics.RainDetected.Inc()

	openings, err := m.readOpenings(ctx)
	if err != nil {
		return err
	}

	eval := domain.Evaluation{
		At:          now,
		Trigger:     trg,
		Rain:        rain,
		Openings:    openings,
		Cooldown:    m.cooldownSnapshot(now),
		RawForecast: json.RawMessage(raw),
	}

	if len(eval.OpenEntities()) == 0 {
		m.logger.Debug("rain expected but nothing open", "rain_minutes", rain.Minutes)
		return nil
	}

	if eval.Cooldown.Active {
		m.metrics.NotificationsSuppressed.Inc()
		m.logger.Debug("cooldown active, suppressing notification",
			"since_last", eval.Cooldown.SinceLast,
			"cooldown", eval.Cooldown.Cooldown,
		)
		return nil
	}

	m.record(eval)
	m.dispatch(ctx, eval)
	return nil
}

// readOpenings reads the current state of every configured opening sensor.
func (m *Monitor) readOpenings(ctx context.Context) ([]domain.OpeningState, error) {
	openings := make([]domain.OpeningState, 0, len(m.cfg.DoorWindowSensors))
	for _, sensor := range m.cfg.DoorWindowSensors {
		state, err := m.states.GetState(ctx, sensor)
		if err != nil {
			return nil, fmt.Errorf("read opening sensor %s: %w", sensor, err)
		}
		openings = append(openings, domain.OpeningState{
			Entity: sensor,
			State:  state,
			Open:   m.isOpenState(state),
		})
	}
	return openings, nil
}

func (m *Monitor) cooldownSnapshot(now time.Time) domain.CooldownSnapshot {
	snap := domain.CooldownSnapshot{Cooldown: m.cfg.Cooldown}
	if !m.lastNotification.IsZero() {
		snap.LastSentAt = m.lastNotification
		snap.SinceLast = now.Sub(m.lastNotification)
		snap.Active = snap.SinceLast < m.cfg.Cooldown
	}
	return snap
}

// record appends the debug log block. Failures here must never abort the
// notification dispatch.
func (m *Monitor) record(eval domain.Evaluation) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Record(eval); err != nil {
		m.logger.Warn("debug record failed", "error", err)
	}
}

// dispatch sends the warning to every recipient with a notify service and
// arms the cooldown. Per-recipient delivery failures are logged and skipped;
// there is no retry.
func (m *Monitor) dispatch(ctx context.Context, eval domain.Evaluation) {
	message := domain.WarningMessage(eval.Rain.Minutes)

	var recipients []string
	for _, person := range m.cfg.Persons {
		if person.NotifyService == "" {
			continue
		}
		if err := m.notifier.Send(ctx, person.NotifyService, message); err != nil {
			m.logger.Error("notification delivery failed",
				"service", person.NotifyService,
				"person", person.Name,
				"error", err,
			)
			continue
		}
		recipients = append(recipients, person.NotifyService)
	}

	m.lastNotification = eval.At
	m.metrics.NotificationsSent.Inc()
	m.metrics.LastNotificationTime.Set(float64(eval.At.Unix()))
	m.logger.Info("rain warning notification sent",
		"rain_minutes", eval.Rain.Minutes,
		"rain_at", eval.Rain.At,
		"open_entities", eval.OpenEntities(),
		"recipients", len(recipients),
	)

	if m.audit == nil {
		return
	}
	event := domain.WarningEvent{
		SentAt:        eval.At,
		NowcastEntity: m.cfg.NowcastSensor,
		RainMinutes:   eval.Rain.Minutes,
		RainAt:        eval.Rain.At,
		OpenEntities:  eval.OpenEntities(),
		Recipients:    recipients,
		Message:       message,
	}
	if err := m.audit.Publish(ctx, event); err != nil {
		m.logger.Warn("audit publish failed", "error", err)
	}
}

func (m *Monitor) isOpenState(state string) bool {
	return slices.Contains(m.cfg.OpenStates, state)
}
