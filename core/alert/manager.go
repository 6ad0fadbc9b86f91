// Package alert creates and resolves vehicle- and delivery-scoped alerts.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cargoroute/tracker/core/events"
	"github.com/cargoroute/tracker/core/logger"
	"github.com/cargoroute/tracker/core/metrics"
	"github.com/cargoroute/tracker/core/model"
	"github.com/cargoroute/tracker/core/store"
	"github.com/cargoroute/tracker/internal/eventbus"
	"github.com/cargoroute/tracker/internal/keylock"
)

// ErrAlreadyResolved is returned when resolving an alert a second time.
var ErrAlreadyResolved = errors.New("alert already resolved")

// Manager owns the alert lifecycle. Alerts are never deduplicated: each
// trigger represents a discrete occurrence and gets its own row.
type Manager struct {
	store store.Store
	bus   *eventbus.Bus
	locks *keylock.Table
	log   logger.Logger
	sink  metrics.Sink
	now   func() time.Time
}

// New creates a Manager. A nil sink disables metrics.
func New(st store.Store, bus *eventbus.Bus, log logger.Logger, sink metrics.Sink) (*Manager, error) {
	if st == nil || bus == nil || log == nil {
		return nil, fmt.Errorf("alert: nil parameter provided to New")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Manager{store: st, bus: bus, locks: keylock.New(), log: log, sink: sink, now: time.Now}, nil
}

// SetClock overrides the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Create stores an unresolved alert against the referenced entity and
// broadcasts it once the row is committed.
func (m *Manager) Create(ctx context.Context, scope model.AlertScope, entityID int64, title, message, alertType string, severity model.AlertSeverity) (model.Alert, error) {
	a := model.Alert{
		Scope:     scope,
		EntityID:  entityID,
		Title:     title,
		Message:   message,
		Type:      alertType,
		Severity:  severity,
		CreatedAt: m.now().UTC(),
	}
	if err := a.Validate(); err != nil {
		return model.Alert{}, err
	}
	if err := m.checkEntity(ctx, scope, entityID); err != nil {
		m.sink.RecordMutation("alert", "create", err)
		return model.Alert{}, err
	}
	if err := m.store.CreateAlert(ctx, &a); err != nil {
		m.sink.RecordMutation("alert", "create", err)
		return model.Alert{}, fmt.Errorf("create alert: %w", err)
	}
	m.sink.RecordMutation("alert", "create", nil)
	m.sink.RecordEvent("NewAlert")
	m.bus.Publish(events.NewAlert{
		AlertID:   a.ID,
		Title:     a.Title,
		Message:   a.Message,
		Type:      a.Type,
		Severity:  a.Severity,
		Timestamp: a.CreatedAt,
	})
	m.log.Infof("alert %d created (%s %d, %s)", a.ID, scope, entityID, severity)
	return a, nil
}

// Resolve marks the alert resolved exactly once. A second resolve surfaces
// the operator double-action instead of silently succeeding.
func (m *Manager) Resolve(ctx context.Context, alertID int64) (model.Alert, error) {
	unlock := m.locks.Acquire(alertKey(alertID))
	defer unlock()

	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		m.sink.RecordMutation("alert", "resolve", err)
		return model.Alert{}, err
	}
	if a.IsResolved {
		m.sink.RecordMutation("alert", "resolve", ErrAlreadyResolved)
		return model.Alert{}, fmt.Errorf("alert %d: %w", alertID, ErrAlreadyResolved)
	}
	ts := m.now().UTC()
	a.IsResolved = true
	a.ResolvedAt = &ts
	if err := m.store.SaveAlert(ctx, a); err != nil {
		m.sink.RecordMutation("alert", "resolve", err)
		return model.Alert{}, fmt.Errorf("resolve alert %d: %w", alertID, err)
	}
	m.sink.RecordMutation("alert", "resolve", nil)
	return a, nil
}

func alertKey(id int64) string { return fmt.Sprintf("alert:%d", id) }

// checkEntity verifies the referenced vehicle or delivery exists.
func (m *Manager) checkEntity(ctx context.Context, scope model.AlertScope, entityID int64) error {
	switch scope {
	case model.ScopeVehicle:
		_, err := m.store.GetVehicle(ctx, entityID)
		return err
	case model.ScopeDelivery:
		_, err := m.store.GetDelivery(ctx, entityID)
		return err
	default:
		return fmt.Errorf("unknown alert scope %q", scope)
	}
}
