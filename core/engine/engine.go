// Package engine validates and applies status changes to vehicles and
// deliveries. Mutations on one entity are serialized; unrelated entities
// proceed in parallel. A change event is published only after the store
// commit succeeds.
package engine

import (
	"context"
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

// Engine is the state transition engine.
type Engine struct {
	store store.Store
	bus   *eventbus.Bus
	locks *keylock.Table
	log   logger.Logger
	sink  metrics.Sink
	now   func() time.Time
}

// New creates an Engine. A nil sink disables metrics.
func New(st store.Store, bus *eventbus.Bus, log logger.Logger, sink metrics.Sink) (*Engine, error) {
	if st == nil || bus == nil || log == nil {
		return nil, fmt.Errorf("engine: nil parameter provided to New")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Engine{
		store: st,
		bus:   bus,
		locks: keylock.New(),
		log:   log,
		sink:  sink,
		now:   time.Now,
	}, nil
}

// SetClock overrides the time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ApplyVehicleLocation records a position ping. The position and
// LastLocationUpdate are always overwritten; there is no status side effect.
func (e *Engine) ApplyVehicleLocation(ctx context.Context, vehicleID int64, lat, lon float64) (model.Vehicle, error) {
	unlock := e.locks.Acquire(vehicleKey(vehicleID))
	defer unlock()

	v, err := e.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		e.sink.RecordMutation("vehicle", "location", err)
		return model.Vehicle{}, err
	}
	if !v.IsActive {
		e.sink.RecordMutation("vehicle", "location", ErrInactiveVehicle)
		return model.Vehicle{}, fmt.Errorf("vehicle %d: %w", vehicleID, ErrInactiveVehicle)
	}

	ts := e.now().UTC()
	v.Latitude = lat
	v.Longitude = lon
	v.LastLocationUpdate = ts

	if err := e.store.SaveVehicle(ctx, v); err != nil {
		e.sink.RecordMutation("vehicle", "location", err)
		return model.Vehicle{}, fmt.Errorf("save vehicle %d: %w", vehicleID, err)
	}
	e.sink.RecordMutation("vehicle", "location", nil)
	e.sink.RecordPosition(vehicleID, lat, lon, ts)
	e.emit(events.VehicleLocationUpdated{VehicleID: vehicleID, Latitude: lat, Longitude: lon, Timestamp: ts})
	return v, nil
}

// ApplyVehicleStatus sets an operator-declared vehicle status. Any valid
// status is accepted; no transition table restricts vehicle status.
func (e *Engine) ApplyVehicleStatus(ctx context.Context, vehicleID int64, status model.VehicleStatus) (model.Vehicle, error) {
	if !status.Valid() {
		return model.Vehicle{}, fmt.Errorf("unknown vehicle status %q", status)
	}

	unlock := e.locks.Acquire(vehicleKey(vehicleID))
	defer unlock()

	v, err := e.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		e.sink.RecordMutation("vehicle", "status", err)
		return model.Vehicle{}, err
	}
	if !v.IsActive {
		e.sink.RecordMutation("vehicle", "status", ErrInactiveVehicle)
		return model.Vehicle{}, fmt.Errorf("vehicle %d: %w", vehicleID, ErrInactiveVehicle)
	}

	ts := e.now().UTC()
	v.Status = status

	if err := e.store.SaveVehicle(ctx, v); err != nil {
		e.sink.RecordMutation("vehicle", "status", err)
		return model.Vehicle{}, fmt.Errorf("save vehicle %d: %w", vehicleID, err)
	}
	e.sink.RecordMutation("vehicle", "status", nil)
	e.emit(events.VehicleStatusUpdated{VehicleID: vehicleID, Status: status, Timestamp: ts})
	return v, nil
}

// ApplyDeliveryStatus moves a delivery to the requested status. Entering
// in_transit stamps ActualPickupTime once; entering delivered stamps
// ActualDeliveryTime once. A terminal delivery accepts a re-affirmation of
// its current status but rejects any other target.
func (e *Engine) ApplyDeliveryStatus(ctx context.Context, deliveryID int64, status model.DeliveryStatus) (model.Delivery, error) {
	if !status.Valid() {
		return model.Delivery{}, fmt.Errorf("unknown delivery status %q", status)
	}

	unlock := e.locks.Acquire(deliveryKey(deliveryID))
	defer unlock()

	d, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		e.sink.RecordMutation("delivery", "status", err)
		return model.Delivery{}, err
	}
	if d.Status.Terminal() && status != d.Status {
		e.sink.RecordMutation("delivery", "status", ErrInvalidTransition)
		return model.Delivery{}, fmt.Errorf("delivery %d is %s: %w", deliveryID, d.Status, ErrInvalidTransition)
	}

	ts := e.now().UTC()
	d.Status = status
	if status == model.DeliveryInTransit && d.ActualPickupTime == nil {
		d.ActualPickupTime = &ts
	}
	if status == model.DeliveryDelivered && d.ActualDeliveryTime == nil {
		d.ActualDeliveryTime = &ts
	}

	if err := e.store.SaveDelivery(ctx, d); err != nil {
		e.sink.RecordMutation("delivery", "status", err)
		return model.Delivery{}, fmt.Errorf("save delivery %d: %w", deliveryID, err)
	}
	e.sink.RecordMutation("delivery", "status", nil)
	e.emit(events.DeliveryStatusUpdated{DeliveryID: deliveryID, Status: status, Timestamp: ts})
	return d, nil
}

// AssignVehicle binds a vehicle to a delivery. The delivery moves to assigned
// and the vehicle to in_transit in a single unit of work; a failure leaves
// both rows untouched.
func (e *Engine) AssignVehicle(ctx context.Context, deliveryID, vehicleID int64) (model.Delivery, error) {
	unlock := e.locks.Acquire(deliveryKey(deliveryID), vehicleKey(vehicleID))
	defer unlock()

	d, err := e.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		e.sink.RecordMutation("delivery", "assign", err)
		return model.Delivery{}, err
	}
	v, err := e.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		e.sink.RecordMutation("delivery", "assign", err)
		return model.Delivery{}, err
	}
	if !v.IsActive {
		e.sink.RecordMutation("delivery", "assign", ErrInactiveVehicle)
		return model.Delivery{}, fmt.Errorf("vehicle %d: %w", vehicleID, ErrInactiveVehicle)
	}
	if d.Status.Terminal() {
		e.sink.RecordMutation("delivery", "assign", ErrInvalidTransition)
		return model.Delivery{}, fmt.Errorf("delivery %d is %s: %w", deliveryID, d.Status, ErrInvalidTransition)
	}

	ts := e.now().UTC()
	d.VehicleID = &vehicleID
	d.Status = model.DeliveryAssigned
	v.Status = model.VehicleInTransit

	if err := e.store.AssignDelivery(ctx, d, v); err != nil {
		e.sink.RecordMutation("delivery", "assign", err)
		return model.Delivery{}, fmt.Errorf("assign delivery %d to vehicle %d: %w", deliveryID, vehicleID, err)
	}
	e.sink.RecordMutation("delivery", "assign", nil)
	e.emit(events.DeliveryStatusUpdated{DeliveryID: deliveryID, Status: model.DeliveryAssigned, Timestamp: ts})
	return d, nil
}

// emit publishes the event after the commit has succeeded.
func (e *Engine) emit(ev events.Event) {
	e.sink.RecordEvent(ev.Name())
	e.bus.Publish(ev)
	e.log.Debugw("event emitted", map[string]any{"event": ev.Name()})
}
