package store

import (
	"context"
	"errors"

	"github.com/cargoroute/tracker/core/model"
)

// ErrNotFound is returned when a referenced entity id does not resolve.
var ErrNotFound = errors.New("entity not found")

// IsNotFound reports whether err is a missing-entity failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store is the entity store adapter consumed by the transition engine and the
// alert manager. Any error other than ErrNotFound is treated as a persistence
// failure and surfaced to the caller unchanged.
type Store interface {
	GetVehicle(ctx context.Context, id int64) (model.Vehicle, error)
	SaveVehicle(ctx context.Context, v model.Vehicle) error
	CreateVehicle(ctx context.Context, v *model.Vehicle) error
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	// ListAvailableVehicles returns active vehicles whose status is
	// available.
	ListAvailableVehicles(ctx context.Context) ([]model.Vehicle, error)

	GetDelivery(ctx context.Context, id int64) (model.Delivery, error)
	GetDeliveryByTracking(ctx context.Context, trackingNumber string) (model.Delivery, error)
	SaveDelivery(ctx context.Context, d model.Delivery) error
	CreateDelivery(ctx context.Context, d *model.Delivery) error
	ListDeliveries(ctx context.Context) ([]model.Delivery, error)

	// AssignDelivery persists the delivery and vehicle as a single unit of
	// work. Neither row is written if either write fails.
	AssignDelivery(ctx context.Context, d model.Delivery, v model.Vehicle) error

	GetAlert(ctx context.Context, id int64) (model.Alert, error)
	SaveAlert(ctx context.Context, a model.Alert) error
	CreateAlert(ctx context.Context, a *model.Alert) error
	ListOpenAlerts(ctx context.Context) ([]model.Alert, error)
}
