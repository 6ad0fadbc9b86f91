package events

import (
	"fmt"
	"time"

	"github.com/cargoroute/tracker/core/model"
)

// Event is a change notification pushed to live connections. Name is the
// wire-level event name clients subscribe to.
type Event interface {
	Name() string
}

// VehicleLocationUpdated is emitted after a vehicle position commit.
type VehicleLocationUpdated struct {
	VehicleID int64     `json:"vehicle_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

func (VehicleLocationUpdated) Name() string { return "VehicleLocationUpdated" }

// VehicleStatusUpdated is emitted after a vehicle status commit.
type VehicleStatusUpdated struct {
	VehicleID int64               `json:"vehicle_id"`
	Status    model.VehicleStatus `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
}

func (VehicleStatusUpdated) Name() string { return "VehicleStatusUpdated" }

// DeliveryStatusUpdated is emitted after a delivery status commit, including
// the status change implied by a vehicle assignment.
type DeliveryStatusUpdated struct {
	DeliveryID int64                `json:"delivery_id"`
	Status     model.DeliveryStatus `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
}

func (DeliveryStatusUpdated) Name() string { return "DeliveryStatusUpdated" }

// NewAlert is emitted after an alert row is created.
type NewAlert struct {
	AlertID   int64               `json:"alert_id"`
	Title     string              `json:"title"`
	Message   string              `json:"message"`
	Type      string              `json:"type"`
	Severity  model.AlertSeverity `json:"severity"`
	Timestamp time.Time           `json:"timestamp"`
}

func (NewAlert) Name() string { return "NewAlert" }

// UserConnected announces a new live connection to all clients.
type UserConnected struct {
	ConnectionID string `json:"connection_id"`
}

func (UserConnected) Name() string { return "UserConnected" }

// UserDisconnected announces a closed live connection to all clients.
type UserDisconnected struct {
	ConnectionID string `json:"connection_id"`
}

func (UserDisconnected) Name() string { return "UserDisconnected" }

// VehicleGroup returns the group key scoping subscribers to one vehicle.
func VehicleGroup(id int64) string { return fmt.Sprintf("vehicle:%d", id) }

// DeliveryGroup returns the group key scoping subscribers to one delivery.
func DeliveryGroup(id int64) string { return fmt.Sprintf("delivery:%d", id) }
