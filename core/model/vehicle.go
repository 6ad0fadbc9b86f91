package model

import (
	"fmt"
	"time"
)

// VehicleStatus is the operator-declared state of a vehicle.
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleInTransit   VehicleStatus = "in_transit"
	VehicleDelivering  VehicleStatus = "delivering"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleOffline     VehicleStatus = "offline"
)

// Valid reports whether s is a known vehicle status.
func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleAvailable, VehicleInTransit, VehicleDelivering, VehicleMaintenance, VehicleOffline:
		return true
	}
	return false
}

func (s VehicleStatus) String() string { return string(s) }

// Vehicle represents a fleet vehicle and its last known position.
type Vehicle struct {
	ID            int64         `json:"id"`
	VehicleNumber string        `json:"vehicle_number"`
	DriverName    string        `json:"driver_name"`
	PhoneNumber   string        `json:"phone_number,omitempty"`
	VehicleType   string        `json:"vehicle_type"`
	Status        VehicleStatus `json:"status"`
	IsActive      bool          `json:"is_active"`

	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	LastLocationUpdate time.Time `json:"last_location_update"`

	// Optional fuel bookkeeping carried for the dashboard; the engine never
	// touches these.
	FuelLevel    *float64 `json:"fuel_level,omitempty"`
	FuelCapacity *float64 `json:"fuel_capacity,omitempty"`
}

// Validate checks that the vehicle record is sound before it is stored.
func (v Vehicle) Validate() error {
	if v.VehicleNumber == "" {
		return fmt.Errorf("vehicle number is required")
	}
	if !v.Status.Valid() {
		return fmt.Errorf("unknown vehicle status %q", v.Status)
	}
	return nil
}

// Dispatchable reports whether the vehicle may be offered for new deliveries.
// Only active vehicles currently marked available qualify.
func (v Vehicle) Dispatchable() bool {
	return v.IsActive && v.Status == VehicleAvailable
}
