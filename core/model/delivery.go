package model

import (
	"fmt"
	"time"
)

// DeliveryStatus tracks a delivery through its lifecycle. Delivered, Failed
// and Cancelled are terminal.
type DeliveryStatus string

const (
	DeliveryScheduled      DeliveryStatus = "scheduled"
	DeliveryAssigned       DeliveryStatus = "assigned"
	DeliveryInTransit      DeliveryStatus = "in_transit"
	DeliveryOutForDelivery DeliveryStatus = "out_for_delivery"
	DeliveryDelivered      DeliveryStatus = "delivered"
	DeliveryFailed         DeliveryStatus = "failed"
	DeliveryCancelled      DeliveryStatus = "cancelled"
)

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryScheduled, DeliveryAssigned, DeliveryInTransit,
		DeliveryOutForDelivery, DeliveryDelivered, DeliveryFailed, DeliveryCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted out of s.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliveryDelivered, DeliveryFailed, DeliveryCancelled:
		return true
	}
	return false
}

func (s DeliveryStatus) String() string { return string(s) }

// Delivery is a scheduled shipment, optionally assigned to a vehicle.
type Delivery struct {
	ID             int64          `json:"id"`
	TrackingNumber string         `json:"tracking_number"`
	Status         DeliveryStatus `json:"status"`

	PickupAddress   string  `json:"pickup_address"`
	DeliveryAddress string  `json:"delivery_address"`
	PickupLat       float64 `json:"pickup_lat"`
	PickupLon       float64 `json:"pickup_lon"`
	DeliveryLat     float64 `json:"delivery_lat"`
	DeliveryLon     float64 `json:"delivery_lon"`

	ScheduledPickupTime   time.Time  `json:"scheduled_pickup_time"`
	ScheduledDeliveryTime time.Time  `json:"scheduled_delivery_time"`
	ActualPickupTime      *time.Time `json:"actual_pickup_time,omitempty"`
	ActualDeliveryTime    *time.Time `json:"actual_delivery_time,omitempty"`

	Notes    string `json:"notes,omitempty"`
	Priority int    `json:"priority"`

	VehicleID  *int64 `json:"vehicle_id,omitempty"`
	CustomerID int64  `json:"customer_id"`
}

// Validate checks that the delivery record is sound before it is stored.
func (d Delivery) Validate() error {
	if d.CustomerID == 0 {
		return fmt.Errorf("customer id is required")
	}
	if !d.Status.Valid() {
		return fmt.Errorf("unknown delivery status %q", d.Status)
	}
	return nil
}
