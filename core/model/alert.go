package model

import (
	"fmt"
	"time"
)

// AlertScope distinguishes vehicle-bound from delivery-bound alerts.
type AlertScope string

const (
	ScopeVehicle  AlertScope = "vehicle"
	ScopeDelivery AlertScope = "delivery"
)

// Valid reports whether s is a known alert scope.
func (s AlertScope) Valid() bool {
	return s == ScopeVehicle || s == ScopeDelivery
}

// AlertSeverity orders alerts for the operations dashboard.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Valid reports whether s is a known severity.
func (s AlertSeverity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Vehicle alert types.
const (
	AlertMaintenance = "maintenance"
	AlertDelay       = "delay"
	AlertRouteChange = "route_change"
	AlertFuelLow     = "fuel_low"
	AlertEngineIssue = "engine_issue"
	AlertTraffic     = "traffic"
	AlertWeather     = "weather"
)

// Delivery alert types.
const (
	AlertCustomerNotAvailable = "customer_not_available"
	AlertAddressIssue         = "address_issue"
	AlertPackageDamage        = "package_damage"
	AlertWeatherDelay         = "weather_delay"
	AlertTrafficDelay         = "traffic_delay"
)

// Alert is a vehicle- or delivery-scoped notification. It is immutable except
// for the resolve transition, which happens exactly once.
type Alert struct {
	ID       int64         `json:"id"`
	Scope    AlertScope    `json:"scope"`
	EntityID int64         `json:"entity_id"`
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Type     string        `json:"type"`
	Severity AlertSeverity `json:"severity"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	IsResolved bool       `json:"is_resolved"`
}

// Validate checks that the alert is sound before it is stored.
func (a Alert) Validate() error {
	if !a.Scope.Valid() {
		return fmt.Errorf("unknown alert scope %q", a.Scope)
	}
	if a.EntityID == 0 {
		return fmt.Errorf("alert entity id is required")
	}
	if a.Title == "" {
		return fmt.Errorf("alert title is required")
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("unknown alert severity %q", a.Severity)
	}
	return nil
}
