// Package events defines the change events pushed to live connections.
//
// Available event types:
//   - VehicleLocationUpdated: a vehicle reported a new position
//   - DeliveryStatusUpdated: a delivery moved to a new status
//   - NewAlert: an alert was created
//   - UserConnected / UserDisconnected: presence announcements
package events
