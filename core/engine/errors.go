package engine

import "errors"

// ErrInactiveVehicle is returned when a mutation targets a retired vehicle.
var ErrInactiveVehicle = errors.New("vehicle is inactive")

// ErrInvalidTransition is returned when a delivery in a terminal state is
// asked to move to a different status.
var ErrInvalidTransition = errors.New("invalid status transition")
