package ride

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest          = errors.New("bad request")
	ErrNotFound            = errors.New("ride not found")
	ErrInvalidRoute        = errors.New("destination must differ from pickup")
	ErrDuplicateActiveRide = errors.New("requester already has an active ride")
	ErrInvalidTransition   = errors.New("invalid ride state transition")
	ErrRideLocked          = errors.New("ride can no longer be cancelled")
	ErrStaleWrite          = errors.New("ride was modified concurrently")
	ErrNotAssignedDriver   = errors.New("ride is assigned to another driver")
	ErrNotRideOwner        = errors.New("ride belongs to another guest")
	ErrAlreadyRated        = errors.New("ride already rated")
)

// DuplicateActiveRideError names the ride that blocks a new request.
// It matches ErrDuplicateActiveRide under errors.Is.
type DuplicateActiveRideError struct {
	Existing *Ride
}

func (e *DuplicateActiveRideError) Error() string {
	if e.Existing == nil {
		return ErrDuplicateActiveRide.Error()
	}
	return fmt.Sprintf("%s: ride %s from %s to %s is %s",
		ErrDuplicateActiveRide.Error(), e.Existing.ID, e.Existing.Pickup, e.Existing.Destination, e.Existing.Status)
}

func (e *DuplicateActiveRideError) Is(target error) bool {
	return target == ErrDuplicateActiveRide
}
