// README: Driver roster entry, liveness and the derived status view.
package driver

import (
	"errors"
	"time"

	"buggy/internal/modules/ride"
	"buggy/internal/types"
)

var (
	ErrNotFound   = errors.New("driver not found")
	ErrBadRequest = errors.New("bad request")
)

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
	StatusOffline   Status = "OFFLINE"
)

var AllStatuses = []Status{StatusAvailable, StatusBusy, StatusOffline}

// Fix is a GPS reading and when it was taken.
type Fix struct {
	Point types.Point
	At    time.Time
}

// Presence is the volatile part of a driver: heartbeat, login grace and GPS.
type Presence struct {
	LastHeartbeat   *time.Time
	LoginGraceUntil *time.Time
	Fix             *Fix
}

type Driver struct {
	ID     types.ID
	Name   string
	Active bool
	Presence
}

type LabelSource string

const (
	LabelRide     LabelSource = "ride"
	LabelGPS      LabelSource = "gps"
	LabelNearest  LabelSource = "nearest"
	LabelFallback LabelSource = "fallback"
	LabelUnknown  LabelSource = "unknown"
)

// Label is a human-readable description of where a driver is.
type Label struct {
	Text       string
	Point      *types.Point
	AgeSeconds *int
	Source     LabelSource
	// Approximate marks the catalog placeholder used when no GPS was ever reported.
	Approximate bool
	Stale       bool
}

// View is the derived, never stored, state of a driver at one instant.
type View struct {
	Driver  Driver
	Status  Status
	Label   Label
	Current *ride.Ride
}
