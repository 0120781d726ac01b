// README: Wire shapes of the polled board. Timestamps are epoch milliseconds.
package poll

import (
	"time"

	"buggy/internal/modules/driver"
	"buggy/internal/modules/ride"
)

type Ride struct {
	ID            string           `json:"id"`
	RequesterName string           `json:"requesterName"`
	Room          string           `json:"room,omitempty"`
	Pickup        string           `json:"pickup"`
	Destination   string           `json:"destination"`
	Status        string           `json:"status"`
	StatusVersion int              `json:"statusVersion"`
	DriverID      *string          `json:"driverId,omitempty"`
	ETAMinutes    *int             `json:"etaMinutes,omitempty"`
	GuestCount    int              `json:"guestCount"`
	Notes         string           `json:"notes,omitempty"`
	Rating        *int             `json:"rating,omitempty"`
	Feedback      *string          `json:"feedback,omitempty"`
	CreatedAt     int64            `json:"createdAt"`
	AssignedAt    *int64           `json:"assignedAt,omitempty"`
	PickedUpAt    *int64           `json:"pickedUpAt,omitempty"`
	DroppedOffAt  *int64           `json:"droppedOffAt,omitempty"`
	CancelledAt   *int64           `json:"cancelledAt,omitempty"`
	Segments      []ride.Segment   `json:"segments,omitempty"`
	Progress      int              `json:"progress"`
	Next          *ride.NextAction `json:"next,omitempty"`
	Wait          ride.Wait        `json:"wait"`
}

type Driver struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Status             string   `json:"status"`
	Location           string   `json:"location"`
	Lat                *float64 `json:"lat,omitempty"`
	Lng                *float64 `json:"lng,omitempty"`
	LocationAgeSeconds *int     `json:"locationAgeSeconds,omitempty"`
	LocationSource     string   `json:"locationSource"`
	Approximate        bool     `json:"approximate,omitempty"`
	Stale              bool     `json:"stale,omitempty"`
	LastHeartbeat      *int64   `json:"lastHeartbeat,omitempty"`
	CurrentRideID      *string  `json:"currentRideId,omitempty"`
}

// Board is the staff dispatch view: active rides, recently finished rides
// and every driver.
type Board struct {
	GeneratedAt int64    `json:"generatedAt"`
	Rides       []Ride   `json:"rides"`
	Drivers     []Driver `json:"drivers"`
}

func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func millisPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func NewRide(r *ride.Ride, now time.Time) Ride {
	out := Ride{
		ID:            string(r.ID),
		RequesterName: r.RequesterName,
		Room:          r.Room,
		Pickup:        r.Pickup,
		Destination:   r.Destination,
		Status:        string(r.Status),
		StatusVersion: r.StatusVersion,
		ETAMinutes:    r.ETAMinutes,
		GuestCount:    r.GuestCount,
		Notes:         r.Notes,
		Rating:        r.Rating,
		Feedback:      r.Feedback,
		CreatedAt:     Millis(r.CreatedAt),
		AssignedAt:    millisPtr(r.AssignedAt),
		PickedUpAt:    millisPtr(r.PickedUpAt),
		DroppedOffAt:  millisPtr(r.DroppedOffAt),
		CancelledAt:   millisPtr(r.CancelledAt),
		Segments:      r.Segments,
		Progress:      r.Progress,
		Wait:          ride.WaitOf(r, now),
	}
	if r.DriverID != nil {
		id := string(*r.DriverID)
		out.DriverID = &id
	}
	if r.Status.Committed() {
		next := ride.Next(r)
		out.Next = &next
	}
	return out
}

func NewRides(rides []*ride.Ride, now time.Time) []Ride {
	out := make([]Ride, 0, len(rides))
	for _, r := range rides {
		out = append(out, NewRide(r, now))
	}
	return out
}

func NewDriver(v driver.View) Driver {
	out := Driver{
		ID:                 string(v.Driver.ID),
		Name:               v.Driver.Name,
		Status:             string(v.Status),
		Location:           v.Label.Text,
		LocationAgeSeconds: v.Label.AgeSeconds,
		LocationSource:     string(v.Label.Source),
		Approximate:        v.Label.Approximate,
		Stale:              v.Label.Stale,
		LastHeartbeat:      millisPtr(v.Driver.LastHeartbeat),
	}
	if p := v.Label.Point; p != nil {
		lat, lng := p.Lat, p.Lng
		out.Lat, out.Lng = &lat, &lng
	}
	if v.Current != nil {
		id := string(v.Current.ID)
		out.CurrentRideID = &id
	}
	return out
}

func NewDrivers(views []driver.View) []Driver {
	out := make([]Driver, 0, len(views))
	for _, v := range views {
		out = append(out, NewDriver(v))
	}
	return out
}

// RideMap keys rides by id for View.Reconcile.
func (b Board) RideMap() map[string]Ride {
	m := make(map[string]Ride, len(b.Rides))
	for _, r := range b.Rides {
		m[r.ID] = r
	}
	return m
}
