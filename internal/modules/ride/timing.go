package ride

import "time"

type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyElevated Urgency = "elevated"
	UrgencyCritical Urgency = "critical"
)

const (
	elevatedAfter = 5 * time.Minute
	criticalAfter = 10 * time.Minute
)

// Wait describes how long a ride has been waiting for its current stage.
type Wait struct {
	WaitingSeconds  int     `json:"waitingSeconds"`
	ArrivingSeconds int     `json:"arrivingSeconds"`
	Urgency         Urgency `json:"urgency"`
}

// WaitOf is a read-only view over r; it never changes ride state.
func WaitOf(r *Ride, now time.Time) Wait {
	var w Wait
	var elapsed time.Duration
	switch r.Status {
	case StatusSearching:
		elapsed = nonNegative(now.Sub(r.CreatedAt))
		w.WaitingSeconds = int(elapsed / time.Second)
	case StatusAssigned, StatusArriving:
		if r.AssignedAt != nil {
			elapsed = nonNegative(now.Sub(*r.AssignedAt))
			w.ArrivingSeconds = int(elapsed / time.Second)
		}
	}
	switch {
	case elapsed >= criticalAfter:
		w.Urgency = UrgencyCritical
	case elapsed >= elevatedAfter:
		w.Urgency = UrgencyElevated
	default:
		w.Urgency = UrgencyNormal
	}
	return w
}

// WaitingFor is how long the requester has waited since the ride was created.
func WaitingFor(r *Ride, now time.Time) time.Duration {
	return nonNegative(now.Sub(r.CreatedAt))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
