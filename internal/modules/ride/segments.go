package ride

type ActionKind string

const (
	ActionNone     ActionKind = "none"
	ActionPickUp   ActionKind = "pick_up"
	ActionDropOff  ActionKind = "drop_off"
	ActionComplete ActionKind = "complete"
)

// NextAction is what the driver does next on r. Leg indexes Segments and is
// -1 when the action is not tied to a leg.
type NextAction struct {
	Kind     ActionKind `json:"kind"`
	Leg      int        `json:"leg"`
	Location string     `json:"location,omitempty"`
}

// Next reports the next driver action. For merged rides progress 2i means
// leg i awaits pickup, 2i+1 means leg i awaits drop-off, and 2n means every
// leg is done and only complete remains.
func Next(r *Ride) NextAction {
	if !r.Status.Committed() {
		return NextAction{Kind: ActionNone, Leg: -1}
	}
	if !r.Merged() {
		if r.Status == StatusOnTrip {
			return NextAction{Kind: ActionComplete, Leg: -1, Location: r.Destination}
		}
		return NextAction{Kind: ActionPickUp, Leg: -1, Location: r.Pickup}
	}
	p := r.Progress
	if p >= r.FinalProgress() {
		return NextAction{Kind: ActionComplete, Leg: -1, Location: r.Destination}
	}
	leg := p / 2
	if p%2 == 0 {
		return NextAction{Kind: ActionPickUp, Leg: leg, Location: r.Segments[leg].From}
	}
	return NextAction{Kind: ActionDropOff, Leg: leg, Location: r.Segments[leg].To}
}

// GuestsOnBoard counts guests picked up but not yet dropped on a merged ride.
func GuestsOnBoard(r *Ride) int {
	if !r.Merged() {
		if r.Status == StatusOnTrip {
			return r.GuestCount
		}
		return 0
	}
	n := 0
	for i, seg := range r.Segments {
		if r.Progress == 2*i+1 {
			n += seg.Guests
		}
	}
	return n
}
