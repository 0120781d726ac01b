// README: Last-seen status tracker that reports forward transitions once.
package poll

import (
	"sync"

	"buggy/internal/modules/driver"
	"buggy/internal/modules/ride"
)

type Kind string

const (
	KindRide   Kind = "ride"
	KindDriver Kind = "driver"
)

type Transition struct {
	Kind Kind
	Key  string
	From string
	To   string
}

// rank orders statuses along the lifecycle. A poller may miss intermediate
// states, so any increase in rank counts as forward. ASSIGNED and ARRIVING
// share a rank; ASSIGNED -> ARRIVING is listed separately.
var rank = map[Kind]map[string]int{
	KindRide: {
		string(ride.StatusSearching): 1,
		string(ride.StatusAssigned):  2,
		string(ride.StatusArriving):  2,
		string(ride.StatusOnTrip):    3,
		string(ride.StatusCompleted): 4,
	},
	KindDriver: {
		string(driver.StatusOffline):   1,
		string(driver.StatusAvailable): 2,
	},
}

type edge struct{ from, to string }

var sameRank = map[Kind]map[edge]bool{
	KindRide: {
		{string(ride.StatusAssigned), string(ride.StatusArriving)}: true,
	},
}

// IsForward reports whether from -> to is a transition worth signalling.
// Statuses outside the lifecycle order (CANCELLED, BUSY) never are.
func IsForward(kind Kind, from, to string) bool {
	rf, ok := rank[kind][from]
	if !ok {
		return false
	}
	rt, ok := rank[kind][to]
	if !ok {
		return false
	}
	return rt > rf || sameRank[kind][edge{from, to}]
}

type Tracker struct {
	mu    sync.Mutex
	last  map[Kind]map[string]string
	fired map[Transition]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{
		last:  map[Kind]map[string]string{KindRide: {}, KindDriver: {}},
		fired: make(map[Transition]struct{}),
	}
}

// Observe records status for key. It returns a transition only when the
// change is a recognized forward step that has not been reported before.
// The first sighting of a key only records.
func (t *Tracker) Observe(kind Kind, key, status string) (Transition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen, ok := t.last[kind]
	if !ok {
		seen = make(map[string]string)
		t.last[kind] = seen
	}
	prev, known := seen[key]
	seen[key] = status
	if !known || prev == status || !IsForward(kind, prev, status) {
		return Transition{}, false
	}
	tr := Transition{Kind: kind, Key: key, From: prev, To: status}
	if _, dup := t.fired[tr]; dup {
		return Transition{}, false
	}
	t.fired[tr] = struct{}{}
	return tr, true
}

// ObserveBoard feeds every ride and driver on b through Observe, then forgets
// keys that are no longer on the board.
func (t *Tracker) ObserveBoard(b Board) []Transition {
	var out []Transition
	present := map[Kind]map[string]struct{}{
		KindRide:   make(map[string]struct{}, len(b.Rides)),
		KindDriver: make(map[string]struct{}, len(b.Drivers)),
	}
	for _, r := range b.Rides {
		present[KindRide][r.ID] = struct{}{}
		if tr, ok := t.Observe(KindRide, r.ID, r.Status); ok {
			out = append(out, tr)
		}
	}
	for _, d := range b.Drivers {
		present[KindDriver][d.ID] = struct{}{}
		if tr, ok := t.Observe(KindDriver, d.ID, d.Status); ok {
			out = append(out, tr)
		}
	}
	t.retain(present)
	return out
}

func (t *Tracker) retain(present map[Kind]map[string]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kind, seen := range t.last {
		for key := range seen {
			if _, ok := present[kind][key]; !ok {
				delete(seen, key)
			}
		}
	}
	for tr := range t.fired {
		if _, ok := present[tr.Kind][tr.Key]; !ok {
			delete(t.fired, tr)
		}
	}
}

// Len returns how many keys of kind are tracked.
func (t *Tracker) Len(kind Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last[kind])
}

// Last returns the last recorded status for key.
func (t *Tracker) Last(kind Kind, key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.last[kind][key]
	return s, ok
}
