// README: Adaptive polling cadence driven by foreground/background and user activity.
package poll

import (
	"sync"
	"time"
)

type State string

const (
	StateActive     State = "active"
	StateIdle       State = "idle"
	StateBackground State = "background"
)

// Cadence maps a surface state to a poll interval.
type Cadence struct {
	Foreground time.Duration
	Idle       time.Duration
	Background time.Duration
	// IdleAfter is how long without interaction before a foreground surface counts as idle.
	IdleAfter time.Duration
}

func DefaultCadence() Cadence {
	return Cadence{
		Foreground: 3 * time.Second,
		Idle:       10 * time.Second,
		Background: 30 * time.Second,
		IdleAfter:  time.Minute,
	}
}

func (c Cadence) Interval(s State) time.Duration {
	switch s {
	case StateActive:
		return c.Foreground
	case StateIdle:
		return c.Idle
	default:
		return c.Background
	}
}

// Activity records user interaction and visibility for one surface.
type Activity struct {
	mu         sync.Mutex
	cadence    Cadence
	lastTouch  time.Time
	background bool
	now        func() time.Time
}

func NewActivity(c Cadence, now func() time.Time) *Activity {
	if now == nil {
		now = time.Now
	}
	return &Activity{cadence: c, lastTouch: now(), now: now}
}

// Touch records an interaction and brings the surface to the foreground.
func (a *Activity) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastTouch = a.now()
	a.background = false
}

func (a *Activity) SetBackground(bg bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.background = bg
}

func (a *Activity) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.background {
		return StateBackground
	}
	if a.now().Sub(a.lastTouch) >= a.cadence.IdleAfter {
		return StateIdle
	}
	return StateActive
}

// Interval is the poll interval for the current state.
func (a *Activity) Interval() time.Duration {
	return a.cadence.Interval(a.State())
}
