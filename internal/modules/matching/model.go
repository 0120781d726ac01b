// README: Assignment candidates, planned assignments and dispatch settings.
package matching

import (
	"errors"
	"fmt"
	"time"

	"buggy/internal/modules/driver"
	"buggy/internal/modules/ride"
)

var (
	// ErrNoAdmissibleDriver means rides are waiting but every driver is off
	// shift or offline.
	ErrNoAdmissibleDriver = errors.New("no admissible driver")
	ErrInvalidSettings    = errors.New("invalid dispatch settings")
)

// Candidate is a driver as seen by the cost engine.
type Candidate struct {
	Driver  driver.View
	OnShift bool
}

// Assignment is one (ride, driver) pair chosen by Plan. It is never persisted.
type Assignment struct {
	Ride   *ride.Ride
	Driver driver.View
	Cost   float64
}

// Settings is the hot-reloadable dispatch configuration.
type Settings struct {
	AutoAssignEnabled bool `json:"autoAssignEnabled"`
	MaxWaitSeconds    int  `json:"maxWaitSecondsBeforeAutoAssign"`
}

func (s Settings) MaxWait() time.Duration {
	return time.Duration(s.MaxWaitSeconds) * time.Second
}

func (s Settings) Validate() error {
	if s.MaxWaitSeconds < 0 {
		return fmt.Errorf("%w: max wait must not be negative", ErrInvalidSettings)
	}
	return nil
}

const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

// Outcome of one scheduler tick, also used as the metric label.
type Outcome string

const (
	OutcomeDisabled Outcome = "disabled"
	OutcomeIdle     Outcome = "idle"
	OutcomeCooldown Outcome = "cooldown"
	OutcomeNoDriver Outcome = "no_driver"
	OutcomeAssigned Outcome = "assigned"
	OutcomeError    Outcome = "error"
)

// Report summarises an assignment pass.
type Report struct {
	Outcome   Outcome
	Pending   int
	Planned   int
	Committed []*ride.Ride
	Failed    int
}

const (
	// cooldownKey scopes the scheduler cooldown; all instances share it.
	cooldownKey = "auto-assign"
	// etaCacheTTL bounds how long a routed travel time is reused.
	etaCacheTTL = 5 * time.Minute
)
