// README: Pure cost function for a (ride, driver) pair; lower is better.
package matching

import (
	"math"
	"time"

	"buggy/internal/config"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/ride"
)

// CostParams are tuning constants. They carry no derivation beyond operational
// experience and are meant to be overridden from configuration.
type CostParams struct {
	AvailableCost          float64
	BusyJustStartedCost    float64
	BusyGettingCloseCost   float64
	BusyNearCompletionCost float64
	// WaitBonusRate is subtracted per second the ride has been searching.
	WaitBonusRate   float64
	ChainBonus      float64
	ChainDistanceKm float64
	TypicalTrip     time.Duration
}

func DefaultCostParams() CostParams {
	return CostParams{
		AvailableCost:          10,
		BusyJustStartedCost:    100,
		BusyGettingCloseCost:   60,
		BusyNearCompletionCost: 30,
		WaitBonusRate:          0.05,
		ChainBonus:             25,
		ChainDistanceKm:        0.15,
		TypicalTrip:            8 * time.Minute,
	}
}

// CostParamsFromConfig overlays non-zero config values on the defaults.
func CostParamsFromConfig(cfg config.MatchingConfig) CostParams {
	p := DefaultCostParams()
	setIfPositive(&p.AvailableCost, cfg.AvailableCost)
	setIfPositive(&p.BusyJustStartedCost, cfg.BusyJustStartedCost)
	setIfPositive(&p.BusyGettingCloseCost, cfg.BusyGettingCloseCost)
	setIfPositive(&p.BusyNearCompletionCost, cfg.BusyNearCompletionCost)
	setIfPositive(&p.WaitBonusRate, cfg.WaitBonusRate)
	setIfPositive(&p.ChainBonus, cfg.ChainBonus)
	setIfPositive(&p.ChainDistanceKm, cfg.ChainDistanceKm)
	if cfg.TypicalTripMinutes > 0 {
		p.TypicalTrip = time.Duration(cfg.TypicalTripMinutes) * time.Minute
	}
	return p
}

func setIfPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

// Distancer measures between named locations. location.Catalog implements it.
type Distancer interface {
	DistanceKm(from, to string) (float64, bool)
}

// Stage thresholds on trip progress (elapsed since pickup / typical trip).
const (
	gettingCloseAt   = 0.5
	nearCompletionAt = 0.85
)

// Cost scores c for r at now. Off-shift and offline drivers get +Inf.
func Cost(r *ride.Ride, c Candidate, p CostParams, dist Distancer, now time.Time) float64 {
	if !c.OnShift || c.Driver.Status == driver.StatusOffline {
		return math.Inf(1)
	}

	var cost float64
	switch c.Driver.Status {
	case driver.StatusAvailable:
		cost = p.AvailableCost
	case driver.StatusBusy:
		cost = busyCost(c.Driver.Current, p, now)
		if chains(c.Driver.Current, r, p, dist) {
			cost -= p.ChainBonus
		}
	default:
		return math.Inf(1)
	}

	waited := ride.WaitingFor(r, now).Seconds()
	return cost - waited*p.WaitBonusRate
}

// busyCost never increases as the current trip nears completion.
func busyCost(cur *ride.Ride, p CostParams, now time.Time) float64 {
	if cur == nil || cur.Status != ride.StatusOnTrip || cur.PickedUpAt == nil || p.TypicalTrip <= 0 {
		return p.BusyJustStartedCost
	}
	progress := float64(now.Sub(*cur.PickedUpAt)) / float64(p.TypicalTrip)
	switch {
	case progress < gettingCloseAt:
		return p.BusyJustStartedCost
	case progress < nearCompletionAt:
		return p.BusyGettingCloseCost
	default:
		return p.BusyNearCompletionCost
	}
}

// chains reports whether the driver's current drop-off is close to r's pickup.
func chains(cur *ride.Ride, r *ride.Ride, p CostParams, dist Distancer) bool {
	if cur == nil || dist == nil {
		return false
	}
	d, ok := dist.DistanceKm(cur.Destination, r.Pickup)
	return ok && d <= p.ChainDistanceKm
}
