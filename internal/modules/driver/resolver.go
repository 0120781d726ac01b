// README: Pure projection from driver presence and active rides to status and location label.
package driver

import (
	"fmt"
	"time"

	"buggy/internal/config"
	"buggy/internal/modules/location"
	"buggy/internal/modules/ride"
	"buggy/internal/types"
)

type Thresholds struct {
	HeartbeatWindow time.Duration
	FixFreshness    time.Duration
	NearestMaxDeg   float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		HeartbeatWindow: 15 * time.Second,
		FixFreshness:    2 * time.Minute,
		NearestMaxDeg:   0.001,
	}
}

func ThresholdsFromConfig(cfg config.DriverConfig) Thresholds {
	th := DefaultThresholds()
	if cfg.HeartbeatWindow > 0 {
		th.HeartbeatWindow = cfg.HeartbeatWindow
	}
	if cfg.FixFreshness > 0 {
		th.FixFreshness = cfg.FixFreshness
	}
	if cfg.NearestMaxDeg > 0 {
		th.NearestMaxDeg = cfg.NearestMaxDeg
	}
	return th
}

// Resolver holds only immutable inputs, so one value can serve concurrent callers.
type Resolver struct {
	catalog *location.Catalog
	th      Thresholds
}

func NewResolver(catalog *location.Catalog, th Thresholds) *Resolver {
	return &Resolver{catalog: catalog, th: th}
}

// Resolve derives d's status and label. active may contain rides of any
// driver and any status; only committed rides of d are considered.
func (r *Resolver) Resolve(d Driver, now time.Time, active []*ride.Ride) View {
	var mine []*ride.Ride
	for _, rd := range active {
		if rd.Status.Committed() && rd.AssignedTo(d.ID) {
			mine = append(mine, rd)
		}
	}
	return r.resolve(d, now, mine)
}

// ResolveAll resolves every driver against one snapshot of rides.
func (r *Resolver) ResolveAll(drivers []Driver, now time.Time, active []*ride.Ride) []View {
	byDriver := make(map[types.ID][]*ride.Ride)
	for _, rd := range active {
		if rd.Status.Committed() && rd.DriverID != nil {
			byDriver[*rd.DriverID] = append(byDriver[*rd.DriverID], rd)
		}
	}
	out := make([]View, len(drivers))
	for i, d := range drivers {
		out[i] = r.resolve(d, now, byDriver[d.ID])
	}
	return out
}

func (r *Resolver) resolve(d Driver, now time.Time, mine []*ride.Ride) View {
	v := View{Driver: d}
	if cur := currentRide(mine); cur != nil {
		v.Status = StatusBusy
		v.Current = cur
		v.Label = r.rideLabel(cur)
		return v
	}
	if r.online(d.Presence, now) {
		v.Status = StatusAvailable
	} else {
		v.Status = StatusOffline
	}
	v.Label = r.locationLabel(d, now)
	return v
}

func (r *Resolver) online(p Presence, now time.Time) bool {
	if p.LastHeartbeat != nil && now.Sub(*p.LastHeartbeat) < r.th.HeartbeatWindow {
		return true
	}
	return p.LoginGraceUntil != nil && now.Before(*p.LoginGraceUntil)
}

// currentRide prefers a ride already on trip, then the earliest committed.
func currentRide(rides []*ride.Ride) *ride.Ride {
	var best *ride.Ride
	for _, rd := range rides {
		switch {
		case best == nil:
			best = rd
		case rd.Status == ride.StatusOnTrip && best.Status != ride.StatusOnTrip:
			best = rd
		case (rd.Status == ride.StatusOnTrip) == (best.Status == ride.StatusOnTrip) && rd.CreatedAt.Before(best.CreatedAt):
			best = rd
		}
	}
	return best
}

func (r *Resolver) rideLabel(rd *ride.Ride) Label {
	l := Label{Text: rd.Destination, Source: LabelRide}
	if r.catalog != nil {
		if loc, ok := r.catalog.Lookup(rd.Destination); ok {
			p := loc.Point()
			l.Point = &p
		}
	}
	return l
}

func (r *Resolver) locationLabel(d Driver, now time.Time) Label {
	if fix := d.Fix; fix != nil {
		age := now.Sub(fix.At)
		if age < 0 {
			age = 0
		}
		secs := int(age / time.Second)
		p := fix.Point
		if age <= r.th.FixFreshness {
			return Label{Text: coordinates(p), Point: &p, AgeSeconds: &secs, Source: LabelGPS}
		}
		if r.catalog != nil {
			if loc, ok := r.catalog.Nearest(p, r.th.NearestMaxDeg); ok {
				lp := loc.Point()
				return Label{Text: loc.Name, Point: &lp, AgeSeconds: &secs, Source: LabelNearest, Stale: true}
			}
		}
		return Label{Text: coordinates(p), Point: &p, AgeSeconds: &secs, Source: LabelGPS, Stale: true}
	}
	if r.catalog != nil {
		if loc, ok := r.catalog.FallbackFor(d.ID); ok {
			lp := loc.Point()
			return Label{Text: loc.Name, Point: &lp, Source: LabelFallback, Approximate: true}
		}
	}
	return Label{Text: "Unknown", Source: LabelUnknown}
}

func coordinates(p types.Point) string {
	return fmt.Sprintf("%.5f, %.5f", p.Lat, p.Lng)
}
