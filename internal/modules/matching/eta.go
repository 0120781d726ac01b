// README: Driver-to-pickup ETA: routed travel time with a straight-line fallback.
package matching

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"buggy/internal/logger"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/location"
	"buggy/internal/types"
)

// ETAEstimator predicts minutes for d to reach pickup. ok is false when no
// estimate can be made; the ride is then assigned without an ETA.
type ETAEstimator interface {
	EstimateMinutes(ctx context.Context, d driver.View, pickup string) (minutes int, ok bool)
}

// CatalogETA assumes a straight line at a constant buggy speed.
type CatalogETA struct {
	catalog  *location.Catalog
	speedKmh float64
}

func NewCatalogETA(catalog *location.Catalog, speedKmh float64) *CatalogETA {
	if speedKmh <= 0 {
		speedKmh = 15
	}
	return &CatalogETA{catalog: catalog, speedKmh: speedKmh}
}

func (e *CatalogETA) EstimateMinutes(_ context.Context, d driver.View, pickup string) (int, bool) {
	from, to, ok := endpoints(e.catalog, d, pickup)
	if !ok {
		return 0, false
	}
	km := location.DistanceKm(from, to)
	return wholeMinutes(time.Duration(km / e.speedKmh * float64(time.Hour))), true
}

// TravelTimer is implemented by maps.RouteService.
type TravelTimer interface {
	TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error)
}

// RouteETA asks the routing API and caches answers per coordinate pair.
// Any routing failure falls back to the straight-line estimate.
type RouteETA struct {
	catalog  *location.Catalog
	routes   TravelTimer
	fallback ETAEstimator
	cache    *cache.Cache
	log      logger.ILogger
}

func NewRouteETA(catalog *location.Catalog, routes TravelTimer, fallback ETAEstimator, log logger.ILogger) *RouteETA {
	return &RouteETA{
		catalog:  catalog,
		routes:   routes,
		fallback: fallback,
		cache:    cache.New(etaCacheTTL, 2*etaCacheTTL),
		log:      log,
	}
}

func (e *RouteETA) EstimateMinutes(ctx context.Context, d driver.View, pickup string) (int, bool) {
	from, to, ok := endpoints(e.catalog, d, pickup)
	if !ok {
		return e.fallback.EstimateMinutes(ctx, d, pickup)
	}
	key := routeKey(from, to)
	if v, found := e.cache.Get(key); found {
		return v.(int), true
	}
	dur, err := e.routes.TravelTime(ctx, from, to)
	if err != nil {
		e.log.Warning("route eta failed, using straight line",
			logger.String("driver_id", string(d.Driver.ID)),
			logger.String("pickup", pickup),
			logger.Error(err),
		)
		return e.fallback.EstimateMinutes(ctx, d, pickup)
	}
	minutes := wholeMinutes(dur)
	e.cache.Set(key, minutes, cache.DefaultExpiration)
	return minutes, true
}

func endpoints(catalog *location.Catalog, d driver.View, pickup string) (types.Point, types.Point, bool) {
	if catalog == nil || d.Label.Point == nil {
		return types.Point{}, types.Point{}, false
	}
	loc, ok := catalog.Lookup(pickup)
	if !ok {
		return types.Point{}, types.Point{}, false
	}
	return *d.Label.Point, loc.Point(), true
}

// routeKey rounds to roughly 10 m so jittery GPS still hits the cache.
func routeKey(from, to types.Point) string {
	return fmt.Sprintf("%.4f,%.4f>%.4f,%.4f", from.Lat, from.Lng, to.Lat, to.Lng)
}

func wholeMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
