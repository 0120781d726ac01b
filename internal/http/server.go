// README: API gateway dependencies and the HTTP server wrapper.
package http

import (
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"buggy/internal/infra"
	"buggy/internal/logger"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/location"
	"buggy/internal/modules/matching"
	"buggy/internal/modules/notify"
	"buggy/internal/modules/ride"
	"buggy/internal/modules/shift"
)

type ServerDeps struct {
	Rides         *ride.Service
	Drivers       *driver.Service
	Matching      *matching.Service
	Shifts        *shift.Service
	Catalog       *location.Catalog
	Subscriptions notify.SubscriptionStore
	WebPush       *webpush.Options
	Verifier      infra.TokenVerifier
	Log           logger.ILogger

	RateLimit  float64
	RateBurst  int
	BoardCache time.Duration
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
