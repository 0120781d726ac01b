// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"buggy/internal/http/handlers"
	"buggy/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limit := rate.Limit(deps.RateLimit)
	if deps.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := deps.RateBurst
	if burst <= 0 {
		burst = 1
	}
	boardCache := cache.New(deps.BoardCache, time.Minute)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(limit, burst), middleware.Auth(deps.Verifier))

	locationHandler := handlers.NewLocationHandler(deps.Catalog)
	api.GET("/locations", locationHandler.List)

	rideHandler := handlers.NewRideHandler(deps.Rides)
	api.POST("/rides", rideHandler.Create)
	api.GET("/rides", rideHandler.List)
	api.GET("/rides/:id", rideHandler.Get)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.POST("/rides/:id/rating", rideHandler.Rate)

	pushHandler := handlers.NewPushHandler(deps.Subscriptions, deps.WebPush)
	api.PUT("/push/subscriptions", pushHandler.PutSubscription)
	api.DELETE("/push/subscriptions", pushHandler.DeleteSubscription)
	api.GET("/push/vapid_public_key", pushHandler.VAPIDPublicKey)

	driverHandler := handlers.NewDriverHandler(deps.Drivers, deps.Rides)
	drv := api.Group("/driver", middleware.RequireRole(middleware.RoleDriver))
	{
		drv.POST("/login", driverHandler.Login)
		drv.POST("/logout", driverHandler.Logout)
		drv.POST("/heartbeat", driverHandler.Heartbeat)
		drv.POST("/location", driverHandler.Location)
		drv.GET("/me", driverHandler.Me)
		drv.GET("/rides", driverHandler.Rides)
		drv.POST("/rides/:id/accept", driverHandler.Accept)
		drv.POST("/rides/:id/arriving", driverHandler.Arriving())
		drv.POST("/rides/:id/delayed", driverHandler.Delayed())
		drv.POST("/rides/:id/pickup", driverHandler.PickUp())
		drv.POST("/rides/:id/advance", driverHandler.Advance())
		drv.POST("/rides/:id/complete", driverHandler.Complete())
	}

	staffHandler := handlers.NewStaffHandler(deps.Rides, deps.Drivers, deps.Matching)
	shiftHandler := handlers.NewShiftHandler(deps.Shifts)
	staff := api.Group("/staff", middleware.RequireRole(middleware.RoleStaff))
	{
		staff.GET("/board", middleware.Cache(boardCache, deps.BoardCache), staffHandler.Board)
		staff.GET("/drivers", staffHandler.Drivers)
		staff.DELETE("/drivers/:id", staffHandler.DeactivateDriver)
		staff.GET("/drivers/:id/shifts", shiftHandler.List)
		staff.POST("/shifts", shiftHandler.Add)
		staff.DELETE("/shifts/:id", shiftHandler.Delete)
		staff.POST("/rides", rideHandler.Create)
		staff.POST("/rides/:id/assign", staffHandler.Assign)
		staff.POST("/rides/:id/cancel", rideHandler.Cancel)
		staff.GET("/rides/:id/events", staffHandler.Events)
		staff.POST("/assign-now", staffHandler.AssignNow)
		staff.GET("/settings", staffHandler.GetSettings)
		staff.PUT("/settings", staffHandler.PutSettings)
	}

	return r
}
