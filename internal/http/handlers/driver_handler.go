// README: Driver handlers: session, heartbeat, GPS and ride steps.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"buggy/internal/http/middleware"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/ride"
	"buggy/internal/poll"
	"buggy/internal/types"
)

type DriverHandler struct {
	drivers *driver.Service
	rides   *ride.Service
}

func NewDriverHandler(driverSvc *driver.Service, rideSvc *ride.Service) *DriverHandler {
	return &DriverHandler{drivers: driverSvc, rides: rideSvc}
}

func callerDriver(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

type loginReq struct {
	Name string `json:"name"`
}

func (h *DriverHandler) Login(c *gin.Context) {
	var req loginReq
	// body is optional
	_ = c.ShouldBindJSON(&req)
	v, err := h.drivers.Login(c.Request.Context(), callerDriver(c), req.Name)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, poll.NewDriver(v))
}

func (h *DriverHandler) Logout(c *gin.Context) {
	if err := h.drivers.Logout(c.Request.Context(), callerDriver(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DriverHandler) Heartbeat(c *gin.Context) {
	if err := h.drivers.Heartbeat(c.Request.Context(), callerDriver(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (h *DriverHandler) Location(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	p := types.Point{Lat: *req.Lat, Lng: *req.Lng}
	if err := h.drivers.UpdateLocation(c.Request.Context(), callerDriver(c), p); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DriverHandler) Me(c *gin.Context) {
	v, err := h.drivers.View(c.Request.Context(), callerDriver(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, poll.NewDriver(v))
}

// Rides lists the caller's committed rides and, unless mine=true, the
// searching rides open for acceptance.
func (h *DriverHandler) Rides(c *gin.Context) {
	ctx := c.Request.Context()
	mine, err := h.rides.ListByDriver(ctx, callerDriver(c), ride.CommittedStatuses...)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	now := time.Now()
	resp := gin.H{"assigned": poll.NewRides(mine, now)}
	if c.Query("mine") != "true" {
		open, err := h.rides.ListByStatus(ctx, ride.StatusSearching)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		resp["open"] = poll.NewRides(open, now)
	}
	writeJSON(c, http.StatusOK, resp)
}

type acceptReq struct {
	ETAMinutes *int `json:"etaMinutes"`
	Arriving   bool `json:"arriving"`
}

func (h *DriverHandler) Accept(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	var req acceptReq
	_ = c.ShouldBindJSON(&req)
	r, err := h.rides.Assign(c.Request.Context(), ride.AssignCommand{
		RideID:     id,
		DriverID:   callerDriver(c),
		ETAMinutes: req.ETAMinutes,
		Arriving:   req.Arriving,
		Actor:      actorOf(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeRide(c, http.StatusOK, r)
}

type stepFunc func(ctx context.Context, cmd ride.StepCommand) (*ride.Ride, error)

func (h *DriverHandler) step(fn stepFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := rideID(c)
		if !ok {
			return
		}
		r, err := fn(c.Request.Context(), ride.StepCommand{RideID: id, Actor: actorOf(c)})
		if err != nil {
			writeServiceError(c, err)
			return
		}
		writeRide(c, http.StatusOK, r)
	}
}

func (h *DriverHandler) Arriving() gin.HandlerFunc { return h.step(h.rides.MarkArriving) }
func (h *DriverHandler) Delayed() gin.HandlerFunc  { return h.step(h.rides.MarkAssigned) }
func (h *DriverHandler) PickUp() gin.HandlerFunc   { return h.step(h.rides.PickUp) }
func (h *DriverHandler) Advance() gin.HandlerFunc  { return h.step(h.rides.Advance) }
func (h *DriverHandler) Complete() gin.HandlerFunc { return h.step(h.rides.Complete) }
