// README: Guest ride handlers: request, status, cancel and rating.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"buggy/internal/http/middleware"
	"buggy/internal/modules/ride"
	"buggy/internal/poll"
	"buggy/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	RequesterName string         `json:"requesterName"`
	Room          string         `json:"room"`
	Pickup        string         `json:"pickup"`
	Destination   string         `json:"destination"`
	GuestCount    int            `json:"guestCount"`
	Notes         string         `json:"notes"`
	Segments      []ride.Segment `json:"segments"`
}

func actorOf(c *gin.Context) ride.Actor {
	uid := types.ID(middleware.CallerUID(c))
	switch middleware.CallerRole(c) {
	case middleware.RoleStaff:
		return ride.Actor{Type: ride.ActorStaff, ID: &uid}
	case middleware.RoleDriver:
		return ride.Actor{Type: ride.ActorDriver, ID: &uid}
	default:
		return ride.Actor{Type: ride.ActorGuest, ID: &uid}
	}
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		RequesterName: req.RequesterName,
		Room:          req.Room,
		Pickup:        req.Pickup,
		Destination:   req.Destination,
		GuestCount:    req.GuestCount,
		Notes:         req.Notes,
		Segments:      req.Segments,
		Actor:         actorOf(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeRide(c, http.StatusCreated, r)
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeRide(c, http.StatusOK, r)
}

// List returns every ride of one requester, oldest first.
func (h *RideHandler) List(c *gin.Context) {
	name := strings.TrimSpace(c.Query("requester"))
	if name == "" {
		writeError(c, http.StatusBadRequest, "missing requester")
		return
	}
	rides, err := h.rides.ListByRequester(c.Request.Context(), name)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": poll.NewRides(rides, time.Now())})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.StepCommand{RideID: id, Actor: actorOf(c)})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeRide(c, http.StatusOK, r)
}

type rateReq struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

func (h *RideHandler) Rate(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.Rate(c.Request.Context(), ride.RateCommand{RideID: id, Rating: req.Rating, Feedback: req.Feedback})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeRide(c, http.StatusOK, r)
}
