// README: Staff dispatch board, manual assignment and dispatch settings.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"buggy/internal/modules/driver"
	"buggy/internal/modules/matching"
	"buggy/internal/modules/ride"
	"buggy/internal/poll"
	"buggy/internal/types"
)

// recentWindow keeps finished rides on the board long enough for pollers to
// see the final transition.
const recentWindow = 10 * time.Minute

type StaffHandler struct {
	rides    *ride.Service
	drivers  *driver.Service
	matching *matching.Service
}

func NewStaffHandler(rideSvc *ride.Service, driverSvc *driver.Service, matchingSvc *matching.Service) *StaffHandler {
	return &StaffHandler{rides: rideSvc, drivers: driverSvc, matching: matchingSvc}
}

func (h *StaffHandler) Board(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()

	active, err := h.rides.ListActive(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	finished, err := h.rides.ListFinishedSince(ctx, now.Add(-recentWindow))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	active = append(active, finished...)
	views, err := h.drivers.Snapshot(ctx)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, poll.Board{
		GeneratedAt: poll.Millis(now),
		Rides:       poll.NewRides(active, now),
		Drivers:     poll.NewDrivers(views),
	})
}

func (h *StaffHandler) Drivers(c *gin.Context) {
	views, err := h.drivers.Snapshot(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": poll.NewDrivers(views)})
}

func (h *StaffHandler) DeactivateDriver(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	if err := h.drivers.Deactivate(c.Request.Context(), types.ID(id)); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignReq struct {
	DriverID   string `json:"driverId"`
	ETAMinutes *int   `json:"etaMinutes"`
	Arriving   bool   `json:"arriving"`
	Force      bool   `json:"force"`
}

func (h *StaffHandler) Assign(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DriverID != "" {
		if _, err := h.drivers.Active(c.Request.Context(), types.ID(req.DriverID)); err != nil {
			writeServiceError(c, err)
			return
		}
	}
	r, err := h.rides.Assign(c.Request.Context(), ride.AssignCommand{
		RideID:     id,
		DriverID:   types.ID(req.DriverID),
		ETAMinutes: req.ETAMinutes,
		Arriving:   req.Arriving,
		Force:      req.Force,
		Actor:      actorOf(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeRide(c, http.StatusOK, r)
}

func (h *StaffHandler) Events(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	events, err := h.rides.Events(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		item := gin.H{
			"from":      e.FromStatus,
			"to":        e.ToStatus,
			"actorType": e.ActorType,
			"at":        poll.Millis(e.CreatedAt),
		}
		if e.ActorID != nil {
			item["actorId"] = *e.ActorID
		}
		out = append(out, item)
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

type reportResp struct {
	Outcome   string      `json:"outcome"`
	Pending   int         `json:"pending"`
	Planned   int         `json:"planned"`
	Failed    int         `json:"failed"`
	Committed []poll.Ride `json:"committed"`
}

// AssignNow runs one batch over every searching ride, ignoring wait time and cooldown.
func (h *StaffHandler) AssignNow(c *gin.Context) {
	rep, err := h.matching.AssignNow(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, reportResp{
		Outcome:   string(rep.Outcome),
		Pending:   rep.Pending,
		Planned:   rep.Planned,
		Failed:    rep.Failed,
		Committed: poll.NewRides(rep.Committed, time.Now()),
	})
}

func (h *StaffHandler) GetSettings(c *gin.Context) {
	st, err := h.matching.Settings(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (h *StaffHandler) PutSettings(c *gin.Context) {
	var st matching.Settings
	if err := c.ShouldBindJSON(&st); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	saved, err := h.matching.UpdateSettings(c.Request.Context(), st)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, saved)
}
