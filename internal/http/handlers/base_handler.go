// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"buggy/internal/modules/driver"
	"buggy/internal/modules/matching"
	"buggy/internal/modules/notify"
	"buggy/internal/modules/ride"
	"buggy/internal/modules/shift"
	"buggy/internal/poll"
	"buggy/internal/types"
)

type errorResponse struct {
	Error        string     `json:"error"`
	ExistingRide *poll.Ride `json:"existingRide,omitempty"`
}

// isValidID ensures IDs are alphanumeric and at most 32 chars (matches the ride id generator).
func isValidID(v string) bool {
	if v == "" || len(v) > 32 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return false
	}
	return true
}

// rideID reads :id and answers 400 when it is malformed.
func rideID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return "", false
	}
	return types.ID(id), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeRide(c *gin.Context, status int, r *ride.Ride) {
	writeJSON(c, status, poll.NewRide(r, time.Now()))
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(c *gin.Context, err error) {
	var dup *ride.DuplicateActiveRideError
	switch {
	case errors.As(err, &dup) && dup.Existing != nil:
		existing := poll.NewRide(dup.Existing, time.Now())
		writeJSON(c, http.StatusConflict, errorResponse{Error: err.Error(), ExistingRide: &existing})
	case errors.Is(err, ride.ErrBadRequest), errors.Is(err, ride.ErrInvalidRoute),
		errors.Is(err, driver.ErrBadRequest), errors.Is(err, shift.ErrBadRequest),
		errors.Is(err, matching.ErrInvalidSettings), errors.Is(err, notify.ErrInvalidSubscription):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotAssignedDriver), errors.Is(err, ride.ErrNotRideOwner):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrNotFound), errors.Is(err, driver.ErrNotFound), errors.Is(err, shift.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case ride.IsConflict(err), errors.Is(err, ride.ErrAlreadyRated):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, matching.ErrNoAdmissibleDriver):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
