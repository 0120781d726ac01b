// README: Staff shift roster handlers.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"buggy/internal/modules/shift"
	"buggy/internal/types"
)

const dateLayout = "2006-01-02"

type ShiftHandler struct {
	shifts *shift.Service
}

func NewShiftHandler(svc *shift.Service) *ShiftHandler {
	return &ShiftHandler{shifts: svc}
}

type shiftReq struct {
	DriverID string `json:"driverId"`
	Date     string `json:"date"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

type shiftResp struct {
	ID        int64  `json:"id"`
	DriverID  string `json:"driverId"`
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Overnight bool   `json:"overnight"`
}

func toShiftResp(s shift.Shift) shiftResp {
	return shiftResp{
		ID:        s.ID,
		DriverID:  string(s.DriverID),
		Date:      s.Date.Format(dateLayout),
		Start:     shift.FormatClock(s.StartMinute),
		End:       shift.FormatClock(s.EndMinute),
		Overnight: s.Overnight(),
	}
}

func (h *ShiftHandler) Add(c *gin.Context) {
	var req shiftReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	start, err := shift.ParseClock(req.Start)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	end, err := shift.ParseClock(req.End)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	sh, err := h.shifts.Add(c.Request.Context(), shift.Shift{
		DriverID:    types.ID(req.DriverID),
		Date:        date,
		StartMinute: start,
		EndMinute:   end,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toShiftResp(sh))
}

// List returns a driver's shifts between from and to (inclusive dates),
// defaulting to the coming week.
func (h *ShiftHandler) List(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := today, today.AddDate(0, 0, 7)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = t
	}
	shifts, err := h.shifts.List(c.Request.Context(), types.ID(id), from, to)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]shiftResp, 0, len(shifts))
	for _, s := range shifts {
		out = append(out, toShiftResp(s))
	}
	writeJSON(c, http.StatusOK, gin.H{"shifts": out})
}

func (h *ShiftHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid shift id")
		return
	}
	if err := h.shifts.Delete(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
