package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"comlab-status-backend/internal/apperr"
	"comlab-status-backend/internal/occupancy"
	"comlab-status-backend/internal/parse"
	"comlab-status-backend/internal/qr"
)

// GetLabs lists every lab in numeric order.
func (h *Handler) GetLabs(c *gin.Context) {
	labs, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, labs)
}

// GetLab returns a single lab.
func (h *Handler) GetLab(c *gin.Context) {
	lab, err := h.registry.Get(c.Request.Context(), c.Param("labNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lab)
}

// ValidateLab reports whether a scanned lab number names an existing lab.
func (h *Handler) ValidateLab(c *gin.Context) {
	raw := c.Param("labNumber")
	lab, err := h.registry.Get(c.Request.Context(), raw)
	switch apperr.KindOf(err) {
	case "":
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true, "labNumber": lab.LabNumber, "lab": lab})
	case apperr.KindNotFound, apperr.KindValidation:
		c.JSON(http.StatusOK, gin.H{"valid": false, "labNumber": raw, "error": err.Error()})
	default:
		h.fail(c, err)
	}
}

type initializeRequest struct {
	Count int `json:"count"`
}

// InitializeLabs creates the configured labs once.
func (h *Handler) InitializeLabs(c *gin.Context) {
	var req initializeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if req.Count == 0 {
		req.Count = h.cfg.Labs.Count
	}

	labs, err := h.registry.Initialize(c.Request.Context(), req.Count)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, labs)
}

type scanRequest struct {
	QRData       string  `json:"qrData"`
	InstructorID string  `json:"instructorId"`
	Instructor   string  `json:"instructor"`
	LabNumber    string  `json:"labNumber"`
	TimeIn       *string `json:"timeIn"`
}

// ScanInstructor toggles an instructor into or out of a lab.
func (h *Handler) ScanInstructor(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	occ := occupancy.OccupyRequest{
		LabNumber:      req.LabNumber,
		InstructorID:   req.InstructorID,
		InstructorName: req.Instructor,
	}
	if strings.TrimSpace(req.QRData) != "" {
		data, err := qr.ParseScan(req.QRData)
		if err != nil {
			h.fail(c, apperr.Validation("scan", "%v", err))
			return
		}
		occ.InstructorID = data.InstructorID
		occ.InstructorName = data.DisplayName()
	} else {
		occ.TimeIn = h.clientTimeIn(req.TimeIn)
	}

	res, err := h.registry.Occupy(c.Request.Context(), occ)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"action":  res.Action,
		"lab":     res.Lab,
		"message": scanMessage(res, occ.InstructorName),
	})
}

// clientTimeIn returns the caller's check-in time, or nil when it is absent
// or unreadable so the registry stamps the scan with the server clock.
// Badge scans never carry one.
func (h *Handler) clientTimeIn(raw *string) *time.Time {
	if raw == nil || !parse.Present(*raw) {
		return nil
	}
	t, err := parse.Timestamp(*raw, h.cfg.Labs.Location())
	if err != nil {
		h.log.Warn().Str("time_in", *raw).Msg("unreadable timeIn, using server time")
		return nil
	}
	return &t
}

func scanMessage(res occupancy.OccupyResult, name string) string {
	if res.Action == occupancy.ActionLogout {
		return fmt.Sprintf("%s checked out of Lab %s", name, res.Lab.LabNumber)
	}
	if res.Lab.TimeIn == nil {
		return fmt.Sprintf("%s checked in to Lab %s", name, res.Lab.LabNumber)
	}
	return fmt.Sprintf("%s checked in to Lab %s at %s", name, res.Lab.LabNumber, res.Lab.TimeIn.Format(time.Kitchen))
}

// ReleaseLab frees a lab regardless of who holds it.
func (h *Handler) ReleaseLab(c *gin.Context) {
	lab, err := h.registry.Release(c.Request.Context(), c.Param("labNumber"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lab": lab})
}
