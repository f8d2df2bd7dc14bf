package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comlab-status-backend/internal/qr"
)

type instructorQRRequest struct {
	InstructorID string `json:"instructorId" binding:"required"`
}

// InstructorQR returns the badge link for a registered instructor.
func (h *Handler) InstructorQR(c *gin.Context) {
	var req instructorQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in, err := h.store.GetInstructor(c.Request.Context(), req.InstructorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	link, err := qr.InstructorURL(h.cfg.Server.PublicBaseURL, *in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qrData": link, "instructor": in})
}

type labKeyRequest struct {
	LabNumber string `json:"labNumber" binding:"required"`
}

// LabKeyQR returns a fresh lab key payload for an existing lab.
func (h *Handler) LabKeyQR(c *gin.Context) {
	var req labKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	lab, err := h.registry.Get(c.Request.Context(), req.LabNumber)
	if err != nil {
		h.fail(c, err)
		return
	}
	payload, err := qr.LabKeyPayload(lab.LabNumber, h.now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qrData": payload, "labNumber": lab.LabNumber})
}
