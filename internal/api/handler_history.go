package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"comlab-status-backend/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetHistory returns the reconciled sessions, optionally filtered by ?q=.
func (h *Handler) GetHistory(c *gin.Context) {
	sessions, err := h.history.Sessions(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// ExportHistory streams the reconciled sessions as a spreadsheet.
func (h *Handler) ExportHistory(c *gin.Context) {
	sessions, err := h.history.Sessions(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteHistory(&buf, sessions); err != nil {
		h.fail(c, err)
		return
	}
	filename := fmt.Sprintf("comlab-history-%s.xlsx", h.now().In(h.cfg.Labs.Location()).Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
