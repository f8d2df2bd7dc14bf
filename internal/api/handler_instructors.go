package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"comlab-status-backend/internal/model"
)

type instructorRequest struct {
	Name     string `json:"name" binding:"required"`
	Lastname string `json:"lastname" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
}

func (r instructorRequest) apply(in *model.Instructor) {
	in.Name = strings.TrimSpace(r.Name)
	in.Lastname = strings.TrimSpace(r.Lastname)
	in.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// ListInstructors returns every instructor ordered by last name.
func (h *Handler) ListInstructors(c *gin.Context) {
	instructors, err := h.store.ListInstructors(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instructors)
}

// GetInstructor returns one instructor.
func (h *Handler) GetInstructor(c *gin.Context) {
	in, err := h.store.GetInstructor(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, in)
}

// CreateInstructor registers an instructor under a new id.
func (h *Handler) CreateInstructor(c *gin.Context) {
	var req instructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := model.Instructor{ID: uuid.NewString()}
	req.apply(&in)
	if err := h.store.CreateInstructor(c.Request.Context(), &in); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, in)
}

// UpdateInstructor replaces an instructor's name and email.
func (h *Handler) UpdateInstructor(c *gin.Context) {
	var req instructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := model.Instructor{ID: c.Param("id")}
	req.apply(&in)
	if err := h.store.UpdateInstructor(c.Request.Context(), &in); err != nil {
		h.fail(c, err)
		return
	}
	updated, err := h.store.GetInstructor(c.Request.Context(), in.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteInstructor removes an instructor.
func (h *Handler) DeleteInstructor(c *gin.Context) {
	if err := h.store.DeleteInstructor(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
