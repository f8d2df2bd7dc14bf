package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"comlab-status-backend/config"
	"comlab-status-backend/internal/apperr"
	"comlab-status-backend/internal/history"
	"comlab-status-backend/internal/occupancy"
	"comlab-status-backend/internal/store"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Store    store.Store
	Registry *occupancy.Registry
	History  *history.Service
	WebPush  *webpush.Options
	Config   *config.Config
	Logger   zerolog.Logger
	Clock    func() time.Time
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	registry *occupancy.Registry
	history  *history.Service
	webpush  *webpush.Options
	cfg      *config.Config
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Config == nil {
		d.Config = &config.Config{}
	}
	return &Handler{
		store:    d.Store,
		registry: d.Registry,
		history:  d.History,
		webpush:  d.WebPush,
		cfg:      d.Config,
		log:      d.Logger.With().Str("component", "api").Logger(),
		now:      d.Clock,
	}
}

// fail writes err as a JSON error. Domain kinds map to 4xx/503, anything
// else is logged and reported as 500.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := apperr.KindOf(err)
	switch kind {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUpstreamUnavailable:
		status = http.StatusServiceUnavailable
	default:
		switch {
		case errors.Is(err, store.ErrNotFound):
			status, kind = http.StatusNotFound, apperr.KindNotFound
		case errors.Is(err, store.ErrDuplicate):
			status, kind = http.StatusConflict, apperr.KindConflict
		}
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "internal server error"})
		return
	}

	body := gin.H{"error": err.Error(), "kind": kind}
	if kind == apperr.KindUpstreamUnavailable {
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("upstream unavailable")
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": apperr.KindValidation})
}
