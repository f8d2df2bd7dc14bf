package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"comlab-status-backend/internal/auth"
	"comlab-status-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(h.log))

	srv := h.cfg.Server
	limit, burst := rate.Limit(srv.RateLimitPerSec), srv.RateBurst
	if limit <= 0 || burst <= 0 {
		// 10 requests per second with a burst of 5
		limit, burst = 10, 5
	}
	rateLimiter := mw.RateLimiter(limit, burst, srv.RequestIPHeader)

	cacheTTL := srv.CacheTTL()
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	caching := mw.Cache(cache.New(cacheTTL, 2*cacheTTL), cacheTTL)

	admin := auth.Require(h.cfg.Auth.SigningKey, h.cfg.Auth.Issuer, auth.RoleAdmin)

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/labs", h.GetLabs)
		api.GET("/labs/validate/:labNumber", h.ValidateLab)
		api.GET("/labs/:labNumber", h.GetLab)
		api.POST("/labs/scan-instructor", h.ScanInstructor)
		api.POST("/labs/:labNumber/release", h.ReleaseLab)
		api.POST("/labs/initialize", admin, h.InitializeLabs)

		api.GET("/instructors/:id", h.GetInstructor)
		api.GET("/instructors", admin, h.ListInstructors)
		api.POST("/instructors", admin, h.CreateInstructor)
		api.PUT("/instructors/:id", admin, h.UpdateInstructor)
		api.DELETE("/instructors/:id", admin, h.DeleteInstructor)

		api.GET("/history", admin, caching, h.GetHistory)
		api.GET("/history/export", admin, h.ExportHistory)

		api.POST("/qr-code/instructor", admin, h.InstructorQR)
		api.POST("/qr-code/lab-key", admin, h.LabKeyQR)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
