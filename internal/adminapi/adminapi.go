// Package adminapi exposes the operator-facing control surface: config
// draft/activate and the breaker manual override, grouped behind
// the same bearer-token middleware.
package adminapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/internal/breaker"
	"github.com/walltrack/engine/internal/config"
	"github.com/walltrack/engine/internal/db"
	"github.com/walltrack/engine/internal/pricemonitor"
	"github.com/walltrack/engine/internal/swapqueue"
	"github.com/walltrack/engine/internal/tokencache"
	"github.com/walltrack/engine/internal/walletcache"
	"github.com/walltrack/engine/pkg/models"
)

type Handler struct {
	cfgStore *config.Store
	breaker  *breaker.Breaker
	wallets  *walletcache.Store
	tokens   *tokencache.Store
	monitor  *pricemonitor.Monitor
	queue    *swapqueue.Queue
	dbStore  *db.Store

	lastWebhookAt func() time.Time

	log zerolog.Logger
}

func New(
	cfgStore *config.Store,
	b *breaker.Breaker,
	wallets *walletcache.Store,
	tokens *tokencache.Store,
	monitor *pricemonitor.Monitor,
	queue *swapqueue.Queue,
	dbStore *db.Store,
	lastWebhookAt func() time.Time,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		cfgStore:      cfgStore,
		breaker:       b,
		wallets:       wallets,
		tokens:        tokens,
		monitor:       monitor,
		queue:         queue,
		dbStore:       dbStore,
		lastWebhookAt: lastWebhookAt,
		log:           log.With().Str("component", "adminapi").Logger(),
	}
}

// AuthMiddleware reads a bearer token once from the environment at startup,
// compared in constant time, with requests allowed through unauthenticated
// only when no token was configured (local development).
func AuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix ||
			subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (h *Handler) Register(r *gin.Engine, authToken string) {
	admin := r.Group("/admin", AuthMiddleware(authToken))
	admin.GET("/config/active", h.getActiveConfig)
	admin.GET("/config/draft", h.getDraft)
	admin.PUT("/config/draft", h.putDraft)
	admin.POST("/config/activate", h.activateDraft)
	admin.DELETE("/config/draft", h.discardDraft)
	admin.POST("/breaker/force", h.forceBreaker)

	r.GET("/health", h.health)
}

func (h *Handler) getActiveConfig(c *gin.Context) {
	snap, ok := h.cfgStore.Active()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active config"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) getDraft(c *gin.Context) {
	snap, ok := h.cfgStore.Draft()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending draft"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) putDraft(c *gin.Context) {
	var snap models.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config body", "details": err.Error()})
		return
	}
	out, err := h.cfgStore.SaveDraft(c.Request.Context(), snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) activateDraft(c *gin.Context) {
	out, err := h.cfgStore.Activate(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNoDraft):
			c.JSON(http.StatusConflict, gin.H{"error": "no draft to activate"})
		case errors.Is(err, apperr.ErrInvalidConfig):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	h.log.Info().Int64("version", out.Version).Msg("config activated via admin api")
	c.JSON(http.StatusOK, out)
}

func (h *Handler) discardDraft(c *gin.Context) {
	if err := h.cfgStore.DiscardDraft(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) forceBreaker(c *gin.Context) {
	var req struct {
		Action string `json:"action"` // "activate" or "deactivate"
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	switch req.Action {
	case "activate":
		h.breaker.ForceActivate(req.Reason)
	case "deactivate":
		h.breaker.ForceDeactivate()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be activate or deactivate"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": h.breaker.IsActive()})
}

// health reports per-component status: one entry per component
// SPEC_FULL.md names.
func (h *Handler) health(c *gin.Context) {
	dbOK := h.dbStore != nil && h.dbStore.Pool != nil

	breakerActive := false
	if h.breaker != nil {
		breakerActive = h.breaker.IsActive()
	}

	var lastWebhook *time.Time
	if h.lastWebhookAt != nil {
		if t := h.lastWebhookAt(); !t.IsZero() {
			lastWebhook = &t
		}
	}

	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "operational", false: "degraded"}[dbOK],
		"components": gin.H{
			"db_connected":     dbOK,
			"wallet_cache_size": h.wallets.Size(),
			"breaker_active":   breakerActive,
			"queue_depth":      h.queue.Len(),
			"last_webhook_at":  lastWebhook,
		},
	})
}
