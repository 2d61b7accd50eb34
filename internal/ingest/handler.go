package ingest

import (
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handler is the webhook's HTTP entry point: one POST route accepting the webhook
// provider's enhanced-transaction payload (single object or batch array),
// HMAC-authenticated, handed off to the Pipeline without blocking on
// filter/score/position work.
type Handler struct {
	secret   []byte
	pipeline *Pipeline
	log      zerolog.Logger
}

func NewHandler(secret []byte, pipeline *Pipeline, log zerolog.Logger) *Handler {
	return &Handler{secret: secret, pipeline: pipeline, log: log.With().Str("component", "ingest_handler").Logger()}
}

// Register mounts the webhook route on r, grouped under a single *gin.Engine.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/webhooks/helius", h.handleWebhook)
}

// handleWebhook reads the raw body (needed before any JSON decoding, since
// the signature covers the exact bytes sent), verifies the HMAC header, and
// decodes a single-object-or-batch-array payload. Every
// well-formed event is hand off to the async pipeline and the handler
// returns immediately; it never waits on filter/score/position work.
func (h *Handler) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if len(h.secret) > 0 {
		sig := c.GetHeader("X-Helius-Signature")
		if sig == "" || !verifySignature(h.secret, body, sig) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	txs, err := decodeBody(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	accepted, dropped := 0, 0
	for _, tx := range txs {
		event, ok := toSwapEvent(tx)
		if !ok {
			dropped++
			continue
		}
		if h.pipeline.Submit(event) {
			accepted++
		}
	}

	h.log.Debug().Int("accepted", accepted).Int("dropped", dropped).Msg("webhook received")
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "dropped": dropped})
}

// WebhookSecret reads WEBHOOK_SECRET from the environment. An empty secret
// disables signature verification, the same dev-mode fallback as an
// unset auth token — acceptable locally, never in
// production.
func WebhookSecret() []byte {
	return []byte(os.Getenv("WEBHOOK_SECRET"))
}
