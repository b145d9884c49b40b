package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"warelay/middleware"
	"warelay/relay"
	"warelay/webhook"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// VerifyWebhook answers the subscription handshake: GET /webhook?hub.mode=&hub.verify_token=&hub.challenge=
func (h *Handler) VerifyWebhook(c *gin.Context) {
	challenge, err := h.receiver.Verify(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	switch {
	case errors.Is(err, relay.ErrVerifyIncomplete):
		c.Status(http.StatusBadRequest)
	case err != nil:
		c.Status(http.StatusForbidden)
	default:
		c.String(http.StatusOK, challenge)
	}
}

// ReceiveWebhook handles POST /webhook deliveries.
func (h *Handler) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.LoggerFrom(c).Warn().Int64("limit", tooLarge.Limit).Msg("Webhook body too large")
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusBadRequest)
		return
	}

	if h.opts.AppSecret != "" && !webhook.ValidSignature(h.opts.AppSecret, body, c.GetHeader(webhook.SignatureHeader)) {
		middleware.LoggerFrom(c).Warn().Msg("Webhook signature mismatch")
		c.Status(http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	err = h.receiver.Ingest(ctx, body)
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, webhook.ErrUnknownObject):
		c.Status(http.StatusNotFound)
	case errors.Is(err, webhook.ErrMalformed):
		c.Status(http.StatusBadRequest)
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("Error handling webhook")
		c.Status(http.StatusInternalServerError)
	}
}
