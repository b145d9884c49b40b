package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"warelay/middleware"
	"warelay/relay"
	"warelay/whatsapp"

	"github.com/gin-gonic/gin"
)

// Options tunes request handling that is not owned by the relay services.
type Options struct {
	AppSecret      string
	UploadDir      string
	MaxUploadBytes int64
}

type Handler struct {
	receiver *relay.Receiver
	sender   *relay.Sender
	media    *relay.MediaService
	inbox    *relay.Inbox
	opts     Options
}

func New(receiver *relay.Receiver, sender *relay.Sender, media *relay.MediaService, inbox *relay.Inbox, opts Options) *Handler {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	return &Handler{
		receiver: receiver,
		sender:   sender,
		media:    media,
		inbox:    inbox,
		opts:     opts,
	}
}

// providerBody returns the provider's error body as JSON when it is JSON.
func providerBody(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

// respondError maps relay errors onto the response codes the dashboard expects.
func respondError(c *gin.Context, err error, fallback string) {
	var vErr *relay.ValidationError
	var apiErr *whatsapp.APIError

	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Message})
	case errors.As(err, &apiErr):
		middleware.LoggerFrom(c).Warn().Int("status", apiErr.StatusCode).Msg(apiErr.Message())
		c.JSON(apiErr.StatusCode, gin.H{"error": providerBody(apiErr.Body)})
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
