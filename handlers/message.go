package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"warelay/middleware"
	"warelay/models"
	"warelay/relay"
	"warelay/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SendMessage handles POST /send.
func (h *Handler) SendMessage(c *gin.Context) {
	var req relay.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	resp, err := h.sender.Send(ctx, req)
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": resp})
}

// SendAudio handles POST /send-audio, multipart fields "to" and "audio".
func (h *Handler) SendAudio(c *gin.Context) {
	h.sendUpload(c, models.TypeAudio, "audio")
}

// SendImage handles POST /send-image, multipart fields "to", "image" and optional "caption".
func (h *Handler) SendImage(c *gin.Context) {
	h.sendUpload(c, models.TypeImage, "image")
}

func (h *Handler) sendUpload(c *gin.Context, kind models.MessageType, field string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes)
	if err := c.Request.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d bytes", h.opts.MaxUploadBytes)})
			return
		}
		middleware.LoggerFrom(c).Debug().Err(err).Str("kind", string(kind)).Msg("Unreadable multipart form")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}

	required := fmt.Sprintf("Phone number and %s file are required.", kind)
	to := c.PostForm("to")
	file, err := c.FormFile(field)
	if to == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": required})
		return
	}

	if err := os.MkdirAll(h.opts.UploadDir, 0o750); err != nil {
		respondError(c, err, "Failed to store upload")
		return
	}
	path := filepath.Join(h.opts.UploadDir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		respondError(c, err, "Failed to store upload")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	resp, err := h.sender.SendUpload(ctx, relay.Upload{
		To:      to,
		Kind:    kind,
		Path:    path,
		Caption: c.PostForm("caption"),
	})
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			middleware.LoggerFrom(c).Warn().Int("status", apiErr.StatusCode).Str("kind", string(kind)).Msg("Provider rejected upload")
			c.JSON(apiErr.StatusCode, gin.H{"error": apiErr.Message()})
			return
		}
		respondError(c, err, fmt.Sprintf("Failed to upload and send %s", kind))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": resp})
}

// GetMedia handles GET /media/:mediaId and streams the bytes with the provider's content type.
func (h *Handler) GetMedia(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	body, contentType, err := h.media.Open(ctx, c.Param("mediaId"))
	if errors.Is(err, whatsapp.ErrNoMediaURL) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media URL not found"})
		return
	}
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Str("mediaId", c.Param("mediaId")).Msg("Error fetching media")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch media"})
		return
	}
	defer body.Close() // nolint:errcheck

	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

// GetConversations handles GET /conversations.
func (h *Handler) GetConversations(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	convs, err := h.inbox.Conversations(ctx)
	if err != nil {
		respondError(c, err, "Failed to fetch conversations")
		return
	}
	c.JSON(http.StatusOK, convs)
}

// GetMessages handles GET /messages/:peer. Viewing a conversation marks it read.
func (h *Handler) GetMessages(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	msgs, err := h.inbox.History(ctx, c.Param("peer"))
	if err != nil {
		respondError(c, err, "Failed to fetch chat history")
		return
	}
	c.JSON(http.StatusOK, msgs)
}
