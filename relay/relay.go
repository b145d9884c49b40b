// Package relay moves messages between the WhatsApp Cloud API and the local message log.
package relay

import (
	"context"
	"io"

	"warelay/models"
	"warelay/whatsapp"
)

// Event types published to dashboard subscribers.
const (
	EventMessageReceived = "message_received"
	EventMessageSent     = "message_sent"
	EventStatusUpdated   = "status_updated"
	EventMessagesRead    = "messages_read"
)

// MessageStore is the write side of the message log.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	UpdateStatus(ctx context.Context, messageID string, status models.MessageStatus) (bool, error)
}

// HistoryStore is the read side of the message log.
type HistoryStore interface {
	Conversations(ctx context.Context) ([]models.Conversation, error)
	History(ctx context.Context, peer string) ([]models.Message, error)
	MarkRead(ctx context.Context, peer string) (int64, error)
}

// Graph is the subset of the Cloud API the relay calls.
type Graph interface {
	PhoneNumberID() string
	SendMessage(ctx context.Context, msg *whatsapp.OutboundMessage) (*whatsapp.SendResponse, error)
	UploadMedia(ctx context.Context, r io.Reader, filename, contentType string) (string, error)
	MediaInfo(ctx context.Context, mediaID string) (*whatsapp.MediaInfo, error)
	DownloadMedia(ctx context.Context, url string) (io.ReadCloser, string, error)
}

// Notifier publishes changes to live subscribers. Implementations must not block.
type Notifier interface {
	Notify(eventType, peer string, payload any)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(string, string, any) {}

// StatusChange is the payload of status_updated events.
type StatusChange struct {
	MessageID string               `json:"messageId"`
	Status    models.MessageStatus `json:"status"`
}

// ReadReceipt is the payload of messages_read events.
type ReadReceipt struct {
	Peer  string `json:"peer"`
	Count int64  `json:"count"`
}

// ValidationError is a request the relay refuses before calling out.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
