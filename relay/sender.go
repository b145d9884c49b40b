package relay

import (
	"context"
	"errors"
	"fmt"
	"os"

	"warelay/metrics"
	"warelay/models"
	"warelay/whatsapp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

const (
	defaultTemplate = "hello_world"

	helloWorldText = "Hello World\n\nWelcome and congratulations!! This message demonstrates your ability to send a WhatsApp message notification from the Cloud API, hosted by Meta. Thank you for taking the time to test with us."

	photoPlaceholder = "📸 Photo"
)

// SendRequest is an outbound message as the dashboard describes it.
type SendRequest struct {
	To           string `json:"to"`
	Type         string `json:"type"`
	TemplateName string `json:"templateName"`
	TextBody     string `json:"textBody"`
	MediaID      string `json:"mediaId"`
	Caption      string `json:"caption"`
}

// Upload is a media file received from the dashboard, already saved at Path.
type Upload struct {
	To      string
	Kind    models.MessageType
	Path    string
	Caption string
}

// Sender delivers outbound messages and records the ones the provider accepted.
type Sender struct {
	graph            Graph
	store            MessageStore
	notifier         Notifier
	metrics          *metrics.Metrics
	templateLanguage string
	logger           zerolog.Logger
}

func NewSender(graph Graph, store MessageStore, notifier Notifier, m *metrics.Metrics, templateLanguage string, logger zerolog.Logger) *Sender {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Sender{
		graph:            graph,
		store:            store,
		notifier:         notifier,
		metrics:          m,
		templateLanguage: templateLanguage,
		logger:           logger.With().Str("component", "sender").Logger(),
	}
}

// Send validates req, makes one provider call and persists the result with status sent.
// Provider failures come back as *whatsapp.APIError.
func (s *Sender) Send(ctx context.Context, req SendRequest) (*whatsapp.SendResponse, error) {
	out, record, err := s.build(req)
	if err != nil {
		s.metrics.Send(req.Type, "invalid")
		return nil, err
	}

	resp, err := s.graph.SendMessage(ctx, out)
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			s.metrics.Send(out.Type, "provider_error")
		} else {
			s.metrics.Send(out.Type, "transport_error")
		}
		s.logger.Error().Err(err).Str("type", out.Type).Str("to", out.To).Msg("Error sending message")
		return nil, err
	}

	messageID := resp.FirstMessageID()
	if messageID == "" {
		s.metrics.Send(out.Type, "no_message_id")
		s.logger.Warn().Str("to", out.To).Msg("Provider accepted message without an id, not recording it")
		return resp, nil
	}

	record.MessageID = messageID
	if err := s.store.Create(ctx, record); err != nil {
		s.metrics.Send(out.Type, "store_error")
		return nil, fmt.Errorf("record sent message %s: %w", messageID, err)
	}

	s.metrics.Send(out.Type, "sent")
	s.logger.Info().Str("type", out.Type).Str("to", out.To).Str("messageId", messageID).Msg("Message sent")
	s.notifier.Notify(EventMessageSent, record.To, record)
	return resp, nil
}

// SendUpload uploads a saved file, sends a message referencing it and removes the file
// whatever the outcome.
func (s *Sender) SendUpload(ctx context.Context, up Upload) (*whatsapp.SendResponse, error) {
	defer func() {
		if err := os.Remove(up.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", up.Path).Msg("Error removing temporary upload")
		}
	}()

	if up.To == "" || up.Path == "" {
		return nil, invalid(fmt.Sprintf("Phone number and %s file are required.", up.Kind))
	}

	var filename, contentType string
	switch up.Kind {
	case models.TypeAudio:
		filename, contentType = "audio.ogg", "audio/ogg"
	case models.TypeImage:
		mt, err := mimetype.DetectFile(up.Path)
		if err != nil {
			return nil, fmt.Errorf("detect image type: %w", err)
		}
		filename, contentType = "image"+mt.Extension(), mt.String()
	default:
		return nil, invalid(fmt.Sprintf("Unsupported upload type: %s", up.Kind))
	}

	f, err := os.Open(up.Path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close() // nolint:errcheck

	mediaID, err := s.graph.UploadMedia(ctx, f, filename, contentType)
	if err != nil {
		s.metrics.Send(string(up.Kind), "upload_error")
		s.logger.Error().Err(err).Str("kind", string(up.Kind)).Msg("Error uploading media")
		return nil, err
	}
	s.logger.Debug().Str("mediaId", mediaID).Str("contentType", contentType).Msg("Media uploaded")

	return s.Send(ctx, SendRequest{
		To:      up.To,
		Type:    string(up.Kind),
		MediaID: mediaID,
		Caption: up.Caption,
	})
}

func (s *Sender) build(req SendRequest) (*whatsapp.OutboundMessage, *models.Message, error) {
	if req.To == "" {
		return nil, nil, invalid("Phone number (to) is required.")
	}
	if req.Type == "" {
		req.Type = string(models.TypeTemplate)
	}

	out := &whatsapp.OutboundMessage{
		MessagingProduct: whatsapp.MessagingProduct,
		To:               req.To,
		Type:             req.Type,
	}
	record := &models.Message{
		From:   s.graph.PhoneNumberID(),
		To:     req.To,
		Type:   models.MessageType(req.Type),
		Status: models.StatusSent,
	}

	switch models.MessageType(req.Type) {
	case models.TypeTemplate:
		name := req.TemplateName
		if name == "" {
			name = defaultTemplate
		}
		out.Template = &whatsapp.Template{Name: name, Language: whatsapp.Language{Code: s.templateLanguage}}
		record.Text = templateText(name)
	case models.TypeText:
		if req.TextBody == "" {
			return nil, nil, invalid("textBody is required for text messages.")
		}
		out.Text = &whatsapp.Text{Body: req.TextBody}
		record.Text = req.TextBody
	case models.TypeAudio:
		if req.MediaID == "" {
			return nil, nil, invalid("mediaId is required for audio messages.")
		}
		out.Audio = &whatsapp.MediaRef{ID: req.MediaID}
		record.MediaID = req.MediaID
	case models.TypeImage:
		if req.MediaID == "" {
			return nil, nil, invalid("mediaId is required for image messages.")
		}
		out.Image = &whatsapp.MediaRef{ID: req.MediaID, Caption: req.Caption}
		record.MediaID = req.MediaID
		record.Text = req.Caption
		if record.Text == "" {
			record.Text = photoPlaceholder
		}
	default:
		return nil, nil, invalid(fmt.Sprintf("Unsupported message type: %s", req.Type))
	}
	return out, record, nil
}

func templateText(name string) string {
	if name == defaultTemplate {
		return helloWorldText
	}
	return fmt.Sprintf("[Template: %s]", name)
}
