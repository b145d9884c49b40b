package relay

import (
	"context"
	"errors"
	"fmt"

	"warelay/database"
	"warelay/metrics"
	"warelay/models"
	"warelay/webhook"

	"github.com/rs/zerolog"
)

var (
	// ErrVerifyIncomplete means hub.mode or hub.verify_token was absent.
	ErrVerifyIncomplete = errors.New("verification request is missing mode or token")
	// ErrVerifyRejected means the mode or token did not match.
	ErrVerifyRejected = errors.New("verification token mismatch")
)

// Receiver turns webhook deliveries into message log writes.
type Receiver struct {
	store       MessageStore
	notifier    Notifier
	metrics     *metrics.Metrics
	mode        webhook.Mode
	verifyToken string
	logger      zerolog.Logger
}

func NewReceiver(store MessageStore, notifier Notifier, m *metrics.Metrics, mode webhook.Mode, verifyToken string, logger zerolog.Logger) *Receiver {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Receiver{
		store:       store,
		notifier:    notifier,
		metrics:     m,
		mode:        mode,
		verifyToken: verifyToken,
		logger:      logger.With().Str("component", "receiver").Logger(),
	}
}

// Verify answers the subscription handshake and returns the challenge to echo back.
func (r *Receiver) Verify(mode, token, challenge string) (string, error) {
	if mode == "" || token == "" {
		return "", ErrVerifyIncomplete
	}
	if mode != "subscribe" || token != r.verifyToken {
		r.logger.Warn().Str("mode", mode).Msg("Webhook verification rejected")
		return "", ErrVerifyRejected
	}
	r.logger.Info().Msg("Webhook verified")
	return challenge, nil
}

// Ingest parses body and applies every event it yields. Nothing is retried.
// In FirstOnly mode any persistence failure fails the delivery. In Batch mode
// every event is attempted, a message that is already stored counts as applied,
// and the remaining failures are returned together.
func (r *Receiver) Ingest(ctx context.Context, body []byte) error {
	events, err := webhook.Parse(body, r.mode)
	if err != nil {
		r.metrics.Webhook("payload", "rejected")
		r.logger.Warn().Err(err).Int("bytes", len(body)).Msg("Rejected webhook payload")
		return err
	}

	var errs []error
	for _, ev := range events {
		var err error
		switch e := ev.(type) {
		case webhook.InboundMessage:
			err = r.storeInbound(ctx, e)
		case webhook.StatusUpdate:
			err = r.applyStatus(ctx, e)
		case webhook.Unrecognized:
			r.metrics.Webhook("payload", "ignored")
			r.logger.Info().Str("reason", e.Reason).Msg("Ignoring webhook payload")
		}
		if err == nil {
			continue
		}
		if r.mode != webhook.Batch {
			return err
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Receiver) storeInbound(ctx context.Context, in webhook.InboundMessage) error {
	msg := &models.Message{
		From:      in.From,
		To:        in.To,
		MessageID: in.MessageID,
		Text:      in.Text,
		Type:      in.Type,
		MediaID:   in.MediaID,
		Status:    models.StatusReceived,
	}
	if err := r.store.Create(ctx, msg); err != nil {
		if r.mode == webhook.Batch && errors.Is(err, database.ErrDuplicateMessage) {
			// redelivered batch, this one was stored by an earlier attempt
			r.metrics.Webhook("message", "duplicate")
			r.logger.Debug().Str("messageId", in.MessageID).Msg("Skipping already stored message")
			return nil
		}
		r.metrics.Webhook("message", "store_error")
		r.logger.Error().Err(err).Str("messageId", in.MessageID).Msg("Error storing inbound message")
		return fmt.Errorf("store inbound message %s: %w", in.MessageID, err)
	}

	r.metrics.Webhook("message", "stored")
	r.logger.Info().Str("type", string(in.Type)).Str("from", in.From).Msg("Received message")
	r.notifier.Notify(EventMessageReceived, in.From, msg)
	return nil
}

func (r *Receiver) applyStatus(ctx context.Context, st webhook.StatusUpdate) error {
	matched, err := r.store.UpdateStatus(ctx, st.MessageID, st.Status)
	if err != nil {
		r.metrics.Webhook("status", "store_error")
		r.logger.Error().Err(err).Str("messageId", st.MessageID).Msg("Error updating message status")
		return fmt.Errorf("update status of %s: %w", st.MessageID, err)
	}
	if !matched {
		r.metrics.Webhook("status", "unknown_message")
		r.logger.Debug().Str("messageId", st.MessageID).Str("status", string(st.Status)).Msg("Status for unknown message")
		return nil
	}

	r.metrics.Webhook("status", "updated")
	r.logger.Info().Str("messageId", st.MessageID).Str("status", string(st.Status)).Msg("Message status updated")
	r.notifier.Notify(EventStatusUpdated, st.Recipient, StatusChange{
		MessageID: st.MessageID,
		Status:    st.Status,
	})
	return nil
}
