package webhook

import (
	"encoding/json"
	"errors"
	"fmt"

	"warelay/models"
)

var (
	// ErrMalformed means the body is not JSON or an examined item lacks required fields.
	ErrMalformed = errors.New("malformed webhook payload")
	// ErrUnknownObject means the delivery carries no top-level object.
	ErrUnknownObject = errors.New("webhook payload has no object")
)

// Mode selects how much of a delivery is examined.
type Mode int

const (
	// FirstOnly looks at entry[0].changes[0] only: its first message, else its first status.
	FirstOnly Mode = iota
	// Batch yields every message and status in payload order.
	Batch
)

// Event is one of InboundMessage, StatusUpdate or Unrecognized.
type Event interface {
	event()
}

// InboundMessage is a message a peer sent to the business number.
type InboundMessage struct {
	From      string
	To        string
	MessageID string
	Type      models.MessageType
	Text      string
	MediaID   string
}

// StatusUpdate reports delivery progress of a message the business sent.
type StatusUpdate struct {
	MessageID string
	Status    models.MessageStatus
	Recipient string
}

// Unrecognized is a well-formed delivery that carries nothing to persist.
type Unrecognized struct {
	Reason string
}

func (InboundMessage) event() {}
func (StatusUpdate) event()   {}
func (Unrecognized) event()   {}

// Parse decodes body and classifies its contents before any field is used.
func Parse(body []byte, mode Mode) ([]Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Object == "" {
		return nil, ErrUnknownObject
	}

	if mode == FirstOnly {
		ev, err := first(p)
		if err != nil {
			return nil, err
		}
		return []Event{ev}, nil
	}

	var events []Event
	for i, entry := range p.Entry {
		for j, change := range entry.Changes {
			for k, raw := range change.Value.Messages {
				msg, err := toInbound(raw, change.Value.Metadata)
				if err != nil {
					return nil, fmt.Errorf("entry[%d].changes[%d].messages[%d]: %w", i, j, k, err)
				}
				events = append(events, msg)
			}
			for k, raw := range change.Value.Statuses {
				ev, err := toStatus(raw)
				if err != nil {
					return nil, fmt.Errorf("entry[%d].changes[%d].statuses[%d]: %w", i, j, k, err)
				}
				events = append(events, ev)
			}
		}
	}
	if len(events) == 0 {
		return []Event{Unrecognized{Reason: "no messages or statuses"}}, nil
	}
	return events, nil
}

func first(p Payload) (Event, error) {
	if len(p.Entry) == 0 || len(p.Entry[0].Changes) == 0 {
		return Unrecognized{Reason: "no changes"}, nil
	}
	value := p.Entry[0].Changes[0].Value

	if len(value.Messages) > 0 {
		return toInbound(value.Messages[0], value.Metadata)
	}
	if len(value.Statuses) > 0 {
		return toStatus(value.Statuses[0])
	}
	return Unrecognized{Reason: "no messages or statuses"}, nil
}

func toInbound(raw RawMessage, meta *Metadata) (Event, error) {
	if raw.ID == "" || raw.From == "" {
		return nil, fmt.Errorf("%w: message without id or sender", ErrMalformed)
	}
	if meta == nil || meta.PhoneNumberID == "" {
		return nil, fmt.Errorf("%w: message %s without metadata.phone_number_id", ErrMalformed, raw.ID)
	}

	msg := InboundMessage{
		From:      raw.From,
		To:        meta.PhoneNumberID,
		MessageID: raw.ID,
	}

	msgType := raw.Type
	if msgType == "" {
		msgType = string(models.TypeText)
	}

	switch msgType {
	case "text":
		msg.Type = models.TypeText
		if raw.Text != nil {
			msg.Text = raw.Text.Body
		}
	case "audio", "voice":
		msg.Type = models.TypeAudio
		msg.MediaID = mediaID(raw.Audio, raw.Voice)
	case "image":
		msg.Type = models.TypeImage
		msg.MediaID, msg.Text = mediaID(raw.Image), caption(raw.Image)
	case "video":
		msg.Type = models.TypeVideo
		msg.MediaID, msg.Text = mediaID(raw.Video), caption(raw.Video)
	case "document":
		msg.Type = models.TypeDocument
		msg.MediaID, msg.Text = mediaID(raw.Document), caption(raw.Document)
	default:
		msg.Type = models.TypeText
		msg.Text = fmt.Sprintf("[Unsupported message type: %s]", msgType)
	}
	return msg, nil
}

func toStatus(raw RawStatus) (Event, error) {
	if raw.ID == "" {
		return nil, fmt.Errorf("%w: status without message id", ErrMalformed)
	}
	status, ok := models.ParseStatus(raw.Status)
	if !ok {
		return Unrecognized{Reason: fmt.Sprintf("status %q for %s", raw.Status, raw.ID)}, nil
	}
	return StatusUpdate{MessageID: raw.ID, Status: status, Recipient: raw.RecipientID}, nil
}

func mediaID(candidates ...*Media) string {
	for _, m := range candidates {
		if m != nil && m.ID != "" {
			return m.ID
		}
	}
	return ""
}

func caption(m *Media) string {
	if m == nil {
		return ""
	}
	return m.Caption
}
