package whatsapp

const MessagingProduct = "whatsapp"

// OutboundMessage is the body of POST /{phone-number-id}/messages.
type OutboundMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type,omitempty"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *Text     `json:"text,omitempty"`
	Template         *Template `json:"template,omitempty"`
	Audio            *MediaRef `json:"audio,omitempty"`
	Image            *MediaRef `json:"image,omitempty"`
}

type Text struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type Template struct {
	Name     string   `json:"name"`
	Language Language `json:"language"`
}

type Language struct {
	Code string `json:"code"`
}

type MediaRef struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

// SendResponse is the provider's answer to a send.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// FirstMessageID returns the id assigned to the sent message, or "" when none came back.
func (r *SendResponse) FirstMessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// MediaInfo is the metadata returned for GET /{media-id}.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

type errorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorUserMsg string `json:"error_user_msg"`
	} `json:"error"`
}
