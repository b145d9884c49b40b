package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"warelay/config"
)

// maxErrorBodySize caps how much of a failed response is kept for the caller.
const maxErrorBodySize = 64 << 10

// ErrNoMediaURL is returned when the provider resolves a media id without a download URL.
var ErrNoMediaURL = errors.New("media URL not found")

// APIError carries a non-2xx provider response verbatim.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api returned status %d: %s", e.StatusCode, string(e.Body))
}

// Message extracts the human readable part of the provider's error envelope,
// falling back to the raw body.
func (e *APIError) Message() string {
	var env errorEnvelope
	if err := json.Unmarshal(e.Body, &env); err == nil {
		if env.Error.Message != "" {
			return env.Error.Message
		}
		if env.Error.ErrorUserMsg != "" {
			return env.Error.ErrorUserMsg
		}
	}
	return string(e.Body)
}

// Client talks to the WhatsApp Cloud API on behalf of one business phone number.
type Client struct {
	settings config.WhatsAppSettings
	http     *http.Client
}

func NewClient(settings config.WhatsAppSettings, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: settings.HTTPTimeout}
	}
	return &Client{settings: settings, http: httpClient}
}

// PhoneNumberID is the sender identity used for every outbound call.
func (c *Client) PhoneNumberID() string {
	return c.settings.PhoneNumberID
}

func (c *Client) SendMessage(ctx context.Context, msg *OutboundMessage) (*SendResponse, error) {
	if msg.MessagingProduct == "" {
		msg.MessagingProduct = MessagingProduct
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal outbound message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.MessagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out SendResponse
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadMedia uploads r as a multipart file and returns the provider media id.
func (c *Client) UploadMedia(ctx context.Context, r io.Reader, filename, contentType string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy media into form: %w", err)
	}
	if err := mw.WriteField("type", contentType); err != nil {
		return "", fmt.Errorf("write type field: %w", err)
	}
	if err := mw.WriteField("messaging_product", MessagingProduct); err != nil {
		return "", fmt.Errorf("write messaging_product field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.MediaUploadURL(), &buf)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := c.doJSON(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("upload response is missing the media id")
	}
	return out.ID, nil
}

// MediaInfo resolves a media id to its short-lived download URL.
func (c *Client) MediaInfo(ctx context.Context, mediaID string) (*MediaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.settings.MediaURL(mediaID), nil)
	if err != nil {
		return nil, fmt.Errorf("create media info request: %w", err)
	}

	var out MediaInfo
	if err := c.doJSON(req, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, ErrNoMediaURL
	}
	return &out, nil
}

// DownloadMedia opens the media bytes behind url. The caller closes the body.
func (c *Client) DownloadMedia(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close() // nolint:errcheck
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, "", &APIError{StatusCode: resp.StatusCode, Body: body}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.settings.Token)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call whatsapp api: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read whatsapp response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode whatsapp response: %w body=%q", err, string(body))
	}
	return nil
}
