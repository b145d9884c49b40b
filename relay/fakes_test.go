package relay

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"warelay/database"
	"warelay/models"
	"warelay/whatsapp"
)

const localID = "1055"

type memStore struct {
	mu       sync.Mutex
	msgs     []*models.Message
	clock    time.Time
	fail     error
	markFail error
	// failIDs makes Create fail for specific message ids only.
	failIDs map[string]error
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (s *memStore) Create(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	if err := s.failIDs[msg.MessageID]; err != nil {
		return err
	}
	for _, m := range s.msgs {
		if m.MessageID == msg.MessageID {
			return database.ErrDuplicateMessage
		}
	}
	s.clock = s.clock.Add(time.Second)
	msg.Timestamp = s.clock
	cp := *msg
	s.msgs = append(s.msgs, &cp)
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, messageID string, status models.MessageStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return false, s.fail
	}
	for _, m := range s.msgs {
		if m.MessageID == messageID {
			m.Status = status
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) Conversations(context.Context) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	byPeer := map[string]*models.Conversation{}
	for _, m := range s.msgs {
		peer := m.From
		if m.From == localID {
			peer = m.To
		}
		c, ok := byPeer[peer]
		if !ok {
			c = &models.Conversation{Peer: peer}
			byPeer[peer] = c
		}
		if !m.Timestamp.Before(c.LastTimestamp) {
			c.LastMessage, c.LastType, c.LastTimestamp = m.Text, m.Type, m.Timestamp
		}
		if m.Status == models.StatusReceived {
			c.UnreadCount++
		}
	}
	out := make([]models.Conversation, 0, len(byPeer))
	for _, c := range byPeer {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTimestamp.After(out[j].LastTimestamp) })
	return out, nil
}

func (s *memStore) History(_ context.Context, peer string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := []models.Message{}
	for _, m := range s.msgs {
		if (m.From == peer && m.To == localID) || (m.From == localID && m.To == peer) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) MarkRead(_ context.Context, peer string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markFail != nil {
		return 0, s.markFail
	}
	var n int64
	for _, m := range s.msgs {
		if m.From == peer && m.Status == models.StatusReceived {
			m.Status = models.StatusRead
			n++
		}
	}
	return n, nil
}

func (s *memStore) all() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		out = append(out, *m)
	}
	return out
}

type published struct {
	Type    string
	Peer    string
	Payload any
}

type recorder struct {
	mu     sync.Mutex
	events []published
}

func (r *recorder) Notify(eventType, peer string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{Type: eventType, Peer: peer, Payload: payload})
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGraph struct {
	sent     []*whatsapp.OutboundMessage
	sendErr  error
	sendResp *whatsapp.SendResponse

	uploads     []upload
	uploadErr   error
	uploadID    string
	infoCalls   int
	info        *whatsapp.MediaInfo
	infoErr     error
	downloadErr error
	payload     []byte
}

type upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (g *fakeGraph) PhoneNumberID() string { return localID }

func (g *fakeGraph) SendMessage(_ context.Context, msg *whatsapp.OutboundMessage) (*whatsapp.SendResponse, error) {
	g.sent = append(g.sent, msg)
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	if g.sendResp != nil {
		return g.sendResp, nil
	}
	return acceptedResponse("wamid.out.1"), nil
}

func (g *fakeGraph) UploadMedia(_ context.Context, r io.Reader, filename, contentType string) (string, error) {
	data, _ := io.ReadAll(r)
	g.uploads = append(g.uploads, upload{Filename: filename, ContentType: contentType, Data: data})
	if g.uploadErr != nil {
		return "", g.uploadErr
	}
	return g.uploadID, nil
}

func (g *fakeGraph) MediaInfo(_ context.Context, mediaID string) (*whatsapp.MediaInfo, error) {
	g.infoCalls++
	if g.infoErr != nil {
		return nil, g.infoErr
	}
	return g.info, nil
}

func (g *fakeGraph) DownloadMedia(context.Context, string) (io.ReadCloser, string, error) {
	if g.downloadErr != nil {
		return nil, "", g.downloadErr
	}
	return io.NopCloser(bytes.NewReader(g.payload)), "application/octet-stream", nil
}

func acceptedResponse(id string) *whatsapp.SendResponse {
	resp := &whatsapp.SendResponse{MessagingProduct: "whatsapp"}
	resp.Messages = append(resp.Messages, struct {
		ID string `json:"id"`
	}{ID: id})
	return resp
}
