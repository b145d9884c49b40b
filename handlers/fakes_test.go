package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"warelay/config"
	"warelay/database"
	"warelay/models"
	"warelay/whatsapp"
)

const localID = "1055"

// memStore is an in-memory message log with the same semantics as database.MessageStore.
type memStore struct {
	mu    sync.Mutex
	msgs  []*models.Message
	clock time.Time
	fail  error
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
	var order []string
	byPeer := map[string]*models.Conversation{}
	// newest first, like the aggregation
	for i := len(s.msgs) - 1; i >= 0; i-- {
		m := s.msgs[i]
		peer := m.From
		if m.From == localID {
			peer = m.To
		}
		c, ok := byPeer[peer]
		if !ok {
			c = &models.Conversation{Peer: peer, LastMessage: m.Text, LastType: m.Type, LastTimestamp: m.Timestamp}
			byPeer[peer] = c
			order = append(order, peer)
		}
		if m.Status == models.StatusReceived {
			c.UnreadCount++
		}
	}
	out := make([]models.Conversation, 0, len(order))
	for _, p := range order {
		out = append(out, *byPeer[p])
	}
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

type uploaded struct {
	Filename    string
	ContentType string
	TypeField   string
	Size        int
}

// graphServer imitates the Cloud API endpoints the relay calls.
type graphServer struct {
	*httptest.Server

	mu       sync.Mutex
	sent     []whatsapp.OutboundMessage
	uploads  []uploaded
	auth     []string
	sendFail int
	failBody string
	next     int
}

func newGraphServer(t *testing.T) *graphServer {
	t.Helper()
	g := &graphServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v21.0/"+localID+"/messages", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.auth = append(g.auth, r.Header.Get("Authorization"))

		if g.sendFail != 0 {
			w.WriteHeader(g.sendFail)
			_, _ = io.WriteString(w, g.failBody)
			return
		}
		var msg whatsapp.OutboundMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		g.sent = append(g.sent, msg)
		g.next++
		_, _ = fmt.Fprintf(w, `{"messaging_product":"whatsapp","contacts":[{"input":%q,"wa_id":%q}],"messages":[{"id":"wamid.out.%d"}]}`, msg.To, msg.To, g.next)
	})

	mux.HandleFunc("POST /v21.0/"+localID+"/media", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()

		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"file is required"}}`)
			return
		}
		data, _ := io.ReadAll(f)
		g.uploads = append(g.uploads, uploaded{
			Filename:    hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			TypeField:   r.FormValue("type"),
			Size:        len(data),
		})
		_, _ = fmt.Fprintf(w, `{"id":"media-up-%d"}`, len(g.uploads))
	})

	mux.HandleFunc("GET /v21.0/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		switch id {
		case "no-url":
			_, _ = io.WriteString(w, `{"id":"no-url"}`)
		case "gone":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"message":"Unsupported get request"}}`)
		default:
			_, _ = fmt.Fprintf(w, `{"id":%q,"url":"%s/download/%s","mime_type":"audio/ogg"}`, id, g.URL, id)
		}
	})

	mux.HandleFunc("GET /download/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, "bytes of "+r.PathValue("id"))
	})

	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Close)
	return g
}

func (g *graphServer) settings() config.WhatsAppSettings {
	return config.WhatsAppSettings{
		Token:            "test-token",
		PhoneNumberID:    localID,
		GraphURL:         g.URL,
		APIVersion:       "v21.0",
		TemplateLanguage: "en_US",
		HTTPTimeout:      5 * time.Second,
	}
}

func (g *graphServer) sentMessages() []whatsapp.OutboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]whatsapp.OutboundMessage(nil), g.sent...)
}
