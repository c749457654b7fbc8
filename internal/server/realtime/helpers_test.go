package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id   string
	user int64

	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	failSend error
}

func newConn(id string, user int64) *fakeConn {
	return &fakeConn{id: id, user: user}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() int64 { return c.user }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend != nil {
		return c.failSend
	}
	if c.closed {
		return common.ErrConnectionClosed
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) events(t *testing.T) []Inbound {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Inbound, 0, len(c.frames))
	for _, f := range c.frames {
		var in Inbound
		require.NoError(t, json.Unmarshal(f, &in))
		out = append(out, in)
	}
	return out
}

func (c *fakeConn) names(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, ev := range c.events(t) {
		out = append(out, ev.Event)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// dataOf decodes the payload of the i-th event named name.
func dataOf[T any](t *testing.T, c *fakeConn, name string) T {
	t.Helper()
	for _, ev := range c.events(t) {
		if ev.Event == name {
			var v T
			require.NoError(t, json.Unmarshal(ev.Data, &v))
			return v
		}
	}
	t.Fatalf("no %s event on %s; got %v", name, c.id, c.names(t))
	var zero T
	return zero
}

func startRegistry(t *testing.T, reg *Registry) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("registry did not stop")
		}
	})
	return cancel
}

type fakeStore struct {
	mu           sync.Mutex
	participants map[int64][]int64
	messages     map[int64]*models.Message
	reads        map[int64][]int64
	nextID       int64

	createErr error
	appendErr error
	partErr   error
	partCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		participants: map[int64][]int64{},
		messages:     map[int64]*models.Message{},
		reads:        map[int64][]int64{},
		nextID:       100,
	}
}

func (s *fakeStore) ParticipantsOf(ctx context.Context, conversationID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partCalls++
	if s.partErr != nil {
		return nil, s.partErr
	}
	return slices.Clone(s.participants[conversationID]), nil
}

func (s *fakeStore) isParticipant(conversationID, userID int64) bool {
	return slices.Contains(s.participants[conversationID], userID)
}

func (s *fakeStore) CreateMessage(ctx context.Context, m models.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	if !s.isParticipant(m.ConversationID, m.SenderID) {
		return nil, common.ErrNotParticipant
	}
	s.nextID++
	msg := &models.Message{
		ID:             s.nextID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Type:           m.Type,
		Content:        m.Content,
		MediaURL:       m.MediaURL,
		CreatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ReadBy:         []int64{},
	}
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *fakeStore) AppendReader(ctx context.Context, conversationID, messageID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	if !s.isParticipant(conversationID, userID) {
		return common.ErrNotParticipant
	}
	msg, ok := s.messages[messageID]
	if !ok || msg.ConversationID != conversationID {
		return common.ErrorNotFound
	}
	if !slices.Contains(s.reads[messageID], userID) {
		s.reads[messageID] = append(s.reads[messageID], userID)
	}
	return nil
}

func (s *fakeStore) readers(messageID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reads[messageID])
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type recordingMirror struct {
	mu     sync.Mutex
	events []string
}

func (m *recordingMirror) Publish(userID int64, online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, fmt.Sprintf("%d:%t", userID, online))
}

func (m *recordingMirror) got() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

var errSend = errors.New("send buffer full")

func nop() logging.Logger { return logging.Nop() }
