// Package realtime implements the live side of the chat server: the
// registry of connected sessions, presence broadcasts, fanout of
// conversation events and the per-connection command handler.
package realtime

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
)

// Store is the persistence the realtime core depends on. CreateMessage and
// AppendReader must reject users who are not conversation participants
// with common.ErrNotParticipant.
type Store interface {
	ParticipantSource
	CreateMessage(ctx context.Context, m models.NewMessage) (*models.Message, error)
	AppendReader(ctx context.Context, conversationID, messageID, userID int64) error
}

// Hub bundles the registry, presence tracker and router with the store and
// token secret, and hands out Sessions.
type Hub struct {
	registry *Registry
	presence *PresenceTracker
	router   *Router
	store    Store
	secret   []byte
	convs    *keyedMutex
	logger   logging.Logger
}

// NewHub builds the realtime core. mirror may be nil.
func NewHub(store Store, secretKey string, mirror PresenceMirror, l logging.Logger) *Hub {
	reg := NewRegistry(l)
	return &Hub{
		registry: reg,
		presence: NewPresenceTracker(reg, mirror, l),
		router:   NewRouter(reg, store, l),
		store:    store,
		secret:   []byte(secretKey),
		convs:    newKeyedMutex(),
		logger:   l.With("module", "realtime"),
	}
}

// Run drives the registry until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.registry.Run(ctx)
}

func (h *Hub) Registry() *Registry         { return h.registry }
func (h *Hub) Presence() *PresenceTracker { return h.presence }
func (h *Hub) Router() *Router             { return h.router }
