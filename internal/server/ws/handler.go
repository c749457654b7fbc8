package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/realtime"
	"github.com/gorilla/websocket"
)

// Handler upgrades authenticated requests to websocket sessions.
type Handler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewHandler accepts upgrades from allowedOrigin, from any origin when it
// is "*" or empty, and from clients that send no Origin header.
func NewHandler(hub *realtime.Hub, allowedOrigin string, l logging.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "" || allowedOrigin == "*" || origin == allowedOrigin
			},
		},
		logger: l.With("module", "ws"),
	}
}

func tokenFrom(r *http.Request) string {
	if t := r.URL.Query().Get(common.AccessTokenQueryParam); t != "" {
		return t
	}
	return strings.TrimPrefix(r.Header.Get(common.AuthorizationHeader), common.BearerPrefix)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	s := h.hub.NewSession()
	if err := s.Authenticate(tokenFrom(r)); err != nil {
		h.logger.Info(ctx, "connection refused", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "upgrade failed", "user_id", s.UserID(), "error", err)
		s.Close(ctx)
		return
	}

	conn := NewConnection(s.UserID(), wsConn)
	conn.Start()

	if err := s.Activate(ctx, conn); err != nil {
		h.logger.Error(ctx, "activate session", "user_id", s.UserID(), "error", err)
		conn.Close()
		return
	}
	defer s.Close(ctx)

	log := h.logger.With("user_id", conn.UserID(), "conn_id", conn.ID())
	err = conn.ReadLoop(func(frame []byte) {
		if err := s.Handle(ctx, frame); err != nil {
			if errors.Is(err, common.ErrorValidation) || errors.Is(err, common.ErrNotParticipant) {
				log.Warn(ctx, "command rejected", "error", err)
				return
			}
			log.Error(ctx, "command failed", "error", err)
		}
	})
	if err != nil {
		log.Debug(ctx, "read loop ended", "error", err)
	}
}
