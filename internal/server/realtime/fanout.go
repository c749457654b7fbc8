package realtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// ParticipantSource resolves conversation membership.
type ParticipantSource interface {
	ParticipantsOf(ctx context.Context, conversationID int64) ([]int64, error)
}

// Router delivers events to every live connection of a user or of every
// participant of a conversation. Offline users are skipped silently and a
// failed send to one connection never stops delivery to the others.
type Router struct {
	reg          *Registry
	participants ParticipantSource
	logger       logging.Logger
}

func NewRouter(reg *Registry, participants ParticipantSource, l logging.Logger) *Router {
	return &Router{reg: reg, participants: participants, logger: l.With("module", "fanout")}
}

type deliverOptions struct {
	exclude  int64
	required int64
}

type DeliverOption func(*deliverOptions)

// ExcludeUser skips every connection of userID.
func ExcludeUser(userID int64) DeliverOption {
	return func(o *deliverOptions) { o.exclude = userID }
}

// RequireParticipant makes delivery fail with common.ErrNotParticipant
// unless userID is a participant.
func RequireParticipant(userID int64) DeliverOption {
	return func(o *deliverOptions) { o.required = userID }
}

func (r *Router) DeliverToUser(ctx context.Context, userID int64, ev Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	return r.reg.Do(ctx, func(v View) {
		r.sendAll(ctx, v.ConnectionsOf(userID), ev.Name, frame)
	})
}

// DeliverToConversation sends ev to all connections of all participants,
// participant by participant in ascending id order, in a single registry
// step so concurrent registrations cannot interleave.
func (r *Router) DeliverToConversation(ctx context.Context, conversationID int64, ev Event, opts ...DeliverOption) error {
	var o deliverOptions
	for _, opt := range opts {
		opt(&o)
	}

	participants, err := r.participants.ParticipantsOf(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("resolve participants: %w", err)
	}
	if o.required != 0 && !slices.Contains(participants, o.required) {
		return common.ErrNotParticipant
	}
	if len(participants) == 0 {
		return nil
	}

	frame, err := ev.Encode()
	if err != nil {
		return err
	}

	return r.reg.Do(ctx, func(v View) {
		for _, uid := range participants {
			if o.exclude != 0 && uid == o.exclude {
				continue
			}
			r.sendAll(ctx, v.ConnectionsOf(uid), ev.Name, frame)
		}
	})
}

func (r *Router) sendAll(ctx context.Context, conns []Conn, event string, frame []byte) {
	for _, c := range conns {
		if err := c.Send(frame); err != nil {
			r.logger.Warn(ctx, "delivery failed", "event", event, "conn_id", c.ID(), "user_id", c.UserID(), "error", err)
		}
	}
}
