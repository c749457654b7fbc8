package realtime

import (
	"context"

	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// PresenceMirror receives every presence transition in order. Publish must
// not block.
type PresenceMirror interface {
	Publish(userID int64, online bool)
}

// PresenceTracker turns registry transitions into user_connected and
// user_disconnected broadcasts and hands each new connection the current
// users_online snapshot.
type PresenceTracker struct {
	reg    *Registry
	mirror PresenceMirror
	logger logging.Logger
}

// NewPresenceTracker attaches the tracker to reg. mirror may be nil.
func NewPresenceTracker(reg *Registry, mirror PresenceMirror, l logging.Logger) *PresenceTracker {
	t := &PresenceTracker{reg: reg, mirror: mirror, logger: l.With("module", "presence")}
	reg.listener = t
	return t
}

func (t *PresenceTracker) SessionAdded(ctx context.Context, v View, c Conn, first bool) {
	if first {
		t.announce(ctx, v, c.UserID(), true)
	}
	t.snapshot(ctx, v, c)
}

func (t *PresenceTracker) SessionRemoved(ctx context.Context, v View, c Conn, last bool) {
	if last {
		t.announce(ctx, v, c.UserID(), false)
	}
}

// AnnounceConnected broadcasts user_connected for userID to every live
// connection.
func (t *PresenceTracker) AnnounceConnected(ctx context.Context, userID int64) error {
	return t.reg.Do(ctx, func(v View) { t.broadcast(ctx, v, userID, true) })
}

// AnnounceDisconnected broadcasts user_disconnected for userID to every
// remaining connection.
func (t *PresenceTracker) AnnounceDisconnected(ctx context.Context, userID int64) error {
	return t.reg.Do(ctx, func(v View) { t.broadcast(ctx, v, userID, false) })
}

// SnapshotFor sends the users_online list to c alone.
func (t *PresenceTracker) SnapshotFor(ctx context.Context, c Conn) error {
	return t.reg.Do(ctx, func(v View) { t.snapshot(ctx, v, c) })
}

// OnlineStatus reports, for each requested id, whether that user is online
// right now.
func (t *PresenceTracker) OnlineStatus(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	status := make(map[int64]bool, len(userIDs))
	err := t.reg.Do(ctx, func(v View) {
		for _, id := range userIDs {
			status[id] = v.IsOnline(id)
		}
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (t *PresenceTracker) announce(ctx context.Context, v View, userID int64, online bool) {
	t.broadcast(ctx, v, userID, online)
	if t.mirror != nil {
		t.mirror.Publish(userID, online)
	}
}

func (t *PresenceTracker) broadcast(ctx context.Context, v View, userID int64, online bool) {
	name := EventUserDisconnected
	if online {
		name = EventUserConnected
	}

	frame, err := Event{Name: name, Data: userID}.Encode()
	if err != nil {
		t.logger.Error(ctx, "encode presence event", "error", err)
		return
	}

	for _, c := range v.AllConnections() {
		if err := c.Send(frame); err != nil {
			t.logger.Warn(ctx, "presence delivery failed", "event", name, "conn_id", c.ID(), "error", err)
		}
	}
}

func (t *PresenceTracker) snapshot(ctx context.Context, v View, c Conn) {
	frame, err := Event{Name: EventUsersOnline, Data: v.OnlineUserIDs()}.Encode()
	if err != nil {
		t.logger.Error(ctx, "encode users_online", "error", err)
		return
	}
	if err := c.Send(frame); err != nil {
		t.logger.Warn(ctx, "snapshot delivery failed", "conn_id", c.ID(), "error", err)
	}
}
