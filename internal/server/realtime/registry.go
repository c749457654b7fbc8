package realtime

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
)

// View is a read-only look at the registry. It is only valid inside the
// callback that received it.
type View interface {
	AllConnections() []Conn
	ConnectionsOf(userID int64) []Conn
	OnlineUserIDs() []int64
	IsOnline(userID int64) bool
}

// Listener observes registry mutations. It runs on the registry goroutine
// right after the mutation, so it sees every transition in order. It must
// not call Registry methods.
type Listener interface {
	SessionAdded(ctx context.Context, v View, c Conn, first bool)
	SessionRemoved(ctx context.Context, v View, c Conn, last bool)
}

type state struct {
	conns  map[string]Conn
	byUser map[int64]map[string]Conn
}

func (s *state) AllConnections() []Conn {
	out := make([]Conn, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *state) ConnectionsOf(userID int64) []Conn {
	set := s.byUser[userID]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (s *state) OnlineUserIDs() []int64 {
	ids := make([]int64, 0, len(s.byUser))
	for id := range s.byUser {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *state) IsOnline(userID int64) bool {
	return len(s.byUser[userID]) > 0
}

// Registry tracks live connections per user. All state is owned by the
// goroutine running Run; other goroutines reach it through requests.
type Registry struct {
	reqs     chan func(*state)
	stopped  chan struct{}
	listener Listener
	count    atomic.Int64
	logger   logging.Logger
}

func NewRegistry(l logging.Logger) *Registry {
	return &Registry{
		reqs:    make(chan func(*state), 64),
		stopped: make(chan struct{}),
		logger:  l.With("module", "registry"),
	}
}

// Run owns the registry state until ctx is done. On exit every live
// connection is closed and later requests fail with ErrRegistryStopped.
func (r *Registry) Run(ctx context.Context) {
	st := &state{
		conns:  make(map[string]Conn),
		byUser: make(map[int64]map[string]Conn),
	}

	defer func() {
		close(r.stopped)
		for _, c := range st.conns {
			c.Close()
		}
		r.count.Store(0)
		r.logger.Info(ctx, "registry stopped", "closed", len(st.conns))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-r.reqs:
			fn(st)
		}
	}
}

// Do runs fn on the registry goroutine and waits for it to finish.
func (r *Registry) Do(ctx context.Context, fn func(v View)) error {
	return r.exec(ctx, func(st *state) { fn(st) })
}

func (r *Registry) exec(ctx context.Context, fn func(*state)) error {
	done := make(chan struct{})
	req := func(st *state) {
		defer close(done)
		fn(st)
	}

	select {
	case r.reqs <- req:
	case <-r.stopped:
		return common.ErrRegistryStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-r.stopped:
		// the request may have been queued after the loop exited
		select {
		case <-done:
			return nil
		default:
			return common.ErrRegistryStopped
		}
	}
}

// Register adds c under its user. The listener is told whether this was
// the user's first connection.
func (r *Registry) Register(ctx context.Context, c Conn) error {
	return r.exec(ctx, func(st *state) {
		if _, dup := st.conns[c.ID()]; dup {
			return
		}
		set, ok := st.byUser[c.UserID()]
		first := !ok || len(set) == 0
		if !ok {
			set = make(map[string]Conn)
			st.byUser[c.UserID()] = set
		}
		set[c.ID()] = c
		st.conns[c.ID()] = c
		r.count.Add(1)

		r.logger.Debug(ctx, "connection registered", "conn_id", c.ID(), "user_id", c.UserID(), "first", first)
		if r.listener != nil {
			r.listener.SessionAdded(ctx, st, c, first)
		}
	})
}

// Unregister removes c. Unknown connections are ignored.
func (r *Registry) Unregister(ctx context.Context, c Conn) error {
	return r.exec(ctx, func(st *state) {
		if _, ok := st.conns[c.ID()]; !ok {
			return
		}
		delete(st.conns, c.ID())
		set := st.byUser[c.UserID()]
		delete(set, c.ID())
		last := len(set) == 0
		if last {
			delete(st.byUser, c.UserID())
		}
		r.count.Add(-1)

		r.logger.Debug(ctx, "connection unregistered", "conn_id", c.ID(), "user_id", c.UserID(), "last", last)
		if r.listener != nil {
			r.listener.SessionRemoved(ctx, st, c, last)
		}
	})
}

func (r *Registry) ConnectionsOf(ctx context.Context, userID int64) ([]Conn, error) {
	var out []Conn
	err := r.exec(ctx, func(st *state) { out = st.ConnectionsOf(userID) })
	return out, err
}

// OnlineUserIDs returns every user with at least one connection, ascending.
func (r *Registry) OnlineUserIDs(ctx context.Context) ([]int64, error) {
	var out []int64
	err := r.exec(ctx, func(st *state) { out = st.OnlineUserIDs() })
	return out, err
}

func (r *Registry) IsOnline(ctx context.Context, userID int64) (bool, error) {
	var out bool
	err := r.exec(ctx, func(st *state) { out = st.IsOnline(userID) })
	return out, err
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	return int(r.count.Load())
}
