package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	statusConnected     = "connected"
	statusDisconnected  = "disconnected"
	statusNotConfigured = "not configured"
	checkTimeout        = 2 * time.Second
)

type DBPinger interface {
	PingContext(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ConnectionCounter interface {
	Count() int
}

type Status struct {
	Service     string `json:"service"`
	Ready       bool   `json:"ready"`
	Database    string `json:"database"`
	Redis       string `json:"redis"`
	Connections int    `json:"connections"`
}

// Checker reports liveness and readiness. redis may be nil when the
// presence mirror is disabled.
type Checker struct {
	db       DBPinger
	redis    Pinger
	conns    ConnectionCounter
	draining atomic.Bool
}

func NewChecker(db DBPinger, redis Pinger, conns ConnectionCounter) *Checker {
	return &Checker{db: db, redis: redis, conns: conns}
}

// SetDraining marks the server as shutting down; Ready then fails.
func (h *Checker) SetDraining() {
	h.draining.Store(true)
}

func ping(ctx context.Context, fn func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return statusDisconnected
	}
	return statusConnected
}

func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{Service: "gophchat", Database: statusNotConfigured, Redis: statusNotConfigured}

	if h.db != nil {
		status.Database = ping(ctx, h.db.PingContext)
	}
	if h.redis != nil {
		status.Redis = ping(ctx, h.redis.Ping)
	}
	if h.conns != nil {
		status.Connections = h.conns.Count()
	}

	status.Ready = !h.draining.Load() &&
		status.Database != statusDisconnected &&
		status.Redis != statusDisconnected
	return status
}

// Live answers as long as the process serves HTTP.
func (h *Checker) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Checker) Ready(c *gin.Context) {
	status := h.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
