// Package server assembles the chat server: database and migrations,
// services, the realtime hub, the HTTP and gRPC endpoints and the optional
// Redis presence mirror, and runs them until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/httpapi"
	"github.com/dmitrijs2005/gophchat/internal/server/presencemirror"
	"github.com/dmitrijs2005/gophchat/internal/server/realtime"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"github.com/dmitrijs2005/gophchat/internal/server/ws"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/gophchat/internal/server/grpc"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	mirror     *presencemirror.Mirror
	hub        *realtime.Hub
	health     *httpapi.Checker
	grpcServer *gs.GRPCServer
	httpServer *http.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	if c.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	// nil interfaces keep the mirror and its health check switched off
	var mirror realtime.PresenceMirror
	var redisCheck httpapi.Pinger
	if c.RedisURL != "" {
		app.redis, err = presencemirror.NewClient(c.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		app.mirror = presencemirror.New(app.redis, logger)
		mirror, redisCheck = app.mirror, app.mirror
	}

	app.hub = realtime.NewHub(services.NewChatStore(db, rm), c.SecretKey, mirror, logger)
	app.health = httpapi.NewChecker(db, redisCheck, app.hub.Registry())
	app.grpcServer = gs.NewGRPCServer(c.GRPCAddr, logger)

	router := httpapi.NewRouter(c, httpapi.Services{
		Users:         services.NewUserService(db, rm, c),
		Conversations: services.NewConversationService(db, rm),
		Media:         services.NewMediaService(c),
		Presence:      app.hub.Presence(),
	}, app.health, ws.NewHandler(app.hub, c.FrontendOrigin, logger), logger)

	app.httpServer = &http.Server{
		Addr:              c.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.grpcServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	app.logger.Info(ctx, "Starting HTTP server", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails,
// then shuts down: readiness goes false, HTTP stops accepting, the hub
// closes every live connection and the stores are released.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	// the hub and the mirror outlive ctx so that in-flight sessions finish
	// during HTTP shutdown
	coreCtx, stopCore := context.WithCancel(context.WithoutCancel(ctx))

	var wg sync.WaitGroup
	var core sync.WaitGroup

	core.Add(1)
	go func() {
		defer core.Done()
		app.hub.Run(coreCtx)
	}()

	if app.mirror != nil {
		core.Add(1)
		go func() {
			defer core.Done()
			app.mirror.Run(coreCtx)
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	<-ctx.Done()
	app.logger.Info(ctx, "Shutting down...")
	app.health.SetDraining()
	app.grpcServer.SetNotServing()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "http shutdown", "error", err)
	}

	stopCore()
	core.Wait()
	wg.Wait()

	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn(ctx, "redis close", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close", "error", err)
	}
}
