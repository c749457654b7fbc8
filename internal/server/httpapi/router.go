// Package httpapi exposes the chat REST API, the health endpoints and the
// realtime upgrade route over gin.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	SignUp(ctx context.Context, username, password string) (string, error)
	SignIn(ctx context.Context, username, password string) (string, error)
	Search(ctx context.Context, callerID int64, query string) ([]models.Participant, error)
}

type ConversationService interface {
	Start(ctx context.Context, userID, participantID int64) (*models.ConversationSummary, error)
	List(ctx context.Context, userID int64) ([]*models.ConversationSummary, error)
	Get(ctx context.Context, conversationID, userID int64) (*models.ConversationSummary, error)
	History(ctx context.Context, conversationID, userID, beforeID int64, limit int) ([]*models.Message, error)
}

type MediaService interface {
	Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (*models.Media, error)
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

type PresenceService interface {
	OnlineStatus(ctx context.Context, userIDs []int64) (map[int64]bool, error)
}

// Services are the dependencies of the API handlers.
type Services struct {
	Users         UserService
	Conversations ConversationService
	Media         MediaService
	Presence      PresenceService
}

type api struct {
	svc           Services
	secret        []byte
	maxUploadSize int64
	logger        logging.Logger
}

func corsConfig(origin string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if origin == "" || origin == "*" {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = []string{origin}
	c.AllowCredentials = true
	return c
}

// NewRouter wires every route. ws serves the realtime upgrade at /ws.
func NewRouter(cfg *config.Config, svc Services, health *Checker, ws http.Handler, l logging.Logger) *gin.Engine {
	a := &api{
		svc:           svc,
		secret:        []byte(cfg.SecretKey),
		maxUploadSize: cfg.MaxUploadSize,
		logger:        l.With("module", "httpapi"),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(a.logger))
	r.Use(cors.New(corsConfig(cfg.FrontendOrigin)))

	r.GET("/health", health.Live)
	r.GET("/ready", health.Ready)
	r.GET("/ws", gin.WrapH(ws))

	apiGroup := r.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/signup", a.signUp)
			authGroup.POST("/signin", a.signIn)
		}

		apiGroup.GET("/media/*key", a.media)

		authenticated := apiGroup.Group("")
		authenticated.Use(TokenAuth(a.secret))
		{
			authenticated.GET("/users/search", a.searchUsers)
			authenticated.GET("/presence", a.presence)
			authenticated.POST("/upload", a.upload)

			conv := authenticated.Group("/conversations")
			{
				conv.GET("", a.listConversations)
				conv.POST("", a.startConversation)
				conv.GET("/:id", a.getConversation)
				conv.GET("/:id/messages", a.listMessages)
			}
		}
	}

	return r
}
