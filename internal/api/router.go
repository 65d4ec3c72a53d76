package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/relaychat/internal/auth"
	"github.com/lalith-99/relaychat/internal/chat"
	"github.com/lalith-99/relaychat/internal/files"
	"github.com/lalith-99/relaychat/internal/middleware"
	"github.com/lalith-99/relaychat/internal/redisx"
	"github.com/lalith-99/relaychat/internal/repository"
	"go.uber.org/zap"
)

// HealthCheck is one dependency checked by /v1/health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps is everything the HTTP surface needs. Metrics and WebSocket are plain
// http.Handlers mounted as-is; Health may be empty.
type Deps struct {
	Users       repository.UserRepository
	Chats       *chat.Service
	Tokens      *auth.Tokens
	Files       files.Store
	Limiter     redisx.RateLimiter
	Idempotency redisx.IdempotencyStore

	MaxUploadBytes int64
	RequestTimeout time.Duration

	Health    []HealthCheck
	Metrics   http.Handler
	WebSocket http.Handler

	Logger *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Files == nil {
		d.Files = files.Disabled{}
	}
	if d.Limiter == nil {
		d.Limiter = redisx.NewLocalLimiter(0, time.Second)
	}
	if d.Idempotency == nil {
		d.Idempotency = redisx.NewLocalIdempotency(10 * time.Minute)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog(d.Logger))
	r.MaxMultipartMemory = 8 << 20

	// Health is public so load balancers can reach it.
	r.GET("/v1/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, hc := range d.Health {
			if err := hc.Check(ctx); err != nil {
				d.Logger.Warn("health check failed", zap.String("check", hc.Name), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "failed": hc.Name})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	// The WebSocket endpoint authenticates itself (browsers cannot set
	// headers on an upgrade, so it also accepts ?token=) and must not run
	// under the request timeout.
	if d.WebSocket != nil {
		r.GET("/v1/ws", gin.WrapH(d.WebSocket))
	}

	authH := NewAuthHandler(d.Users, d.Tokens, d.Files, d.MaxUploadBytes, d.Logger)
	pub := r.Group("/v1/auth")
	if d.RequestTimeout > 0 {
		pub.Use(middleware.Timeout(d.RequestTimeout))
	}
	pub.POST("/register", authH.Register)
	pub.POST("/login", authH.Login)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(d.Tokens))
	if d.RequestTimeout > 0 {
		v1.Use(middleware.Timeout(d.RequestTimeout))
	}

	users := NewUserHandler(d.Users, d.Files, d.MaxUploadBytes, d.Logger)
	v1.GET("/users/me", users.GetMe)
	v1.PATCH("/users/me", users.UpdateMe)
	v1.GET("/users", users.Search)

	chats := NewChatHandler(d.Chats, d.Logger)
	v1.POST("/chats", chats.Create)
	v1.GET("/chats", chats.List)
	v1.GET("/chats/:id", chats.Get)
	v1.PUT("/chats/:id/read", chats.MarkRead)
	v1.POST("/chats/:id/pin", chats.Pin)
	v1.DELETE("/chats/:id/pin", chats.Unpin)

	members := NewMembershipHandler(d.Chats, d.Logger)
	v1.POST("/chats/:id/members", members.Add)
	v1.GET("/chats/:id/members", members.ListMembers)

	messages := NewMessageHandler(d.Chats, d.Files, d.Limiter, d.Idempotency, d.MaxUploadBytes, d.Logger)
	v1.GET("/chats/:id/messages", messages.List)
	v1.POST("/chats/:id/messages", messages.Create)
	v1.PATCH("/messages/:id", messages.Edit)
	v1.DELETE("/messages/:id", messages.Delete)

	return r
}
