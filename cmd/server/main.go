package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/relaychat/internal/api"
	"github.com/lalith-99/relaychat/internal/auth"
	"github.com/lalith-99/relaychat/internal/chat"
	"github.com/lalith-99/relaychat/internal/config"
	"github.com/lalith-99/relaychat/internal/db"
	"github.com/lalith-99/relaychat/internal/files"
	"github.com/lalith-99/relaychat/internal/gateway"
	"github.com/lalith-99/relaychat/internal/membership"
	"github.com/lalith-99/relaychat/internal/observ"
	"github.com/lalith-99/relaychat/internal/realtime"
	"github.com/lalith-99/relaychat/internal/redisx"
	"github.com/lalith-99/relaychat/internal/repository"
	"github.com/lalith-99/relaychat/internal/repository/memory"
	"github.com/lalith-99/relaychat/internal/repository/postgres"
	"github.com/lalith-99/relaychat/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores is one backend's set of repositories.
type stores struct {
	users    repository.UserRepository
	chats    repository.ChatRepository
	members  repository.MembershipRepository
	messages repository.MessageRepository
	health   []api.HealthCheck
	close    func()
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := observ.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// ---------------------------------------------------------------
	// 2. Storage
	// ---------------------------------------------------------------
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// ---------------------------------------------------------------
	// 3. Redis-backed send limits and idempotency, or in-process ones
	// ---------------------------------------------------------------
	var limiter redisx.RateLimiter = redisx.NewLocalLimiter(cfg.SendRateLimit, cfg.SendRateWindow)
	var idem redisx.IdempotencyStore = redisx.NewLocalIdempotency(cfg.IdempotencyTTL)
	health := st.health
	if cfg.RedisURL != "" {
		rc, err := redisx.New(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rc.Close()
		limiter = redisx.NewLimiter(rc, cfg.SendRateLimit, cfg.SendRateWindow, logger)
		idem = redisx.NewIdempotency(rc, cfg.IdempotencyTTL, logger)
		health = append(health, api.HealthCheck{Name: "redis", Check: rc.Health})
		logger.Info("redis connected")
	}

	// ---------------------------------------------------------------
	// 4. Uploads
	// ---------------------------------------------------------------
	var fileStore files.Store = files.Disabled{}
	if cfg.FilesEnabled() {
		ms, err := files.NewMinioStore(files.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			return fmt.Errorf("create file store: %w", err)
		}
		if err := ms.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("ensure bucket: %w", err)
		}
		fileStore = ms
		logger.Info("file uploads enabled", zap.String("bucket", cfg.S3Bucket))
	}

	// ---------------------------------------------------------------
	// 5. Metrics, hub and chat service
	// ---------------------------------------------------------------
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observ.NewMetrics(reg)

	hub := realtime.NewHub(logger, metrics)
	publishers := []chat.Publisher{hub}
	if cfg.StreamEnabled() {
		w := stream.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer w.Close()
		publishers = append(publishers, w)
		logger.Info("event stream enabled", zap.String("topic", cfg.KafkaTopic))
	}

	authority := membership.NewAuthority(st.members, membership.PinPolicy(cfg.PinPolicy))
	svc := chat.NewService(st.users, st.chats, st.messages, authority, logger, metrics, publishers...)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	// ---------------------------------------------------------------
	// 6. HTTP and WebSocket
	// ---------------------------------------------------------------
	ws := gateway.NewHandler(gateway.Options{
		Tokens:            tokens,
		Hub:               hub,
		Chats:             svc,
		Limiter:           limiter,
		RequireMembership: cfg.SubscribeRequiresMembership,
		RequestTimeout:    cfg.RequestTimeout,
		OutboxSize:        cfg.WSOutboxSize,
		AllowedOrigins:    cfg.AllowedOrigins,
		Logger:            logger,
		Metrics:           metrics,
	})

	router := api.NewRouter(api.Deps{
		Users:          st.users,
		Chats:          svc,
		Tokens:         tokens,
		Files:          fileStore,
		Limiter:        limiter,
		Idempotency:    idem,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		Health:         health,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebSocket:      ws,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting relaychat",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.String("pin_policy", string(authority.PinPolicy())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Hijacked WebSocket connections are not tracked by Shutdown; they end
	// when the process exits.
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		m := memory.New()
		return &stores{
			users:    m.Users(),
			chats:    m.Chats(),
			members:  m.Members(),
			messages: m.Messages(),
			close:    func() {},
		}, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pool := database.Pool()
	return &stores{
		users:    postgres.NewUserStore(pool),
		chats:    postgres.NewChatStore(pool),
		members:  postgres.NewMembershipStore(pool),
		messages: postgres.NewMessageStore(pool),
		health:   []api.HealthCheck{{Name: "database", Check: database.Health}},
		close:    database.Close,
	}, nil
}
