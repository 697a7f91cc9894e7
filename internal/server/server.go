package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/eventdesk/apiserver/config"
	"github.com/eventdesk/apiserver/internal/db"
	"github.com/eventdesk/apiserver/internal/handlers"
	"github.com/eventdesk/apiserver/internal/mq"
	"github.com/eventdesk/apiserver/internal/notify"
	"github.com/eventdesk/apiserver/internal/revoke"
	"github.com/eventdesk/apiserver/internal/services"
	"github.com/eventdesk/apiserver/internal/storage"
	"github.com/eventdesk/apiserver/internal/store"
	"github.com/eventdesk/apiserver/internal/throttle"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer  *http.Server
	router      *chi.Mux
	logger      *zap.Logger
	db          *sql.DB
	queue       *mq.MQ
	closeLimit  func() error
	closeRevoke func() error
	stopWorker  context.CancelFunc
}

// New connects every backend named by cfg and assembles the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.db = dbConn

	images, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if !images.Enabled() {
		logger.Warn("object storage disabled, image uploads will be rejected")
	}

	if cfg.MQ.Backend != "" {
		s.queue, err = mq.Open(ctx, cfg.MQ)
		if err != nil {
			return nil, fmt.Errorf("open mq: %w", err)
		}
	}

	sender, err := notify.NewSender(cfg, s.queue, logger)
	if err != nil {
		return nil, fmt.Errorf("notification sender: %w", err)
	}
	notifier := notify.NewNotifier(sender, logger)
	if cfg.Mail.Backend == "queue" && cfg.MQ.Backend == "memory" {
		if err := s.startLocalWorker(cfg); err != nil {
			return nil, err
		}
	}

	limiter, closeLimit, err := throttle.New(ctx, cfg.Throttle)
	if err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}
	s.closeLimit = closeLimit

	revocations, closeRevoke, err := revoke.New(ctx, cfg.Throttle)
	if err != nil {
		return nil, fmt.Errorf("token revocations: %w", err)
	}
	s.closeRevoke = closeRevoke

	userRepo := store.NewUserRepository(dbConn)
	categoryRepo := store.NewCategoryRepository(dbConn)
	eventRepo := store.NewEventRepository(dbConn)

	tokens := services.NewActivationTokens(cfg.Auth.ActivationKey(), cfg.Auth.ActivationTTL)
	userService := services.NewUserService(userRepo, tokens, notifier, images, services.UserServiceConfig{
		BaseURL:    cfg.BaseURL,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     logger,
	})
	eventService := services.NewEventService(eventRepo, categoryRepo, images, notifier, logger)
	categoryService := services.NewCategoryService(categoryRepo)

	s.router = NewRouter(handlers.API{
		Users:         userService,
		Events:        eventService,
		Categories:    categoryService,
		JWTSecret:     cfg.Auth.JWTSecret,
		TokenTTL:      cfg.Auth.TokenTTL,
		MaxImageBytes: cfg.Storage.MaxImageBytes,
		Throttle:      throttle.Middleware(limiter, "auth", logger),
		Revocations:   revocations,
		Logger:        logger,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ok = true
	return s, nil
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(api handlers.API) *chi.Mux {
	logger := api.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.Mount(router, api)
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases every backend.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

// startLocalWorker drains an in-process queue, which no separate worker
// process can reach.
func (s *Server) startLocalWorker(cfg config.Config) error {
	deliver, err := notify.DeliverySender(cfg, s.logger)
	if err != nil {
		return fmt.Errorf("delivery sender: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopWorker = cancel
	go func() {
		if err := notify.Consume(ctx, s.queue, cfg.MQ.Channel, deliver, s.logger); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("notification worker stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) close() {
	if s.stopWorker != nil {
		s.stopWorker()
	}
	if s.closeLimit != nil {
		if err := s.closeLimit(); err != nil {
			s.logger.Warn("close throttle", zap.Error(err))
		}
	}
	if s.closeRevoke != nil {
		if err := s.closeRevoke(); err != nil {
			s.logger.Warn("close revocations", zap.Error(err))
		}
	}
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("close mq", zap.Error(err))
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
