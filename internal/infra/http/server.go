package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"keygate/internal/config"
	"keygate/internal/domain"
	"keygate/internal/infra/auth/digest"
	"keygate/internal/infra/crypto"
	"keygate/internal/logging"
	"keygate/internal/usecase"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg config.Config
	r   *gin.Engine
	log *slog.Logger

	registry *usecase.Registry
	backend  string
}

// NewServer wires the registry, gate and crypto service over keys.
func NewServer(cfg config.Config, keys domain.KeyStore) *Server {
	svc := crypto.NewService()
	gate := usecase.NewGate(keys, svc, parseDigest)
	return NewServerWithDeps(cfg, ServerDeps{
		Registry: usecase.NewRegistry(keys, gate, svc),
		Backend:  cfg.ResolvedBackend(),
	})
}

type ServerDeps struct {
	Registry *usecase.Registry
	// Backend is reported by /healthz.
	Backend string
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	r := gin.New()
	s := &Server{
		cfg:      cfg,
		r:        r,
		log:      logging.For("http"),
		registry: deps.Registry,
		backend:  deps.Backend,
	}
	r.Use(requestID(), s.requestLogger(), gin.Recovery())
	s.routes()
	return s
}

func parseDigest(header string) (domain.Credentials, bool) {
	return digest.Parse(header).Credentials()
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		backend := s.backend
		if backend == "" {
			backend = "unknown"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": backend})
	})

	s.r.POST("/register", s.handleRegister)
	s.r.POST("/check-key", s.handleCheckKey)
	s.r.GET("/", s.handleListKeys)
	s.r.GET("/keys", s.handleListKeys)
	s.r.POST("/revoke-key", s.handleRevokeKey)
	s.r.POST("/encrypt-message", s.handleEncryptMessage)

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "not found")
	})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// RunContext serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) RunContext(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.HTTPAddr, "store", s.backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
