package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RouterConfig はルーターの構成要素
type RouterConfig struct {
	CodebaseHandler *CodebaseHandler
	ChatHandler     *ChatHandler
	AuthMiddleware  *AuthMiddleware
	CORSOrigins     []string
	Logger          *slog.Logger
}

// NewRouter は API のルーティングを構成する
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(CORS(cfg.CORSOrigins))
	}

	r.GET("/health", Health)

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		if cfg.CodebaseHandler != nil {
			protected.POST("/codebase/upload", cfg.CodebaseHandler.Upload)
			protected.POST("/codebase/github", cfg.CodebaseHandler.CloneRepository)
			protected.GET("/codebase/projects", cfg.CodebaseHandler.ListProjects)
			protected.DELETE("/codebase/projects/:id", cfg.CodebaseHandler.DeleteProject)
			protected.POST("/codebase/analyze", cfg.CodebaseHandler.Analyze)
		}

		if cfg.ChatHandler != nil {
			protected.POST("/chat", cfg.ChatHandler.Chat)
		}
	}

	return r
}

// Server は HTTP サーバー
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer は新しい Server を作成する
func NewServer(port int, cfg RouterConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run はサーバーを起動し、ctx がキャンセルされたら停止する
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTPサーバーを起動しました", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("HTTPサーバーを停止します")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}
