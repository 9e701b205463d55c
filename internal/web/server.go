package web

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/usecase"
)

// Server exposes the session's coordinator surface as a JSON API. It
// is the same surface the mobile client consumes: portfolio, trades,
// mutations, and post interactions.
type Server struct {
	router  *http.ServeMux
	server  *http.Server
	session *usecase.Session
	logger  *zap.Logger
}

func NewServer(port int, session *usecase.Session, logger *zap.Logger) *Server {
	s := &Server{
		router:  http.NewServeMux(),
		session: session,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	// Portfolio
	s.router.HandleFunc("GET /api/portfolio", s.handlePortfolio)

	// Trades
	s.router.HandleFunc("GET /api/trades", s.handleListTrades)
	s.router.HandleFunc("POST /api/trades", s.handleAddTrade)
	s.router.HandleFunc("POST /api/trades/{id}/close", s.handleCloseTrade)
	s.router.HandleFunc("PATCH /api/trades/{id}", s.handleEditTrade)
	s.router.HandleFunc("DELETE /api/trades/{id}", s.handleDeleteTrade)

	// Post interactions
	s.router.HandleFunc("GET /api/posts/{id}", s.handlePostStats)
	s.router.HandleFunc("POST /api/posts/{id}/like", s.handleToggleLike)
	s.router.HandleFunc("POST /api/posts/{id}/bookmark", s.handleToggleBookmark)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
