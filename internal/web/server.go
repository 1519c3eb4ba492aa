package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/strategy_autotrade/internal/usecase"
	"go.uber.org/zap"
)

type Server struct {
	router     *http.ServeMux
	server     *http.Server
	controller *usecase.AutoTradeController
	hub        *Hub
	logger     *zap.Logger
}

func NewServer(
	port int,
	controller *usecase.AutoTradeController,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:     http.NewServeMux(),
		controller: controller,
		hub:        hub,
		logger:     logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /api/status", s.handleStatus)

	// Ledger and sessions
	s.router.HandleFunc("GET /api/trades", s.handleTrades)
	s.router.HandleFunc("GET /api/sessions", s.handleSessions)

	// Strategies
	s.router.HandleFunc("GET /api/strategies", s.handleStrategies)

	// Settings
	s.router.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.router.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	// Auto-trading
	s.router.HandleFunc("POST /api/auto-trading/start", s.handleStartAutoTrading)
	s.router.HandleFunc("POST /api/auto-trading/stop", s.handleStopAutoTrading)

	// Manual trading
	s.router.HandleFunc("POST /api/position/open", s.handleManualOpen)
	s.router.HandleFunc("POST /api/position/close", s.handleManualClose)

	// Notifications
	s.router.HandleFunc("GET /api/notifications", s.handleNotifications)
	s.router.HandleFunc("GET /ws", s.handleWS)
}

func (s *Server) Handler() http.Handler {
	return s.router
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
