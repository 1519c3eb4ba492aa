package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/domain"
	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAutoTradingActive),
		errors.Is(err, domain.ErrAutoTradingInactive),
		errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSettings),
		errors.Is(err, domain.ErrUnknownStrategy),
		errors.Is(err, domain.ErrInsufficientInvestment):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoPrice),
		errors.Is(err, domain.ErrFetchFailure):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.controller.Trades(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	sessions, err := s.controller.Sessions(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []domain.SessionSummary{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"selected":   s.controller.Snapshot().Strategy,
		"strategies": s.controller.Strategies(),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.Settings())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	// Absent fields keep their current value.
	type SettingsRequest struct {
		InvestmentAmount *decimal.Decimal `json:"investment_amount"`
		StopLossPct      *decimal.Decimal `json:"stop_loss_pct"`
		TakeProfitPct    *decimal.Decimal `json:"take_profit_pct"`
		TrailingStop     *bool            `json:"trailing_stop"`
		MaxTrades        *int             `json:"max_trades"`
		TimeFrame        *string          `json:"time_frame"`
	}

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	settings, err := s.controller.PatchSettings(func(settings *domain.TradeSettings) {
		if req.InvestmentAmount != nil {
			settings.InvestmentAmount = *req.InvestmentAmount
		}
		if req.StopLossPct != nil {
			settings.StopLossPct = *req.StopLossPct
		}
		if req.TakeProfitPct != nil {
			settings.TakeProfitPct = *req.TakeProfitPct
		}
		if req.TrailingStop != nil {
			settings.TrailingStop = *req.TrailingStop
		}
		if req.MaxTrades != nil {
			settings.MaxTrades = *req.MaxTrades
		}
		if req.TimeFrame != nil {
			settings.TimeFrame = domain.TimeFrame(*req.TimeFrame)
		}
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleStartAutoTrading(w http.ResponseWriter, r *http.Request) {
	type StartRequest struct {
		Strategy string `json:"strategy"`
	}

	// The body is optional.
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sessionID, err := s.controller.Start(req.Strategy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "started", "session": sessionID})
}

func (s *Server) handleStopAutoTrading(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleManualOpen(w http.ResponseWriter, r *http.Request) {
	type OpenRequest struct {
		Side string `json:"side"`
	}

	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pos, err := s.controller.ManualOpen(r.Context(), side)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleManualClose(w http.ResponseWriter, r *http.Request) {
	pos, err := s.controller.ManualClose(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.hub.Active())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.controller.Snapshot())
}
