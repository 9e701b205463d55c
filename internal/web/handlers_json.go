package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/tradecircle/tradesync/internal/domain"
	"github.com/tradecircle/tradesync/internal/usecase"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok", "userId": s.session.UserID()})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.session.Coordinator().CurrentPortfolio())
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.session.Coordinator().CurrentTrades())
}

type addTradeRequest struct {
	Ticker     string  `json:"ticker"`
	Kind       string  `json:"kind"`
	EntryPrice float64 `json:"entryPrice"`
	Quantity   int64   `json:"quantity"`
	Notes      string  `json:"notes"`
}

func (s *Server) handleAddTrade(w http.ResponseWriter, r *http.Request) {
	var req addTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	trade, err := s.session.Coordinator().AddTrade(r.Context(), req.Ticker, domain.TradeKind(req.Kind), req.EntryPrice, req.Quantity, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, trade)
}

type closeTradeRequest struct {
	ExitPrice float64 `json:"exitPrice"`
	Notes     string  `json:"notes"`
}

func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	var req closeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if err := s.session.Coordinator().CloseTrade(r.Context(), id, req.ExitPrice, req.Notes); err != nil {
		s.writeError(w, err)
		return
	}
	trade, _ := s.session.Coordinator().Trade(id)
	s.writeJSON(w, trade)
}

type editTradeRequest struct {
	Ticker     *string  `json:"ticker"`
	Kind       *string  `json:"kind"`
	EntryPrice *float64 `json:"entryPrice"`
	Quantity   *int64   `json:"quantity"`
	Notes      *string  `json:"notes"`
	Strategy   *string  `json:"strategy"`
}

func (s *Server) handleEditTrade(w http.ResponseWriter, r *http.Request) {
	var req editTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	edit := usecase.TradeEdit{
		Ticker:     req.Ticker,
		EntryPrice: req.EntryPrice,
		Quantity:   req.Quantity,
		Notes:      req.Notes,
		Strategy:   req.Strategy,
	}
	if req.Kind != nil {
		kind := domain.TradeKind(*req.Kind)
		edit.Kind = &kind
	}

	id := r.PathValue("id")
	if err := s.session.Coordinator().EditTrade(r.Context(), id, edit); err != nil {
		s.writeError(w, err)
		return
	}
	trade, _ := s.session.Coordinator().Trade(id)
	s.writeJSON(w, trade)
}

func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Coordinator().DeleteTrade(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePostStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.session.Coordinator().PostStats(r.PathValue("id")))
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")
	if _, err := s.session.Coordinator().ToggleLike(r.Context(), postID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.session.Coordinator().PostStats(postID))
}

func (s *Server) handleToggleBookmark(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")
	if _, err := s.session.Coordinator().ToggleBookmark(r.Context(), postID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, s.session.Coordinator().PostStats(postID))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps the mutation error taxonomy onto HTTP statuses. The
// reason string is what the client shows; by the time a sync error
// reaches here the ledger is already rolled back.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrImmutableField):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrSync):
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
