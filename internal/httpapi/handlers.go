package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tileduel/tileduel-backend/internal/lobby"
	"github.com/tileduel/tileduel-backend/internal/session"
	"github.com/tileduel/tileduel-backend/internal/settlement"
	"github.com/tileduel/tileduel-backend/internal/store"
)

const maxPageSize = 100

// Server bundles the dependencies the REST handlers need.
type Server struct {
	svc   *session.Service
	lobby *lobby.Coordinator
	log   *zap.Logger
}

func NewServer(svc *session.Service, lob *lobby.Coordinator, log *zap.Logger) *Server {
	return &Server{svc: svc, lobby: lob, log: log}
}

type createGameRequest struct {
	OwnerID   string          `json:"owner_id"`
	OwnerName string          `json:"owner_name"`
	Stake     decimal.Decimal `json:"stake"`
}

type joinGameRequest struct {
	OpponentID   string `json:"opponent_id"`
	OpponentName string `json:"opponent_name"`
}

type submitScoreRequest struct {
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
}

type gameResponse struct {
	Session *store.Session `json:"session"`
	Status  string         `json:"status"`
}

type resultResponse struct {
	Complete      bool             `json:"complete"`
	Outcome       string           `json:"outcome,omitempty"`
	WinnerID      *string          `json:"winner_id,omitempty"`
	WinnerScore   *int             `json:"winner_score,omitempty"`
	LoserScore    *int             `json:"loser_score,omitempty"`
	Payout        *decimal.Decimal `json:"payout,omitempty"`
	PayoutPending bool             `json:"payout_pending,omitempty"`
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, _, err := s.svc.Create(r.Context(), req.OwnerID, req.OwnerName, req.Stake)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gameResponse{Session: sess, Status: session.Status(sess)})
}

func (s *Server) createFreeGame(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.CreateFree(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) joinGame(w http.ResponseWriter, r *http.Request) {
	var req joinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, _, err := s.svc.Join(r.Context(), chi.URLParam(r, "id"), req.OpponentID, req.OpponentName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Session: sess, Status: session.Status(sess)})
}

func (s *Server) submitScore(w http.ResponseWriter, r *http.Request) {
	var req submitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.svc.SubmitScore(r.Context(), chi.URLParam(r, "id"), req.PlayerID, req.Score)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		Complete:      res.Complete,
		Outcome:       res.Outcome,
		WinnerID:      res.WinnerID,
		WinnerScore:   res.WinnerScore,
		LoserScore:    res.LoserScore,
		Payout:        res.Payout,
		PayoutPending: res.PayoutPending,
	})
}

func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	sess, status, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gameResponse{Session: sess, Status: status})
}

func (s *Server) cancelGame(w http.ResponseWriter, r *http.Request) {
	requester := r.URL.Query().Get("requester_id")
	if requester == "" {
		http.Error(w, "requester_id is required", http.StatusBadRequest)
		return
	}

	if err := s.svc.Cancel(r.Context(), chi.URLParam(r, "id"), requester); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLobby(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	writeJSON(w, http.StatusOK, s.lobby.List(page, pageSize))
}

func (s *Server) listLobbyByOwner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lobby.ListByOwner(chi.URLParam(r, "ownerID")))
}

func (s *Server) listLobbyByStake(w http.ResponseWriter, r *http.Request) {
	min, err := queryDecimal(r, "min")
	if err != nil {
		http.Error(w, "invalid min stake", http.StatusBadRequest)
		return
	}
	max, err := queryDecimal(r, "max")
	if err != nil {
		http.Error(w, "invalid max stake", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.lobby.ListByStakeRange(min, max))
}

func (s *Server) lobbyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lobby.Stats())
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrInvalidStake),
		errors.Is(err, session.ErrInvalidScore),
		errors.Is(err, settlement.ErrBadAddress):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrSelfJoin),
		errors.Is(err, session.ErrNotParticipant),
		errors.Is(err, session.ErrAlreadyJoined),
		errors.Is(err, session.ErrDuplicateSubmission):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		s.log.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
