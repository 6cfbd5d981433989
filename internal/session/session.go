package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tileduel/tileduel-backend/internal/board"
	"github.com/tileduel/tileduel-backend/internal/lobby"
	"github.com/tileduel/tileduel-backend/internal/settlement"
	"github.com/tileduel/tileduel-backend/internal/store"
	"github.com/tileduel/tileduel-backend/pkg/types"
)

var ErrNotFound = errors.New("session not found")
var ErrInvalidStake = errors.New("stake must be positive")
var ErrInvalidScore = errors.New("score must be non-negative")
var ErrSelfJoin = errors.New("cannot join own session")
var ErrAlreadyJoined = errors.New("session already has an opponent")
var ErrNotParticipant = errors.New("player is not part of this session")
var ErrDuplicateSubmission = errors.New("score already submitted")
var ErrForbidden = errors.New("only the owner may cancel")

// Session statuses as reported to clients.
const (
	StatusWaiting         = "WaitingForOpponent"
	StatusBothPending     = "BothPending"
	StatusOwnerPlaying    = "OwnerPlaying"
	StatusOpponentPlaying = "OpponentPlaying"
	StatusBothCompleted   = "BothCompleted"
)

// Outcome values written to completed sessions.
const (
	OutcomeOwner    = "owner"
	OutcomeOpponent = "opponent"
	OutcomeDraw     = "draw"
)

// feeRate is the house cut taken off every settled pot.
var feeRate = decimal.RequireFromString("0.05")

// Result is what a score submission reports back. Complete is false
// while the other participant is still playing.
type Result struct {
	Complete      bool
	Outcome       string
	WinnerID      *string
	WinnerScore   *int
	LoserScore    *int
	Payout        *decimal.Decimal
	PayoutPending bool
}

// Service owns the session lifecycle: create, join, score submission,
// reconciliation and cancellation. All invariant enforcement is pushed
// down into the store's conditional writes, so any number of Service
// instances can race safely over the same database.
type Service struct {
	store  store.SessionStore
	boards *board.Generator
	lobby  *lobby.Coordinator
	payer  settlement.Payer
	log    *zap.Logger

	pairCount     int
	settleTimeout time.Duration
}

func NewService(st store.SessionStore, gen *board.Generator, lob *lobby.Coordinator, payer settlement.Payer, pairCount int, log *zap.Logger) *Service {
	return &Service{
		store:         st,
		boards:        gen,
		lobby:         lob,
		payer:         payer,
		log:           log,
		pairCount:     pairCount,
		settleTimeout: 5 * time.Second,
	}
}

// Create opens a stake-backed session and lists it in the lobby.
func (s *Service) Create(ctx context.Context, ownerID, ownerName string, stake decimal.Decimal) (*store.Session, board.Board, error) {
	if !stake.IsPositive() {
		return nil, board.Board{}, ErrInvalidStake
	}
	if err := settlement.ValidateAddress(ownerID); err != nil {
		return nil, board.Board{}, err
	}

	b, err := s.boards.Generate(s.pairCount)
	if err != nil {
		return nil, board.Board{}, err
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, board.Board{}, err
	}

	sess := &store.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		OwnerName: ownerName,
		Stake:     stake,
		Board:     raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, board.Board{}, err
	}

	s.lobby.Add(lobbyEntry(sess))
	s.log.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("owner_id", ownerID),
		zap.String("stake", stake.String()))
	return sess, b, nil
}

// CreateFree returns a practice board. Nothing is persisted or listed;
// the round runs entirely client-side against the play socket.
func (s *Service) CreateFree(_ context.Context) (board.Board, error) {
	return s.boards.Generate(s.pairCount)
}

// Join fills the opponent slot. Exactly one concurrent caller wins;
// the rest get ErrAlreadyJoined.
func (s *Service) Join(ctx context.Context, id, opponentID, opponentName string) (*store.Session, board.Board, error) {
	if err := settlement.ValidateAddress(opponentID); err != nil {
		return nil, board.Board{}, err
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, board.Board{}, mapStoreErr(err)
	}
	if sess.OwnerID == opponentID {
		return nil, board.Board{}, ErrSelfJoin
	}

	if err := s.store.SetOpponent(ctx, id, opponentID, opponentName); err != nil {
		return nil, board.Board{}, mapStoreErr(err)
	}
	s.lobby.Remove(id)

	sess, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, board.Board{}, mapStoreErr(err)
	}
	b, err := parseBoard(sess.Board)
	if err != nil {
		return nil, board.Board{}, err
	}

	s.log.Info("session joined",
		zap.String("session_id", id),
		zap.String("opponent_id", opponentID))
	return sess, b, nil
}

// SubmitScore records one participant's final score. Whichever
// submission lands second reconciles the session: it derives the
// outcome from a single consistent read and writes it exactly once.
// The losing side of a completion race reads the stored outcome back
// instead, so both callers report the same result.
func (s *Service) SubmitScore(ctx context.Context, id, playerID string, score int) (Result, error) {
	if score < 0 {
		return Result{}, ErrInvalidScore
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return Result{}, mapStoreErr(err)
	}
	slot, err := slotFor(sess, playerID)
	if err != nil {
		return Result{}, err
	}

	if err := s.store.SetScore(ctx, id, slot, score); err != nil {
		return Result{}, mapStoreErr(err)
	}

	sess, err = s.store.Get(ctx, id)
	if err != nil {
		return Result{}, mapStoreErr(err)
	}
	if sess.OwnerScore == nil || sess.OpponentScore == nil {
		return Result{Complete: false}, nil
	}
	if sess.CompletedAt != nil {
		return resultFrom(sess), nil
	}

	return s.reconcile(ctx, sess)
}

// reconcile derives the outcome from one read with both scores set and
// writes it through the store's completion guard. The guard comes
// before any money moves: only the caller whose Complete lands issues
// the payout, so two submissions racing past the completed-at check can
// never pay the winner twice. The outcome is recorded payout-pending
// until the transfer succeeds; a crash or wallet failure in between
// leaves the session for the retry job, never re-issued here.
func (s *Service) reconcile(ctx context.Context, sess *store.Session) (Result, error) {
	outcome, winnerID := deriveOutcome(sess)
	payout := payoutFor(sess.Stake, outcome)

	err := s.store.Complete(ctx, sess.ID, store.Completion{
		Outcome:       outcome,
		WinnerID:      winnerID,
		Payout:        payout,
		PayoutPending: true,
		CompletedAt:   time.Now().UTC(),
	})
	if errors.Is(err, store.ErrAlreadyCompleted) {
		// A concurrent submission completed first. Its outcome stands.
		stored, gerr := s.store.Get(ctx, sess.ID)
		if gerr != nil {
			return Result{}, mapStoreErr(gerr)
		}
		return resultFrom(stored), nil
	}
	if err != nil {
		return Result{}, mapStoreErr(err)
	}

	pending := true
	receipt, perr := s.sendPayouts(ctx, sess, outcome, winnerID, payout)
	if perr != nil {
		s.log.Warn("settlement failed, queueing retry",
			zap.String("session_id", sess.ID),
			zap.Error(perr))
	} else if err := s.store.SetPayoutReceipt(ctx, sess.ID, receipt); err != nil {
		s.log.Warn("failed to record payout receipt",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	} else {
		pending = false
	}

	s.log.Info("session completed",
		zap.String("session_id", sess.ID),
		zap.String("outcome", outcome),
		zap.Bool("payout_pending", pending))

	winnerScore, loserScore := orderedScores(sess, outcome)
	return Result{
		Complete:      true,
		Outcome:       outcome,
		WinnerID:      winnerID,
		WinnerScore:   winnerScore,
		LoserScore:    loserScore,
		Payout:        &payout,
		PayoutPending: pending,
	}, nil
}

func (s *Service) sendPayouts(ctx context.Context, sess *store.Session, outcome string, winnerID *string, payout decimal.Decimal) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()

	if outcome == OutcomeDraw {
		r1, err := s.payer.SendPayout(ctx, sess.OwnerID, payout)
		if err != nil {
			return "", err
		}
		r2, err := s.payer.SendPayout(ctx, *sess.OpponentID, payout)
		if err != nil {
			return "", err
		}
		return r1 + "," + r2, nil
	}
	return s.payer.SendPayout(ctx, *winnerID, payout)
}

// Cancel withdraws a session that nobody has joined. Owner only.
func (s *Service) Cancel(ctx context.Context, id, requesterID string) error {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}
	if sess.OwnerID != requesterID {
		return ErrForbidden
	}

	if err := s.store.DeleteWaiting(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.lobby.Remove(id)

	s.log.Info("session cancelled", zap.String("session_id", id))
	return nil
}

// Get returns the session and its derived status.
func (s *Service) Get(ctx context.Context, id string) (*store.Session, string, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", mapStoreErr(err)
	}
	return sess, Status(sess), nil
}

// ReloadLobby rebuilds the lobby list from the store. Called once at
// startup so waiting sessions survive a restart.
func (s *Service) ReloadLobby(ctx context.Context) error {
	waiting, err := s.store.ListWaiting(ctx)
	if err != nil {
		return err
	}
	entries := make([]types.LobbyEntry, 0, len(waiting))
	for _, sess := range waiting {
		entries = append(entries, lobbyEntry(sess))
	}
	s.lobby.Reload(entries)
	s.log.Info("lobby reloaded", zap.Int("sessions", len(entries)))
	return nil
}

// Status derives the client-facing phase from which slots are filled.
func Status(sess *store.Session) string {
	switch {
	case sess.OpponentID == nil:
		return StatusWaiting
	case sess.OwnerScore != nil && sess.OpponentScore != nil:
		return StatusBothCompleted
	case sess.OwnerScore != nil:
		return StatusOpponentPlaying
	case sess.OpponentScore != nil:
		return StatusOwnerPlaying
	default:
		return StatusBothPending
	}
}

func deriveOutcome(sess *store.Session) (string, *string) {
	switch {
	case *sess.OwnerScore > *sess.OpponentScore:
		id := sess.OwnerID
		return OutcomeOwner, &id
	case *sess.OpponentScore > *sess.OwnerScore:
		id := *sess.OpponentID
		return OutcomeOpponent, &id
	default:
		return OutcomeDraw, nil
	}
}

// payoutFor computes the amount each recipient receives. A winner takes
// the full pot less the fee; a draw refunds each side its own stake
// less the fee.
func payoutFor(stake decimal.Decimal, outcome string) decimal.Decimal {
	net := decimal.NewFromInt(1).Sub(feeRate)
	if outcome == OutcomeDraw {
		return stake.Mul(net)
	}
	return stake.Mul(decimal.NewFromInt(2)).Mul(net)
}

func orderedScores(sess *store.Session, outcome string) (winner, loser *int) {
	switch outcome {
	case OutcomeOwner:
		return sess.OwnerScore, sess.OpponentScore
	case OutcomeOpponent:
		return sess.OpponentScore, sess.OwnerScore
	default:
		return sess.OwnerScore, sess.OpponentScore
	}
}

func resultFrom(sess *store.Session) Result {
	r := Result{
		Complete:      true,
		WinnerID:      sess.WinnerID,
		Payout:        sess.Payout,
		PayoutPending: sess.PayoutPending,
	}
	if sess.Outcome != nil {
		r.Outcome = *sess.Outcome
		r.WinnerScore, r.LoserScore = orderedScores(sess, *sess.Outcome)
	}
	return r
}

func slotFor(sess *store.Session, playerID string) (store.ScoreSlot, error) {
	switch {
	case sess.OwnerID == playerID:
		return store.SlotOwner, nil
	case sess.OpponentID != nil && *sess.OpponentID == playerID:
		return store.SlotOpponent, nil
	default:
		return "", ErrNotParticipant
	}
}

func lobbyEntry(sess *store.Session) types.LobbyEntry {
	return types.LobbyEntry{
		SessionID: sess.ID,
		OwnerID:   sess.OwnerID,
		OwnerName: sess.OwnerName,
		Stake:     sess.Stake,
		CreatedAt: sess.CreatedAt,
	}
}

func parseBoard(raw []byte) (board.Board, error) {
	var b board.Board
	if err := json.Unmarshal(raw, &b); err != nil {
		return board.Board{}, fmt.Errorf("decode board: %w", err)
	}
	return b, nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrOpponentSet), errors.Is(err, store.ErrHasOpponent):
		return ErrAlreadyJoined
	case errors.Is(err, store.ErrScoreSet):
		return ErrDuplicateSubmission
	default:
		return err
	}
}
