package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("session not found")
var ErrOpponentSet = errors.New("opponent already set")
var ErrScoreSet = errors.New("score already set")
var ErrAlreadyCompleted = errors.New("session already completed")
var ErrHasOpponent = errors.New("session has an opponent")

// Session is the authoritative record of one contest. Score and
// opponent fields are written through conditional updates only, so a
// value, once set, is never overwritten.
type Session struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	OwnerID      string  `gorm:"index;not null" json:"owner_id"`
	OwnerName    string  `json:"owner_name"`
	OpponentID   *string `json:"opponent_id,omitempty"`
	OpponentName *string `json:"opponent_name,omitempty"`

	Stake decimal.Decimal `gorm:"type:numeric(30,9)" json:"stake"`

	OwnerScore    *int `json:"owner_score,omitempty"`
	OpponentScore *int `json:"opponent_score,omitempty"`

	// Set exactly once, the instant both scores are present.
	Outcome       *string          `json:"outcome,omitempty"` // "owner" | "opponent" | "draw"
	WinnerID      *string          `json:"winner_id,omitempty"`
	Payout        *decimal.Decimal `gorm:"type:numeric(30,9)" json:"payout,omitempty"`
	PayoutPending bool             `json:"payout_pending"`
	PayoutReceipt *string          `json:"payout_receipt,omitempty"`

	Board json.RawMessage `gorm:"type:jsonb" json:"board"`

	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Session) TableName() string { return "sessions" }

// ScoreSlot names the participant whose score slot a write targets.
type ScoreSlot string

const (
	SlotOwner    ScoreSlot = "owner"
	SlotOpponent ScoreSlot = "opponent"
)

// Completion is the outcome record written once when both scores are in.
type Completion struct {
	Outcome       string
	WinnerID      *string
	Payout        decimal.Decimal
	PayoutPending bool
	CompletedAt   time.Time
}

// SessionStore is durable keyed storage for sessions. Every mutating
// method that guards an invariant (opponent slot, score slots,
// completion, pre-join deletion) performs its check-and-set as one
// atomic conditional write, never a read-then-write sequence.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// SetOpponent fills the opponent slot iff it is still empty.
	// Returns ErrOpponentSet when another join won the race.
	SetOpponent(ctx context.Context, id, opponentID, opponentName string) error

	// SetScore fills one participant's score slot iff it is still
	// empty. Returns ErrScoreSet on a duplicate submission.
	SetScore(ctx context.Context, id string, slot ScoreSlot, score int) error

	// Complete writes the outcome iff the session is not yet
	// completed. Returns ErrAlreadyCompleted when a concurrent
	// submission got there first; the stored outcome is never
	// recomputed or overwritten.
	Complete(ctx context.Context, id string, c Completion) error

	// DeleteWaiting removes the session iff no opponent has joined.
	DeleteWaiting(ctx context.Context, id string) error

	// SetPayoutReceipt records a successful payout and clears the
	// pending flag.
	SetPayoutReceipt(ctx context.Context, id, receipt string) error

	// ListWaiting returns sessions still awaiting an opponent, newest
	// first. Used to rebuild the lobby on startup.
	ListWaiting(ctx context.Context) ([]*Session, error)

	// ListPayoutPending returns completed sessions whose payout has
	// not been issued yet.
	ListPayoutPending(ctx context.Context) ([]*Session, error)
}
