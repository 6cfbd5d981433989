package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lobby event kinds pushed to observers. Observers apply them
// idempotently (add-if-absent, remove-if-present) and treat a snapshot
// as a full replacement of their local list.
const (
	EventSessionAdded   = "session_added"
	EventSessionRemoved = "session_removed"
	EventLobbySnapshot  = "lobby_snapshot"
)

// LobbyEntry is the public projection of a session still waiting for an
// opponent.
type LobbyEntry struct {
	SessionID string          `json:"session_id"`
	OwnerID   string          `json:"owner_id"`
	OwnerName string          `json:"owner_name"`
	Stake     decimal.Decimal `json:"stake"`
	CreatedAt time.Time       `json:"created_at"`
}

// LobbyEvent is the wire message for lobby membership changes. Exactly
// one of Entry, SessionID or Entries is set, depending on Kind.
type LobbyEvent struct {
	Kind      string       `json:"kind"`
	Entry     *LobbyEntry  `json:"entry,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Entries   []LobbyEntry `json:"entries,omitempty"`
}

// Client -> server message on the play socket.
type PlayerMessage struct {
	Type   string `json:"type"` // "SelectCell"
	CellID int    `json:"cell_id,omitempty"`
}

// Server -> client message on the play socket.
type RoundMessage struct {
	Type      string `json:"type"` // "RoundState" | "RoundResult" | "Error"
	Phase     string `json:"phase,omitempty"`
	Countdown int    `json:"countdown,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	Score     int    `json:"score,omitempty"`
	Selected  []int  `json:"selected,omitempty"`
	Matched   []int  `json:"matched,omitempty"`
	Error     string `json:"error,omitempty"`

	// RoundResult only.
	Complete      bool             `json:"complete,omitempty"`
	Outcome       string           `json:"outcome,omitempty"`
	Winner        *string          `json:"winner,omitempty"`
	WinnerScore   *int             `json:"winner_score,omitempty"`
	LoserScore    *int             `json:"loser_score,omitempty"`
	Payout        *decimal.Decimal `json:"payout,omitempty"`
	PayoutPending bool             `json:"payout_pending,omitempty"`
}
