package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is the in-process SessionStore. It backs local runs
// without a database and every store-level test; the mutex makes each
// conditional write a single serialized check-and-set, giving the same
// atomicity the Postgres store gets from conditional UPDATEs.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

var _ SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) SetOpponent(_ context.Context, id, opponentID, opponentName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.OpponentID != nil {
		return ErrOpponentSet
	}
	s.OpponentID = &opponentID
	s.OpponentName = &opponentName
	return nil
}

func (m *MemoryStore) SetScore(_ context.Context, id string, slot ScoreSlot, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}

	switch slot {
	case SlotOwner:
		if s.OwnerScore != nil {
			return ErrScoreSet
		}
		s.OwnerScore = &score
	case SlotOpponent:
		if s.OpponentScore != nil {
			return ErrScoreSet
		}
		s.OpponentScore = &score
	}
	return nil
}

func (m *MemoryStore) Complete(_ context.Context, id string, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.CompletedAt != nil {
		return ErrAlreadyCompleted
	}

	outcome := c.Outcome
	payout := c.Payout
	completedAt := c.CompletedAt
	s.Outcome = &outcome
	s.WinnerID = c.WinnerID
	s.Payout = &payout
	s.PayoutPending = c.PayoutPending
	s.CompletedAt = &completedAt
	return nil
}

func (m *MemoryStore) DeleteWaiting(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.OpponentID != nil {
		return ErrHasOpponent
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) SetPayoutReceipt(_ context.Context, id, receipt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.PayoutReceipt = &receipt
	s.PayoutPending = false
	return nil
}

func (m *MemoryStore) ListWaiting(_ context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.OpponentID == nil {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) ListPayoutPending(_ context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.CompletedAt != nil && s.PayoutPending {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(*out[j].CompletedAt)
	})
	return out, nil
}
