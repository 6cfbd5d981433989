package lobby

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tileduel/tileduel-backend/pkg/types"
)

// Publisher receives membership change events as they happen. The hub
// implements this; a nil publisher is valid and silently discards.
type Publisher interface {
	Publish(ev types.LobbyEvent)
}

// Stats summarizes the open sessions currently listed.
type Stats struct {
	Count      int             `json:"count"`
	TotalStake decimal.Decimal `json:"total_stake"`
	AvgStake   decimal.Decimal `json:"avg_stake"`
	MinStake   decimal.Decimal `json:"min_stake"`
	MaxStake   decimal.Decimal `json:"max_stake"`
	Last24h    int             `json:"last_24h"`
}

// Coordinator holds the live list of sessions waiting for an opponent,
// newest first. It is the single source of truth for lobby reads; the
// store is only consulted to rebuild it on startup. Every mutation is
// mirrored to the publisher so observers converge on the same list.
type Coordinator struct {
	mu      sync.RWMutex
	entries []types.LobbyEntry
	pub     Publisher
	now     func() time.Time
}

func NewCoordinator(pub Publisher) *Coordinator {
	return &Coordinator{pub: pub, now: time.Now}
}

// Add lists a session. Adding an ID that is already listed replaces the
// old entry, so replayed adds cannot duplicate a row.
func (c *Coordinator) Add(e types.LobbyEntry) {
	c.mu.Lock()
	c.removeLocked(e.SessionID)
	idx := sort.Search(len(c.entries), func(i int) bool {
		return !c.entries[i].CreatedAt.After(e.CreatedAt)
	})
	c.entries = append(c.entries, types.LobbyEntry{})
	copy(c.entries[idx+1:], c.entries[idx:])
	c.entries[idx] = e
	c.mu.Unlock()

	if c.pub != nil {
		c.pub.Publish(types.LobbyEvent{Kind: types.EventSessionAdded, Entry: &e})
	}
}

// Remove delists a session. Removing an ID that is not listed is a
// no-op apart from the event, which observers already apply
// idempotently.
func (c *Coordinator) Remove(sessionID string) {
	c.mu.Lock()
	c.removeLocked(sessionID)
	c.mu.Unlock()

	if c.pub != nil {
		c.pub.Publish(types.LobbyEvent{Kind: types.EventSessionRemoved, SessionID: sessionID})
	}
}

func (c *Coordinator) removeLocked(sessionID string) {
	for i, e := range c.entries {
		if e.SessionID == sessionID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// Reload replaces the whole list, newest first. Used once at startup
// after reading waiting sessions back from the store.
func (c *Coordinator) Reload(entries []types.LobbyEntry) {
	sorted := make([]types.LobbyEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	c.mu.Lock()
	c.entries = sorted
	c.mu.Unlock()
}

// List returns one page, newest first. page is 1-based.
func (c *Coordinator) List(page, pageSize int) []types.LobbyEntry {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	start := (page - 1) * pageSize
	if start >= len(c.entries) {
		return []types.LobbyEntry{}
	}
	end := start + pageSize
	if end > len(c.entries) {
		end = len(c.entries)
	}
	out := make([]types.LobbyEntry, end-start)
	copy(out, c.entries[start:end])
	return out
}

func (c *Coordinator) ListByOwner(ownerID string) []types.LobbyEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []types.LobbyEntry{}
	for _, e := range c.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out
}

// ListByStakeRange filters on stake inclusively. A nil bound is open.
func (c *Coordinator) ListByStakeRange(min, max *decimal.Decimal) []types.LobbyEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []types.LobbyEntry{}
	for _, e := range c.entries {
		if min != nil && e.Stake.LessThan(*min) {
			continue
		}
		if max != nil && e.Stake.GreaterThan(*max) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Stats is computed live from the current list; with a waiting lobby
// measured in hundreds of rows a linear pass is fine.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{Count: len(c.entries)}
	if st.Count == 0 {
		return st
	}

	cutoff := c.now().Add(-24 * time.Hour)
	st.MinStake = c.entries[0].Stake
	st.MaxStake = c.entries[0].Stake
	for _, e := range c.entries {
		st.TotalStake = st.TotalStake.Add(e.Stake)
		if e.Stake.LessThan(st.MinStake) {
			st.MinStake = e.Stake
		}
		if e.Stake.GreaterThan(st.MaxStake) {
			st.MaxStake = e.Stake
		}
		if e.CreatedAt.After(cutoff) {
			st.Last24h++
		}
	}
	st.AvgStake = st.TotalStake.Div(decimal.NewFromInt(int64(st.Count)))
	return st
}

// Get returns one listed entry by session id.
func (c *Coordinator) Get(sessionID string) (types.LobbyEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if e.SessionID == sessionID {
			return e, true
		}
	}
	return types.LobbyEntry{}, false
}

// Snapshot returns the full list, newest first.
func (c *Coordinator) Snapshot() []types.LobbyEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.LobbyEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// SnapshotEvent packages the full list as a wire event. Sent to each
// observer on subscribe and on periodic resync so a missed delta never
// leaves a client permanently stale.
func (c *Coordinator) SnapshotEvent() types.LobbyEvent {
	return types.LobbyEvent{Kind: types.EventLobbySnapshot, Entries: c.Snapshot()}
}
