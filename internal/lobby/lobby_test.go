package lobby

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tileduel/tileduel-backend/pkg/types"
)

type capturePub struct {
	events []types.LobbyEvent
}

func (p *capturePub) Publish(ev types.LobbyEvent) { p.events = append(p.events, ev) }

func entry(id, owner string, stake int64, created time.Time) types.LobbyEntry {
	return types.LobbyEntry{
		SessionID: id,
		OwnerID:   owner,
		OwnerName: owner,
		Stake:     decimal.NewFromInt(stake),
		CreatedAt: created,
	}
}

func TestCoordinator_AddKeepsNewestFirst(t *testing.T) {
	c := NewCoordinator(nil)
	base := time.Now().UTC()

	c.Add(entry("mid", "a", 5, base.Add(time.Minute)))
	c.Add(entry("old", "b", 5, base))
	c.Add(entry("new", "c", 5, base.Add(2*time.Minute)))

	got := c.Snapshot()
	if len(got) != 3 {
		t.Fatalf("want 3 entries, got %d", len(got))
	}
	for i, want := range []string{"new", "mid", "old"} {
		if got[i].SessionID != want {
			t.Fatalf("position %d: want %s, got %s", i, want, got[i].SessionID)
		}
	}
}

func TestCoordinator_AddSameIDReplaces(t *testing.T) {
	c := NewCoordinator(nil)
	base := time.Now().UTC()

	c.Add(entry("s1", "a", 5, base))
	c.Add(entry("s1", "a", 7, base))

	got := c.Snapshot()
	if len(got) != 1 {
		t.Fatalf("want 1 entry after replay, got %d", len(got))
	}
	if !got[0].Stake.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("want replaced stake 7, got %s", got[0].Stake)
	}
}

func TestCoordinator_RemoveUnknownIsNoop(t *testing.T) {
	c := NewCoordinator(nil)
	c.Add(entry("s1", "a", 5, time.Now().UTC()))

	c.Remove("absent")
	c.Remove("s1")
	c.Remove("s1")

	if got := c.Snapshot(); len(got) != 0 {
		t.Fatalf("want empty lobby, got %d entries", len(got))
	}
}

func TestCoordinator_PublishesMembershipEvents(t *testing.T) {
	pub := &capturePub{}
	c := NewCoordinator(pub)

	c.Add(entry("s1", "a", 5, time.Now().UTC()))
	c.Remove("s1")

	if len(pub.events) != 2 {
		t.Fatalf("want 2 events, got %d", len(pub.events))
	}
	if pub.events[0].Kind != types.EventSessionAdded || pub.events[0].Entry.SessionID != "s1" {
		t.Fatalf("unexpected add event: %+v", pub.events[0])
	}
	if pub.events[1].Kind != types.EventSessionRemoved || pub.events[1].SessionID != "s1" {
		t.Fatalf("unexpected remove event: %+v", pub.events[1])
	}
}

func TestCoordinator_ListPaginates(t *testing.T) {
	c := NewCoordinator(nil)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		c.Add(entry(string(rune('a'+i)), "o", 5, base.Add(time.Duration(i)*time.Second)))
	}

	page1 := c.List(1, 2)
	page3 := c.List(3, 2)
	beyond := c.List(9, 2)

	if len(page1) != 2 || page1[0].SessionID != "e" {
		t.Fatalf("unexpected first page: %+v", page1)
	}
	if len(page3) != 1 || page3[0].SessionID != "a" {
		t.Fatalf("unexpected last page: %+v", page3)
	}
	if len(beyond) != 0 {
		t.Fatalf("want empty page past the end, got %+v", beyond)
	}
}

func TestCoordinator_Get(t *testing.T) {
	c := NewCoordinator(nil)
	c.Add(entry("s1", "a", 5, time.Now().UTC()))

	got, ok := c.Get("s1")
	if !ok || got.SessionID != "s1" {
		t.Fatalf("want s1, got %+v ok=%v", got, ok)
	}
	if _, ok := c.Get("absent"); ok {
		t.Fatalf("want miss for unknown id")
	}
}

func TestCoordinator_ListByOwner(t *testing.T) {
	c := NewCoordinator(nil)
	base := time.Now().UTC()
	c.Add(entry("s1", "alice", 5, base))
	c.Add(entry("s2", "bob", 5, base.Add(time.Second)))
	c.Add(entry("s3", "alice", 5, base.Add(2*time.Second)))

	got := c.ListByOwner("alice")
	if len(got) != 2 || got[0].SessionID != "s3" || got[1].SessionID != "s1" {
		t.Fatalf("unexpected owner listing: %+v", got)
	}
}

func TestCoordinator_ListByStakeRange(t *testing.T) {
	c := NewCoordinator(nil)
	base := time.Now().UTC()
	c.Add(entry("low", "a", 1, base))
	c.Add(entry("mid", "b", 10, base.Add(time.Second)))
	c.Add(entry("high", "c", 100, base.Add(2*time.Second)))

	min := decimal.NewFromInt(5)
	max := decimal.NewFromInt(50)

	got := c.ListByStakeRange(&min, &max)
	if len(got) != 1 || got[0].SessionID != "mid" {
		t.Fatalf("unexpected range result: %+v", got)
	}

	open := c.ListByStakeRange(&min, nil)
	if len(open) != 2 {
		t.Fatalf("want 2 entries with open upper bound, got %d", len(open))
	}
}

func TestCoordinator_Stats(t *testing.T) {
	c := NewCoordinator(nil)
	now := time.Now().UTC()
	c.now = func() time.Time { return now }

	c.Add(entry("fresh", "a", 10, now.Add(-time.Hour)))
	c.Add(entry("mid", "b", 30, now.Add(-2*time.Hour)))
	c.Add(entry("stale", "c", 20, now.Add(-48*time.Hour)))

	st := c.Stats()
	if st.Count != 3 || st.Last24h != 2 {
		t.Fatalf("want count=3 last24h=2, got %+v", st)
	}
	if !st.TotalStake.Equal(decimal.NewFromInt(60)) || !st.AvgStake.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected totals: %+v", st)
	}
	if !st.MinStake.Equal(decimal.NewFromInt(10)) || !st.MaxStake.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("unexpected min/max: %+v", st)
	}
}

func TestCoordinator_StatsEmpty(t *testing.T) {
	st := NewCoordinator(nil).Stats()
	if st.Count != 0 || st.Last24h != 0 || !st.TotalStake.IsZero() {
		t.Fatalf("want zero stats, got %+v", st)
	}
}

func TestCoordinator_ReloadReplacesList(t *testing.T) {
	c := NewCoordinator(nil)
	base := time.Now().UTC()
	c.Add(entry("gone", "a", 5, base))

	c.Reload([]types.LobbyEntry{
		entry("old", "b", 5, base),
		entry("new", "c", 5, base.Add(time.Minute)),
	})

	got := c.Snapshot()
	if len(got) != 2 || got[0].SessionID != "new" || got[1].SessionID != "old" {
		t.Fatalf("unexpected reloaded list: %+v", got)
	}
}

func TestCoordinator_SnapshotEvent(t *testing.T) {
	c := NewCoordinator(nil)
	c.Add(entry("s1", "a", 5, time.Now().UTC()))

	ev := c.SnapshotEvent()
	if ev.Kind != types.EventLobbySnapshot || len(ev.Entries) != 1 {
		t.Fatalf("unexpected snapshot event: %+v", ev)
	}
}
