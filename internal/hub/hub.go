package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/tileduel/tileduel-backend/pkg/types"
)

type Msg interface{ isHubMsg() }

// Subscribe registers an observer. The hub immediately sends the
// current lobby snapshot on Outbox so the observer starts from the full
// list before deltas arrive.
type Subscribe struct {
	ID     string
	Outbox chan types.LobbyEvent
}

type Unsubscribe struct{ ID string }

// Refresh resends the full snapshot to one observer. Connections ask
// for this periodically so a dropped delta cannot leave them stale.
type Refresh struct{ ID string }

type broadcast struct{ Event types.LobbyEvent }

type Shutdown struct{}

func (Subscribe) isHubMsg()   {}
func (Unsubscribe) isHubMsg() {}
func (Refresh) isHubMsg()     {}
func (broadcast) isHubMsg()   {}
func (Shutdown) isHubMsg()    {}

// SnapshotFunc produces the current full-lobby event. Late-bound so the
// hub can be constructed before the coordinator that feeds it.
type SnapshotFunc func() types.LobbyEvent

// Hub fans lobby events out to websocket subscribers. A single
// goroutine owns the subscriber map; everything reaches it through the
// inbox, so there is no locking and no ordering ambiguity between a
// subscribe and the broadcasts around it.
type Hub struct {
	inbox    chan Msg
	subs     map[string]chan types.LobbyEvent
	snapshot SnapshotFunc
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, snapshot SnapshotFunc, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan Msg, 64),
		subs:     make(map[string]chan types.LobbyEvent),
		snapshot: snapshot,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Send enqueues a control message, giving up once the hub has shut
// down. Connection handlers use this instead of the raw inbox so a
// subscribe or unsubscribe issued during teardown cannot wedge on an
// inbox nobody drains anymore.
func (h *Hub) Send(m Msg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

// Publish enqueues an event for broadcast. Non-blocking: if the inbox
// is full the event is dropped, which the periodic snapshot resync
// repairs.
func (h *Hub) Publish(ev types.LobbyEvent) {
	select {
	case h.inbox <- broadcast{Event: ev}:
	case <-h.ctx.Done():
	default:
		h.log.Warn("hub inbox full, dropping event", zap.String("kind", ev.Kind))
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Subscribe:
				h.subs[msg.ID] = msg.Outbox
				h.send(msg.ID, h.snapshot())

			case Unsubscribe:
				if ch, ok := h.subs[msg.ID]; ok {
					close(ch)
					delete(h.subs, msg.ID)
				}

			case Refresh:
				if _, ok := h.subs[msg.ID]; ok {
					h.send(msg.ID, h.snapshot())
				}

			case broadcast:
				for id := range h.subs {
					h.send(id, msg.Event)
				}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

// send delivers without blocking. A subscriber whose channel is full is
// not keeping up; it gets closed and dropped rather than stalling the
// loop for everyone else.
func (h *Hub) send(id string, ev types.LobbyEvent) {
	ch, ok := h.subs[id]
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
		h.log.Warn("dropping slow lobby subscriber", zap.String("subscriber", id))
		close(ch)
		delete(h.subs, id)
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.cancel()
}
