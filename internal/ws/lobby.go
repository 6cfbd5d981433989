package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tileduel/tileduel-backend/internal/hub"
	"github.com/tileduel/tileduel-backend/pkg/types"
)

const writeTimeout = 3 * time.Second
const resyncInterval = 30 * time.Second

// LobbyHandler streams lobby membership events to a client. The client
// gets a full snapshot on connect, deltas as they happen, and a fresh
// snapshot every resync interval so a dropped delta cannot leave it
// permanently stale.
func LobbyHandler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		out := make(chan types.LobbyEvent, 16)
		h.Send(hub.Subscribe{ID: clientID, Outbox: out})
		defer h.Send(hub.Unsubscribe{ID: clientID})

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()

		// Writer: forwards hub events and asks for periodic resyncs.
		go func() {
			ticker := time.NewTicker(resyncInterval)
			defer ticker.Stop()
			for {
				select {
				case ev, ok := <-out:
					if !ok {
						return
					}
					if err := writeEvent(writeCtx, conn, ev); err != nil {
						return
					}
				case <-ticker.C:
					h.Send(hub.Refresh{ID: clientID})
				case <-writeCtx.Done():
					return
				}
			}
		}()

		// Reader: the lobby feed is one-way, so incoming frames are
		// discarded. The read still has to run to notice the close.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("lobby socket closed",
						zap.String("client_id", clientID),
						zap.Error(err))
				}
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev types.LobbyEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
