package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/tileduel/tileduel-backend/internal/board"
	"github.com/tileduel/tileduel-backend/internal/engine"
	"github.com/tileduel/tileduel-backend/internal/session"
	"github.com/tileduel/tileduel-backend/pkg/types"
)

const submitTimeout = 10 * time.Second

// PlayConfig carries the round parameters the play socket hands each
// runner.
type PlayConfig struct {
	Rules       engine.Rules
	RevealDelay time.Duration
}

// PlayHandler runs one participant's round over a websocket. The server
// owns the timers and the scoring; the client only sends selections.
// With ?free=1 the round runs against a throwaway board and nothing is
// recorded. Otherwise ?game and ?player identify the session, and the
// final score is submitted when the round completes.
func PlayHandler(svc *session.Service, cfg PlayConfig, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		free := q.Get("free") == "1"

		var (
			b        board.Board
			gameID   string
			playerID string
		)
		if free {
			var err error
			b, err = svc.CreateFree(r.Context())
			if err != nil {
				http.Error(w, "failed to generate board", http.StatusInternalServerError)
				return
			}
		} else {
			gameID, playerID = q.Get("game"), q.Get("player")
			if gameID == "" || playerID == "" {
				http.Error(w, "game and player are required", http.StatusBadRequest)
				return
			}

			sess, _, err := svc.Get(r.Context(), gameID)
			if err != nil {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			switch {
			case sess.OwnerID == playerID:
				if sess.OwnerScore != nil {
					http.Error(w, "score already submitted", http.StatusConflict)
					return
				}
			case sess.OpponentID != nil && *sess.OpponentID == playerID:
				if sess.OpponentScore != nil {
					http.Error(w, "score already submitted", http.StatusConflict)
					return
				}
			default:
				http.Error(w, "not a participant", http.StatusForbidden)
				return
			}
			if err := json.Unmarshal(sess.Board, &b); err != nil {
				http.Error(w, "corrupt board", http.StatusInternalServerError)
				return
			}
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		scores := make(chan int, 1)
		runner := engine.NewRunner(ctx, engine.NewState(b, cfg.Rules), clockwork.NewRealClock(),
			func(score int) { scores <- score },
			engine.WithRevealDelay(cfg.RevealDelay))

		go func() {
			for snap := range runner.Outbox() {
				if err := writeRound(ctx, conn, stateMessage(snap.State)); err != nil {
					cancel()
					return
				}
			}

			// Outbox closed: either the round completed and a score is
			// waiting, or the connection went away mid-round.
			select {
			case score := <-scores:
				msg := finishRound(svc, gameID, playerID, score, free, log)
				_ = writeRound(context.Background(), conn, msg)
				conn.Close(websocket.StatusNormalClosure, "round complete")
			default:
			}
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}

			var pm types.PlayerMessage
			if err := json.Unmarshal(data, &pm); err != nil {
				_ = writeRound(ctx, conn, types.RoundMessage{Type: "Error", Error: "bad json"})
				continue
			}
			if pm.Type != "SelectCell" {
				_ = writeRound(ctx, conn, types.RoundMessage{Type: "Error", Error: "unknown type"})
				continue
			}

			select {
			case runner.Inbox() <- engine.Select{CellID: pm.CellID}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// finishRound turns the final score into the closing message. For
// staked rounds it submits upstream first; the reconciliation result
// rides back to the client on the same frame.
func finishRound(svc *session.Service, gameID, playerID string, score int, free bool, log *zap.Logger) types.RoundMessage {
	msg := types.RoundMessage{Type: "RoundResult", Score: score, Complete: true}
	if free {
		return msg
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	res, err := svc.SubmitScore(ctx, gameID, playerID, score)
	if err != nil {
		log.Warn("score submission failed",
			zap.String("session_id", gameID),
			zap.String("player_id", playerID),
			zap.Error(err))
		return types.RoundMessage{Type: "Error", Error: "score submission failed", Score: score}
	}

	msg.Complete = res.Complete
	msg.Outcome = res.Outcome
	msg.Winner = res.WinnerID
	msg.WinnerScore = res.WinnerScore
	msg.LoserScore = res.LoserScore
	msg.Payout = res.Payout
	msg.PayoutPending = res.PayoutPending
	return msg
}

func stateMessage(s engine.State) types.RoundMessage {
	matched := make([]int, 0, len(s.Matched))
	for id := range s.Matched {
		matched = append(matched, id)
	}
	sort.Ints(matched)

	return types.RoundMessage{
		Type:      "RoundState",
		Phase:     string(s.Phase),
		Countdown: s.Countdown,
		Remaining: s.Remaining,
		Score:     s.Score,
		Selected:  s.Selected,
		Matched:   matched,
	}
}

func writeRound(ctx context.Context, conn *websocket.Conn, msg types.RoundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
