package httpapi

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tileduel/tileduel-backend/internal/board"
	"github.com/tileduel/tileduel-backend/internal/lobby"
	"github.com/tileduel/tileduel-backend/internal/session"
	"github.com/tileduel/tileduel-backend/internal/settlement"
	"github.com/tileduel/tileduel-backend/internal/store"
)

const ownerAddr = "EQDKbjIcfM6ezt8KjKJJLshZJJSqX7XOA4ff-W72r5gqPrHF"
const opponentAddr = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zap.NewNop()
	st := store.NewMemoryStore()
	lob := lobby.NewCoordinator(nil)
	gen := board.NewGenerator(rand.New(rand.NewSource(1)))
	svc := session.NewService(st, gen, lob, settlement.NewStubWallet(log), 9, log)

	srv := httptest.NewServer(SetupRoutes(NewServer(svc, lob, log), nil, nil))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createGame(t *testing.T, srv *httptest.Server, stake string) gameResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/games", map[string]any{
		"owner_id":   ownerAddr,
		"owner_name": "owner",
		"stake":      stake,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var game gameResponse
	decodeBody(t, resp, &game)
	return game
}

func TestCreateGame(t *testing.T) {
	srv := newTestServer(t)

	game := createGame(t, srv, "10")
	assert.Equal(t, session.StatusWaiting, game.Status)
	assert.Equal(t, ownerAddr, game.Session.OwnerID)

	var b board.Board
	require.NoError(t, json.Unmarshal(game.Session.Board, &b))
	assert.Len(t, b.Cells, 18)
}

func TestCreateGame_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/games", map[string]any{
		"owner_id": ownerAddr, "owner_name": "o", "stake": "0",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games", map[string]any{
		"owner_id": "nope", "owner_name": "o", "stake": "10",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFreeGame(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/games/free", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var b board.Board
	decodeBody(t, resp, &b)
	assert.Equal(t, 9, b.PairCount())
}

func TestJoinThenScoreFlow(t *testing.T) {
	srv := newTestServer(t)
	game := createGame(t, srv, "10")
	id := game.Session.ID

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/join", map[string]any{
		"opponent_id": opponentAddr, "opponent_name": "opp",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var joined gameResponse
	decodeBody(t, resp, &joined)
	assert.Equal(t, session.StatusBothPending, joined.Status)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/score", map[string]any{
		"player_id": ownerAddr, "score": 300,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first resultResponse
	decodeBody(t, resp, &first)
	assert.False(t, first.Complete)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/score", map[string]any{
		"player_id": opponentAddr, "score": 500,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second resultResponse
	decodeBody(t, resp, &second)
	assert.True(t, second.Complete)
	assert.Equal(t, "opponent", second.Outcome)
	assert.True(t, second.Payout.Equal(decimal.RequireFromString("19")))
}

func TestJoinConflicts(t *testing.T) {
	srv := newTestServer(t)
	game := createGame(t, srv, "10")
	id := game.Session.ID

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/join", map[string]any{
		"opponent_id": ownerAddr, "opponent_name": "self",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/join", map[string]any{
		"opponent_id": opponentAddr, "opponent_name": "opp",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/join", map[string]any{
		"opponent_id": "UQ" + ownerAddr[2:], "opponent_name": "late",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/missing/join", map[string]any{
		"opponent_id": opponentAddr, "opponent_name": "opp",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDuplicateScoreConflict(t *testing.T) {
	srv := newTestServer(t)
	game := createGame(t, srv, "10")
	id := game.Session.ID

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/join", map[string]any{
		"opponent_id": opponentAddr, "opponent_name": "opp",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for i, want := range []int{http.StatusOK, http.StatusConflict} {
		resp = doJSON(t, http.MethodPost, srv.URL+"/api/games/"+id+"/score", map[string]any{
			"player_id": ownerAddr, "score": 100 + i,
		})
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode)
	}
}

func TestCancelGame(t *testing.T) {
	srv := newTestServer(t)
	game := createGame(t, srv, "10")
	id := game.Session.ID

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/games/"+id+"?requester_id="+opponentAddr, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/games/"+id, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/games/"+id+"?requester_id="+ownerAddr, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/games/"+id, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLobbyEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, stake := range []string{"5", "10", "50"} {
		createGame(t, srv, stake)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/lobby/games?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page []json.RawMessage
	decodeBody(t, resp, &page)
	assert.Len(t, page, 2)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/lobby/games/by-owner/"+ownerAddr, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var byOwner []json.RawMessage
	decodeBody(t, resp, &byOwner)
	assert.Len(t, byOwner, 3)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/lobby/games/by-stake?min=6&max=20", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ranged []json.RawMessage
	decodeBody(t, resp, &ranged)
	assert.Len(t, ranged, 1)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/lobby/games/by-stake?min=abc", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/lobby/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats lobby.Stats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 3, stats.Count)
	assert.True(t, stats.TotalStake.Equal(decimal.NewFromInt(65)), "total %s", stats.TotalStake)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
