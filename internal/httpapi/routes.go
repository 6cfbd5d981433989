package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes mounts the REST surface plus the websocket endpoints,
// which are built in main and passed in ready to serve.
func SetupRoutes(s *Server, lobbyWS, playWS http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/games", func(r chi.Router) {
			r.Post("/", s.createGame)
			r.Post("/free", s.createFreeGame)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getGame)
				r.Delete("/", s.cancelGame)
				r.Post("/join", s.joinGame)
				r.Post("/score", s.submitScore)
			})
		})
		r.Route("/lobby", func(r chi.Router) {
			r.Get("/games", s.listLobby)
			r.Get("/games/by-owner/{ownerID}", s.listLobbyByOwner)
			r.Get("/games/by-stake", s.listLobbyByStake)
			r.Get("/stats", s.lobbyStats)
		})
	})

	if lobbyWS != nil {
		r.Get("/ws/lobby", lobbyWS)
	}
	if playWS != nil {
		r.Get("/ws/play", playWS)
	}
	r.Get("/healthz", Healthz)

	return r
}
