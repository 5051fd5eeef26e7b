// Package httpapi provides the REST surface of the feed server.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osa030/dp1feed/internal/app/feed"
	"github.com/osa030/dp1feed/internal/app/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// Options configures the API.
type Options struct {
	// APISecret is the bearer token required on mutating routes.
	APISecret string
	// DefaultLimit is the page size used when a request omits limit.
	DefaultLimit int
}

// Server serves the feed API.
type Server struct {
	svc  *feed.Service
	opts Options
}

// NewServer creates a new Server.
func NewServer(svc *feed.Service, opts Options) *Server {
	if opts.DefaultLimit <= 0 || opts.DefaultLimit > storage.MaxLimit {
		opts.DefaultLimit = storage.DefaultLimit
	}
	return &Server{svc: svc, opts: opts}
}

// Router builds the HTTP handler.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/playlists", s.handleListPlaylists)
		r.Get("/playlists/{id}", s.handleGetPlaylist)
		r.Get("/playlists/{id}/playlist-groups", s.handleGroupsForPlaylist)

		r.Get("/playlist-groups", s.handleListGroups)
		r.Get("/playlist-groups/{id}", s.handleGetGroup)

		r.Get("/playlist-items", s.handleListItems)
		r.Get("/playlist-items/{id}", s.handleGetItem)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(s.opts.APISecret))

			r.Post("/playlists", s.handleCreatePlaylist)
			r.Put("/playlists/{id}", s.handleUpdatePlaylist)

			r.Post("/playlist-groups", s.handleCreateGroup)
			r.Put("/playlist-groups/{id}", s.handleUpdateGroup)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "dp1feed",
	})
}
