package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/osa030/dp1feed/internal/app/feed"
	"github.com/osa030/dp1feed/internal/app/storage"
	"github.com/osa030/dp1feed/internal/domain/playlist"
)

const groupFilterParam = "playlist-group"

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	opts, err := s.listOptions(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	page, err := s.svc.ListPlaylists(r.Context(), r.URL.Query().Get(groupFilterParam), opts)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageBody(page))
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.svc.GetPlaylist(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "playlist not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	in, err := feed.DecodePlaylistInput(body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	p, err := s.svc.CreatePlaylist(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	upd, err := feed.DecodePlaylistUpdate(body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	p, err := s.svc.UpdatePlaylist(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGroupsForPlaylist(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.GroupsForPlaylist(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groupIds": ids})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	opts, err := s.listOptions(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	page, err := s.svc.ListPlaylistGroups(r.Context(), opts)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageBody(page))
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.GetPlaylistGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "playlist group not found")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	in, err := feed.DecodeGroupInput(body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	g, err := s.svc.CreatePlaylistGroup(r.Context(), in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	upd, err := feed.DecodeGroupUpdate(body)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	g, err := s.svc.UpdatePlaylistGroup(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	opts, err := s.listOptions(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	page, err := s.svc.ListPlaylistItems(r.Context(), r.URL.Query().Get(groupFilterParam), opts)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageBody(page))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.GetPlaylistItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if it == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "playlist item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// listOptions reads limit and cursor. Out-of-range limits are clamped by storage.
func (s *Server) listOptions(r *http.Request) (storage.ListOptions, error) {
	q := r.URL.Query()
	opts := storage.ListOptions{Limit: s.opts.DefaultLimit, Cursor: q.Get("cursor")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.Mark(errors.Newf("limit %q is not a number", v), playlist.ErrValidation)
		}
		opts.Limit = n
	}
	return opts, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to read request body"), playlist.ErrValidation)
	}
	return body, nil
}
