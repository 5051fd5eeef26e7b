package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dp1feed/internal/app/feed"
	"github.com/osa030/dp1feed/internal/app/resolver"
	"github.com/osa030/dp1feed/internal/app/storage"
	"github.com/osa030/dp1feed/internal/domain/playlist"
)

// Error codes returned in the "error" field.
const (
	codeValidation    = "validation_error"
	codeNotFound      = "not_found"
	codeUnauthorized  = "unauthorized"
	codeConflict      = "slug_conflict"
	codeInvalidCursor = "invalid_cursor"
	codeReference     = "invalid_reference"
	codeFetch         = "reference_fetch_failed"
	codeInternal      = "internal_error"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type pageBody[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"hasMore"`
}

func newPageBody[T any](p storage.Page[T]) pageBody[T] {
	items := p.Items
	if items == nil {
		items = []T{}
	}
	return pageBody[T]{Items: items, Cursor: p.Cursor, HasMore: p.HasMore}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// writeFailure maps a service error onto a status code and error body.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zlog.Error().Msgf("%s %s failed: %+v", r.Method, r.URL.Path, err)
		if status == http.StatusInternalServerError {
			writeError(w, status, code, "internal server error")
			return
		}
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	// reference errors first: an invalid fetched document also carries ErrValidation
	switch {
	case errors.Is(err, resolver.ErrReferenceFetch):
		return http.StatusBadGateway, codeFetch
	case errors.Is(err, resolver.ErrReferenceFormat), errors.Is(err, resolver.ErrReferenceNotFound):
		return http.StatusBadRequest, codeReference
	case errors.Is(err, playlist.ErrValidation):
		return http.StatusBadRequest, codeValidation
	case errors.Is(err, feed.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, storage.ErrSlugTaken):
		return http.StatusConflict, codeConflict
	case errors.Is(err, storage.ErrInvalidCursor):
		return http.StatusBadRequest, codeInvalidCursor
	default:
		return http.StatusInternalServerError, codeInternal
	}
}
