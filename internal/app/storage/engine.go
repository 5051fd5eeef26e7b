// Package storage persists playlists, playlist groups and playlist items in
// the namespaced key-value stores and keeps their derived indexes consistent.
//
// The stores have no multi-key transactions. Saves write the primary record
// before derived indexes and remove stale derived indexes before anything
// else, so a failure mid-sequence leaves at worst a dangling index entry,
// which readers skip.
package storage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/dp1feed/internal/app/resolver"
	"github.com/osa030/dp1feed/internal/infra/kv"
)

// Key layout.
const (
	playlistIDPrefix       = "playlist:id:"
	playlistSlugPrefix     = "playlist:slug:"
	playlistExternalPrefix = "playlist:external:"
	playlistByGroupPrefix  = "playlist:playlist-group-id:"
	playlistToGroupsPrefix = "playlist-to-groups:"
	itemIDPrefix           = "playlist-item:id:"
	groupIDPrefix          = "playlist-group:id:"
	groupSlugPrefix        = "playlist-group:slug:"
	groupToPlaylistsPrefix = "group-to-playlists:"
)

// Page size bounds.
const (
	DefaultLimit = 100
	MaxLimit     = 100
)

var (
	// ErrSlugTaken is returned when a slug already points at another record.
	ErrSlugTaken = errors.New("slug already in use")
	// ErrInvalidCursor is returned for cursors that do not belong to a listing.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Resolver resolves a group's playlist URL to a playlist.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, local resolver.Lookup) (resolver.Resolved, error)
}

// ListOptions controls pagination.
type ListOptions struct {
	Limit  int
	Cursor string
}

// Page is one page of a listing. Cursor is empty when HasMore is false.
type Page[T any] struct {
	Items   []T
	Cursor  string
	HasMore bool
}

// Engine is the storage engine.
type Engine struct {
	playlists kv.Store
	groups    kv.Store
	items     kv.Store
	resolver  Resolver
}

// New creates a new Engine over ns. res resolves group references.
func New(ns *kv.Namespaces, res Resolver) *Engine {
	return &Engine{
		playlists: ns.Playlists,
		groups:    ns.PlaylistGroups,
		items:     ns.PlaylistItems,
		resolver:  res,
	}
}

// IsUUID reports whether s has the canonical 36-character UUID shape.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultLimit
	case o.Limit > MaxLimit:
		return MaxLimit
	default:
		return o.Limit
	}
}

// getJSON loads key from store into v. found is false when the key is absent.
func getJSON(ctx context.Context, store kv.Store, key string, v any) (bool, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "failed to get %s", key)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, errors.Wrapf(err, "corrupt record %s", key)
	}
	return true, nil
}

func putJSON(ctx context.Context, store kv.Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	if err := store.Put(ctx, key, string(b)); err != nil {
		return errors.Wrapf(err, "failed to put %s", key)
	}
	return nil
}

func put(ctx context.Context, store kv.Store, key, value string) error {
	if err := store.Put(ctx, key, value); err != nil {
		return errors.Wrapf(err, "failed to put %s", key)
	}
	return nil
}

func del(ctx context.Context, store kv.Store, key string) error {
	if err := store.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "failed to delete %s", key)
	}
	return nil
}

// scanSuffixes returns the key suffixes after prefix, following every page.
func scanSuffixes(ctx context.Context, store kv.Store, prefix string) ([]string, error) {
	var out []string
	cursor := ""
	for {
		res, err := store.List(ctx, kv.ListOptions{Prefix: prefix, Cursor: cursor})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list %s", prefix)
		}
		for _, k := range res.Keys {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
		if res.ListComplete {
			return out, nil
		}
		cursor = res.Cursor
	}
}

// listPage lists one page of keys under prefix and loads each with load.
// load returns nil for records that vanished; those are skipped.
func listPage[T any](
	ctx context.Context,
	store kv.Store,
	prefix string,
	opts ListOptions,
	load func(ctx context.Context, suffix string) (T, bool, error),
) (Page[T], error) {
	if opts.Cursor != "" && !strings.HasPrefix(opts.Cursor, prefix) {
		return Page[T]{}, errors.Wrapf(ErrInvalidCursor, "%q", opts.Cursor)
	}

	res, err := store.List(ctx, kv.ListOptions{
		Prefix: prefix,
		Limit:  opts.limit(),
		Cursor: opts.Cursor,
	})
	if err != nil {
		return Page[T]{}, errors.Wrapf(err, "failed to list %s", prefix)
	}

	items := make([]T, 0, len(res.Keys))
	for _, k := range res.Keys {
		v, ok, err := load(ctx, strings.TrimPrefix(k, prefix))
		if err != nil {
			return Page[T]{}, err
		}
		if !ok {
			continue
		}
		items = append(items, v)
	}

	page := Page[T]{Items: items, HasMore: !res.ListComplete}
	if page.HasMore {
		page.Cursor = res.Cursor
	}
	return page, nil
}
