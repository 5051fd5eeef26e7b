// Package kv provides the namespaced key-value stores the feed is persisted in.
//
// A Store is a flat string map with lexicographically ordered, prefix-scoped
// listing. Pagination cursors are the last key returned by the previous page.
// There is no multi-key transaction; callers order their writes.
package kv

import (
	"context"
	"strings"
)

// Namespace names, one per entity kind.
const (
	NamespacePlaylists      = "playlists"
	NamespacePlaylistGroups = "playlist-groups"
	NamespacePlaylistItems  = "playlist-items"
)

// DefaultListLimit is used when ListOptions.Limit is not positive.
const DefaultListLimit = 1000

// Store is the key-value contract consumed by the storage engine.
type Store interface {
	// Get returns the value for key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns keys in lexicographic order.
	List(ctx context.Context, opts ListOptions) (ListResult, error)
}

// ListOptions scopes a listing.
type ListOptions struct {
	Prefix string
	Limit  int
	Cursor string // exclusive start key
}

// ListResult is one page of keys.
type ListResult struct {
	Keys         []string
	Cursor       string // last key of this page, empty when ListComplete
	ListComplete bool
}

// Namespaces bundles the per-entity stores.
type Namespaces struct {
	Playlists      Store
	PlaylistGroups Store
	PlaylistItems  Store
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

// startAfter returns the exclusive lower bound of a listing, or "" when the
// listing starts at the prefix itself.
func (o ListOptions) startAfter() string {
	if o.Cursor != "" && o.Cursor >= o.Prefix {
		return o.Cursor
	}
	return ""
}

// page builds a ListResult from up to limit+1 candidate keys.
func page(keys []string, limit int) ListResult {
	if len(keys) > limit {
		keys = keys[:limit]
		return ListResult{Keys: keys, Cursor: keys[len(keys)-1], ListComplete: false}
	}
	return ListResult{Keys: keys, ListComplete: true}
}

func hasPrefix(key, prefix string) bool {
	return prefix == "" || strings.HasPrefix(key, prefix)
}
