package storage

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dp1feed/internal/app/resolver"
	"github.com/osa030/dp1feed/internal/domain/playlist"
	"github.com/osa030/dp1feed/internal/infra/kv"
)

// SavePlaylist writes p, its slug pointer and its items.
//
// When p replaces a stored version, item records that are not part of the new
// item set are deleted after the new records are written. A non-nil error means
// the caller must not assume any of the writes happened.
func (e *Engine) SavePlaylist(ctx context.Context, p *playlist.Playlist) error {
	owner, err := slugOwner(ctx, e.playlists, playlistSlugPrefix+p.Slug)
	if err != nil {
		return err
	}
	if owner != "" && owner != p.ID {
		return errors.Wrapf(ErrSlugTaken, "playlist slug %q", p.Slug)
	}
	return e.savePlaylist(ctx, p, true)
}

// persistExternal caches a playlist fetched from origin. Its slug pointer is
// only written when the slug is free or already ours. The origin marker is
// written first so a cached record is never mistaken for a self-hosted one.
func (e *Engine) persistExternal(ctx context.Context, p *playlist.Playlist, origin string) error {
	owner, err := slugOwner(ctx, e.playlists, playlistSlugPrefix+p.Slug)
	if err != nil {
		return err
	}
	writeSlug := owner == "" || owner == p.ID
	if !writeSlug {
		zlog.Warn().Msgf("external playlist slug already in use, not indexing slug: slug=%s id=%s owner=%s", p.Slug, p.ID, owner)
	}
	if err := put(ctx, e.playlists, playlistExternalPrefix+p.ID, origin); err != nil {
		return err
	}
	return e.savePlaylist(ctx, p, writeSlug)
}

// checkExternal fails when caching a playlist fetched from origin would
// overwrite a self-hosted playlist, a playlist cached from another server, or
// an item record belonging to another playlist.
func (e *Engine) checkExternal(ctx context.Context, p *playlist.Playlist, origin string) error {
	previous, err := e.getPlaylistByID(ctx, p.ID)
	if err != nil {
		return err
	}

	owned := map[string]struct{}{}
	if previous != nil {
		cachedFrom, found, err := e.playlists.Get(ctx, playlistExternalPrefix+p.ID)
		if err != nil {
			return errors.Wrapf(err, "failed to get %s%s", playlistExternalPrefix, p.ID)
		}
		if !found {
			return errors.Wrapf(resolver.ErrReferenceFetch, "%s returned id %s of a self-hosted playlist", origin, p.ID)
		}
		if !sameHost(cachedFrom, origin) {
			return errors.Wrapf(resolver.ErrReferenceFetch, "%s returned id %s already cached from %s", origin, p.ID, cachedFrom)
		}
		for _, id := range previous.ItemIDs() {
			owned[id] = struct{}{}
		}
	}

	for _, id := range p.ItemIDs() {
		if _, ok := owned[id]; ok {
			continue
		}
		_, found, err := e.items.Get(ctx, itemIDPrefix+id)
		if err != nil {
			return errors.Wrapf(err, "failed to get %s%s", itemIDPrefix, id)
		}
		if found {
			return errors.Wrapf(resolver.ErrReferenceFetch, "%s returned item id %s owned by another playlist", origin, id)
		}
	}
	return nil
}

func sameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}

func (e *Engine) savePlaylist(ctx context.Context, p *playlist.Playlist, writeSlug bool) error {
	previous, err := e.getPlaylistByID(ctx, p.ID)
	if err != nil {
		return err
	}

	if err := putJSON(ctx, e.playlists, playlistIDPrefix+p.ID, p); err != nil {
		return err
	}
	if writeSlug {
		if err := put(ctx, e.playlists, playlistSlugPrefix+p.Slug, p.ID); err != nil {
			return err
		}
	}
	for i := range p.Items {
		if err := putJSON(ctx, e.items, itemIDPrefix+p.Items[i].ID, &p.Items[i]); err != nil {
			return err
		}
	}

	if previous == nil {
		return nil
	}

	current := make(map[string]struct{}, len(p.Items))
	for _, id := range p.ItemIDs() {
		current[id] = struct{}{}
	}
	for _, id := range previous.ItemIDs() {
		if _, ok := current[id]; ok {
			continue
		}
		if err := del(ctx, e.items, itemIDPrefix+id); err != nil {
			return err
		}
	}
	if previous.Slug != p.Slug {
		if owner, err := slugOwner(ctx, e.playlists, playlistSlugPrefix+previous.Slug); err == nil && owner == p.ID {
			if err := del(ctx, e.playlists, playlistSlugPrefix+previous.Slug); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetPlaylistByIDOrSlug returns the playlist with the given UUID or slug,
// or nil when there is none.
func (e *Engine) GetPlaylistByIDOrSlug(ctx context.Context, idOrSlug string) (*playlist.Playlist, error) {
	if IsUUID(idOrSlug) {
		return e.getPlaylistByID(ctx, idOrSlug)
	}

	id, err := slugOwner(ctx, e.playlists, playlistSlugPrefix+idOrSlug)
	if err != nil || id == "" {
		return nil, err
	}
	return e.getPlaylistByID(ctx, id)
}

func (e *Engine) getPlaylistByID(ctx context.Context, id string) (*playlist.Playlist, error) {
	var p playlist.Playlist
	found, err := getJSON(ctx, e.playlists, playlistIDPrefix+id, &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// PlaylistSlugExists reports whether slug is taken by a playlist.
func (e *Engine) PlaylistSlugExists(ctx context.Context, slug string) (bool, error) {
	owner, err := slugOwner(ctx, e.playlists, playlistSlugPrefix+slug)
	return owner != "", err
}

// ListAllPlaylists lists playlists in key order.
func (e *Engine) ListAllPlaylists(ctx context.Context, opts ListOptions) (Page[*playlist.Playlist], error) {
	return listPage(ctx, e.playlists, playlistIDPrefix, opts, e.loadPlaylist)
}

// ListPlaylistsByGroupID lists the playlists referenced by a group.
// Index entries whose playlist no longer exists are skipped.
func (e *Engine) ListPlaylistsByGroupID(ctx context.Context, groupID string, opts ListOptions) (Page[*playlist.Playlist], error) {
	return listPage(ctx, e.playlists, playlistByGroupPrefix+groupID+":", opts, e.loadPlaylist)
}

func (e *Engine) loadPlaylist(ctx context.Context, id string) (*playlist.Playlist, bool, error) {
	p, err := e.getPlaylistByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		zlog.Debug().Msgf("skipping dangling playlist index entry: id=%s", id)
		return nil, false, nil
	}
	return p, true, nil
}

// slugOwner returns the ID a slug pointer refers to, or "" when unset.
func slugOwner(ctx context.Context, store kv.Store, key string) (string, error) {
	id, found, err := store.Get(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "failed to get %s", key)
	}
	if !found {
		return "", nil
	}
	return id, nil
}
