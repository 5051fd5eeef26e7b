package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/dp1feed/internal/app/resolver"
	"github.com/osa030/dp1feed/internal/domain/group"
)

// maxConcurrentResolutions bounds parallel reference resolution per group save.
const maxConcurrentResolutions = 8

// SavePlaylistGroup resolves every playlist URL of g and then writes the group,
// any externally fetched playlists and the group/playlist indexes.
//
// If any reference fails to resolve, or a fetched playlist would overwrite a
// record it does not own, nothing is written. On update, index
// entries for playlists no longer referenced are removed before the new
// entries are written.
func (e *Engine) SavePlaylistGroup(ctx context.Context, g *group.Group) error {
	resolved, err := e.resolveAll(ctx, g)
	if err != nil {
		return err
	}

	owner, err := slugOwner(ctx, e.groups, groupSlugPrefix+g.Slug)
	if err != nil {
		return err
	}
	if owner != "" && owner != g.ID {
		return errors.Wrapf(ErrSlugTaken, "playlist group slug %q", g.Slug)
	}

	for _, r := range resolved {
		if !r.External() {
			continue
		}
		if err := e.checkExternal(ctx, r.Playlist, r.URL); err != nil {
			zlog.Warn().Msgf("playlist group save aborted: group=%s reason=%v", g.ID, err)
			return errors.Wrapf(err, "playlist reference %q", r.URL)
		}
	}

	newIDs := make([]string, 0, len(resolved))
	seen := make(map[string]struct{}, len(resolved))
	for _, r := range resolved {
		if _, ok := seen[r.Playlist.ID]; ok {
			continue
		}
		seen[r.Playlist.ID] = struct{}{}
		newIDs = append(newIDs, r.Playlist.ID)
	}

	// stale indexes first
	oldIDs, err := e.groupPlaylistIDs(ctx, g.ID)
	if err != nil {
		return err
	}
	for _, pid := range oldIDs {
		if _, keep := seen[pid]; keep {
			continue
		}
		if err := e.unlink(ctx, g.ID, pid); err != nil {
			return err
		}
		zlog.Debug().Msgf("removed playlist from group: group=%s playlist=%s", g.ID, pid)
	}

	if err := putJSON(ctx, e.groups, groupIDPrefix+g.ID, g); err != nil {
		return err
	}
	if err := put(ctx, e.groups, groupSlugPrefix+g.Slug, g.ID); err != nil {
		return err
	}

	for _, r := range resolved {
		if !r.External() {
			continue
		}
		if err := e.persistExternal(ctx, r.Playlist, r.URL); err != nil {
			return errors.Wrapf(err, "failed to persist external playlist %s", r.URL)
		}
	}

	for _, pid := range newIDs {
		if err := e.link(ctx, g.ID, pid); err != nil {
			return err
		}
	}
	return nil
}

// resolveAll resolves every URL of g concurrently. The first failure cancels
// the remaining resolutions.
func (e *Engine) resolveAll(ctx context.Context, g *group.Group) ([]resolver.Resolved, error) {
	results := make([]resolver.Resolved, len(g.Playlists))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentResolutions)
	for i, u := range g.Playlists {
		eg.Go(func() error {
			r, err := e.resolver.Resolve(egCtx, u, e)
			if err != nil {
				return errors.Wrapf(err, "playlist reference %q", u)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		zlog.Warn().Msgf("playlist group save aborted: group=%s reason=%v", g.ID, err)
		return nil, err
	}
	return results, nil
}

func (e *Engine) link(ctx context.Context, groupID, playlistID string) error {
	if err := put(ctx, e.playlists, playlistByGroupPrefix+groupID+":"+playlistID, "1"); err != nil {
		return err
	}
	if err := put(ctx, e.playlists, playlistToGroupsPrefix+playlistID+":"+groupID, groupID); err != nil {
		return err
	}
	return put(ctx, e.groups, groupToPlaylistsPrefix+groupID+":"+playlistID, playlistID)
}

func (e *Engine) unlink(ctx context.Context, groupID, playlistID string) error {
	if err := del(ctx, e.playlists, playlistByGroupPrefix+groupID+":"+playlistID); err != nil {
		return err
	}
	if err := del(ctx, e.playlists, playlistToGroupsPrefix+playlistID+":"+groupID); err != nil {
		return err
	}
	return del(ctx, e.groups, groupToPlaylistsPrefix+groupID+":"+playlistID)
}

// groupPlaylistIDs reads the group-to-playlists index.
func (e *Engine) groupPlaylistIDs(ctx context.Context, groupID string) ([]string, error) {
	return scanSuffixes(ctx, e.groups, groupToPlaylistsPrefix+groupID+":")
}

// GetPlaylistGroupsForPlaylist returns the IDs of groups referencing the playlist.
// It is a pure index read: group records are not consulted.
func (e *Engine) GetPlaylistGroupsForPlaylist(ctx context.Context, playlistID string) ([]string, error) {
	ids, err := scanSuffixes(ctx, e.playlists, playlistToGroupsPrefix+playlistID+":")
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// GetPlaylistGroupByIDOrSlug returns the group with the given UUID or slug,
// or nil when there is none.
func (e *Engine) GetPlaylistGroupByIDOrSlug(ctx context.Context, idOrSlug string) (*group.Group, error) {
	id := idOrSlug
	if !IsUUID(idOrSlug) {
		owner, err := slugOwner(ctx, e.groups, groupSlugPrefix+idOrSlug)
		if err != nil || owner == "" {
			return nil, err
		}
		id = owner
	}

	var g group.Group
	found, err := getJSON(ctx, e.groups, groupIDPrefix+id, &g)
	if err != nil || !found {
		return nil, err
	}
	return &g, nil
}

// PlaylistGroupSlugExists reports whether slug is taken by a group.
func (e *Engine) PlaylistGroupSlugExists(ctx context.Context, slug string) (bool, error) {
	owner, err := slugOwner(ctx, e.groups, groupSlugPrefix+slug)
	return owner != "", err
}

// ListAllPlaylistGroups lists groups in key order.
func (e *Engine) ListAllPlaylistGroups(ctx context.Context, opts ListOptions) (Page[*group.Group], error) {
	return listPage(ctx, e.groups, groupIDPrefix, opts, func(ctx context.Context, id string) (*group.Group, bool, error) {
		var g group.Group
		found, err := getJSON(ctx, e.groups, groupIDPrefix+id, &g)
		if err != nil || !found {
			return nil, false, err
		}
		return &g, true, nil
	})
}
