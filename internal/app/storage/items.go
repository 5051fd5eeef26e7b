package storage

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/dp1feed/internal/domain/playlist"
)

// GetPlaylistItemByID returns an item, or nil when there is none.
// Items replaced by a playlist update no longer resolve.
func (e *Engine) GetPlaylistItemByID(ctx context.Context, id string) (*playlist.Item, error) {
	if !IsUUID(id) {
		return nil, nil
	}
	var it playlist.Item
	found, err := getJSON(ctx, e.items, itemIDPrefix+id, &it)
	if err != nil || !found {
		return nil, err
	}
	return &it, nil
}

// ListAllPlaylistItems lists items in key order.
func (e *Engine) ListAllPlaylistItems(ctx context.Context, opts ListOptions) (Page[*playlist.Item], error) {
	return listPage(ctx, e.items, itemIDPrefix, opts, func(ctx context.Context, id string) (*playlist.Item, bool, error) {
		it, err := e.GetPlaylistItemByID(ctx, id)
		return it, it != nil, err
	})
}

// ListPlaylistItemsByGroupID lists the items of every playlist in a group,
// playlists in index order and items in playlist order. The cursor is the ID
// of the last item returned.
func (e *Engine) ListPlaylistItemsByGroupID(ctx context.Context, groupID string, opts ListOptions) (Page[*playlist.Item], error) {
	ids, err := scanSuffixes(ctx, e.playlists, playlistByGroupPrefix+groupID+":")
	if err != nil {
		return Page[*playlist.Item]{}, err
	}

	var all []*playlist.Item
	for _, pid := range ids {
		p, err := e.getPlaylistByID(ctx, pid)
		if err != nil {
			return Page[*playlist.Item]{}, err
		}
		if p == nil {
			continue
		}
		for i := range p.Items {
			all = append(all, &p.Items[i])
		}
	}

	start := 0
	if opts.Cursor != "" {
		start = -1
		for i, it := range all {
			if it.ID == opts.Cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			return Page[*playlist.Item]{}, errors.Wrapf(ErrInvalidCursor, "%q", opts.Cursor)
		}
	}

	end := min(start+opts.limit(), len(all))
	page := Page[*playlist.Item]{Items: all[start:end], HasMore: end < len(all)}
	if page.Items == nil {
		page.Items = []*playlist.Item{}
	}
	if page.HasMore {
		page.Cursor = all[end-1].ID
	}
	return page, nil
}
