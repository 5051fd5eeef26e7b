package feed

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dp1feed/internal/app/resolver"
	"github.com/osa030/dp1feed/internal/app/storage"
	"github.com/osa030/dp1feed/internal/domain/playlist"
	"github.com/osa030/dp1feed/internal/infra/kv"
	"github.com/osa030/dp1feed/internal/infra/signing"
)

const selfHost = "feed.example.com"

func newTestService(t *testing.T) *Service {
	t.Helper()
	_, key, err := signing.GenerateKey()
	require.NoError(t, err)

	engine := storage.New(kv.NewMemoryNamespaces(), resolver.New(resolver.Config{SelfHostedDomains: []string{selfHost}}))
	svc := New(engine, key, Config{DPVersion: "1.0.0"})
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC) }
	return svc
}

func playlistInput(title string, sources ...string) *PlaylistInput {
	in := &PlaylistInput{Title: title}
	for _, s := range sources {
		in.Items = append(in.Items, ItemInput{Source: s, Duration: 60, License: playlist.LicenseOpen})
	}
	return in
}

func TestGenerateSlug(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z0-9-]+-\d{4}$`)

	tests := []struct {
		name   string
		title  string
		prefix string
	}{
		{name: "simple", title: "Evening Loop", prefix: "evening-loop-"},
		{name: "punctuation", title: "Hello, World!", prefix: "hello-world-"},
		{name: "empty after slugify", title: "!!!", prefix: "playlist-"},
		{name: "long title", title: strings.Repeat("abc ", 40), prefix: "abc-abc-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlug(tt.title)
			assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			assert.Regexp(t, pattern, got)
			assert.LessOrEqual(t, len(got), maxSlugBase+5)
		})
	}
}

func TestCreatePlaylist(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.CreatePlaylist(ctx, playlistInput("Evening Loop", "https://art.example.com/a", "https://art.example.com/b"))
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.True(t, strings.HasPrefix(p.Slug, "evening-loop-"))
	assert.Equal(t, "1.0.0", p.DPVersion)
	assert.Equal(t, "2025-06-01T12:30:00.000Z", p.Created)
	require.Len(t, p.Items, 2)
	assert.NotEqual(t, p.Items[0].ID, p.Items[1].ID)
	assert.True(t, signing.WellFormed(p.Signature))
	assert.True(t, svc.VerifyPlaylist(p))

	stored, err := svc.GetPlaylist(ctx, p.Slug)
	require.NoError(t, err)
	assert.Equal(t, p, stored)

	item, err := svc.GetPlaylistItem(ctx, p.Items[1].ID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "https://art.example.com/b", item.Source)
}

func TestCreatePlaylist_KeepsRequestedVersion(t *testing.T) {
	svc := newTestService(t)
	in := playlistInput("Versioned", "https://art.example.com/a")
	in.DPVersion = "0.9.0"

	p, err := svc.CreatePlaylist(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "0.9.0", p.DPVersion)
}

func TestVerifyPlaylist_DetectsTampering(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.CreatePlaylist(context.Background(), playlistInput("Signed", "https://art.example.com/a"))
	require.NoError(t, err)
	require.True(t, svc.VerifyPlaylist(p))

	p.Title = "Forged"
	assert.False(t, svc.VerifyPlaylist(p))
}

func TestUpdatePlaylist(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	orig, err := svc.CreatePlaylist(ctx, playlistInput("Before", "https://art.example.com/a"))
	require.NoError(t, err)
	id, slugValue, created, oldItem := orig.ID, orig.Slug, orig.Created, orig.Items[0].ID

	svc.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	upd, err := DecodePlaylistUpdate([]byte(`{"title":"After","items":[{"source":"https://art.example.com/z","duration":5,"license":"token"}]}`))
	require.NoError(t, err)

	got, err := svc.UpdatePlaylist(ctx, slugValue, upd)
	require.NoError(t, err)

	assert.Equal(t, id, got.ID)
	assert.Equal(t, slugValue, got.Slug)
	assert.Equal(t, created, got.Created)
	assert.Equal(t, "After", got.Title)
	require.Len(t, got.Items, 1)
	assert.NotEqual(t, oldItem, got.Items[0].ID)
	assert.True(t, svc.VerifyPlaylist(got))

	stale, err := svc.GetPlaylistItem(ctx, oldItem)
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestUpdatePlaylist_TitleOnlyKeepsItems(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	orig, err := svc.CreatePlaylist(ctx, playlistInput("Before", "https://art.example.com/a"))
	require.NoError(t, err)
	itemID := orig.Items[0].ID

	got, err := svc.UpdatePlaylist(ctx, orig.ID, &PlaylistUpdate{Title: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, orig.Slug, got.Slug)
	assert.Equal(t, itemID, got.Items[0].ID)
}

func TestUpdatePlaylist_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.UpdatePlaylist(context.Background(), "no-such-playlist", &PlaylistUpdate{Title: "x"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPlaylistGroupLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreatePlaylist(ctx, playlistInput("A", "https://art.example.com/a"))
	require.NoError(t, err)
	b, err := svc.CreatePlaylist(ctx, playlistInput("B", "https://art.example.com/b1", "https://art.example.com/b2"))
	require.NoError(t, err)

	g, err := svc.CreatePlaylistGroup(ctx, &GroupInput{
		Title:     "Exhibition",
		Curator:   "Curator",
		Playlists: []string{"https://" + selfHost + "/api/v1/playlists/" + a.Slug},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(g.Slug, "exhibition-"))
	assert.Equal(t, "2025-06-01T12:30:00.000Z", g.Created)

	groups, err := svc.GroupsForPlaylist(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{g.ID}, groups)

	summary := "now with B"
	g2, err := svc.UpdatePlaylistGroup(ctx, g.Slug, &GroupUpdate{
		Title:     "Retrospective",
		Summary:   &summary,
		Playlists: []string{"https://" + selfHost + "/api/v1/playlists/" + b.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, g.ID, g2.ID)
	assert.Equal(t, g.Slug, g2.Slug)
	assert.Equal(t, g.Created, g2.Created)
	assert.Equal(t, "Retrospective", g2.Title)
	assert.Equal(t, summary, g2.Summary)

	bySlug, err := svc.GetPlaylistGroup(ctx, g.Slug)
	require.NoError(t, err)
	require.NotNil(t, bySlug)
	assert.Equal(t, "Retrospective", bySlug.Title)

	groups, err = svc.GroupsForPlaylist(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)

	page, err := svc.ListPlaylists(ctx, g.Slug, storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, b.ID, page.Items[0].ID)

	items, err := svc.ListPlaylistItems(ctx, g.ID, storage.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, items.Items, 2)
}

func TestCreatePlaylistGroup_UnresolvableReference(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePlaylistGroup(ctx, &GroupInput{
		Title:     "Broken",
		Curator:   "Curator",
		Playlists: []string{"https://" + selfHost + "/api/v1/playlists/missing"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, resolver.ErrReferenceNotFound))

	page, err := svc.ListPlaylistGroups(ctx, storage.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestListByUnknownGroup(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ListPlaylists(context.Background(), "unknown-group", storage.ListOptions{})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = svc.ListPlaylistItems(context.Background(), "unknown-group", storage.ListOptions{})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDecodeUpdates_RejectProtectedFields(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		body   string
	}{
		{
			name:   "playlist id",
			decode: func(b []byte) error { _, err := DecodePlaylistUpdate(b); return err },
			body:   `{"id":"3f1c2b9e-0000-4000-8000-000000000000"}`,
		},
		{
			name:   "playlist dpVersion",
			decode: func(b []byte) error { _, err := DecodePlaylistUpdate(b); return err },
			body:   `{"dpVersion":"2.0.0"}`,
		},
		{
			name:   "group slug",
			decode: func(b []byte) error { _, err := DecodeGroupUpdate(b); return err },
			body:   `{"slug":"renamed"}`,
		},
		{
			name:   "group created",
			decode: func(b []byte) error { _, err := DecodeGroupUpdate(b); return err },
			body:   `{"created":"2020-01-01T00:00:00.000Z"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, playlist.ErrValidation))
		})
	}
}

func TestDecodePlaylistInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"title":"T","items":[{"source":"https://a.example/1","duration":1,"license":"open"}]}`},
		{name: "missing title", body: `{"items":[{"source":"https://a.example/1","duration":1,"license":"open"}]}`, wantErr: true},
		{name: "no items", body: `{"title":"T","items":[]}`, wantErr: true},
		{name: "bad license", body: `{"title":"T","items":[{"source":"https://a.example/1","duration":1,"license":"free"}]}`, wantErr: true},
		{name: "not json", body: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePlaylistInput([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, playlist.ErrValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}
