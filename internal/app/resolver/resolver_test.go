package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dp1feed/internal/domain/playlist"
)

type mapLookup map[string]*playlist.Playlist

func (m mapLookup) GetPlaylistByIDOrSlug(ctx context.Context, key string) (*playlist.Playlist, error) {
	return m[key], nil
}

type failingLookup struct{}

func (failingLookup) GetPlaylistByIDOrSlug(ctx context.Context, key string) (*playlist.Playlist, error) {
	return nil, errors.New("store down")
}

func signedPlaylist() *playlist.Playlist {
	return &playlist.Playlist{
		DPVersion: "1.0.0",
		ID:        "0b4c3e2a-6f4d-4c59-9d7a-3f1c2b7e8a90",
		Slug:      "remote-loop-77",
		Title:     "Remote Loop",
		Created:   "2025-06-01T12:00:00.000Z",
		Items: []playlist.Item{{
			ID:       "6a1f0f5e-7a8b-4c1d-9e2f-0a1b2c3d4e5f",
			Source:   "https://example.com/art.html",
			Duration: 60,
			License:  playlist.LicenseOpen,
		}},
		Signature: "ed25519:0x" + fmt.Sprintf("%0128x", 1),
	}
}

func TestPlaylistKeyFromPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "uuid", path: "/api/v1/playlists/0b4c3e2a-6f4d-4c59-9d7a-3f1c2b7e8a90", want: "0b4c3e2a-6f4d-4c59-9d7a-3f1c2b7e8a90"},
		{name: "slug", path: "/api/v1/playlists/evening-loop-1234", want: "evening-loop-1234"},
		{name: "wrong version", path: "/api/v2/playlists/abc", wantErr: true},
		{name: "wrong resource", path: "/api/v1/playlist-groups/abc", wantErr: true},
		{name: "missing key", path: "/api/v1/playlists/", wantErr: true},
		{name: "extra segment", path: "/api/v1/playlists/abc/items", wantErr: true},
		{name: "root", path: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PlaylistKeyFromPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrReferenceFormat))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_SelfHostedNeverFetches(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	host := mustHost(t, server.URL)
	p := signedPlaylist()
	local := mapLookup{p.Slug: p, p.ID: p}
	r := New(Config{SelfHostedDomains: []string{"other.example", host}})

	res, err := r.Resolve(context.Background(), server.URL+"/api/v1/playlists/"+p.Slug, local)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, res.Source)
	assert.False(t, res.External())
	assert.Equal(t, p, res.Playlist)

	res, err = r.Resolve(context.Background(), server.URL+"/api/v1/playlists/"+p.ID, local)
	require.NoError(t, err)
	assert.Equal(t, p.ID, res.Playlist.ID)

	assert.Equal(t, int32(0), hits.Load())
}

func TestResolve_SelfHostedErrors(t *testing.T) {
	r := New(Config{SelfHostedDomains: []string{"feed.example.com", "localhost:8787"}})
	ctx := context.Background()

	_, err := r.Resolve(ctx, "https://feed.example.com/api/v1/playlists/missing", mapLookup{})
	assert.True(t, errors.Is(err, ErrReferenceNotFound))

	_, err = r.Resolve(ctx, "http://localhost:8787/api/v2/playlists/x", mapLookup{})
	assert.True(t, errors.Is(err, ErrReferenceFormat))

	_, err = r.Resolve(ctx, "https://feed.example.com/api/v1/playlists/x", failingLookup{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrReferenceNotFound))
	assert.Contains(t, err.Error(), "store down")
}

func TestResolve_HostMatchIncludesPort(t *testing.T) {
	r := New(Config{SelfHostedDomains: []string{"localhost:8787"}})

	assert.True(t, r.IsSelfHosted(&url.URL{Host: "localhost:8787"}))
	assert.True(t, r.IsSelfHosted(&url.URL{Host: "LOCALHOST:8787"}))
	assert.False(t, r.IsSelfHosted(&url.URL{Host: "localhost"}))
	assert.False(t, r.IsSelfHosted(&url.URL{Host: "localhost:9000"}))
}

func TestResolve_RejectsNonHTTPURL(t *testing.T) {
	r := New(Config{})
	for _, raw := range []string{"ftp://a.example/api/v1/playlists/x", "/api/v1/playlists/x", "::"} {
		_, err := r.Resolve(context.Background(), raw, mapLookup{})
		assert.True(t, errors.Is(err, ErrReferenceFormat), raw)
	}
}

func TestResolve_Remote(t *testing.T) {
	p := signedPlaylist()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/playlists/"+p.Slug, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p)
	}))
	defer server.Close()

	r := New(Config{SelfHostedDomains: []string{"feed.example.com"}})
	res, err := r.Resolve(context.Background(), server.URL+"/api/v1/playlists/"+p.Slug, mapLookup{})
	require.NoError(t, err)

	assert.Equal(t, SourceFetched, res.Source)
	assert.True(t, res.External())
	assert.Equal(t, p, res.Playlist)
}

func TestResolve_RemoteFailures(t *testing.T) {
	unsigned := signedPlaylist()
	unsigned.Signature = ""
	invalid := signedPlaylist()
	invalid.Items = nil

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusNotFound)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "<html></html>")
			},
		},
		{
			name: "schema invalid",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(invalid)
			},
		},
		{
			name: "unsigned",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(unsigned)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			r := New(Config{})
			_, err := r.Resolve(context.Background(), server.URL+"/api/v1/playlists/x", mapLookup{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrReferenceFetch))
		})
	}
}

func TestResolve_RemoteUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := New(Config{}).Resolve(context.Background(), addr+"/api/v1/playlists/x", mapLookup{})
	assert.True(t, errors.Is(err, ErrReferenceFetch))
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}
