// Package resolver resolves playlist URLs referenced by playlist groups.
//
// URLs whose host matches one of the configured self-hosted domains are
// looked up locally and never fetched; any other URL is fetched over HTTP and
// must return a signed playlist document.
package resolver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dp1feed/internal/domain/playlist"
	"github.com/osa030/dp1feed/internal/infra/metrics"
	"github.com/osa030/dp1feed/internal/infra/signing"
)

// PlaylistPathPrefix is the path every self-hosted playlist URL starts with.
const PlaylistPathPrefix = "/api/v1/playlists/"

const maxBodyBytes = 4 << 20

var (
	ErrReferenceFormat   = errors.New("malformed playlist reference")
	ErrReferenceNotFound = errors.New("playlist reference not found")
	ErrReferenceFetch    = errors.New("failed to fetch playlist reference")
)

// Source tells where a resolved playlist came from.
type Source int

const (
	// SourceLocal means the playlist is self-hosted and already stored.
	SourceLocal Source = iota + 1
	// SourceFetched means the playlist was fetched from another server.
	SourceFetched
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceFetched:
		return "remote"
	default:
		return "unknown"
	}
}

// Resolved is a playlist reference resolved to a playlist.
type Resolved struct {
	URL      string
	Source   Source
	Playlist *playlist.Playlist
}

// External reports whether the playlist must be persisted by the caller.
func (r Resolved) External() bool {
	return r.Source == SourceFetched
}

// Lookup finds a locally stored playlist by UUID or slug.
// It returns nil, nil when absent.
type Lookup interface {
	GetPlaylistByIDOrSlug(ctx context.Context, idOrSlug string) (*playlist.Playlist, error)
}

// Config represents resolver configuration.
type Config struct {
	SelfHostedDomains []string
	FetchTimeout      time.Duration
}

// Resolver resolves playlist references.
type Resolver struct {
	domains    map[string]struct{}
	httpClient *http.Client
}

// New creates a new Resolver.
func New(cfg Config) *Resolver {
	domains := make(map[string]struct{}, len(cfg.SelfHostedDomains))
	for _, d := range cfg.SelfHostedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains[d] = struct{}{}
		}
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		domains:    domains,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve resolves rawURL, using local for self-hosted references.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, local Lookup) (Resolved, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Resolved{}, errors.Wrapf(ErrReferenceFormat, "%q is not an absolute http(s) URL", rawURL)
	}

	if r.IsSelfHosted(u) {
		res, err := r.resolveLocal(ctx, u, rawURL, local)
		observe(SourceLocal, err)
		return res, err
	}

	res, err := r.fetch(ctx, rawURL)
	observe(SourceFetched, err)
	return res, err
}

// IsSelfHosted reports whether u's host[:port] is a configured domain.
func (r *Resolver) IsSelfHosted(u *url.URL) bool {
	_, ok := r.domains[strings.ToLower(u.Host)]
	return ok
}

func (r *Resolver) resolveLocal(ctx context.Context, u *url.URL, rawURL string, local Lookup) (Resolved, error) {
	key, err := PlaylistKeyFromPath(u.Path)
	if err != nil {
		return Resolved{}, errors.Wrapf(err, "reference %q", rawURL)
	}

	p, err := local.GetPlaylistByIDOrSlug(ctx, key)
	if err != nil {
		return Resolved{}, errors.Wrapf(err, "failed to look up %q", key)
	}
	if p == nil {
		return Resolved{}, errors.Wrapf(ErrReferenceNotFound, "self-hosted playlist %q", key)
	}

	zlog.Debug().Msgf("resolved self-hosted playlist reference: url=%s id=%s", rawURL, p.ID)
	return Resolved{URL: rawURL, Source: SourceLocal, Playlist: p}, nil
}

// PlaylistKeyFromPath extracts the playlist UUID or slug from a
// /api/v1/playlists/{key} path.
func PlaylistKeyFromPath(path string) (string, error) {
	if !strings.HasPrefix(path, PlaylistPathPrefix) {
		return "", errors.Wrapf(ErrReferenceFormat, "path %q does not start with %s", path, PlaylistPathPrefix)
	}
	key := strings.TrimPrefix(path, PlaylistPathPrefix)
	if key == "" || strings.Contains(key, "/") {
		return "", errors.Wrapf(ErrReferenceFormat, "path %q must end with a single playlist id or slug", path)
	}
	return key, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (Resolved, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Resolved{}, errors.Mark(errors.Wrap(err, "failed to create request"), ErrReferenceFetch)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Resolved{}, errors.Mark(errors.Wrapf(err, "GET %s", rawURL), ErrReferenceFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Resolved{}, errors.Wrapf(ErrReferenceFetch, "GET %s returned %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Resolved{}, errors.Mark(errors.Wrap(err, "failed to read response body"), ErrReferenceFetch)
	}

	var p playlist.Playlist
	if err := json.Unmarshal(body, &p); err != nil {
		return Resolved{}, errors.Mark(errors.Wrapf(err, "GET %s returned invalid JSON", rawURL), ErrReferenceFetch)
	}
	if err := p.Validate(); err != nil {
		return Resolved{}, errors.Mark(errors.Wrapf(err, "GET %s returned an invalid playlist", rawURL), ErrReferenceFetch)
	}
	if !signing.WellFormed(p.Signature) {
		return Resolved{}, errors.Wrapf(ErrReferenceFetch, "GET %s returned an unsigned playlist", rawURL)
	}

	zlog.Debug().Msgf("fetched external playlist reference: url=%s id=%s", rawURL, p.ID)
	return Resolved{URL: rawURL, Source: SourceFetched, Playlist: &p}, nil
}

func observe(src Source, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ReferenceResolutionsTotal.WithLabelValues(src.String(), outcome).Inc()
}
