// Package feed implements the playlist and playlist group use cases:
// server-assigned identity, slugs, timestamps and signatures on top of the
// storage engine.
package feed

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dp1feed/internal/app/storage"
	"github.com/osa030/dp1feed/internal/domain/group"
	"github.com/osa030/dp1feed/internal/domain/playlist"
	"github.com/osa030/dp1feed/internal/infra/metrics"
	"github.com/osa030/dp1feed/internal/infra/signing"
)

// ErrNotFound is returned when an update targets a missing record.
var ErrNotFound = errors.New("not found")

const (
	maxSlugBase     = 64
	slugAttempts    = 10
	createdLayout   = "2006-01-02T15:04:05.000Z"
	defaultVersion  = "1.0.0"
	fallbackSlugKey = "playlist"
)

// Config represents feed service configuration.
type Config struct {
	DPVersion string
}

// Service implements the feed use cases.
type Service struct {
	store     *storage.Engine
	key       ed25519.PrivateKey
	dpVersion string
	now       func() time.Time
}

// New creates a new Service signing with key.
func New(store *storage.Engine, key ed25519.PrivateKey, cfg Config) *Service {
	version := cfg.DPVersion
	if version == "" {
		version = defaultVersion
	}
	return &Service{
		store:     store,
		key:       key,
		dpVersion: version,
		now:       time.Now,
	}
}

// PublicKey returns the key verifying this server's signatures.
func (s *Service) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// CreatePlaylist assigns identity, slug, timestamp and item IDs, signs and saves.
func (s *Service) CreatePlaylist(ctx context.Context, in *PlaylistInput) (*playlist.Playlist, error) {
	slugValue, err := s.uniqueSlug(ctx, in.Title, s.store.PlaylistSlugExists)
	if err != nil {
		return nil, err
	}

	p := &playlist.Playlist{
		DPVersion: in.DPVersion,
		ID:        uuid.NewString(),
		Slug:      slugValue,
		Title:     in.Title,
		Created:   s.timestamp(),
		Defaults:  in.Defaults,
		Items:     newItems(in.Items),
	}
	if p.DPVersion == "" {
		p.DPVersion = s.dpVersion
	}

	if err := s.signAndSave(ctx, p); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("playlist created: id=%s slug=%s items=%d", p.ID, p.Slug, len(p.Items))
	return p, nil
}

// UpdatePlaylist applies upd to the stored playlist, keeping id, slug,
// dpVersion and created, and re-signs it.
func (s *Service) UpdatePlaylist(ctx context.Context, idOrSlug string, upd *PlaylistUpdate) (*playlist.Playlist, error) {
	p, err := s.store.GetPlaylistByIDOrSlug(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Wrapf(ErrNotFound, "playlist %q", idOrSlug)
	}

	if upd.Title != "" {
		p.Title = upd.Title
	}
	if upd.Defaults != nil {
		p.Defaults = upd.Defaults
	}
	if upd.Items != nil {
		p.Items = newItems(upd.Items)
	}

	if err := s.signAndSave(ctx, p); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("playlist updated: id=%s slug=%s items=%d", p.ID, p.Slug, len(p.Items))
	return p, nil
}

func (s *Service) signAndSave(ctx context.Context, p *playlist.Playlist) error {
	p.Signature = ""
	sig, err := signing.Sign(p, s.key)
	if err != nil {
		return errors.Wrap(err, "failed to sign playlist")
	}
	p.Signature = sig
	metrics.SignaturesTotal.WithLabelValues("playlist").Inc()

	if err := p.Validate(); err != nil {
		return err
	}
	if err := s.store.SavePlaylist(ctx, p); err != nil {
		return errors.Wrap(err, "failed to save playlist")
	}
	return nil
}

// VerifyPlaylist checks p's signature against this server's key.
func (s *Service) VerifyPlaylist(p *playlist.Playlist) bool {
	return signing.Verify(p, p.Signature, s.PublicKey())
}

// CreatePlaylistGroup assigns identity, slug and timestamp and saves the group.
// The save fails if any referenced playlist cannot be resolved.
func (s *Service) CreatePlaylistGroup(ctx context.Context, in *GroupInput) (*group.Group, error) {
	slugValue, err := s.uniqueSlug(ctx, in.Title, s.store.PlaylistGroupSlugExists)
	if err != nil {
		return nil, err
	}

	g := &group.Group{
		ID:         uuid.NewString(),
		Slug:       slugValue,
		Title:      in.Title,
		Curator:    in.Curator,
		Summary:    in.Summary,
		CoverImage: in.CoverImage,
		Created:    s.timestamp(),
		Playlists:  in.Playlists,
	}
	if err := s.saveGroup(ctx, g); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("playlist group created: id=%s slug=%s playlists=%d", g.ID, g.Slug, len(g.Playlists))
	return g, nil
}

// UpdatePlaylistGroup applies upd to the stored group, keeping id, slug and created.
func (s *Service) UpdatePlaylistGroup(ctx context.Context, idOrSlug string, upd *GroupUpdate) (*group.Group, error) {
	g, err := s.store.GetPlaylistGroupByIDOrSlug(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.Wrapf(ErrNotFound, "playlist group %q", idOrSlug)
	}

	if upd.Title != "" {
		g.Title = upd.Title
	}
	if upd.Curator != "" {
		g.Curator = upd.Curator
	}
	if upd.Summary != nil {
		g.Summary = *upd.Summary
	}
	if upd.CoverImage != nil {
		g.CoverImage = *upd.CoverImage
	}
	if upd.Playlists != nil {
		g.Playlists = upd.Playlists
	}

	if err := s.saveGroup(ctx, g); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("playlist group updated: id=%s slug=%s playlists=%d", g.ID, g.Slug, len(g.Playlists))
	return g, nil
}

func (s *Service) saveGroup(ctx context.Context, g *group.Group) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if err := s.store.SavePlaylistGroup(ctx, g); err != nil {
		return errors.Wrap(err, "failed to save playlist group")
	}
	return nil
}

// GetPlaylist returns a playlist by UUID or slug, nil when absent.
func (s *Service) GetPlaylist(ctx context.Context, idOrSlug string) (*playlist.Playlist, error) {
	return s.store.GetPlaylistByIDOrSlug(ctx, idOrSlug)
}

// ListPlaylists lists all playlists, or those of a group when groupRef is set.
func (s *Service) ListPlaylists(ctx context.Context, groupRef string, opts storage.ListOptions) (storage.Page[*playlist.Playlist], error) {
	if groupRef == "" {
		return s.store.ListAllPlaylists(ctx, opts)
	}
	groupID, err := s.groupID(ctx, groupRef)
	if err != nil {
		return storage.Page[*playlist.Playlist]{}, err
	}
	return s.store.ListPlaylistsByGroupID(ctx, groupID, opts)
}

// GetPlaylistGroup returns a group by UUID or slug, nil when absent.
func (s *Service) GetPlaylistGroup(ctx context.Context, idOrSlug string) (*group.Group, error) {
	return s.store.GetPlaylistGroupByIDOrSlug(ctx, idOrSlug)
}

// ListPlaylistGroups lists all groups.
func (s *Service) ListPlaylistGroups(ctx context.Context, opts storage.ListOptions) (storage.Page[*group.Group], error) {
	return s.store.ListAllPlaylistGroups(ctx, opts)
}

// GetPlaylistItem returns an item by UUID, nil when absent.
func (s *Service) GetPlaylistItem(ctx context.Context, id string) (*playlist.Item, error) {
	return s.store.GetPlaylistItemByID(ctx, id)
}

// ListPlaylistItems lists all items, or those of a group when groupRef is set.
func (s *Service) ListPlaylistItems(ctx context.Context, groupRef string, opts storage.ListOptions) (storage.Page[*playlist.Item], error) {
	if groupRef == "" {
		return s.store.ListAllPlaylistItems(ctx, opts)
	}
	groupID, err := s.groupID(ctx, groupRef)
	if err != nil {
		return storage.Page[*playlist.Item]{}, err
	}
	return s.store.ListPlaylistItemsByGroupID(ctx, groupID, opts)
}

// GroupsForPlaylist returns the IDs of groups referencing a playlist.
func (s *Service) GroupsForPlaylist(ctx context.Context, idOrSlug string) ([]string, error) {
	p, err := s.store.GetPlaylistByIDOrSlug(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Wrapf(ErrNotFound, "playlist %q", idOrSlug)
	}
	return s.store.GetPlaylistGroupsForPlaylist(ctx, p.ID)
}

func (s *Service) groupID(ctx context.Context, ref string) (string, error) {
	if storage.IsUUID(ref) {
		return ref, nil
	}
	g, err := s.store.GetPlaylistGroupByIDOrSlug(ctx, ref)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "", errors.Wrapf(ErrNotFound, "playlist group %q", ref)
	}
	return g.ID, nil
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(createdLayout)
}

// uniqueSlug derives a slug from title with a random numeric suffix,
// retrying while exists reports a collision.
func (s *Service) uniqueSlug(ctx context.Context, title string, exists func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < slugAttempts; i++ {
		candidate := GenerateSlug(title)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		zlog.Debug().Msgf("slug collision, retrying: slug=%s attempt=%d", candidate, i+1)
	}
	return "", errors.Newf("could not find a free slug for %q after %d attempts", title, slugAttempts)
}

// GenerateSlug returns a URL-safe slug for title with a random 4-digit suffix.
func GenerateSlug(title string) string {
	base := slug.Make(title)
	if len(base) > maxSlugBase {
		base = strings.TrimRight(base[:maxSlugBase], "-")
	}
	if base == "" {
		base = fallbackSlugKey
	}
	return fmt.Sprintf("%s-%04d", base, rand.IntN(10000))
}

func newItems(in []ItemInput) []playlist.Item {
	items := make([]playlist.Item, len(in))
	for i, it := range in {
		items[i] = it.toItem(uuid.NewString())
	}
	return items
}
