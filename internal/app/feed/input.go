package feed

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/osa030/dp1feed/internal/domain/playlist"
)

// Fields assigned by the server that update payloads must not carry.
var (
	protectedPlaylistFields = []string{"id", "slug", "dpVersion", "created"}
	protectedGroupFields    = []string{"id", "slug", "created"}
)

// ItemInput is a playlist item as submitted by clients; the server assigns its ID.
type ItemInput struct {
	Title      string               `json:"title,omitempty" validate:"max=256"`
	Source     string               `json:"source" validate:"required,uri,max=1024"`
	Duration   int                  `json:"duration" validate:"gte=0"`
	License    string               `json:"license" validate:"required,oneof=open token subscription"`
	Display    *playlist.Display    `json:"display,omitempty"`
	Repro      *playlist.Repro      `json:"repro,omitempty"`
	Provenance *playlist.Provenance `json:"provenance,omitempty"`
}

// PlaylistInput is the body of a playlist creation.
type PlaylistInput struct {
	DPVersion string             `json:"dpVersion,omitempty" validate:"max=16"`
	Title     string             `json:"title" validate:"required,max=256"`
	Defaults  *playlist.Defaults `json:"defaults,omitempty"`
	Items     []ItemInput        `json:"items" validate:"required,min=1,max=1024,dive"`
}

// PlaylistUpdate is the body of a playlist update. Present fields replace the
// stored ones; a present items list replaces the whole item set.
type PlaylistUpdate struct {
	Title    string             `json:"title,omitempty" validate:"max=256"`
	Defaults *playlist.Defaults `json:"defaults,omitempty"`
	Items    []ItemInput        `json:"items,omitempty" validate:"omitempty,min=1,max=1024,dive"`
}

// GroupInput is the body of a playlist group creation.
type GroupInput struct {
	Title      string   `json:"title" validate:"required,max=256"`
	Curator    string   `json:"curator" validate:"required,max=128"`
	Summary    string   `json:"summary,omitempty" validate:"max=4096"`
	CoverImage string   `json:"coverImage,omitempty" validate:"omitempty,uri"`
	Playlists  []string `json:"playlists" validate:"required,min=1,max=1024,dive,url"`
}

// GroupUpdate is the body of a playlist group update.
type GroupUpdate struct {
	Title      string   `json:"title,omitempty" validate:"max=256"`
	Curator    string   `json:"curator,omitempty" validate:"max=128"`
	Summary    *string  `json:"summary,omitempty" validate:"omitempty,max=4096"`
	CoverImage *string  `json:"coverImage,omitempty" validate:"omitempty,uri"`
	Playlists  []string `json:"playlists,omitempty" validate:"omitempty,min=1,max=1024,dive,url"`
}

// DecodePlaylistInput parses a creation body.
func DecodePlaylistInput(body []byte) (*PlaylistInput, error) {
	var in PlaylistInput
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodePlaylistUpdate parses an update body, rejecting protected fields.
func DecodePlaylistUpdate(body []byte) (*PlaylistUpdate, error) {
	if err := rejectFields(body, protectedPlaylistFields); err != nil {
		return nil, err
	}
	var in PlaylistUpdate
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodeGroupInput parses a group creation body.
func DecodeGroupInput(body []byte) (*GroupInput, error) {
	var in GroupInput
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodeGroupUpdate parses a group update body, rejecting protected fields.
func DecodeGroupUpdate(body []byte) (*GroupUpdate, error) {
	if err := rejectFields(body, protectedGroupFields); err != nil {
		return nil, err
	}
	var in GroupUpdate
	if err := decode(body, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid JSON body"), playlist.ErrValidation)
	}
	return playlist.ValidateStruct(v)
}

func rejectFields(body []byte, fields []string) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid JSON body"), playlist.ErrValidation)
	}
	for _, f := range fields {
		if _, ok := raw[f]; ok {
			return errors.Mark(errors.Newf("field %q cannot be updated", f), playlist.ErrValidation)
		}
	}
	return nil
}

func (in ItemInput) toItem(id string) playlist.Item {
	return playlist.Item{
		ID:         id,
		Title:      in.Title,
		Source:     in.Source,
		Duration:   in.Duration,
		License:    in.License,
		Display:    in.Display,
		Repro:      in.Repro,
		Provenance: in.Provenance,
	}
}
