// Package group provides the PlaylistGroup domain entity.
package group

import "github.com/osa030/dp1feed/internal/domain/playlist"

// Group is a curated collection of playlists referenced by URL.
// URLs may point at this server or at another deployment.
type Group struct {
	ID         string   `json:"id" validate:"required,uuid"`
	Slug       string   `json:"slug" validate:"required,max=80"`
	Title      string   `json:"title" validate:"required,max=256"`
	Curator    string   `json:"curator" validate:"required,max=128"`
	Summary    string   `json:"summary,omitempty" validate:"max=4096"`
	CoverImage string   `json:"coverImage,omitempty" validate:"omitempty,uri"`
	Created    string   `json:"created" validate:"required"`
	Playlists  []string `json:"playlists" validate:"required,min=1,max=1024,dive,url"`
}

// Validate checks the group shape.
func (g *Group) Validate() error {
	return playlist.ValidateStruct(g)
}
