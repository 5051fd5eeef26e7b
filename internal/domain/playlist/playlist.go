// Package playlist provides the Playlist domain entity.
package playlist

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ErrValidation marks malformed playlist, item or group input.
var ErrValidation = errors.New("validation failed")

// License values accepted on items and defaults.
const (
	LicenseOpen         = "open"
	LicenseToken        = "token"
	LicenseSubscription = "subscription"
)

// Playlist represents a signed, versioned collection of art items.
type Playlist struct {
	DPVersion string    `json:"dpVersion" validate:"required,max=16"`
	ID        string    `json:"id" validate:"required,uuid"`
	Slug      string    `json:"slug" validate:"required,max=80"`
	Title     string    `json:"title" validate:"required,max=256"`
	Created   string    `json:"created" validate:"required"`
	Defaults  *Defaults `json:"defaults,omitempty"`
	Items     []Item    `json:"items" validate:"required,min=1,max=1024,dive"`
	Signature string    `json:"signature,omitempty"`
}

// Defaults are applied by players to items that omit the field.
type Defaults struct {
	Display  *Display `json:"display,omitempty"`
	License  string   `json:"license,omitempty" validate:"omitempty,oneof=open token subscription"`
	Duration *int     `json:"duration,omitempty" validate:"omitempty,gte=0"`
}

// Item is a single art reference inside a playlist.
type Item struct {
	ID         string      `json:"id" validate:"required,uuid"`
	Title      string      `json:"title,omitempty" validate:"max=256"`
	Source     string      `json:"source" validate:"required,uri,max=1024"`
	Duration   int         `json:"duration" validate:"gte=0"`
	License    string      `json:"license" validate:"required,oneof=open token subscription"`
	Display    *Display    `json:"display,omitempty"`
	Repro      *Repro      `json:"repro,omitempty"`
	Provenance *Provenance `json:"provenance,omitempty"`
}

// Display holds rendering hints.
type Display struct {
	Scaling     string `json:"scaling,omitempty" validate:"omitempty,oneof=fit fill stretch auto"`
	Background  string `json:"background,omitempty"`
	Margin      any    `json:"margin,omitempty"`
	Autoplay    *bool  `json:"autoplay,omitempty"`
	Loop        *bool  `json:"loop,omitempty"`
	Interaction *struct {
		Keyboard []string `json:"keyboard,omitempty"`
		Mouse    any      `json:"mouse,omitempty"`
	} `json:"interaction,omitempty"`
}

// Repro carries what is needed to reproduce a generative work.
type Repro struct {
	EngineVersion map[string]string `json:"engineVersion,omitempty"`
	Seed          string            `json:"seed,omitempty"`
	AssetsSHA256  []string          `json:"assetsSHA256,omitempty"`
	FrameHash     *FrameHash        `json:"frameHash,omitempty"`
}

// FrameHash fingerprints a reference frame.
type FrameHash struct {
	SHA256 string `json:"sha256,omitempty"`
	PHash  string `json:"phash,omitempty"`
}

// Provenance links an item to where it was minted.
type Provenance struct {
	Type         string     `json:"type" validate:"required,oneof=onChain seriesRegistry offChainURI"`
	Contract     *Contract  `json:"contract,omitempty"`
	Dependencies []Contract `json:"dependencies,omitempty"`
}

// Contract identifies an on-chain token.
type Contract struct {
	Chain    string `json:"chain,omitempty"`
	Standard string `json:"standard,omitempty"`
	Address  string `json:"address,omitempty"`
	SeriesID any    `json:"seriesId,omitempty"`
	TokenID  string `json:"tokenId,omitempty"`
	URI      string `json:"uri,omitempty"`
	MetaHash string `json:"metaHash,omitempty"`
}

var validate = validator.New()

// Validate checks the playlist shape, items included.
func (p *Playlist) Validate() error {
	if err := validate.Struct(p); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid playlist"), ErrValidation)
	}
	return nil
}

// ValidateStruct validates any tagged input struct and marks failures as ErrValidation.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return errors.Mark(err, ErrValidation)
	}
	return nil
}

// ItemIDs returns all item IDs in the playlist.
func (p *Playlist) ItemIDs() []string {
	ids := make([]string, len(p.Items))
	for i, it := range p.Items {
		ids[i] = it.ID
	}
	return ids
}
