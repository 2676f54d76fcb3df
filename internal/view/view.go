// Package view builds the button model clients render: music buttons,
// sound-effect sections and the transport status.
package view

import (
	"path"
	"regexp"
	"strings"

	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
	"github.com/austinkregel/local-media/soundboardd/internal/transport"
	"github.com/samber/lo"
)

const (
	MessageCatalogUnavailable = "Could not load the soundboard catalog."
	MessageNoMusic            = "No music files found in manifest."
	MessageNoEffects          = "No sound effects found in manifest."
)

// Paths are the asset directories, relative to the asset root
type Paths struct {
	MusicDir        string
	SoundEffectsDir string
	MusicIconsDir   string
}

// MusicButton is one track button
type MusicButton struct {
	Filename string   `json:"filename"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Icons    []string `json:"icons"` // candidates, first existing wins
	Selected bool     `json:"selected"`
	Visible  bool     `json:"visible"`
}

// EffectButton is one sound-effect button
type EffectButton struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Icon     string `json:"icon,omitempty"`
	Playing  bool   `json:"playing"`
	Visible  bool   `json:"visible"`
}

// Section is a category of effect buttons
type Section struct {
	Category string         `json:"category"`
	Effects  []EffectButton `json:"effects"`
	Visible  bool           `json:"visible"`
}

// Model is everything a client needs to draw the soundboard
type Model struct {
	Music          []MusicButton    `json:"music"`
	Sections       []Section        `json:"sections"`
	MusicMessage   string           `json:"musicMessage,omitempty"`
	EffectsMessage string           `json:"effectsMessage,omitempty"`
	Transport      transport.Status `json:"transport"`
	EffectsVolume  float64          `json:"effectsVolume"`
}

// Build renders the model. A nil catalog means the catalog could not be
// loaded. filter is a case-insensitive substring match on display names.
func Build(c *catalog.Catalog, status transport.Status, active map[string]bool, filter string, paths Paths) Model {
	m := Model{
		Music:     []MusicButton{},
		Sections:  []Section{},
		Transport: status,
	}
	if c == nil {
		m.MusicMessage = MessageCatalogUnavailable
		m.EffectsMessage = MessageCatalogUnavailable
		return m
	}

	term := strings.ToLower(strings.TrimSpace(filter))
	matches := func(name string) bool {
		return term == "" || strings.Contains(strings.ToLower(name), term)
	}

	current := ""
	if status.Track != nil {
		current = status.Track.Filename
	}

	m.Music = lo.Map(c.Tracks, func(t catalog.Track, _ int) MusicButton {
		return MusicButton{
			Filename: t.Filename,
			Name:     t.DisplayName,
			Path:     path.Join(paths.MusicDir, t.Filename),
			Icons:    MusicIconCandidates(paths.MusicIconsDir, t.Filename),
			Selected: t.Filename == current,
			Visible:  matches(t.DisplayName),
		}
	})
	if len(m.Music) == 0 {
		m.MusicMessage = MessageNoMusic
	}

	for _, cat := range c.Categories {
		effects := lo.Map(cat.Effects, func(e catalog.SoundEffect, _ int) EffectButton {
			return EffectButton{
				Key:      e.Key(),
				Filename: e.Filename,
				Name:     e.DisplayName,
				Path:     path.Join(paths.SoundEffectsDir, e.Filename),
				Icon:     e.IconPath,
				Playing:  active[e.Key()],
				Visible:  matches(e.DisplayName),
			}
		})
		m.Sections = append(m.Sections, Section{
			Category: cat.Name,
			Effects:  effects,
			Visible:  term == "" || lo.SomeBy(effects, func(b EffectButton) bool { return b.Visible }),
		})
	}
	if len(m.Sections) == 0 {
		m.EffectsMessage = MessageNoEffects
	}

	return m
}

var (
	audioExt = regexp.MustCompile(`(?i)\.(mp3|wav|ogg)$`)
	tvPrefix = regexp.MustCompile(`(?i)^tv `)
	tvInfix  = regexp.MustCompile(`(?i) tv `)
	spaces   = regexp.MustCompile(`\s+`)
)

// MusicIconCandidates lists icon paths to try for a track, in order: the
// plain name, the %20-encoded name, "TV" upper-cased and the whole name
// upper-cased.
func MusicIconCandidates(dir, filename string) []string {
	name := audioExt.ReplaceAllString(filename, "")

	tv := tvPrefix.ReplaceAllString(name, "TV ")
	if loc := tvInfix.FindStringIndex(tv); loc != nil {
		tv = tv[:loc[0]] + " TV " + tv[loc[1]:]
	}

	candidates := []string{
		name,
		spaces.ReplaceAllString(name, "%20"),
		tv,
		strings.ToUpper(name),
	}
	return lo.Map(lo.Uniq(candidates), func(n string, _ int) string {
		return path.Join(dir, n+".png")
	})
}
