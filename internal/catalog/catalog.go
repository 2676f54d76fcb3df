// Package catalog holds the soundboard asset catalog: the background music
// tracks and the categorized one-shot sound effects.
package catalog

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ErrCatalogUnavailable is returned when the catalog cannot be fetched or parsed
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// UncategorizedName is the category of effects that sit directly in the effects root
const UncategorizedName = "Uncategorized"

// Track is a background music track. Identity is the filename.
type Track struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"name"`
	Highlighted bool   `json:"highlighted,omitempty"`
}

// SoundEffect is a one-shot sound. Filename is "category/file" or bare for uncategorized.
type SoundEffect struct {
	Filename    string `json:"filename"`
	DisplayName string `json:"name"`
	Category    string `json:"category"`
	IconPath    string `json:"icon,omitempty"`
}

var whitespace = regexp.MustCompile(`\s+`)

// EffectKey derives the registry key of a sound effect from its display name
func EffectKey(displayName string) string {
	return whitespace.ReplaceAllString(strings.ToLower(displayName), "_")
}

// Key returns the effect key used by the sound-effect registry
func (e SoundEffect) Key() string {
	return EffectKey(e.DisplayName)
}

// Category is a named group of sound effects
type Category struct {
	Name    string        `json:"name"`
	Effects []SoundEffect `json:"effects"`
}

// Options controls catalog ordering
type Options struct {
	// HighlightKeywords mark tracks that sort first and act as the default track
	HighlightKeywords []string

	// CategoryOrder lists known categories in display order; others follow alphabetically
	CategoryOrder []string

	// Language used for collation (default: English)
	Language language.Tag
}

// DefaultOptions returns the ordering used by the soundboard page
func DefaultOptions() Options {
	return Options{
		HighlightKeywords: []string{"winston", "desk"},
		CategoryOrder:     []string{"Attack or Roleplay", "During Photos", "Weird Interactions"},
		Language:          language.English,
	}
}

// Catalog is the immutable, ordered asset catalog
type Catalog struct {
	Tracks     []Track    `json:"tracks"`
	Categories []Category `json:"categories"`

	byFilename map[string]int
}

// New builds an ordered catalog from raw tracks and effects
func New(tracks []Track, effects []SoundEffect, opts Options) *Catalog {
	if opts.Language == language.Und {
		opts.Language = language.English
	}

	c := &Catalog{
		Tracks:     make([]Track, len(tracks)),
		byFilename: make(map[string]int, len(tracks)),
	}
	copy(c.Tracks, tracks)

	for i := range c.Tracks {
		c.Tracks[i].Highlighted = IsHighlighted(c.Tracks[i].DisplayName, opts.HighlightKeywords)
	}
	SortTracks(c.Tracks, opts.Language)
	for i, t := range c.Tracks {
		c.byFilename[t.Filename] = i
	}

	c.Categories = GroupEffects(effects, opts.CategoryOrder, opts.Language)
	return c
}

// IsHighlighted reports whether a track name matches any highlight keyword
func IsHighlighted(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	return lo.SomeBy(keywords, func(k string) bool {
		return k != "" && strings.Contains(lower, strings.ToLower(k))
	})
}

// SortTracks orders highlighted tracks first, then the rest by locale-aware,
// case-insensitive name.
func SortTracks(tracks []Track, lang language.Tag) {
	col := collate.New(lang, collate.IgnoreCase)
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if a.Highlighted != b.Highlighted {
			return a.Highlighted
		}
		return col.CompareString(a.DisplayName, b.DisplayName) < 0
	})
}

// GroupEffects groups effects by category. Known categories come first in the
// given order, unknown ones follow alphabetically. Members are sorted by name.
func GroupEffects(effects []SoundEffect, order []string, lang language.Tag) []Category {
	grouped := lo.GroupBy(effects, func(e SoundEffect) string {
		if e.Category == "" {
			return UncategorizedName
		}
		return e.Category
	})

	col := collate.New(lang, collate.IgnoreCase)
	names := lo.Keys(grouped)
	rank := func(name string) int {
		if i := lo.IndexOf(order, name); i >= 0 {
			return i
		}
		return len(order)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return col.CompareString(names[i], names[j]) < 0
	})

	categories := make([]Category, 0, len(names))
	for _, name := range names {
		members := grouped[name]
		for i := range members {
			members[i].Category = name
		}
		sort.SliceStable(members, func(i, j int) bool {
			return col.CompareString(members[i].DisplayName, members[j].DisplayName) < 0
		})
		categories = append(categories, Category{Name: name, Effects: members})
	}
	return categories
}

// Track looks up a track by filename
func (c *Catalog) Track(filename string) (Track, bool) {
	if c == nil {
		return Track{}, false
	}
	i, ok := c.byFilename[filename]
	if !ok {
		return Track{}, false
	}
	return c.Tracks[i], true
}

// Has reports whether the catalog contains a track
func (c *Catalog) Has(filename string) bool {
	_, ok := c.Track(filename)
	return ok
}

// Highlighted returns the default track, if any track matches the highlight predicate
func (c *Catalog) Highlighted() (Track, bool) {
	if c == nil {
		return Track{}, false
	}
	return lo.Find(c.Tracks, func(t Track) bool { return t.Highlighted })
}

// DefaultTrack is the track skip falls back to when shuffle is off:
// the highlighted track if present, else the first track.
func (c *Catalog) DefaultTrack() (Track, bool) {
	if t, ok := c.Highlighted(); ok {
		return t, true
	}
	if c == nil || len(c.Tracks) == 0 {
		return Track{}, false
	}
	return c.Tracks[0], true
}

// SoundEffects returns all effects in display order
func (c *Catalog) SoundEffects() []SoundEffect {
	if c == nil {
		return nil
	}
	return lo.FlatMap(c.Categories, func(cat Category, _ int) []SoundEffect {
		return cat.Effects
	})
}

// Empty reports whether the catalog has nothing to play
func (c *Catalog) Empty() bool {
	return c == nil || (len(c.Tracks) == 0 && len(c.Categories) == 0)
}
