package catalog

import (
	"encoding/json"
	"fmt"
)

// Manifest is the on-disk catalog file format
type Manifest struct {
	Music        []ManifestTrack  `json:"music"`
	SoundEffects []ManifestEffect `json:"soundEffects"`
}

// ManifestTrack is a music entry of manifest.json
type ManifestTrack struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
}

// ManifestEffect is a sound-effect entry of manifest.json
type ManifestEffect struct {
	Filename string  `json:"filename"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Icon     *string `json:"icon"`
}

// ParseManifest decodes manifest.json content
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Build converts the manifest into an ordered catalog
func (m *Manifest) Build(opts Options) *Catalog {
	tracks := make([]Track, 0, len(m.Music))
	for _, t := range m.Music {
		if t.Filename == "" {
			continue
		}
		tracks = append(tracks, Track{Filename: t.Filename, DisplayName: t.Name})
	}

	effects := make([]SoundEffect, 0, len(m.SoundEffects))
	for _, e := range m.SoundEffects {
		if e.Filename == "" {
			continue
		}
		effect := SoundEffect{Filename: e.Filename, DisplayName: e.Name, Category: e.Category}
		if e.Icon != nil {
			effect.IconPath = *e.Icon
		}
		effects = append(effects, effect)
	}

	return New(tracks, effects, opts)
}

// ManifestFrom projects a catalog back into manifest form, preserving catalog order
func ManifestFrom(c *Catalog) *Manifest {
	m := &Manifest{
		Music:        make([]ManifestTrack, 0, len(c.Tracks)),
		SoundEffects: make([]ManifestEffect, 0),
	}
	for _, t := range c.Tracks {
		m.Music = append(m.Music, ManifestTrack{Filename: t.Filename, Name: t.DisplayName})
	}
	for _, e := range c.SoundEffects() {
		entry := ManifestEffect{Filename: e.Filename, Name: e.DisplayName, Category: e.Category}
		if e.IconPath != "" {
			icon := e.IconPath
			entry.Icon = &icon
		}
		m.SoundEffects = append(m.SoundEffects, entry)
	}
	return m
}

// Marshal encodes the manifest the way the generator writes it
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}
