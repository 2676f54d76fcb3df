// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
)

// Config represents the daemon configuration
type Config struct {
	// Catalog describes where the asset catalog comes from and how it is ordered
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`

	// Assets locates the media directories
	Assets AssetsConfig `json:"assets" yaml:"assets"`

	// Audio settings
	Audio AudioConfig `json:"audio" yaml:"audio"`

	// Effects settings
	Effects EffectsConfig `json:"effects" yaml:"effects"`

	// Behavior settings
	Behavior BehaviorConfig `json:"behavior" yaml:"behavior"`
}

// CatalogConfig contains catalog-related settings
type CatalogConfig struct {
	// URL is an HTTP location of manifest.json (optional)
	URL string `json:"url" yaml:"url"`

	// Path is a local manifest.json, read directly or as the fallback when URL fails
	Path string `json:"path" yaml:"path"`

	// HighlightKeywords mark the default track (case-insensitive substring match)
	HighlightKeywords []string `json:"highlightKeywords" yaml:"highlightKeywords"`

	// CategoryOrder is the fixed display order of sound-effect categories
	CategoryOrder []string `json:"categoryOrder" yaml:"categoryOrder"`
}

// AssetsConfig contains asset directory settings
type AssetsConfig struct {
	Root                string `json:"root" yaml:"root"`
	MusicDir            string `json:"musicDir" yaml:"musicDir"`
	SoundEffectsDir     string `json:"soundEffectsDir" yaml:"soundEffectsDir"`
	SoundEffectIconsDir string `json:"soundEffectIconsDir" yaml:"soundEffectIconsDir"`
	MusicIconsDir       string `json:"musicIconsDir" yaml:"musicIconsDir"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for audio output (default: 44100)
	SampleRate int `json:"sampleRate" yaml:"sampleRate"`

	// BufferSizeMs in milliseconds (default: 100)
	BufferSizeMs int `json:"bufferSizeMs" yaml:"bufferSizeMs"`

	// DefaultEffectsVolume for sound effects, 0.0 - 1.0 (default: 0.5)
	DefaultEffectsVolume float64 `json:"defaultEffectsVolume" yaml:"defaultEffectsVolume"`
}

// IconVariant is a name substitution tried when matching effect icons
type IconVariant struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// EffectsConfig contains sound-effect settings
type EffectsConfig struct {
	// VolumeMultipliers boosts quiet effects, keyed by effect key
	VolumeMultipliers map[string]float64 `json:"volumeMultipliers" yaml:"volumeMultipliers"`

	// IconVariants are tried after exact and substring icon matching
	IconVariants []IconVariant `json:"iconVariants" yaml:"iconVariants"`
}

// BehaviorConfig contains behavior-related settings
type BehaviorConfig struct {
	// PersistIntervalMs bounds state writes during continuous playback
	PersistIntervalMs int `json:"persistIntervalMs" yaml:"persistIntervalMs"`

	// MetadataPollMs is the fallback poll interval while a track loads
	MetadataPollMs int `json:"metadataPollMs" yaml:"metadataPollMs"`

	// MetadataMaxPolls bounds the fallback polling
	MetadataMaxPolls int `json:"metadataMaxPolls" yaml:"metadataMaxPolls"`

	// RequireGesture blocks playback until the first user gesture
	RequireGesture bool `json:"requireGesture" yaml:"requireGesture"`

	// Storage selects the state backend: "gdata" or "file"
	Storage string `json:"storage" yaml:"storage"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Path:              "manifest.json",
			HighlightKeywords: []string{"winston", "desk"},
			CategoryOrder:     []string{"Attack or Roleplay", "During Photos", "Weird Interactions"},
		},
		Assets: AssetsConfig{
			Root:                ".",
			MusicDir:            "Music",
			SoundEffectsDir:     "Sound Effects",
			SoundEffectIconsDir: "Sound Effect Icons",
			MusicIconsDir:       "Music Icons",
		},
		Audio: AudioConfig{
			SampleRate:           44100,
			BufferSizeMs:         100,
			DefaultEffectsVolume: 0.5,
		},
		Effects: EffectsConfig{
			VolumeMultipliers: map[string]float64{
				"tv_off":                  3.0,
				"fun_meter":               3.0,
				"you_are_taking_too_long": 3.0,
				"you_found_moss":          3.0,
				"gaster":                  1.8,
				"lancer":                  1.8,
				"weird_route_short":       1.8,
			},
			IconVariants: []IconVariant{
				{Pattern: `(?i)falling`, Replacement: "fall"},
				{Pattern: `(?i)crow\s*cheer`, Replacement: "crowd cheer"},
				{Pattern: `(?i)shrine\s*ringtone`, Replacement: "ringtone"},
			},
		},
		Behavior: BehaviorConfig{
			PersistIntervalMs: 1000,
			MetadataPollMs:    100,
			MetadataMaxPolls:  100,
			RequireGesture:    true,
			Storage:           "gdata",
		},
	}
}

// Manager handles loading and saving configuration
type Manager struct {
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager using config.json in configDir
func NewManager(configDir string) *Manager {
	return NewManagerWithFile(configDir, filepath.Join(configDir, "config.json"))
}

// NewManagerWithFile creates a configuration manager for an explicit file.
// Files ending in .yaml or .yml are read and written as YAML.
func NewManagerWithFile(configDir, configPath string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: configPath,
		config:     DefaultConfig(),
	}
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.configPath))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if m.isYAML() {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if m.isYAML() {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	return m.config
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update updates the configuration and saves it
func (m *Manager) Update(config *Config) error {
	m.config = config
	return m.Save()
}

// AssetPath joins the asset root with a directory and a slash-separated name
func (c *Config) AssetPath(dir, name string) string {
	return filepath.Join(c.Assets.Root, dir, filepath.FromSlash(name))
}

// CatalogOptions returns the catalog ordering configured for this board
func (c *Config) CatalogOptions() catalog.Options {
	opts := catalog.DefaultOptions()
	if len(c.Catalog.HighlightKeywords) > 0 {
		opts.HighlightKeywords = c.Catalog.HighlightKeywords
	}
	if len(c.Catalog.CategoryOrder) > 0 {
		opts.CategoryOrder = c.Catalog.CategoryOrder
	}
	return opts
}

// IconMatcher compiles the configured icon variants
func (c *Config) IconMatcher() (*catalog.IconMatcher, error) {
	if len(c.Effects.IconVariants) == 0 {
		return catalog.NewIconMatcher(catalog.DefaultIconVariants()), nil
	}
	variants := make([]catalog.IconVariant, 0, len(c.Effects.IconVariants))
	for _, v := range c.Effects.IconVariants {
		iv, err := catalog.NewIconVariant(v.Pattern, v.Replacement)
		if err != nil {
			return nil, err
		}
		variants = append(variants, iv)
	}
	return catalog.NewIconMatcher(variants), nil
}
