package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Fatalf("Expected config.json to be created: %v", err)
	}

	cfg := m.Get()
	if cfg.Audio.DefaultEffectsVolume != 0.5 {
		t.Errorf("Expected default effects volume 0.5, got %f", cfg.Audio.DefaultEffectsVolume)
	}
	if cfg.Behavior.PersistIntervalMs != 1000 {
		t.Errorf("Expected persist interval 1000, got %d", cfg.Behavior.PersistIntervalMs)
	}
	if cfg.Effects.VolumeMultipliers["tv_off"] != 3.0 {
		t.Errorf("Expected tv_off multiplier 3.0, got %f", cfg.Effects.VolumeMultipliers["tv_off"])
	}
}

func TestLoadJSONKeepsDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"audio":{"sampleRate":48000}}`), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	m := NewManager(dir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Assets.MusicDir != "Music" {
		t.Errorf("Expected default music dir, got %q", cfg.Assets.MusicDir)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "soundboard.yaml")
	yamlData := `
catalog:
  url: http://localhost:8000/manifest.json
  highlightKeywords: [lobby]
behavior:
  requireGesture: false
  storage: file
`
	if err := os.WriteFile(path, []byte(yamlData), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	m := NewManagerWithFile(dir, path)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Catalog.URL != "http://localhost:8000/manifest.json" {
		t.Errorf("Unexpected catalog url %q", cfg.Catalog.URL)
	}
	if len(cfg.Catalog.HighlightKeywords) != 1 || cfg.Catalog.HighlightKeywords[0] != "lobby" {
		t.Errorf("Unexpected highlight keywords %v", cfg.Catalog.HighlightKeywords)
	}
	if cfg.Behavior.RequireGesture {
		t.Error("Expected requireGesture false")
	}
	if cfg.Behavior.Storage != "file" {
		t.Errorf("Expected file storage, got %q", cfg.Behavior.Storage)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected default sample rate, got %d", cfg.Audio.SampleRate)
	}
}

func TestLoadCorruptConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("not json"), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	m := NewManager(dir)
	if err := m.Load(); err == nil {
		t.Error("Expected error for corrupt config")
	}
}

func TestSaveRoundtripYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	m := NewManagerWithFile(dir, path)
	cfg := DefaultConfig()
	cfg.Assets.Root = "/srv/soundboard"
	if err := m.Update(cfg); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	m2 := NewManagerWithFile(dir, path)
	if err := m2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m2.Get().Assets.Root != "/srv/soundboard" {
		t.Errorf("Expected asset root to survive roundtrip, got %q", m2.Get().Assets.Root)
	}
}

func TestAssetPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Assets.Root = "/srv"

	got := cfg.AssetPath(cfg.Assets.SoundEffectsDir, "During Photos/Camera.mp3")
	want := filepath.Join("/srv", "Sound Effects", "During Photos", "Camera.mp3")
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestIconMatcherFromConfig(t *testing.T) {
	cfg := DefaultConfig()
	m, err := cfg.IconMatcher()
	if err != nil {
		t.Fatalf("IconMatcher failed: %v", err)
	}
	if icon, ok := m.Match("Falling", []string{"fall.png"}); !ok || icon != "fall.png" {
		t.Errorf("Expected falling to match fall.png, got %q", icon)
	}

	cfg.Effects.IconVariants = []IconVariant{{Pattern: "(", Replacement: "x"}}
	if _, err := cfg.IconMatcher(); err == nil {
		t.Error("Expected error for invalid variant pattern")
	}
}

func TestCatalogOptionsOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.CategoryOrder = []string{"Loud"}

	opts := cfg.CatalogOptions()
	if len(opts.CategoryOrder) != 1 || opts.CategoryOrder[0] != "Loud" {
		t.Errorf("Expected configured category order, got %v", opts.CategoryOrder)
	}
	if len(opts.HighlightKeywords) != 2 {
		t.Errorf("Expected default highlight keywords, got %v", opts.HighlightKeywords)
	}
}
