// Package main is the entry point for soundboard-manifest, which scans the
// soundboard asset folders and writes manifest.json.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/austinkregel/local-media/soundboardd/internal/config"
	"github.com/austinkregel/local-media/soundboardd/internal/scanner"
)

// Flags holds command-line settings
type Flags struct {
	Root       string
	Output     string
	ConfigFile string
	Watch      bool
	Delay      time.Duration
}

func main() {
	f := &Flags{}
	flag.StringVar(&f.Root, "root", ".", "Site root containing the asset folders")
	flag.StringVar(&f.Output, "out", "manifest.json", "Manifest path, relative to the root unless absolute")
	flag.StringVar(&f.ConfigFile, "config-file", "", "Configuration file with folder names, category order and icon variants")
	flag.BoolVar(&f.Watch, "watch", false, "Regenerate whenever the asset folders change")
	flag.DurationVar(&f.Delay, "delay", 500*time.Millisecond, "Quiet period before regenerating in watch mode")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, f); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	m := config.NewManagerWithFile(filepath.Dir(path), path)
	if err := m.Load(); err != nil {
		return nil, err
	}
	return m.Get(), nil
}

func run(ctx context.Context, f *Flags) error {
	cfg, err := loadConfig(f.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	matcher, err := cfg.IconMatcher()
	if err != nil {
		return err
	}

	dirs := scanner.Dirs{
		Music:        filepath.Join(f.Root, cfg.Assets.MusicDir),
		SoundEffects: filepath.Join(f.Root, cfg.Assets.SoundEffectsDir),
		Icons:        filepath.Join(f.Root, cfg.Assets.SoundEffectIconsDir),
		IconPrefix:   filepath.ToSlash(cfg.Assets.SoundEffectIconsDir),
	}
	out := f.Output
	if !filepath.IsAbs(out) {
		out = filepath.Join(f.Root, out)
	}

	s := scanner.NewScanner(matcher, cfg.CatalogOptions())
	generate := func() error {
		result, err := s.Scan(ctx, dirs)
		if err != nil {
			return err
		}
		if err := scanner.WriteManifest(out, result.Manifest); err != nil {
			return err
		}
		fmt.Printf("Manifest generated: %s\n", out)
		fmt.Printf("Found %d music files.\n", len(result.Manifest.Music))
		fmt.Printf("Found %d sound effects.\n", len(result.Manifest.SoundEffects))
		return nil
	}

	if err := generate(); err != nil {
		return err
	}
	if !f.Watch {
		return nil
	}

	log.Printf("[SCANNER] Watching %s for changes", f.Root)
	return scanner.Watch(ctx, dirs, f.Delay, func() {
		if err := generate(); err != nil {
			log.Printf("[SCANNER] Regenerate failed: %v", err)
		}
	})
}
