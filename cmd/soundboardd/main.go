// Package main is the entry point for the soundboardd daemon.
// soundboardd plays a soundboard's background music and sound effects on the
// local audio device, integrates with the OS media session and takes commands
// from clients over IPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/austinkregel/local-media/soundboardd/internal/audio"
	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
	"github.com/austinkregel/local-media/soundboardd/internal/config"
	"github.com/austinkregel/local-media/soundboardd/internal/ipc"
	"github.com/austinkregel/local-media/soundboardd/internal/media"
	"github.com/austinkregel/local-media/soundboardd/internal/playback"
	"github.com/austinkregel/local-media/soundboardd/internal/sfx"
	"github.com/austinkregel/local-media/soundboardd/internal/transport"
	"github.com/austinkregel/local-media/soundboardd/internal/view"
)

// Version is set at build time via ldflags
var Version = "dev"

// Flags holds command-line settings
type Flags struct {
	SocketPath string
	ConfigDir  string
	ConfigFile string
	Verbose    bool
}

func main() {
	flags := parseFlags()

	if flags.Verbose {
		log.Printf("soundboardd version %s starting...", Version)
	}

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, flags); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&f.ConfigDir, "config", "", "Configuration directory (default: ~/.config/soundboardd)")
	flag.StringVar(&f.ConfigFile, "config-file", "", "Configuration file, JSON or YAML (default: config.json in the config directory)")
	flag.BoolVar(&f.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	if f.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		f.ConfigDir = filepath.Join(homeDir, ".config", "soundboardd")
	}

	if f.SocketPath == "" {
		f.SocketPath = DefaultSocketPath()
	}

	return f
}

// DefaultSocketPath is the per-user socket location
func DefaultSocketPath() string {
	return fmt.Sprintf("/tmp/soundboardd-%d.sock", os.Getuid())
}

func openStorage(kind, configDir string) (playback.Storage, error) {
	switch kind {
	case "file":
		return playback.NewFileStorage(filepath.Join(configDir, "state")), nil
	case "", "gdata":
		return playback.OpenGdataStorage("soundboardd")
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

func run(ctx context.Context, flags *Flags) error {
	if err := os.MkdirAll(flags.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configMgr := config.NewManager(flags.ConfigDir)
	if flags.ConfigFile != "" {
		configMgr = config.NewManagerWithFile(flags.ConfigDir, flags.ConfigFile)
	}
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()
	log.Printf("[CONFIG] Loaded %s", configMgr.GetPath())

	storage, err := openStorage(cfg.Behavior.Storage, flags.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to open state storage: %w", err)
	}
	persister := playback.NewPersister(storage, time.Duration(cfg.Behavior.PersistIntervalMs)*time.Millisecond)

	// Initialize media session (platform-specific)
	mediaSession, err := media.NewSession()
	if err != nil {
		log.Printf("[MEDIA] Warning: failed to initialize media session: %v", err)
		log.Printf("[MEDIA] Continuing without OS media integration")
		mediaSession = media.NewNoOpSession()
	} else {
		log.Printf("[MEDIA] Media session initialized successfully")
	}
	defer mediaSession.Close()

	device, err := audio.NewDevice(cfg.Audio.SampleRate, cfg.Audio.BufferSizeMs)
	if err != nil {
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}
	element := audio.NewOtoElement(device, cfg.Behavior.RequireGesture)
	defer element.Close()

	ctrl := transport.New(element, persister, transport.Options{
		AssetPath: func(filename string) string {
			return cfg.AssetPath(cfg.Assets.MusicDir, filename)
		},
		PollInterval: time.Duration(cfg.Behavior.MetadataPollMs) * time.Millisecond,
		MaxPolls:     cfg.Behavior.MetadataMaxPolls,
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	})
	persister.SetProvider(ctrl.Snapshot)

	effects := sfx.NewPlayer(
		sfx.NewOtoBackend(device),
		persister.LoadEffectsVolume(cfg.Audio.DefaultEffectsVolume),
		cfg.Effects.VolumeMultipliers,
	)
	effects.SetVolumeStore(persister)

	iconsDir := filepath.Join(cfg.Assets.Root, cfg.Assets.MusicIconsDir)
	bridge := media.NewBridge(mediaSession, ctrl, func(filename string) string {
		for _, candidate := range view.MusicIconCandidates(iconsDir, filename) {
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		return ""
	})

	server := ipc.NewServer(flags.SocketPath, ctrl, effects, view.Paths{
		MusicDir:        cfg.Assets.MusicDir,
		SoundEffectsDir: cfg.Assets.SoundEffectsDir,
		MusicIconsDir:   cfg.Assets.MusicIconsDir,
	})
	server.SetVerbose(flags.Verbose)

	ctrl.OnChange(bridge.Update)
	ctrl.OnChange(server.PushStatus)
	effects.SetOnChange(server.PushEffects)

	loadCatalog(ctx, cfg, ctrl, effects)

	log.Printf("Starting IPC server on %s", flags.SocketPath)
	serveErr := server.Start(ctx)

	effects.StopAll()
	ctrl.Close()
	persister.Close()
	log.Printf("[STATE] Playback state saved on shutdown")

	if serveErr != nil {
		return fmt.Errorf("IPC server error: %w", serveErr)
	}
	return nil
}

// loadCatalog attaches the catalog to the transport and registers every
// sound effect. A failed load leaves the board running with nothing to play.
func loadCatalog(ctx context.Context, cfg *config.Config, ctrl *transport.Controller, effects *sfx.Player) {
	manifestPath := cfg.Catalog.Path
	if manifestPath != "" && !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(cfg.Assets.Root, manifestPath)
	}

	loader := catalog.NewLoader(cfg.Catalog.URL, manifestPath, cfg.CatalogOptions())
	cat, err := loader.Load(ctx)
	if err != nil {
		log.Printf("[CATALOG] %v", err)
		ctrl.AttachCatalog(nil)
		return
	}

	registered := 0
	for _, e := range cat.SoundEffects() {
		if err := effects.Register(e.Key(), cfg.AssetPath(cfg.Assets.SoundEffectsDir, e.Filename)); err == nil {
			registered++
		}
	}
	log.Printf("[SFX] Registered %d of %d sound effects", registered, len(cat.SoundEffects()))

	ctrl.AttachCatalog(cat)
}
