// Package scanner builds manifest.json from the soundboard asset directories.
// It walks the music, sound-effect and icon folders and validates audio files.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/samber/lo"

	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
)

// ErrScanInProgress is returned when a scan is requested while one runs
var ErrScanInProgress = errors.New("scan already in progress")

// SupportedExtensions are the audio file extensions we recognize
var SupportedExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".ogg": true,
}

// Dirs locates the asset folders. IconPrefix is how the icon folder is
// written in the manifest, relative to the site root.
type Dirs struct {
	Music        string
	SoundEffects string
	Icons        string
	IconPrefix   string
}

// Result is the outcome of a scan
type Result struct {
	Manifest   *catalog.Manifest
	Rejected   []string // files that failed validation
	ScanTimeMs int64
}

// Scanner handles asset scanning
type Scanner struct {
	mu        sync.Mutex
	isRunning bool
	matcher   *catalog.IconMatcher
	opts      catalog.Options
	workers   int
}

// NewScanner creates a scanner that orders the manifest with opts
func NewScanner(matcher *catalog.IconMatcher, opts catalog.Options) *Scanner {
	return &Scanner{matcher: matcher, opts: opts, workers: 4}
}

// IsRunning returns whether a scan is in progress
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Scan reads the asset folders and builds an ordered manifest. Unreadable
// folders yield empty sections rather than an error.
func (s *Scanner) Scan(ctx context.Context, dirs Dirs) (*Result, error) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.isRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
	}()

	start := time.Now()

	tracks := s.scanMusic(dirs.Music)
	effects := s.scanEffects(dirs)

	// Validate every candidate before it reaches the manifest
	paths := make([]string, 0, len(tracks)+len(effects))
	for _, t := range tracks {
		paths = append(paths, filepath.Join(dirs.Music, t.Filename))
	}
	for _, e := range effects {
		paths = append(paths, filepath.Join(dirs.SoundEffects, filepath.FromSlash(e.Filename)))
	}
	valid, err := s.validateAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	keptTracks := make([]catalog.Track, 0, len(tracks))
	for i, t := range tracks {
		if valid[i] {
			keptTracks = append(keptTracks, t)
		} else {
			result.Rejected = append(result.Rejected, paths[i])
		}
	}
	keptEffects := make([]catalog.SoundEffect, 0, len(effects))
	for i, e := range effects {
		if valid[len(tracks)+i] {
			keptEffects = append(keptEffects, e)
		} else {
			result.Rejected = append(result.Rejected, paths[len(tracks)+i])
		}
	}

	result.Manifest = catalog.ManifestFrom(catalog.New(keptTracks, keptEffects, s.opts))
	result.ScanTimeMs = time.Since(start).Milliseconds()

	log.Printf("[SCANNER] Found %d music files and %d sound effects in %dms (%d rejected)",
		len(keptTracks), len(keptEffects), result.ScanTimeMs, len(result.Rejected))

	return result, nil
}

func isAudioFile(name string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(name))]
}

func displayName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}

func (s *Scanner) scanMusic(dir string) []catalog.Track {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("[SCANNER] Error reading music folder %s: %v", dir, err)
		return nil
	}

	tracks := []catalog.Track{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !isAudioFile(e.Name()) {
			continue
		}
		tracks = append(tracks, catalog.Track{Filename: e.Name(), DisplayName: displayName(e.Name())})
	}
	return tracks
}

func (s *Scanner) listIcons(dir string) []string {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[SCANNER] Could not read icon folder %s: %v", dir, err)
		}
		return nil
	}
	return lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), !e.IsDir() && catalog.IsIconFile(e.Name())
	})
}

// scanEffects reads one level of category folders plus the root files,
// which go to the uncategorized section.
func (s *Scanner) scanEffects(dirs Dirs) []catalog.SoundEffect {
	entries, err := os.ReadDir(dirs.SoundEffects)
	if err != nil {
		log.Printf("[SCANNER] Error reading sound effects folder %s: %v", dirs.SoundEffects, err)
		return nil
	}

	icons := s.listIcons(dirs.Icons)
	effect := func(filename, file, category string) catalog.SoundEffect {
		e := catalog.SoundEffect{
			Filename:    filename,
			DisplayName: displayName(file),
			Category:    category,
		}
		if icon, ok := s.matcher.Match(e.DisplayName, icons); ok {
			e.IconPath = catalog.IconPath(dirs.IconPrefix, icon)
		}
		return e
	}

	effects := []catalog.SoundEffect{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		if !entry.IsDir() {
			if isAudioFile(name) {
				effects = append(effects, effect(name, name, catalog.UncategorizedName))
			}
			continue
		}

		files, err := os.ReadDir(filepath.Join(dirs.SoundEffects, name))
		if err != nil {
			log.Printf("[SCANNER] Skipping category %s: %v", name, err)
			continue
		}
		for _, f := range files {
			if f.IsDir() || !isAudioFile(f.Name()) {
				continue
			}
			// Manifest paths always use forward slashes
			effects = append(effects, effect(name+"/"+f.Name(), f.Name(), name))
		}
	}
	return effects
}

// validateAll checks files in parallel and returns validity in input order
func (s *Scanner) validateAll(ctx context.Context, paths []string) ([]bool, error) {
	valid := make([]bool, len(paths))
	jobs := make(chan int, len(paths))

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := ValidateFile(paths[i]); err != nil {
					log.Printf("[SCANNER] Rejecting %s: %v", paths[i], err)
					continue
				}
				valid[i] = true
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return valid, nil
}

// ValidateFile rejects empty files and WAV files without a readable header
func ValidateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("empty file")
	}

	if strings.ToLower(filepath.Ext(path)) != ".wav" {
		return nil
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("invalid wav file")
	}
	return nil
}

// WriteManifest writes the manifest atomically
func WriteManifest(path string, m *catalog.Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
