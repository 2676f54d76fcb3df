package scanner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/austinkregel/local-media/soundboardd/internal/debounce"
)

// Watch calls fn after the asset folders change, coalescing bursts of
// events into one call per delay. New category folders are watched as they
// appear. It blocks until ctx is cancelled.
func Watch(ctx context.Context, dirs Dirs, delay time.Duration, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	for _, dir := range watchDirs(dirs) {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	d := debounce.New(delay, fn)
	defer d.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == filepath.Clean(dirs.SoundEffects) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.Add(event.Name); err != nil {
						log.Printf("[SCANNER] Failed to watch %s: %v", event.Name, err)
					}
				}
			}
			d.Trigger()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("[SCANNER] Watch error: %v", err)
		}
	}
}

// watchDirs lists the existing folders that feed the manifest
func watchDirs(dirs Dirs) []string {
	var out []string
	for _, dir := range []string{dirs.Music, dirs.SoundEffects, dirs.Icons} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	if entries, err := os.ReadDir(dirs.SoundEffects); err == nil {
		for _, e := range entries {
			if e.IsDir() && e.Name()[0] != '.' {
				out = append(out, filepath.Join(dirs.SoundEffects, e.Name()))
			}
		}
	}
	return out
}
