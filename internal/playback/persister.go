package playback

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
	"github.com/austinkregel/local-media/soundboardd/internal/debounce"
)

// SnapshotProvider returns a copy of the current state and its version.
// Versions grow with every mutation; a write never replaces a newer one.
type SnapshotProvider func() (State, uint64)

// Persister writes playback state to storage. Continuous updates are
// coalesced to one write per interval; discrete actions write immediately.
type Persister struct {
	mu          sync.Mutex
	storage     Storage
	provider    SnapshotProvider
	debouncer   *debounce.Debouncer
	lastVersion uint64
	written     bool
}

// NewPersister creates a persister. provider may be set later with SetProvider.
func NewPersister(storage Storage, interval time.Duration) *Persister {
	p := &Persister{storage: storage}
	p.debouncer = debounce.New(interval, p.flushProvider)
	return p
}

// SetProvider sets the state source for coalesced writes
func (p *Persister) SetProvider(provider SnapshotProvider) {
	p.mu.Lock()
	p.provider = provider
	p.mu.Unlock()
}

func (p *Persister) flushProvider() {
	p.mu.Lock()
	provider := p.provider
	p.mu.Unlock()
	if provider == nil {
		return
	}

	state, version := provider()
	if err := p.write(state, version); err != nil {
		log.Printf("[STATE] Failed to save state: %v", err)
	}
}

// RequestSave schedules a coalesced write
func (p *Persister) RequestSave() {
	p.debouncer.Trigger()
}

// SaveNow writes state immediately and drops any pending coalesced write
func (p *Persister) SaveNow(state State, version uint64) error {
	p.debouncer.Cancel()
	return p.write(state, version)
}

// Flush forces the pending write (or a fresh one) now
func (p *Persister) Flush() {
	p.debouncer.Flush()
}

// Close writes a final snapshot and stops coalescing
func (p *Persister) Close() {
	p.debouncer.Stop()
}

func (p *Persister) write(state State, version uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.written && version < p.lastVersion {
		return nil
	}

	data, err := Serialize(state).Marshal()
	if err != nil {
		return err
	}
	if err := p.storage.SaveItem(KeyMusicState, data); err != nil {
		return fmt.Errorf("failed to save music state: %w", err)
	}

	p.lastVersion = version
	p.written = true
	return nil
}

// LoadState restores the saved state against the catalog. found is false when
// nothing was saved. A snapshot whose volume had to be reset is rewritten.
func (p *Persister) LoadState(c *catalog.Catalog) (restored Restored, found bool, err error) {
	data, err := p.storage.LoadItem(KeyMusicState)
	if err != nil {
		return Restored{State: NewState()}, false, fmt.Errorf("%w: %v", ErrRestore, err)
	}
	if len(data) == 0 {
		return Restored{State: NewState()}, false, nil
	}

	restored, err = Restore(data, c)
	if restored.VolumeReset {
		if fixErr := p.rewriteVolume(data); fixErr != nil {
			log.Printf("[STATE] Failed to rewrite reset volume: %v", fixErr)
		}
	}
	return restored, true, err
}

// rewriteVolume stores the snapshot again with the default volume, keeping
// every other field as it was.
func (p *Persister) rewriteVolume(data []byte) error {
	fixed, err := patchVolume(data, DefaultVolume)
	if err != nil {
		return err
	}
	return p.storage.SaveItem(KeyMusicState, fixed)
}

// LoadLoop reads the loop flag
func (p *Persister) LoadLoop() bool {
	data, err := p.storage.LoadItem(KeyMusicLoopState)
	if err != nil {
		log.Printf("[STATE] Failed to load loop state: %v", err)
		return false
	}
	return strings.TrimSpace(string(data)) == "true"
}

// SaveLoop writes the loop flag
func (p *Persister) SaveLoop(looping bool) error {
	return p.storage.SaveItem(KeyMusicLoopState, []byte(strconv.FormatBool(looping)))
}

// LoadEffectsVolume reads the sound-effects master volume. Values that do not
// parse or fall outside [0,1] yield def.
func (p *Persister) LoadEffectsVolume(def float64) float64 {
	data, err := p.storage.LoadItem(KeySoundEffectsVolume)
	if err != nil {
		log.Printf("[STATE] Failed to load effects volume: %v", err)
		return def
	}
	if len(data) == 0 {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

// SaveEffectsVolume writes the sound-effects master volume
func (p *Persister) SaveEffectsVolume(v float64) error {
	return p.storage.SaveItem(KeySoundEffectsVolume, []byte(strconv.FormatFloat(v, 'f', -1, 64)))
}
