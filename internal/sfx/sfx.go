// Package sfx plays one-shot sound effects independently of the music track.
package sfx

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/google/uuid"
)

// ErrSoundNotLoaded is returned when triggering a key that was never registered
var ErrSoundNotLoaded = errors.New("sound not loaded")

// Voice is a playing instance
type Voice interface {
	Stop()
}

// Clip is a loaded sound that can be started any number of times
type Clip interface {
	// Start plays a new instance. onDone is called when it ends on its own.
	Start(volume float64, onDone func()) (Voice, error)
}

// Backend loads clips from asset paths
type Backend interface {
	Load(path string) (Clip, error)
}

// VolumeStore persists the master volume
type VolumeStore interface {
	SaveEffectsVolume(v float64) error
}

// Instance is a currently playing effect
type Instance struct {
	ID     string  `json:"id"`
	Key    string  `json:"key"`
	Volume float64 `json:"volume"`

	voice Voice
}

// ChangeCallback is called when the set of playing effects changes
type ChangeCallback func()

// Player is the registry of sound effects. A key has at most one playing
// instance; triggering a playing key stops it instead of overlapping.
type Player struct {
	mu          sync.Mutex
	backend     Backend
	clips       map[string]Clip
	paths       map[string]string
	active      map[string]*Instance
	multipliers map[string]float64
	master      float64
	store       VolumeStore
	onChange    ChangeCallback
}

// NewPlayer creates an effects player with master volume and static
// per-effect multipliers.
func NewPlayer(backend Backend, master float64, multipliers map[string]float64) *Player {
	m := make(map[string]float64, len(multipliers))
	for k, v := range multipliers {
		m[k] = v
	}
	return &Player{
		backend:     backend,
		clips:       make(map[string]Clip),
		paths:       make(map[string]string),
		active:      make(map[string]*Instance),
		multipliers: m,
		master:      clamp01(master),
	}
}

// SetVolumeStore sets where master volume changes are saved
func (p *Player) SetVolumeStore(store VolumeStore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store = store
}

// SetOnChange sets a callback for playing-set changes
func (p *Player) SetOnChange(callback ChangeCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = callback
}

// notifyChange calls the onChange callback if set (must be called without lock held)
func (p *Player) notifyChange() {
	p.mu.Lock()
	callback := p.onChange
	p.mu.Unlock()
	if callback != nil {
		callback()
	}
}

// Register loads the clip at path under key. Registering a loaded key again
// is a no-op. Load failures are logged and leave the key unregistered.
func (p *Player) Register(key, path string) error {
	p.mu.Lock()
	if _, ok := p.clips[key]; ok {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	clip, err := p.backend.Load(path)
	if err != nil {
		log.Printf("[SFX] Failed to load %s (%s): %v", key, path, err)
		return fmt.Errorf("failed to load %s: %w", key, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clips[key]; !ok {
		p.clips[key] = clip
		p.paths[key] = path
	}
	return nil
}

// Registered reports whether key has a loaded clip
func (p *Player) Registered(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.clips[key]
	return ok
}

// EffectiveVolume is min(1, master * multiplier[key])
func (p *Player) EffectiveVolume(key string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effectiveVolumeLocked(key)
}

func (p *Player) effectiveVolumeLocked(key string) float64 {
	mult, ok := p.multipliers[key]
	if !ok {
		mult = 1.0
	}
	return math.Min(1, p.master*mult)
}

// Trigger toggles key: a playing instance is stopped and nil is returned,
// otherwise a new instance is started and returned.
func (p *Player) Trigger(key string) (*Instance, error) {
	p.mu.Lock()

	clip, ok := p.clips[key]
	if !ok {
		p.mu.Unlock()
		log.Printf("[SFX] Sound not loaded: %s", key)
		return nil, fmt.Errorf("%w: %s", ErrSoundNotLoaded, key)
	}

	if inst, playing := p.active[key]; playing {
		delete(p.active, key)
		p.mu.Unlock()
		inst.voice.Stop()
		p.notifyChange()
		return nil, nil
	}

	inst := &Instance{
		ID:     uuid.NewString(),
		Key:    key,
		Volume: p.effectiveVolumeLocked(key),
	}
	voice, err := clip.Start(inst.Volume, func() { p.finished(key, inst.ID) })
	if err != nil {
		p.mu.Unlock()
		log.Printf("[SFX] Failed to play %s: %v", key, err)
		return nil, fmt.Errorf("failed to play %s: %w", key, err)
	}
	inst.voice = voice
	p.active[key] = inst
	p.mu.Unlock()

	p.notifyChange()
	return inst, nil
}

// finished untracks an instance that ended on its own
func (p *Player) finished(key, id string) {
	p.mu.Lock()
	inst, ok := p.active[key]
	if !ok || inst.ID != id {
		p.mu.Unlock()
		return
	}
	delete(p.active, key)
	p.mu.Unlock()
	p.notifyChange()
}

// StopAll stops every playing effect
func (p *Player) StopAll() {
	p.mu.Lock()
	stopping := make([]*Instance, 0, len(p.active))
	for key, inst := range p.active {
		stopping = append(stopping, inst)
		delete(p.active, key)
	}
	p.mu.Unlock()

	for _, inst := range stopping {
		inst.voice.Stop()
	}
	if len(stopping) > 0 {
		p.notifyChange()
	}
}

// IsPlaying reports whether key has a playing instance
func (p *Player) IsPlaying(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[key]
	return ok
}

// Active returns the keys that are currently playing
func (p *Player) Active() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make(map[string]bool, len(p.active))
	for k := range p.active {
		keys[k] = true
	}
	return keys
}

// SetMasterVolume changes the base volume for future triggers. Playing
// instances keep the volume they started with.
func (p *Player) SetMasterVolume(v float64) {
	p.mu.Lock()
	p.master = clamp01(v)
	master := p.master
	store := p.store
	p.mu.Unlock()

	if store != nil {
		if err := store.SaveEffectsVolume(master); err != nil {
			log.Printf("[SFX] Failed to save volume: %v", err)
		}
	}
}

// MasterVolume returns the base volume
func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
