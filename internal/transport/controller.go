// Package transport drives the single background-music element: track
// selection, play/pause, seeking, volume, loop and shuffle.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/austinkregel/local-media/soundboardd/internal/audio"
	"github.com/austinkregel/local-media/soundboardd/internal/await"
	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
	"github.com/austinkregel/local-media/soundboardd/internal/playback"
)

var (
	ErrNoTrack      = errors.New("no track selected")
	ErrUnknownTrack = errors.New("unknown track")
	ErrNotSeekable  = errors.New("track not seekable")
)

// Phase is the transport state
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

// Store persists playback state. *playback.Persister implements it.
type Store interface {
	RequestSave()
	SaveNow(state playback.State, version uint64) error
	SaveLoop(looping bool) error
	LoadState(c *catalog.Catalog) (playback.Restored, bool, error)
	LoadLoop() bool
}

// Status is a read-only view of the transport for renderers
type Status struct {
	Phase         Phase          `json:"phase"`
	Track         *catalog.Track `json:"track"`
	Position      float64        `json:"position"`
	Duration      float64        `json:"duration"`
	Paused        bool           `json:"paused"`
	Volume        float64        `json:"volume"`
	Muted         bool           `json:"muted"`
	Looping       bool           `json:"looping"`
	Shuffling     bool           `json:"shuffling"`
	ShuffleCursor int            `json:"shuffleCursor"`
	ShuffleLength int            `json:"shuffleLength"`
	Dragging      bool           `json:"dragging"`
	AwaitGesture  bool           `json:"awaitGesture"`
	LoadError     string         `json:"loadError,omitempty"`
}

// Listener is notified after every change, without controller locks held
type Listener func(Status)

// Options tunes the controller
type Options struct {
	// AssetPath maps a track filename to the element source
	AssetPath func(filename string) string

	// Metadata fallback polling
	PollInterval time.Duration
	MaxPolls     int

	Rand *rand.Rand
}

// Controller is the sole writer of playback state and the music element.
// Gestures are serialized by its mutex; asynchronous completions carry the
// load generation or source id they were started for and are dropped once
// a newer selection exists.
type Controller struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	element audio.Element
	store   Store
	opts    Options
	catalog *catalog.Catalog
	catOK   bool

	state   playback.State
	version uint64
	phase   Phase

	sourceID      uint64
	loadGen       uint64
	stopWait      func()
	playWhenReady bool
	pendingSeek   float64
	loadErr       error

	dragging     bool
	dragPosition float64

	gate      GestureGate
	listeners []Listener
}

// New creates a controller over element. store may be nil.
func New(element audio.Element, store Store, opts Options) *Controller {
	if opts.AssetPath == nil {
		opts.AssetPath = func(filename string) string { return filename }
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 100
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ctx:         ctx,
		cancel:      cancel,
		element:     element,
		store:       store,
		opts:        opts,
		state:       playback.NewState(),
		phase:       PhaseIdle,
		pendingSeek: -1,
	}
	element.SetEventHandler(c.handleEvent)
	element.SetVolume(c.state.EffectiveVolume())
	return c
}

// OnChange registers a listener
func (c *Controller) OnChange(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// update runs fn under the lock and notifies listeners afterwards
func (c *Controller) update(fn func() error) error {
	c.mu.Lock()
	err := fn()
	status := c.statusLocked()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l(status)
	}
	return err
}

// changedLocked bumps the state version and persists it. Discrete user
// actions are written immediately; continuous updates are coalesced.
func (c *Controller) changedLocked(discrete bool) {
	c.version++
	if c.store == nil {
		return
	}
	if !discrete {
		c.store.RequestSave()
		return
	}
	if err := c.store.SaveNow(c.state.Clone(), c.version); err != nil {
		log.Printf("[STATE] Failed to save state: %v", err)
	}
}

// Snapshot returns a copy of the state and its version for the persister
func (c *Controller) Snapshot() (playback.State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone(), c.version
}

// Status returns the current transport view
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{
		Phase:         c.phase,
		Position:      c.state.Position,
		Paused:        c.state.Paused,
		Volume:        c.state.Volume,
		Muted:         c.state.Muted,
		Looping:       c.state.Looping,
		Shuffling:     c.state.Shuffling,
		ShuffleCursor: c.state.ShuffleCursor,
		ShuffleLength: len(c.state.ShuffleOrder),
		Dragging:      c.dragging,
		AwaitGesture:  c.gate.Armed(),
	}
	if c.state.CurrentTrack != nil {
		t := *c.state.CurrentTrack
		st.Track = &t
	} else {
		st.Position = 0
	}
	if c.dragging {
		st.Position = c.dragPosition
	}
	if d := c.element.Duration(); st.Track != nil && validDuration(d) {
		st.Duration = d
	}
	if c.loadErr != nil {
		st.LoadError = c.loadErr.Error()
	}
	return st
}

func validDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0
}

// Catalog returns the attached catalog, or nil when it could not be loaded
func (c *Controller) Catalog() *catalog.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.catOK {
		return nil
	}
	return c.catalog
}

// AttachCatalog makes the catalog available and restores the saved state
// against it. A saved track is selected, sought to its saved position once
// ready and played unless it was saved paused.
func (c *Controller) AttachCatalog(cat *catalog.Catalog) {
	ok := cat != nil
	if !ok {
		cat = catalog.New(nil, nil, catalog.DefaultOptions())
	}

	c.update(func() error {
		c.catalog = cat
		c.catOK = ok
		if c.store == nil {
			return nil
		}

		restored, found, err := c.store.LoadState(cat)
		if err != nil {
			log.Printf("[STATE] Restore: %v", err)
		}
		looping := c.store.LoadLoop()

		c.state = restored.State
		c.state.Looping = looping
		c.element.SetVolume(c.state.EffectiveVolume())

		if !found || c.state.CurrentTrack == nil {
			return nil
		}

		track := *c.state.CurrentTrack
		position := c.state.Position
		paused := c.state.Paused
		log.Printf("[STATE] Restoring %s at %.1fs (paused=%v)", track.Filename, position, paused)

		c.selectLocked(track)
		c.state.Position = position
		c.pendingSeek = position
		c.playWhenReady = !paused
		c.version++
		return nil
	})
}

// SelectTrack loads a track by filename without starting it
func (c *Controller) SelectTrack(filename string) error {
	return c.update(func() error {
		track, ok := c.catalog.Track(filename)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTrack, filename)
		}
		c.selectLocked(track)
		c.changedLocked(true)
		return nil
	})
}

// selectLocked assigns track to the element and waits for its metadata.
// Any wait, pending play or gesture retry for the previous track is dropped.
func (c *Controller) selectLocked(track catalog.Track) {
	if c.stopWait != nil {
		c.stopWait()
		c.stopWait = nil
	}
	c.gate.Disarm()
	c.loadGen++
	gen := c.loadGen

	c.state.CurrentTrack = &track
	c.state.Position = 0
	c.state.Paused = true
	c.state.SyncShuffleCursor()
	c.phase = PhaseLoading
	c.playWhenReady = false
	c.pendingSeek = -1
	c.loadErr = nil
	c.dragging = false

	path := c.opts.AssetPath(track.Filename)
	c.sourceID = c.element.SetSource(path)
	c.element.SetVolume(c.state.EffectiveVolume())

	signals := make([]<-chan struct{}, 0, len(audio.ReadySignals))
	for _, kind := range audio.ReadySignals {
		signals = append(signals, c.element.Signal(kind))
	}
	element := c.element
	c.stopWait = await.First(c.ctx, signals,
		func() bool { return validDuration(element.Duration()) },
		c.opts.PollInterval, c.opts.MaxPolls,
		func() { c.metadataReady(gen) })

	log.Printf("[TRANSPORT] Loading %s", path)
}

// metadataReady moves a still-current load to Ready
func (c *Controller) metadataReady(gen uint64) {
	c.update(func() error {
		if gen != c.loadGen || c.phase != PhaseLoading {
			return nil
		}
		c.phase = PhaseReady
		c.stopWait = nil

		if c.pendingSeek >= 0 {
			c.seekLocked(c.pendingSeek)
			c.pendingSeek = -1
		}
		if c.playWhenReady {
			c.playWhenReady = false
			if err := c.playLocked(); err != nil {
				log.Printf("[TRANSPORT] Play failed: %v", err)
			}
		}
		return nil
	})
}

// Play starts playback of the selected track. While the track is loading
// the request is remembered. A playback refusal before any user gesture is
// not an error: the play is retried on the next qualifying gesture.
func (c *Controller) Play() error {
	return c.update(c.playLocked)
}

func (c *Controller) playLocked() error {
	switch c.phase {
	case PhaseIdle, PhaseEnded:
		return ErrNoTrack
	case PhaseLoading:
		c.playWhenReady = true
		return nil
	case PhasePlaying:
		return nil
	}

	if err := c.element.Play(); err != nil {
		if errors.Is(err, audio.ErrAutoplayBlocked) {
			gen := c.loadGen
			c.gate.Arm(func() { c.retryPlay(gen) })
			log.Printf("[TRANSPORT] Playback blocked, retrying on next gesture")
			return nil
		}
		return fmt.Errorf("failed to play: %w", err)
	}

	c.gate.Disarm()
	c.phase = PhasePlaying
	c.state.Paused = false
	c.changedLocked(true)
	return nil
}

// retryPlay is the deferred play armed by a blocked Play
func (c *Controller) retryPlay(gen uint64) {
	c.update(func() error {
		if gen != c.loadGen || (c.phase != PhaseReady && c.phase != PhasePaused) {
			return nil
		}
		return c.playLocked()
	})
}

// UserActivation records that a user gesture is in progress
func (c *Controller) UserActivation() {
	c.element.UserActivation()
}

// Gesture reports a user gesture, running a deferred play if one is armed
func (c *Controller) Gesture(kind GestureKind) {
	if !kind.Qualifies() {
		return
	}
	c.element.UserActivation()
	c.gate.Fire(kind)
}

// Pause pauses playback and cancels any pending or deferred play
func (c *Controller) Pause() error {
	return c.update(func() error {
		c.pauseLocked()
		return nil
	})
}

func (c *Controller) pauseLocked() {
	c.playWhenReady = false
	c.gate.Disarm()
	if c.phase != PhasePlaying {
		return
	}
	c.element.Pause()
	c.state.Position = c.element.CurrentTime()
	c.state.Paused = true
	c.phase = PhasePaused
	c.changedLocked(true)
}

// TogglePause is the pause button
func (c *Controller) TogglePause() error {
	return c.update(func() error {
		switch c.phase {
		case PhaseIdle, PhaseEnded:
			return ErrNoTrack
		case PhasePlaying:
			c.pauseLocked()
			return nil
		case PhaseLoading:
			c.playWhenReady = !c.playWhenReady
			return nil
		}
		return c.playLocked()
	})
}

// Stop pauses, rewinds and deselects the track
func (c *Controller) Stop() error {
	return c.update(func() error {
		c.stopLocked()
		c.changedLocked(true)
		return nil
	})
}

func (c *Controller) stopLocked() {
	if c.stopWait != nil {
		c.stopWait()
		c.stopWait = nil
	}
	c.gate.Disarm()
	c.loadGen++
	c.element.Pause()
	c.sourceID = c.element.SetSource("")

	c.state.CurrentTrack = nil
	c.state.Position = 0
	c.state.Paused = true
	c.phase = PhaseIdle
	c.playWhenReady = false
	c.pendingSeek = -1
	c.loadErr = nil
	c.dragging = false
}

// ToggleTrack is a track button: it stops the track if it is the one
// playing, otherwise selects it and starts it.
func (c *Controller) ToggleTrack(filename string) error {
	return c.update(func() error {
		track, ok := c.catalog.Track(filename)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTrack, filename)
		}

		playing := c.phase == PhasePlaying || (c.phase == PhaseLoading && c.playWhenReady)
		if c.state.CurrentFilename() == filename && playing {
			log.Printf("[TRANSPORT] Stopping %s", filename)
			c.stopLocked()
			c.changedLocked(true)
			return nil
		}

		c.selectLocked(track)
		c.playWhenReady = true
		c.changedLocked(true)
		return nil
	})
}

// Skip plays the next track: the next shuffle entry while shuffling,
// otherwise the catalog's default track.
func (c *Controller) Skip() error {
	return c.update(func() error {
		if err := c.advanceLocked(); err != nil {
			return err
		}
		c.changedLocked(true)
		return nil
	})
}

func (c *Controller) advanceLocked() error {
	next, ok := c.state.AdvanceShuffle()
	if !ok {
		next, ok = c.catalog.DefaultTrack()
	}
	if !ok {
		return ErrNoTrack
	}
	c.selectLocked(next)
	c.playWhenReady = true
	return nil
}

// Restart seeks the current track back to the start
func (c *Controller) Restart() error {
	return c.Seek(0)
}

// Seek moves to seconds, clamped to the track length
func (c *Controller) Seek(seconds float64) error {
	return c.update(func() error {
		if !c.seekableLocked() {
			return ErrNotSeekable
		}
		c.dragging = false
		c.seekLocked(seconds)
		c.changedLocked(true)
		return nil
	})
}

func (c *Controller) seekableLocked() bool {
	switch c.phase {
	case PhaseReady, PhasePlaying, PhasePaused:
		return true
	}
	return false
}

func (c *Controller) clampLocked(seconds float64) float64 {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if d := c.element.Duration(); validDuration(d) && seconds > d {
		seconds = d
	}
	return seconds
}

func (c *Controller) seekLocked(seconds float64) {
	seconds = c.clampLocked(seconds)
	c.element.SetCurrentTime(seconds)
	c.state.Position = seconds
}

// BeginSeekDrag starts a drag on the progress bar. Until it ends, position
// updates from the playing element do not move the displayed position.
func (c *Controller) BeginSeekDrag() error {
	return c.update(func() error {
		if !c.seekableLocked() {
			return ErrNotSeekable
		}
		c.dragging = true
		c.dragPosition = c.state.Position
		return nil
	})
}

// DragSeek moves the displayed position during a drag
func (c *Controller) DragSeek(seconds float64) error {
	return c.update(func() error {
		if !c.dragging {
			return ErrNotSeekable
		}
		c.dragPosition = c.clampLocked(seconds)
		return nil
	})
}

// EndSeekDrag commits the dragged position
func (c *Controller) EndSeekDrag(seconds float64) error {
	return c.update(func() error {
		c.dragging = false
		if !c.seekableLocked() {
			return ErrNotSeekable
		}
		c.seekLocked(seconds)
		c.changedLocked(true)
		return nil
	})
}

// SetVolume sets the unmuted target volume
func (c *Controller) SetVolume(v float64) error {
	return c.update(func() error {
		c.state.SetVolume(v)
		c.element.SetVolume(c.state.EffectiveVolume())
		c.changedLocked(true)
		return nil
	})
}

// ToggleMute mutes or restores the target volume
func (c *Controller) ToggleMute() error {
	return c.update(func() error {
		c.state.Muted = !c.state.Muted
		c.element.SetVolume(c.state.EffectiveVolume())
		c.changedLocked(true)
		return nil
	})
}

// SetLoop enables or disables looping of the current track
func (c *Controller) SetLoop(looping bool) error {
	return c.update(func() error {
		c.state.Looping = looping
		if c.store != nil {
			if err := c.store.SaveLoop(looping); err != nil {
				log.Printf("[STATE] Failed to save loop state: %v", err)
			}
		}
		c.changedLocked(true)
		return nil
	})
}

// SetShuffle enables shuffle with a fresh permutation of the catalog, or
// disables it and drops the order.
func (c *Controller) SetShuffle(shuffling bool) error {
	return c.update(func() error {
		if shuffling == c.state.Shuffling {
			return nil
		}
		if shuffling {
			var tracks []catalog.Track
			if c.catalog != nil {
				tracks = c.catalog.Tracks
			}
			c.state.EnableShuffle(tracks, c.opts.Rand)
		} else {
			c.state.DisableShuffle()
		}
		c.changedLocked(true)
		return nil
	})
}

// handleEvent receives element events. Events for replaced sources are dropped.
func (c *Controller) handleEvent(ev audio.Event) {
	c.update(func() error {
		if ev.SourceID != c.sourceID || c.state.CurrentTrack == nil {
			return nil
		}

		switch ev.Kind {
		case audio.EventTimeUpdate:
			if c.phase == PhasePlaying {
				c.state.Position = c.element.CurrentTime()
				c.changedLocked(false)
			}
		case audio.EventEnded:
			c.endedLocked()
		case audio.EventError:
			// Stays Loading until the user picks something else
			log.Printf("[TRANSPORT] Failed to load %s: %v", c.opts.AssetPath(c.state.CurrentTrack.Filename), ev.Err)
			c.loadErr = ev.Err
			if c.stopWait != nil {
				c.stopWait()
				c.stopWait = nil
			}
			c.phase = PhaseLoading
			c.playWhenReady = false
		}
		return nil
	})
}

// endedLocked handles the natural end of the track. Loop wins over shuffle.
func (c *Controller) endedLocked() {
	if c.state.Looping {
		c.seekLocked(0)
		if err := c.element.Play(); err != nil {
			log.Printf("[TRANSPORT] Could not restart looped track: %v", err)
		}
		c.phase = PhasePlaying
		c.state.Paused = false
		c.changedLocked(true)
		return
	}

	if c.state.Shuffling && len(c.state.ShuffleOrder) > 0 {
		next, _ := c.state.AdvanceShuffle()
		c.selectLocked(next)
		c.playWhenReady = true
		c.changedLocked(true)
		return
	}

	log.Printf("[TRANSPORT] Finished %s", c.state.CurrentFilename())
	c.phase = PhaseEnded
	c.state.CurrentTrack = nil
	c.state.Position = 0
	c.state.Paused = true
	c.changedLocked(true)
}

// Close abandons pending work and writes the final state
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancel()
	c.stopWait = nil
	c.gate.Disarm()
	if c.phase == PhasePlaying {
		c.state.Position = c.element.CurrentTime()
	}
	c.changedLocked(true)
}
