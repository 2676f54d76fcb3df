package audio

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

// timeUpdateInterval is how often a playing element reports its position
const timeUpdateInterval = 250 * time.Millisecond

// StreamOpener decodes an asset for playback at a sample rate
type StreamOpener func(path string, sampleRate int) (*Stream, error)

// OtoElement is an Element that decodes assets with beep and plays them
// through the shared oto device.
type OtoElement struct {
	mu             sync.Mutex
	device         *Device
	open           StreamOpener
	requireGesture bool
	activated      bool

	// Source tracking - every assignment gets a new id so late decoder
	// completions for a replaced source are dropped
	sourceID uint64
	path     string
	stream   *Stream
	reader   *pcmReader
	player   oto.Player
	duration float64
	signals  map[SignalKind]chan struct{}

	volume     float64
	paused     bool
	stopTicker chan struct{}
	handler    EventHandler
	closed     bool
}

// NewOtoElement creates an element on device. When requireGesture is set,
// Play is refused until UserActivation has been called once.
func NewOtoElement(device *Device, requireGesture bool) *OtoElement {
	return &OtoElement{
		device:         device,
		open:           OpenStream,
		requireGesture: requireGesture,
		duration:       math.NaN(),
		signals:        newSignals(),
		volume:         1.0,
		paused:         true,
	}
}

func newSignals() map[SignalKind]chan struct{} {
	signals := make(map[SignalKind]chan struct{}, len(ReadySignals))
	for _, k := range ReadySignals {
		signals[k] = make(chan struct{})
	}
	return signals
}

// SetEventHandler sets the receiver of playback events
func (e *OtoElement) SetEventHandler(h EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *OtoElement) emit(h EventHandler, ev Event) {
	if h != nil {
		h(ev)
	}
}

// SetSource assigns a new source and starts decoding it in the background
func (e *OtoElement) SetSource(path string) uint64 {
	e.mu.Lock()
	e.teardownLocked()
	e.sourceID++
	id := e.sourceID
	e.path = path
	e.duration = math.NaN()
	e.paused = true
	e.signals = newSignals()
	e.mu.Unlock()

	if path != "" {
		go e.load(id, path)
	}
	return id
}

func (e *OtoElement) load(id uint64, path string) {
	stream, err := e.open(path, e.device.SampleRate())

	e.mu.Lock()
	if id != e.sourceID || e.closed {
		e.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return
	}
	if err != nil {
		h := e.handler
		e.mu.Unlock()
		if !errors.Is(err, ErrAssetLoad) {
			err = fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
		}
		log.Printf("[AUDIO] Failed to load %s: %v", path, err)
		e.emit(h, Event{Kind: EventError, SourceID: id, Err: err})
		return
	}

	e.stream = stream
	e.reader = newPCMReader(stream)
	e.player = e.device.NewPlayer(e.reader)
	e.player.SetVolume(e.volume)
	e.duration = stream.Duration().Seconds()
	signals := e.signals
	if !e.paused {
		e.startLocked(id)
	}
	e.mu.Unlock()

	log.Printf("[AUDIO] Loaded %s (%.1fs)", path, stream.Duration().Seconds())

	// Announce readiness through every channel a listener may wait on
	for _, k := range ReadySignals {
		close(signals[k])
	}
}

// teardownLocked releases the current source (must be called with lock held)
func (e *OtoElement) teardownLocked() {
	e.stopTickerLocked()
	if e.player != nil {
		e.player.Pause()
		e.player.Close()
		e.player = nil
	}
	if e.stream != nil {
		e.stream.Close()
		e.stream = nil
	}
	e.reader = nil
}

// Signal returns the readiness channel of kind for the current source
func (e *OtoElement) Signal(kind SignalKind) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signals[kind]
}

// Play starts playback, or arranges for it to start once the source has loaded
func (e *OtoElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.requireGesture && !e.activated {
		return fmt.Errorf("%w: no user gesture yet", ErrAutoplayBlocked)
	}
	if !e.device.Ready() {
		return fmt.Errorf("%w: audio device not ready", ErrAutoplayBlocked)
	}
	if e.path == "" {
		return fmt.Errorf("%w: no source", ErrAssetLoad)
	}

	e.paused = false
	if e.player != nil {
		if e.reader.Done() && !e.player.IsPlaying() {
			e.seekLocked(0)
		}
		e.startLocked(e.sourceID)
	}
	return nil
}

func (e *OtoElement) startLocked(id uint64) {
	e.player.Play()
	if e.stopTicker == nil {
		e.stopTicker = make(chan struct{})
		go e.tick(id, e.stopTicker)
	}
}

func (e *OtoElement) stopTickerLocked() {
	if e.stopTicker != nil {
		close(e.stopTicker)
		e.stopTicker = nil
	}
}

// tick reports position while playing and detects the natural end
func (e *OtoElement) tick(id uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(timeUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		if id != e.sourceID || e.player == nil {
			e.mu.Unlock()
			return
		}
		h := e.handler
		if e.reader.Done() && !e.player.IsPlaying() {
			e.paused = true
			e.stopTickerLocked()
			e.mu.Unlock()
			e.emit(h, Event{Kind: EventEnded, SourceID: id})
			return
		}
		e.mu.Unlock()
		e.emit(h, Event{Kind: EventTimeUpdate, SourceID: id})
	}
}

// Pause pauses playback
func (e *OtoElement) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.paused = true
	e.stopTickerLocked()
	if e.player != nil {
		e.player.Pause()
	}
}

// Paused reports whether the element is paused
func (e *OtoElement) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// CurrentTime returns the audible position in seconds
func (e *OtoElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return 0
	}
	pos := e.stream.Position().Seconds()
	if e.player != nil {
		// Samples handed to the device but not heard yet
		pos -= float64(e.player.UnplayedBufferSize()) / float64(bytesPerFrame*e.device.SampleRate())
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// SetCurrentTime seeks to seconds, clamped to [0, duration]
func (e *OtoElement) SetCurrentTime(seconds float64) {
	e.mu.Lock()
	if e.stream == nil {
		e.mu.Unlock()
		return
	}
	e.seekLocked(seconds)
	id := e.sourceID
	h := e.handler
	e.mu.Unlock()

	// Callers may hold their own locks while seeking
	go e.emit(h, Event{Kind: EventTimeUpdate, SourceID: id})
}

// seekLocked repositions the decoder. The oto player keeps its own buffer,
// so it is replaced to avoid replaying audio from the old position.
func (e *OtoElement) seekLocked(seconds float64) {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	if !math.IsNaN(e.duration) && seconds > e.duration {
		seconds = e.duration
	}

	if e.player != nil {
		e.player.Pause()
		e.player.Close()
	}
	if err := e.stream.Seek(time.Duration(seconds * float64(time.Second))); err != nil {
		log.Printf("[AUDIO] Seek failed for %s: %v", e.path, err)
	}
	e.reader.Rewind()
	e.player = e.device.NewPlayer(e.reader)
	e.player.SetVolume(e.volume)
	if !e.paused {
		e.player.Play()
	}
}

// Duration returns the track length in seconds, NaN until known
func (e *OtoElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// SetVolume sets the output volume (0.0 - 1.0)
func (e *OtoElement) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.volume = v
	if e.player != nil {
		e.player.SetVolume(v)
	}
}

// Volume returns the output volume
func (e *OtoElement) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// UserActivation lifts the gesture requirement for the rest of the session
func (e *OtoElement) UserActivation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activated = true
}

// Close releases the element
func (e *OtoElement) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.teardownLocked()
	return nil
}

// Ensure OtoElement implements Element
var _ Element = (*OtoElement)(nil)
