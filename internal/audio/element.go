// Package audio decodes soundboard assets and plays them through the
// system audio device.
package audio

import (
	"errors"
)

var (
	// ErrAssetLoad is reported when an asset is missing or cannot be decoded
	ErrAssetLoad = errors.New("asset load error")

	// ErrAutoplayBlocked is returned by Play when playback may not start
	// before a user gesture (or before the audio device is ready)
	ErrAutoplayBlocked = errors.New("autoplay blocked")
)

// SignalKind names a readiness notification of an element
type SignalKind string

// Readiness notifications. Each may fire zero or more times per source.
const (
	SignalLoadedMetadata SignalKind = "loadedmetadata"
	SignalLoadedData     SignalKind = "loadeddata"
	SignalCanPlay        SignalKind = "canplay"
	SignalCanPlayThrough SignalKind = "canplaythrough"
)

// ReadySignals lists every readiness notification
var ReadySignals = []SignalKind{SignalLoadedMetadata, SignalCanPlay, SignalLoadedData, SignalCanPlayThrough}

// EventKind is a playback event of an element
type EventKind string

const (
	EventTimeUpdate EventKind = "timeupdate"
	EventEnded      EventKind = "ended"
	EventError      EventKind = "error"
)

// Event is emitted by an element. SourceID identifies the source assignment
// the event belongs to so receivers can discard stale events.
type Event struct {
	Kind     EventKind
	SourceID uint64
	Err      error
}

// EventHandler receives element events. It is never called with element
// locks held.
type EventHandler func(Event)

// Element is a single playable audio source, modelled on a media element:
// assigning a source starts loading it, readiness is announced through
// signals, and playback progress through events.
type Element interface {
	// SetSource assigns path and starts loading it. An empty path unloads.
	// The returned id tags every signal and event of this assignment.
	SetSource(path string) uint64

	// Signal returns a channel closed when kind fires for the current source
	Signal(kind SignalKind) <-chan struct{}

	// Play starts or resumes playback. It returns ErrAutoplayBlocked when
	// playback is not allowed yet.
	Play() error
	Pause()
	Paused() bool

	// CurrentTime and Duration are in seconds; Duration is NaN until known
	CurrentTime() float64
	SetCurrentTime(seconds float64)
	Duration() float64

	SetVolume(v float64)
	Volume() float64

	// UserActivation records a user gesture, lifting autoplay restrictions
	UserActivation()

	SetEventHandler(h EventHandler)
	Close() error
}
