// Package playback holds the background-music playback state, its shuffle
// order and its persistence.
package playback

import (
	"math/rand"

	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
)

// DefaultVolume is the volume used when none (or zero) has been saved
const DefaultVolume = 0.5

// State is the authoritative record of what the music track is doing
type State struct {
	CurrentTrack *catalog.Track
	Position     float64 // seconds, meaningless while CurrentTrack is nil
	Paused       bool
	Volume       float64 // unmuted target volume, 0.0 - 1.0
	Muted        bool
	Looping      bool
	Shuffling    bool

	// ShuffleOrder is a permutation of every catalog track while Shuffling
	ShuffleOrder  []catalog.Track
	ShuffleCursor int
}

// NewState returns the pre-catalog default state
func NewState() State {
	return State{
		Paused: true,
		Volume: DefaultVolume,
	}
}

// EffectiveVolume is the volume actually applied to the audio element
func (s *State) EffectiveVolume() float64 {
	if s.Muted {
		return 0
	}
	return s.Volume
}

// CurrentFilename returns the current track filename or ""
func (s *State) CurrentFilename() string {
	if s.CurrentTrack == nil {
		return ""
	}
	return s.CurrentTrack.Filename
}

// Clone returns a deep copy safe to hand to another goroutine
func (s State) Clone() State {
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		s.CurrentTrack = &t
	}
	if s.ShuffleOrder != nil {
		order := make([]catalog.Track, len(s.ShuffleOrder))
		copy(order, s.ShuffleOrder)
		s.ShuffleOrder = order
	}
	return s
}

// SetVolume clamps v to [0,1] and stores it as the target volume
func (s *State) SetVolume(v float64) {
	s.Volume = ClampVolume(v)
}

// ClampVolume limits a volume to [0,1]
func ClampVolume(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EnableShuffle materializes a fresh uniform permutation of tracks and places
// the cursor on the current track if it is part of it.
func (s *State) EnableShuffle(tracks []catalog.Track, rng *rand.Rand) {
	s.Shuffling = true
	s.ShuffleOrder = shuffled(tracks, rng)
	s.ShuffleCursor = 0
	if i := indexOf(s.ShuffleOrder, s.CurrentFilename()); i >= 0 {
		s.ShuffleCursor = i
	}
}

// DisableShuffle discards the shuffle order
func (s *State) DisableShuffle() {
	s.Shuffling = false
	s.ShuffleOrder = nil
	s.ShuffleCursor = 0
}

// AdvanceShuffle moves the cursor circularly and returns the next track
func (s *State) AdvanceShuffle() (catalog.Track, bool) {
	if !s.Shuffling || len(s.ShuffleOrder) == 0 {
		return catalog.Track{}, false
	}
	s.ShuffleCursor = (s.ShuffleCursor + 1) % len(s.ShuffleOrder)
	return s.ShuffleOrder[s.ShuffleCursor], true
}

// SyncShuffleCursor points the cursor at the current track when it is in the order
func (s *State) SyncShuffleCursor() {
	if !s.Shuffling {
		return
	}
	if i := indexOf(s.ShuffleOrder, s.CurrentFilename()); i >= 0 {
		s.ShuffleCursor = i
	}
}

// shuffled returns a Fisher-Yates permutation of tracks
func shuffled(tracks []catalog.Track, rng *rand.Rand) []catalog.Track {
	order := make([]catalog.Track, len(tracks))
	copy(order, tracks)
	for i := len(order) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func indexOf(tracks []catalog.Track, filename string) int {
	if filename == "" {
		return -1
	}
	for i, t := range tracks {
		if t.Filename == filename {
			return i
		}
	}
	return -1
}
