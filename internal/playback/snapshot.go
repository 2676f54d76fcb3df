package playback

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/austinkregel/local-media/soundboardd/internal/catalog"
)

// ErrRestore reports a snapshot that was present but partly or wholly unusable.
// Restore still returns a usable state alongside it.
var ErrRestore = errors.New("restore failure")

// Snapshot is the persisted form of State (the musicState record)
type Snapshot struct {
	CurrentSong      *string  `json:"currentSong"`
	CurrentTime      float64  `json:"currentTime"`
	Paused           bool     `json:"paused"`
	Volume           float64  `json:"volume"`
	Muted            bool     `json:"muted"`
	IsShuffling      bool     `json:"isShuffling"`
	CurrentSongIndex int      `json:"currentSongIndex"`
	ShuffleQueue     []string `json:"shuffleQueue"`
}

// Serialize projects a state to its snapshot. Loop lives under its own key.
func Serialize(s State) Snapshot {
	snap := Snapshot{
		Paused:           s.Paused,
		Volume:           s.Volume,
		Muted:            s.Muted,
		IsShuffling:      s.Shuffling,
		CurrentSongIndex: s.ShuffleCursor,
	}
	if s.CurrentTrack != nil {
		name := s.CurrentTrack.Filename
		snap.CurrentSong = &name
		snap.CurrentTime = s.Position
	}
	if s.Shuffling {
		snap.ShuffleQueue = make([]string, len(s.ShuffleOrder))
		for i, t := range s.ShuffleOrder {
			snap.ShuffleQueue[i] = t.Filename
		}
	}
	return snap
}

// Marshal encodes a snapshot
func (s Snapshot) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Restored is the outcome of Restore
type Restored struct {
	State State

	// VolumeReset is set when the stored volume was missing or not positive
	// and was replaced by DefaultVolume; the snapshot should be rewritten.
	VolumeReset bool
}

// Restore rebuilds a state from snapshot bytes against the current catalog.
// Fields are parsed independently: an unparsable field keeps its default
// value. A volume that is missing or <= 0 becomes DefaultVolume. A current
// song that is no longer in the catalog is dropped. Shuffle queue entries
// that are no longer in the catalog are filtered out.
func Restore(data []byte, c *catalog.Catalog) (Restored, error) {
	out := Restored{State: NewState()}
	st := &out.State

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return out, fmt.Errorf("%w: %v", ErrRestore, err)
	}

	var problems []string
	field := func(name string, dst any) bool {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			return false
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			return false
		}
		return true
	}

	var volume float64
	if field("volume", &volume) && volume > 0 && !math.IsNaN(volume) {
		st.Volume = ClampVolume(volume)
	} else {
		out.VolumeReset = true
	}

	var muted bool
	if field("muted", &muted) {
		st.Muted = muted
	}

	var paused bool
	if field("paused", &paused) {
		st.Paused = paused
	}

	var song string
	if field("currentSong", &song) && song != "" {
		if t, ok := lookupSong(c, song); ok {
			st.CurrentTrack = &t
			var pos float64
			if field("currentTime", &pos) && pos > 0 && !math.IsInf(pos, 0) {
				st.Position = pos
			}
		} else {
			problems = append(problems, fmt.Sprintf("currentSong %q not in catalog", song))
		}
	}

	var shuffling bool
	var queue []string
	if field("isShuffling", &shuffling) && shuffling && field("shuffleQueue", &queue) && c != nil && len(c.Tracks) > 0 {
		var cursor int
		field("currentSongIndex", &cursor)
		restoreShuffle(st, c, queue, cursor)
	}

	if len(problems) > 0 {
		return out, fmt.Errorf("%w: %s", ErrRestore, strings.Join(problems, "; "))
	}
	return out, nil
}

// restoreShuffle keeps the saved order of tracks still in the catalog and
// appends catalog tracks the saved order does not know about.
func restoreShuffle(st *State, c *catalog.Catalog, queue []string, cursor int) {
	seen := make(map[string]bool, len(queue))
	order := make([]catalog.Track, 0, len(c.Tracks))
	for _, name := range queue {
		if seen[name] {
			continue
		}
		if t, ok := c.Track(name); ok {
			order = append(order, t)
			seen[name] = true
		}
	}
	for _, t := range c.Tracks {
		if !seen[t.Filename] {
			order = append(order, t)
		}
	}

	st.Shuffling = true
	st.ShuffleOrder = order
	st.ShuffleCursor = 0
	if cursor >= 0 && cursor < len(order) {
		st.ShuffleCursor = cursor
	}
	st.SyncShuffleCursor()
}

// lookupSong accepts a bare filename as well as the "Music/<file>" and
// URL-encoded forms older snapshots used.
func lookupSong(c *catalog.Catalog, song string) (catalog.Track, bool) {
	candidates := []string{song}
	if decoded, err := url.PathUnescape(song); err == nil && decoded != song {
		candidates = append(candidates, decoded)
	}
	for _, cand := range candidates {
		if t, ok := c.Track(cand); ok {
			return t, true
		}
		if i := strings.Index(cand, "/"); i >= 0 {
			if t, ok := c.Track(cand[i+1:]); ok {
				return t, true
			}
		}
	}
	return catalog.Track{}, false
}

// patchVolume replaces the volume of raw snapshot bytes
func patchVolume(data []byte, volume float64) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	raw, err := json.Marshal(volume)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal volume: %w", err)
	}
	fields["volume"] = raw
	fixed, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return fixed, nil
}
