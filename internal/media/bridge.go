package media

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/austinkregel/local-media/soundboardd/internal/transport"
)

// Transport is the part of the transport controller the bridge drives
type Transport interface {
	Play() error
	Pause() error
	TogglePause() error
	Stop() error
	Skip() error
	Restart() error
	Seek(seconds float64) error
	SetShuffle(shuffling bool) error
	SetLoop(looping bool) error
	SetVolume(v float64) error
	UserActivation()
	Gesture(kind transport.GestureKind)
	Status() transport.Status
}

// ArtResolver returns an absolute artwork path for a track, or ""
type ArtResolver func(filename string) string

// Bridge mirrors transport status into a media session and turns OS media
// commands into transport operations. Every OS command counts as a key
// gesture.
type Bridge struct {
	session   Session
	transport Transport
	art       ArtResolver

	mu   sync.Mutex
	last *transport.Status
}

// NewBridge connects session and t
func NewBridge(session Session, t Transport, art ArtResolver) *Bridge {
	b := &Bridge{
		session:   session,
		transport: t,
		art:       art,
	}
	session.SetCommandHandler(b)
	return b
}

// Update pushes the parts of st that changed since the last update
func (b *Bridge) Update(st transport.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.last
	b.last = &st

	if prev == nil || trackOf(*prev) != trackOf(st) || prev.Duration != st.Duration {
		if err := b.session.UpdateMetadata(b.metadata(st)); err != nil {
			log.Printf("[MEDIA] Failed to update metadata: %v", err)
		}
	}
	if prev == nil || playbackState(*prev) != playbackState(st) {
		if err := b.session.UpdatePlaybackState(playbackState(st), seconds(st.Position)); err != nil {
			log.Printf("[MEDIA] Failed to update playback state: %v", err)
		}
	}
	if prev == nil || prev.Shuffling != st.Shuffling {
		if err := b.session.UpdateShuffle(st.Shuffling); err != nil {
			log.Printf("[MEDIA] Failed to update shuffle: %v", err)
		}
	}
	if prev == nil || prev.Looping != st.Looping {
		if err := b.session.UpdateLoopStatus(loopStatus(st.Looping)); err != nil {
			log.Printf("[MEDIA] Failed to update loop status: %v", err)
		}
	}
	if prev == nil || prev.Volume != st.Volume || prev.Muted != st.Muted {
		v := st.Volume
		if st.Muted {
			v = 0
		}
		if err := b.session.UpdateVolume(v); err != nil {
			log.Printf("[MEDIA] Failed to update volume: %v", err)
		}
	}
}

func (b *Bridge) metadata(st transport.Status) Metadata {
	if st.Track == nil {
		return Metadata{}
	}
	md := Metadata{
		TrackID:  st.Track.Filename,
		Title:    st.Track.DisplayName,
		Album:    "Soundboard",
		Duration: seconds(st.Duration),
	}
	if b.art != nil {
		md.ArtPath = b.art(st.Track.Filename)
	}
	return md
}

// OnCommand handles a command from the OS media controls
func (b *Bridge) OnCommand(cmd Command, data interface{}) error {
	log.Printf("[MEDIA] Command: %s", cmd)

	b.transport.UserActivation()
	defer b.transport.Gesture(transport.GestureKey)

	var err error
	switch cmd {
	case CmdPlay:
		err = b.transport.Play()
	case CmdPause:
		err = b.transport.Pause()
	case CmdPlayPause:
		err = b.transport.TogglePause()
	case CmdStop:
		err = b.transport.Stop()
	case CmdNext:
		err = b.transport.Skip()
	case CmdPrevious:
		err = b.transport.Restart()
	case CmdSeek:
		if pos, ok := data.(time.Duration); ok {
			err = b.transport.Seek(pos.Seconds())
		}
	case CmdSeekBy:
		if offset, ok := data.(time.Duration); ok {
			err = b.transport.Seek(b.transport.Status().Position + offset.Seconds())
		}
	case CmdSetShuffle:
		if enabled, ok := data.(bool); ok {
			err = b.transport.SetShuffle(enabled)
		}
	case CmdSetLoopStatus:
		if status, ok := data.(LoopStatus); ok {
			err = b.transport.SetLoop(status == LoopTrack)
		}
	case CmdSetVolume:
		if v, ok := data.(float64); ok {
			err = b.transport.SetVolume(v)
		}
	default:
		err = fmt.Errorf("unsupported command: %s", cmd)
	}

	if err != nil {
		log.Printf("[MEDIA] %s failed: %v", cmd, err)
	}
	return err
}

func trackOf(st transport.Status) string {
	if st.Track == nil {
		return ""
	}
	return st.Track.Filename
}

func playbackState(st transport.Status) PlaybackState {
	switch {
	case st.Track == nil:
		return StateStopped
	case st.Phase == transport.PhasePlaying:
		return StatePlaying
	default:
		return StatePaused
	}
}

func loopStatus(looping bool) LoopStatus {
	if looping {
		return LoopTrack
	}
	return LoopNone
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
