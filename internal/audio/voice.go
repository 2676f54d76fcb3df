package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/hajimehoshi/oto/v2"
)

// voicePollInterval is how often a voice checks whether it has finished
const voicePollInterval = 20 * time.Millisecond

// Voice is one playing instance of an in-memory clip
type Voice struct {
	mu      sync.Mutex
	player  oto.Player
	volume  float64
	stopped bool
}

// PlayBuffer starts a new voice over buf at volume. onDone is called once
// when the voice finishes on its own; it is not called after Stop.
func (d *Device) PlayBuffer(buf *beep.Buffer, volume float64, onDone func()) (*Voice, error) {
	if !d.Ready() {
		return nil, fmt.Errorf("%w: audio device not ready", ErrAutoplayBlocked)
	}

	player := d.NewPlayer(newPCMReader(buf.Streamer(0, buf.Len())))
	player.SetVolume(volume)
	player.Play()

	v := &Voice{player: player, volume: volume}
	go v.wait(onDone)
	return v, nil
}

func (v *Voice) wait(onDone func()) {
	for {
		time.Sleep(voicePollInterval)

		v.mu.Lock()
		if v.stopped {
			v.mu.Unlock()
			return
		}
		if v.player.IsPlaying() {
			v.mu.Unlock()
			continue
		}
		v.stopped = true
		v.player.Close()
		v.mu.Unlock()

		if onDone != nil {
			onDone()
		}
		return
	}
}

// Stop halts the voice and releases its player
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.stopped {
		return
	}
	v.stopped = true
	v.player.Pause()
	v.player.Close()
}

// Volume returns the volume the voice was started with
func (v *Voice) Volume() float64 {
	return v.volume
}
