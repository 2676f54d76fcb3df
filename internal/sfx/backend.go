package sfx

import (
	"fmt"

	"github.com/austinkregel/local-media/soundboardd/internal/audio"
	"github.com/gopxl/beep/v2"
)

// OtoBackend decodes effects fully into memory and plays them on the shared
// audio device. Clips are short, so every voice replays the same buffer.
type OtoBackend struct {
	device *audio.Device
}

// NewOtoBackend creates a backend on device
func NewOtoBackend(device *audio.Device) *OtoBackend {
	return &OtoBackend{device: device}
}

// Load decodes path into a clip
func (b *OtoBackend) Load(path string) (Clip, error) {
	buf, err := audio.LoadBuffer(path, b.device.SampleRate())
	if err != nil {
		return nil, fmt.Errorf("failed to decode effect: %w", err)
	}
	return &otoClip{device: b.device, buf: buf}, nil
}

type otoClip struct {
	device *audio.Device
	buf    *beep.Buffer
}

func (c *otoClip) Start(volume float64, onDone func()) (Voice, error) {
	return c.device.PlayBuffer(c.buf, volume, onDone)
}

// Ensure OtoBackend implements Backend
var _ Backend = (*OtoBackend)(nil)
