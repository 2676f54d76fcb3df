package audio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultSampleRate = 44100
	defaultChannels   = 2
	defaultBitDepth   = 2 // 16-bit = 2 bytes

	bytesPerFrame = defaultChannels * defaultBitDepth
)

// Device is the process-wide audio output. Oto allows a single context per
// process, so the music element and every sound-effect voice share it.
type Device struct {
	context    *oto.Context
	ready      chan struct{}
	sampleRate int
	bufferSize int // bytes per player, 0 = oto default
}

// NewDevice opens the audio output. It does not wait for the device to
// become ready; playback attempted before then is reported as blocked.
func NewDevice(sampleRate, bufferSizeMs int) (*Device, error) {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}

	ctx, ready, err := oto.NewContext(sampleRate, defaultChannels, defaultBitDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	return &Device{
		context:    ctx,
		ready:      ready,
		sampleRate: sampleRate,
		bufferSize: sampleRate * bytesPerFrame * bufferSizeMs / 1000,
	}, nil
}

// Ready reports whether the device accepts playback
func (d *Device) Ready() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the device is ready or ctx is done
func (d *Device) WaitReady(ctx context.Context) error {
	select {
	case <-d.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SampleRate returns the output sample rate
func (d *Device) SampleRate() int {
	return d.sampleRate
}

type bufferSizeSetter interface {
	SetBufferSize(bufferSize int)
}

// NewPlayer creates an oto player reading PCM from r
func (d *Device) NewPlayer(r io.Reader) oto.Player {
	p := d.context.NewPlayer(r)
	if s, ok := p.(bufferSizeSetter); ok && d.bufferSize > 0 {
		s.SetBufferSize(d.bufferSize)
	}
	return p
}

// pcmReader converts a beep stream into signed 16-bit little-endian stereo
// PCM for oto.
type pcmReader struct {
	mu     sync.Mutex
	source beep.Streamer
	frames [][2]float64
	done   bool
}

func newPCMReader(source beep.Streamer) *pcmReader {
	return &pcmReader{source: source}
}

// Read implements io.Reader for the oto player
func (r *pcmReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return 0, io.EOF
	}

	want := len(p) / bytesPerFrame
	if want == 0 {
		return 0, nil
	}
	if cap(r.frames) < want {
		r.frames = make([][2]float64, want)
	}
	frames := r.frames[:want]

	filled := 0
	for filled < want {
		n, ok := r.source.Stream(frames[filled:])
		filled += n
		if !ok {
			r.done = true
			break
		}
		if n == 0 {
			break
		}
	}

	encodeFrames(p, frames[:filled])
	if filled == 0 && r.done {
		return 0, io.EOF
	}
	return filled * bytesPerFrame, nil
}

// Done reports whether the source is exhausted
func (r *pcmReader) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Rewind marks the source readable again after a seek
func (r *pcmReader) Rewind() {
	r.mu.Lock()
	r.done = false
	r.mu.Unlock()
}

// encodeFrames writes float frames as 16-bit little-endian samples
func encodeFrames(dst []byte, frames [][2]float64) {
	for i, f := range frames {
		for c := 0; c < defaultChannels; c++ {
			v := f[c]
			if v > 1 {
				v = 1
			}
			if v < -1 {
				v = -1
			}
			sample := int16(v * 32767)
			off := i*bytesPerFrame + c*defaultBitDepth
			dst[off] = byte(sample)
			dst[off+1] = byte(sample >> 8)
		}
	}
}

// Ensure pcmReader implements io.Reader
var _ io.Reader = (*pcmReader)(nil)
