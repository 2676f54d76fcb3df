package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// resampleQuality is the beep resampler quality (1 = fast, 6 = best)
const resampleQuality = 4

// SupportedExtensions are the asset extensions the decoder understands
var SupportedExtensions = map[string]bool{
	".mp3": true,
	".wav": true,
	".ogg": true,
}

// IsSupported reports whether path has a playable extension
func IsSupported(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// decodeFile opens and decodes path with the decoder matching its extension
func decodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".ogg":
		s, format, err = vorbis.Decode(f)
	default:
		err = fmt.Errorf("unsupported format %q", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	// The decoders close f when the stream is closed
	return s, format, nil
}

// Stream is a decoded, seekable track resampled to the output rate.
// It is safe for concurrent use.
type Stream struct {
	mu         sync.Mutex
	source     beep.StreamSeekCloser
	playing    beep.Streamer
	format     beep.Format
	targetRate beep.SampleRate
}

// OpenStream decodes path for playback at sampleRate
func OpenStream(path string, sampleRate int) (*Stream, error) {
	source, format, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
	}

	s := &Stream{
		source:     source,
		format:     format,
		targetRate: beep.SampleRate(sampleRate),
	}
	s.resetPlaying()
	return s, nil
}

func (s *Stream) resetPlaying() {
	if s.format.SampleRate == s.targetRate {
		s.playing = s.source
		return
	}
	s.playing = beep.Resample(resampleQuality, s.format.SampleRate, s.targetRate, s.source)
}

// Stream implements beep.Streamer
func (s *Stream) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing.Stream(samples)
}

// Err implements beep.Streamer
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing.Err(); err != nil {
		return err
	}
	return s.source.Err()
}

// Duration returns the total length of the track
func (s *Stream) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.SampleRate.D(s.source.Len())
}

// Position returns how far the decoder has read
func (s *Stream) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.SampleRate.D(s.source.Position())
}

// Seek moves the decoder to d, clamped to the track bounds
func (s *Stream) Seek(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.format.SampleRate.N(d)
	if n < 0 {
		n = 0
	}
	if n > s.source.Len() {
		n = s.source.Len()
	}
	if err := s.source.Seek(n); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	// Drop samples the resampler buffered from the old position
	s.resetPlaying()
	return nil
}

// Close releases the decoder and its file
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.Close()
}

// LoadBuffer decodes a whole asset into memory at sampleRate. Short sound
// effects are kept this way so every trigger can start a fresh instance.
func LoadBuffer(path string, sampleRate int) (*beep.Buffer, error) {
	source, format, err := decodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
	}
	defer source.Close()

	target := beep.SampleRate(sampleRate)
	var s beep.Streamer = source
	if format.SampleRate != target {
		s = beep.Resample(resampleQuality, format.SampleRate, target, source)
	}

	buf := beep.NewBuffer(beep.Format{SampleRate: target, NumChannels: 2, Precision: 2})
	buf.Append(s)
	if err := source.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetLoad, path, err)
	}
	return buf, nil
}
