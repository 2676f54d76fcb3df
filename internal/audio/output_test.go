package audio

import (
	"io"
	"testing"

	"github.com/gopxl/beep/v2"
)

func TestEncodeFrames(t *testing.T) {
	tests := []struct {
		name     string
		frames   [][2]float64
		expected []byte
	}{
		{
			name:     "silence",
			frames:   [][2]float64{{0, 0}},
			expected: []byte{0x00, 0x00, 0x00, 0x00},
		},
		{
			name:     "full scale",
			frames:   [][2]float64{{1, -1}},
			expected: []byte{0xFF, 0x7F, 0x01, 0x80}, // 32767, -32767
		},
		{
			name:     "clipped",
			frames:   [][2]float64{{2.5, -3}},
			expected: []byte{0xFF, 0x7F, 0x01, 0x80},
		},
		{
			name:     "half",
			frames:   [][2]float64{{0.5, 0}},
			expected: []byte{0xFF, 0x3F, 0x00, 0x00}, // 16383
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, len(tt.expected))
			encodeFrames(data, tt.frames)
			for i := range data {
				if data[i] != tt.expected[i] {
					t.Errorf("Byte %d: expected %02X, got %02X", i, tt.expected[i], data[i])
				}
			}
		})
	}
}

// countingStreamer yields total frames of a constant value then ends
func countingStreamer(total int) beep.Streamer {
	remaining := total
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		if remaining == 0 {
			return 0, false
		}
		n := len(samples)
		if n > remaining {
			n = remaining
		}
		for i := 0; i < n; i++ {
			samples[i] = [2]float64{0.25, 0.25}
		}
		remaining -= n
		return n, true
	})
}

func TestPCMReaderDrainsSource(t *testing.T) {
	r := newPCMReader(countingStreamer(10))

	buf := make([]byte, 6*bytesPerFrame)
	n, err := r.Read(buf)
	if err != nil || n != 6*bytesPerFrame {
		t.Fatalf("First read: n=%d err=%v", n, err)
	}

	n, err = r.Read(buf)
	if n != 4*bytesPerFrame {
		t.Errorf("Expected remaining 4 frames, got %d bytes (err=%v)", n, err)
	}
	if !r.Done() {
		t.Error("Expected reader to be done after source ended")
	}

	if _, err := r.Read(buf); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}

	r.Rewind()
	if r.Done() {
		t.Error("Expected rewind to clear done")
	}
}

func TestPCMReaderShortBuffer(t *testing.T) {
	r := newPCMReader(countingStreamer(10))

	n, err := r.Read(make([]byte, bytesPerFrame-1))
	if n != 0 || err != nil {
		t.Errorf("Expected empty read for sub-frame buffer, got n=%d err=%v", n, err)
	}
}

func TestIsSupported(t *testing.T) {
	tests := map[string]bool{
		"Music/Desk.mp3":         true,
		"Sound Effects/Boom.WAV": true,
		"a.ogg":                  true,
		"cover.png":              false,
		"noext":                  false,
	}
	for path, want := range tests {
		if got := IsSupported(path); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestOpenStreamMissingFile(t *testing.T) {
	_, err := OpenStream("/nonexistent/track.mp3", 44100)
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
}
