package audio

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	recorderBitDepth = 16
	wavFormatPCM     = 1
)

// RecordingFilename returns the name used for --save-audio recordings.
func RecordingFilename(now time.Time) string {
	return now.Format("20060102150405") + ".wav"
}

// Recorder writes float samples to a 16-bit mono WAV file. It implements
// SampleWriter so it can be attached to a Capture tap.
type Recorder struct {
	mu   sync.Mutex
	f    *os.File
	enc  *wav.Encoder
	buf  *goaudio.IntBuffer
	path string
}

func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sampleRate: should be greater than 0")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	return &Recorder{
		f:    f,
		path: path,
		enc:  wav.NewEncoder(f, sampleRate, recorderBitDepth, channels, wavFormatPCM),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: recorderBitDepth,
		},
	}, nil
}

func (r *Recorder) Path() string {
	return r.path
}

func (r *Recorder) Write(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		return fmt.Errorf("recorder is closed")
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(float32ToInt16(s))
	}

	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}

	return nil
}

// Close finalizes the WAV header and closes the file. It's safe to call it
// more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		return nil
	}

	encErr := r.enc.Close()
	r.enc = nil
	closeErr := r.f.Close()

	if encErr != nil {
		return fmt.Errorf("failed to finalize wav file: %w", encErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close wav file: %w", closeErr)
	}

	return nil
}

func float32ToInt16(s float32) int16 {
	s = max(-1, min(1, s))
	return int16(math.Round(float64(s) * math.MaxInt16))
}
