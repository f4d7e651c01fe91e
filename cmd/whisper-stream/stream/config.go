package stream

import (
	"fmt"
	"time"
)

const (
	// The gate checks for speech at most once per vadThrottle.
	vadThrottle = 2000 * time.Millisecond
	// Amount of audio handed to the classifier.
	vadWindowMs = 2000
	// Trailing part of the window that must be quiet for the utterance to be
	// considered complete.
	vadProbeMs = 1000

	pollInterval = time.Millisecond
	vadSleep     = 100 * time.Millisecond
)

// Source is the audio capture the controller drains. Implementations buffer
// audio in the background and must be safe to call from the controller while
// they are being written.
type Source interface {
	// Get returns the last ms milliseconds captured since the last Clear, or
	// all of them if ms is 0.
	Get(ms int) []float32
	Clear()
	Resume() error
	Pause() error
}

type Config struct {
	// Cadence of new audio per chunk. Zero enables VAD mode.
	StepMs int
	// Audio length fed to inference.
	LengthMs int
	// Audio retained from the previous chunk in continuous mode.
	KeepMs     int
	SampleRate int

	VADThold  float32
	FreqThold float32

	// Pass the tokens of the previous chunks as decoding context.
	KeepContext bool
}

func (c Config) IsValid() error {
	if c.StepMs < 0 {
		return fmt.Errorf("invalid StepMs: should not be negative")
	}
	if c.LengthMs <= 0 {
		return fmt.Errorf("invalid LengthMs: should be greater than 0")
	}
	if c.KeepMs < 0 {
		return fmt.Errorf("invalid KeepMs: should not be negative")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: should be greater than 0")
	}
	return nil
}

func (c Config) VAD() bool {
	return c.StepMs <= 0
}

// Normalize enforces keep <= step <= length in continuous mode. VAD mode runs
// without decoding context.
func (c *Config) Normalize() {
	if c.VAD() {
		c.KeepContext = false
		return
	}
	c.KeepMs = min(c.KeepMs, c.StepMs)
	c.LengthMs = max(c.LengthMs, c.StepMs)
}

// Timestamps returns whether segments are printed with timestamps. Continuous
// mode keeps redrawing a single line so it prints plain text.
func (c Config) Timestamps() bool {
	return c.VAD()
}

// NNewLine returns after how many chunks the current line is committed and the
// carried audio is reset.
func (c Config) NNewLine() int {
	if c.VAD() {
		return 1
	}
	return max(1, c.LengthMs/c.StepMs-1)
}

func (c Config) samples(ms int) int {
	return ms * c.SampleRate / 1000
}
