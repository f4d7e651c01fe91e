package stream

import (
	"context"
	"log/slog"
	"time"
)

// Window builds fixed cadence chunks in continuous mode. Each chunk is the
// tail of the previous chunk followed by the newly captured audio.
type Window struct {
	nStep int
	nLen  int
	nKeep int

	nNewLine int
	iter     int
	carry    []float32

	rate     int
	consumed int

	dropped int
	sleep   func(time.Duration)
}

func NewWindow(cfg Config) *Window {
	return &Window{
		nStep:    cfg.samples(cfg.StepMs),
		nLen:     cfg.samples(cfg.LengthMs),
		nKeep:    cfg.samples(cfg.KeepMs),
		nNewLine: cfg.NNewLine(),
		rate:     cfg.SampleRate,
		sleep:    time.Sleep,
	}
}

// Next polls src until a full step of new audio is available and returns the
// resulting chunk. Audio exceeding twice the step means inference can't keep
// up: it gets dropped. It returns false if ctx is done first.
func (w *Window) Next(ctx context.Context, src Source) ([]float32, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}

		samples := src.Get(0)

		if len(samples) > 2*w.nStep {
			w.dropped++
			slog.Warn("cannot process audio fast enough, dropping audio",
				slog.Int("samples", len(samples)), slog.Int("maxSamples", 2*w.nStep))
			src.Clear()
			w.consumed += len(samples)
			continue
		}

		if len(samples) >= w.nStep {
			src.Clear()
			w.consumed += len(samples)
			return w.Compose(samples), true
		}

		w.sleep(pollInterval)
	}
}

// Compose prepends the carried audio to samples, taking no more than fits in
// the configured length plus the keep window.
func (w *Window) Compose(samples []float32) []float32 {
	take := min(len(w.carry), max(0, w.nKeep+w.nLen-len(samples)))

	chunk := make([]float32, 0, take+len(samples))
	chunk = append(chunk, w.carry[len(w.carry)-take:]...)
	chunk = append(chunk, samples...)

	w.carry = chunk

	return chunk
}

// Advance marks chunk as processed. Every NNewLine chunks it returns true and
// the carried audio shrinks to the keep window.
func (w *Window) Advance(chunk []float32) bool {
	w.iter++
	if w.iter%w.nNewLine != 0 {
		return false
	}

	keep := min(w.nKeep, len(chunk))
	w.carry = append([]float32(nil), chunk[len(chunk)-keep:]...)

	return true
}

func (w *Window) Carry() []float32 {
	return w.carry
}

// ConsumedMs returns the duration of all the audio taken from the source,
// dropped audio included.
func (w *Window) ConsumedMs() int64 {
	if w.rate == 0 {
		return 0
	}
	return int64(w.consumed) * 1000 / int64(w.rate)
}

// Dropped returns how many times audio was dropped for backpressure.
func (w *Window) Dropped() int {
	return w.dropped
}
