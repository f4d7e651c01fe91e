package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/vad"
)

// Gate triggers inference in VAD mode. It probes the latest audio at most
// once every vadThrottle and, when the classifier reports a completed
// utterance, pulls a full length window.
type Gate struct {
	cfg        Config
	classifier vad.Classifier

	last  time.Time
	now   func() time.Time
	sleep func(time.Duration)
}

func NewGate(cfg Config, classifier vad.Classifier, start time.Time) *Gate {
	return &Gate{
		cfg:        cfg,
		classifier: classifier,
		last:       start,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// Next blocks until speech is detected and returns the audio to transcribe
// along with the detection time. It returns false if ctx is done first.
func (g *Gate) Next(ctx context.Context, src Source) ([]float32, time.Time, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, time.Time{}, false
		default:
		}

		now := g.now()
		if now.Sub(g.last) < vadThrottle {
			g.sleep(vadSleep)
			continue
		}

		probe := src.Get(vadWindowMs)
		detected, err := g.classifier.Detect(probe, g.cfg.SampleRate, vadProbeMs, g.cfg.VADThold, g.cfg.FreqThold)
		if err != nil {
			slog.Warn("failed to detect speech", slog.String("err", err.Error()))
		}
		if !detected {
			g.sleep(vadSleep)
			continue
		}

		// The source keeps buffering while probing, so the length window can
		// be larger than the probe.
		chunk := src.Get(g.cfg.LengthMs)
		src.Clear()
		g.last = now

		return chunk, now, true
	}
}
