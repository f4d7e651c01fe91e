package vad

import (
	"fmt"
	"log/slog"

	"github.com/streamer45/silero-vad-go/speech"
)

const (
	sileroWindowSize           = 512
	sileroThreshold            = 0.5
	sileroMinSilenceDurationMs = 150
	sileroMinSpeechDurationMs  = 200
	sileroSilencePadMs         = 32
)

type SileroConfig struct {
	ModelPath  string
	SampleRate int
}

func (c SileroConfig) IsValid() error {
	if c.ModelPath == "" {
		return fmt.Errorf("invalid ModelPath: should not be empty")
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("invalid SampleRate: should be 8000 or 16000")
	}
	return nil
}

// Silero runs the Silero ONNX model over the window. The utterance is
// considered complete when the window holds speech and the trailing probe is
// all silence.
type Silero struct {
	sd         *speech.Detector
	sampleRate int
}

func NewSilero(cfg SileroConfig) (*Silero, error) {
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	sd, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:           cfg.SampleRate,
		WindowSize:           sileroWindowSize,
		Threshold:            sileroThreshold,
		MinSilenceDurationMs: sileroMinSilenceDurationMs,
		MinSpeechDurationMs:  sileroMinSpeechDurationMs,
		SilencePadMs:         sileroSilencePadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech detector: %w", err)
	}

	return &Silero{
		sd:         sd,
		sampleRate: cfg.SampleRate,
	}, nil
}

// Detect ignores thold and freqThold, the model applies its own threshold.
func (s *Silero) Detect(samples []float32, sampleRate, probeMs int, _, _ float32) (bool, error) {
	if sampleRate != s.sampleRate {
		return false, fmt.Errorf("invalid sample rate %d: detector expects %d", sampleRate, s.sampleRate)
	}

	nProbe := probeSamples(len(samples), sampleRate, probeMs)
	if nProbe == 0 {
		return false, nil
	}

	_, segments, err := s.sd.DetectRealtime(samples)
	if err != nil {
		return false, fmt.Errorf("failed to detect speech: %w", err)
	}

	return speechEnded(segments, len(samples)-nProbe), nil
}

// speechEnded returns whether any segment holds speech and every segment
// reaching into the probe, which starts at probeStart, is silence.
func speechEnded(segments []speech.RealtimeSegment, probeStart int) bool {
	var hasSpeech bool
	for _, seg := range segments {
		if seg.Silence {
			continue
		}
		hasSpeech = true
		if seg.End > probeStart {
			return false
		}
	}
	return hasSpeech
}

func (s *Silero) Close() error {
	if err := s.sd.Destroy(); err != nil {
		slog.Error("failed to destroy speech detector", slog.String("err", err.Error()))
		return err
	}
	return nil
}
