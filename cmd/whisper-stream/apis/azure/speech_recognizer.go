package azure

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
)

const (
	audioSampleRate = 16000
	audioBitDepth   = 16
	audioChannels   = 1

	defaultRecognitionTimeout = 10 * time.Second

	translationTargetLanguage = "en"
)

// Short language codes mapped to the default locale the service expects.
var localeByLanguage = map[string]string{
	"ar": "ar-SA",
	"de": "de-DE",
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"hi": "hi-IN",
	"it": "it-IT",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"nl": "nl-NL",
	"pl": "pl-PL",
	"pt": "pt-BR",
	"ru": "ru-RU",
	"sv": "sv-SE",
	"tr": "tr-TR",
	"uk": "uk-UA",
	"zh": "zh-CN",
}

type SpeechEngineConfig struct {
	SpeechKey    string
	SpeechRegion string
	// Either a short code (e.g. "es"), a locale (e.g. "es-MX") or "auto".
	Language string
	// Maximum time to wait for the service to process a chunk.
	Timeout time.Duration
}

func (c SpeechEngineConfig) IsValid() error {
	if c.SpeechKey == "" {
		return fmt.Errorf("invalid SpeechKey: should not be empty")
	}

	if c.SpeechRegion == "" {
		return fmt.Errorf("invalid SpeechRegion: should not be empty")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("invalid Timeout: should not be negative")
	}

	return nil
}

func (c *SpeechEngineConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultRecognitionTimeout
	}
	if c.Language == "" {
		c.Language = "auto"
	}
}

// locale returns the recognition locale, or an empty string if the source
// language should be detected.
func (c SpeechEngineConfig) locale() string {
	if c.Language == "auto" || c.Language == "" {
		return ""
	}
	if strings.Contains(c.Language, "-") {
		return c.Language
	}
	if l, ok := localeByLanguage[c.Language]; ok {
		return l
	}
	return c.Language
}

// SpeechEngine transcribes chunks through Azure Cognitive Services. Each call
// runs a short-lived recognition session over a push stream.
type SpeechEngine struct {
	cfg SpeechEngineConfig
}

func NewSpeechEngine(cfg SpeechEngineConfig) (*SpeechEngine, error) {
	cfg.SetDefaults()

	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	return &SpeechEngine{
		cfg: cfg,
	}, nil
}

// IsMultilingual always returns true as the service supports translation for
// every recognition language.
func (s *SpeechEngine) IsMultilingual() bool {
	return true
}

func (s *SpeechEngine) Transcribe(samples []float32, opts transcribe.Options) ([]transcribe.Segment, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("samples should not be empty")
	}

	// Recognizing with auto-detection needs a translation recognizer, in which
	// case we simply ignore the translated text.
	if opts.Translate || s.cfg.locale() == "" {
		return s.translate(samples, opts.Translate)
	}

	return s.recognize(samples)
}

func (s *SpeechEngine) Destroy() error {
	return nil
}

// segmentCollector gathers the results of a recognition session until the
// service signals the end of it.
type segmentCollector struct {
	mu       sync.Mutex
	segments []transcribe.Segment
	err      error
	doneCh   chan struct{}
	doneOnce sync.Once
}

func newSegmentCollector() *segmentCollector {
	return &segmentCollector{
		doneCh: make(chan struct{}),
	}
}

func (c *segmentCollector) add(text string, offset, duration time.Duration) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = append(c.segments, transcribe.Segment{
		Text:    " " + text,
		StartTS: offset.Milliseconds(),
		EndTS:   (offset + duration).Milliseconds(),
	})
}

func (c *segmentCollector) done(err error) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.doneCh)
	})
}

func (c *segmentCollector) wait(timeout time.Duration) ([]transcribe.Segment, error) {
	select {
	case <-c.doneCh:
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for transcription")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, fmt.Errorf("transcription failed: %w", c.err)
	}

	return c.segments, nil
}

func (s *SpeechEngine) recognize(samples []float32) ([]transcribe.Segment, error) {
	cfg, err := speech.NewSpeechConfigFromSubscription(s.cfg.SpeechKey, s.cfg.SpeechRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech config: %w", err)
	}
	defer cfg.Close()

	if err := cfg.SetSpeechRecognitionLanguage(s.cfg.locale()); err != nil {
		return nil, fmt.Errorf("failed to set speech recognition language: %w", err)
	}

	stream, err := audio.CreatePushAudioInputStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create audio stream: %w", err)
	}
	defer stream.Close()

	audioConfig, err := audio.NewAudioConfigFromStreamInput(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio config: %w", err)
	}
	defer audioConfig.Close()

	speechRecognizer, err := speech.NewSpeechRecognizerFromConfig(cfg, audioConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech recognizer: %w", err)
	}
	defer speechRecognizer.Close()

	collector := newSegmentCollector()

	speechRecognizer.SessionStarted(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("session started", slog.String("sessionID", event.SessionID))
	})
	speechRecognizer.SessionStopped(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("session stopped", slog.String("sessionID", event.SessionID))
		collector.done(nil)
	})
	speechRecognizer.Canceled(func(event speech.SpeechRecognitionCanceledEventArgs) {
		defer event.Close()
		if event.Reason == common.Error {
			collector.done(fmt.Errorf("canceled: %s", event.ErrorDetails))
			return
		}
		collector.done(nil)
	})
	speechRecognizer.Recognized(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()

		if event.Result.Reason == common.NoMatch {
			slog.Debug("no match")
			return
		}

		collector.add(event.Result.Text, event.Result.Offset, event.Result.Duration)
	})

	err = <-speechRecognizer.StartContinuousRecognitionAsync()
	if err != nil {
		return nil, fmt.Errorf("failed to start recognizer: %w", err)
	}
	defer func() {
		err := <-speechRecognizer.StopContinuousRecognitionAsync()
		if err != nil {
			slog.Error("failed to stop recognizer", slog.String("err", err.Error()))
		}
	}()

	if err := stream.Write(f32PCMToWAV(samples)); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	// This is important as it flushes out any remaining audio data.
	stream.CloseStream()

	return collector.wait(s.cfg.Timeout)
}
