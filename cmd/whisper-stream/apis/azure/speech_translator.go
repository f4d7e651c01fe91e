package azure

import (
	"fmt"
	"log/slog"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
)

func initTranslationRecognizer(config *speech.SpeechTranslationConfig, autoDetectLang bool) (*speech.TranslationRecognizer, *speech.AutoDetectSourceLanguageConfig, *audio.AudioConfig, *audio.PushAudioInputStream, error) {
	audioStream, err := audio.CreatePushAudioInputStream()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create audio stream: %w", err)
	}

	audioConfig, err := audio.NewAudioConfigFromStreamInput(audioStream)
	if err != nil {
		audioStream.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to create audio config: %w", err)
	}

	var langConfig *speech.AutoDetectSourceLanguageConfig
	var recognizer *speech.TranslationRecognizer
	if autoDetectLang {
		langConfig, err = speech.NewAutoDetectSourceLanguageConfigFromOpenRange()
		if err != nil {
			audioConfig.Close()
			audioStream.Close()
			return nil, nil, nil, nil, fmt.Errorf("failed to create auto detect source language config: %w", err)
		}

		recognizer, err = speech.NewTranslationRecognizerFromAutoDetectSourceLangConfig(config, langConfig, audioConfig)
		if err != nil {
			langConfig.Close()
			audioConfig.Close()
			audioStream.Close()
			return nil, nil, nil, nil, fmt.Errorf("failed to create translation recognizer: %w", err)
		}
	} else {
		recognizer, err = speech.NewTranslationRecognizerFromConfig(config, audioConfig)
		if err != nil {
			audioConfig.Close()
			audioStream.Close()
			return nil, nil, nil, nil, fmt.Errorf("failed to create translation recognizer: %w", err)
		}
	}

	recognizer.SessionStarted(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("recognizer: session started", slog.String("sessionID", event.SessionID))
	})

	return recognizer, langConfig, audioConfig, audioStream, nil
}

// translate runs a translation session over samples. When toEnglish is false
// the recognized source text is returned instead of the translation.
func (s *SpeechEngine) translate(samples []float32, toEnglish bool) ([]transcribe.Segment, error) {
	config, err := speech.NewSpeechTranslationConfigFromSubscription(s.cfg.SpeechKey, s.cfg.SpeechRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech translation config: %w", err)
	}
	defer config.Close()

	locale := s.cfg.locale()
	if locale != "" {
		if err := config.SetSpeechRecognitionLanguage(locale); err != nil {
			return nil, fmt.Errorf("failed to set speech recognition language: %w", err)
		}
	}

	if err := config.AddTargetLanguage(translationTargetLanguage); err != nil {
		return nil, fmt.Errorf("failed to set speech target language: %w", err)
	}

	recognizer, langConfig, audioConfig, audioStream, err := initTranslationRecognizer(config, locale == "")
	if err != nil {
		return nil, err
	}
	defer func() {
		recognizer.Close()
		if langConfig != nil {
			langConfig.Close()
		}
		audioConfig.Close()
		audioStream.Close()
	}()

	collector := newSegmentCollector()

	recognizer.SessionStopped(func(event speech.SessionEventArgs) {
		defer event.Close()
		slog.Debug("recognizer: session stopped", slog.String("sessionID", event.SessionID))
		collector.done(nil)
	})
	recognizer.Canceled(func(event speech.TranslationRecognitionCanceledEventArgs) {
		defer event.Close()
		if event.Reason == common.Error {
			collector.done(fmt.Errorf("canceled: %s", event.ErrorDetails))
			return
		}
		collector.done(nil)
	})
	recognizer.Recognized(func(event speech.TranslationRecognitionEventArgs) {
		defer event.Close()

		if event.Result == nil || event.Result.Reason == common.NoMatch {
			return
		}

		text := event.Result.Text
		if toEnglish {
			text = event.Result.GetTranslation(translationTargetLanguage)
		}

		collector.add(text, event.Result.Offset, event.Result.Duration)
	})

	err = <-recognizer.StartContinuousRecognitionAsync()
	if err != nil {
		return nil, fmt.Errorf("failed to start recognizer: %w", err)
	}
	defer func() {
		err := <-recognizer.StopContinuousRecognitionAsync()
		if err != nil {
			slog.Error("failed to stop recognizer", slog.String("err", err.Error()))
		}
	}()

	if err := audioStream.Write(f32PCMToWAV(samples)); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	audioStream.CloseStream()

	return collector.wait(s.cfg.Timeout)
}
