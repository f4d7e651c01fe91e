package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/apis/azure"
	whisper "github.com/mattermost/whisper-stream/cmd/whisper-stream/apis/whisper.cpp"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/audio"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/config"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/meeting"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/models"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/publish"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/session"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/stream"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/vad"
)

type bannerer interface {
	Banner(sessionID string) string
}

func runStream(cmd *cobra.Command, _ []string) error {
	store, err := newStore()
	if err != nil {
		return newExitError(exitCodeSetup, err)
	}
	if err := store.Load(); err != nil {
		return newExitError(exitCodeSetup, err)
	}

	cfg, err := resolveConfig(cmd.Flags(), store)
	if err != nil {
		return newExitError(exitCodeSetup, err)
	}

	if err := cfg.IsValid(); err != nil {
		return newExitError(exitCodeSetup, fmt.Errorf("failed to validate config: %w", err))
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	primary, secondary, language, err := newEngines(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, e := range []transcribe.Engine{primary, secondary} {
			if e == nil {
				continue
			}
			if err := e.Destroy(); err != nil {
				slog.Error("failed to destroy engine", slog.String("err", err.Error()))
			}
		}
	}()

	merger, err := transcribe.NewMerger(cfg.OutputMode, primary, secondary)
	if err != nil {
		return newExitError(exitCodeSetup, fmt.Errorf("failed to create merger: %w", err))
	}

	streamCfg := stream.Config{
		StepMs:      cfg.StepMs,
		LengthMs:    cfg.LengthMs,
		KeepMs:      cfg.KeepMs,
		SampleRate:  audio.SampleRate,
		VADThold:    cfg.VADThreshold,
		FreqThold:   cfg.FreqThreshold,
		KeepContext: cfg.KeepContext,
	}
	streamCfg.Normalize()

	capture, err := audio.NewCapture(audio.CaptureConfig{
		DeviceID:   cfg.CaptureDevice,
		SampleRate: audio.SampleRate,
		BufferMs:   max(30000, streamCfg.LengthMs),
	})
	if err != nil {
		return newExitError(exitCodeSetup, fmt.Errorf("failed to initialize audio capture: %w", err))
	}
	defer func() {
		if err := capture.Close(); err != nil {
			slog.Error("failed to close audio capture", slog.String("err", err.Error()))
		}
	}()

	start := time.Now()

	if cfg.SaveAudio {
		rec, err := audio.NewRecorder(audio.RecordingFilename(start), capture.SampleRate())
		if err != nil {
			return newExitError(exitCodeSetup, err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Error("failed to close recording", slog.String("err", err.Error()))
			}
		}()
		capture.SetTap(rec)
		slog.Info("saving audio", slog.String("path", rec.Path()))
	}

	var outFile io.Writer
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return newExitError(exitCodeSetup, fmt.Errorf("failed to open output file: %w", err))
		}
		defer f.Close()
		outFile = f
	}

	formatter := transcribe.Formatter{
		Mode:       cfg.OutputMode,
		Language:   language,
		Timestamps: streamCfg.Timestamps() && !cfg.NoTimestamps,
	}

	printer := stream.NewPrinter(stream.PrinterConfig{
		Formatter:    formatter,
		VAD:          streamCfg.VAD(),
		PrintColors:  cfg.PrintColors,
		PrintSpecial: cfg.PrintSpecial,
	}, os.Stdout, os.Stderr, outFile)

	var classifier vad.Classifier
	if streamCfg.VAD() {
		classifier, err = newClassifier(cfg)
		if err != nil {
			return newExitError(exitCodeSetup, fmt.Errorf("failed to create voice activity detector: %w", err))
		}
		defer func() {
			if err := classifier.Close(); err != nil {
				slog.Error("failed to close voice activity detector", slog.String("err", err.Error()))
			}
		}()
	}

	sessionID := session.NewID()
	accs, err := newAccumulators(cfg, streamCfg, formatter, printer, sessionID, start, capture.DeviceName(), language)
	if err != nil {
		return newExitError(exitCodeSetup, err)
	}
	for _, acc := range accs {
		if b, ok := acc.(bannerer); ok {
			printer.Notice(b.Banner(sessionID))
		}
	}
	sess := session.New(sessionID, start, accs...)

	ctrl, err := stream.NewController(streamCfg, capture, merger, classifier, sess, printer)
	if err != nil {
		return newExitError(exitCodeSetup, fmt.Errorf("failed to create stream controller: %w", err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go stream.WatchInterrupts(ctx, sigCh, ctrl.State, stream.TermConfirmer{In: os.Stdin, Out: os.Stderr}, cancel)

	slog.Info("starting stream",
		slog.String("device", capture.DeviceName()),
		slog.String("mode", string(cfg.OutputMode)),
		slog.Bool("vad", streamCfg.VAD()),
		slog.Int("step_ms", streamCfg.StepMs),
		slog.Int("length_ms", streamCfg.LengthMs),
		slog.Int("keep_ms", streamCfg.KeepMs))
	printer.Notice("[Start speaking]")

	if err := ctrl.Run(ctx); err != nil {
		if errors.Is(err, stream.ErrInference) {
			return newExitError(exitCodeInference, err)
		}
		return newExitError(exitCodeSetup, err)
	}

	return nil
}

// newEngines creates the inference engines. A second, independent engine is
// only created in bilingual mode. It also returns the effective decoding
// language.
func newEngines(ctx context.Context, cfg config.StreamConfig) (transcribe.Engine, transcribe.Engine, string, error) {
	if cfg.EngineAPI == config.EngineAPIAzure {
		azCfg := azure.SpeechEngineConfig{
			SpeechKey:    cfg.AzureSpeechKey,
			SpeechRegion: cfg.AzureSpeechRegion,
			Language:     cfg.Language,
		}
		primary, err := azure.NewSpeechEngine(azCfg)
		if err != nil {
			return nil, nil, "", newExitError(exitCodeEngineInit, fmt.Errorf("failed to create speech engine: %w", err))
		}
		if cfg.OutputMode != transcribe.OutputModeBilingual {
			return primary, nil, cfg.Language, nil
		}
		secondary, err := azure.NewSpeechEngine(azCfg)
		if err != nil {
			return nil, nil, "", newExitError(exitCodeEngineInit, fmt.Errorf("failed to create translation engine: %w", err))
		}
		return primary, secondary, cfg.Language, nil
	}

	if !whisper.IsKnownLanguage(cfg.Language) {
		return nil, nil, "", newExitError(exitCodeSetup, fmt.Errorf("invalid Language %q: unknown language", cfg.Language))
	}

	mgr := models.NewManager(models.Config{Dir: cfg.ModelsDir})
	mgr.SetProgress(func(written, total int64) {
		slog.Info("downloading model", slog.String("written", formatSize(written)), slog.String("total", formatSize(total)))
	})
	modelPath, err := mgr.Resolve(ctx, cfg.Model)
	if err != nil {
		return nil, nil, "", newExitError(exitCodeSetup, fmt.Errorf("failed to resolve model: %w", err))
	}

	if cfg.MaxTokens != 0 {
		slog.Debug("max tokens is not used while streaming", slog.Int("max_tokens", cfg.MaxTokens))
	}

	wCfg := whisper.Config{
		ModelFile:     modelPath,
		NumThreads:    cfg.Threads,
		AudioContext:  cfg.AudioCtx,
		Language:      cfg.Language,
		SingleSegment: cfg.StepMs > 0,
		NoTimestamps:  cfg.StepMs > 0,
		BeamSize:      cfg.BeamSize,
		NoFallback:    cfg.NoFallback,
		TinyDiarize:   cfg.TinyDiarize,
		UseGPU:        !cfg.NoGPU,
		FlashAttn:     cfg.FlashAttn,
	}

	primary, err := whisper.NewContext(wCfg)
	if err != nil {
		return nil, nil, "", newExitError(exitCodeEngineInit, fmt.Errorf("failed to create whisper context: %w", err))
	}

	if cfg.OutputMode != transcribe.OutputModeBilingual || !primary.IsMultilingual() {
		return primary, nil, primary.Language(), nil
	}

	secondary, err := whisper.NewContext(wCfg)
	if err != nil {
		_ = primary.Destroy()
		return nil, nil, "", newExitError(exitCodeEngineInit, fmt.Errorf("failed to create translation whisper context: %w", err))
	}

	return primary, secondary, primary.Language(), nil
}

func newClassifier(cfg config.StreamConfig) (vad.Classifier, error) {
	switch cfg.VADEngine {
	case config.VADEngineWebRTC:
		return vad.NewWebRTC(vad.WebRTCModeDefault)
	case config.VADEngineSilero:
		return vad.NewSilero(vad.SileroConfig{
			ModelPath:  cfg.VADModelPath,
			SampleRate: audio.SampleRate,
		})
	default:
		return vad.NewEnergy(), nil
	}
}

func newOrganizer(opts config.MeetingOptions) meeting.Organizer {
	if opts.Organizer == config.OrganizerOllama {
		return meeting.NewOllama(meeting.OllamaConfig{
			URL:   opts.OllamaURL,
			Model: opts.OllamaModel,
		})
	}
	return meeting.Claude{}
}

// newAccumulators returns the enabled accumulators in finalization order:
// auto-copy, export, meeting.
func newAccumulators(cfg config.StreamConfig, streamCfg stream.Config, formatter transcribe.Formatter, notify session.Notifier,
	sessionID string, start time.Time, device, language string) ([]session.Accumulator, error) {
	var accs []session.Accumulator

	if cfg.AutoCopy.Enabled {
		accs = append(accs, session.NewAutoCopy(session.AutoCopyConfig{
			MaxDurationHours: cfg.AutoCopy.MaxDurationHours,
			MaxSizeBytes:     cfg.AutoCopy.MaxSizeBytes,
		}, formatter, session.SystemClipboard{}, notify, start))
	}

	if cfg.ExportEnabled {
		engine := string(cfg.EngineAPI)
		exp := session.NewExport(session.ExportConfig{
			Options: cfg.Export,
			Dir:     ".",
			Metadata: transcribe.Metadata{
				SessionID:    sessionID,
				StartTime:    start,
				Model:        cfg.Model,
				Language:     language,
				Device:       device,
				Engine:       engine,
				Threads:      cfg.Threads,
				VADThreshold: cfg.VADThreshold,
				StepMs:       streamCfg.StepMs,
				LengthMs:     streamCfg.LengthMs,
				Version:      Version,
			},
		}, formatter, notify)
		if !cfg.Publish.IsEmpty() {
			exp.SetPublisher(publish.New(publish.Config{
				SiteURL:   cfg.Publish.SiteURL,
				AuthToken: cfg.Publish.AuthToken,
				ChannelID: cfg.Publish.ChannelID,
			}))
		}
		accs = append(accs, exp)
	}

	if cfg.Meeting.Enabled {
		var prompt string
		if cfg.Meeting.PromptFile != "" {
			data, err := os.ReadFile(cfg.Meeting.PromptFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read meeting prompt: %w", err)
			}
			prompt = string(data)
		}
		accs = append(accs, session.NewMeeting(session.MeetingConfig{
			SessionID: sessionID,
			Prompt:    prompt,
			Name:      cfg.Meeting.Name,
			Dir:       ".",
		}, formatter, newOrganizer(cfg.Meeting), notify))
	}

	return accs, nil
}
