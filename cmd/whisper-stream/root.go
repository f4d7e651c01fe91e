package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/config"
)

// Flags carrying this annotation override the config key it names.
const configKeyAnnotation = "config_key"

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "whisper-stream",
		Short: "Real-time speech transcription from the microphone",
		Long: `whisper-stream transcribes microphone audio in real time with whisper.

Examples:
  whisper-stream -m base.en                     # continuous transcription
  whisper-stream -m base.en --step 0 --length 30000   # transcribe when you stop speaking
  whisper-stream -m small -l es --output-mode bilingual
  whisper-stream --export --export-format srt
  whisper-stream --meeting --name standup.md`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				logLevel.Set(slog.LevelDebug)
			}
		},
		RunE: runStream,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	addStreamFlags(cmd.Flags())

	cmd.AddCommand(
		newConfigCmd(),
		newModelsCmd(),
		newDevicesCmd(),
		newVersionCmd(),
	)

	return cmd
}

func addStreamFlags(fs *pflag.FlagSet) {
	def := config.Default()

	bind := func(name, key string) {
		if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
			panic(err)
		}
	}

	// model
	fs.StringP("model", "m", def.Model, "model name or path to a ggml model file")
	bind("model", "default_model")
	fs.String("models-dir", "", "directory holding downloaded models (default ~/.whisper-stream/models)")
	bind("models-dir", "models_directory")
	fs.String("engine", string(def.EngineAPI), "inference engine: whisper.cpp or azure")
	bind("engine", "engine")
	fs.String("azure-speech-key", "", "Azure speech service key")
	bind("azure-speech-key", "azure_speech_key")
	fs.String("azure-speech-region", "", "Azure speech service region")
	bind("azure-speech-region", "azure_speech_region")
	fs.IntP("threads", "t", def.Threads, "number of threads used for inference")
	bind("threads", "threads")
	fs.Int("max-tokens", def.MaxTokens, "maximum number of tokens per audio chunk")
	bind("max-tokens", "max_tokens")
	fs.Int("audio-ctx", def.AudioCtx, "audio context size, 0 for all")
	bind("audio-ctx", "audio_ctx")
	fs.Int("beam-size", def.BeamSize, "beam size for beam search, greedy sampling when lower than 2")
	bind("beam-size", "beam_size")
	fs.StringP("language", "l", def.Language, "spoken language, auto to detect")
	bind("language", "language")
	fs.Bool("no-fallback", false, "do not use temperature fallback while decoding")
	bind("no-fallback", "no_fallback")
	fs.Bool("tinydiarize", false, "enable speaker turn detection (requires a tdrz model)")
	bind("tinydiarize", "tinydiarize")
	fs.Bool("no-gpu", false, "disable GPU inference")
	bind("no-gpu", "no_gpu")
	fs.Bool("flash-attn", false, "enable flash attention")
	bind("flash-attn", "flash_attn")

	// stream
	fs.IntP("capture", "c", def.CaptureDevice, "capture device index, -1 for the default device")
	bind("capture", "capture_device")
	fs.Int("step", def.StepMs, "audio step size in milliseconds, 0 enables VAD mode")
	bind("step", "step_ms")
	fs.Int("length", def.LengthMs, "audio length in milliseconds")
	bind("length", "length_ms")
	fs.Int("keep", def.KeepMs, "audio kept from the previous step in milliseconds")
	bind("keep", "keep_ms")
	fs.Float32("vad-thold", def.VADThreshold, "voice activity detection threshold")
	bind("vad-thold", "vad_threshold")
	fs.Float32("freq-thold", def.FreqThreshold, "high-pass frequency cutoff")
	bind("freq-thold", "freq_threshold")
	fs.String("vad-engine", string(def.VADEngine), "voice activity detector: energy, webrtc or silero")
	bind("vad-engine", "vad_engine")
	fs.String("vad-model", "", "path to the silero VAD ONNX model")
	bind("vad-model", "vad_model")
	fs.Bool("keep-context", false, "keep context between audio chunks")
	bind("keep-context", "keep_context")
	fs.String("output-mode", string(def.OutputMode), "output mode: original, english or bilingual")
	bind("output-mode", "output_mode")
	fs.Bool("translate", false, "translate to English (same as --output-mode english)")
	bind("translate", "translate")

	// console output
	fs.Bool("no-timestamps", false, "do not print timestamps")
	bind("no-timestamps", "no_timestamps")
	fs.Bool("print-special", false, "print special tokens")
	bind("print-special", "print_special")
	fs.Bool("print-colors", false, "color tokens by confidence")
	bind("print-colors", "print_colors")
	fs.StringP("file", "f", "", "also write the transcript to this file")
	bind("file", "output_file")
	fs.Bool("save-audio", false, "save the captured audio to a WAV file")
	bind("save-audio", "save_audio")

	// session
	fs.Bool("auto-copy", false, "copy the transcript to the clipboard when the stream ends")
	bind("auto-copy", "auto_copy")
	fs.Int("auto-copy-max-duration", def.AutoCopy.MaxDurationHours, "skip auto-copy for sessions longer than this many hours")
	bind("auto-copy-max-duration", "auto_copy_max_duration_hours")
	fs.Int("auto-copy-max-size", def.AutoCopy.MaxSizeBytes, "skip auto-copy for transcripts larger than this many bytes")
	bind("auto-copy-max-size", "auto_copy_max_size_bytes")
	fs.Bool("export", false, "export the transcript when the stream ends")
	bind("export", "export")
	fs.String("export-format", string(def.Export.Format), "export format: txt, md, json, csv, srt, vtt or xml")
	bind("export-format", "export_format")
	fs.String("export-file", "", "export file path, generated from the session when empty")
	bind("export-file", "export_file")
	fs.Bool("export-no-metadata", false, "leave session metadata out of the export")
	bind("export-no-metadata", "export_no_metadata")
	fs.Bool("export-no-timestamps", false, "leave timestamps out of the export")
	bind("export-no-timestamps", "export_no_timestamps")
	fs.Bool("export-include-confidence", false, "include segment confidence in the export")
	bind("export-include-confidence", "export_include_confidence")
	fs.Bool("meeting", false, "organize the transcript into meeting notes when the stream ends")
	bind("meeting", "meeting")
	fs.String("prompt", "", "file with a custom meeting organizer prompt")
	bind("prompt", "meeting_prompt")
	fs.String("name", "", "meeting notes file name (default meeting-YYYY-MM-DD.md)")
	bind("name", "meeting_name")
	fs.String("organizer", string(def.Meeting.Organizer), "meeting organizer: claude or ollama")
	bind("organizer", "meeting_organizer")
	fs.String("ollama-url", def.Meeting.OllamaURL, "Ollama server URL")
	bind("ollama-url", "ollama_url")
	fs.String("ollama-model", def.Meeting.OllamaModel, "Ollama model used to organize meetings")
	bind("ollama-model", "ollama_model")
	fs.String("publish-url", "", "Mattermost site URL to publish exports to")
	bind("publish-url", "publish_url")
	fs.String("publish-token", "", "Mattermost access token")
	bind("publish-token", "publish_token")
	fs.String("publish-channel", "", "Mattermost channel ID to publish exports to")
	bind("publish-channel", "publish_channel")
}

func newStore() (*config.Store, error) {
	userDir, err := config.DefaultUserDir()
	if err != nil {
		return nil, err
	}
	return config.NewStore(userDir, "."), nil
}

// resolveConfig layers the explicitly set flags on top of the store.
func resolveConfig(fs *pflag.FlagSet, store *config.Store) (config.StreamConfig, error) {
	cfg := store.Resolve()

	m := make(map[string]any)
	var parseErr error
	fs.Visit(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || parseErr != nil {
			return
		}
		k, err := config.LookupKey(keys[0])
		if err != nil {
			parseErr = err
			return
		}
		v, err := k.Parse(f.Value.String())
		if err != nil {
			parseErr = fmt.Errorf("invalid --%s: %w", f.Name, err)
			return
		}
		m[k.Name] = v
	})
	if parseErr != nil {
		return config.StreamConfig{}, parseErr
	}
	cfg.FromMap(m)

	if cfg.NormalizeOutputMode() {
		slog.Info("--translate is deprecated, using --output-mode english")
	}

	if cfg.ModelsDir == "" {
		userDir, err := config.DefaultUserDir()
		if err != nil {
			return config.StreamConfig{}, err
		}
		cfg.ModelsDir = filepath.Join(userDir, "models")
	}

	return cfg, nil
}
