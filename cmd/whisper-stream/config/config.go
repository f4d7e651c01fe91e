package config

import (
	"fmt"
	"net/url"
	"runtime"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

const (
	// defaults
	ModelDefault         = "base.en"
	StepMsDefault        = 3000
	LengthMsDefault      = 10000
	KeepMsDefault        = 200
	CaptureDeviceDefault = -1
	VADThresholdDefault  = 0.6
	FreqThresholdDefault = 100.0
	MaxTokensDefault     = 32
	BeamSizeDefault      = -1
	LanguageDefault      = "en"
	OutputModeDefault    = transcribe.OutputModeOriginal
	EngineAPIDefault     = EngineAPIWhisperCPP
	VADEngineDefault     = VADEngineEnergy
	OrganizerDefault     = OrganizerClaude

	AutoCopyMaxDurationHoursDefault = 2
	AutoCopyMaxSizeBytesDefault     = 1024 * 1024

	OllamaURLDefault   = "http://localhost:11434"
	OllamaModelDefault = "mistral:7b"

	MaxThreads = 64
)

type EngineAPI string

const (
	EngineAPIWhisperCPP EngineAPI = "whisper.cpp"
	EngineAPIAzure      EngineAPI = "azure"
)

func (a EngineAPI) IsValid() bool {
	switch a {
	case EngineAPIWhisperCPP, EngineAPIAzure:
		return true
	default:
		return false
	}
}

type VADEngine string

const (
	VADEngineEnergy VADEngine = "energy"
	VADEngineWebRTC VADEngine = "webrtc"
	VADEngineSilero VADEngine = "silero"
)

func (e VADEngine) IsValid() bool {
	switch e {
	case VADEngineEnergy, VADEngineWebRTC, VADEngineSilero:
		return true
	default:
		return false
	}
}

type Organizer string

const (
	OrganizerClaude Organizer = "claude"
	OrganizerOllama Organizer = "ollama"
)

func (o Organizer) IsValid() bool {
	switch o {
	case OrganizerClaude, OrganizerOllama:
		return true
	default:
		return false
	}
}

type AutoCopyOptions struct {
	Enabled          bool
	MaxDurationHours int
	MaxSizeBytes     int
}

func (o AutoCopyOptions) IsValid() error {
	if o.MaxDurationHours <= 0 {
		return fmt.Errorf("invalid MaxDurationHours: should be greater than 0")
	}
	if o.MaxSizeBytes <= 0 {
		return fmt.Errorf("invalid MaxSizeBytes: should be greater than 0")
	}
	return nil
}

func (o AutoCopyOptions) IsEmpty() bool {
	return o == AutoCopyOptions{}
}

func (o *AutoCopyOptions) SetDefaults() {
	if o.MaxDurationHours == 0 {
		o.MaxDurationHours = AutoCopyMaxDurationHoursDefault
	}
	if o.MaxSizeBytes == 0 {
		o.MaxSizeBytes = AutoCopyMaxSizeBytesDefault
	}
}

type MeetingOptions struct {
	Enabled bool
	// Path to a custom organizer prompt.
	PromptFile string
	// Output file name. Defaults to meeting-YYYY-MM-DD.md.
	Name        string
	Organizer   Organizer
	OllamaURL   string
	OllamaModel string
}

func (o MeetingOptions) IsValid() error {
	if !o.Organizer.IsValid() {
		return fmt.Errorf("invalid Organizer %q", o.Organizer)
	}
	if o.Organizer == OrganizerOllama {
		if _, err := url.ParseRequestURI(o.OllamaURL); err != nil {
			return fmt.Errorf("invalid OllamaURL: %w", err)
		}
		if o.OllamaModel == "" {
			return fmt.Errorf("invalid OllamaModel: should not be empty")
		}
	}
	return nil
}

func (o MeetingOptions) IsEmpty() bool {
	return o == MeetingOptions{}
}

func (o *MeetingOptions) SetDefaults() {
	if o.Organizer == "" {
		o.Organizer = OrganizerDefault
	}
	if o.OllamaURL == "" {
		o.OllamaURL = OllamaURLDefault
	}
	if o.OllamaModel == "" {
		o.OllamaModel = OllamaModelDefault
	}
}

type PublishOptions struct {
	SiteURL   string
	AuthToken string
	ChannelID string
}

func (o PublishOptions) IsEmpty() bool {
	return o == PublishOptions{}
}

func (o PublishOptions) IsValid() error {
	u, err := url.Parse(o.SiteURL)
	if err != nil {
		return fmt.Errorf("invalid SiteURL: %w", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid SiteURL: invalid scheme %q", u.Scheme)
	}
	if o.AuthToken == "" {
		return fmt.Errorf("invalid AuthToken: should not be empty")
	}
	if o.ChannelID == "" {
		return fmt.Errorf("invalid ChannelID: should not be empty")
	}
	return nil
}

type StreamConfig struct {
	// model config
	Model       string
	ModelsDir   string
	EngineAPI   EngineAPI
	Threads     int
	MaxTokens   int
	AudioCtx    int
	BeamSize    int
	Language    string
	NoFallback  bool
	TinyDiarize bool
	NoGPU       bool
	FlashAttn   bool

	// Azure speech credentials, only needed for EngineAPIAzure.
	AzureSpeechKey    string
	AzureSpeechRegion string

	// stream config
	CaptureDevice int
	StepMs        int
	LengthMs      int
	KeepMs        int
	VADThreshold  float32
	FreqThreshold float32
	VADEngine     VADEngine
	// Path to the silero ONNX model, only needed for VADEngineSilero.
	VADModelPath string
	KeepContext  bool
	OutputMode   transcribe.OutputMode
	// Legacy flag, normalized to OutputModeEnglish.
	Translate bool

	// console output config
	NoTimestamps bool
	PrintSpecial bool
	PrintColors  bool
	OutputFile   string
	SaveAudio    bool

	// session config
	AutoCopy      AutoCopyOptions
	ExportEnabled bool
	Export        transcribe.ExportOptions
	Meeting       MeetingOptions
	Publish       PublishOptions
}

func (cfg StreamConfig) IsValid() error {
	if cfg == (StreamConfig{}) {
		return fmt.Errorf("config cannot be empty")
	}

	if cfg.Model == "" {
		return fmt.Errorf("invalid Model: should not be empty")
	}

	if !cfg.EngineAPI.IsValid() {
		return fmt.Errorf("invalid EngineAPI %q", cfg.EngineAPI)
	}

	if cfg.EngineAPI == EngineAPIAzure {
		if cfg.AzureSpeechKey == "" {
			return fmt.Errorf("invalid AzureSpeechKey: should not be empty")
		}
		if cfg.AzureSpeechRegion == "" {
			return fmt.Errorf("invalid AzureSpeechRegion: should not be empty")
		}
	}

	if cfg.Threads < 1 || cfg.Threads > MaxThreads {
		return fmt.Errorf("invalid Threads: should be in the range [1, %d]", MaxThreads)
	}

	if cfg.MaxTokens < 0 {
		return fmt.Errorf("invalid MaxTokens: should not be negative")
	}

	if cfg.AudioCtx < 0 {
		return fmt.Errorf("invalid AudioCtx: should not be negative")
	}

	if cfg.Language == "" {
		return fmt.Errorf("invalid Language: should not be empty")
	}

	if cfg.CaptureDevice < -1 {
		return fmt.Errorf("invalid CaptureDevice: should be -1 (default) or a device index")
	}

	if cfg.StepMs < 0 {
		return fmt.Errorf("invalid StepMs: should not be negative")
	}

	if cfg.LengthMs < 0 {
		return fmt.Errorf("invalid LengthMs: should not be negative")
	}

	if cfg.KeepMs < 0 {
		return fmt.Errorf("invalid KeepMs: should not be negative")
	}

	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		return fmt.Errorf("invalid VADThreshold: should be in the range [0, 1]")
	}

	if cfg.FreqThreshold < 0 {
		return fmt.Errorf("invalid FreqThreshold: should not be negative")
	}

	if !cfg.VADEngine.IsValid() {
		return fmt.Errorf("invalid VADEngine %q", cfg.VADEngine)
	}

	if cfg.VADEngine == VADEngineSilero && cfg.VADModelPath == "" {
		return fmt.Errorf("invalid VADModelPath: should not be empty")
	}

	if !cfg.OutputMode.IsValid() {
		return fmt.Errorf("invalid OutputMode %q: should be one of original, english, bilingual", cfg.OutputMode)
	}

	if err := cfg.AutoCopy.IsValid(); err != nil {
		return err
	}

	if err := cfg.Export.IsValid(); err != nil {
		return err
	}

	if err := cfg.Meeting.IsValid(); err != nil {
		return err
	}

	if !cfg.Publish.IsEmpty() {
		if err := cfg.Publish.IsValid(); err != nil {
			return err
		}
	}

	return nil
}

func (cfg *StreamConfig) SetDefaults() {
	if cfg.Model == "" {
		cfg.Model = ModelDefault
	}

	if cfg.EngineAPI == "" {
		cfg.EngineAPI = EngineAPIDefault
	}

	if cfg.Threads == 0 {
		cfg.Threads = min(4, runtime.NumCPU())
	}

	if cfg.Language == "" {
		cfg.Language = LanguageDefault
	}

	if cfg.VADEngine == "" {
		cfg.VADEngine = VADEngineDefault
	}

	if cfg.OutputMode == "" {
		cfg.OutputMode = OutputModeDefault
	}

	cfg.AutoCopy.SetDefaults()
	cfg.Export.SetDefaults()
	cfg.Meeting.SetDefaults()
}

// Default returns the configuration used when nothing is set by files,
// environment or flags.
func Default() StreamConfig {
	cfg := StreamConfig{
		CaptureDevice: CaptureDeviceDefault,
		StepMs:        StepMsDefault,
		LengthMs:      LengthMsDefault,
		KeepMs:        KeepMsDefault,
		VADThreshold:  VADThresholdDefault,
		FreqThreshold: FreqThresholdDefault,
		MaxTokens:     MaxTokensDefault,
		BeamSize:      BeamSizeDefault,
	}
	cfg.SetDefaults()
	return cfg
}

// NormalizeOutputMode maps the legacy translate flag to the english output
// mode. It returns true if the mode was changed.
func (cfg *StreamConfig) NormalizeOutputMode() bool {
	if cfg.Translate && cfg.OutputMode == transcribe.OutputModeOriginal {
		cfg.OutputMode = transcribe.OutputModeEnglish
		return true
	}
	return false
}
