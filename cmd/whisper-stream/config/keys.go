package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

type KeyKind int

const (
	KindString KeyKind = iota
	KindInt
	KindFloat
	KindBool
)

func (k KeyKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

type Key struct {
	Name string
	Env  string
	Kind KeyKind
	// Masked in listings.
	Secret bool
}

// Keys lists every persisted setting, in display order.
var Keys = []Key{
	{Name: "default_model", Env: "WHISPER_MODEL", Kind: KindString},
	{Name: "models_directory", Env: "WHISPER_MODELS_DIR", Kind: KindString},
	{Name: "engine", Env: "WHISPER_ENGINE", Kind: KindString},
	{Name: "azure_speech_key", Env: "WHISPER_AZURE_SPEECH_KEY", Kind: KindString, Secret: true},
	{Name: "azure_speech_region", Env: "WHISPER_AZURE_SPEECH_REGION", Kind: KindString},
	{Name: "capture_device", Env: "WHISPER_CAPTURE_DEVICE", Kind: KindInt},
	{Name: "step_ms", Env: "WHISPER_STEP_MS", Kind: KindInt},
	{Name: "length_ms", Env: "WHISPER_LENGTH_MS", Kind: KindInt},
	{Name: "keep_ms", Env: "WHISPER_KEEP_MS", Kind: KindInt},
	{Name: "vad_threshold", Env: "WHISPER_VAD_THRESHOLD", Kind: KindFloat},
	{Name: "freq_threshold", Env: "WHISPER_FREQ_THRESHOLD", Kind: KindFloat},
	{Name: "vad_engine", Env: "WHISPER_VAD_ENGINE", Kind: KindString},
	{Name: "vad_model", Env: "WHISPER_VAD_MODEL", Kind: KindString},
	{Name: "threads", Env: "WHISPER_THREADS", Kind: KindInt},
	{Name: "max_tokens", Env: "WHISPER_MAX_TOKENS", Kind: KindInt},
	{Name: "audio_ctx", Env: "WHISPER_AUDIO_CTX", Kind: KindInt},
	{Name: "beam_size", Env: "WHISPER_BEAM_SIZE", Kind: KindInt},
	{Name: "language", Env: "WHISPER_LANGUAGE", Kind: KindString},
	{Name: "translate", Env: "WHISPER_TRANSLATE", Kind: KindBool},
	{Name: "output_mode", Env: "WHISPER_OUTPUT_MODE", Kind: KindString},
	{Name: "keep_context", Env: "WHISPER_KEEP_CONTEXT", Kind: KindBool},
	{Name: "no_fallback", Env: "WHISPER_NO_FALLBACK", Kind: KindBool},
	{Name: "tinydiarize", Env: "WHISPER_TINYDIARIZE", Kind: KindBool},
	{Name: "no_gpu", Env: "WHISPER_NO_GPU", Kind: KindBool},
	{Name: "flash_attn", Env: "WHISPER_FLASH_ATTN", Kind: KindBool},
	{Name: "no_timestamps", Env: "WHISPER_NO_TIMESTAMPS", Kind: KindBool},
	{Name: "print_special", Env: "WHISPER_PRINT_SPECIAL", Kind: KindBool},
	{Name: "print_colors", Env: "WHISPER_PRINT_COLORS", Kind: KindBool},
	{Name: "save_audio", Env: "WHISPER_SAVE_AUDIO", Kind: KindBool},
	{Name: "output_file", Env: "WHISPER_OUTPUT_FILE", Kind: KindString},
	{Name: "auto_copy", Env: "WHISPER_AUTO_COPY", Kind: KindBool},
	{Name: "auto_copy_max_duration_hours", Env: "WHISPER_AUTO_COPY_MAX_DURATION", Kind: KindInt},
	{Name: "auto_copy_max_size_bytes", Env: "WHISPER_AUTO_COPY_MAX_SIZE", Kind: KindInt},
	{Name: "export", Env: "WHISPER_EXPORT", Kind: KindBool},
	{Name: "export_format", Env: "WHISPER_EXPORT_FORMAT", Kind: KindString},
	{Name: "export_file", Env: "WHISPER_EXPORT_FILE", Kind: KindString},
	{Name: "export_no_metadata", Env: "WHISPER_EXPORT_NO_METADATA", Kind: KindBool},
	{Name: "export_no_timestamps", Env: "WHISPER_EXPORT_NO_TIMESTAMPS", Kind: KindBool},
	{Name: "export_include_confidence", Env: "WHISPER_EXPORT_INCLUDE_CONFIDENCE", Kind: KindBool},
	{Name: "meeting", Env: "WHISPER_MEETING", Kind: KindBool},
	{Name: "meeting_prompt", Env: "WHISPER_MEETING_PROMPT", Kind: KindString},
	{Name: "meeting_name", Env: "WHISPER_MEETING_NAME", Kind: KindString},
	{Name: "meeting_organizer", Env: "WHISPER_MEETING_ORGANIZER", Kind: KindString},
	{Name: "ollama_url", Env: "WHISPER_OLLAMA_URL", Kind: KindString},
	{Name: "ollama_model", Env: "WHISPER_OLLAMA_MODEL", Kind: KindString},
	{Name: "publish_url", Env: "WHISPER_PUBLISH_URL", Kind: KindString},
	{Name: "publish_token", Env: "WHISPER_PUBLISH_TOKEN", Kind: KindString, Secret: true},
	{Name: "publish_channel", Env: "WHISPER_PUBLISH_CHANNEL", Kind: KindString},
}

var keyAliases = map[string]string{
	"model":         "default_model",
	"models_dir":    "models_directory",
	"capture":       "capture_device",
	"step":          "step_ms",
	"length":        "length_ms",
	"keep":          "keep_ms",
	"vad":           "vad_threshold",
	"freq":          "freq_threshold",
	"tokens":        "max_tokens",
	"beam":          "beam_size",
	"lang":          "language",
	"timestamps":    "no_timestamps",
	"special":       "print_special",
	"output":        "output_file",
	"format":        "export_format",
	"output_format": "export_format",
}

// LookupKey resolves a key name or alias.
func LookupKey(name string) (Key, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := keyAliases[name]; ok {
		name = canonical
	}
	for _, k := range Keys {
		if k.Name == name {
			return k, nil
		}
	}
	return Key{}, fmt.Errorf("unknown config key %q", name)
}

// KeyNames returns every accepted key name, aliases included, sorted.
func KeyNames() []string {
	names := make([]string, 0, len(Keys)+len(keyAliases))
	for _, k := range Keys {
		names = append(names, k.Name)
	}
	for alias := range keyAliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// Parse converts a raw string into the value type of the key.
func (k Key) Parse(raw string) (any, error) {
	switch k.Kind {
	case KindInt:
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: should be an integer", raw, k.Name)
		}
		return v, nil
	case KindFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: should be a number", raw, k.Name)
		}
		return v, nil
	case KindBool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return nil, fmt.Errorf("invalid value %q for %s: should be true or false", raw, k.Name)
	default:
		return raw, nil
	}
}

// Format renders a value of the key for display.
func (k Key) Format(v any) string {
	switch k.Kind {
	case KindFloat:
		if f, ok := toFloat(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 32)
		}
	case KindInt:
		if i, ok := toInt(v); ok {
			return strconv.Itoa(i)
		}
	}
	return fmt.Sprintf("%v", v)
}

func (cfg StreamConfig) ToMap() map[string]any {
	if cfg == (StreamConfig{}) {
		return nil
	}

	m := map[string]any{
		"default_model":                cfg.Model,
		"models_directory":             cfg.ModelsDir,
		"engine":                       string(cfg.EngineAPI),
		"azure_speech_key":             cfg.AzureSpeechKey,
		"azure_speech_region":          cfg.AzureSpeechRegion,
		"capture_device":               cfg.CaptureDevice,
		"step_ms":                      cfg.StepMs,
		"length_ms":                    cfg.LengthMs,
		"keep_ms":                      cfg.KeepMs,
		"vad_threshold":                float64(cfg.VADThreshold),
		"freq_threshold":               float64(cfg.FreqThreshold),
		"vad_engine":                   string(cfg.VADEngine),
		"vad_model":                    cfg.VADModelPath,
		"threads":                      cfg.Threads,
		"max_tokens":                   cfg.MaxTokens,
		"audio_ctx":                    cfg.AudioCtx,
		"beam_size":                    cfg.BeamSize,
		"language":                     cfg.Language,
		"translate":                    cfg.Translate,
		"output_mode":                  string(cfg.OutputMode),
		"keep_context":                 cfg.KeepContext,
		"no_fallback":                  cfg.NoFallback,
		"tinydiarize":                  cfg.TinyDiarize,
		"no_gpu":                       cfg.NoGPU,
		"flash_attn":                   cfg.FlashAttn,
		"no_timestamps":                cfg.NoTimestamps,
		"print_special":                cfg.PrintSpecial,
		"print_colors":                 cfg.PrintColors,
		"save_audio":                   cfg.SaveAudio,
		"output_file":                  cfg.OutputFile,
		"auto_copy":                    cfg.AutoCopy.Enabled,
		"auto_copy_max_duration_hours": cfg.AutoCopy.MaxDurationHours,
		"auto_copy_max_size_bytes":     cfg.AutoCopy.MaxSizeBytes,
		"export":                       cfg.ExportEnabled,
		"meeting":                      cfg.Meeting.Enabled,
		"meeting_prompt":               cfg.Meeting.PromptFile,
		"meeting_name":                 cfg.Meeting.Name,
		"meeting_organizer":            string(cfg.Meeting.Organizer),
		"ollama_url":                   cfg.Meeting.OllamaURL,
		"ollama_model":                 cfg.Meeting.OllamaModel,
		"publish_url":                  cfg.Publish.SiteURL,
		"publish_token":                cfg.Publish.AuthToken,
		"publish_channel":              cfg.Publish.ChannelID,
	}

	for k, v := range cfg.Export.ToMap() {
		m[k] = v
	}

	return m
}

// FromMap applies the settings found in m. Keys not present in m are left
// untouched so that layers can be applied on top of each other.
func (cfg *StreamConfig) FromMap(m map[string]any) *StreamConfig {
	setString(m, "default_model", &cfg.Model)
	setString(m, "models_directory", &cfg.ModelsDir)
	setString(m, "azure_speech_key", &cfg.AzureSpeechKey)
	setString(m, "azure_speech_region", &cfg.AzureSpeechRegion)
	setInt(m, "capture_device", &cfg.CaptureDevice)
	setInt(m, "step_ms", &cfg.StepMs)
	setInt(m, "length_ms", &cfg.LengthMs)
	setInt(m, "keep_ms", &cfg.KeepMs)
	setFloat32(m, "vad_threshold", &cfg.VADThreshold)
	setFloat32(m, "freq_threshold", &cfg.FreqThreshold)
	setString(m, "vad_model", &cfg.VADModelPath)
	setInt(m, "threads", &cfg.Threads)
	setInt(m, "max_tokens", &cfg.MaxTokens)
	setInt(m, "audio_ctx", &cfg.AudioCtx)
	setInt(m, "beam_size", &cfg.BeamSize)
	setString(m, "language", &cfg.Language)
	setBool(m, "translate", &cfg.Translate)
	setBool(m, "keep_context", &cfg.KeepContext)
	setBool(m, "no_fallback", &cfg.NoFallback)
	setBool(m, "tinydiarize", &cfg.TinyDiarize)
	setBool(m, "no_gpu", &cfg.NoGPU)
	setBool(m, "flash_attn", &cfg.FlashAttn)
	setBool(m, "no_timestamps", &cfg.NoTimestamps)
	setBool(m, "print_special", &cfg.PrintSpecial)
	setBool(m, "print_colors", &cfg.PrintColors)
	setBool(m, "save_audio", &cfg.SaveAudio)
	setString(m, "output_file", &cfg.OutputFile)
	setBool(m, "auto_copy", &cfg.AutoCopy.Enabled)
	setInt(m, "auto_copy_max_duration_hours", &cfg.AutoCopy.MaxDurationHours)
	setInt(m, "auto_copy_max_size_bytes", &cfg.AutoCopy.MaxSizeBytes)
	setBool(m, "export", &cfg.ExportEnabled)
	setBool(m, "meeting", &cfg.Meeting.Enabled)
	setString(m, "meeting_prompt", &cfg.Meeting.PromptFile)
	setString(m, "meeting_name", &cfg.Meeting.Name)
	setString(m, "ollama_url", &cfg.Meeting.OllamaURL)
	setString(m, "ollama_model", &cfg.Meeting.OllamaModel)
	setString(m, "publish_url", &cfg.Publish.SiteURL)
	setString(m, "publish_token", &cfg.Publish.AuthToken)
	setString(m, "publish_channel", &cfg.Publish.ChannelID)

	if v, ok := m["engine"].(string); ok {
		cfg.EngineAPI = EngineAPI(v)
	}
	if v, ok := m["vad_engine"].(string); ok {
		cfg.VADEngine = VADEngine(v)
	}
	if v, ok := m["output_mode"].(string); ok {
		cfg.OutputMode = transcribe.OutputMode(v)
	}
	if v, ok := m["meeting_organizer"].(string); ok {
		cfg.Meeting.Organizer = Organizer(v)
	}

	cfg.Export.FromMap(m)

	return cfg
}

// EnvMap returns the settings found in the environment, parsed by key kind.
// Values that fail to parse are reported and skipped.
func EnvMap() (map[string]any, []error) {
	m := make(map[string]any)
	var errs []error
	for _, k := range Keys {
		raw, ok := os.LookupEnv(k.Env)
		if !ok || raw == "" {
			continue
		}
		v, err := k.Parse(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k.Env, err))
			continue
		}
		m[k.Name] = v
	}
	return m, errs
}

func (cfg *StreamConfig) FromEnv() []error {
	m, errs := EnvMap()
	cfg.FromMap(m)
	return errs
}

func (cfg StreamConfig) ToEnv() []string {
	if cfg == (StreamConfig{}) {
		return nil
	}

	m := cfg.ToMap()
	vars := make([]string, 0, len(Keys))
	for _, k := range Keys {
		vars = append(vars, fmt.Sprintf("%s=%s", k.Env, k.Format(m[k.Name])))
	}

	return vars
}

func toInt(v any) (int, bool) {
	// Numbers come out as int, int64 or float64 depending on the codec that
	// decoded them.
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func setString(m map[string]any, key string, dst *string) {
	if v, ok := m[key].(string); ok {
		*dst = v
	}
}

func setBool(m map[string]any, key string, dst *bool) {
	if v, ok := m[key].(bool); ok {
		*dst = v
	}
}

func setInt(m map[string]any, key string, dst *int) {
	if v, ok := toInt(m[key]); ok {
		*dst = v
	}
}

func setFloat32(m map[string]any, key string, dst *float32) {
	if v, ok := toFloat(m[key]); ok {
		*dst = float32(v)
	}
}
