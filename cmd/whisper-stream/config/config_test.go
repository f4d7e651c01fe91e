package config

import (
	"testing"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"

	"github.com/stretchr/testify/require"
)

func TestConfigIsValid(t *testing.T) {
	tcs := []struct {
		name          string
		cfg           func() StreamConfig
		expectedError string
	}{
		{
			name:          "empty config",
			cfg:           func() StreamConfig { return StreamConfig{} },
			expectedError: "config cannot be empty",
		},
		{
			name: "missing model",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.Model = ""
				return cfg
			},
			expectedError: "invalid Model: should not be empty",
		},
		{
			name: "invalid engine",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.EngineAPI = "openai"
				return cfg
			},
			expectedError: `invalid EngineAPI "openai"`,
		},
		{
			name: "azure without key",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.EngineAPI = EngineAPIAzure
				return cfg
			},
			expectedError: "invalid AzureSpeechKey: should not be empty",
		},
		{
			name: "too many threads",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.Threads = 65
				return cfg
			},
			expectedError: "invalid Threads: should be in the range [1, 64]",
		},
		{
			name: "negative step",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.StepMs = -1
				return cfg
			},
			expectedError: "invalid StepMs: should not be negative",
		},
		{
			name: "vad threshold out of range",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.VADThreshold = 1.5
				return cfg
			},
			expectedError: "invalid VADThreshold: should be in the range [0, 1]",
		},
		{
			name: "silero without model",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.VADEngine = VADEngineSilero
				return cfg
			},
			expectedError: "invalid VADModelPath: should not be empty",
		},
		{
			name: "invalid output mode",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.OutputMode = "both"
				return cfg
			},
			expectedError: `invalid OutputMode "both": should be one of original, english, bilingual`,
		},
		{
			name: "invalid auto-copy cap",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.AutoCopy.MaxSizeBytes = -1
				return cfg
			},
			expectedError: "invalid MaxSizeBytes: should be greater than 0",
		},
		{
			name: "invalid export format",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.Export.Format = "pdf"
				return cfg
			},
			expectedError: `invalid Format "pdf": should be one of txt, md, json, csv, srt, vtt, xml`,
		},
		{
			name: "invalid organizer",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.Meeting.Organizer = "gpt"
				return cfg
			},
			expectedError: `invalid Organizer "gpt"`,
		},
		{
			name: "invalid publish url",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.Publish.SiteURL = "ftp://localhost"
				return cfg
			},
			expectedError: `invalid SiteURL: invalid scheme "ftp"`,
		},
		{
			name: "missing publish token",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.Publish.SiteURL = "http://localhost:8065"
				return cfg
			},
			expectedError: "invalid AuthToken: should not be empty",
		},
		{
			name: "valid defaults",
			cfg:  Default,
		},
		{
			name: "valid vad mode",
			cfg: func() StreamConfig {
				cfg := Default()
				cfg.StepMs = 0
				cfg.VADEngine = VADEngineWebRTC
				cfg.OutputMode = transcribe.OutputModeBilingual
				return cfg
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg().IsValid()
			if tc.expectedError == "" {
				require.NoError(t, err)
			} else {
				require.EqualError(t, err, tc.expectedError)
			}
		})
	}
}

func TestConfigSetDefaults(t *testing.T) {
	t.Run("empty input config", func(t *testing.T) {
		var cfg StreamConfig
		cfg.SetDefaults()
		require.Equal(t, ModelDefault, cfg.Model)
		require.Equal(t, EngineAPIWhisperCPP, cfg.EngineAPI)
		require.Equal(t, VADEngineEnergy, cfg.VADEngine)
		require.Equal(t, transcribe.OutputModeOriginal, cfg.OutputMode)
		require.Equal(t, LanguageDefault, cfg.Language)
		require.GreaterOrEqual(t, cfg.Threads, 1)
		require.LessOrEqual(t, cfg.Threads, 4)
		require.Equal(t, AutoCopyOptions{MaxDurationHours: 2, MaxSizeBytes: 1024 * 1024}, cfg.AutoCopy)
		require.Equal(t, transcribe.ExportFormatTXT, cfg.Export.Format)
		require.Equal(t, OrganizerClaude, cfg.Meeting.Organizer)
		require.Equal(t, OllamaURLDefault, cfg.Meeting.OllamaURL)
	})

	t.Run("no overrides", func(t *testing.T) {
		cfg := StreamConfig{
			Model:     "small",
			Threads:   2,
			Language:  "it",
			EngineAPI: EngineAPIAzure,
		}
		cfg.SetDefaults()
		require.Equal(t, "small", cfg.Model)
		require.Equal(t, 2, cfg.Threads)
		require.Equal(t, "it", cfg.Language)
		require.Equal(t, EngineAPIAzure, cfg.EngineAPI)
	})

	t.Run("default", func(t *testing.T) {
		cfg := Default()
		require.Equal(t, 3000, cfg.StepMs)
		require.Equal(t, 10000, cfg.LengthMs)
		require.Equal(t, 200, cfg.KeepMs)
		require.Equal(t, -1, cfg.CaptureDevice)
		require.Equal(t, float32(0.6), cfg.VADThreshold)
		require.Equal(t, float32(100), cfg.FreqThreshold)
		require.Equal(t, 32, cfg.MaxTokens)
		require.Equal(t, -1, cfg.BeamSize)
	})
}

func TestNormalizeOutputMode(t *testing.T) {
	cfg := Default()
	require.False(t, cfg.NormalizeOutputMode())

	cfg.Translate = true
	require.True(t, cfg.NormalizeOutputMode())
	require.Equal(t, transcribe.OutputModeEnglish, cfg.OutputMode)

	cfg = Default()
	cfg.Translate = true
	cfg.OutputMode = transcribe.OutputModeBilingual
	require.False(t, cfg.NormalizeOutputMode())
	require.Equal(t, transcribe.OutputModeBilingual, cfg.OutputMode)
}

func TestConfigMap(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		require.Nil(t, StreamConfig{}.ToMap())
		require.Nil(t, StreamConfig{}.ToEnv())
	})

	t.Run("round trip", func(t *testing.T) {
		cfg := Default()
		cfg.Model = "small"
		cfg.StepMs = 0
		cfg.VADThreshold = 0.5
		cfg.OutputMode = transcribe.OutputModeBilingual
		cfg.AutoCopy.Enabled = true
		cfg.ExportEnabled = true
		cfg.Export.Format = transcribe.ExportFormatSRT
		cfg.Meeting.Organizer = OrganizerOllama
		cfg.Publish.ChannelID = "channel"

		var out StreamConfig
		out.FromMap(cfg.ToMap())
		require.Equal(t, cfg, out)
	})

	t.Run("partial", func(t *testing.T) {
		cfg := Default()
		cfg.FromMap(map[string]any{
			"step_ms":        float64(0),
			"length_ms":      int64(8000),
			"vad_threshold":  0.7,
			"translate":      true,
			"export_format":  "json",
			"unknown":        "ignored",
			"threads":        "not a number",
			"freq_threshold": 200,
		})
		require.Equal(t, 0, cfg.StepMs)
		require.Equal(t, 8000, cfg.LengthMs)
		require.Equal(t, float32(0.7), cfg.VADThreshold)
		require.Equal(t, float32(200), cfg.FreqThreshold)
		require.True(t, cfg.Translate)
		require.Equal(t, transcribe.ExportFormatJSON, cfg.Export.Format)
		require.Equal(t, Default().Threads, cfg.Threads)
		require.Equal(t, KeepMsDefault, cfg.KeepMs)
	})
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("WHISPER_MODEL", "tiny.en")
	t.Setenv("WHISPER_STEP_MS", "0")
	t.Setenv("WHISPER_VAD_THRESHOLD", "0.45")
	t.Setenv("WHISPER_TRANSLATE", "yes")
	t.Setenv("WHISPER_THREADS", "many")
	t.Setenv("WHISPER_EXPORT_FORMAT", "vtt")

	cfg := Default()
	errs := cfg.FromEnv()
	require.Len(t, errs, 1)
	require.EqualError(t, errs[0], `WHISPER_THREADS: invalid value "many" for threads: should be an integer`)

	require.Equal(t, "tiny.en", cfg.Model)
	require.Equal(t, 0, cfg.StepMs)
	require.Equal(t, float32(0.45), cfg.VADThreshold)
	require.True(t, cfg.Translate)
	require.Equal(t, transcribe.ExportFormatVTT, cfg.Export.Format)
	require.Equal(t, Default().Threads, cfg.Threads)
}

func TestConfigToEnv(t *testing.T) {
	cfg := Default()
	vars := cfg.ToEnv()
	require.Len(t, vars, len(Keys))
	require.Contains(t, vars, "WHISPER_MODEL=base.en")
	require.Contains(t, vars, "WHISPER_STEP_MS=3000")
	require.Contains(t, vars, "WHISPER_VAD_THRESHOLD=0.6")
	require.Contains(t, vars, "WHISPER_EXPORT_FORMAT=txt")
	require.Contains(t, vars, "WHISPER_AUTO_COPY=false")
}
