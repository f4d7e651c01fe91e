package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/config"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/stream"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

func TestExitCode(t *testing.T) {
	tcs := []struct {
		name string
		err  error
		code int
	}{
		{
			name: "success",
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			code: exitCodeSetup,
		},
		{
			name: "engine init",
			err:  newExitError(exitCodeEngineInit, fmt.Errorf("failed to load model file")),
			code: exitCodeEngineInit,
		},
		{
			name: "wrapped inference",
			err:  fmt.Errorf("stream: %w", newExitError(exitCodeInference, fmt.Errorf("%w: failed", stream.ErrInference))),
			code: exitCodeInference,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.code, exitCode(tc.err))
		})
	}

	err := newExitError(exitCodeInference, fmt.Errorf("%w: failed", stream.ErrInference))
	require.ErrorIs(t, err, stream.ErrInference)
	require.EqualError(t, err, "inference failed: failed")
}

func TestResolveConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("WHISPER_LENGTH_MS", "5000")
	t.Setenv("WHISPER_KEEP_MS", "100")
	t.Setenv("WHISPER_THREADS", "3")

	store := config.NewStore(t.TempDir(), t.TempDir())
	require.NoError(t, store.Load())

	var logs bytes.Buffer
	defaultLogger := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	defer slog.SetDefault(defaultLogger)

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--step", "0",
		"--keep", "300",
		"--vad-thold", "0.5",
		"--translate",
		"-m", "tiny",
		"--export",
		"--export-format", "srt",
	}))

	cfg, err := resolveConfig(cmd.Flags(), store)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.StepMs)
	require.Equal(t, 5000, cfg.LengthMs)
	require.Equal(t, 300, cfg.KeepMs)
	require.Equal(t, 3, cfg.Threads)
	require.Equal(t, float32(0.5), cfg.VADThreshold)
	require.Equal(t, transcribe.OutputModeEnglish, cfg.OutputMode)
	require.Contains(t, logs.String(), "level=INFO")
	require.Contains(t, logs.String(), "--translate is deprecated")
	require.Equal(t, "tiny", cfg.Model)
	require.True(t, cfg.ExportEnabled)
	require.Equal(t, transcribe.ExportFormatSRT, cfg.Export.Format)
	require.Equal(t, filepath.Join(home, config.AppDirName, "models"), cfg.ModelsDir)
	require.NoError(t, cfg.IsValid())
}

func TestStreamFlagsAreBound(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"step", "length", "keep", "vad-thold", "freq-thold", "output-mode", "translate",
		"auto-copy", "auto-copy-max-duration", "auto-copy-max-size", "export", "export-format", "export-file",
		"meeting", "prompt", "name"} {
		f := cmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		keys := f.Annotations[configKeyAnnotation]
		require.Len(t, keys, 1, name)
		_, err := config.LookupKey(keys[0])
		require.NoError(t, err, name)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCmd(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	userPath := filepath.Join(home, config.AppDirName, "config.json")

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	require.Contains(t, out, "user:    "+userPath)

	out, err = execute(t, "config", "set", "step", "0")
	require.NoError(t, err)
	require.Equal(t, "step set in "+userPath+"\n", out)

	out, err = execute(t, "config", "get", "step_ms")
	require.NoError(t, err)
	require.Equal(t, "0\n", out)

	_, err = execute(t, "config", "set", "vad", "2")
	require.EqualError(t, err, "failed to validate config: invalid VADThreshold: should be in the range [0, 1]")

	out, err = execute(t, "config", "get", "vad")
	require.NoError(t, err)
	require.Equal(t, "0.6\n", out)

	out, err = execute(t, "config", "list")
	require.NoError(t, err)
	require.Contains(t, out, "step_ms")
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "step_ms ") {
			require.True(t, strings.HasSuffix(line, "user"), line)
		}
	}

	_, err = execute(t, "config", "set", "bogus", "1")
	require.EqualError(t, err, `unknown config key "bogus"`)

	_, err = execute(t, "config", "unset", "step")
	require.NoError(t, err)

	out, err = execute(t, "config", "get", "step")
	require.NoError(t, err)
	require.Equal(t, "3000\n", out)

	_, err = execute(t, "config", "reset")
	require.NoError(t, err)
}

func TestModelsCmd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := execute(t, "models", "list")
	require.NoError(t, err)
	require.Contains(t, out, "base.en")
	require.Contains(t, out, "large-v3")
	require.Contains(t, out, "Default model: base.en")

	out, err = execute(t, "models", "downloaded")
	require.NoError(t, err)
	require.Equal(t, "No models downloaded.\n", out)

	out, err = execute(t, "models", "cleanup")
	require.NoError(t, err)
	require.Equal(t, "Nothing to clean up.\n", out)

	_, err = execute(t, "models", "delete", "huge")
	require.EqualError(t, err, "unknown model: huge")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "whisper-stream v"+Version+"\n"))
}

func TestFormatSize(t *testing.T) {
	tcs := []struct {
		n        int64
		expected string
	}{
		{n: -1, expected: "unknown"},
		{n: 512, expected: "512 B"},
		{n: 1536, expected: "1.5 KiB"},
		{n: 148 * 1024 * 1024, expected: "148.0 MiB"},
		{n: 3 * 1024 * 1024 * 1024, expected: "3.0 GiB"},
	}

	for _, tc := range tcs {
		t.Run(tc.expected, func(t *testing.T) {
			require.Equal(t, tc.expected, formatSize(tc.n))
		})
	}
}
