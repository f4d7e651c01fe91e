package transcribe

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatTS(t *testing.T) {
	tcs := []struct {
		name   string
		ts     int64
		vtt    string
		vttNoM string
		srt    string
	}{
		{
			name:   "zero",
			ts:     0,
			vtt:    "00:00:00.000",
			vttNoM: "00:00:00",
			srt:    "00:00:00,000",
		},
		{
			name:   "ms",
			ts:     45,
			vtt:    "00:00:00.045",
			vttNoM: "00:00:00",
			srt:    "00:00:00,045",
		},
		{
			name:   "seconds",
			ts:     1500,
			vtt:    "00:00:01.500",
			vttNoM: "00:00:02",
			srt:    "00:00:01,500",
		},
		{
			name:   "minutes",
			ts:     61_001,
			vtt:    "00:01:01.001",
			vttNoM: "00:01:01",
			srt:    "00:01:01,001",
		},
		{
			name:   "hours",
			ts:     3_723_456,
			vtt:    "01:02:03.456",
			vttNoM: "01:02:03",
			srt:    "01:02:03,456",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.vtt, vttTS(tc.ts, true))
			require.Equal(t, tc.vtt, FormatTS(tc.ts))
			require.Equal(t, tc.vttNoM, vttTS(tc.ts, false))
			require.Equal(t, tc.srt, srtTS(tc.ts))
		})
	}
}

func TestExportFormatFromPath(t *testing.T) {
	tcs := []struct {
		path   string
		format ExportFormat
	}{
		{path: "out.txt", format: ExportFormatTXT},
		{path: "/tmp/notes.MD", format: ExportFormatMarkdown},
		{path: "notes.markdown", format: ExportFormatMarkdown},
		{path: "a.json", format: ExportFormatJSON},
		{path: "a.csv", format: ExportFormatCSV},
		{path: "a.srt", format: ExportFormatSRT},
		{path: "a.vtt", format: ExportFormatVTT},
		{path: "a.xml", format: ExportFormatXML},
		{path: "a.docx", format: ""},
		{path: "noext", format: ""},
	}

	for _, tc := range tcs {
		t.Run(tc.path, func(t *testing.T) {
			require.Equal(t, tc.format, ExportFormatFromPath(tc.path))
		})
	}
}

func TestExportOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var opts ExportOptions
		require.True(t, opts.IsEmpty())
		opts.SetDefaults()
		require.Equal(t, ExportFormatTXT, opts.Format)
		require.NoError(t, opts.IsValid())
	})

	t.Run("infer from file", func(t *testing.T) {
		opts := ExportOptions{File: "session.srt"}
		opts.SetDefaults()
		require.Equal(t, ExportFormatSRT, opts.Format)
	})

	t.Run("invalid", func(t *testing.T) {
		opts := ExportOptions{Format: "pdf"}
		require.EqualError(t, opts.IsValid(), `invalid Format "pdf": should be one of txt, md, json, csv, srt, vtt, xml`)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("WHISPER_EXPORT_FORMAT", "json")
		t.Setenv("WHISPER_EXPORT_FILE", "out.json")
		t.Setenv("WHISPER_EXPORT_INCLUDE_CONFIDENCE", "true")

		var opts ExportOptions
		opts.FromEnv()
		require.Equal(t, ExportOptions{
			Format:            ExportFormatJSON,
			File:              "out.json",
			IncludeConfidence: true,
		}, opts)
	})

	t.Run("map", func(t *testing.T) {
		opts := ExportOptions{
			Format:       ExportFormatVTT,
			File:         "out.vtt",
			NoTimestamps: true,
		}
		var got ExportOptions
		got.FromMap(opts.ToMap())
		require.Equal(t, opts, got)
	})
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	require.Equal(t, "transcript_20250304_050607_abc.md", ExportFilename(ExportFormatMarkdown, "abc", now))
	require.Equal(t, "transcript_20250304_050607.txt", ExportFilename(ExportFormatTXT, "", now))
}

func newTestTranscription() Transcription {
	end := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	return Transcription{
		Metadata: Metadata{
			SessionID:            "sid",
			StartTime:            end.Add(-3 * time.Second),
			EndTime:              end,
			Model:                "base.en",
			Language:             "en",
			Engine:               "whisper.cpp",
			TotalSegments:        2,
			TotalDurationSeconds: 3,
			Version:              "dev",
		},
		Records: []Record{
			{StartTS: 0, EndTS: 1500, Text: " Hello\x07 there ", Confidence: 0.91},
			{StartTS: 1500, EndTS: 3000, Text: "<b>General</b> Kenobi", Confidence: 0.5, SpeakerTurn: true},
		},
	}
}

func TestExportText(t *testing.T) {
	tr := newTestTranscription()

	t.Run("full", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatTXT, IncludeConfidence: true})
		require.NoError(t, err)

		expected := "# Transcription Export\n" +
			"Session ID: sid\n" +
			"Date: 2025-03-04 10:00:00\n" +
			"Model: base.en\n" +
			"Language: en\n" +
			"Duration: 3.0 seconds\n" +
			"Segments: 2\n" +
			"\n--------------------------------------------------\n\n" +
			"[00:00:00.000 --> 00:00:01.500] Hello there (confidence: 0.91)\n" +
			"[00:00:01.500 --> 00:00:03.000] <b>General</b> Kenobi (confidence: 0.50) [SPEAKER_TURN]\n"
		require.Equal(t, expected, buf.String())
	})

	t.Run("bare", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatTXT, NoMetadata: true, NoTimestamps: true})
		require.NoError(t, err)
		require.Equal(t, "Hello there\n<b>General</b> Kenobi [SPEAKER_TURN]\n", buf.String())
	})
}

func TestExportMarkdown(t *testing.T) {
	tr := newTestTranscription()

	var buf bytes.Buffer
	err := tr.Export(&buf, ExportOptions{Format: ExportFormatMarkdown})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "| Session ID | `sid` |\n")
	require.Contains(t, out, "**[00:00:00.000 → 00:00:01.500]** Hello there\n\n")
	require.Contains(t, out, "Kenobi `[SPEAKER_TURN]`\n\n")
	require.Contains(t, out, "*Generated by whisper-stream vdev*\n")
}

func TestExportSubtitles(t *testing.T) {
	tr := newTestTranscription()

	t.Run("vtt", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatVTT})
		require.NoError(t, err)

		expected := "WEBVTT\n\n" +
			"NOTE\nGenerated by whisper-stream vdev\nSession: sid\nModel: base.en\n\n" +
			"00:00:00.000 --> 00:00:01.500\nHello there\n\n" +
			"00:00:01.500 --> 00:00:03.000\n&lt;b&gt;General&lt;/b&gt; Kenobi [SPEAKER_TURN]\n\n"
		require.Equal(t, expected, buf.String())
	})

	t.Run("srt", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatSRT})
		require.NoError(t, err)

		expected := "1\n00:00:00,000 --> 00:00:01,500\nHello there\n\n" +
			"2\n00:00:01,500 --> 00:00:03,000\n<b>General</b> Kenobi [SPEAKER_TURN]\n\n"
		require.Equal(t, expected, buf.String())
	})
}

func TestExportStructured(t *testing.T) {
	tr := newTestTranscription()

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatJSON, IncludeConfidence: true})
		require.NoError(t, err)

		var out jsonTranscription
		require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
		require.NotNil(t, out.Metadata)
		require.Equal(t, "sid", out.Metadata.SessionID)
		require.Equal(t, "2025-03-04T10:00:00Z", out.Metadata.ExportTimestamp)
		require.Len(t, out.Segments, 2)
		require.Equal(t, "Hello there", out.Segments[0].Text)
		require.NotNil(t, out.Segments[0].Confidence)
		require.InDelta(t, 0.91, *out.Segments[0].Confidence, 1e-6)
		require.True(t, out.Segments[1].SpeakerTurn)
	})

	t.Run("json without metadata", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatJSON, NoMetadata: true})
		require.NoError(t, err)
		require.NotContains(t, buf.String(), "metadata")
		require.NotContains(t, buf.String(), "confidence")
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatCSV})
		require.NoError(t, err)

		expected := "id,start_time_ms,end_time_ms,start_time,end_time,text,speaker_turn\n" +
			"0,0,1500,00:00:00.000,00:00:01.500,Hello there,false\n" +
			"1,1500,3000,00:00:01.500,00:00:03.000,<b>General</b> Kenobi,true\n"
		require.Equal(t, expected, buf.String())
	})

	t.Run("xml", func(t *testing.T) {
		var buf bytes.Buffer
		err := tr.Export(&buf, ExportOptions{Format: ExportFormatXML})
		require.NoError(t, err)

		var out xmlTranscription
		require.NoError(t, xml.Unmarshal(buf.Bytes(), &out))
		require.Equal(t, "sid", out.Metadata.SessionID)
		require.Len(t, out.Segments, 2)
		require.Equal(t, "<b>General</b> Kenobi", out.Segments[1].Text)
		require.Equal(t, int64(1500), out.Segments[1].StartTimeMs)
	})

	t.Run("unsupported", func(t *testing.T) {
		err := tr.Export(&bytes.Buffer{}, ExportOptions{Format: "pdf"})
		require.EqualError(t, err, `unsupported export format "pdf"`)
	})
}

func TestExportToFile(t *testing.T) {
	tr := newTestTranscription()
	dir := t.TempDir()

	t.Run("generated name", func(t *testing.T) {
		path, err := tr.ExportToFile(dir, ExportOptions{Format: ExportFormatSRT})
		require.NoError(t, err)
		require.Equal(t, filepath.Join(dir, "transcript_20250304_100000_sid.srt"), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "Hello there")
	})

	t.Run("explicit file", func(t *testing.T) {
		file := filepath.Join(dir, "out.md")
		path, err := tr.ExportToFile(dir, ExportOptions{Format: ExportFormatMarkdown, File: file})
		require.NoError(t, err)
		require.Equal(t, file, path)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := tr.ExportToFile(dir, ExportOptions{Format: "pdf"})
		require.Error(t, err)
	})
}

func TestTranscriptionDuration(t *testing.T) {
	require.Zero(t, Transcription{}.Duration())
	require.Equal(t, 3*time.Second, newTestTranscription().Duration())
}
