package transcribe

import (
	"fmt"
	"io"
	"strings"
)

const dateLayout = "2006-01-02 15:04:05"

func (t Transcription) Text(w io.Writer, opts ExportOptions) error {
	var b strings.Builder

	if !opts.NoMetadata {
		md := t.Metadata
		fmt.Fprintf(&b, "# Transcription Export\n")
		fmt.Fprintf(&b, "Session ID: %s\n", md.SessionID)
		fmt.Fprintf(&b, "Date: %s\n", md.EndTime.Format(dateLayout))
		fmt.Fprintf(&b, "Model: %s\n", md.Model)
		fmt.Fprintf(&b, "Language: %s\n", md.Language)
		fmt.Fprintf(&b, "Duration: %.1f seconds\n", md.TotalDurationSeconds)
		fmt.Fprintf(&b, "Segments: %d\n", md.TotalSegments)
		fmt.Fprintf(&b, "\n%s\n\n", strings.Repeat("-", 50))
	}

	for _, r := range t.sanitized() {
		if !opts.NoTimestamps {
			fmt.Fprintf(&b, "[%s --> %s] ", vttTS(r.StartTS, true), vttTS(r.EndTS, true))
		}
		b.WriteString(r.Text)
		if opts.IncludeConfidence {
			fmt.Fprintf(&b, " (confidence: %.2f)", r.Confidence)
		}
		if r.SpeakerTurn {
			b.WriteString(" [SPEAKER_TURN]")
		}
		b.WriteString("\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}

func (t Transcription) Markdown(w io.Writer, opts ExportOptions) error {
	var b strings.Builder

	b.WriteString("# Transcription Export\n\n")

	if !opts.NoMetadata {
		md := t.Metadata
		b.WriteString("## Session Information\n\n")
		b.WriteString("| Field | Value |\n")
		b.WriteString("|-------|-------|\n")
		fmt.Fprintf(&b, "| Session ID | `%s` |\n", md.SessionID)
		fmt.Fprintf(&b, "| Date | %s |\n", md.EndTime.Format(dateLayout))
		fmt.Fprintf(&b, "| Model | %s |\n", md.Model)
		fmt.Fprintf(&b, "| Language | %s |\n", md.Language)
		fmt.Fprintf(&b, "| Duration | %.1f seconds |\n", md.TotalDurationSeconds)
		fmt.Fprintf(&b, "| Segments | %d |\n", md.TotalSegments)
		fmt.Fprintf(&b, "| Engine | %s |\n", md.Engine)
		fmt.Fprintf(&b, "| VAD Threshold | %g |\n", md.VADThreshold)
		b.WriteString("\n## Transcription\n\n")
	}

	// Markdown line breaks need two trailing spaces.
	mdBreaks := func(s string) string {
		return strings.ReplaceAll(s, "\n", "  \n")
	}

	for _, r := range t.sanitized(mdBreaks) {
		if !opts.NoTimestamps {
			fmt.Fprintf(&b, "**[%s → %s]** ", vttTS(r.StartTS, true), vttTS(r.EndTS, true))
		}
		b.WriteString(r.Text)
		if opts.IncludeConfidence {
			fmt.Fprintf(&b, " *(confidence: %.2f)*", r.Confidence)
		}
		if r.SpeakerTurn {
			b.WriteString(" `[SPEAKER_TURN]`")
		}
		b.WriteString("\n\n")
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "*Generated by whisper-stream v%s*\n", t.Metadata.Version)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}
