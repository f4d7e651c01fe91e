package transcribe

import (
	"fmt"
	"html"
	"io"
)

func (t Transcription) WebVTT(w io.Writer, opts ExportOptions) error {
	_, err := fmt.Fprintf(w, "WEBVTT\n\n")
	if err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	if !opts.NoMetadata {
		_, err = fmt.Fprintf(w, "NOTE\nGenerated by whisper-stream v%s\nSession: %s\nModel: %s\n\n",
			t.Metadata.Version, t.Metadata.SessionID, t.Metadata.Model)
		if err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
	}

	for _, r := range t.sanitized(html.EscapeString) {
		_, err = fmt.Fprintf(w, "%s --> %s\n", vttTS(r.StartTS, true), vttTS(r.EndTS, true))
		if err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s%s\n\n", r.Text, speakerTurnSuffix(r))
		if err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
	}

	return nil
}

func (t Transcription) SRT(w io.Writer, _ ExportOptions) error {
	for i, r := range t.sanitized() {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n", i+1, srtTS(r.StartTS), srtTS(r.EndTS))
		if err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s%s\n\n", r.Text, speakerTurnSuffix(r))
		if err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
	}

	return nil
}

func speakerTurnSuffix(r Record) string {
	if r.SpeakerTurn {
		return " [SPEAKER_TURN]"
	}
	return ""
}
