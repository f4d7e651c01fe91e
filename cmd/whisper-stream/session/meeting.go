package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/meeting"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

const organizeTimeout = 10 * time.Minute

type MeetingConfig struct {
	SessionID string
	// Organizer prompt template. The default prompt is used when empty.
	Prompt string
	// Output file name. Defaults to meeting-YYYY-MM-DD.md.
	Name string
	// Directory for the output and fallback files.
	Dir string
}

// Meeting collects the raw transcript and hands it to an organizer when the
// stream ends. If the organizer fails the raw transcript is saved instead.
type Meeting struct {
	cfg       MeetingConfig
	formatter transcribe.Formatter
	organizer meeting.Organizer
	notify    Notifier

	buf strings.Builder
	now func() time.Time
}

func NewMeeting(cfg MeetingConfig, formatter transcribe.Formatter, organizer meeting.Organizer, notify Notifier) *Meeting {
	return &Meeting{
		cfg:       cfg,
		formatter: formatter,
		organizer: organizer,
		notify:    notify,
		now:       time.Now,
	}
}

func (m *Meeting) Banner(sessionID string) string {
	return fmt.Sprintf("Meeting mode enabled (Session ID: %s, Output: %s)", sessionID, m.outputPath())
}

func (m *Meeting) Name() string {
	return "meeting"
}

func (m *Meeting) Add(segs []transcribe.BilingualSegment) {
	for _, seg := range segs {
		m.buf.WriteString(m.formatter.Plain(seg))
	}
}

func (m *Meeting) Transcript() string {
	return strings.TrimSpace(m.buf.String())
}

func (m *Meeting) outputPath() string {
	name := meeting.OutputFilename(m.cfg.Name, m.now())
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.cfg.Dir, name)
}

func (m *Meeting) Finalize() error {
	transcript := m.Transcript()
	if transcript == "" {
		m.notify.Notice("Meeting transcription skipped: no content.")
		return nil
	}

	m.notify.Notice(fmt.Sprintf("Processing meeting transcription with %s...", m.organizer.Name()))

	if path, err := m.organize(transcript); err != nil {
		slog.Error("failed to organize meeting transcription",
			slog.String("organizer", m.organizer.Name()),
			slog.String("err", err.Error()))
		m.notify.Warn(fmt.Sprintf("Failed to process meeting transcription: %s", err.Error()))
	} else {
		m.notify.Notice(fmt.Sprintf("Meeting transcription processed and saved to: %s", path))
		return nil
	}

	path, err := meeting.WriteFallback(m.cfg.Dir, transcript, m.cfg.SessionID, m.now())
	if err != nil {
		m.notify.Warn("Failed to save meeting transcription.")
		return fmt.Errorf("failed to write fallback: %w", err)
	}
	m.notify.Notice(fmt.Sprintf("Transcription saved to: %s", path))

	return nil
}

func (m *Meeting) organize(transcript string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), organizeTimeout)
	defer cancel()

	notes, err := m.organizer.Organize(ctx, meeting.BuildPrompt(m.cfg.Prompt, transcript))
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(notes) == "" {
		return "", fmt.Errorf("organizer returned no content")
	}

	path := m.outputPath()
	if err := os.WriteFile(path, []byte(notes), 0600); err != nil {
		return "", fmt.Errorf("failed to write meeting notes: %w", err)
	}

	return path, nil
}
