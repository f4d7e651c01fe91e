package session

import (
	"context"
	"fmt"
	"time"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

const publishTimeout = 2 * time.Minute

// Publisher shares an exported transcript file.
type Publisher interface {
	Publish(ctx context.Context, path, message string) (*model.Post, error)
}

type ExportConfig struct {
	Options transcribe.ExportOptions
	// Directory for auto-generated file names.
	Dir string
	// Session level metadata. Timing and totals are filled on finalize.
	Metadata transcribe.Metadata
}

// Export keeps a record per merged segment and writes them out in the
// configured format when the stream ends.
type Export struct {
	cfg       ExportConfig
	formatter transcribe.Formatter
	notify    Notifier
	publisher Publisher

	records []transcribe.Record
	now     func() time.Time
}

func NewExport(cfg ExportConfig, formatter transcribe.Formatter, notify Notifier) *Export {
	cfg.Options.SetDefaults()
	return &Export{
		cfg:       cfg,
		formatter: formatter,
		notify:    notify,
		now:       time.Now,
	}
}

// SetPublisher makes the exported file be published after it's written.
func (e *Export) SetPublisher(p Publisher) {
	e.publisher = p
}

func (e *Export) Banner(sessionID string) string {
	file := e.cfg.Options.File
	if file == "" {
		file = "auto-generated"
	}
	return fmt.Sprintf("Export enabled (Session ID: %s, Format: %s, File: %s)", sessionID, e.cfg.Options.Format, file)
}

func (e *Export) Name() string {
	return "export"
}

func (e *Export) Add(segs []transcribe.BilingualSegment) {
	for _, seg := range segs {
		e.records = append(e.records, e.formatter.Record(seg))
	}
}

func (e *Export) Records() []transcribe.Record {
	return e.records
}

// Transcription returns the session log along with its derived metadata.
func (e *Export) Transcription() transcribe.Transcription {
	t := transcribe.Transcription{
		Metadata: e.cfg.Metadata,
		Records:  e.records,
	}
	t.Metadata.EndTime = e.now()
	t.Metadata.TotalSegments = len(e.records)
	t.Metadata.TotalDurationSeconds = t.Duration().Seconds()
	return t
}

func (e *Export) Finalize() error {
	path, err := e.Transcription().ExportToFile(e.cfg.Dir, e.cfg.Options)
	if err != nil {
		e.notify.Warn("Export failed.")
		return err
	}
	e.notify.Notice("Export completed successfully.")

	if e.publisher == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := fmt.Sprintf("Transcription of session %s", e.cfg.Metadata.SessionID)
	if _, err := e.publisher.Publish(ctx, path, msg); err != nil {
		e.notify.Warn("Publish failed.")
		return fmt.Errorf("failed to publish export: %w", err)
	}
	e.notify.Notice("Transcription published.")

	return nil
}
