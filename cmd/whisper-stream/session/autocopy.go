package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

var (
	ErrNoContent        = errors.New("no content to copy")
	ErrDurationExceeded = errors.New("session duration exceeded")
	ErrSizeExceeded     = errors.New("content size exceeded")
	ErrAlreadyCopied    = errors.New("already copied")
)

type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard writes to the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

type AutoCopyConfig struct {
	MaxDurationHours int
	MaxSizeBytes     int
}

// AutoCopy copies the session transcript to the clipboard when the stream
// ends. The copy happens at most once and failures are only reported.
type AutoCopy struct {
	cfg       AutoCopyConfig
	formatter transcribe.Formatter
	clip      Clipboard
	notify    Notifier

	buf    strings.Builder
	size   int
	copied bool
	start  time.Time
	now    func() time.Time
}

func NewAutoCopy(cfg AutoCopyConfig, formatter transcribe.Formatter, clip Clipboard, notify Notifier, start time.Time) *AutoCopy {
	return &AutoCopy{
		cfg:       cfg,
		formatter: formatter,
		clip:      clip,
		notify:    notify,
		start:     start,
		now:       time.Now,
	}
}

// Banner describes the accumulator for the session start.
func (a *AutoCopy) Banner(sessionID string) string {
	return fmt.Sprintf("Auto-copy enabled (Session ID: %s, Max Duration: %d hours, Max Size: %d bytes)",
		sessionID, a.cfg.MaxDurationHours, a.cfg.MaxSizeBytes)
}

func (a *AutoCopy) Name() string {
	return "auto-copy"
}

func (a *AutoCopy) Add(segs []transcribe.BilingualSegment) {
	if a.copied {
		return
	}

	for _, seg := range segs {
		line := a.formatter.Line(seg)
		a.size += len(line)
		// Content past the cap would never be copied.
		if a.size <= a.cfg.MaxSizeBytes {
			a.buf.WriteString(line)
		}
	}
}

func (a *AutoCopy) hours() int {
	return int(a.now().Sub(a.start).Hours())
}

// ShouldCopy returns whether a copy would still be attempted.
func (a *AutoCopy) ShouldCopy() bool {
	return !a.copied && a.hours() <= a.cfg.MaxDurationHours && a.size <= a.cfg.MaxSizeBytes
}

// Copy checks, in order, that there is content, that the session isn't too
// long and that the content isn't too large, then writes it to the
// clipboard.
func (a *AutoCopy) Copy() error {
	if a.copied {
		return ErrAlreadyCopied
	}

	text := strings.TrimSpace(a.buf.String())
	if text == "" && a.size <= a.cfg.MaxSizeBytes {
		return ErrNoContent
	}

	if hours := a.hours(); hours > a.cfg.MaxDurationHours {
		return fmt.Errorf("%w: %d hours over a limit of %d hours", ErrDurationExceeded, hours, a.cfg.MaxDurationHours)
	}

	if a.size > a.cfg.MaxSizeBytes {
		return fmt.Errorf("%w: %d bytes over a limit of %d bytes", ErrSizeExceeded, a.size, a.cfg.MaxSizeBytes)
	}

	if err := a.clip.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write to clipboard: %w", err)
	}

	a.copied = true

	return nil
}

func (a *AutoCopy) Finalize() error {
	err := a.Copy()

	switch {
	case err == nil:
		a.notify.Notice("Transcription copied.")
	case errors.Is(err, ErrAlreadyCopied):
		return nil
	case errors.Is(err, ErrNoContent):
		a.notify.Notice("Auto-copy skipped: no content to copy.")
	case errors.Is(err, ErrDurationExceeded):
		a.notify.Warn(fmt.Sprintf("Auto-copy skipped: session duration (%d hours) exceeded limit (%d hours).",
			a.hours(), a.cfg.MaxDurationHours))
	case errors.Is(err, ErrSizeExceeded):
		a.notify.Warn(fmt.Sprintf("Auto-copy skipped: content size (%d bytes) exceeded limit (%d bytes).",
			a.size, a.cfg.MaxSizeBytes))
	default:
		a.notify.Warn("Auto-copy failed: unable to copy to clipboard.")
		return err
	}

	return nil
}
