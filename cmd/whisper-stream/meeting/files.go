package meeting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// OutputFilename returns name if set, meeting-YYYY-MM-DD.md otherwise.
func OutputFilename(name string, now time.Time) string {
	if name != "" {
		return name
	}
	return "meeting-" + now.Format("2006-01-02") + ".md"
}

// FallbackFilename returns the first of YYYY-MM-DD.md, YYYY-MM-DD-1.md,
// YYYY-MM-DD-2.md and so on that doesn't exist in dir.
func FallbackFilename(dir string, now time.Time) (string, error) {
	base := now.Format("2006-01-02")

	for i := 0; ; i++ {
		name := base + ".md"
		if i > 0 {
			name = base + "-" + strconv.Itoa(i) + ".md"
		}

		path := filepath.Join(dir, name)
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
}

// RawNotes renders the raw transcript written when the organizer fails.
func RawNotes(transcript, sessionID string, now time.Time) string {
	return "# Meeting Transcription\n\n" +
		"**Date**: " + now.Format("2006-01-02 15:04") + "\n\n" +
		"**Session ID**: " + sessionID + "\n\n" +
		"---\n\n" +
		"## Raw Transcription\n\n" +
		transcript
}

// WriteFallback saves the raw transcript to the next free fallback file in dir
// and returns its path.
func WriteFallback(dir, transcript, sessionID string, now time.Time) (string, error) {
	path, err := FallbackFilename(dir, now)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create fallback file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(RawNotes(transcript, sessionID, now)); err != nil {
		return "", fmt.Errorf("failed to write fallback file: %w", err)
	}

	return path, nil
}
