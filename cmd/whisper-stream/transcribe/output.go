package transcribe

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

var controlCharsRE = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// Record is one exported transcript entry.
type Record struct {
	StartTS     int64   `json:"start_ms"`
	EndTS       int64   `json:"end_ms"`
	Text        string  `json:"text"`
	Confidence  float32 `json:"confidence"`
	SpeakerTurn bool    `json:"speaker_turn"`
}

type Metadata struct {
	SessionID            string    `json:"session_id"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	Model                string    `json:"model"`
	Language             string    `json:"language"`
	Device               string    `json:"device"`
	Engine               string    `json:"engine"`
	Threads              int       `json:"threads"`
	VADThreshold         float32   `json:"vad_threshold"`
	StepMs               int       `json:"step_ms"`
	LengthMs             int       `json:"length_ms"`
	TotalSegments        int       `json:"total_segments"`
	TotalDurationSeconds float64   `json:"total_duration_seconds"`
	Version              string    `json:"version"`
}

// Transcription is the full log of a session, as handed to the exporter.
type Transcription struct {
	Metadata Metadata
	Records  []Record
}

// Duration returns the span between the first record start and the last
// record end.
func (t Transcription) Duration() time.Duration {
	if len(t.Records) == 0 {
		return 0
	}
	return time.Duration(t.Records[len(t.Records)-1].EndTS-t.Records[0].StartTS) * time.Millisecond
}

func (r *Record) sanitize(fns ...func(string) string) {
	r.Text = strings.TrimSpace(controlCharsRE.ReplaceAllString(r.Text, ""))
	for _, fn := range fns {
		r.Text = fn(r.Text)
	}
}

func (t Transcription) sanitized(fns ...func(string) string) []Record {
	out := make([]Record, len(t.Records))
	copy(out, t.Records)
	for i := range out {
		out[i].sanitize(fns...)
	}
	return out
}

// vttTS converts ts milliseconds in the 00:00:00.000 format.
func vttTS(ts int64, withMs bool) string {
	return formatTS(ts, withMs, ".")
}

// srtTS converts ts milliseconds in the 00:00:00,000 format.
func srtTS(ts int64) string {
	return formatTS(ts, true, ",")
}

// FormatTS converts ts milliseconds in the 00:00:00.000 format.
func FormatTS(ts int64) string {
	return formatTS(ts, true, ".")
}

func formatTS(ts int64, withMs bool, sep string) string {
	sMs := int64(1000)
	mMs := 60 * sMs
	hMs := 60 * mMs

	h := ts / hMs
	m := (ts - (h * hMs)) / mMs

	if withMs {
		s := ((ts - (h * hMs)) - m*mMs) / sMs
		ms := ((ts - (h * hMs)) - m*mMs) - s*sMs
		return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
	}

	s := int64(math.Round(float64(((ts - (h * hMs)) - m*mMs)) / float64(sMs)))
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
