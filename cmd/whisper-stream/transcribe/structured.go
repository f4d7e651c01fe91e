package transcribe

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"
)

type jsonMetadata struct {
	SessionID       string  `json:"session_id"`
	ExportTimestamp string  `json:"export_timestamp"`
	Model           string  `json:"model"`
	Language        string  `json:"language"`
	Device          string  `json:"device,omitempty"`
	Engine          string  `json:"engine,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalSegments   int     `json:"total_segments"`
	ThreadCount     int     `json:"thread_count"`
	VADThreshold    float32 `json:"vad_threshold"`
	StepMs          int     `json:"step_ms"`
	LengthMs        int     `json:"length_ms"`
	Version         string  `json:"version"`
}

type jsonSegment struct {
	ID          int      `json:"id"`
	StartTimeMs int64    `json:"start_time_ms"`
	EndTimeMs   int64    `json:"end_time_ms"`
	Text        string   `json:"text"`
	Confidence  *float32 `json:"confidence,omitempty"`
	SpeakerTurn bool     `json:"speaker_turn,omitempty"`
}

type jsonTranscription struct {
	Metadata *jsonMetadata `json:"metadata,omitempty"`
	Segments []jsonSegment `json:"segments"`
}

func (t Transcription) JSON(w io.Writer, opts ExportOptions) error {
	var out jsonTranscription

	if !opts.NoMetadata {
		md := t.Metadata
		out.Metadata = &jsonMetadata{
			SessionID:       md.SessionID,
			ExportTimestamp: md.EndTime.Format(time.RFC3339),
			Model:           md.Model,
			Language:        md.Language,
			Device:          md.Device,
			Engine:          md.Engine,
			DurationSeconds: md.TotalDurationSeconds,
			TotalSegments:   md.TotalSegments,
			ThreadCount:     md.Threads,
			VADThreshold:    md.VADThreshold,
			StepMs:          md.StepMs,
			LengthMs:        md.LengthMs,
			Version:         md.Version,
		}
	}

	out.Segments = make([]jsonSegment, 0, len(t.Records))
	for i, r := range t.sanitized() {
		seg := jsonSegment{
			ID:          i,
			StartTimeMs: r.StartTS,
			EndTimeMs:   r.EndTS,
			Text:        r.Text,
			SpeakerTurn: r.SpeakerTurn,
		}
		if opts.IncludeConfidence {
			conf := r.Confidence
			seg.Confidence = &conf
		}
		out.Segments = append(out.Segments, seg)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}

	return nil
}

func (t Transcription) CSV(w io.Writer, opts ExportOptions) error {
	cw := csv.NewWriter(w)

	header := []string{"id", "start_time_ms", "end_time_ms", "start_time", "end_time", "text"}
	if opts.IncludeConfidence {
		header = append(header, "confidence")
	}
	header = append(header, "speaker_turn")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	for i, r := range t.sanitized() {
		row := []string{
			strconv.Itoa(i),
			strconv.FormatInt(r.StartTS, 10),
			strconv.FormatInt(r.EndTS, 10),
			vttTS(r.StartTS, true),
			vttTS(r.EndTS, true),
			r.Text,
		}
		if opts.IncludeConfidence {
			row = append(row, strconv.FormatFloat(float64(r.Confidence), 'f', 2, 32))
		}
		row = append(row, strconv.FormatBool(r.SpeakerTurn))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return nil
}

type xmlMetadata struct {
	SessionID       string  `xml:"session_id"`
	ExportTimestamp string  `xml:"export_timestamp"`
	Model           string  `xml:"model"`
	Language        string  `xml:"language"`
	DurationSeconds float64 `xml:"duration_seconds"`
	TotalSegments   int     `xml:"total_segments"`
	Engine          string  `xml:"engine,omitempty"`
	Version         string  `xml:"version"`
}

type xmlSegment struct {
	ID          int      `xml:"id,attr"`
	StartTimeMs int64    `xml:"start_time_ms,attr"`
	EndTimeMs   int64    `xml:"end_time_ms,attr"`
	Confidence  *float32 `xml:"confidence,attr,omitempty"`
	SpeakerTurn bool     `xml:"speaker_turn,attr,omitempty"`
	Text        string   `xml:",chardata"`
}

type xmlTranscription struct {
	XMLName  xml.Name     `xml:"transcription"`
	Metadata *xmlMetadata `xml:"metadata,omitempty"`
	Segments []xmlSegment `xml:"segments>segment"`
}

func (t Transcription) XML(w io.Writer, opts ExportOptions) error {
	var out xmlTranscription

	if !opts.NoMetadata {
		md := t.Metadata
		out.Metadata = &xmlMetadata{
			SessionID:       md.SessionID,
			ExportTimestamp: md.EndTime.Format(time.RFC3339),
			Model:           md.Model,
			Language:        md.Language,
			DurationSeconds: md.TotalDurationSeconds,
			TotalSegments:   md.TotalSegments,
			Engine:          md.Engine,
			Version:         md.Version,
		}
	}

	for i, r := range t.sanitized() {
		seg := xmlSegment{
			ID:          i,
			StartTimeMs: r.StartTS,
			EndTimeMs:   r.EndTS,
			SpeakerTurn: r.SpeakerTurn,
			Text:        r.Text,
		}
		if opts.IncludeConfidence {
			conf := r.Confidence
			seg.Confidence = &conf
		}
		out.Segments = append(out.Segments, seg)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}

	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}
