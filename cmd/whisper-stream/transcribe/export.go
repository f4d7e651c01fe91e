package transcribe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type ExportFormat string

const (
	ExportFormatTXT      ExportFormat = "txt"
	ExportFormatMarkdown ExportFormat = "md"
	ExportFormatJSON     ExportFormat = "json"
	ExportFormatCSV      ExportFormat = "csv"
	ExportFormatSRT      ExportFormat = "srt"
	ExportFormatVTT      ExportFormat = "vtt"
	ExportFormatXML      ExportFormat = "xml"

	ExportFormatDefault = ExportFormatTXT
)

var ExportFormats = []ExportFormat{
	ExportFormatTXT,
	ExportFormatMarkdown,
	ExportFormatJSON,
	ExportFormatCSV,
	ExportFormatSRT,
	ExportFormatVTT,
	ExportFormatXML,
}

func (f ExportFormat) IsValid() bool {
	for _, ef := range ExportFormats {
		if f == ef {
			return true
		}
	}
	return false
}

func (f ExportFormat) Extension() string {
	return "." + string(f)
}

// ExportFormatFromPath infers the format from a file extension. It returns an
// empty format if the extension is unknown.
func ExportFormatFromPath(path string) ExportFormat {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "markdown" {
		ext = "md"
	}
	if f := ExportFormat(ext); f.IsValid() {
		return f
	}
	return ""
}

type ExportOptions struct {
	Format ExportFormat
	// Output path. A name is generated from the session when empty.
	File              string
	NoMetadata        bool
	NoTimestamps      bool
	IncludeConfidence bool
}

func (o *ExportOptions) IsValid() error {
	if !o.Format.IsValid() {
		return fmt.Errorf("invalid Format %q: should be one of %s", o.Format, joinFormats())
	}
	return nil
}

func (o *ExportOptions) IsEmpty() bool {
	return o == nil || *o == ExportOptions{}
}

func (o *ExportOptions) SetDefaults() {
	if o.Format == "" {
		if f := ExportFormatFromPath(o.File); f != "" {
			o.Format = f
		} else {
			o.Format = ExportFormatDefault
		}
	}
}

func (o *ExportOptions) FromEnv() {
	if val := os.Getenv("WHISPER_EXPORT_FORMAT"); val != "" {
		o.Format = ExportFormat(val)
	}
	if val := os.Getenv("WHISPER_EXPORT_FILE"); val != "" {
		o.File = val
	}
	if val, err := strconv.ParseBool(os.Getenv("WHISPER_EXPORT_NO_METADATA")); err == nil {
		o.NoMetadata = val
	}
	if val, err := strconv.ParseBool(os.Getenv("WHISPER_EXPORT_NO_TIMESTAMPS")); err == nil {
		o.NoTimestamps = val
	}
	if val, err := strconv.ParseBool(os.Getenv("WHISPER_EXPORT_INCLUDE_CONFIDENCE")); err == nil {
		o.IncludeConfidence = val
	}
}

func (o *ExportOptions) ToEnv() []string {
	return []string{
		fmt.Sprintf("WHISPER_EXPORT_FORMAT=%s", o.Format),
		fmt.Sprintf("WHISPER_EXPORT_FILE=%s", o.File),
		fmt.Sprintf("WHISPER_EXPORT_NO_METADATA=%t", o.NoMetadata),
		fmt.Sprintf("WHISPER_EXPORT_NO_TIMESTAMPS=%t", o.NoTimestamps),
		fmt.Sprintf("WHISPER_EXPORT_INCLUDE_CONFIDENCE=%t", o.IncludeConfidence),
	}
}

func (o *ExportOptions) ToMap() map[string]any {
	return map[string]any{
		"export_format":             string(o.Format),
		"export_file":               o.File,
		"export_no_metadata":        o.NoMetadata,
		"export_no_timestamps":      o.NoTimestamps,
		"export_include_confidence": o.IncludeConfidence,
	}
}

// FromMap applies the export_* settings found in m, leaving the others
// untouched.
func (o *ExportOptions) FromMap(m map[string]any) {
	if format, ok := m["export_format"].(string); ok {
		o.Format = ExportFormat(format)
	} else if format, ok := m["export_format"].(ExportFormat); ok {
		o.Format = format
	}
	if file, ok := m["export_file"].(string); ok {
		o.File = file
	}
	if val, ok := m["export_no_metadata"].(bool); ok {
		o.NoMetadata = val
	}
	if val, ok := m["export_no_timestamps"].(bool); ok {
		o.NoTimestamps = val
	}
	if val, ok := m["export_include_confidence"].(bool); ok {
		o.IncludeConfidence = val
	}
}

func joinFormats() string {
	names := make([]string, len(ExportFormats))
	for i, f := range ExportFormats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// ExportFilename returns the auto-generated name for a session export.
func ExportFilename(format ExportFormat, sessionID string, now time.Time) string {
	name := "transcript_" + now.Format("20060102_150405")
	if sessionID != "" {
		name += "_" + sessionID
	}
	return name + format.Extension()
}

// Export serializes the transcription in the requested format.
func (t Transcription) Export(w io.Writer, opts ExportOptions) error {
	switch opts.Format {
	case ExportFormatTXT:
		return t.Text(w, opts)
	case ExportFormatMarkdown:
		return t.Markdown(w, opts)
	case ExportFormatJSON:
		return t.JSON(w, opts)
	case ExportFormatCSV:
		return t.CSV(w, opts)
	case ExportFormatSRT:
		return t.SRT(w, opts)
	case ExportFormatVTT:
		return t.WebVTT(w, opts)
	case ExportFormatXML:
		return t.XML(w, opts)
	default:
		return fmt.Errorf("unsupported export format %q", opts.Format)
	}
}

// ExportToFile writes the transcription to opts.File, or to a generated name
// inside dir, and returns the path written.
func (t Transcription) ExportToFile(dir string, opts ExportOptions) (string, error) {
	if err := opts.IsValid(); err != nil {
		return "", fmt.Errorf("failed to validate export options: %w", err)
	}

	path := opts.File
	if path == "" {
		path = filepath.Join(dir, ExportFilename(opts.Format, t.Metadata.SessionID, t.Metadata.EndTime))
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to open output file: %w", err)
	}
	defer f.Close()

	if err := t.Export(f, opts); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", opts.Format, err)
	}

	return path, nil
}
