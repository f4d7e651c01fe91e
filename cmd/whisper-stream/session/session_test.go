package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/stretchr/testify/require"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/meeting"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/stream"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

type fakeNotifier struct {
	notices []string
	warns   []string
}

func (n *fakeNotifier) Notice(msg string) {
	n.notices = append(n.notices, msg)
}

func (n *fakeNotifier) Warn(msg string) {
	n.warns = append(n.warns, msg)
}

type fakeClipboard struct {
	texts []string
	err   error
}

func (c *fakeClipboard) WriteAll(text string) error {
	if c.err != nil {
		return c.err
	}
	c.texts = append(c.texts, text)
	return nil
}

type fakeOrganizer struct {
	out     string
	err     error
	prompts []string
}

func (o *fakeOrganizer) Organize(_ context.Context, prompt string) (string, error) {
	o.prompts = append(o.prompts, prompt)
	return o.out, o.err
}

func (o *fakeOrganizer) Name() string {
	return "fake"
}

type fakeAccumulator struct {
	name  string
	order *[]string
	added int
	err   error
	panic bool
}

func (a *fakeAccumulator) Name() string {
	return a.name
}

func (a *fakeAccumulator) Add(segs []transcribe.BilingualSegment) {
	a.added += len(segs)
}

func (a *fakeAccumulator) Finalize() error {
	*a.order = append(*a.order, a.name)
	if a.panic {
		panic("boom")
	}
	return a.err
}

func segment(text string) transcribe.BilingualSegment {
	return transcribe.BilingualSegment{OriginalText: text}
}

var plainFormatter = transcribe.Formatter{Mode: transcribe.OutputModeOriginal}

func TestSessionFinalizeOrder(t *testing.T) {
	var order []string
	accs := []*fakeAccumulator{
		{name: "auto-copy", order: &order, panic: true},
		{name: "export", order: &order, err: fmt.Errorf("disk full")},
		{name: "meeting", order: &order},
	}

	s := New("abcd1234", time.Now(), accs[0], accs[1], accs[2])
	require.Equal(t, "abcd1234", s.ID())

	s.Add([]transcribe.BilingualSegment{segment("a"), segment("b")})
	for _, acc := range accs {
		require.Equal(t, 2, acc.added)
	}

	s.Finalize()
	require.Equal(t, []string{"auto-copy", "export", "meeting"}, order)
}

func TestNewID(t *testing.T) {
	id := NewID()
	require.Len(t, id, 8)
	require.NotEqual(t, id, NewID())
}

func TestAutoCopy(t *testing.T) {
	start := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

	tcs := []struct {
		name    string
		cfg     AutoCopyConfig
		texts   []string
		elapsed time.Duration
		clipErr error
		copied  []string
		notices []string
		warns   []string
		err     string
	}{
		{
			name:    "copies",
			cfg:     AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1024},
			texts:   []string{" hello", " world"},
			elapsed: time.Hour,
			copied:  []string{"hello world"},
			notices: []string{"Transcription copied."},
		},
		{
			name:    "no content",
			cfg:     AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1024},
			texts:   []string{" ", ""},
			notices: []string{"Auto-copy skipped: no content to copy."},
		},
		{
			name:    "empty check comes before duration",
			cfg:     AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1024},
			elapsed: 5 * time.Hour,
			notices: []string{"Auto-copy skipped: no content to copy."},
		},
		{
			name:    "duration at limit",
			cfg:     AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1024},
			texts:   []string{"hello"},
			elapsed: 2*time.Hour + 59*time.Minute,
			copied:  []string{"hello"},
			notices: []string{"Transcription copied."},
		},
		{
			name:    "duration exceeded",
			cfg:     AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1024},
			texts:   []string{"hello"},
			elapsed: 3 * time.Hour,
			warns:   []string{"Auto-copy skipped: session duration (3 hours) exceeded limit (2 hours)."},
		},
		{
			name:    "duration checked before size",
			cfg:     AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 4},
			texts:   []string{"hello"},
			elapsed: 3 * time.Hour,
			warns:   []string{"Auto-copy skipped: session duration (3 hours) exceeded limit (2 hours)."},
		},
		{
			name:  "size exceeded",
			cfg:   AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 8},
			texts: []string{"hello", " world"},
			warns: []string{"Auto-copy skipped: content size (11 bytes) exceeded limit (8 bytes)."},
		},
		{
			name:    "clipboard failure",
			cfg:     AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1024},
			texts:   []string{"hello"},
			clipErr: fmt.Errorf("no display"),
			warns:   []string{"Auto-copy failed: unable to copy to clipboard."},
			err:     "failed to write to clipboard: no display",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			clip := &fakeClipboard{err: tc.clipErr}
			notify := &fakeNotifier{}
			a := NewAutoCopy(tc.cfg, plainFormatter, clip, notify, start)
			a.now = func() time.Time { return start.Add(tc.elapsed) }

			for _, text := range tc.texts {
				a.Add([]transcribe.BilingualSegment{segment(text)})
			}

			err := a.Finalize()
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.copied, clip.texts)
			require.Equal(t, tc.notices, notify.notices)
			require.Equal(t, tc.warns, notify.warns)
		})
	}
}

func TestAutoCopyAtMostOnce(t *testing.T) {
	start := time.Now()
	clip := &fakeClipboard{}
	notify := &fakeNotifier{}
	a := NewAutoCopy(AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1024}, plainFormatter, clip, notify, start)
	a.now = func() time.Time { return start }

	a.Add([]transcribe.BilingualSegment{segment("hello")})
	require.True(t, a.ShouldCopy())
	require.NoError(t, a.Finalize())
	require.False(t, a.ShouldCopy())

	a.Add([]transcribe.BilingualSegment{segment(" again")})
	require.ErrorIs(t, a.Copy(), ErrAlreadyCopied)
	require.NoError(t, a.Finalize())

	require.Equal(t, []string{"hello"}, clip.texts)
	require.Equal(t, []string{"Transcription copied."}, notify.notices)
}

func TestAutoCopyShouldCopy(t *testing.T) {
	start := time.Now()
	a := NewAutoCopy(AutoCopyConfig{MaxDurationHours: 1, MaxSizeBytes: 5}, plainFormatter, &fakeClipboard{}, &fakeNotifier{}, start)
	a.now = func() time.Time { return start }

	require.True(t, a.ShouldCopy())

	a.Add([]transcribe.BilingualSegment{segment("hello")})
	require.True(t, a.ShouldCopy())

	a.Add([]transcribe.BilingualSegment{segment("!")})
	require.False(t, a.ShouldCopy())
	require.ErrorIs(t, a.Copy(), ErrSizeExceeded)

	a = NewAutoCopy(AutoCopyConfig{MaxDurationHours: 1, MaxSizeBytes: 5}, plainFormatter, &fakeClipboard{}, &fakeNotifier{}, start)
	a.now = func() time.Time { return start.Add(2 * time.Hour) }
	a.Add([]transcribe.BilingualSegment{segment("hi")})
	require.False(t, a.ShouldCopy())
	require.ErrorIs(t, a.Copy(), ErrDurationExceeded)
}

func TestAutoCopyBanner(t *testing.T) {
	a := NewAutoCopy(AutoCopyConfig{MaxDurationHours: 2, MaxSizeBytes: 1048576}, plainFormatter, &fakeClipboard{}, &fakeNotifier{}, time.Now())
	require.Equal(t, "Auto-copy enabled (Session ID: abcd1234, Max Duration: 2 hours, Max Size: 1048576 bytes)", a.Banner("abcd1234"))
}

type fakePublisher struct {
	paths    []string
	messages []string
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, path, message string) (*model.Post, error) {
	p.paths = append(p.paths, path)
	p.messages = append(p.messages, message)
	return &model.Post{Message: message}, p.err
}

func TestExport(t *testing.T) {
	end := time.Date(2024, 5, 6, 10, 30, 0, 0, time.UTC)
	formatter := transcribe.Formatter{Mode: transcribe.OutputModeOriginal, Timestamps: true}

	newExport := func(t *testing.T, opts transcribe.ExportOptions, notify Notifier) *Export {
		t.Helper()
		e := NewExport(ExportConfig{
			Options: opts,
			Dir:     t.TempDir(),
			Metadata: transcribe.Metadata{
				SessionID: "abcd1234",
				Model:     "base.en",
			},
		}, formatter, notify)
		e.now = func() time.Time { return end }
		e.Add([]transcribe.BilingualSegment{
			{StartTS: 1000, EndTS: 2500, OriginalText: " hello", OriginalConfidence: 0.9},
			{StartTS: 2500, EndTS: 4000, OriginalText: " world", OriginalConfidence: 0.8},
		})
		return e
	}

	t.Run("auto filename", func(t *testing.T) {
		notify := &fakeNotifier{}
		e := newExport(t, transcribe.ExportOptions{Format: transcribe.ExportFormatJSON}, notify)
		require.Equal(t, "Export enabled (Session ID: abcd1234, Format: json, File: auto-generated)", e.Banner("abcd1234"))

		tr := e.Transcription()
		require.Equal(t, 2, tr.Metadata.TotalSegments)
		require.Equal(t, 3.0, tr.Metadata.TotalDurationSeconds)
		require.Equal(t, end, tr.Metadata.EndTime)

		require.NoError(t, e.Finalize())
		require.Equal(t, []string{"Export completed successfully."}, notify.notices)

		path := filepath.Join(e.cfg.Dir, "transcript_20240506_103000_abcd1234.json")
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var out struct {
			Metadata struct {
				SessionID     string `json:"session_id"`
				TotalSegments int    `json:"total_segments"`
			} `json:"metadata"`
			Segments []struct {
				Text string `json:"text"`
			} `json:"segments"`
		}
		require.NoError(t, json.Unmarshal(data, &out))
		require.Equal(t, "abcd1234", out.Metadata.SessionID)
		require.Equal(t, 2, out.Metadata.TotalSegments)
		require.Len(t, out.Segments, 2)
		require.Equal(t, "hello", out.Segments[0].Text)
	})

	t.Run("format from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.md")
		notify := &fakeNotifier{}
		e := newExport(t, transcribe.ExportOptions{File: path}, notify)
		require.Equal(t, transcribe.ExportFormatMarkdown, e.cfg.Options.Format)

		require.NoError(t, e.Finalize())
		_, err := os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("failure", func(t *testing.T) {
		notify := &fakeNotifier{}
		e := newExport(t, transcribe.ExportOptions{
			Format: transcribe.ExportFormatTXT,
			File:   filepath.Join(t.TempDir(), "missing", "out.txt"),
		}, notify)

		require.Error(t, e.Finalize())
		require.Equal(t, []string{"Export failed."}, notify.warns)
	})

	t.Run("publish", func(t *testing.T) {
		notify := &fakeNotifier{}
		e := newExport(t, transcribe.ExportOptions{Format: transcribe.ExportFormatTXT}, notify)
		pub := &fakePublisher{}
		e.SetPublisher(pub)

		require.NoError(t, e.Finalize())
		require.Equal(t, []string{filepath.Join(e.cfg.Dir, "transcript_20240506_103000_abcd1234.txt")}, pub.paths)
		require.Equal(t, []string{"Transcription of session abcd1234"}, pub.messages)
		require.Equal(t, []string{"Export completed successfully.", "Transcription published."}, notify.notices)
	})

	t.Run("publish failure", func(t *testing.T) {
		notify := &fakeNotifier{}
		e := newExport(t, transcribe.ExportOptions{Format: transcribe.ExportFormatTXT}, notify)
		e.SetPublisher(&fakePublisher{err: fmt.Errorf("unreachable")})

		require.EqualError(t, e.Finalize(), "failed to publish export: unreachable")
		require.Equal(t, []string{"Publish failed."}, notify.warns)
	})
}

func TestMeeting(t *testing.T) {
	now := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)

	newMeeting := func(t *testing.T, name string, org meeting.Organizer, notify Notifier) *Meeting {
		t.Helper()
		m := NewMeeting(MeetingConfig{
			SessionID: "abcd1234",
			Prompt:    "Organize: " + meeting.Placeholder,
			Name:      name,
			Dir:       t.TempDir(),
		}, plainFormatter, org, notify)
		m.now = func() time.Time { return now }
		m.Add([]transcribe.BilingualSegment{segment("hello"), segment("world")})
		return m
	}

	t.Run("organized", func(t *testing.T) {
		org := &fakeOrganizer{out: "# Notes"}
		notify := &fakeNotifier{}
		m := newMeeting(t, "", org, notify)
		require.Equal(t, "hello world", m.Transcript())

		require.NoError(t, m.Finalize())
		require.Equal(t, []string{"Organize: hello world"}, org.prompts)

		path := filepath.Join(m.cfg.Dir, "meeting-2024-05-06.md")
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "# Notes", string(data))
		require.Equal(t, "Meeting transcription processed and saved to: "+path, notify.notices[len(notify.notices)-1])
	})

	t.Run("absolute name", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "review.md")
		notify := &fakeNotifier{}
		m := newMeeting(t, path, &fakeOrganizer{out: "# Notes"}, notify)
		require.Equal(t, "Meeting mode enabled (Session ID: abcd1234, Output: "+path+")", m.Banner("abcd1234"))

		require.NoError(t, m.Finalize())
		_, err := os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("fallback", func(t *testing.T) {
		for _, err := range []error{meeting.ErrUnavailable, errors.New("bad status")} {
			notify := &fakeNotifier{}
			m := newMeeting(t, "", &fakeOrganizer{err: err}, notify)

			require.NoError(t, m.Finalize())
			path := filepath.Join(m.cfg.Dir, "2024-05-06.md")
			data, rerr := os.ReadFile(path)
			require.NoError(t, rerr)
			require.True(t, strings.HasSuffix(string(data), "## Raw Transcription\n\nhello world"))
			require.Contains(t, string(data), "**Session ID**: abcd1234")
			require.Len(t, notify.warns, 1)
			require.Equal(t, "Transcription saved to: "+path, notify.notices[len(notify.notices)-1])
		}
	})

	t.Run("empty organizer output", func(t *testing.T) {
		notify := &fakeNotifier{}
		m := newMeeting(t, "", &fakeOrganizer{out: " \n"}, notify)

		require.NoError(t, m.Finalize())
		_, err := os.Stat(filepath.Join(m.cfg.Dir, "2024-05-06.md"))
		require.NoError(t, err)
	})

	t.Run("no content", func(t *testing.T) {
		org := &fakeOrganizer{}
		notify := &fakeNotifier{}
		m := NewMeeting(MeetingConfig{Dir: t.TempDir()}, plainFormatter, org, notify)

		require.NoError(t, m.Finalize())
		require.Empty(t, org.prompts)
		require.Equal(t, []string{"Meeting transcription skipped: no content."}, notify.notices)
	})
}

// chunkSource hands out one queued chunk per pull and cancels the stream once
// they are consumed.
type chunkSource struct {
	mu     sync.Mutex
	chunks [][]float32
	cancel context.CancelFunc
}

func (s *chunkSource) Get(_ int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		s.cancel()
		return nil
	}
	return s.chunks[0]
}

func (s *chunkSource) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) > 0 {
		s.chunks = s.chunks[1:]
	}
}

func (s *chunkSource) Resume() error { return nil }
func (s *chunkSource) Pause() error  { return nil }

type silentEngine struct {
	calls int
}

func (e *silentEngine) Transcribe(samples []float32, _ transcribe.Options) ([]transcribe.Segment, error) {
	e.calls++
	return []transcribe.Segment{{EndTS: int64(len(samples) / 16)}}, nil
}

func (e *silentEngine) IsMultilingual() bool { return false }
func (e *silentEngine) Destroy() error       { return nil }

func TestStreamExportEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const rate = 16000
	src := &chunkSource{cancel: cancel}
	for range 3 {
		src.chunks = append(src.chunks, make([]float32, 3*rate))
	}

	engine := &silentEngine{}
	merger, err := transcribe.NewMerger(transcribe.OutputModeOriginal, engine, nil)
	require.NoError(t, err)

	formatter := transcribe.Formatter{Mode: transcribe.OutputModeOriginal}
	notify := &fakeNotifier{}
	exp := NewExport(ExportConfig{
		Options:  transcribe.ExportOptions{Format: transcribe.ExportFormatJSON},
		Dir:      t.TempDir(),
		Metadata: transcribe.Metadata{SessionID: "e2e"},
	}, formatter, notify)
	sess := New("e2e", time.Now(), exp)

	var out, msgs strings.Builder
	printer := stream.NewPrinter(stream.PrinterConfig{Formatter: formatter}, &out, &msgs, nil)

	c, err := stream.NewController(stream.Config{
		StepMs:     3000,
		LengthMs:   10000,
		KeepMs:     200,
		SampleRate: rate,
	}, src, merger, nil, sess, printer)
	require.NoError(t, err)

	require.NoError(t, c.Run(ctx))
	require.Equal(t, stream.StateFinalized, c.State())
	require.Equal(t, 3, engine.calls)

	require.Len(t, exp.Records(), 3)
	var spans [][2]int64
	for _, r := range exp.Records() {
		require.Empty(t, r.Text)
		spans = append(spans, [2]int64{r.StartTS, r.EndTS})
	}
	require.Equal(t, [][2]int64{{0, 3000}, {0, 6000}, {5800, 9000}}, spans)
	require.Equal(t, 9.0, exp.Transcription().Metadata.TotalDurationSeconds)
	require.Equal(t, []string{"Export completed successfully."}, notify.notices)

	matches, err := filepath.Glob(filepath.Join(exp.cfg.Dir, "transcript_*_e2e.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
}
