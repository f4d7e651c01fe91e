package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

// Notifier reports session events to the user.
type Notifier interface {
	Notice(msg string)
	Warn(msg string)
}

// Accumulator collects the segments of a stream and flushes them to its sink
// once, when the stream ends.
type Accumulator interface {
	Name() string
	Add(segs []transcribe.BilingualSegment)
	Finalize() error
}

// Session fans segments out to the enabled accumulators and finalizes them in
// the order they were added. It implements stream.Sink.
type Session struct {
	id    string
	start time.Time
	accs  []Accumulator
}

// New creates a session. id is shared with the accumulators, which receive
// it on construction.
func New(id string, start time.Time, accs ...Accumulator) *Session {
	return &Session{
		id:    id,
		start: start,
		accs:  accs,
	}
}

// NewID returns a short random session identifier.
func NewID() string {
	return uuid.NewString()[:8]
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Start() time.Time {
	return s.start
}

func (s *Session) Add(segs []transcribe.BilingualSegment) {
	for _, acc := range s.accs {
		acc.Add(segs)
	}
}

// Finalize runs every accumulator's finalizer even if an earlier one fails or
// panics.
func (s *Session) Finalize() {
	for _, acc := range s.accs {
		finalize(acc)
	}
}

func finalize(acc Accumulator) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("accumulator finalize panicked", slog.String("accumulator", acc.Name()), slog.Any("panic", r))
		}
	}()

	if err := acc.Finalize(); err != nil {
		slog.Error("failed to finalize accumulator", slog.String("accumulator", acc.Name()), slog.String("err", err.Error()))
	}
}
