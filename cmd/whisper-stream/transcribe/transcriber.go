package transcribe

import (
	"errors"
)

var ErrNotMultilingual = errors.New("model is not multilingual")

// Engine is a speech-to-text backend. Implementations are not safe for
// concurrent use: a single handle must only run one Transcribe call at a time.
type Engine interface {
	Transcribe(samples []float32, opts Options) ([]Segment, error)
	IsMultilingual() bool
	Destroy() error
}

type Options struct {
	// Translate the audio to English instead of transcribing it.
	Translate bool
	// Token history used as decoding context. Ignored when nil.
	Prompt []int32
}

type Token struct {
	ID      int32
	Text    string
	P       float32
	Special bool
}

// Segment is a single transcribed span. Timestamps are in milliseconds
// relative to the start of the samples passed to the engine.
type Segment struct {
	Text        string
	StartTS     int64
	EndTS       int64
	Confidence  float32
	SpeakerTurn bool
	Tokens      []Token
}

// MeanTokenP returns the mean probability of the given tokens, or zero if
// there are none.
func MeanTokenP(tokens []Token) float32 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float32
	for _, tk := range tokens {
		sum += tk.P
	}
	return sum / float32(len(tokens))
}

func (s Segment) overlaps(o Segment) bool {
	return max(s.StartTS, o.StartTS) < min(s.EndTS, o.EndTS)
}

// BilingualSegment is the uniform merger output. Depending on the output mode
// only one side, or both, are populated.
type BilingualSegment struct {
	StartTS            int64
	EndTS              int64
	OriginalText       string
	OriginalConfidence float32
	EnglishText        string
	EnglishConfidence  float32
	SpeakerTurn        bool

	// Tokens of the primary pass, used for colored output.
	Tokens []Token
}
