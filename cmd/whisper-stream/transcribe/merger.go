package transcribe

import (
	"fmt"
	"log/slog"
	"strings"
)

// Merger runs one or two inference passes over a chunk of audio and returns a
// uniform list of BilingualSegment regardless of the output mode.
type Merger struct {
	mode      OutputMode
	primary   Engine
	secondary Engine

	prompt     []int32
	lastTokens []int32
}

// NewMerger validates the mode against the engines. The secondary engine is
// only used (and required) in bilingual mode, where both passes must run on
// independent handles.
func NewMerger(mode OutputMode, primary, secondary Engine) (*Merger, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid output mode %q", mode)
	}

	if primary == nil {
		return nil, fmt.Errorf("invalid primary engine: should not be nil")
	}

	if mode.NeedsTranslation() && !primary.IsMultilingual() {
		return nil, fmt.Errorf("output mode %q requires a multilingual model: %w", mode, ErrNotMultilingual)
	}

	if mode == OutputModeBilingual {
		if secondary == nil {
			return nil, fmt.Errorf("invalid secondary engine: bilingual mode requires a second engine")
		}
		if secondary == primary {
			return nil, fmt.Errorf("invalid secondary engine: should not share the primary handle")
		}
	}

	return &Merger{
		mode:      mode,
		primary:   primary,
		secondary: secondary,
	}, nil
}

func (m *Merger) Mode() OutputMode {
	return m.mode
}

// RefreshPrompt makes the tokens produced by the last primary pass the decoding
// context of the next one.
func (m *Merger) RefreshPrompt() {
	m.prompt = append(m.prompt[:0], m.lastTokens...)
}

func (m *Merger) ClearPrompt() {
	m.prompt = nil
}

func (m *Merger) Prompt() []int32 {
	return m.prompt
}

func (m *Merger) Process(samples []float32) ([]BilingualSegment, error) {
	var prompt []int32
	if len(m.prompt) > 0 {
		prompt = m.prompt
	}

	primarySegs, err := m.primary.Transcribe(samples, Options{
		Translate: m.mode == OutputModeEnglish,
		Prompt:    prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run primary pass: %w", err)
	}
	m.storeTokens(primarySegs)

	switch m.mode {
	case OutputModeOriginal:
		out := make([]BilingualSegment, len(primarySegs))
		for i, s := range primarySegs {
			out[i] = BilingualSegment{
				StartTS:            s.StartTS,
				EndTS:              s.EndTS,
				OriginalText:       s.Text,
				OriginalConfidence: s.Confidence,
				SpeakerTurn:        s.SpeakerTurn,
				Tokens:             s.Tokens,
			}
		}
		return out, nil
	case OutputModeEnglish:
		out := make([]BilingualSegment, len(primarySegs))
		for i, s := range primarySegs {
			out[i] = BilingualSegment{
				StartTS:           s.StartTS,
				EndTS:             s.EndTS,
				EnglishText:       s.Text,
				EnglishConfidence: s.Confidence,
				SpeakerTurn:       s.SpeakerTurn,
				Tokens:            s.Tokens,
			}
		}
		return out, nil
	}

	translatedSegs, err := m.secondary.Transcribe(samples, Options{Translate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to run translation pass: %w", err)
	}

	return MergeBilingual(primarySegs, translatedSegs), nil
}

func (m *Merger) storeTokens(segs []Segment) {
	m.lastTokens = m.lastTokens[:0]
	for _, s := range segs {
		for _, tk := range s.Tokens {
			m.lastTokens = append(m.lastTokens, tk.ID)
		}
	}
}

// MergeBilingual aligns translated segments to the original ones. Every
// translated segment whose [start, end) interval overlaps an original segment
// contributes its text, in arrival order, and its confidence to the running
// mean of that segment. The order of the original segments is preserved.
func MergeBilingual(original, translated []Segment) []BilingualSegment {
	out := make([]BilingualSegment, 0, len(original))

	for _, o := range original {
		seg := BilingualSegment{
			StartTS:            o.StartTS,
			EndTS:              o.EndTS,
			OriginalText:       o.Text,
			OriginalConfidence: o.Confidence,
			SpeakerTurn:        o.SpeakerTurn,
			Tokens:             o.Tokens,
		}

		var texts []string
		var confSum float32
		for _, t := range translated {
			if !o.overlaps(t) {
				continue
			}
			texts = append(texts, t.Text)
			confSum += t.Confidence
		}

		if len(texts) > 0 {
			seg.EnglishText = strings.Join(texts, " ")
			seg.EnglishConfidence = confSum / float32(len(texts))
		} else if len(translated) > 0 {
			slog.Debug("no overlapping translation for segment",
				slog.Int64("startTS", o.StartTS), slog.Int64("endTS", o.EndTS))
		}

		out = append(out, seg)
	}

	return out
}
