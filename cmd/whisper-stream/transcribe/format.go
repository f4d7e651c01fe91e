package transcribe

import (
	"strings"
)

const speakerTurnMark = " [SPEAKER_TURN]"

// Formatter renders merged segments for the console and the session
// accumulators, according to the output mode.
type Formatter struct {
	Mode       OutputMode
	Language   string
	Timestamps bool
}

// LangLabel returns the prefix used for the original side of bilingual
// output.
func (f Formatter) LangLabel() string {
	if f.Language == "" || f.Language == "auto" {
		return "orig"
	}
	return f.Language
}

// TimestampPrefix returns the "[00:00:00.000 --> 00:00:01.000]  " prefix.
func (f Formatter) TimestampPrefix(seg BilingualSegment) string {
	return "[" + vttTS(seg.StartTS, true) + " --> " + vttTS(seg.EndTS, true) + "]  "
}

// Text returns the text of the side populated by the mode. In bilingual mode
// it is the original text.
func (f Formatter) Text(seg BilingualSegment) string {
	if f.Mode == OutputModeEnglish {
		return seg.EnglishText
	}
	return seg.OriginalText
}

// Line renders a segment the way it is printed and copied.
func (f Formatter) Line(seg BilingualSegment) string {
	var b strings.Builder

	turn := ""
	if seg.SpeakerTurn {
		turn = speakerTurnMark
	}

	if !f.Timestamps {
		if f.Mode == OutputModeBilingual {
			b.WriteString(f.LangLabel() + ": " + seg.OriginalText + "\n")
			b.WriteString("en: " + seg.EnglishText + "\n")
			return b.String()
		}
		return f.Text(seg)
	}

	prefix := f.TimestampPrefix(seg)
	if f.Mode == OutputModeBilingual {
		b.WriteString(prefix + f.LangLabel() + ": " + seg.OriginalText + "\n")
		b.WriteString(prefix + "en: " + seg.EnglishText + turn + "\n")
		return b.String()
	}

	b.WriteString(prefix + f.Text(seg) + turn + "\n")
	return b.String()
}

// Record converts a segment into an export record. The segment is expected on
// the stream timeline, whether or not the console shows timestamps.
func (f Formatter) Record(seg BilingualSegment) Record {
	r := Record{
		StartTS:     seg.StartTS,
		EndTS:       seg.EndTS,
		Text:        f.Text(seg),
		SpeakerTurn: seg.SpeakerTurn,
	}

	switch f.Mode {
	case OutputModeEnglish:
		r.Confidence = seg.EnglishConfidence
	case OutputModeBilingual:
		r.Text = f.LangLabel() + ": " + seg.OriginalText + "\nen: " + seg.EnglishText
		r.Confidence = (seg.OriginalConfidence + seg.EnglishConfidence) / 2
	default:
		r.Confidence = seg.OriginalConfidence
	}

	return r
}

// Plain returns the raw text used for meeting notes, without prefixes or
// timestamps.
func (f Formatter) Plain(seg BilingualSegment) string {
	if f.Mode == OutputModeBilingual {
		sep := " "
		if !f.Timestamps {
			sep = "\n"
		}
		return seg.OriginalText + " " + seg.EnglishText + sep
	}
	return f.Text(seg) + " "
}
