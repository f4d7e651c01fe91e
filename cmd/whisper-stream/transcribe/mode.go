package transcribe

type OutputMode string

const (
	OutputModeOriginal  OutputMode = "original"
	OutputModeEnglish   OutputMode = "english"
	OutputModeBilingual OutputMode = "bilingual"
)

func (m OutputMode) IsValid() bool {
	switch m {
	case OutputModeOriginal, OutputModeEnglish, OutputModeBilingual:
		return true
	default:
		return false
	}
}

// NeedsTranslation returns whether the mode requires a multilingual model.
func (m OutputMode) NeedsTranslation() bool {
	return m == OutputModeEnglish || m == OutputModeBilingual
}

// Passes returns the number of inference calls the mode performs per chunk.
func (m OutputMode) Passes() int {
	if m == OutputModeBilingual {
		return 2
	}
	return 1
}
