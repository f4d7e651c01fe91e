package meeting

import (
	"strings"
)

// Placeholder marks where the transcript goes in an organizer prompt.
const Placeholder = "[Paste raw transcription here]"

const DefaultPrompt = `You are an experienced meeting secretary. Turn the raw meeting transcription below into clear, structured notes.

## INPUT:
Raw meeting transcription: ` + Placeholder + `

## OUTPUT:

### 1. Meeting overview
- **Title**: a short descriptive title
- **Participants**: speakers that can be told apart
- **Type**: stand-up, planning, review, brainstorm or other

### 2. Summary
- **Goal** of the meeting
- **Outcomes**: three to five bullet points
- **Decisions** taken

### 3. Discussion by topic
For each topic: the points raised, the decisions made and the follow-ups.

### 4. Action items
| Task | Owner | Deadline | Priority |
|------|-------|----------|----------|

### 5. Open questions
Anything left unresolved, and who raised it.

## INSTRUCTIONS:
- Drop filler words and repetitions, and fix obvious transcription errors.
- Mark unclear passages with [?] instead of guessing.
- Keep it concise and easy to scan.
`

// BuildPrompt puts transcript in place of the placeholder of tmpl, or appends
// it when tmpl has none. An empty tmpl selects DefaultPrompt.
func BuildPrompt(tmpl, transcript string) string {
	if tmpl == "" {
		tmpl = DefaultPrompt
	}

	if strings.Contains(tmpl, Placeholder) {
		return strings.Replace(tmpl, Placeholder, transcript, 1)
	}

	return tmpl + "\n\n## RAW TRANSCRIPTION:\n" + transcript
}
