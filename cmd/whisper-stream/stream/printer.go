package stream

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
)

const clearLine = "\x1b[2K\r"

// Red to green, lowest to highest token confidence.
var tokenColors = []lipgloss.Color{"196", "202", "208", "214", "220", "226", "190", "154", "118", "82"}

// tokenColor maps a token probability to an index in tokenColors. The cube
// spreads the high probabilities, where most tokens are.
func tokenColor(p float32) int {
	idx := int(math.Pow(float64(p), 3) * float64(len(tokenColors)))
	return max(0, min(len(tokenColors)-1, idx))
}

type PrinterConfig struct {
	Formatter    transcribe.Formatter
	VAD          bool
	PrintColors  bool
	PrintSpecial bool
}

// Printer writes the live transcript to the console and, optionally, to a
// file. The file never receives escape sequences.
type Printer struct {
	cfg  PrinterConfig
	out  io.Writer
	file io.Writer

	tokenStyles []lipgloss.Style
	noticeStyle lipgloss.Style
	warnStyle   lipgloss.Style
	msgOut      io.Writer
}

// NewPrinter creates a printer writing transcripts to out and notices to
// msgOut. file may be nil.
func NewPrinter(cfg PrinterConfig, out, msgOut, file io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	mr := lipgloss.NewRenderer(msgOut)

	p := &Printer{
		cfg:         cfg,
		out:         out,
		file:        file,
		msgOut:      msgOut,
		noticeStyle: mr.NewStyle().Foreground(lipgloss.Color("#06B6D4")),
		warnStyle:   mr.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	}

	for _, c := range tokenColors {
		p.tokenStyles = append(p.tokenStyles, r.NewStyle().Foreground(c))
	}

	return p
}

func (p *Printer) write(s string) {
	if _, err := io.WriteString(p.out, s); err != nil {
		slog.Error("failed to write output", slog.String("err", err.Error()))
	}
}

func (p *Printer) writeFile(s string) {
	if p.file == nil {
		return
	}
	if _, err := io.WriteString(p.file, s); err != nil {
		slog.Error("failed to write output file", slog.String("err", err.Error()))
	}
}

// Begin is called before the segments of a chunk are printed. In continuous
// mode it clears the line being redrawn, in VAD mode it prints the chunk
// header with its time span in milliseconds since the stream start.
func (p *Printer) Begin(iter int, t0, t1 int64) {
	if !p.cfg.VAD {
		p.write(clearLine + strings.Repeat(" ", 100) + clearLine)
		return
	}
	p.write(fmt.Sprintf("\n### Transcription %d START | t0 = %d ms | t1 = %d ms\n\n", iter, t0, t1))
}

func (p *Printer) Print(segs []transcribe.BilingualSegment) {
	colored := p.cfg.PrintColors && p.cfg.Formatter.Mode != transcribe.OutputModeBilingual

	for _, seg := range segs {
		line := p.cfg.Formatter.Line(seg)
		p.writeFile(line)

		if !colored {
			p.write(line)
			continue
		}

		var b strings.Builder
		if p.cfg.Formatter.Timestamps {
			b.WriteString(p.cfg.Formatter.TimestampPrefix(seg))
		}
		for _, tk := range seg.Tokens {
			if tk.Special && !p.cfg.PrintSpecial {
				continue
			}
			b.WriteString(p.tokenStyles[tokenColor(tk.P)].Render(tk.Text))
		}
		b.WriteString("\n")
		p.write(b.String())
	}
}

func (p *Printer) End(iter int) {
	p.writeFile("\n")
	if p.cfg.VAD {
		p.write(fmt.Sprintf("\n### Transcription %d END\n", iter))
	}
}

// NewLine commits the line being redrawn in continuous mode.
func (p *Printer) NewLine() {
	p.write("\n")
}

// Notice prints an informational message, outside of the transcript.
func (p *Printer) Notice(msg string) {
	fmt.Fprintln(p.msgOut, p.noticeStyle.Render(msg))
}

func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.msgOut, p.warnStyle.Render(msg))
}
