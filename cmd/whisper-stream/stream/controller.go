package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattermost/whisper-stream/cmd/whisper-stream/transcribe"
	"github.com/mattermost/whisper-stream/cmd/whisper-stream/vad"
)

var ErrInference = errors.New("inference failed")

type State int32

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
	StateStopping
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateStopping:
		return "stopping"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Live returns whether a capture session is open.
func (s State) Live() bool {
	return s == StateRecording || s == StateProcessing
}

// Processor turns a chunk of audio into merged segments. It's implemented by
// transcribe.Merger.
type Processor interface {
	Process(samples []float32) ([]transcribe.BilingualSegment, error)
	RefreshPrompt()
	ClearPrompt()
}

// Sink receives every processed segment and is finalized once when the
// stream ends.
type Sink interface {
	Add(segs []transcribe.BilingualSegment)
	Finalize()
}

// Controller runs the capture and inference loop until its context is
// canceled or inference fails.
type Controller struct {
	cfg     Config
	src     Source
	proc    Processor
	sink    Sink
	printer *Printer

	window *Window
	gate   *Gate

	state atomic.Int32
	now   func() time.Time
	sleep func(time.Duration)
}

// NewController creates a controller. classifier is only used, and required,
// in VAD mode.
func NewController(cfg Config, src Source, proc Processor, classifier vad.Classifier, sink Sink, printer *Printer) (*Controller, error) {
	cfg.Normalize()
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	if src == nil {
		return nil, fmt.Errorf("invalid source: should not be nil")
	}
	if proc == nil {
		return nil, fmt.Errorf("invalid processor: should not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("invalid sink: should not be nil")
	}
	if printer == nil {
		return nil, fmt.Errorf("invalid printer: should not be nil")
	}
	if cfg.VAD() && classifier == nil {
		return nil, fmt.Errorf("invalid classifier: VAD mode requires a classifier")
	}

	c := &Controller{
		cfg:     cfg,
		src:     src,
		proc:    proc,
		sink:    sink,
		printer: printer,
		now:     time.Now,
		sleep:   time.Sleep,
	}

	if cfg.VAD() {
		c.gate = NewGate(cfg, classifier, time.Time{})
	} else {
		c.window = NewWindow(cfg)
	}

	return c, nil
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		slog.Debug("stream state changed", slog.String("from", old.String()), slog.String("to", s.String()))
	}
}

// Run starts capturing and processes chunks until ctx is done. Whatever ends
// the loop, capture is paused and the sink finalized before returning. An
// inference failure is returned wrapping ErrInference.
func (c *Controller) Run(ctx context.Context) error {
	if c.State() != StateIdle {
		return fmt.Errorf("controller already started")
	}

	if err := c.src.Resume(); err != nil {
		c.setState(StateFinalized)
		return fmt.Errorf("failed to resume audio capture: %w", err)
	}
	c.setState(StateRecording)

	err := c.loop(ctx)

	c.stop()

	return err
}

func (c *Controller) stop() {
	c.setState(StateStopping)

	if err := c.src.Pause(); err != nil {
		slog.Error("failed to pause audio capture", slog.String("err", err.Error()))
	}

	c.sink.Finalize()

	c.setState(StateFinalized)
}

func (c *Controller) loop(ctx context.Context) error {
	start := c.now()
	if c.gate != nil {
		c.gate.last = start
		c.gate.now = c.now
		c.gate.sleep = c.sleep
	} else {
		c.window.sleep = c.sleep
	}

	for iter := 0; ; iter++ {
		chunk, t1, ok := c.next(ctx)
		if !ok {
			return nil
		}

		c.setState(StateProcessing)

		if !c.cfg.KeepContext {
			c.proc.ClearPrompt()
		}

		segs, err := c.proc.Process(chunk)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInference, err)
		}

		var t1Ms int64
		if c.cfg.VAD() {
			t1Ms = t1.Sub(start).Milliseconds()
		} else {
			t1Ms = c.window.ConsumedMs()
		}
		t0 := max(0, t1Ms-int64(len(chunk))*1000/int64(c.cfg.SampleRate))

		c.printer.Begin(iter, t0, t1Ms)
		c.printer.Print(segs)
		c.printer.End(iter)

		c.sink.Add(onTimeline(segs, t0, t1Ms))

		if c.window != nil && c.window.Advance(chunk) {
			c.printer.NewLine()
			if c.cfg.KeepContext {
				c.proc.RefreshPrompt()
			}
		}

		c.setState(StateRecording)
	}
}

// onTimeline moves chunk relative segments to the stream timeline, where the
// chunk spans [t0, t1). Segments without timing get the whole chunk.
func onTimeline(segs []transcribe.BilingualSegment, t0, t1 int64) []transcribe.BilingualSegment {
	out := make([]transcribe.BilingualSegment, len(segs))
	for i, seg := range segs {
		if seg.EndTS > seg.StartTS {
			seg.StartTS += t0
			seg.EndTS += t0
		} else {
			seg.StartTS, seg.EndTS = t0, t1
		}
		out[i] = seg
	}
	return out
}

func (c *Controller) next(ctx context.Context) ([]float32, time.Time, bool) {
	if c.gate != nil {
		return c.gate.Next(ctx, c.src)
	}
	chunk, ok := c.window.Next(ctx, c.src)
	return chunk, time.Time{}, ok
}
