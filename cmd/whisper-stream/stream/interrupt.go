package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/x/term"
)

const (
	keyCtrlC  = 0x03
	stopQuery = "Recording in progress. Stop and finish the session? [y/N] "
)

type Confirmer interface {
	// Confirm asks prompt and reports the answer. It returns ctx.Err() once
	// ctx is done.
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// TermConfirmer reads a single keystroke from a terminal in raw mode. In raw
// mode Ctrl+C arrives as a key rather than a signal, and counts as a yes.
type TermConfirmer struct {
	In  *os.File
	Out io.Writer
}

type keyRead struct {
	key byte
	err error
}

func (c TermConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	fd := c.In.Fd()

	// Nothing to ask without a terminal.
	if !term.IsTerminal(fd) {
		return true, nil
	}

	fmt.Fprint(c.Out, prompt)

	state, err := term.MakeRaw(fd)
	if err != nil {
		return false, fmt.Errorf("failed to set terminal raw mode: %w", err)
	}
	defer func() {
		if err := term.Restore(fd, state); err != nil {
			slog.Error("failed to restore terminal", slog.String("err", err.Error()))
		}
	}()

	// The read can't be interrupted. On cancellation the terminal is restored
	// and the pending read is left to consume the next key.
	readCh := make(chan keyRead, 1)
	go func() {
		var buf [1]byte
		_, err := c.In.Read(buf[:])
		readCh <- keyRead{key: buf[0], err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprint(c.Out, "\r\n")
		return false, ctx.Err()
	case r := <-readCh:
		fmt.Fprint(c.Out, "\r\n")
		if r.err != nil {
			return false, fmt.Errorf("failed to read answer: %w", r.err)
		}
		return isYes(r.key), nil
	}
}

func isYes(key byte) bool {
	return key == 'y' || key == 'Y' || key == keyCtrlC
}

type confirmation struct {
	ok  bool
	err error
}

// WatchInterrupts cancels the stream on interrupt. While a capture session is
// live the user is asked to confirm first, otherwise the stream stops
// immediately. A second interrupt while the question is pending stops the
// stream without an answer. It returns once cancel has been called or ctx is
// done.
func WatchInterrupts(ctx context.Context, sigCh <-chan os.Signal, state func() State, confirm Confirmer, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			slog.Debug("received signal", slog.String("signal", sig.String()))

			if !state().Live() {
				cancel()
				return
			}

			if !awaitConfirmation(ctx, sigCh, confirm) {
				if ctx.Err() != nil {
					return
				}
				slog.Info("continuing recording")
				continue
			}

			cancel()
			return
		}
	}
}

// awaitConfirmation reports whether the stream should stop.
func awaitConfirmation(ctx context.Context, sigCh <-chan os.Signal, confirm Confirmer) bool {
	confirmCtx, cancelConfirm := context.WithCancel(ctx)
	defer cancelConfirm()

	resCh := make(chan confirmation, 1)
	go func() {
		ok, err := confirm.Confirm(confirmCtx, stopQuery)
		resCh <- confirmation{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		return false
	case sig := <-sigCh:
		slog.Info("received second interrupt, stopping", slog.String("signal", sig.String()))
		return true
	case res := <-resCh:
		if res.err != nil {
			slog.Error("failed to confirm interrupt", slog.String("err", res.err.Error()))
			return true
		}
		return res.ok
	}
}
