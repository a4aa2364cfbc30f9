package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/aretw0/rentsync/internal/config"
	"github.com/aretw0/rentsync/internal/logging"
	"golang.org/x/term"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// shutdownCause describes why ctx ended, naming the signal when ctx is a SignalContext.
func shutdownCause(ctx context.Context) string {
	if sc, ok := ctx.(*SignalContext); ok {
		if sig := sc.Signal(); sig != nil {
			return sig.String()
		}
	}
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "server exited"
}

// createLogger configures the application logger on stderr,
// keeping stdout free for command output.
func createLogger(cfg config.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if strings.EqualFold(cfg.LogFormat, "json") {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(level)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w, or 0 when unknown.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}
