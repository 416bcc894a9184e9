// Package repl drives a session from the terminal, either for a single
// question or as an interactive loop.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/markis/coach/internal/logger"
	"github.com/markis/coach/internal/session"
)

const exitCommand = "/exit"

// Options wires the loop to its session and terminal.
type Options struct {
	Session *session.Session
	In      io.Reader
	Out     io.Writer
	Prompt  string
	Logger  *slog.Logger

	// Interrupts cancels the in-flight exchange; while idle it ends the loop.
	Interrupts <-chan os.Signal
}

// Once submits query, waits for the exchange to settle and returns the
// failure that ended it, if any.
func Once(ctx context.Context, sess *session.Session, query string, interrupts <-chan os.Signal) error {
	if err := sess.Submit(ctx, query); err != nil {
		return err
	}
	if !wait(ctx, sess, interrupts) {
		return ctx.Err()
	}
	return sess.Snapshot().Err
}

// Run reads one query per line until EOF, /exit, an idle interrupt or ctx
// cancellation. Failed exchanges are already in the transcript and do not
// stop the loop.
func Run(ctx context.Context, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(opts.In)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(opts.Out, opts.Prompt)

		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-opts.Interrupts:
			fmt.Fprintln(opts.Out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(opts.Out)
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}
			line = l
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}
		if query == exitCommand {
			return nil
		}

		if err := opts.Session.Submit(ctx, query); err != nil {
			log.Warn("query rejected", "error", err)
			continue
		}
		if !wait(ctx, opts.Session, opts.Interrupts) {
			return ctx.Err()
		}
		fmt.Fprintln(opts.Out)
	}
}

// wait blocks until the latest exchange has released its stream. An
// interrupt cancels the exchange. It returns false if ctx ended first.
func wait(ctx context.Context, sess *session.Session, interrupts <-chan os.Signal) bool {
	done := sess.Done()
	for {
		select {
		case <-done:
			return true
		case <-interrupts:
			sess.Cancel()
		case <-ctx.Done():
			sess.Cancel()
			<-done
			return false
		}
	}
}
