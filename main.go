package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/markis/coach/internal/args"
	"github.com/markis/coach/internal/client"
	"github.com/markis/coach/internal/config"
	"github.com/markis/coach/internal/logger"
	"github.com/markis/coach/internal/render"
	"github.com/markis/coach/internal/repl"
	"github.com/markis/coach/internal/session"
)

// main function to parse arguments and run the chat session.
func main() {
	if err := run(context.Background()); err != nil {
		if errors.Is(err, args.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	arguments, err := args.ParseArgs(*cfg, os.Args[1:])
	if err != nil {
		return err
	}

	logOpts := []logger.Option{
		logger.WithLevel(cfg.Log.Level),
		logger.WithFormat(cfg.Log.Format),
		logger.WithWriter(os.Stderr),
	}
	if arguments.JSONLogs {
		logOpts = append(logOpts, logger.WithJSON(true))
	}
	if arguments.Debug {
		logOpts = append(logOpts, logger.WithDebug(true), logger.WithSource(true))
	}
	log := logger.New(logOpts...)

	token, err := config.LoadToken()
	if err != nil && !errors.Is(err, config.ErrNoToken) {
		log.Warn("ignoring unreadable credentials", "error", err)
	}

	chatClient := client.New(arguments.Endpoint,
		client.WithHeaders(cfg.Headers),
		client.WithToken(token),
		client.WithLogger(log),
	)

	renderer := render.NewTerminalRenderer(os.Stdout, arguments.UsePlainText, cfg.Render.Wrap)
	sess := session.New(chatClient,
		session.WithLogger(log),
		session.WithFallback(cfg.FallbackMessage),
		session.WithObserver(func(snap session.Snapshot) {
			if err := renderer.Update(snap.Turns); err != nil {
				log.Error("failed to render answer", "error", err)
			}
		}),
	)
	defer sess.Close()
	log.Debug("session started", "session", sess.ID(), "endpoint", arguments.Endpoint, "interactive", arguments.Interactive)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	if arguments.Interactive {
		return repl.Run(ctx, repl.Options{
			Session:    sess,
			In:         os.Stdin,
			Out:        os.Stdout,
			Prompt:     render.UserPrompt(),
			Logger:     log,
			Interrupts: interrupts,
		})
	}

	return repl.Once(ctx, sess, arguments.Query(), interrupts)
}
