// Command trianswer runs the multi-style answer service and a small client
// for it.
//
//	trianswer serve                  start the HTTP server
//	trianswer ask -c demo "question" submit and print every style
//	trianswer history -c demo        print a conversation
//	trianswer clear -c demo          delete a conversation
//	trianswer theme [light|dark|toggle]
//
// A .env file in the working directory is loaded before flags are parsed.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
