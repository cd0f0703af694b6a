// Command lattice imports JSON documents into an object graph described by a
// YAML model, and exports objects back to JSON.
//
// Without --table every command works on an in-memory context. With --table
// objects are read from and saved to the DynamoDB object table, using the
// default AWS credential chain.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "lattice: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	slog.SetDefault(newLogger(os.Stderr, ll))

	root := newRootCmd(ll)
	root.SetOut(os.Stdout)
	return root.ExecuteContext(ctx)
}

// newLogger returns a tint logger writing to w. Colors are only used when w
// is a terminal.
func newLogger(w *os.File, level slog.Leveler) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(w.Fd()),
	}))
}
