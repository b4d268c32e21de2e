package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/ecf/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.Execute(ctx)
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "error:", err)
	switch {
	case errors.Is(err, cli.ErrConfig):
		os.Exit(2)
	case errors.Is(err, context.Canceled):
		os.Exit(1)
	default:
		os.Exit(1)
	}
}
