// Package main provides the entry point for the lifesignal CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tojkuv/LifeSignal-sub007/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return
	}

	// Commands print their own failures; anything else came from flag or
	// argument parsing.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(cli.ExitCommandError)
	}
	cancel()
	os.Exit(exitErr.Code)
}
