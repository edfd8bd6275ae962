package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRequestFailed) {
			fmt.Fprintln(os.Stderr, "libraryctl:", err)
		}
		stop()
		os.Exit(1)
	}
}
