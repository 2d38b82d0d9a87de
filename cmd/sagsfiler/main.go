package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wouterc/sagsfiler/internal/cli"
	"github.com/wouterc/sagsfiler/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cmd := cli.NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
