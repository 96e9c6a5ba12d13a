// LangQuest - offline-first translation data tools.
//
// Operates the on-device LangQuest data directory: publishing, attachment
// transfers and migration backups.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/genesis-ai-dev/langquest-sub009/internal/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := cli.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
