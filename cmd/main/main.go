package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/menusync/internal/cli"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		log.Errorf("menusync exited with error: %v", err)
		stop()
		os.Exit(1)
	}
}
