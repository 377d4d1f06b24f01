package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/andrewrweber/pi-air"
)

func main() {
	cfg, err := piair.LoadConfig("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	monitor, err := piair.New(cfg)
	if err != nil {
		log.Fatalf("build monitor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitor.Run(ctx); err != nil {
		log.Fatalf("monitor exited: %v", err)
	}
}
