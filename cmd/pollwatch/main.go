package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/live-poll/internal/logging"
	"github.com/DoyleJ11/live-poll/internal/watch"
	"github.com/DoyleJ11/live-poll/pkg/types"
)

func main() {
	server := flag.String("server", "http://localhost:3002", "poll server base URL")
	interval := flag.Duration("interval", watch.DefaultInterval, "pull interval for /api/state")
	level := flag.String("log-level", "warn", "log level")
	flag.Parse()

	log, err := logging.New(*level, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	render := func(snap types.StateSnapshot) {
		line, err := watch.Summary(snap)
		if err != nil {
			line = "waiting for a topic"
		}
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), line)
	}

	w, err := watch.New(*server, render, watch.WithInterval(*interval), watch.WithLogger(log.Named("watch")))
	if err != nil {
		log.Fatal("watcher", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		log.Fatal("watch stopped", zap.Error(err))
	}
}
