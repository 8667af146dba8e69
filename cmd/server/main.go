package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/live-poll/internal/archive"
	"github.com/DoyleJ11/live-poll/internal/auth"
	"github.com/DoyleJ11/live-poll/internal/catalog"
	"github.com/DoyleJ11/live-poll/internal/config"
	"github.com/DoyleJ11/live-poll/internal/engine"
	"github.com/DoyleJ11/live-poll/internal/httpapi"
	"github.com/DoyleJ11/live-poll/internal/logging"
	"github.com/DoyleJ11/live-poll/internal/poll"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}

	hash, err := passwordHash(cfg, log)
	if err != nil {
		return err
	}
	sessions, err := auth.NewRegistry(hash, auth.WithTTL(cfg.SessionTTL))
	if err != nil {
		return err
	}

	var store archive.Store = archive.NopStore{}
	if cfg.ArchiveDSN != "" {
		gs, err := archive.Open(cfg.ArchiveDSN)
		if err != nil {
			return err
		}
		store = gs
	}
	defer store.Close()
	recorder := archive.NewRecorder(store, 16, log.Named("archive"))

	state := engine.NewState(cat, engine.Rules{GraceWindow: engine.DefaultGraceWindow})
	p := poll.New(ctx, state,
		poll.WithLogger(log.Named("poll")),
		poll.OnClosed(recorder.Record),
	)

	srv := httpapi.NewServer(p, sessions, store, log.Named("http"))
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(srv, cfg.StaticDir, cfg.WSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.Int("topics", cat.Len()),
			zap.Bool("archive", cfg.ArchiveDSN != ""),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return recorder.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		p.Close()
		return err
	})

	return g.Wait()
}

func passwordHash(cfg config.Config, log *zap.Logger) ([]byte, error) {
	if cfg.AdminPasswordHash != "" {
		return []byte(cfg.AdminPasswordHash), nil
	}
	if cfg.UsesDefaultPassword() {
		log.Warn("admin password is the built-in default; set ADMIN_PASSWORD")
	}
	return auth.HashPassword(cfg.AdminPassword, bcrypt.DefaultCost)
}
