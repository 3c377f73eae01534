package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/coursedeck/internal/config"
	"github.com/conorfennell/coursedeck/internal/library"
	"github.com/conorfennell/coursedeck/internal/logging"
	"github.com/conorfennell/coursedeck/internal/progress"
	"github.com/conorfennell/coursedeck/internal/scheduler"
	"github.com/conorfennell/coursedeck/internal/selector"
	"github.com/conorfennell/coursedeck/internal/storage"
	"github.com/conorfennell/coursedeck/internal/study"
	decksync "github.com/conorfennell/coursedeck/internal/sync"
	"github.com/conorfennell/coursedeck/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "coursedeck: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := config.Flags("coursedeck")
	addSource := flags.String("add-source", "", "Register a deck source (local path or git URL) and exit")
	syncOnly := flags.Bool("sync-only", false, "Run a single sync of all sources and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	log.Info("database opened", "driver", cfg.Database.Driver)

	syncer := decksync.New(db, cfg.Sync.ReposDir, log)

	if *addSource != "" {
		source, err := syncer.AddSource(ctx, *addSource)
		if err != nil {
			return err
		}
		fmt.Printf("Source %d: %s (%s)\n", source.ID, source.Path, source.Type)
		return nil
	}
	if *syncOnly {
		report, err := syncer.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d sources: %d decks, %d cards, %d removed, %d errors.\n",
			report.Sources, report.Decks, report.Cards, report.Removed, len(report.Errors))
		for _, e := range report.Errors {
			fmt.Printf("- %s\n", e)
		}
		return nil
	}

	var store progress.Store = db
	if cfg.Progress.Backend == "file" {
		store = progress.NewFileStore(cfg.Progress.Path)
		log.Info("progress kept in file", "path", cfg.Progress.Path)
	}

	sel := selector.NewRandom()
	if cfg.Study.Seed != 0 {
		sel = selector.NewSeeded(cfg.Study.Seed)
	}

	lib, err := library.New(cfg.Library.OriginalsDir, cfg.Library.UploadsDir, cfg.Library.MaxUploadBytes())
	if err != nil {
		return err
	}

	srv, err := web.NewServer(web.Deps{
		Store:       db,
		Study:       study.NewService(db, progress.NewTracker(store, log), sel, log),
		Syncer:      syncer,
		Library:     lib,
		Log:         log,
		DefaultUser: cfg.Study.DefaultUser,
	})
	if err != nil {
		return err
	}

	if cfg.Sync.Interval > 0 {
		sched, err := scheduler.New(ctx, cfg.Sync.Interval, func(ctx context.Context) error {
			_, err := syncer.Run(ctx)
			return err
		}, log)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return serve(ctx, httpServer, log)
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, httpServer *http.Server, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}
