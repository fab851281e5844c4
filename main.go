package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"pride-store/internal/api"
	"pride-store/internal/archive"
	"pride-store/internal/config"
	gc "pride-store/internal/globalconst"
	"pride-store/internal/logger"
	"pride-store/internal/metrics"
	"pride-store/internal/persistence"
	"pride-store/internal/pgstore"
	"pride-store/internal/query"
	"pride-store/internal/reconcile"
	"pride-store/internal/repository"
	"pride-store/internal/sqlstore"
	"pride-store/internal/store"
	"pride-store/internal/wal"
)

// backend is an opened store together with the hooks its backend needs around the server's life.
type backend struct {
	store store.Store
	// source feeds the backup manager.
	source persistence.Source
	// snapshots is nil for the database backends and when snapshots are disabled.
	snapshots *persistence.SnapshotManager
	closers   []func() error
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Error().Err(err).Msg("Error closing backend")
		}
	}
}

func main() {
	envFile := flag.String("env", "", "Path of a .env file (default: .env in the working directory)")
	restoreName := flag.String("restore", "", "Restore the named backup before serving")
	flag.Parse()

	var cfg config.Config
	if *envFile != "" {
		cfg = config.LoadConfig(*envFile)
	} else {
		cfg = config.LoadConfig()
	}

	lg := logger.InitGlobalLogger(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if err := run(cfg, *restoreName, lg); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with an error")
	}
}

func run(cfg config.Config, restoreName string, lg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.NewMetrics(reg)

	srvLog := lg.Component("server")
	lg.LogServerStart(cfg.Port, cfg.Backend)
	b, err := openBackend(ctx, cfg, restoreName, mt)
	if err != nil {
		return err
	}
	defer b.close()

	exec := query.NewExecutor(b.store, cfg.QueryTimeout, mt)
	reconciler := reconcile.NewService(b.store, exec, reconcile.Options{
		WriteTimeout: cfg.WriteTimeout,
		Retries:      cfg.UpsertRetries,
		Metrics:      mt,
	})
	arch := archive.New(b.store, exec, reconciler, repository.Options{
		UniqueNaturalKeys: cfg.UniqueNaturalKeys,
		Workers:           cfg.WorkerPoolSize,
	})
	if err := arch.Setup(ctx); err != nil {
		return fmt.Errorf("failed to prepare indexes: %w", err)
	}

	if b.snapshots != nil {
		b.snapshots.Start()
	}

	backupOpts := persistence.BackupOptions{
		Dir:       filepath.Join(cfg.DataDir, gc.BackupsDirName),
		Interval:  cfg.BackupInterval,
		Retention: cfg.BackupRetention,
		Metrics:   mt,
	}
	if cfg.S3Bucket != "" {
		uploader, err := persistence.NewS3Uploader(ctx, persistence.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to configure S3 backups: %w", err)
		}
		backupOpts.Uploader = uploader
	}
	backups := persistence.NewBackupManager(b.source, backupOpts)
	backups.Start()

	auth, err := api.NewAuthenticator(cfg.AdminUser, cfg.AdminPassword)
	if err != nil {
		return err
	}
	handlers := api.NewHandlers(arch.Registry(), api.Options{Metrics: mt, Auth: auth, Backups: backups})

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handlers.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		lg.LogServerReady(cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		srvLog.Info().Msg("Termination signal received. Attempting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("could not start server: %w", err)
		}
	}
	lg.LogServerShutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		srvLog.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		srvLog.Info().Msg("HTTP server gracefully stopped.")
	}

	backups.Stop()
	if b.snapshots != nil {
		b.snapshots.Stop()
		srvLog.Info().Msg("Taking final snapshot before exit...")
		if err := b.snapshots.Snapshot(); err != nil {
			srvLog.Error().Err(err).Msg("Final snapshot failed; the write-ahead log still holds the changes")
		}
	}
	srvLog.Info().Msg("Shutdown complete.")
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, restoreName string, mt *metrics.Metrics) (*backend, error) {
	backupsDir := filepath.Join(cfg.DataDir, gc.BackupsDirName)

	if cfg.Backend == config.BackendPostgres {
		return openPostgres(ctx, cfg, backupsDir, restoreName)
	}

	if cfg.Backend == config.BackendSQLite {
		if restoreName != "" {
			if err := persistence.RestoreSQLite(backupsDir, restoreName, cfg.SQLitePath); err != nil {
				return nil, err
			}
		}
		db, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", db.Path()).Msg("SQLite backend opened")
		return &backend{
			store: db,
			source: persistence.SourceFunc(func(ctx context.Context, dir string) error {
				return db.SnapshotTo(ctx, filepath.Join(dir, gc.SQLiteBackupFile))
			}),
			closers: []func() error{db.Close},
		}, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	ms := store.NewMemStore(cfg.NumShards)
	b := &backend{store: ms, source: persistence.CollectionsSource(ms.Manager())}
	walPath := filepath.Join(cfg.DataDir, gc.WalFileName)

	switch {
	case restoreName != "":
		if err := persistence.Restore(backupsDir, restoreName, ms.Manager()); err != nil {
			return nil, err
		}
		// Entries logged before the restore must never be replayed over it.
		for _, p := range []string{walPath, walPath + ".1"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	case cfg.EnableSnapshots || cfg.EnableWal:
		if cfg.EnableSnapshots {
			n, err := persistence.LoadCollections(cfg.DataDir, ms.Manager())
			if err != nil {
				return nil, fmt.Errorf("failed to load snapshots: %w", err)
			}
			log.Info().Int("documents", n).Msg("Snapshots loaded")
		}
		if cfg.EnableWal {
			replayed, err := wal.Recover(walPath, ms)
			if err != nil {
				return nil, fmt.Errorf("failed to replay write-ahead log: %w", err)
			}
			log.Info().Int("entries", replayed).Msg("Write-ahead log replayed")
		}
	}

	var rotator persistence.Rotator
	if cfg.EnableWal {
		w, err := wal.New(walPath)
		if err != nil {
			return nil, err
		}
		ms.SetJournal(w)
		rotator = w
		b.closers = append(b.closers, w.Close)
	}

	if cfg.EnableSnapshots {
		b.snapshots = persistence.NewSnapshotManager(ms.Manager(), cfg.DataDir, cfg.SnapshotInterval, rotator, mt)
		// Folds the replayed log (and any torn tail) into a fresh snapshot.
		if err := b.snapshots.Snapshot(); err != nil {
			b.close()
			return nil, fmt.Errorf("initial snapshot failed: %w", err)
		}
	}
	return b, nil
}

func openPostgres(ctx context.Context, cfg config.Config, backupsDir, restoreName string) (*backend, error) {
	// Read the backup before connecting, so a bad name fails without touching the database.
	var snaps map[string]store.CollectionSnapshot
	if restoreName != "" {
		var err error
		if snaps, err = persistence.ReadBackup(backupsDir, restoreName); err != nil {
			return nil, err
		}
	}
	pg, err := pgstore.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	for name, snap := range snaps {
		if err := pg.Import(ctx, name, snap); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("failed to restore collection '%s': %w", name, err)
		}
	}
	if snaps != nil {
		log.Info().Str("backup", restoreName).Int("collections", len(snaps)).Msg("Restore completed")
	}
	return &backend{
		store: pg,
		source: persistence.SourceFunc(func(ctx context.Context, dir string) error {
			snaps, err := pg.Export(ctx)
			if err != nil {
				return err
			}
			return persistence.WriteSnapshots(dir, snaps)
		}),
		closers: []func() error{pg.Close},
	}, nil
}
