package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/dtroode/ttldump/internal/api/http/router"
	"github.com/dtroode/ttldump/internal/blob"
	"github.com/dtroode/ttldump/internal/config"
	"github.com/dtroode/ttldump/internal/logger"
	"github.com/dtroode/ttldump/internal/model"
	"github.com/dtroode/ttldump/internal/repository/bolt"
	"github.com/dtroode/ttldump/internal/repository/cached"
	"github.com/dtroode/ttldump/internal/repository/memory"
	"github.com/dtroode/ttldump/internal/repository/postgres"
	"github.com/dtroode/ttldump/internal/server"
	"github.com/dtroode/ttldump/internal/service"
	"github.com/dtroode/ttldump/internal/storage/filesystem"
	storage "github.com/dtroode/ttldump/internal/storage/minio"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const shutdownTimeout = 10 * time.Second

func main() {
	time.Local = time.UTC

	rootCmd := &cobra.Command{
		Use:   "ttldump",
		Short: "Ephemeral content dump server",
		Long: strings.TrimSpace(`
Accepts text, passphrase-encrypted text and file uploads, serves them back for
ten minutes and then deletes them.

Running with no arguments starts the server.
		`),
		Example: strings.TrimSpace(`
# start the server on $HTTP_PORT
ttldump serve

# remove expired dumps once, e.g. from host cron
ttldump cleanup
		`),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	// ttldump serve
	{
		cmd := &cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			Long: strings.TrimSpace(`
Starts the HTTP API together with the periodic reaper. Configuration is read
from the environment.
			`),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		}
		rootCmd.AddCommand(cmd)
	}

	// ttldump cleanup
	{
		cmd := &cobra.Command{
			Use:   "cleanup",
			Short: "Remove expired dumps and their files once",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCleanup(cmd.Context())
			},
		}
		rootCmd.AddCommand(cmd)
	}

	// ttldump version
	{
		cmd := &cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, args []string) {
				logAppVersion()
			},
		}
		rootCmd.AddCommand(cmd)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app holds the wired backends shared by every command.
type app struct {
	cfg         *config.Config
	logger      *logger.Logger
	dumpService *service.Dump
	reaper      *service.Reaper
	closers     []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("failed to close resource", "error", err)
		}
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		logger: logger.New(cfg.LogLevel),
	}

	dumpStore, err := a.openDumpStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	blobStore, err := a.openBlobStore()
	if err != nil {
		a.Close()
		return nil, err
	}

	locator := blob.NewLocator(blobStore, blob.Policy(cfg.Blob.Policy))
	a.reaper = service.NewReaper(dumpStore, locator, a.logger)

	var opportunistic *service.Reaper
	if cfg.Reaper.OnRequest {
		opportunistic = a.reaper
	}
	a.dumpService = service.NewDump(dumpStore, locator, opportunistic, a.logger.Component("dump"))

	return a, nil
}

func (a *app) openDumpStore(ctx context.Context) (model.DumpStore, error) {
	var store model.DumpStore

	switch a.cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := postgres.NewConnection(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store = postgres.NewDumpRepository(db)

	case config.StoreDriverBolt:
		repo, err := bolt.Open(a.cfg.Store.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		store = repo

	case config.StoreDriverMemory:
		a.logger.Warn("using in-memory store, dumps are lost on restart")
		store = memory.NewDumpRepository()
	}

	a.logger.Info("dump store ready", "driver", a.cfg.Store.Driver)

	if a.cfg.Store.CacheSize > 0 {
		return cached.NewDumpRepository(store, a.cfg.Store.CacheSize), nil
	}
	return store, nil
}

func (a *app) openBlobStore() (model.BlobStore, error) {
	if blob.Policy(a.cfg.Blob.Policy) == blob.PolicyInline {
		return nil, nil
	}

	switch a.cfg.Blob.Driver {
	case config.BlobDriverMinio:
		minioClient, err := minio.New(a.cfg.Storage.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(a.cfg.Storage.AccessKey, a.cfg.Storage.SecretKey, ""),
			Secure: a.cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
		return storage.NewClient(minioClient, a.cfg.Storage.Bucket), nil

	case config.BlobDriverFilesystem:
		return filesystem.NewStore(a.cfg.Blob.Dir), nil
	}

	return nil, fmt.Errorf("unknown blob driver %q", a.cfg.Blob.Driver)
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	logAppVersion()

	a.reaper.Start(ctx, a.cfg.Reaper.Interval)
	defer a.reaper.Stop()

	r := router.New(a.dumpService, a.reaper, a.cfg.HTTP.MaxUploadBytes, a.logger)
	httpServer := server.NewHTTPServer(r.Register(), fmt.Sprintf(":%s", a.cfg.HTTP.Port))

	var sl model.SecurityLayer
	if a.cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(a.cfg.HTTP.CertFileName, a.cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		a.logger.Info("Starting server on", "address", s.Address(), "https", a.cfg.HTTP.EnableHTTPS)
		if err := s.Start(sl); err != nil {
			errCh <- err
		}
	}(httpServer)

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("received interruption signal, shutting down")
	case serveErr = <-errCh:
		a.logger.Error("failed to start server", "error", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("error during server shutdown", "error", err, "address", httpServer.Address())
	}

	wg.Wait()
	a.logger.Info("shutdown complete")

	return serveErr
}

func runCleanup(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	deleted, err := a.reaper.Sweep(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("cleanup failed: %w", err)
	}

	fmt.Printf("Deleted %d expired dumps\n", deleted)
	return nil
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
