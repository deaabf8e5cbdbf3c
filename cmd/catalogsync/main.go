// Package main wires together the catalog sync service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/plotline/catalog-sync/internal/api"
	"github.com/plotline/catalog-sync/internal/catalog"
	"github.com/plotline/catalog-sync/internal/clock/system"
	"github.com/plotline/catalog-sync/internal/config"
	"github.com/plotline/catalog-sync/internal/covers"
	"github.com/plotline/catalog-sync/internal/logging"
	"github.com/plotline/catalog-sync/internal/metrics"
	"github.com/plotline/catalog-sync/internal/normalize"
	gcsstorage "github.com/plotline/catalog-sync/internal/storage/gcs"
	memorystorage "github.com/plotline/catalog-sync/internal/storage/memory"
	"github.com/plotline/catalog-sync/internal/storage/postgres"
	syncer "github.com/plotline/catalog-sync/internal/sync"
	"github.com/plotline/catalog-sync/internal/upstream"

	memorypublish "github.com/plotline/catalog-sync/internal/publish/memory"
	pubsubpublish "github.com/plotline/catalog-sync/internal/publish/pubsub"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer pool.Close()

	stateStore := postgres.NewStateStore(pool)
	mangaStore := postgres.NewMangaStore(pool)
	deltaStore := postgres.NewDeltaStore(pool)
	coverStore := postgres.NewCoverStore(pool)
	artJobStore := postgres.NewArtJobStore(pool)
	runStore := postgres.NewRunStore(pool)

	var blobStore catalog.BlobStore
	if cfg.Storage.GCSBucket != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer gcsClient.Close() //nolint:errcheck
		blobStore, err = gcsstorage.New(ctx, gcsClient, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs bucket init failed", zap.Error(err))
		}
	} else {
		logger.Warn("no GCS bucket configured, caching covers in memory")
		blobStore = memorystorage.NewBlobStore()
	}

	var publisher catalog.Publisher
	if cfg.PubSub.ProjectID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer psClient.Close() //nolint:errcheck
		publisher, err = pubsubpublish.New(psClient)
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
	} else {
		logger.Warn("no pubsub project configured, publishing in memory")
		publisher = memorypublish.New()
	}

	clock := system.New()
	norm := normalize.New(normalize.Config{
		Source:       cfg.Upstream.Source,
		CoverBaseURL: cfg.Upstream.CoverBaseURL,
	})
	upstreamClient := upstream.New(upstream.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   cfg.UpstreamTimeout(),
		RPS:       cfg.Upstream.RPS,
		Burst:     cfg.Upstream.Burst,
	}, nil, norm)

	resolver := covers.NewResolver(&http.Client{Timeout: cfg.UpstreamTimeout()}, cfg.Upstream.UserAgent)
	coverLoader := covers.NewLoader(
		resolver,
		blobStore,
		coverStore,
		mangaStore,
		clock,
		cfg.Storage.Prefix,
		logger.Named("covers"),
	)

	runner := syncer.New(
		[]catalog.Feed{
			upstream.NewMangaFeed(upstreamClient),
			upstream.NewChapterFeed(upstreamClient, cfg.Upstream.Source),
		},
		upstreamClient,
		stateStore,
		mangaStore,
		deltaStore,
		artJobStore,
		runStore,
		coverLoader,
		publisher,
		clock,
		syncer.Config{
			PageLimit:  cfg.Sync.PageLimit,
			MaxPages:   cfg.Sync.MaxPages,
			Budget:     cfg.DefaultBudget(),
			MaxItems:   cfg.Sync.MaxItems,
			WindowCap:  cfg.Sync.WindowCap,
			SampleSize: cfg.Sync.SampleSize,
			Topic:      cfg.PubSub.TopicName,
		},
		logger.Named("sync"),
	)

	apiServer := api.NewServer(runner, stateStore, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
