package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kkingfung/CavalryFight-sub004/internal/config"
	"github.com/kkingfung/CavalryFight-sub004/internal/httpapi"
	"github.com/kkingfung/CavalryFight-sub004/internal/hub"
	"github.com/kkingfung/CavalryFight-sub004/internal/results"
	"github.com/kkingfung/CavalryFight-sub004/internal/room"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink room.ResultsSink
	if cfg.ResultsDriver != "" {
		store, err := results.Open(cfg.ResultsDriver, cfg.ResultsDSN)
		if err != nil {
			logger.Fatal("open results store", zap.Error(err))
		}
		sink = store
	}

	h := hub.NewHub(ctx, logger, room.Options{
		StartCountdown:   cfg.StartCountdown,
		LatencyTolerance: cfg.LatencyTolerance,
		OriginDrift:      cfg.MaxOriginDrift,
		StartingAmmo:     cfg.StartingAmmo,
	}, sink)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpapi.SetupRoutes(h, logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})
	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
