package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tileduel/tileduel-backend/internal/board"
	"github.com/tileduel/tileduel-backend/internal/config"
	"github.com/tileduel/tileduel-backend/internal/engine"
	"github.com/tileduel/tileduel-backend/internal/httpapi"
	"github.com/tileduel/tileduel-backend/internal/hub"
	"github.com/tileduel/tileduel-backend/internal/lobby"
	"github.com/tileduel/tileduel-backend/internal/session"
	"github.com/tileduel/tileduel-backend/internal/settlement"
	"github.com/tileduel/tileduel-backend/internal/store"
	"github.com/tileduel/tileduel-backend/internal/ws"
	"github.com/tileduel/tileduel-backend/pkg/types"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}

	// The hub needs a snapshot source and the coordinator needs the hub
	// as its publisher; the closure breaks the construction cycle.
	var coord *lobby.Coordinator
	h := hub.NewHub(ctx, func() types.LobbyEvent { return coord.SnapshotEvent() }, log)
	coord = lobby.NewCoordinator(h)

	wallet := settlement.NewStubWallet(log)
	svc := session.NewService(st, board.NewGenerator(nil), coord, wallet, cfg.PairCount, log)
	if err := svc.ReloadLobby(ctx); err != nil {
		log.Fatal("failed to reload lobby", zap.Error(err))
	}

	sched, err := startPayoutRetry(cfg, st, wallet, log)
	if err != nil {
		log.Fatal("failed to start payout retry job", zap.Error(err))
	}
	defer func() { _ = sched.Shutdown() }()

	rules := engine.DefaultRules()
	rules.CountdownTicks = cfg.CountdownTicks
	rules.RoundSeconds = cfg.RoundSeconds

	handler := httpapi.SetupRoutes(
		httpapi.NewServer(svc, coord, log),
		ws.LobbyHandler(h, log),
		ws.PlayHandler(svc, ws.PlayConfig{Rules: rules, RevealDelay: cfg.RevealDelay}, log),
	)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}

func openStore(cfg config.Config, log *zap.Logger) (store.SessionStore, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, sessions will not survive restarts")
		return store.NewMemoryStore(), nil
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return store.NewPostgresStore(db, log)
}

func startPayoutRetry(cfg config.Config, st store.SessionStore, payer settlement.Payer, log *zap.Logger) (gocron.Scheduler, error) {
	retrier := settlement.NewRetrier(st, payer, log)

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(cfg.PayoutRetryInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.PayoutRetryInterval)
			defer cancel()
			if err := retrier.Run(ctx); err != nil {
				log.Warn("payout retry pass failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}
