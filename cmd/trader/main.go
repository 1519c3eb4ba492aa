package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/config"
	"github.com/vitos/strategy_autotrade/internal/domain"
	"github.com/vitos/strategy_autotrade/internal/infrastructure/logger"
	"github.com/vitos/strategy_autotrade/internal/infrastructure/market"
	sigsrc "github.com/vitos/strategy_autotrade/internal/infrastructure/signal"
	"github.com/vitos/strategy_autotrade/internal/infrastructure/storage"
	"github.com/vitos/strategy_autotrade/internal/usecase"
	"github.com/vitos/strategy_autotrade/internal/web"
	"go.uber.org/zap"
)

type ledgerStore interface {
	domain.TradeLedger
	domain.SessionRepository
}

func main() {
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	var store ledgerStore
	switch cfg.Ledger.Driver {
	case "sqlite":
		sqlStore, err := storage.NewSQLiteStore(cfg.Ledger.DSN)
		if err != nil {
			log.Fatal("Failed to init sqlite", zap.Error(err))
		}
		defer sqlStore.Close()
		store = sqlStore
	default:
		store = storage.NewMemoryStore()
	}

	// 4. Init Collaborators
	vocab, err := cfg.Vocabularies()
	if err != nil {
		log.Fatal("Invalid strategy vocabularies", zap.Error(err))
	}
	interpreter, err := usecase.NewSignalInterpreter(vocab)
	if err != nil {
		log.Fatal("Invalid strategy vocabularies", zap.Error(err))
	}

	source := sigsrc.NewHTTPSource(cfg.Signal.BaseURL, time.Duration(cfg.Signal.TimeoutMs)*time.Millisecond)

	feed, err := market.NewRandomWalkFeed(
		decimal.NewFromFloat(cfg.Market.Baseline),
		cfg.Market.MaxDeviationPct,
		cfg.Market.StepPct,
		cfg.Market.Seed,
	)
	if err != nil {
		log.Fatal("Failed to init price feed", zap.Error(err))
	}

	hub := web.NewHub(log)

	// 5. Init Controller
	ctrlCfg, err := cfg.ControllerConfig()
	if err != nil {
		log.Fatal("Invalid controller config", zap.Error(err))
	}
	controller, err := usecase.NewAutoTradeController(source, interpreter, feed, store, store, hub, ctrlCfg, log)
	if err != nil {
		log.Fatal("Failed to init controller", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		controller.Run(ctx)
	}()

	go hub.PushStatus(ctx, time.Duration(cfg.Polling.StatusPushMs)*time.Millisecond, func() any {
		return controller.Snapshot()
	})

	// 6. Start Web Server
	server := web.NewServer(cfg.Server.Port, controller, hub, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 7. Wait for Shutdown
	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	<-controllerDone
}
