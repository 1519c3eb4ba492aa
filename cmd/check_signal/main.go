package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/strategy_autotrade/internal/config"
	"github.com/vitos/strategy_autotrade/internal/domain"
	"github.com/vitos/strategy_autotrade/internal/infrastructure/market"
	sigsrc "github.com/vitos/strategy_autotrade/internal/infrastructure/signal"
	"github.com/vitos/strategy_autotrade/internal/usecase"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	strategy := cfg.Trading.Strategy
	if len(os.Args) > 1 {
		strategy = os.Args[1]
	}

	vocab, err := cfg.Vocabularies()
	if err != nil {
		fmt.Printf("❌ Invalid vocabularies: %v\n", err)
		os.Exit(1)
	}
	interpreter, err := usecase.NewSignalInterpreter(vocab)
	if err != nil {
		fmt.Printf("❌ Invalid vocabularies: %v\n", err)
		os.Exit(1)
	}
	if !interpreter.HasStrategy(strategy) {
		fmt.Printf("❌ Unknown strategy %q, known: %v\n", strategy, interpreter.Strategies())
		os.Exit(1)
	}

	fmt.Printf("Testing prediction service...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Signal.BaseURL)
	fmt.Printf("Strategy: %s\n", strategy)

	timeout := time.Duration(cfg.Signal.TimeoutMs) * time.Millisecond
	source := sigsrc.NewHTTPSource(cfg.Signal.BaseURL, timeout)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 2. Fetch and interpret the prediction
	text, err := source.Prediction(ctx, strategy)
	if err != nil {
		fmt.Printf("❌ Failed to get prediction: %v\n", err)
	} else {
		fmt.Printf("✅ Prediction: %q -> %s\n", text, interpreter.Interpret(strategy, text))
	}

	// 3. Sample the simulated price feed
	feed, err := market.NewRandomWalkFeed(
		decimal.NewFromFloat(cfg.Market.Baseline),
		cfg.Market.MaxDeviationPct,
		cfg.Market.StepPct,
		cfg.Market.Seed,
	)
	if err != nil {
		fmt.Printf("❌ Failed to init price feed: %v\n", err)
		os.Exit(1)
	}
	price, err := feed.CurrentPrice(context.Background())
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
		return
	}
	settings, _ := cfg.TradeSettings()
	fmt.Printf("✅ Current Price: %s (quantity for %s: %d)\n",
		price.StringFixed(2), settings.InvestmentAmount, domain.QuantityFor(settings.InvestmentAmount, price))
}
