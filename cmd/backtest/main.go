package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/config"
	"github.com/quantora/signalmind/internal/engine"
	"github.com/quantora/signalmind/internal/storage"
	"github.com/quantora/signalmind/internal/validation"
	"github.com/quantora/signalmind/models"
)

func main() {
	iterations := flag.Int("iterations", 1000, "Monte Carlo permutation count")
	forwardPeriod := flag.Int("forward-period", 0, "signals held out for the forward test (0 = last 30%)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config failed")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	ctx := context.Background()
	store, err := storage.New(ctx, storage.Config{
		Backend:       cfg.Storage.Backend,
		FilePath:      cfg.Storage.FilePath,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
		PostgresURL:   cfg.Storage.PostgresURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("opening storage failed")
	}
	defer store.Close()

	eng := engine.New(store, nil, nil, nil, engine.Options{Seed: cfg.Engine.Seed})
	if err := eng.LoadState(ctx); err != nil {
		log.Fatal().Err(err).Msg("restoring state failed")
	}

	signals := make([]models.Signal, 0)
	for _, sig := range eng.Signals() {
		signals = append(signals, *sig)
	}
	if len(signals) == 0 {
		fmt.Println("No persisted signals to validate. Run the engine first.")
		return
	}

	result, err := validation.Backtest(signals)
	if err != nil {
		log.Fatal().Err(err).Msg("backtest failed")
	}
	printBacktest(result)

	mc, err := validation.MonteCarlo(signals, *iterations)
	if err != nil {
		log.Fatal().Err(err).Msg("monte carlo failed")
	}
	printMonteCarlo(mc)

	period := *forwardPeriod
	if period <= 0 {
		period = len(signals) * 3 / 10
	}
	forward, err := validation.ForwardTest(signals, period)
	if err != nil {
		log.Warn().Err(err).Msg("forward test skipped")
		return
	}
	fmt.Printf("\n===== FORWARD TEST (last %d signals) =====\n", period)
	fmt.Printf("Trades: %d | Win rate: %.2f%% | ROI: %.2f%%\n",
		forward.TotalTrades, forward.WinRate, forward.ROI)
}

func printBacktest(r *models.BacktestResult) {
	fmt.Println("===== BACKTEST RESULTS =====")
	fmt.Printf("Total trades: %d\n", r.TotalTrades)
	fmt.Printf("Wins/Losses: %d/%d (%.2f%%)\n", r.Wins, r.Losses, r.WinRate)
	fmt.Printf("Net profit: %.2f (ROI %.2f%%)\n", r.NetProfit, r.ROI)
	fmt.Printf("Profit factor: %.2f\n", r.ProfitFactor)
	fmt.Printf("Max drawdown: %.2f%%\n", r.MaxDrawdown)
	fmt.Printf("Final balance: %.2f\n", r.FinalBalance)

	if len(r.RegimeWinRates) > 0 {
		fmt.Println("\nWin rate by market regime:")
		regimes := make([]string, 0, len(r.RegimeWinRates))
		for regime := range r.RegimeWinRates {
			regimes = append(regimes, regime)
		}
		sort.Strings(regimes)
		for _, regime := range regimes {
			fmt.Printf("- %s: %.2f%%\n", regime, r.RegimeWinRates[regime])
		}
	}
}

func printMonteCarlo(r *models.MonteCarloResult) {
	fmt.Printf("\n===== MONTE CARLO (%d permutations) =====\n", r.Iterations)
	fmt.Printf("Profitable permutations: %.2f%%\n", r.ProfitablePercent)
	printDistribution("Win rate", r.WinRate, "%")
	printDistribution("ROI", r.ROI, "%")
	printDistribution("Max drawdown", r.Drawdown, "%")
	printDistribution("Profit factor", r.ProfitFactor, "")
}

func printDistribution(name string, d models.DistributionStats, unit string) {
	fmt.Printf("%s: mean %.2f%s median %.2f%s stddev %.2f min %.2f max %.2f\n",
		name, d.Mean, unit, d.Median, unit, d.StdDev, d.Min, d.Max)
}
