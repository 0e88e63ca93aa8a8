package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/config"
	"github.com/quantora/signalmind/internal/api"
	"github.com/quantora/signalmind/internal/engine"
	"github.com/quantora/signalmind/internal/feed"
	"github.com/quantora/signalmind/internal/fusion"
	"github.com/quantora/signalmind/internal/indicators"
	"github.com/quantora/signalmind/internal/metrics"
	"github.com/quantora/signalmind/internal/notify"
	"github.com/quantora/signalmind/internal/storage"
	"github.com/quantora/signalmind/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading config failed")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.New(ctx, storage.Config{
		Backend:       cfg.Storage.Backend,
		FilePath:      cfg.Storage.FilePath,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
		PostgresURL:   cfg.Storage.PostgresURL,
	})
	if err != nil {
		// Persistence trouble must not keep signals from flowing.
		log.Error().Err(err).Msg("opening storage failed, continuing without persistence")
		store = storage.NewMemory()
	}
	defer store.Close()

	client := feed.NewClient(feed.Options{
		BaseURL:        cfg.Feed.BaseURL,
		APIKey:         cfg.Feed.APIKey,
		Symbol:         cfg.Feed.Symbol,
		Interval:       cfg.Feed.Interval,
		CandleCount:    cfg.Feed.CandleCount,
		RequestTimeout: time.Duration(cfg.Feed.RequestTimeout) * time.Second,
	})

	var notifier models.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("creating telegram notifier failed")
		}
		notifier = tg
	}

	recorder := metrics.NewRecorder()

	eng := engine.New(store, client, notifier, recorder, engine.Options{
		TickInterval: time.Duration(cfg.Engine.TickInterval) * time.Second,
		MinCandles:   cfg.Engine.MinCandles,
		BlendAlpha:   cfg.Engine.BlendAlpha,
		Alpha:        cfg.Engine.Alpha,
		Gamma:        cfg.Engine.Gamma,
		Epsilon:      cfg.Engine.Epsilon,
		Seed:         cfg.Engine.Seed,
		Periods: indicators.Periods{
			RSI:       cfg.Periods.RSI,
			ADX:       cfg.Periods.ADX,
			ATR:       cfg.Periods.ATR,
			CCI:       cfg.Periods.CCI,
			WilliamsR: cfg.Periods.WilliamsR,
		},
		Fusion: fusion.Options{MinConfidence: cfg.Engine.MinConfidence},
	})

	if err := eng.LoadState(ctx); err != nil {
		log.Fatal().Err(err).Msg("restoring state failed")
	}

	server := api.NewServer(eng, recorder)
	go func() {
		if err := server.Run(ctx, cfg.API.ListenAddr); err != nil {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	log.Info().
		Str("symbol", cfg.Feed.Symbol).
		Str("interval", cfg.Feed.Interval).
		Str("storage", cfg.Storage.Backend).
		Msg("starting decision engine")

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("engine stopped with error")
	}
}
