package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"quantrelay/internal/command"
	"quantrelay/internal/config"
	"quantrelay/internal/engine"
	"quantrelay/internal/health"
	"quantrelay/internal/risk"
	"quantrelay/internal/state"
	"quantrelay/internal/strategy"
	"quantrelay/internal/supervisor"
	"quantrelay/internal/telegram"
	"quantrelay/internal/venue"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	setupLogging(cfg.LogLevel)

	endpoint, err := cfg.VenueEndpoint()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	runID := engine.NewRunID()
	journal, err := engine.OpenJournal(cfg.DecisionsPath, runID)
	if err != nil {
		log.Fatalf("journal error: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			slog.Error("failed to close journal", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	limits := risk.Limits{
		MaxLossStreak:  cfg.MaxLossStreak,
		MaxDrawdownPct: decimal.NewFromFloat(cfg.MaxDrawdownPct),
	}
	sizer := risk.Sizer{
		MinFraction: decimal.NewFromFloat(cfg.StakeMinFraction),
		MaxFraction: decimal.NewFromFloat(cfg.StakeMaxFraction),
	}
	session := state.NewSession(limits, sizer)

	chat := telegram.New(cfg.TelegramAPIURL, cfg.TelegramToken)
	notifier := telegram.NewNotifier(chat, telegram.NotifierOptions{})

	var controller *engine.Controller
	venueClient := venue.New(venue.Options{URL: endpoint, Token: cfg.VenueToken}, func(ev venue.Event) {
		if err := controller.SubmitVenueEvent(ctx, ev); err != nil {
			slog.Warn("venue event dropped", "type", ev.Type(), "error", err)
		}
	})
	controller = engine.New(engine.Options{
		Symbol:        cfg.Symbol,
		Currency:      cfg.Currency,
		DefaultChatID: cfg.DefaultChatID,
	}, session, venueClient, notifier, strategy.Rise{Duration: cfg.DurationTicks}, journal)

	adapter := command.NewAdapter(chat, cfg.PollTimeout)

	slog.Info("bot starting", "run_id", runID, "symbol", cfg.Symbol, "port", cfg.Port)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := controller.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		supervisor.Run(groupCtx, "notifier", cfg.PollBackoff, notifier.Run)
		return nil
	})
	group.Go(func() error {
		supervisor.Run(groupCtx, "command-poll", cfg.PollBackoff, func(ctx context.Context) error {
			return adapter.Run(ctx, controller.SubmitCommand)
		})
		return nil
	})
	group.Go(func() error {
		supervisor.Run(groupCtx, "liveness", cfg.PollBackoff, func(ctx context.Context) error {
			return health.Serve(ctx, cfg.Port)
		})
		return nil
	})

	if err := group.Wait(); err != nil {
		slog.Error("bot stopped with error", "error", err)
	}
	slog.Info("bot shutdown complete", "run_id", runID)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
