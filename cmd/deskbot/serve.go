package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deskbot/internal/bus"
	"deskbot/internal/channel"
	"deskbot/internal/config"
	"deskbot/internal/dashboard"
	"deskbot/internal/domain"
	"deskbot/internal/engine"
	"deskbot/internal/flow"
	"deskbot/internal/metrics"
	"deskbot/internal/store"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the engine (Telegram + routing + dashboard)",
		Long:  "Starts the channel adapter, the routing engine, and the operator dashboard. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// logOutbound stands in for the channel adapter when Telegram is
// disabled, so the engine can run during local development.
type logOutbound struct {
	logger *slog.Logger
}

func (o *logOutbound) Deliver(_ context.Context, platformID, text string) error {
	o.logger.Info("outbound (no channel)", "platform_id", platformID, "text", text)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; real config comes from the JSON file with
	// ${VAR} expansion.
	_ = godotenv.Load()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLiteStore(config.ExpandPath(cfg.Storage.DBPath), logger)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	events := bus.NewEventBus(logger)
	metrics.BindEvents(events)

	registry := flow.NewRegistry(logger)
	flowDir := config.ExpandPath(cfg.Flows.Dir)
	reloadFlows := func(context.Context) error {
		defs, err := flow.LoadDirectory(flowDir, logger)
		if err != nil {
			return err
		}
		registry.Replace(defs)
		return nil
	}
	if err := reloadFlows(ctx); err != nil {
		return fmt.Errorf("load flows: %w", err)
	}

	matcher := engine.NewMatcher(logger)
	refreshQA := func(ctx context.Context) error {
		entries, err := st.ListActiveQA(ctx)
		if err != nil {
			return err
		}
		matcher.Replace(entries)
		return nil
	}
	if err := refreshQA(ctx); err != nil {
		return fmt.Errorf("load Q/A entries: %w", err)
	}

	sessions := engine.NewSessionStore(time.Duration(cfg.Engine.SessionTTLMinutes)*time.Minute, logger)
	dialogs := engine.NewDialogs(st, events, logger)

	var outbound domain.Outbound
	var telegramCh *channel.Telegram
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Telegram.Token,
			ParseMode: cfg.Telegram.ParseMode,
			Logger:    logger,
		})
		outbound = telegramCh
	} else {
		logger.Info("telegram channel disabled")
		outbound = &logOutbound{logger: logger}
	}

	dedupeWindow := time.Duration(0)
	if cfg.Engine.DedupeInbound {
		dedupeWindow = time.Duration(cfg.Engine.DedupeWindowSec) * time.Second
	}
	router := engine.NewRouter(engine.RouterConfig{
		Store:            st,
		Sessions:         sessions,
		Dialogs:          dialogs,
		Matcher:          matcher,
		Flows:            registry,
		Interpreter:      engine.NewInterpreter(logger),
		Outbound:         outbound,
		Events:           events,
		Logger:           logger,
		DedupeWindow:     dedupeWindow,
		AbortDeactivated: cfg.Flows.OnDeactivate == "abort",
	})

	messageBus := bus.New(cfg.Engine.BusBufferSize, logger)
	loop := engine.NewLoop(messageBus, st, router, 8, logger)
	loop.OnLatency = metrics.RoutingLatency.Observe
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	if telegramCh != nil {
		go func() {
			if err := telegramCh.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
			}
		}()
		logger.Info("telegram channel enabled")
	}

	sched := cron.New()
	sweepSpec := fmt.Sprintf("@every %ds", cfg.Engine.SweepIntervalSec)
	if _, err := sched.AddFunc(sweepSpec, func() {
		router.SweepExpired(ctx, time.Now())
		metrics.ActiveSessions.Set(int64(sessions.Len()))
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	refreshSpec := fmt.Sprintf("@every %ds", cfg.Engine.RefreshIntervalSec)
	if _, err := sched.AddFunc(refreshSpec, func() {
		if err := refreshQA(ctx); err != nil {
			logger.Warn("Q/A refresh failed", "err", err)
		}
		if err := reloadFlows(ctx); err != nil {
			logger.Warn("flow reload failed, keeping previous set", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	var dashSrv *dashboard.Server
	if cfg.Dashboard.Enabled {
		handler := dashboard.NewHandler(dashboard.HandlerConfig{
			Store:       st,
			Router:      router,
			Dialogs:     dialogs,
			Flows:       registry,
			Sessions:    sessions,
			Logger:      logger,
			ReloadFlows: reloadFlows,
			RefreshQA:   refreshQA,
		})
		dashSrv = dashboard.NewServer(cfg.Dashboard.Host, cfg.Dashboard.Port, handler.Routes(), logger)
		go func() {
			if err := dashSrv.Start(); err != nil {
				logger.Error("dashboard error", "err", err)
			}
		}()
	}

	logger.Info("deskbot started", "version", version)

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		messageBus.Close()
		<-loopDone
		if dashSrv != nil {
			if err := dashSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("dashboard shutdown", "err", err)
			}
		}
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}

	return shutdownErr
}
