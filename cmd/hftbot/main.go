package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"hftbot/bot"
	"hftbot/core"
	"hftbot/exec"
	"hftbot/feeds"
	"hftbot/internal/config"
	"hftbot/internal/metrics"
	"hftbot/risk"
)

func main() {
	// .env is optional, real deployments use environment variables
	_ = godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("symbol", cfg.Symbol).
		Bool("dry_run", cfg.DryRun).
		Bool("relaxed", cfg.Relaxed).
		Msg("🚀 Starting HFT bot")

	// ─── Venue client and risk layer ───

	client := exec.NewClient(cfg.RestURL, cfg.APIKey, cfg.APISecret, cfg.Passphrase, cfg.DryRun)
	guard := risk.NewGuard(cfg.TradeCooldown, cfg.MaxLossPct)
	sizer := risk.NewSizer(cfg.RiskRatio, cfg.Leverage, cfg.FixedSize)

	if balance, err := client.GetAvailableBalance(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Initial balance query failed, kill switch starts disarmed")
	} else if err := guard.SetBalances(balance, balance); err != nil {
		log.Warn().Err(err).Msg("⚠️ Balance rejected, kill switch starts disarmed")
	}

	// ─── Market state and engine ───

	market := feeds.NewMarketState(cfg.WhaleThreshold)

	engineCfg := core.Config{
		Symbol:              cfg.Symbol,
		Relaxed:             cfg.Relaxed,
		EMAFastPeriod:       cfg.EMAFastPeriod,
		EMASlowPeriod:       cfg.EMASlowPeriod,
		Slippage:            cfg.Slippage,
		FlowWindow:          cfg.FlowWindow,
		MinTrades:           cfg.MinTrades,
		MinNetNotional:      cfg.MinNetNotional,
		CalibrationInterval: cfg.CalibrationInterval,
	}
	engine := core.NewEngine(engineCfg, market, guard, sizer, client)

	// ─── Telegram (optional) ───

	var tg *bot.TelegramBot
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, engine, guard, cfg.DryRun)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled")
		} else {
			engine.SetNotifier(tg)
			tg.Start()
			tg.NotifyStartup(cfg.Symbol, cfg.Relaxed)
		}
	}

	// ─── Metrics endpoint ───

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		log.Info().Str("addr", cfg.MetricsAddr).Msg("📊 Metrics endpoint listening")
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	// ─── Feeds ───

	feed := feeds.NewTradeFeed(cfg.PublicWSURL, cfg.Symbol)
	ticks := feed.Subscribe()
	feed.Start()

	userStream := feeds.NewUserStream(cfg.PrivateWSURL, cfg.APIKey, cfg.APISecret, cfg.Passphrase)
	userStream.SetPositionsCallback(engine.OnPositionPush)
	if !cfg.DryRun {
		userStream.Start()
	}

	// Single tick goroutine: the engine processes trades strictly in
	// arrival order.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for t := range ticks {
			engine.OnTick(t)
		}
	}()

	// ─── Shutdown ───

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down...")

	feed.Stop()
	if !cfg.DryRun {
		userStream.Stop()
	}
	if tg != nil {
		tg.Stop()
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	s := engine.Stats()
	log.Info().
		Int64("ticks", s.TickCount).
		Int64("executions", s.Executions).
		Msg("👋 HFT bot stopped")
}
