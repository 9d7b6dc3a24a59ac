package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lumenquant/tradingcore/internal/barstore"
	"github.com/lumenquant/tradingcore/internal/broker"
	"github.com/lumenquant/tradingcore/internal/config"
	"github.com/lumenquant/tradingcore/internal/domain"
	"github.com/lumenquant/tradingcore/internal/fill"
	"github.com/lumenquant/tradingcore/internal/ledger"
	"github.com/lumenquant/tradingcore/internal/markethours"
	"github.com/lumenquant/tradingcore/internal/marketdata"
	"github.com/lumenquant/tradingcore/internal/notify"
	"github.com/lumenquant/tradingcore/internal/order"
	"github.com/lumenquant/tradingcore/internal/outbox"
	"github.com/lumenquant/tradingcore/internal/risk"
	"github.com/lumenquant/tradingcore/internal/scheduler"
	"github.com/lumenquant/tradingcore/internal/signalpolicy"
	"github.com/lumenquant/tradingcore/internal/storage"
	"github.com/lumenquant/tradingcore/internal/strategy"
	"github.com/lumenquant/tradingcore/internal/telemetry"
)

// defaultOrderQuantity is the flat share count used to size every order
// this process places. Position sizing by conviction/volatility is out of
// scope; a fixed size keeps the C4-through-C7 pipeline exercised end to end.
var defaultOrderQuantity = decimal.NewFromInt(10)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════")
	log.Info().Msg("  tradingcore — automated equity trading engine")
	log.Info().Msg("═══════════════════════════════════════════════")

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("✅ storage opened")

	barStore, err := barstore.NewStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open bar store")
	}
	orderStore, err := order.NewStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open order store")
	}
	ledgerStore, err := ledger.NewStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger store")
	}
	outboxStore, err := outbox.NewStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open outbox store")
	}

	ruleSet := risk.NewRuleSet(risk.RiskRule{
		MaxPositionValue:   cfg.Risk.MaxPositionValuePerSymbol,
		MaxOpenOrders:      cfg.Risk.MaxOpenOrders,
		MaxOrdersPerMinute: cfg.Risk.MaxOrdersPerMinute,
		DailyLossLimit:     cfg.Risk.DailyLossLimit,
		ShortingAllowed:    cfg.Risk.ShortingAllowed,
	})
	killSwitch := risk.NewKillSwitch(cfg.Risk.ConsecutiveOrderFailures)

	var calendar *markethours.Calendar
	if cfg.Market.CheckEnabled {
		sessions := make([]domain.MarketSession, 0, len(cfg.Market.AllowedSessions))
		for _, s := range cfg.Market.AllowedSessions {
			sessions = append(sessions, domain.MarketSession(s))
		}
		cal, err := markethours.NewYorkCalendar(sessions, parseHolidays(cfg.Market.PublicHolidays))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build market-hours calendar")
		}
		calendar = cal
	}

	var marketCalendar risk.MarketCalendar
	if calendar != nil {
		marketCalendar = calendar
	}
	riskEngine := risk.NewEngine(ruleSet, killSwitch, marketCalendar)
	log.Info().Msg("✅ risk engine initialized")

	portfolio := ledger.NewPortfolio(ledgerStore, decimal.NewFromInt(1_000_000))

	adapter := buildBrokerAdapter(cfg)

	orderService := order.NewService(orderStore, outboxStore, riskEngine, adapter, portfolio)
	fillProcessor := fill.NewProcessor(orderStore, ledgerStore, outboxStore, ruleSet, killSwitch)

	tickCache := marketdata.NewCache()
	aggregator := marketdata.NewAggregator(domain.BarInterval1Min, func(bar domain.Bar) {
		if err := barStore.Append(bar); err != nil {
			log.Error().Err(err).Str("symbol", bar.Symbol).Msg("❌ failed to persist sealed bar")
		}
	})

	strategies := strategy.NewRegistry()
	strategies.Register(strategy.NewMACrossover("ma_crossover", 10, 30))
	strategies.Register(strategy.NewRSIReversion("rsi_reversion", 14, decimal.NewFromInt(30), decimal.NewFromInt(70)))
	log.Info().Msg("✅ strategies registered")

	signalGate := signalpolicy.NewGate(signalpolicy.DefaultConfig())

	metrics := telemetry.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runBrokerFeeds(ctx, adapter, cfg.MarketData.Symbols, tickCache, aggregator, fillProcessor)

	sched := scheduler.New(
		mustParseSchedule(cfg.Scheduler.StrategyExecutionCron),
		buildLoader(strategies, cfg.MarketData.Symbols),
		buildTaskFunc(strategies, barStore, signalGate, orderService, calendar, metrics),
		func() bool { return !cfg.Scheduler.StrategyExecutionEnabled },
	).WithTimeout(cfg.Scheduler.EvalTimeout).WithPoolSize(cfg.Scheduler.WorkerPoolSize)
	go sched.Run(ctx)

	publisher := buildOutboxPublisher(cfg)
	worker := outbox.NewWorker(outboxStore, publisher, cfg.Scheduler.OutboxFixedDelay, 50)
	go worker.Run(ctx)

	go func() {
		if err := metrics.Serve(ctx, ":9090"); err != nil {
			log.Error().Err(err).Msg("❌ telemetry server exited")
		}
	}()

	log.Info().Msg("⚡ tradingcore running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("🛑 shutdown signal received")
	cancel()
	time.Sleep(500 * time.Millisecond)
	log.Info().Msg("👋 tradingcore stopped")
}

func buildBrokerAdapter(cfg *config.Config) broker.Adapter {
	if cfg.Broker.LiveTradingOn {
		adapter, err := broker.NewLiveAdapter(os.Getenv("BROKER_BASE_URL"), cfg.Broker.TokenRefreshLead)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build live broker adapter")
		}
		return adapter
	}

	seed := make(map[string]decimal.Decimal, len(cfg.MarketData.Symbols))
	for _, s := range cfg.MarketData.Symbols {
		seed[s] = decimal.NewFromInt(100)
	}
	stub := broker.NewStubAdapter(seed)

	if cfg.MarketData.Mode == "PAPER" {
		return broker.NewPaperAdapter(stub, 5)
	}
	return stub
}

func runBrokerFeeds(ctx context.Context, adapter broker.Adapter, symbols []string, cache *marketdata.Cache, aggregator *marketdata.Aggregator, fillProcessor *fill.Processor) {
	if err := adapter.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("❌ broker adapter failed to connect")
		return
	}

	ticks, err := adapter.Ticks(ctx, symbols)
	if err != nil {
		log.Error().Err(err).Msg("❌ failed to subscribe to ticks")
		return
	}
	fills, err := adapter.Fills(ctx)
	if err != nil {
		log.Error().Err(err).Msg("❌ failed to subscribe to fills")
		return
	}

	for {
		select {
		case <-ctx.Done():
			adapter.Close()
			return
		case tick := <-ticks:
			cache.Apply(tick)
			aggregator.Fold(tick)
		case f := <-fills:
			if err := fillProcessor.Apply(f); err != nil {
				log.Error().Err(err).Str("fill_id", f.ID).Msg("❌ failed to apply fill")
			}
		}
	}
}

func buildLoader(strategies *strategy.Registry, symbols []string) scheduler.Loader {
	return func(now time.Time) ([]scheduler.Task, error) {
		enabled := strategies.Enabled()
		tasks := make([]scheduler.Task, 0, len(enabled)*len(symbols))
		for _, s := range enabled {
			for _, sym := range symbols {
				tasks = append(tasks, scheduler.Task{StrategyID: s.ID(), Symbol: sym, Account: "default"})
			}
		}
		return tasks, nil
	}
}

func buildTaskFunc(strategies *strategy.Registry, barStore *barstore.Store, signalGate *signalpolicy.Gate, orderService *order.Service, calendar *markethours.Calendar, metrics *telemetry.Metrics) scheduler.TaskFunc {
	return func(ctx context.Context, task scheduler.Task) error {
		now := time.Now()
		if calendar != nil && !calendar.IsOpen(now) {
			return nil
		}

		strat, ok := strategies.Get(task.StrategyID)
		if !ok || !strat.Enabled() {
			return nil
		}

		bars, err := barStore.Recent(task.Symbol, domain.BarInterval1Min, strat.MinBars())
		if err != nil {
			return err
		}
		if len(bars) < strat.MinBars() {
			return nil
		}

		sigCtx := strategy.Context{Symbol: task.Symbol, Bars: bars, Tick: domain.Tick{Symbol: task.Symbol, Price: bars[len(bars)-1].Close, Timestamp: now}}
		signal := strat.Evaluate(sigCtx)
		if signal == nil {
			return nil
		}

		decision := signalGate.Evaluate(signal, now)
		if !decision.Accept {
			log.Debug().Str("symbol", task.Symbol).Str("strategy", task.StrategyID).Str("reason", decision.Reason).Msg("🚫 signal rejected by policy gate")
			return nil
		}

		side := domain.SideBuy
		if signal.Action == domain.SignalActionSell {
			side = domain.SideSell
		}

		_, err = orderService.Place(ctx, order.PlaceRequest{
			Symbol:      task.Symbol,
			Side:        side,
			Type:        domain.OrderTypeMarket,
			TimeInForce: domain.TimeInForceDay,
			Quantity:    defaultOrderQuantity,
			StrategyID:  task.StrategyID,
		})
		if err != nil {
			metrics.OrdersRejected.WithLabelValues("place_failed").Inc()
			return err
		}
		metrics.OrdersPlaced.WithLabelValues(task.Symbol, string(side)).Inc()
		return nil
	}
}

func buildOutboxPublisher(cfg *config.Config) outbox.Publisher {
	var telegram *notify.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, os.Getenv("TELEGRAM_CHAT_ID"))
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ telegram notifier unavailable, outbox events will only be logged")
		} else {
			telegram = tg
			log.Info().Msg("✅ telegram notifier initialized")
		}
	}

	return func(event outbox.Event) error {
		log.Info().Str("event_type", event.EventType).Str("aggregate_id", event.AggregateID).Msg("📨 outbox event")
		if telegram != nil {
			return telegram.Notify(event)
		}
		return nil
	}
}

func mustParseSchedule(expr string) scheduler.Schedule {
	s, err := scheduler.ParseSchedule(expr)
	if err != nil {
		log.Fatal().Err(err).Str("expr", expr).Msg("invalid scheduler cron expression")
	}
	return s
}

func parseHolidays(dates []string) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			log.Warn().Str("date", d).Msg("⚠️ skipping malformed holiday date")
			continue
		}
		out = append(out, t)
	}
	return out
}
