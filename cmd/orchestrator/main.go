package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/cryptofunk/internal/agents"
	"github.com/ajitpratap0/cryptofunk/internal/config"
	"github.com/ajitpratap0/cryptofunk/internal/db"
	"github.com/ajitpratap0/cryptofunk/internal/exchange"
	"github.com/ajitpratap0/cryptofunk/internal/exchange/algo"
	"github.com/ajitpratap0/cryptofunk/internal/llm"
	"github.com/ajitpratap0/cryptofunk/internal/market"
	"github.com/ajitpratap0/cryptofunk/internal/memory"
	"github.com/ajitpratap0/cryptofunk/internal/metrics"
	"github.com/ajitpratap0/cryptofunk/internal/orchestrator"
	"github.com/ajitpratap0/cryptofunk/internal/risk"
	"github.com/ajitpratap0/cryptofunk/internal/strategy"
	"github.com/ajitpratap0/cryptofunk/internal/tradeengine/model"
)

// Exit codes, per the trading engine's process contract: 0 is a clean
// shutdown, 1 a fatal startup error, 2 a runtime invariant violation the
// process noticed on its own way down (e.g. the portfolio still halted on
// drawdown at shutdown).
const (
	exitClean              = 0
	exitStartupFailure     = 1
	exitInvariantViolation = 2
)

// population is the roster of thesis agents the tick loop draws from, one
// per specialization/personality pairing. A fixed roster rather than a
// config-driven count keeps each agent's deterministic RNG seed (derived
// from its name) stable across restarts.
var population = []struct {
	name           string
	specialization model.Specialization
	personality    model.Personality
}{
	{"technical-analytical", model.SpecializationTechnical, model.PersonalityAnalytical},
	{"momentum-aggressive", model.SpecializationMomentum, model.PersonalityAggressive},
	{"swing-conservative", model.SpecializationSwing, model.PersonalityConservative},
	{"microstructure-contrarian", model.SpecializationMicrostructure, model.PersonalityContrarian},
	{"hybrid-analytical", model.SpecializationHybrid, model.PersonalityAnalytical},
}

func main() {
	verifyKeys := flag.Bool("verify-keys", false, "Verify API keys and secrets, then exit")
	strategyPath := flag.String("strategy", "", "Path to a strategy document to import learned agent state from, and export it back to on shutdown")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	if *verifyKeys {
		os.Exit(verifyAPIKeys())
	}

	log.Info().Msg("Starting CryptoFunk trading engine")

	cfg, err := config.Load("")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(exitStartupFailure)
	}
	te := cfg.TradingEngine

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		os.Exit(exitStartupFailure)
	}

	venueEx, err := exchange.NewBinanceExchange(exchange.BinanceConfig{
		APIKey:    te.AsterAPIKey,
		SecretKey: te.AsterAPISecret,
		Testnet:   te.EnablePaperTrading,
	}, database)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize venue connection")
		os.Exit(exitStartupFailure)
	}

	var execEx exchange.Exchange = venueEx
	if te.EnablePaperTrading {
		execEx = exchange.NewMockExchange(database)
		log.Info().Msg("Paper trading enabled: orders route to the mock exchange, market data still reads the live venue")
	}

	symbols := te.Symbols
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT", "ETHUSDT"}
	}

	marketSource := exchange.NewMarketDataSource(venueEx)
	pipeline := market.NewFeaturePipeline(marketSource, marketSource, nil)
	store := market.NewStore(pipeline)
	scanner := market.NewScanner(store, symbols, len(symbols))

	llmClient := llm.NewClient(llm.ClientConfig{
		Endpoint:    cfg.LLM.Endpoint,
		APIKey:      os.Getenv("CRYPTOFUNK_LLM_API_KEY"),
		Model:       cfg.LLM.PrimaryModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.GetTimeout(),
	})

	thinkers := make(map[string]orchestrator.Thinker, len(population))
	tunables := make(map[string]orchestrator.Tunable, len(population))
	decisionTracker := llm.NewDecisionTracker(database)
	agentsByID := make(map[string]*agents.ThesisAgent, len(population))
	for _, p := range population {
		agent := agents.NewThesisAgent(p.name, p.specialization, p.personality, store, llmClient, log.Logger)
		agent.SetDecisionTracker(decisionTracker)
		thinkers[p.name] = agent
		tunables[p.name] = agent
		agentsByID[p.name] = agent
	}

	var strategyDoc *strategy.StrategyConfig
	if *strategyPath != "" {
		imported, err := strategy.ImportFromFile(*strategyPath, strategy.DefaultImportOptions())
		if err != nil {
			log.Warn().Err(err).Str("path", *strategyPath).Msg("Failed to import strategy document, starting from defaults")
			strategyDoc = strategy.NewDefaultStrategy("live")
		} else {
			strategyDoc = imported
			for id, agent := range agentsByID {
				if learned, ok := strategyDoc.Agents.RestoreInto(id); ok {
					agent.RestoreLearnedState(learned)
					log.Info().Str("agent", id).Msg("Restored learned state from strategy document")
				}
			}
		}
	}

	venueAdapter := exchange.NewExchangeAdapter("aster", execEx)
	router := exchange.NewRouter(
		map[exchange.VenueKind]exchange.VenueAdapter{exchange.VenueCentralizedPerp: venueAdapter},
		map[exchange.VenueKind][]string{exchange.VenueCentralizedPerp: symbols},
	)

	priceCache := exchange.NewPriceCache()
	for _, sym := range symbols {
		if err := priceCache.Subscribe(ctx, sym); err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("Failed to subscribe price stream, TWAP/VWAP sizing falls back to venue quotes")
		}
	}
	newExec := func(venue exchange.VenueAdapter) orchestrator.OrderExecutor {
		return algo.NewExecutor(venue, priceCache, priceCache)
	}

	tracker := risk.NewPortfolioTracker(te.MaxDrawdown, cfg.Risk.MaxDailyLoss)
	episodes := memory.NewEpisodicMemoryFromDB(database, 500)
	reconciler := exchange.NewReconciler(venueAdapter, population[0].name)
	positionMgr := exchange.NewPositionManager(database)

	mode := db.TradingModePaper
	if !te.EnablePaperTrading {
		mode = db.TradingModeLive
	}
	session := &db.TradingSession{
		Mode:           mode,
		Symbol:         strings.Join(symbols, ","),
		Exchange:       "aster",
		StartedAt:      time.Now(),
		InitialCapital: 10000.0,
	}
	if err := database.CreateSession(ctx, session); err != nil {
		log.Warn().Err(err).Msg("Failed to create trading session, position journal writes will be skipped")
	} else {
		positionMgr.SetSession(&session.ID)
	}

	tickCfg := orchestrator.TickConfig{InitialCapital: session.InitialCapital}
	if te.DecisionIntervalSeconds > 0 {
		tickCfg.Period = time.Duration(te.DecisionIntervalSeconds) * time.Second
	}

	tick := orchestrator.NewTick(tickCfg, log.Logger, scanner, thinkers, router, newExec, tracker, episodes, reconciler)
	tick.SetPositionJournal(positionMgr)

	// The independent cmd/agents/* microservices still publish their votes
	// over NATS; fold them into the tick loop's community board instead of
	// leaving that fleet orphaned. Best-effort: a NATS outage degrades to
	// running on in-process agents alone, not a startup failure.
	natsURL := os.Getenv("CRYPTOFUNK_ORCHESTRATOR_NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}
	hubStepInterval := tickCfg.Period
	if hubStepInterval == 0 {
		hubStepInterval = 30 * time.Second
	}
	signalHub, err := orchestrator.NewOrchestrator(&orchestrator.OrchestratorConfig{
		Name:                "trading-engine-signal-hub",
		NATSUrl:             natsURL,
		SignalTopic:         "cryptofunk.agent.signals",
		DecisionTopic:       "cryptofunk.orchestrator.decisions",
		HeartbeatTopic:      "cryptofunk.agent.heartbeat",
		StepInterval:        hubStepInterval,
		MinConsensus:        0.6,
		MinConfidence:       0.5,
		MaxSignalAge:        5 * time.Minute,
		HealthCheckInterval: time.Minute,
	}, log.Logger, 8080)
	hubConnected := false
	if err != nil {
		log.Warn().Err(err).Msg("Failed to construct NATS signal hub, running on in-process agents only")
	} else if err := signalHub.Initialize(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to connect NATS signal hub, running on in-process agents only")
	} else {
		hubConnected = true
		tick.SetExternalSignals(signalHub)
		tick.SetPauseSource(signalHub)
		signalHub.SetPauseStore(database)
		if state, err := database.GetOrchestratorState(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to load persisted pause state, starting unpaused")
		} else if state.Paused {
			if err := signalHub.Pause(); err != nil {
				log.Warn().Err(err).Msg("Failed to apply persisted pause state")
			} else {
				log.Warn().Msg("Restored paused state from a prior run; call /resume to continue")
			}
		}
		log.Info().Str("nats_url", natsURL).Msg("NATS signal hub connected, external agent votes feed the community board")
	}

	tick.SetVenuePositionsFunc(func(ctx context.Context) ([]exchange.VenuePosition, error) {
		open := positionMgr.GetOpenPositions()
		out := make([]exchange.VenuePosition, 0, len(open))
		for _, p := range open {
			out = append(out, exchange.VenuePosition{
				Symbol:   p.Symbol,
				Side:     model.Side(p.Side),
				Quantity: p.Quantity,
				Price:    p.EntryPrice,
			})
		}
		return out, nil
	})

	cio := orchestrator.NewCIO(orchestrator.CIOConfig{}, log.Logger, tunables, pipeline)
	if strategyDoc != nil {
		cio.SetStrategyDoc(strategyDoc)
	}
	cio.SetPerformanceSource(risk.NewCalculatorWithPool(database.Pool()))

	httpPort := cfg.API.Port
	if httpPort == 0 {
		httpPort = 8090
	}
	var hub *orchestrator.Orchestrator
	if hubConnected {
		hub = signalHub
	}
	httpServer := NewHTTPServer(httpPort, hub, database)
	if err := httpServer.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start health/metrics HTTP server")
	}

	metricsUpdater := metrics.NewUpdater(database.Pool(), 30*time.Second)
	go metricsUpdater.Start(ctx)

	statusReporter := orchestrator.NewAgentStatusReporter(database, thinkers, 30*time.Second, log.Logger)
	go statusReporter.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go orchestrator.Supervise(ctx, "tick", log.Logger, tick.Run)
	go orchestrator.Supervise(ctx, "cio", log.Logger, cio.Run)

	log.Info().Strs("symbols", symbols).Int("agents", len(thinkers)).Dur("decision_interval", tickCfg.Period).
		Msg("Trading engine running")

	<-sigChan
	log.Info().Msg("Received shutdown signal, initiating graceful shutdown...")

	cancel()
	time.Sleep(2 * time.Second) // let the supervised loops observe cancellation and close out positions

	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := httpServer.Stop(httpShutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Error shutting down health/metrics HTTP server")
	}
	httpShutdownCancel()

	if hubConnected {
		hubShutdownCtx, hubShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := signalHub.Shutdown(hubShutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Error shutting down NATS signal hub")
		}
		hubShutdownCancel()
	}

	if session.ID != uuid.Nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := database.StopSession(stopCtx, session.ID, tick.PortfolioBalance()); err != nil {
			log.Warn().Err(err).Msg("Failed to record session stop")
		}
		stopCancel()
	}

	database.Close()

	if *strategyPath != "" && strategyDoc != nil {
		if err := strategy.ExportToFile(strategyDoc, *strategyPath, strategy.DefaultExportOptions()); err != nil {
			log.Error().Err(err).Str("path", *strategyPath).Msg("Failed to export learned strategy state")
		} else {
			log.Info().Str("path", *strategyPath).Msg("Exported learned strategy state")
		}
	}

	if tracker.IsHalted() {
		log.Error().Msg("Portfolio tracker still halted on drawdown at shutdown")
		os.Exit(exitInvariantViolation)
	}

	log.Info().Msg("Trading engine shutdown complete")
	os.Exit(exitClean)
}

// verifyAPIKeys verifies all configured API keys and secrets
// Returns 0 if all keys are valid, 1 if any keys are invalid or missing
func verifyAPIKeys() int {
	log.Info().Msg("Verifying API keys and secrets...")

	// Load main configuration
	cfg, err := config.Load("")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	allValid := true
	keysChecked := 0

	// Verify Exchange API Keys
	if len(cfg.Exchanges) > 0 {
		log.Info().Msg("Checking exchange API keys...")
		for exchangeName, exchangeConfig := range cfg.Exchanges {
			keysChecked++

			// Check if keys are present
			if exchangeConfig.APIKey == "" {
				log.Warn().Str("exchange", exchangeName).Msg("❌ API key not configured")
				allValid = false
				continue
			}
			if exchangeConfig.SecretKey == "" {
				log.Warn().Str("exchange", exchangeName).Msg("❌ Secret key not configured")
				allValid = false
				continue
			}

			// Check for placeholder values
			placeholders := []string{"YOUR_API_KEY", "changeme", "test_api_key", ""}
			isPlaceholder := false
			for _, placeholder := range placeholders {
				if exchangeConfig.APIKey == placeholder || exchangeConfig.SecretKey == placeholder {
					isPlaceholder = true
					break
				}
			}

			if isPlaceholder {
				log.Warn().
					Str("exchange", exchangeName).
					Msg("❌ API keys appear to be placeholder values")
				allValid = false
				continue
			}

			// For paper trading, keys don't need to be validated against the exchange
			if cfg.Trading.Mode == "paper" || cfg.Trading.Mode == "PAPER" {
				log.Info().
					Str("exchange", exchangeName).
					Str("mode", cfg.Trading.Mode).
					Msg("✓ Exchange keys configured (paper trading mode - not validated against exchange)")
				continue
			}

			// For live trading, we should validate against the exchange
			// However, this requires actual exchange API calls which may fail for various reasons
			// (network, rate limits, etc.) so we just check for presence and format
			log.Info().
				Str("exchange", exchangeName).
				Str("mode", cfg.Trading.Mode).
				Int("key_length", len(exchangeConfig.APIKey)).
				Msg("✓ Exchange API keys configured (live mode - validation requires exchange connection)")
		}
	} else {
		log.Warn().Msg("No exchanges configured")
	}

	// Verify trading engine venue credentials
	log.Info().Msg("Checking trading engine venue credentials...")
	keysChecked++
	if cfg.TradingEngine.AsterAPIKey == "" || cfg.TradingEngine.AsterAPISecret == "" {
		if cfg.TradingEngine.EnablePaperTrading {
			log.Warn().Msg("⚠️  Venue credentials not configured (acceptable: paper trading is enabled)")
		} else {
			log.Error().Msg("❌ Venue credentials not configured and paper trading is disabled")
			allValid = false
		}
	} else {
		log.Info().Msg("✓ Trading engine venue credentials configured")
	}

	// Verify LLM Configuration
	log.Info().Msg("Checking LLM configuration...")
	keysChecked++

	if cfg.LLM.Endpoint == "" {
		log.Error().Msg("❌ LLM endpoint not configured")
		allValid = false
	} else if cfg.LLM.Gateway == "" {
		log.Error().Msg("❌ LLM gateway not configured")
		allValid = false
	} else if cfg.LLM.PrimaryModel == "" {
		log.Error().Msg("❌ LLM primary model not configured")
		allValid = false
	} else {
		log.Info().
			Str("gateway", cfg.LLM.Gateway).
			Str("endpoint", cfg.LLM.Endpoint).
			Str("model", cfg.LLM.PrimaryModel).
			Msg("✓ LLM configuration present (endpoint validation requires live connection)")
	}

	// Verify Database Configuration
	log.Info().Msg("Checking database configuration...")
	keysChecked++

	if cfg.Database.Host == "" {
		log.Error().Msg("❌ Database host not configured")
		allValid = false
	} else if cfg.Database.Database == "" {
		log.Error().Msg("❌ Database name not configured")
		allValid = false
	} else {
		// Check password for non-development environments
		if cfg.App.Environment != "development" && cfg.Database.Password == "" {
			log.Warn().
				Str("environment", cfg.App.Environment).
				Msg("❌ Database password not configured (required for non-development environments)")
			allValid = false
		}

		// Check for placeholder passwords
		if cfg.App.Environment == "production" {
			placeholders := []string{"changeme", "changeme_in_production", "postgres", "password"}
			for _, placeholder := range placeholders {
				if cfg.Database.Password == placeholder {
					log.Error().
						Str("password", placeholder).
						Msg("❌ Database password is a common placeholder value (SECURITY RISK)")
					allValid = false
					break
				}
			}
		}

		if allValid {
			log.Info().
				Str("host", cfg.Database.Host).
				Str("database", cfg.Database.Database).
				Str("ssl_mode", cfg.Database.SSLMode).
				Msg("✓ Database configuration present")
		}
	}

	// Summary
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if allValid {
		log.Info().
			Int("keys_checked", keysChecked).
			Msg("✅ All API keys and configuration verified successfully")
		log.Info().Msg("System is ready to start")
		return 0
	} else {
		log.Error().
			Int("keys_checked", keysChecked).
			Msg("❌ Some API keys or configuration are invalid or missing")
		log.Error().Msg("Please fix the above issues before starting the system")
		return 1
	}
}
