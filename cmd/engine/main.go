// Binary engine runs the paper trading strategy runner.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tradepilot-go/internal/broker"
	"tradepilot-go/internal/config"
	"tradepilot-go/internal/engine"
	"tradepilot-go/internal/evaluate"
	"tradepilot-go/internal/feed"
	"tradepilot-go/internal/guard"
	"tradepilot-go/internal/instrument"
	"tradepilot-go/internal/levels"
	"tradepilot-go/internal/lifecycle"
	"tradepilot-go/internal/market"
	"tradepilot-go/internal/metrics"
	"tradepilot-go/internal/signal"
	"tradepilot-go/internal/sizing"
	"tradepilot-go/internal/util"
	"tradepilot-go/internal/volatility"
)

const defaultConfigPath = "internal/config/engine.yaml"

func main() {
	_ = godotenv.Load()

	path := os.Getenv("TRADEPILOT_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		boot := util.NewLogger("info")
		boot.Fatal().Err(err).Str("path", path).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.App.Timezone).Msg("load timezone")
	}
	clock := market.NewSessionClock(loc, parseClock(cfg.App.SessionClose))

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var journal *signal.Journal
	if cfg.App.JournalPath != "" {
		journal, err = signal.NewJournal(cfg.App.JournalPath)
		if err != nil {
			log.Warn().Err(err).Msg("journal disabled")
		} else {
			defer journal.Close()
		}
	}

	ledger := broker.NewLedger(cfg.Paper.FillsCap)
	paper := broker.NewPaper(cfg.Paper.StartingCash, ledger, log)

	store := engine.NewStore(clock, 0)
	estimator := volatility.NewEstimator(volatility.Config{
		Window:      cfg.Volatility.Window,
		Omega:       cfg.Volatility.Omega,
		Alpha:       cfg.Volatility.Alpha,
		Beta:        cfg.Volatility.Beta,
		GarchWeight: cfg.Volatility.GarchWeight,
		MinPct:      cfg.Volatility.MinPct,
		MaxPct:      cfg.Volatility.MaxPct,
		FallbackPct: cfg.Volatility.FallbackPct,
		TTL:         time.Duration(cfg.Volatility.TTLMins) * time.Minute,
	}, log)
	calc := levels.NewCalculator(levels.Config{
		StopVolMultiple: cfg.Levels.StopVolMultiple,
		PivotNearVol:    cfg.Levels.PivotNearVol,
		PivotFarVol:     cfg.Levels.PivotFarVol,
		MinStopPct:      cfg.Levels.MinStopPct,
		MaxStopPct:      cfg.Levels.MaxStopPct,
		LowCapitalBase:  cfg.Levels.LowCapitalBase,
		LowCapMaxPct:    cfg.Levels.LowCapMaxPct,
		TargetLow:       cfg.Levels.TargetLow,
		TargetNormal:    cfg.Levels.TargetNormal,
		TargetHigh:      cfg.Levels.TargetHigh,
		RRMin:           cfg.Levels.RRMin,
		RRMax:           cfg.Levels.RRMax,
	}, store, loc, log)

	registry := guard.NewRegistry()
	deferred := signal.NewDeferredList(64)
	book := lifecycle.NewManager(lifecycle.Config{
		MaxAge:              time.Duration(cfg.Lifecycle.MaxAgeMins) * time.Minute,
		OptionsMaxAge:       time.Duration(cfg.Lifecycle.OptionsMaxAgeMins) * time.Minute,
		PreCloseWindow:      time.Duration(cfg.Lifecycle.PreCloseMins) * time.Minute,
		EmergencyLossAbs:    cfg.Lifecycle.EmergencyLossAbs,
		EmergencyLossPct:    cfg.Lifecycle.EmergencyLossPct,
		ProfitLockPct:       cfg.Lifecycle.ProfitLockPct,
		OptionsLockPct:      cfg.Lifecycle.OptionsLockPct,
		LockFraction:        cfg.Lifecycle.LockFraction,
		OptionsLockFraction: cfg.Lifecycle.OptionsLockFraction,
		PartialTriggerPct:   cfg.Lifecycle.PartialTriggerPct,
		PartialPct:          cfg.Lifecycle.PartialPct,
		MinOrderValue:       cfg.Sizing.MinOrderValue,
	}, clock, log)

	evaluator := evaluate.New(evaluate.Config{
		Validity:       time.Duration(cfg.Evaluate.ValiditySecs) * time.Second,
		Cooldown:       time.Duration(cfg.Evaluate.CooldownSecs) * time.Second,
		RSMinMargin:    cfg.Evaluate.RSMinMargin,
		RSStrongFactor: cfg.Evaluate.RSStrongFactor,
		ShortHorizon:   cfg.Evaluate.ShortHorizon,
		MediumHorizon:  cfg.Evaluate.MediumHorizon,
		LongHorizon:    cfg.Evaluate.LongHorizon,
		OvertakeFactor: cfg.Evaluate.OvertakeFactor,
		MeanRevSigma:   cfg.Evaluate.MeanRevSigma,
		BaseThreshold:  cfg.Evaluate.BaseThreshold,
		ThresholdFloor: cfg.Evaluate.ThresholdFloor,
		ThresholdCeil:  cfg.Evaluate.ThresholdCeil,
		Weights: evaluate.RuleWeights{
			TrendFollowing: cfg.Evaluate.Weights.TrendFollowing,
			CounterTrend:   cfg.Evaluate.Weights.CounterTrend,
			MeanReversion:  cfg.Evaluate.Weights.MeanReversion,
			StrongRS:       cfg.Evaluate.Weights.StrongRS,
			HighVolatility: cfg.Evaluate.Weights.HighVolatility,
			LowVolatility:  cfg.Evaluate.Weights.LowVolatility,
		},
	}, registry, book, deferred, log)

	catalog := instrument.NewCatalog(seedMetas(cfg.Instruments.Catalog, log), nil,
		time.Duration(cfg.Instruments.RefreshMins)*time.Minute, log)
	catalog.Start(ctx)
	selector := instrument.NewSelector(instrument.SelectorConfig{
		OptionsConfidence: cfg.Instruments.Selector.OptionsConfidence,
		OptionsHighVol:    cfg.Instruments.Selector.OptionsHighVol,
		FuturesConfidence: cfg.Instruments.Selector.FuturesConfidence,
		MinExpiryDays:     cfg.Instruments.Selector.MinExpiryDays,
		IVElevated:        cfg.Instruments.Selector.IVElevated,
		MinPremium:        cfg.Instruments.Selector.MinPremium,
		MinAlignment:      cfg.Instruments.Selector.MinAlignment,
		MinTradedValue:    cfg.Instruments.Selector.MinTradedValue,
		CashLeverage:      cfg.Instruments.Selector.CashLeverage,
		DerivLeverage:     cfg.Instruments.Selector.DerivLeverage,
	}, catalog, log)

	sizer := sizing.New(sizing.Config{
		RiskPct:        cfg.Sizing.RiskPct,
		MinOrderValue:  cfg.Sizing.MinOrderValue,
		DerivCapPct:    cfg.Sizing.DerivCapPct,
		CashCapPct:     cfg.Sizing.CashCapPct,
		LowCapitalBase: cfg.Sizing.LowCapitalBase,
	}, paper, calc, loc, log)

	tactic := engine.Build(cfg.Engine.Tactic.Mode, engine.Params{
		LookbackBars: cfg.Engine.Tactic.LookbackBars,
		Threshold:    cfg.Engine.Tactic.Threshold,
		MinVolume:    cfg.Engine.Tactic.MinVolume,
	})

	var provider feed.Provider
	switch strings.ToLower(cfg.Feed.Provider) {
	case feed.ProviderWebsocket:
		provider = feed.NewWebsocket(cfg.Feed.URL, cfg.Feed.Symbols, log)
	default:
		provider = feed.NewStub(cfg.Feed.Symbols, 0)
	}
	log.Info().Str("provider", provider.Name()).Strs("symbols", cfg.Feed.Symbols).Msg("feed configured")

	var bench *feed.Benchmark
	if cfg.Feed.Benchmark.URL != "" {
		bench = feed.NewBenchmark(cfg.Feed.Benchmark.Symbol, cfg.Feed.Benchmark.URL,
			time.Duration(cfg.Feed.Benchmark.PollInterval)*time.Millisecond, log)
		go func() {
			if err := bench.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("benchmark poller stopped")
			}
		}()
	}

	eng := engine.New(engine.Config{
		Symbols:     cfg.Feed.Symbols,
		BarInterval: time.Duration(cfg.Engine.BarIntervalSecs) * time.Second,
		HistoryBars: cfg.Engine.HistoryBars,
	}, engine.Deps{
		Tactic:    tactic,
		Provider:  provider,
		Benchmark: bench,
		Estimator: estimator,
		Levels:    calc,
		Evaluator: evaluator,
		Selector:  selector,
		Sizer:     sizer,
		Registry:  registry,
		Book:      book,
		Broker:    paper,
		Journal:   journal,
		Store:     store,
		Deferred:  deferred,
	}, log)

	log.Info().Str("env", cfg.App.Env).Msg("engine started")
	if err := eng.Run(ctx); err != nil {
		log.Error().Err(err).Msg("engine stopped")
	}
	log.Info().Float64("cash", paper.Cash()).Msg("shutting down")
}

// parseClock turns "15:30" into an offset from midnight.
func parseClock(s string) time.Duration {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 15*time.Hour + 30*time.Minute
	}
	h, herr := strconv.Atoi(parts[0])
	m, merr := strconv.Atoi(parts[1])
	if herr != nil || merr != nil {
		return 15*time.Hour + 30*time.Minute
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// seedMetas maps catalog config rows into instrument metadata. A bad expiry
// date drops the derivative legs for that root rather than failing startup.
func seedMetas(rows []config.CatalogEntry, log zerolog.Logger) []instrument.Meta {
	out := make([]instrument.Meta, 0, len(rows))
	for _, r := range rows {
		m := instrument.Meta{
			Root:           r.Root,
			Index:          r.Index,
			LotSize:        r.LotSize,
			HasFutures:     r.HasFutures,
			HasOptions:     r.HasOptions,
			ImpliedVol:     r.ImpliedVol,
			Premium:        r.Premium,
			FuturesSymbol:  r.FuturesSymbol,
			OptionSymbol:   r.OptionSymbol,
			AvgTradedValue: r.AvgTradedValue,
		}
		if r.Expiry != "" {
			expiry, err := time.Parse("2006-01-02", r.Expiry)
			if err != nil {
				log.Warn().Err(err).Str("root", r.Root).Msg("bad expiry, derivatives disabled")
				m.HasFutures = false
				m.HasOptions = false
			} else {
				m.Expiry = expiry
			}
		}
		out = append(out, m)
	}
	return out
}
