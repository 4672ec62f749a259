package config

import (
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "engine.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "tradepilot" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.Timezone != "Asia/Kolkata" {
		t.Fatalf("unexpected App.Timezone: %s", cfg.App.Timezone)
	}
	if cfg.App.SessionClose != "15:30" {
		t.Fatalf("unexpected App.SessionClose: %s", cfg.App.SessionClose)
	}
	if len(cfg.Feed.Symbols) != 3 || cfg.Feed.Symbols[0] != "RELIANCE" {
		t.Fatalf("unexpected feed symbols: %+v", cfg.Feed.Symbols)
	}
	if cfg.Feed.Provider != "stub" {
		t.Fatalf("unexpected feed provider: %s", cfg.Feed.Provider)
	}
	if cfg.Feed.Benchmark.Symbol != "NIFTY50" {
		t.Fatalf("unexpected benchmark symbol: %s", cfg.Feed.Benchmark.Symbol)
	}
	if cfg.Feed.Benchmark.PollInterval != 2000 {
		t.Fatalf("unexpected benchmark poll interval: %d", cfg.Feed.Benchmark.PollInterval)
	}
	if cfg.Engine.BarIntervalSecs != 60 {
		t.Fatalf("unexpected bar interval: %d", cfg.Engine.BarIntervalSecs)
	}
	if cfg.Engine.Tactic.Mode != "momentum" {
		t.Fatalf("unexpected tactic mode: %s", cfg.Engine.Tactic.Mode)
	}
	if cfg.Engine.Tactic.Threshold != 0.004 {
		t.Fatalf("unexpected tactic threshold: %.4f", cfg.Engine.Tactic.Threshold)
	}
	if cfg.Volatility.Alpha != 0.12 || cfg.Volatility.Beta != 0.85 {
		t.Fatalf("unexpected garch params: %.2f/%.2f", cfg.Volatility.Alpha, cfg.Volatility.Beta)
	}
	if cfg.Volatility.GarchWeight != 0.3 {
		t.Fatalf("unexpected garch weight: %.2f", cfg.Volatility.GarchWeight)
	}
	if cfg.Levels.StopVolMultiple != 1.5 {
		t.Fatalf("unexpected stop multiple: %.2f", cfg.Levels.StopVolMultiple)
	}
	if cfg.Levels.TargetNormal != 2.2 {
		t.Fatalf("unexpected normal target multiple: %.2f", cfg.Levels.TargetNormal)
	}
	if cfg.Evaluate.BaseThreshold != 8.0 {
		t.Fatalf("unexpected base threshold: %.1f", cfg.Evaluate.BaseThreshold)
	}
	if cfg.Evaluate.Weights.TrendFollowing != -1.5 {
		t.Fatalf("unexpected trend_following weight: %.2f", cfg.Evaluate.Weights.TrendFollowing)
	}
	if cfg.Evaluate.Weights.CounterTrend != 1.5 {
		t.Fatalf("unexpected counter_trend weight: %.2f", cfg.Evaluate.Weights.CounterTrend)
	}
	if len(cfg.Instruments.Catalog) != 2 {
		t.Fatalf("expected 2 catalog entries, got %d", len(cfg.Instruments.Catalog))
	}
	if !cfg.Instruments.Catalog[0].Index {
		t.Fatalf("expected first catalog entry to be an index")
	}
	if cfg.Instruments.Catalog[1].LotSize != 250 {
		t.Fatalf("unexpected lot size: %d", cfg.Instruments.Catalog[1].LotSize)
	}
	if cfg.Instruments.Selector.OptionsConfidence != 9.0 {
		t.Fatalf("unexpected options confidence: %.1f", cfg.Instruments.Selector.OptionsConfidence)
	}
	if cfg.Sizing.RiskPct != 0.01 {
		t.Fatalf("unexpected risk pct: %.3f", cfg.Sizing.RiskPct)
	}
	if cfg.Sizing.MinOrderValue != 5000 {
		t.Fatalf("unexpected min order value: %.0f", cfg.Sizing.MinOrderValue)
	}
	if cfg.Lifecycle.MaxAgeMins != 240 {
		t.Fatalf("unexpected max age: %d", cfg.Lifecycle.MaxAgeMins)
	}
	if cfg.Lifecycle.OptionsLockFraction != 0.65 {
		t.Fatalf("unexpected options lock fraction: %.2f", cfg.Lifecycle.OptionsLockFraction)
	}
	if cfg.Paper.StartingCash != 100000 {
		t.Fatalf("expected starting cash 100000, got %.2f", cfg.Paper.StartingCash)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "engine.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	out := filepath.Join(t.TempDir(), "engine.yaml")
	if err := Save(out, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if again.App.Name != cfg.App.Name {
		t.Fatalf("round trip changed App.Name: %s", again.App.Name)
	}
	if again.Evaluate.Weights.MeanReversion != cfg.Evaluate.Weights.MeanReversion {
		t.Fatalf("round trip changed mean_reversion weight")
	}
}

func TestSaveNil(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "nil.yaml"), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
