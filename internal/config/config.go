// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name         string `yaml:"name"`
	Env          string `yaml:"env"`
	MetricsAddr  string `yaml:"metrics_addr"`
	LogLevel     string `yaml:"log_level"`
	Timezone     string `yaml:"timezone"`      // exchange timezone, e.g. Asia/Kolkata
	SessionClose string `yaml:"session_close"` // HH:MM offset from midnight
	JournalPath  string `yaml:"journal_path"`  // decision journal, JSONL
}

// Benchmark configures the index feed used for relative strength.
type Benchmark struct {
	Symbol       string `yaml:"symbol"`
	URL          string `yaml:"url"`
	PollInterval int    `yaml:"poll_interval_ms"`
}

// Feed describes the market-data connectivity the engine expects.
type Feed struct {
	Provider  string    `yaml:"provider"` // stub|websocket
	URL       string    `yaml:"url"`
	Symbols   []string  `yaml:"symbols"`
	Benchmark Benchmark `yaml:"benchmark"`
}

// Tactic groups tunable knobs for candidate generation.
type Tactic struct {
	Mode         string  `yaml:"mode"`
	LookbackBars int     `yaml:"lookback_bars"`
	Threshold    float64 `yaml:"threshold"` // fractional move that sparks a candidate
	MinVolume    float64 `yaml:"min_volume"`
}

// Engine bundles runner-level knobs.
type Engine struct {
	BarIntervalSecs int    `yaml:"bar_interval_secs"`
	HistoryBars     int    `yaml:"history_bars"`
	Tactic          Tactic `yaml:"tactic"`
}

// Volatility mirrors the estimator knobs.
type Volatility struct {
	Window      int     `yaml:"window"`
	Omega       float64 `yaml:"omega"`
	Alpha       float64 `yaml:"alpha"`
	Beta        float64 `yaml:"beta"`
	GarchWeight float64 `yaml:"garch_weight"`
	MinPct      float64 `yaml:"min_pct"`
	MaxPct      float64 `yaml:"max_pct"`
	FallbackPct float64 `yaml:"fallback_pct"`
	TTLMins     int     `yaml:"ttl_mins"`
}

// Levels mirrors the stop/target calculator knobs.
type Levels struct {
	StopVolMultiple float64 `yaml:"stop_vol_multiple"`
	PivotNearVol    float64 `yaml:"pivot_near_vol"`
	PivotFarVol     float64 `yaml:"pivot_far_vol"`
	MinStopPct      float64 `yaml:"min_stop_pct"`
	MaxStopPct      float64 `yaml:"max_stop_pct"`
	LowCapitalBase  float64 `yaml:"low_capital_base"`
	LowCapMaxPct    float64 `yaml:"low_cap_max_pct"`
	TargetLow       float64 `yaml:"target_low"`
	TargetNormal    float64 `yaml:"target_normal"`
	TargetHigh      float64 `yaml:"target_high"`
	RRMin           float64 `yaml:"rr_min"`
	RRMax           float64 `yaml:"rr_max"`
}

// RuleWeights preserves the adaptive-threshold scenario constants as knobs.
type RuleWeights struct {
	TrendFollowing float64 `yaml:"trend_following"`
	CounterTrend   float64 `yaml:"counter_trend"`
	MeanReversion  float64 `yaml:"mean_reversion"`
	StrongRS       float64 `yaml:"strong_relative_strength"`
	HighVolatility float64 `yaml:"high_volatility"`
	LowVolatility  float64 `yaml:"low_volatility"`
}

// Evaluate mirrors the filter-pipeline knobs.
type Evaluate struct {
	ValiditySecs   int         `yaml:"validity_secs"`
	CooldownSecs   int         `yaml:"cooldown_secs"`
	RSMinMargin    float64     `yaml:"rs_min_margin"`
	RSStrongFactor float64     `yaml:"rs_strong_factor"`
	ShortHorizon   int         `yaml:"short_horizon"`
	MediumHorizon  int         `yaml:"medium_horizon"`
	LongHorizon    int         `yaml:"long_horizon"`
	OvertakeFactor float64     `yaml:"overtake_factor"`
	MeanRevSigma   float64     `yaml:"mean_rev_sigma"`
	BaseThreshold  float64     `yaml:"base_threshold"`
	ThresholdFloor float64     `yaml:"threshold_floor"`
	ThresholdCeil  float64     `yaml:"threshold_ceil"`
	Weights        RuleWeights `yaml:"weights"`
}

// CatalogEntry seeds instrument metadata for one underlying root.
type CatalogEntry struct {
	Root           string  `yaml:"root"`
	Index          bool    `yaml:"index"`
	LotSize        int     `yaml:"lot_size"`
	HasFutures     bool    `yaml:"has_futures"`
	HasOptions     bool    `yaml:"has_options"`
	Expiry         string  `yaml:"expiry"` // YYYY-MM-DD
	ImpliedVol     float64 `yaml:"implied_vol"`
	Premium        float64 `yaml:"premium"`
	FuturesSymbol  string  `yaml:"futures_symbol"`
	OptionSymbol   string  `yaml:"option_symbol"`
	AvgTradedValue float64 `yaml:"avg_traded_value"`
}

// Selector mirrors the instrument-selection thresholds.
type Selector struct {
	OptionsConfidence float64 `yaml:"options_confidence"`
	OptionsHighVol    float64 `yaml:"options_high_vol"`
	FuturesConfidence float64 `yaml:"futures_confidence"`
	MinExpiryDays     int     `yaml:"min_expiry_days"`
	IVElevated        float64 `yaml:"iv_elevated"`
	MinPremium        float64 `yaml:"min_premium"`
	MinAlignment      int     `yaml:"min_alignment"`
	MinTradedValue    float64 `yaml:"min_traded_value"`
	CashLeverage      float64 `yaml:"cash_leverage"`
	DerivLeverage     float64 `yaml:"deriv_leverage"`
}

// Instruments groups the catalog seed and refresh cadence.
type Instruments struct {
	RefreshMins int            `yaml:"refresh_mins"`
	Selector    Selector       `yaml:"selector"`
	Catalog     []CatalogEntry `yaml:"catalog"`
}

// Sizing mirrors the position-sizer caps.
type Sizing struct {
	RiskPct        float64 `yaml:"risk_pct"`
	MinOrderValue  float64 `yaml:"min_order_value"`
	DerivCapPct    float64 `yaml:"deriv_cap_pct"`
	CashCapPct     float64 `yaml:"cash_cap_pct"`
	LowCapitalBase float64 `yaml:"low_capital_base"`
}

// Lifecycle mirrors the position-management knobs.
type Lifecycle struct {
	MaxAgeMins          int     `yaml:"max_age_mins"`
	OptionsMaxAgeMins   int     `yaml:"options_max_age_mins"`
	PreCloseMins        int     `yaml:"pre_close_mins"`
	EmergencyLossAbs    float64 `yaml:"emergency_loss_abs"`
	EmergencyLossPct    float64 `yaml:"emergency_loss_pct"`
	ProfitLockPct       float64 `yaml:"profit_lock_pct"`
	OptionsLockPct      float64 `yaml:"options_lock_pct"`
	LockFraction        float64 `yaml:"lock_fraction"`
	OptionsLockFraction float64 `yaml:"options_lock_fraction"`
	PartialTriggerPct   float64 `yaml:"partial_trigger_pct"`
	PartialPct          float64 `yaml:"partial_pct"`
}

// Paper captures paper-broker settings.
type Paper struct {
	StartingCash float64 `yaml:"starting_cash"`
	FillsCap     int     `yaml:"fills_cap"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App         App         `yaml:"app"`
	Feed        Feed        `yaml:"feed"`
	Engine      Engine      `yaml:"engine"`
	Volatility  Volatility  `yaml:"volatility"`
	Levels      Levels      `yaml:"levels"`
	Evaluate    Evaluate    `yaml:"evaluate"`
	Instruments Instruments `yaml:"instruments"`
	Sizing      Sizing      `yaml:"sizing"`
	Lifecycle   Lifecycle   `yaml:"lifecycle"`
	Paper       Paper       `yaml:"paper"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
