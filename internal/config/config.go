// Package config loads engine settings from a YAML file and ENGINE_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"solana-alpha-engine/internal/domain"
	"solana-alpha-engine/internal/execution"
	"solana-alpha-engine/internal/exit"
	"solana-alpha-engine/internal/ledger"
	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/monitor"
	"solana-alpha-engine/internal/observability"
	"solana-alpha-engine/internal/signal"
	"solana-alpha-engine/internal/sizing"
)

// EnvPrefix prefixes every environment override, e.g. ENGINE_API_ADDR.
const EnvPrefix = "ENGINE"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Ledger backends
const (
	LedgerMemory   = "memory"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Config stores all engine settings.
type Config struct {
	Log       LogConfig                   `mapstructure:"log"`
	API       APIConfig                   `mapstructure:"api"`
	Engine    EngineConfig                `mapstructure:"engine"`
	Paper     PaperConfig                 `mapstructure:"paper"`
	Tiers     []domain.StrategyTier       `mapstructure:"tiers"`
	Sizing    sizing.Config               `mapstructure:"sizing"`
	Exit      exit.Config                 `mapstructure:"exit"`
	Signal    SignalConfig                `mapstructure:"signal"`
	Sources   SourcesConfig               `mapstructure:"sources"`
	Routers   RoutersConfig               `mapstructure:"routers"`
	Execution ExecutionConfig             `mapstructure:"execution"`
	RPC       RPCConfig                   `mapstructure:"rpc"`
	Wallet    WalletConfig                `mapstructure:"wallet"`
	Storage   StorageConfig               `mapstructure:"storage"`
	Tracing   observability.TracingConfig `mapstructure:"tracing"`
	Telegram  TelegramConfig              `mapstructure:"telegram"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// APIConfig configures the operator HTTP server.
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// EngineConfig holds loop cadence and portfolio limits.
type EngineConfig struct {
	ScanInterval     time.Duration `mapstructure:"scan_interval"`
	MonitorInterval  time.Duration `mapstructure:"monitor_interval"`
	BalanceTimeout   time.Duration `mapstructure:"balance_timeout"`
	MaxOpenPositions int           `mapstructure:"max_open_positions"`
	TradeOnFallback  bool          `mapstructure:"trade_on_fallback"` // open positions from cached or seed data
	QuoteMint        string        `mapstructure:"quote_mint"`
	SampleWindow     int           `mapstructure:"sample_window"`
	Concurrency      int           `mapstructure:"concurrency"`
	AutoStart        bool          `mapstructure:"auto_start"`
}

// PaperConfig enables simulated fills.
type PaperConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	InitialBalance float64 `mapstructure:"initial_balance"`
	SlippageBps    int     `mapstructure:"slippage_bps"`
}

// SignalConfig configures candidate filtering and scoring.
type SignalConfig struct {
	MinMarketCap     float64              `mapstructure:"min_market_cap"`
	MinLiquidity     float64              `mapstructure:"min_liquidity"`
	BreakerThreshold int                  `mapstructure:"breaker_threshold"`
	BreakerReset     time.Duration        `mapstructure:"breaker_reset"`
	CacheMaxAge      time.Duration        `mapstructure:"cache_max_age"` // 0 keeps the last scan forever
	Scoring          signal.ScoringConfig `mapstructure:"scoring"`
	Seeds            []SeedConfig         `mapstructure:"seeds"`
}

// SeedConfig is a static fallback candidate.
type SeedConfig struct {
	Symbol         string  `mapstructure:"symbol"`
	AssetID        string  `mapstructure:"asset_id"`
	Price          float64 `mapstructure:"price"`
	Volume24h      float64 `mapstructure:"volume_24h"`
	MarketCap      float64 `mapstructure:"market_cap"`
	PriceChange24h float64 `mapstructure:"price_change_24h"`
	Holders        int     `mapstructure:"holders"`
	Liquidity      float64 `mapstructure:"liquidity"`
}

// Quote converts the seed to a token quote.
func (s SeedConfig) Quote() domain.TokenQuote {
	return domain.TokenQuote{
		Symbol:         s.Symbol,
		AssetID:        s.AssetID,
		Price:          s.Price,
		Volume24h:      s.Volume24h,
		MarketCap:      s.MarketCap,
		PriceChange24h: s.PriceChange24h,
		Holders:        s.Holders,
		Liquidity:      s.Liquidity,
	}
}

// SeedQuotes returns the configured seeds as quotes.
func (c SignalConfig) SeedQuotes() []domain.TokenQuote {
	out := make([]domain.TokenQuote, 0, len(c.Seeds))
	for _, s := range c.Seeds {
		out = append(out, s.Quote())
	}
	return out
}

// SourcesConfig lists the live market-data sources.
type SourcesConfig struct {
	DexPairs DexPairsConfig `mapstructure:"dexpairs"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	RetryMax int            `mapstructure:"retry_max"`
}

// DexPairsConfig configures the aggregated-pair source.
type DexPairsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	ChainID   string        `mapstructure:"chain_id"`
	Queries   []string      `mapstructure:"queries"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Interval  time.Duration `mapstructure:"interval"`
}

// OracleConfig configures the price-oracle source.
type OracleConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RoutersConfig names the primary swap router and an optional alternate.
type RoutersConfig struct {
	Primary   RouterConfig   `mapstructure:"primary"`
	Alternate RouterConfig   `mapstructure:"alternate"` // empty base_url disables
	Decimals  map[string]int `mapstructure:"decimals"`  // mint decimals overrides
}

// RouterConfig configures one HTTP swap router.
type RouterConfig struct {
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	SlippageBps       int           `mapstructure:"slippage_bps"`
	MaxPriceImpactPct float64       `mapstructure:"max_price_impact_pct"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ExecutionConfig configures the submitter retry policy and confirmation.
type ExecutionConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	Deadline          time.Duration `mapstructure:"deadline"`
	History           int           `mapstructure:"history"`
	ConfirmInterval   time.Duration `mapstructure:"confirm_interval"`
	Commitment        string        `mapstructure:"commitment"`
}

// RPCConfig configures the Solana JSON-RPC client.
type RPCConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// WalletConfig locates the trading keypair.
type WalletConfig struct {
	KeypairPath string  `mapstructure:"keypair_path"`
	FeeReserve  float64 `mapstructure:"fee_reserve"` // SOL kept back for fees
}

// StorageConfig selects the ledger backend and the price-sample archive.
type StorageConfig struct {
	Ledger           string        `mapstructure:"ledger"` // memory, sqlite or postgres
	SQLitePath       string        `mapstructure:"sqlite_path"`
	PostgresDSN      string        `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32         `mapstructure:"postgres_max_conns"`
	ClickHouseDSN    string        `mapstructure:"clickhouse_dsn"` // empty archives in memory
	ArchiveBuffer    int           `mapstructure:"archive_buffer"`
	ArchiveBatch     int           `mapstructure:"archive_batch"`
	ArchiveFlush     time.Duration `mapstructure:"archive_flush"`
	LedgerBuffer     int           `mapstructure:"ledger_buffer"`
}

// TelegramConfig configures operator alerts. An empty token disables them.
type TelegramConfig struct {
	Token       string `mapstructure:"token"`
	ChatID      int64  `mapstructure:"chat_id"`
	APIEndpoint string `mapstructure:"api_endpoint"`
}

// Default returns the built-in configuration used beneath the file and environment.
func Default() Config {
	return Config{
		Tiers:  domain.DefaultTiers(),
		Sizing: sizing.DefaultConfig(),
		Exit:   exit.DefaultConfig(),
		Signal: SignalConfig{
			Scoring: signal.DefaultScoring(),
		},
	}
}

// defaults are registered with viper so every scalar key can be overridden from the environment.
var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"api.addr": ":8080",

	"engine.scan_interval":      30 * time.Second,
	"engine.monitor_interval":   5 * time.Second,
	"engine.balance_timeout":    5 * time.Second,
	"engine.max_open_positions": 10,
	"engine.trade_on_fallback":  false,
	"engine.quote_mint":         marketdata.WrappedSOLMint,
	"engine.sample_window":      monitor.DefaultSampleWindow,
	"engine.concurrency":        monitor.DefaultConcurrency,
	"engine.auto_start":         false,

	"paper.enabled":         false,
	"paper.initial_balance": 100.0,
	"paper.slippage_bps":    execution.DefaultSlippageBps,

	"sizing.absolute_ceiling_percent":  sizing.DefaultAbsoluteCeilingPercent,
	"sizing.max_confidence_multiplier": sizing.DefaultMaxConfidenceMultiplier,
	"sizing.confidence_pivot":          sizing.DefaultConfidencePivot,
	"sizing.min_trade_amount":          sizing.DefaultMinTradeAmount,

	"signal.min_market_cap":    signal.DefaultMinMarketCap,
	"signal.min_liquidity":     signal.DefaultMinLiquidity,
	"signal.breaker_threshold": signal.DefaultBreakerThreshold,
	"signal.breaker_reset":     signal.DefaultBreakerReset,
	"signal.cache_max_age":     10 * time.Minute,

	"sources.retry_max":           marketdata.DefaultRetryMax,
	"sources.dexpairs.enabled":    true,
	"sources.dexpairs.base_url":   "https://api.dexscreener.com",
	"sources.dexpairs.chain_id":   "solana",
	"sources.dexpairs.queries":    []string{"SOL"},
	"sources.dexpairs.rate_limit": 5.0,
	"sources.dexpairs.timeout":    signal.DefaultSourceTimeout,
	"sources.dexpairs.interval":   time.Duration(0),
	"sources.oracle.enabled":      true,
	"sources.oracle.base_url":     "https://lite-api.jup.ag",
	"sources.oracle.rate_limit":   1.0,
	"sources.oracle.timeout":      signal.DefaultSourceTimeout,

	"routers.primary.name":                 "jupiter",
	"routers.primary.base_url":             "https://lite-api.jup.ag/swap/v1",
	"routers.primary.slippage_bps":         execution.DefaultSlippageBps,
	"routers.primary.max_price_impact_pct": execution.DefaultMaxPriceImpactPct,
	"routers.primary.timeout":              execution.DefaultRouterTimeout,
	"routers.alternate.name":               "alternate",
	"routers.alternate.base_url":           "",

	"execution.max_retries":        execution.DefaultMaxRetries,
	"execution.base_delay":         execution.DefaultBaseDelay,
	"execution.backoff_multiplier": execution.DefaultBackoffMultiplier,
	"execution.max_delay":          execution.DefaultMaxDelay,
	"execution.attempt_timeout":    execution.DefaultAttemptTimeout,
	"execution.deadline":           execution.DefaultDeadline,
	"execution.history":            execution.DefaultHistory,
	"execution.confirm_interval":   execution.DefaultPollInterval,
	"execution.commitment":         "confirmed",

	"rpc.url":         "https://api.mainnet-beta.solana.com",
	"rpc.timeout":     30 * time.Second,
	"rpc.max_retries": 3,

	"wallet.keypair_path": "",
	"wallet.fee_reserve":  ledger.DefaultFeeReserve,

	"storage.ledger":             LedgerSQLite,
	"storage.sqlite_path":        "data/ledger.db",
	"storage.postgres_dsn":       "",
	"storage.postgres_max_conns": int32(10),
	"storage.clickhouse_dsn":     "",
	"storage.archive_buffer":     1024,
	"storage.archive_batch":      100,
	"storage.archive_flush":      5 * time.Second,
	"storage.ledger_buffer":      256,

	"tracing.endpoint": "",
	"tracing.insecure": true,
	"tracing.sample":   1.0,

	"telegram.token":        "",
	"telegram.chat_id":      int64(0),
	"telegram.api_endpoint": "",
}

// Load reads config.yaml from dir (when present), applies ENGINE_ environment
// overrides on top and validates the result. An empty dir reads the environment only.
func Load(dir string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Default()
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)), func(dc *mapstructure.DecoderConfig) {
		// Lists from the file replace the built-in tables instead of merging into them.
		dc.ZeroFields = true
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Live reports whether the engine trades real funds.
func (c *Config) Live() bool {
	return !c.Paper.Enabled
}

// Validate checks the settings the engine cannot run without.
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("%w: no strategy tiers", ErrInvalid)
	}
	for _, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("%w: tier without name", ErrInvalid)
		}
		if t.MaxPositionPercent <= 0 || t.MaxPositionPercent > 100 {
			return fmt.Errorf("%w: tier %s max_position_percent %v outside (0,100]", ErrInvalid, t.Name, t.MaxPositionPercent)
		}
		if t.MinBalance < 0 {
			return fmt.Errorf("%w: tier %s negative min_balance", ErrInvalid, t.Name)
		}
	}
	if p := c.Sizing.AbsoluteCeilingPercent; p <= 0 || p > 100 {
		return fmt.Errorf("%w: sizing absolute_ceiling_percent %v outside (0,100]", ErrInvalid, p)
	}

	intervals := map[string]time.Duration{
		"engine.scan_interval":       c.Engine.ScanInterval,
		"engine.monitor_interval":    c.Engine.MonitorInterval,
		"execution.attempt_timeout":  c.Execution.AttemptTimeout,
		"execution.deadline":         c.Execution.Deadline,
		"execution.confirm_interval": c.Execution.ConfirmInterval,
	}
	for key, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, key)
		}
	}
	if c.Engine.MaxOpenPositions <= 0 {
		return fmt.Errorf("%w: engine.max_open_positions must be positive", ErrInvalid)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}

	switch c.Storage.Ledger {
	case LedgerMemory:
	case LedgerSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: storage.sqlite_path required", ErrInvalid)
		}
	case LedgerPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: storage.ledger %q", ErrInvalid, c.Storage.Ledger)
	}

	if c.Paper.Enabled {
		if c.Paper.InitialBalance <= 0 {
			return fmt.Errorf("%w: paper.initial_balance must be positive", ErrInvalid)
		}
		return nil
	}

	// Live trading
	if c.Routers.Primary.BaseURL == "" {
		return fmt.Errorf("%w: routers.primary.base_url required", ErrInvalid)
	}
	if c.RPC.URL == "" {
		return fmt.Errorf("%w: rpc.url required", ErrInvalid)
	}
	if c.Wallet.KeypairPath == "" {
		return fmt.Errorf("%w: wallet.keypair_path required", ErrInvalid)
	}
	return nil
}
