package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-alpha-engine/internal/config"
	"solana-alpha-engine/internal/engine"
	"solana-alpha-engine/internal/execution"
	"solana-alpha-engine/internal/exit"
	"solana-alpha-engine/internal/ledger"
	"solana-alpha-engine/internal/marketdata"
	"solana-alpha-engine/internal/monitor"
	"solana-alpha-engine/internal/notify"
	"solana-alpha-engine/internal/signal"
	"solana-alpha-engine/internal/sizing"
	"solana-alpha-engine/internal/solana"
	"solana-alpha-engine/internal/storage"
	chstore "solana-alpha-engine/internal/storage/clickhouse"
	"solana-alpha-engine/internal/storage/memory"
	pgstore "solana-alpha-engine/internal/storage/postgres"
	"solana-alpha-engine/internal/storage/sqlite"
	"solana-alpha-engine/internal/tier"
	"solana-alpha-engine/internal/wallet"
)

// app holds the wired components and the resources to release on exit.
type app struct {
	engine   *engine.Engine
	recorder *ledger.Recorder
	archiver *monitor.Archiver
	telegram *notify.Telegram
	trades   storage.TradeRecordStore
	samples  storage.PriceSampleStore
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// runBackground starts the ledger and archive writers.
func (a *app) runBackground(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.recorder.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.archiver.Run(ctx)
	}()
}

func build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if err := a.openStores(ctx, cfg.Storage, logger); err != nil {
		return nil, err
	}

	// Market data: live sources for scanning and pricing, the cache as scan fallback.
	var (
		scanSources  []signal.SourceConfig
		priceSources []marketdata.Source
	)
	if dc := cfg.Sources.DexPairs; dc.Enabled {
		hc := sourceHTTP(cfg.Sources.RetryMax, dc.Timeout)
		src := marketdata.NewDexPairsSource(marketdata.DexPairsOptions{
			BaseURL:   dc.BaseURL,
			ChainID:   dc.ChainID,
			Queries:   dc.Queries,
			RateLimit: dc.RateLimit,
			HTTP:      hc,
		})
		scanSources = append(scanSources, signal.SourceConfig{Source: src, Timeout: dc.Timeout, Interval: dc.Interval})
		priceSources = append(priceSources, src)
	}
	if oc := cfg.Sources.Oracle; oc.Enabled {
		hc := sourceHTTP(cfg.Sources.RetryMax, oc.Timeout)
		src := marketdata.NewOracleSource(marketdata.OracleOptions{
			BaseURL:   oc.BaseURL,
			VsToken:   cfg.Engine.QuoteMint,
			RateLimit: oc.RateLimit,
			HTTP:      hc,
		})
		priceSources = append(priceSources, src)
	}
	// The cache only backs candidate scans. Held positions are priced from live sources.
	cache := marketdata.NewCacheSource(cfg.Signal.SeedQuotes(), cfg.Signal.CacheMaxAge)
	feed := marketdata.NewPriceFeed(signal.DefaultSourceTimeout, priceSources...)

	aggregator := signal.NewAggregator(signal.Options{
		Sources:          scanSources,
		Fallback:         cache,
		Scoring:          cfg.Signal.Scoring,
		MinMarketCap:     cfg.Signal.MinMarketCap,
		MinLiquidity:     cfg.Signal.MinLiquidity,
		BreakerThreshold: cfg.Signal.BreakerThreshold,
		BreakerReset:     cfg.Signal.BreakerReset,
		ValidateAsset:    solana.ValidatePublicKey,
		Logger:           logger,
	})

	tiers, err := tier.NewSelector(cfg.Tiers)
	if err != nil {
		return nil, fmt.Errorf("tiers: %w", err)
	}

	// Execution and the ledger differ between paper and live trading.
	var (
		ldg       ledger.Ledger
		holdings  engine.Holdings
		primary   execution.Router
		alternate execution.Router
		confirmer execution.Confirmer = execution.PaperConfirmer{}
		signer    wallet.Signer
	)
	if cfg.Live() {
		rpc := solana.NewHTTPClient(cfg.RPC.URL,
			solana.WithTimeout(cfg.RPC.Timeout),
			solana.WithMaxRetries(cfg.RPC.MaxRetries),
		)
		kp, err := wallet.LoadKeypairFile(cfg.Wallet.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("wallet: %w", err)
		}
		signer = kp
		chain := ledger.NewChainLedger(a.trades, rpc, kp.PublicKey(), cfg.Wallet.FeeReserve)
		ldg, holdings = chain, chain

		primary = newHTTPRouter(cfg.Routers.Primary, cfg.Routers.Decimals, rpc, cfg.Sources.RetryMax)
		if cfg.Routers.Alternate.BaseURL != "" {
			alternate = newHTTPRouter(cfg.Routers.Alternate, cfg.Routers.Decimals, rpc, cfg.Sources.RetryMax)
		}
		confirmer = execution.NewRPCConfirmer(rpc, cfg.Execution.ConfirmInterval, cfg.Execution.Commitment, logger)
		logger.WithField("wallet", kp.PublicKey()).Info("live trading")
	} else {
		ldg = ledger.NewPaperLedger(a.trades, cfg.Paper.InitialBalance)
		primary = execution.NewPaperRouter(feed, cfg.Paper.SlippageBps, execution.WithPaperQuoteMint(cfg.Engine.QuoteMint))
		logger.WithField("initial_balance", cfg.Paper.InitialBalance).Info("paper trading")
	}

	a.recorder = ledger.NewRecorder(ledger.RecorderOptions{
		Ledger: ldg,
		Buffer: cfg.Storage.LedgerBuffer,
		Logger: logger,
	})
	a.archiver = monitor.NewArchiver(monitor.ArchiverOptions{
		Store:         a.samples,
		Buffer:        cfg.Storage.ArchiveBuffer,
		BatchSize:     cfg.Storage.ArchiveBatch,
		FlushInterval: cfg.Storage.ArchiveFlush,
		Logger:        logger,
	})

	a.engine, err = engine.New(engine.Options{
		Scanner:  aggregator,
		Policy:   sizing.NewPolicy(cfg.Sizing),
		Tiers:    tiers,
		Ledger:   ldg,
		Holdings: holdings,
		Execution: execution.Options{
			Primary:           primary,
			Alternate:         alternate,
			Confirmer:         confirmer,
			Signer:            signer,
			Recorder:          a.recorder,
			QuoteMint:         cfg.Engine.QuoteMint,
			MaxRetries:        cfg.Execution.MaxRetries,
			BaseDelay:         cfg.Execution.BaseDelay,
			BackoffMultiplier: cfg.Execution.BackoffMultiplier,
			MaxDelay:          cfg.Execution.MaxDelay,
			AttemptTimeout:    cfg.Execution.AttemptTimeout,
			Deadline:          cfg.Execution.Deadline,
			History:           cfg.Execution.History,
		},
		Monitor: monitor.Options{
			Feed:         feed,
			Exit:         exit.NewEngine(cfg.Exit, nil),
			Archiver:     a.archiver,
			SampleWindow: cfg.Engine.SampleWindow,
			Concurrency:  cfg.Engine.Concurrency,
		},
		ScanInterval:     cfg.Engine.ScanInterval,
		MonitorInterval:  cfg.Engine.MonitorInterval,
		BalanceTimeout:   cfg.Engine.BalanceTimeout,
		MaxOpenPositions: cfg.Engine.MaxOpenPositions,
		TradeOnFallback:  cfg.Engine.TradeOnFallback,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Telegram.Token != "" {
		a.telegram, err = notify.NewTelegram(notify.TelegramOptions{
			Token:       cfg.Telegram.Token,
			ChatID:      cfg.Telegram.ChatID,
			APIEndpoint: cfg.Telegram.APIEndpoint,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// openStores connects the trade ledger store and the price-sample archive.
func (a *app) openStores(ctx context.Context, cfg config.StorageConfig, logger logrus.FieldLogger) error {
	switch cfg.Ledger {
	case config.LedgerMemory:
		a.trades = memory.NewTradeRecordStore()
	case config.LedgerSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		a.trades = sqlite.NewTradeRecordStore(db)
	case config.LedgerPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		applied, err := pool.Migrate(ctx)
		if err != nil {
			return err
		}
		logger.WithField("applied", applied).Info("postgres schema up to date")
		a.trades = pgstore.NewTradeRecordStore(pool)
	default:
		return fmt.Errorf("%w: unknown ledger %q", config.ErrInvalid, cfg.Ledger)
	}

	if cfg.ClickHouseDSN == "" {
		a.samples = memory.NewPriceSampleStore()
		logger.Info("price samples archived in memory")
		return nil
	}
	conn, err := chstore.Open(ctx, cfg.ClickHouseDSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	a.samples = chstore.NewPriceSampleStore(conn)
	return nil
}

func newHTTPRouter(rc config.RouterConfig, decimals map[string]int, rpc solana.RPCClient, retryMax int) *execution.HTTPRouter {
	return execution.NewHTTPRouter(execution.HTTPRouterOptions{
		Name:              rc.Name,
		BaseURL:           rc.BaseURL,
		RPC:               rpc,
		SlippageBps:       rc.SlippageBps,
		MaxPriceImpactPct: rc.MaxPriceImpactPct,
		Decimals:          decimals,
		Timeout:           rc.Timeout,
		RetryMax:          retryMax,
	})
}

func sourceHTTP(retryMax int, timeout time.Duration) marketdata.HTTPConfig {
	c := marketdata.DefaultHTTPConfig()
	c.RetryMax = retryMax
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}
