// Package core assembles the gas monitor from its configured parts.
package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/pushchain/gas-monitor/gasClient/api"
	"github.com/pushchain/gas-monitor/gasClient/chains"
	"github.com/pushchain/gas-monitor/gasClient/chains/evm"
	"github.com/pushchain/gas-monitor/gasClient/config"
	"github.com/pushchain/gas-monitor/gasClient/db"
	"github.com/pushchain/gas-monitor/gasClient/metrics"
	"github.com/pushchain/gas-monitor/gasClient/pricefeed"
	"github.com/pushchain/gas-monitor/gasClient/reactivity"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// Option customizes a GasMonitor.
type Option func(*GasMonitor)

// WithDialer replaces the chain feed dialer.
func WithDialer(d evm.Dialer) Option {
	return func(g *GasMonitor) { g.dialer = d }
}

// WithPriceSource replaces the configured reference price source.
func WithPriceSource(s pricefeed.Source) Option {
	return func(g *GasMonitor) { g.priceSource = s }
}

// WithoutQueryServer disables the HTTP server.
func WithoutQueryServer() Option {
	return func(g *GasMonitor) { g.noServer = true }
}

type GasMonitor struct {
	ctx context.Context
	cfg config.Config
	log zerolog.Logger

	dialer      evm.Dialer
	priceSource pricefeed.Source
	noServer    bool

	store      *telemetry.Store
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	controller *reactivity.Controller
	refresher  *pricefeed.Refresher
	manager    *chains.Manager
	database   *db.DB
	cleaner    *db.SampleCleaner
	server     *api.Server

	// closed on Stop when the uniswap source owns a client
	priceClient *ethclient.Client

	stopOnce sync.Once
}

// NewGasMonitor builds every component from cfg. Nothing runs until Start.
func NewGasMonitor(ctx context.Context, log zerolog.Logger, cfg config.Config, opts ...Option) (*GasMonitor, error) {
	g := &GasMonitor{
		ctx:    ctx,
		cfg:    cfg,
		log:    log,
		dialer: evm.DialEthClient,
	}
	for _, opt := range opts {
		opt(g)
	}

	mode, err := telemetry.ParseMode(cfg.InitialMode)
	if err != nil {
		return nil, err
	}

	specs, err := buildChainSpecs(&cfg)
	if err != nil {
		return nil, err
	}
	infos := make([]telemetry.ChainInfo, 0, len(specs))
	for _, spec := range specs {
		infos = append(infos, spec.Info)
	}

	g.store = telemetry.NewStore(infos, mode, telemetry.SimulationInput{
		Amount:   cfg.Simulation.DefaultAmount,
		GasLimit: cfg.Simulation.DefaultGasLimit,
	}, log)

	g.registry = prometheus.NewRegistry()
	g.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if g.metrics, err = metrics.New(g.registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	g.store.SetObserver(g.metrics)

	if err := g.store.UpdateReferencePrice(cfg.PriceConfig.StaticPrice); err != nil {
		return nil, fmt.Errorf("invalid startup reference price: %w", err)
	}
	g.metrics.SetReferencePrice(cfg.PriceConfig.StaticPrice)

	if g.priceSource == nil {
		if g.priceSource, err = g.newPriceSource(); err != nil {
			return nil, err
		}
	}
	g.refresher = pricefeed.NewRefresher(
		g.priceSource,
		&priceSink{store: g.store, metrics: g.metrics},
		time.Duration(cfg.PriceConfig.RefreshIntervalSeconds)*time.Second,
		log,
	)

	g.controller = reactivity.NewController(g.store, g.metrics, log)

	managerOpts := []chains.Option{
		chains.WithDialer(g.dialer),
		chains.WithRefresher(g.refresher),
		chains.WithRecorder(g.metrics),
	}
	if cfg.Database.Enabled {
		if err := g.openArchive(specs); err != nil {
			g.closePriceClient()
			return nil, err
		}
		managerOpts = append(managerOpts, chains.WithArchive(g.database))
	}
	g.manager = chains.NewManager(g.store, specs, log, managerOpts...)

	if !g.noServer {
		g.server = api.NewServer(log, cfg.QueryServerPort, g.store, g.manager, g.registry)
	}
	return g, nil
}

func (g *GasMonitor) newPriceSource() (pricefeed.Source, error) {
	pc := g.cfg.PriceConfig
	if pc.Source != "uniswap_v3" {
		return pricefeed.NewStaticSource(pc.StaticPrice, pc.Jitter, time.Now().UnixNano()), nil
	}

	client, err := ethclient.DialContext(g.ctx, pc.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial price rpc %s: %w", pc.RPCURL, err)
	}
	source, err := pricefeed.NewUniswapV3Source(client, pc.PoolAddress, pc.Token0Decimals, pc.Token1Decimals)
	if err != nil {
		client.Close()
		return nil, err
	}
	g.priceClient = client
	return source, nil
}

func (g *GasMonitor) openArchive(specs []chains.ChainSpec) error {
	dir := g.cfg.Database.Dir
	if dir == "" {
		dir = filepath.Join(g.cfg.NodeHome, "data")
	}
	database, err := db.OpenFileDB(dir, db.DefaultFilename, true)
	if err != nil {
		return fmt.Errorf("failed to open sample archive: %w", err)
	}
	g.database = database

	restored, err := database.Restore(g.store, g.cfg.Database.RetentionSamples)
	if err != nil {
		g.log.Warn().Err(err).Msg("failed to restore archived samples")
	} else if restored > 0 {
		g.log.Info().Int("chains", restored).Msg("restored archived samples")
	}

	ids := make([]telemetry.ChainID, 0, len(specs))
	for _, spec := range specs {
		ids = append(ids, spec.Info.ID)
	}
	g.cleaner = db.NewSampleCleaner(
		database,
		ids,
		g.cfg.Database.RetentionSamples,
		time.Duration(g.cfg.Database.CleanupIntervalSeconds)*time.Second,
		g.log,
	)
	return nil
}

// Start runs the monitor until its context is canceled, then shuts down.
func (g *GasMonitor) Start() error {
	g.log.Info().
		Str("mode", g.store.Snapshot().Mode.String()).
		Int("chains", len(g.store.Snapshot().ChainIDs())).
		Msg("🚀 Starting gas monitor...")

	if err := g.start(); err != nil {
		g.Stop()
		return err
	}

	g.log.Info().Msg("✅ Initialization complete. Entering main loop...")
	<-g.ctx.Done()

	g.log.Info().Msg("🛑 Shutting down gas monitor...")
	g.Stop()
	return nil
}

func (g *GasMonitor) start() error {
	if g.cleaner != nil {
		if err := g.cleaner.Start(g.ctx); err != nil {
			return fmt.Errorf("failed to start sample cleaner: %w", err)
		}
	}

	g.controller.Start()

	if err := g.manager.Start(g.ctx); err != nil {
		return fmt.Errorf("failed to start chain manager: %w", err)
	}

	if g.server != nil {
		if err := g.server.Start(); err != nil {
			return fmt.Errorf("failed to start query server: %w", err)
		}
	}
	return nil
}

// Stop releases every component. It is safe to call more than once.
func (g *GasMonitor) Stop() {
	g.stopOnce.Do(func() {
		if g.server != nil {
			if err := g.server.Stop(); err != nil {
				g.log.Warn().Err(err).Msg("failed to stop query server")
			}
		}
		g.manager.Stop()
		g.controller.Stop()
		if g.cleaner != nil {
			g.cleaner.Stop()
		}
		if g.database != nil {
			if err := g.database.Close(); err != nil {
				g.log.Warn().Err(err).Msg("failed to close sample archive")
			}
		}
		g.closePriceClient()
	})
}

func (g *GasMonitor) closePriceClient() {
	if g.priceClient != nil {
		g.priceClient.Close()
		g.priceClient = nil
	}
}

// Store exposes the telemetry store.
func (g *GasMonitor) Store() *telemetry.Store {
	return g.store
}

// Manager exposes the chain manager.
func (g *GasMonitor) Manager() *chains.Manager {
	return g.manager
}

// Registry exposes the metrics registry.
func (g *GasMonitor) Registry() *prometheus.Registry {
	return g.registry
}

// priceSink forwards refreshed prices to the store and the price gauge.
type priceSink struct {
	store   *telemetry.Store
	metrics *metrics.Metrics
}

func (s *priceSink) UpdateReferencePrice(price float64) error {
	if err := s.store.UpdateReferencePrice(price); err != nil {
		return err
	}
	s.metrics.SetReferencePrice(price)
	return nil
}
