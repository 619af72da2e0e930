// Package chains owns the lifecycle of every chain feed.
package chains

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/gas-monitor/gasClient/chains/common"
	"github.com/pushchain/gas-monitor/gasClient/chains/evm"
	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// ChainSpec describes one monitored chain.
type ChainSpec struct {
	Info telemetry.ChainInfo
	Feed evm.FeedConfig
	// Seed, when set, is installed before the first block arrives.
	Seed *telemetry.GasSample
}

// SampleArchive persists accepted samples.
type SampleArchive interface {
	RecordSample(chain telemetry.ChainID, sample telemetry.GasSample) error
}

// Recorder receives feed level measurements.
type Recorder interface {
	FeedError(chain telemetry.ChainID, code string)
	SampleDiscarded(chain telemetry.ChainID, reason string)
	SetChainConnected(chain telemetry.ChainID, connected bool)
}

// PriceRefresher is the reference price loop owned by the live scope.
type PriceRefresher interface {
	Start(ctx context.Context)
	Stop()
}

// ErrNotLive is the cause of a Reconnect issued outside live mode.
var ErrNotLive = errors.New("reconnect requires live mode")

// Option configures a Manager.
type Option func(*Manager)

// WithDialer overrides how feed endpoints are dialed.
func WithDialer(d evm.Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithRefresher attaches the reference price refresher.
func WithRefresher(r PriceRefresher) Option {
	return func(m *Manager) { m.refresher = r }
}

// WithArchive attaches a sample archive.
func WithArchive(a SampleArchive) Option {
	return func(m *Manager) { m.archive = a }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

type feedHandle struct {
	feed *evm.Handle
	done chan struct{}
}

// Manager opens every feed and the price refresher when the store enters
// live mode and tears all of them down together when it leaves live mode or
// the manager stops. Feeds that fail stay disconnected until Reconnect is
// called or live mode is entered again.
type Manager struct {
	store     *telemetry.Store
	specs     []ChainSpec
	specByID  map[telemetry.ChainID]ChainSpec
	dial      evm.Dialer
	refresher PriceRefresher
	archive   SampleArchive
	recorder  Recorder
	logger    zerolog.Logger

	// live scope
	mu          sync.Mutex
	handles     map[telemetry.ChainID]*feedHandle
	live        bool
	generation  uint64
	scopeCtx    context.Context
	scopeCancel context.CancelFunc
	opening     sync.WaitGroup

	// orders a chain's connected flag with handle registration
	connMu sync.Mutex

	// background control
	muRunning   sync.Mutex
	running     bool
	modeCh      chan struct{}
	stopCh      chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()
}

// NewManager creates a manager for specs.
func NewManager(store *telemetry.Store, specs []ChainSpec, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		specs:    specs,
		specByID: make(map[telemetry.ChainID]ChainSpec, len(specs)),
		dial:     evm.DialEthClient,
		logger:   logger.With().Str("component", "chains").Logger(),
		handles:  make(map[telemetry.ChainID]*feedHandle),
	}
	for _, spec := range specs {
		m.specByID[spec.Info.ID] = spec
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start seeds chains, applies the store's current mode and follows mode
// changes until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.muRunning.Lock()
	defer m.muRunning.Unlock()

	if m.running {
		return nil
	}

	m.Seed()

	m.running = true
	m.modeCh = make(chan struct{}, 1)
	m.stopCh = make(chan struct{})
	m.unsubscribe = m.store.Subscribe(func(next, prev telemetry.Snapshot) {
		if next.Mode != prev.Mode {
			m.signalMode()
		}
	})

	m.applyMode(ctx, m.store.Snapshot().Mode)

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// Stop tears down the live scope and stops following the store.
func (m *Manager) Stop() {
	m.muRunning.Lock()
	if !m.running {
		m.muRunning.Unlock()
		return
	}
	m.unsubscribe()
	close(m.stopCh)
	m.running = false
	m.muRunning.Unlock()

	m.wg.Wait()
	m.teardown()
}

// signalMode records that the mode changed. Pending signals coalesce; the
// handler reads the mode from the store, never from the notification.
func (m *Manager) signalMode() {
	select {
	case m.modeCh <- struct{}{}:
	default:
	}
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("chains: context canceled; stopping")
			return
		case <-m.stopCh:
			m.logger.Info().Msg("chains: stop requested; stopping")
			return
		case <-m.modeCh:
			m.applyMode(ctx, m.store.Snapshot().Mode)
		}
	}
}

func (m *Manager) applyMode(ctx context.Context, mode telemetry.Mode) {
	if mode == telemetry.ModeLive {
		m.enterLive(ctx)
		return
	}
	m.teardown()
}

// Seed installs configured baseline samples on chains that have none.
func (m *Manager) Seed() {
	now := time.Now().Unix()
	for _, spec := range m.specs {
		if spec.Seed == nil {
			continue
		}
		sample := *spec.Seed
		if sample.TimestampSec == 0 {
			// a second behind the clock so a head stamped now still appends
			sample.TimestampSec = now - 1
		}
		seeded, err := m.store.SeedGasData(spec.Info.ID, sample)
		if err != nil {
			m.logger.Warn().Err(err).Str("chain", string(spec.Info.ID)).Msg("failed to seed chain")
			continue
		}
		if seeded {
			m.logger.Debug().Str("chain", string(spec.Info.ID)).Msg("seeded chain with baseline sample")
		}
	}
}

func (m *Manager) enterLive(parent context.Context) {
	m.mu.Lock()
	if m.live {
		m.mu.Unlock()
		return
	}
	m.live = true
	m.generation++
	m.scopeCtx, m.scopeCancel = context.WithCancel(parent)
	scopeCtx := m.scopeCtx
	gen := m.generation
	m.mu.Unlock()

	m.logger.Info().Int("chains", len(m.specs)).Msg("entering live mode")

	if m.refresher != nil {
		m.refresher.Start(scopeCtx)
	}

	for _, spec := range m.specs {
		spec := spec
		m.opening.Add(1)
		go func() {
			defer m.opening.Done()
			if err := m.openFeed(scopeCtx, gen, spec); err != nil {
				m.logger.Error().Err(err).Str("chain", string(spec.Info.ID)).Msg("failed to open feed")
			}
		}()
	}
}

// teardown closes every feed and stops the refresher as one step. It is
// safe to call when no live scope exists.
func (m *Manager) teardown() {
	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}
	m.live = false
	m.generation++
	m.scopeCancel()
	handles := m.handles
	m.handles = make(map[telemetry.ChainID]*feedHandle)
	m.mu.Unlock()

	// feeds still dialing observe the cancelled scope and close themselves
	m.opening.Wait()

	if m.refresher != nil {
		m.refresher.Stop()
	}

	for id, fh := range handles {
		fh.feed.Close()
		<-fh.done
		m.markDisconnected(id)
	}

	// chains whose feeds never opened are already disconnected; make sure
	// no flag is left behind by an open that raced the teardown
	for _, spec := range m.specs {
		m.markDisconnected(spec.Info.ID)
	}

	m.logger.Info().Int("closed_feeds", len(handles)).Msg("live scope torn down")
}

// Reconnect reopens one chain's feed while in live mode. It is a no-op
// when the feed is already open.
func (m *Manager) Reconnect(ctx context.Context, chainID telemetry.ChainID) error {
	spec, ok := m.specByID[chainID]
	if !ok {
		return gcerrors.NewInvariantViolation(string(chainID), "unknown chain")
	}

	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return gcerrors.NewConnectionError(string(chainID), "reconnect rejected", ErrNotLive)
	}
	if _, open := m.handles[chainID]; open {
		m.mu.Unlock()
		return nil
	}
	scopeCtx := m.scopeCtx
	gen := m.generation
	m.opening.Add(1)
	m.mu.Unlock()
	defer m.opening.Done()

	openCtx, cancel := context.WithCancel(scopeCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return m.openFeed(openCtx, gen, spec)
}

// IsLive reports whether the live scope is active.
func (m *Manager) IsLive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// OpenFeeds returns the number of open feeds.
func (m *Manager) OpenFeeds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

func (m *Manager) openFeed(ctx context.Context, gen uint64, spec ChainSpec) error {
	id := spec.Info.ID
	cfg := spec.Feed
	cfg.Chain = id
	cfg.Family = spec.Info.Family

	feed, err := evm.Open(ctx, cfg, m.dial, m.logger)
	if err != nil {
		m.recordError(id, err)
		return err
	}

	m.connMu.Lock()
	m.mu.Lock()
	if !m.live || m.generation != gen {
		m.mu.Unlock()
		m.connMu.Unlock()
		feed.Close()
		return gcerrors.NewConnectionError(string(id), "live scope ended while connecting", nil)
	}
	if _, exists := m.handles[id]; exists {
		m.mu.Unlock()
		m.connMu.Unlock()
		feed.Close()
		return nil
	}
	fh := &feedHandle{feed: feed, done: make(chan struct{})}
	m.handles[id] = fh
	m.mu.Unlock()

	if err := m.store.ConnectChain(id); err != nil {
		m.logger.Error().Err(err).Str("chain", string(id)).Msg("failed to mark chain connected")
	}
	if m.recorder != nil {
		m.recorder.SetChainConnected(id, true)
	}
	m.connMu.Unlock()

	go m.consume(id, fh)
	return nil
}

// consume forwards one feed's events into the store.
func (m *Manager) consume(id telemetry.ChainID, fh *feedHandle) {
	defer close(fh.done)
	log := m.logger.With().Str("chain", string(id)).Logger()

	for e := range fh.feed.Events() {
		switch e.Kind {
		case common.EventSample:
			if err := m.store.UpdateGasData(id, e.Sample); err != nil {
				m.recordError(id, err)
				continue
			}
			if m.archive != nil {
				if err := m.archive.RecordSample(id, e.Sample); err != nil {
					log.Warn().Err(err).Msg("failed to archive sample")
				}
			}

		case common.EventError:
			m.recordError(id, e.Err)
			if !e.Terminal {
				continue
			}
			log.Error().Err(e.Err).Msg("feed failed; chain stays disconnected until reconnect")
			m.retire(id, fh)
			fh.feed.Close()
		}
	}
}

// retire unregisters a failed handle and marks its chain disconnected as
// one step. A handle already replaced by a reconnect or dropped by a
// teardown leaves the chain's flag alone.
func (m *Manager) retire(id telemetry.ChainID, fh *feedHandle) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.mu.Lock()
	current := m.handles[id] == fh
	if current {
		delete(m.handles, id)
	}
	m.mu.Unlock()

	if current {
		m.markDisconnected(id)
	}
}

func (m *Manager) markDisconnected(id telemetry.ChainID) {
	if err := m.store.DisconnectChain(id); err != nil {
		m.logger.Warn().Err(err).Str("chain", string(id)).Msg("failed to mark chain disconnected")
	}
	if m.recorder != nil {
		m.recorder.SetChainConnected(id, false)
	}
}

func (m *Manager) recordError(id telemetry.ChainID, err error) {
	if m.recorder == nil || err == nil {
		return
	}
	code := gcerrors.CodeOf(err)
	m.recorder.FeedError(id, string(code))
	if code == gcerrors.ErrCodeMalformedSample {
		m.recorder.SampleDiscarded(id, "malformed")
	}
}
