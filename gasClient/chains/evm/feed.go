package evm

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pushchain/gas-monitor/gasClient/chains/common"
	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// PriorityFeeMode selects how an eip1559 feed obtains the priority fee.
type PriorityFeeMode string

const (
	PriorityFeeFixed  PriorityFeeMode = "fixed"
	PriorityFeePolled PriorityFeeMode = "polled"
)

const (
	defaultDialTimeout  = 15 * time.Second
	defaultCallTimeout  = 10 * time.Second
	defaultPollInterval = 15 * time.Second
	eventBufferSize     = 32
)

// FeedConfig describes one chain's upstream feed.
type FeedConfig struct {
	Chain           telemetry.ChainID
	Endpoint        string
	Family          telemetry.FeeFamily
	ExpectedChainID int64

	PriorityFeeGwei     float64
	PriorityFeeMode     PriorityFeeMode
	PriorityFeeInterval time.Duration

	DialTimeout time.Duration
	CallTimeout time.Duration

	// Now returns the wall clock; gas_price samples are stamped with it.
	Now func() time.Time
}

func (c *FeedConfig) applyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.PriorityFeeInterval <= 0 {
		c.PriorityFeeInterval = defaultPollInterval
	}
	if c.PriorityFeeMode == "" {
		c.PriorityFeeMode = PriorityFeeFixed
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Handle is an open feed. Events are delivered on Events until the feed
// fails or is closed; a transport failure produces exactly one terminal
// error event. Handles never reconnect.
type Handle struct {
	cfg    FeedConfig
	source HeadSource
	sub    ethereum.Subscription
	state  *common.StateTracker
	logger zerolog.Logger

	events chan common.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// priority fee in wei, stored as float64 bits
	priorityFee atomic.Uint64

	releaseOnce sync.Once
}

// Open dials the endpoint, subscribes to new heads and starts delivering
// samples. The returned handle must be closed by the caller.
func Open(ctx context.Context, cfg FeedConfig, dial Dialer, logger zerolog.Logger) (*Handle, error) {
	cfg.applyDefaults()
	if dial == nil {
		dial = DialEthClient
	}
	log := logger.With().
		Str("component", "evm_feed").
		Str("chain", string(cfg.Chain)).
		Logger()

	if !cfg.Family.Valid() {
		return nil, gcerrors.NewConfigError(string(cfg.Chain), "unknown fee family "+string(cfg.Family))
	}

	state := common.NewStateTracker(log)
	state.Transition(common.StateConnecting)

	source, err := dialAndVerify(ctx, dial, string(cfg.Chain), cfg.Endpoint, cfg.ExpectedChainID, cfg.DialTimeout, log)
	if err != nil {
		state.Transition(common.StateDisconnected)
		return nil, err
	}

	hctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		cfg:    cfg,
		source: source,
		state:  state,
		logger: log,
		events: make(chan common.Event, eventBufferSize),
		ctx:    hctx,
		cancel: cancel,
	}
	h.setPriorityFee(weiFromGwei(cfg.PriorityFeeGwei))

	heads := make(chan *types.Header, eventBufferSize)
	sub, err := source.SubscribeNewHead(ctx, heads)
	if err != nil {
		cancel()
		source.Close()
		state.Transition(common.StateDisconnected)
		return nil, gcerrors.NewConnectionError(string(cfg.Chain), "failed to subscribe to new heads", err).
			WithContext("endpoint", cfg.Endpoint)
	}
	h.sub = sub

	if cfg.Family == telemetry.FamilyEIP1559 && cfg.PriorityFeeMode == PriorityFeePolled {
		h.pollPriorityFee()
		h.wg.Add(1)
		go h.priorityFeeLoop()
	}

	state.Transition(common.StateConnected)
	log.Info().Str("family", string(cfg.Family)).Msg("feed connected")

	h.wg.Add(1)
	go h.run(heads)

	return h, nil
}

// Chain returns the chain this handle feeds.
func (h *Handle) Chain() telemetry.ChainID {
	return h.cfg.Chain
}

// Events returns the event channel. It is closed when the handle stops.
func (h *Handle) Events() <-chan common.Event {
	return h.events
}

// State returns the feed's lifecycle state.
func (h *Handle) State() common.FeedState {
	return h.state.State()
}

// Close releases the subscription, the polling ticker and the transport.
// It is idempotent and safe to call after the feed has failed.
func (h *Handle) Close() {
	h.release()
	h.wg.Wait()
}

func (h *Handle) release() {
	h.releaseOnce.Do(func() {
		h.cancel()
		if h.sub != nil {
			h.sub.Unsubscribe()
		}
		h.source.Close()
		h.state.Transition(common.StateDisconnected)
		h.logger.Info().Msg("feed released")
	})
}

func (h *Handle) run(heads <-chan *types.Header) {
	defer h.wg.Done()
	defer close(h.events)

	for {
		select {
		case <-h.ctx.Done():
			return
		case err := <-h.sub.Err():
			if h.ctx.Err() != nil {
				return
			}
			h.fail(err)
			return
		case header := <-heads:
			if header == nil {
				continue
			}
			h.handleHeader(header)
		}
	}
}

// fail reports a transport error once and releases the handle.
func (h *Handle) fail(err error) {
	h.state.Transition(common.StateErroring)
	chainErr := gcerrors.NewConnectionError(string(h.cfg.Chain), "head subscription failed", err)
	h.logger.Error().Err(err).Msg("feed error")
	h.emit(common.ErrorEvent(h.cfg.Chain, chainErr, true))
	h.release()
}

func (h *Handle) handleHeader(header *types.Header) {
	sample, err := h.sampleFromHeader(header)
	if err != nil {
		h.logger.Warn().Err(err).Uint64("block", blockNumber(header)).Msg("sample discarded")
		h.emit(common.ErrorEvent(h.cfg.Chain, err, false))
		return
	}
	h.emit(common.SampleEvent(h.cfg.Chain, sample))
}

func (h *Handle) sampleFromHeader(header *types.Header) (telemetry.GasSample, error) {
	number := blockNumber(header)

	switch h.cfg.Family {
	case telemetry.FamilyGasPrice:
		ctx, cancel := context.WithTimeout(h.ctx, h.cfg.CallTimeout)
		defer cancel()
		price, err := h.source.SuggestGasPrice(ctx)
		if err != nil {
			return telemetry.GasSample{}, gcerrors.NewRPCError(string(h.cfg.Chain), "failed to fetch gas price", err)
		}
		if price == nil {
			return telemetry.GasSample{}, gcerrors.NewMalformedSampleError(string(h.cfg.Chain), "node returned no gas price")
		}
		return telemetry.GasSample{
			BaseFee:      bigToFloat(price),
			PriorityFee:  0,
			BlockNumber:  number,
			TimestampSec: h.cfg.Now().Unix(),
		}, nil

	default:
		if header.BaseFee == nil {
			header = h.fetchHeader(header)
		}
		if header.BaseFee == nil {
			return telemetry.GasSample{}, gcerrors.NewMalformedSampleError(string(h.cfg.Chain), "header has no base fee")
		}
		return telemetry.GasSample{
			BaseFee:      bigToFloat(header.BaseFee),
			PriorityFee:  h.getPriorityFee(),
			BlockNumber:  number,
			TimestampSec: int64(header.Time),
		}, nil
	}
}

// fetchHeader re-reads a pushed head by number; some nodes push trimmed
// headers. The pushed header is returned when the lookup fails.
func (h *Handle) fetchHeader(pushed *types.Header) *types.Header {
	if pushed.Number == nil {
		return pushed
	}
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.CallTimeout)
	defer cancel()

	full, err := h.source.HeaderByNumber(ctx, pushed.Number)
	if err != nil || full == nil {
		h.logger.Debug().Err(err).Uint64("block", pushed.Number.Uint64()).Msg("failed to fetch full header")
		return pushed
	}
	return full
}

func (h *Handle) emit(e common.Event) {
	select {
	case h.events <- e:
	case <-h.ctx.Done():
	}
}

func (h *Handle) priorityFeeLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.PriorityFeeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.pollPriorityFee()
		}
	}
}

func (h *Handle) pollPriorityFee() {
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.CallTimeout)
	defer cancel()

	tip, err := h.source.SuggestGasTipCap(ctx)
	if err != nil || tip == nil {
		h.logger.Warn().Err(err).Msg("failed to poll priority fee, keeping previous value")
		return
	}
	h.setPriorityFee(bigToFloat(tip))
	h.logger.Debug().Float64("priority_fee_wei", bigToFloat(tip)).Msg("priority fee updated")
}

func (h *Handle) setPriorityFee(wei float64) {
	h.priorityFee.Store(math.Float64bits(wei))
}

func (h *Handle) getPriorityFee() float64 {
	return math.Float64frombits(h.priorityFee.Load())
}

func blockNumber(header *types.Header) uint64 {
	if header.Number == nil {
		return 0
	}
	return header.Number.Uint64()
}
