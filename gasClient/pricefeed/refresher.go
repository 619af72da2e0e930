package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
)

const defaultRefreshInterval = 30 * time.Second

// Sink receives refreshed prices.
type Sink interface {
	UpdateReferencePrice(price float64) error
}

// Refresher periodically fetches the reference price and pushes it to a
// Sink. It fetches once immediately on Start.
type Refresher struct {
	source   Source
	sink     Sink
	interval time.Duration
	retry    *gcerrors.RetryConfig
	logger   zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRefresher creates a refresher
func NewRefresher(source Source, sink Sink, interval time.Duration, logger zerolog.Logger) *Refresher {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Refresher{
		source:   source,
		sink:     sink,
		interval: interval,
		retry:    gcerrors.DefaultRetryConfig(),
		logger: logger.With().
			Str("component", "price_refresher").
			Str("source", source.Name()).
			Logger(),
	}
}

// Start begins refreshing. Calling Start on a running refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.loop(loopCtx)
}

// Stop cancels the refresher and waits for it to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Refresher) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("starting reference price refresher")
	r.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("context cancelled, stopping reference price refresher")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// refresh fetches once; failures keep the previous price.
func (r *Refresher) refresh(ctx context.Context) {
	var price float64
	err := gcerrors.RetryWithConfig(ctx, func() error {
		var innerErr error
		price, innerErr = r.source.FetchPrice(ctx)
		return innerErr
	}, r.retry)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("failed to fetch reference price")
		}
		return
	}

	if err := r.sink.UpdateReferencePrice(price); err != nil {
		r.logger.Error().Err(err).Float64("price", price).Msg("failed to update reference price")
		return
	}
	r.logger.Debug().Float64("price", price).Msg("reference price updated")
}
