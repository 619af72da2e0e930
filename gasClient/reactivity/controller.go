// Package reactivity keeps the simulation result consistent with its inputs.
package reactivity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/gas-monitor/gasClient/simulation"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// Recorder observes completed recomputations.
type Recorder interface {
	SimulationRecomputed(elapsed time.Duration)
}

// Controller subscribes to a Store and recomputes the simulation whenever
// one of its inputs changes while the engine is in simulation mode.
type Controller struct {
	store    *telemetry.Store
	recorder Recorder
	logger   zerolog.Logger

	// serializes recomputations so the last one always reads the newest state
	mu          sync.Mutex
	unsubscribe func()
}

// NewController creates a controller. recorder may be nil.
func NewController(store *telemetry.Store, recorder Recorder, logger zerolog.Logger) *Controller {
	return &Controller{
		store:    store,
		recorder: recorder,
		logger:   logger.With().Str("component", "reactivity").Logger(),
	}
}

// Start subscribes to the store and recomputes once if already in
// simulation mode.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.unsubscribe != nil {
		c.mu.Unlock()
		return
	}
	c.unsubscribe = c.store.Subscribe(c.onChange)
	c.mu.Unlock()

	if c.store.Snapshot().Mode == telemetry.ModeSimulation {
		c.recompute()
	}
}

// Stop removes the subscription.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Controller) onChange(next, prev telemetry.Snapshot) {
	if ShouldRecompute(prev, next) {
		c.recompute()
	}
}

func (c *Controller) recompute() {
	c.mu.Lock()
	defer c.mu.Unlock()

	started := time.Now()
	current := c.store.Snapshot()
	if current.Mode != telemetry.ModeSimulation {
		return
	}

	result := simulation.Compute(current)
	if err := c.store.SetSimulationResult(result); err != nil {
		c.logger.Error().Err(err).Uint64("version", current.Version).Msg("failed to commit simulation result")
		return
	}
	if c.recorder != nil {
		c.recorder.SimulationRecomputed(time.Since(started))
	}
	c.logger.Debug().
		Uint64("version", current.Version).
		Int("chains", len(result)).
		Msg("simulation recomputed")
}

// ShouldRecompute reports whether the transition prev -> next changes an
// input of the simulation while in simulation mode. Entering simulation
// mode counts as a change. The result itself is never an input.
func ShouldRecompute(prev, next telemetry.Snapshot) bool {
	if next.Mode != telemetry.ModeSimulation {
		return false
	}
	if prev.Mode != telemetry.ModeSimulation {
		return true
	}
	if prev.ReferencePrice != next.ReferencePrice {
		return true
	}
	if prev.Input.Amount != next.Input.Amount || prev.Input.GasLimit != next.Input.GasLimit {
		return true
	}
	for _, id := range next.ChainIDs() {
		a, _ := prev.Chain(id)
		b, _ := next.Chain(id)
		if !sameSample(a.LatestSample, b.LatestSample) {
			return true
		}
	}
	return false
}

func sameSample(a, b *telemetry.GasSample) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
