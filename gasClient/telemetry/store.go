// Package telemetry holds the single authoritative state of the engine.
package telemetry

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
	"github.com/pushchain/gas-monitor/gasClient/history"
)

// HandlerID identifies a registered listener.
type HandlerID uint64

// Listener receives the snapshot produced by a mutation and the last one
// it was handed before. Listeners run synchronously on the mutating
// goroutine after the store lock has been released, so they may call back
// into the Store.
type Listener func(next, prev Snapshot)

// subscription tracks the last snapshot handed to one listener. Concurrent
// mutations notify after unlocking and can arrive out of order; a listener
// is never handed a snapshot older than one it already received, and prev
// is always the snapshot it received last.
type subscription struct {
	fn Listener

	mu   sync.Mutex
	last Snapshot
}

// claim reserves next for delivery and returns the prev to report.
func (sub *subscription) claim(next Snapshot) (prev Snapshot, ok bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if next.Version <= sub.last.Version {
		return Snapshot{}, false
	}
	prev = sub.last
	sub.last = next
	return prev, true
}

// Observer is notified about every sample the store accepts.
type Observer interface {
	ObserveSample(chain ChainID, priceGwei float64, appended bool)
}

// Store is a mutex-guarded, copy-on-write holder of the current Snapshot.
type Store struct {
	mu   sync.Mutex
	snap Snapshot

	lmu       sync.RWMutex
	listeners map[HandlerID]*subscription
	nextID    HandlerID

	observer Observer
	logger   zerolog.Logger
}

// NewStore creates a store for a fixed set of chains.
func NewStore(chains []ChainInfo, mode Mode, input SimulationInput, logger zerolog.Logger) *Store {
	snap := Snapshot{
		Mode:   mode,
		Input:  input,
		Result: SimulationResult{},
		order:  make([]ChainID, 0, len(chains)),
		chains: make(map[ChainID]ChainState, len(chains)),
	}
	for _, info := range chains {
		if _, dup := snap.chains[info.ID]; dup {
			continue
		}
		snap.order = append(snap.order, info.ID)
		snap.chains[info.ID] = ChainState{ChainInfo: info}
	}

	return &Store{
		snap:      snap,
		listeners: make(map[HandlerID]*subscription),
		logger:    logger.With().Str("component", "telemetry_store").Logger(),
	}
}

// SetObserver installs an observer for accepted samples.
func (s *Store) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	// registering under the state lock pins the first prev to the snapshot
	// current at subscription time
	s.mu.Lock()
	s.lmu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = &subscription{fn: l, last: s.snap}
	s.lmu.Unlock()
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// mutate applies fn to a clone of the current snapshot. fn returns false to
// abandon the mutation without notifying anyone.
func (s *Store) mutate(fn func(next *Snapshot) (bool, error)) error {
	s.mu.Lock()
	prev := s.snap
	next := prev.clone()
	changed, err := fn(&next)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	next.Version = prev.Version + 1
	s.snap = next
	s.mu.Unlock()

	s.notify(next)
	return nil
}

func (s *Store) notify(next Snapshot) {
	s.lmu.RLock()
	ids := make([]HandlerID, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]*subscription, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.listeners[id])
	}
	s.lmu.RUnlock()

	for _, sub := range subs {
		prev, ok := sub.claim(next)
		if !ok {
			s.logger.Debug().Uint64("version", next.Version).Msg("skipping superseded notification")
			continue
		}
		s.dispatch(sub.fn, next, prev)
	}
}

func (s *Store) dispatch(l Listener, next, prev Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic", r).
				Uint64("version", next.Version).
				Msg("listener panicked")
		}
	}()
	l(next, prev)
}

// SetMode switches between live and simulation. Setting the current mode
// is a no-op.
func (s *Store) SetMode(mode Mode) error {
	if mode != ModeLive && mode != ModeSimulation {
		return gcerrors.NewInvalidSimulationInputError("unknown mode "+mode.String(), nil)
	}
	return s.mutate(func(next *Snapshot) (bool, error) {
		if next.Mode == mode {
			return false, nil
		}
		next.Mode = mode
		return true, nil
	})
}

// UpdateGasData records a sample as the chain's latest and appends its
// gwei price to the chain history at sample.TimestampSec. Samples for
// unknown or disconnected chains are rejected. The first sample after a
// seed starts the history afresh.
func (s *Store) UpdateGasData(chainID ChainID, sample GasSample) error {
	var (
		observer Observer
		appended bool
	)
	err := s.mutate(func(next *Snapshot) (bool, error) {
		cs, ok := next.chains[chainID]
		if !ok {
			return false, gcerrors.NewInvariantViolation(string(chainID), "sample for unknown chain")
		}
		if !cs.Connected {
			return false, gcerrors.NewInvariantViolation(string(chainID), "sample for disconnected chain")
		}
		if err := validateSample(chainID, sample); err != nil {
			return false, err
		}
		if cs.Seeded {
			cs.History = history.Buffer{}
			cs.Seeded = false
		}
		next.chains[chainID] = applySample(cs, sample, &appended)
		observer = s.observer
		return true, nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("chain", string(chainID)).Msg("sample rejected")
		return err
	}
	if observer != nil {
		observer.ObserveSample(chainID, sample.PriceGwei(), appended)
	}
	return nil
}

// SeedGasData installs a baseline sample for a chain that has none yet,
// regardless of its connection state. It returns false when the chain
// already had a sample.
func (s *Store) SeedGasData(chainID ChainID, sample GasSample) (bool, error) {
	seeded := false
	err := s.mutate(func(next *Snapshot) (bool, error) {
		cs, ok := next.chains[chainID]
		if !ok {
			return false, gcerrors.NewInvariantViolation(string(chainID), "seed for unknown chain")
		}
		if cs.LatestSample != nil {
			return false, nil
		}
		if err := validateSample(chainID, sample); err != nil {
			return false, err
		}
		var appended bool
		cs = applySample(cs, sample, &appended)
		cs.Seeded = true
		next.chains[chainID] = cs
		seeded = true
		return true, nil
	})
	return seeded, err
}

// RestoreChain replaces a chain's latest sample and history with archived
// data. The chain's connection flag is left unchanged.
func (s *Store) RestoreChain(chainID ChainID, latest GasSample, points []history.Point) error {
	return s.mutate(func(next *Snapshot) (bool, error) {
		cs, ok := next.chains[chainID]
		if !ok {
			return false, gcerrors.NewInvariantViolation(string(chainID), "restore for unknown chain")
		}
		if err := validateSample(chainID, latest); err != nil {
			return false, err
		}
		sample := latest
		cs.LatestSample = &sample
		cs.History = history.FromPoints(points)
		cs.Seeded = false
		next.chains[chainID] = cs
		return true, nil
	})
}

func validateSample(chainID ChainID, sample GasSample) error {
	if math.IsNaN(sample.BaseFee) || math.IsInf(sample.BaseFee, 0) || sample.BaseFee < 0 ||
		math.IsNaN(sample.PriorityFee) || math.IsInf(sample.PriorityFee, 0) || sample.PriorityFee < 0 {
		return gcerrors.NewMalformedSampleError(string(chainID), "sample fee is not a finite non-negative number")
	}
	return nil
}

func applySample(cs ChainState, sample GasSample, appended *bool) ChainState {
	latest := sample
	cs.LatestSample = &latest
	cs.History, *appended = cs.History.Append(sample.PriceGwei(), sample.TimestampSec)
	return cs
}

// UpdateReferencePrice sets the native-coin USD price.
func (s *Store) UpdateReferencePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return gcerrors.NewInvalidSimulationInputError("reference price must be a positive number", nil)
	}
	return s.mutate(func(next *Snapshot) (bool, error) {
		if next.ReferencePrice == price {
			return false, nil
		}
		next.ReferencePrice = price
		return true, nil
	})
}

// SetSimulationInput applies a partial update to the simulation input.
func (s *Store) SetSimulationInput(patch SimulationInputPatch) error {
	return s.mutate(func(next *Snapshot) (bool, error) {
		input := next.Input
		if patch.Amount != nil {
			input.Amount = *patch.Amount
		}
		if patch.GasLimit != nil {
			input.GasLimit = *patch.GasLimit
		}
		if input == next.Input {
			return false, nil
		}
		next.Input = input
		return true, nil
	})
}

// ConnectChain marks a chain connected.
func (s *Store) ConnectChain(chainID ChainID) error {
	return s.setConnected(chainID, true)
}

// DisconnectChain marks a chain disconnected. Its latest sample is kept.
func (s *Store) DisconnectChain(chainID ChainID) error {
	return s.setConnected(chainID, false)
}

func (s *Store) setConnected(chainID ChainID, connected bool) error {
	return s.mutate(func(next *Snapshot) (bool, error) {
		cs, ok := next.chains[chainID]
		if !ok {
			return false, gcerrors.NewInvariantViolation(string(chainID), "unknown chain")
		}
		if cs.Connected == connected {
			return false, nil
		}
		cs.Connected = connected
		next.chains[chainID] = cs
		return true, nil
	})
}

// SetSimulationResult replaces the simulation result wholesale. Entries
// for chains without a sample are rejected.
func (s *Store) SetSimulationResult(result SimulationResult) error {
	return s.mutate(func(next *Snapshot) (bool, error) {
		copied := make(SimulationResult, len(result))
		for id, cost := range result {
			cs, ok := next.chains[id]
			if !ok || cs.LatestSample == nil {
				return false, gcerrors.NewInvariantViolation(string(id), "result entry for chain without a sample")
			}
			copied[id] = cost
		}
		if next.Result.Equal(copied) {
			return false, nil
		}
		next.Result = copied
		return true, nil
	})
}
