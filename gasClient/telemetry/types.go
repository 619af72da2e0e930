package telemetry

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pushchain/gas-monitor/gasClient/history"
)

// ChainID identifies a monitored network, e.g. "ethereum".
type ChainID string

// FeeFamily selects how a chain's fee is read from the network.
type FeeFamily string

const (
	// FamilyEIP1559 chains expose a per-block base fee plus a priority tip.
	FamilyEIP1559 FeeFamily = "eip1559"
	// FamilyGasPrice chains expose one effective gas price.
	FamilyGasPrice FeeFamily = "gas_price"
)

// Valid reports whether f is a known family.
func (f FeeFamily) Valid() bool {
	return f == FamilyEIP1559 || f == FamilyGasPrice
}

// GasSample is one observation of a chain's fees, in wei per gas unit.
type GasSample struct {
	BaseFee      float64 `json:"baseFee"`
	PriorityFee  float64 `json:"priorityFee"`
	BlockNumber  uint64  `json:"blockNumber"`
	TimestampSec int64   `json:"timestamp"`
}

// PriceGwei is the total per-unit price in gwei, as stored in history.
func (s GasSample) PriceGwei() float64 {
	return (s.BaseFee + s.PriorityFee) / 1e9
}

// ChainInfo is the static description of a chain.
type ChainInfo struct {
	ID     ChainID   `json:"id"`
	Name   string    `json:"name"`
	Symbol string    `json:"symbol"`
	Color  string    `json:"color"`
	Family FeeFamily `json:"family"`
}

// ChainState is a chain's state inside one Snapshot.
type ChainState struct {
	ChainInfo
	Connected    bool
	LatestSample *GasSample
	History      history.Buffer
	// Seeded is set while LatestSample is a configured baseline rather than
	// an observation; the first live sample replaces its history.
	Seeded bool
}

// Mode is the engine's operating mode.
type Mode int

const (
	ModeLive Mode = iota
	ModeSimulation
)

func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "live"
	case ModeSimulation:
		return "simulation"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "live" or "simulation".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return ModeLive, nil
	case "simulation":
		return ModeSimulation, nil
	default:
		return ModeLive, fmt.Errorf("unknown mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SimulationInput describes the hypothetical transaction.
// Amount is decimal text and may be malformed.
type SimulationInput struct {
	Amount   string `json:"amount"`
	GasLimit uint64 `json:"gasLimit"`
}

// SimulationInputPatch is a partial update; nil fields are left unchanged.
type SimulationInputPatch struct {
	Amount   *string `json:"amount,omitempty"`
	GasLimit *uint64 `json:"gasLimit,omitempty"`
}

// ChainCost is the simulated cost of the transaction on one chain.
type ChainCost struct {
	FeeCostNative float64 `json:"feeCostNative"`
	FeeCostUSD    float64 `json:"feeCostUsd"`
	TotalCostUSD  float64 `json:"totalCostUsd"`
	Invalid       bool    `json:"invalid,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// SimulationResult maps each chain with a sample to its cost.
type SimulationResult map[ChainID]ChainCost

// Cheapest returns the valid chain with the lowest fee in USD.
// Ties resolve to the lexically smaller chain id.
func (r SimulationResult) Cheapest() (ChainID, bool) {
	return r.pick(func(a, b float64) bool { return a < b })
}

// MostExpensive returns the valid chain with the highest fee in USD.
func (r SimulationResult) MostExpensive() (ChainID, bool) {
	return r.pick(func(a, b float64) bool { return a > b })
}

func (r SimulationResult) pick(better func(a, b float64) bool) (ChainID, bool) {
	ids := make([]ChainID, 0, len(r))
	for id, cost := range r {
		if cost.Invalid || math.IsNaN(cost.FeeCostUSD) {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	best := ids[0]
	for _, id := range ids[1:] {
		if better(r[id].FeeCostUSD, r[best].FeeCostUSD) {
			best = id
		}
	}
	return best, true
}

// Equal reports whether two results hold the same entries. NaN totals on
// both sides compare equal.
func (r SimulationResult) Equal(other SimulationResult) bool {
	if len(r) != len(other) {
		return false
	}
	for id, a := range r {
		b, ok := other[id]
		if !ok {
			return false
		}
		if a.Invalid != b.Invalid || a.Reason != b.Reason ||
			!floatEqual(a.FeeCostNative, b.FeeCostNative) ||
			!floatEqual(a.FeeCostUSD, b.FeeCostUSD) ||
			!floatEqual(a.TotalCostUSD, b.TotalCostUSD) {
			return false
		}
	}
	return true
}

func floatEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// Snapshot is an immutable view of the whole engine state. Every Store
// action produces a new Snapshot; callers must not modify the maps it
// exposes.
type Snapshot struct {
	Mode           Mode
	ReferencePrice float64
	Input          SimulationInput
	Result         SimulationResult
	// Version increases by one with each mutation.
	Version uint64

	order  []ChainID
	chains map[ChainID]ChainState
}

// ChainIDs returns the configured chains in configuration order.
func (s Snapshot) ChainIDs() []ChainID {
	out := make([]ChainID, len(s.order))
	copy(out, s.order)
	return out
}

// Chain returns the state of one chain.
func (s Snapshot) Chain(id ChainID) (ChainState, bool) {
	cs, ok := s.chains[id]
	return cs, ok
}

// Chains returns every chain state in configuration order.
func (s Snapshot) Chains() []ChainState {
	out := make([]ChainState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chains[id])
	}
	return out
}

// clone copies the top-level containers so one chain entry can be replaced.
func (s Snapshot) clone() Snapshot {
	next := s
	next.chains = make(map[ChainID]ChainState, len(s.chains))
	for id, cs := range s.chains {
		next.chains[id] = cs
	}
	return next
}
