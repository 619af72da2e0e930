package api

import (
	"math"

	"github.com/pushchain/gas-monitor/gasClient/history"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data    interface{} `json:"data"`
	Version uint64      `json:"version"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ModeRequest is the body of POST /api/v1/mode
type ModeRequest struct {
	Mode string `json:"mode"`
}

// SimulationRequest is the body of POST /api/v1/simulation. GasLimit is
// accepted as a JSON number or a decimal string.
type SimulationRequest struct {
	Amount   *string     `json:"amount,omitempty"`
	GasLimit interface{} `json:"gasLimit,omitempty"`
}

// ChainView is the JSON form of one chain's state.
type ChainView struct {
	telemetry.ChainInfo
	Connected    bool                 `json:"connected"`
	LatestSample *telemetry.GasSample `json:"latestSample,omitempty"`
	PriceGwei    *float64             `json:"priceGwei,omitempty"`
	Seeded       bool                 `json:"seeded,omitempty"`
	HistoryLen   int                  `json:"historyLength"`
}

// CostView is the JSON form of a ChainCost; NaN totals become null.
type CostView struct {
	FeeCostNative float64  `json:"feeCostNative"`
	FeeCostUSD    float64  `json:"feeCostUsd"`
	TotalCostUSD  *float64 `json:"totalCostUsd"`
	Invalid       bool     `json:"invalid,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// SimulationView groups the simulation input and result.
type SimulationView struct {
	Input         telemetry.SimulationInput `json:"input"`
	Results       map[string]CostView       `json:"results"`
	Cheapest      string                    `json:"cheapest,omitempty"`
	MostExpensive string                    `json:"mostExpensive,omitempty"`
}

// SnapshotView is the JSON form of a telemetry snapshot.
type SnapshotView struct {
	Mode           telemetry.Mode `json:"mode"`
	ReferencePrice float64        `json:"referencePrice"`
	Chains         []ChainView    `json:"chains"`
	Simulation     SimulationView `json:"simulation"`
	Version        uint64         `json:"version"`
}

// HistoryView is the JSON form of a chain's history.
type HistoryView struct {
	Chain  telemetry.ChainID `json:"chain"`
	Points []history.Point   `json:"points"`
}

func newChainView(cs telemetry.ChainState) ChainView {
	v := ChainView{
		ChainInfo:    cs.ChainInfo,
		Connected:    cs.Connected,
		LatestSample: cs.LatestSample,
		Seeded:       cs.Seeded,
		HistoryLen:   cs.History.Len(),
	}
	if cs.LatestSample != nil {
		price := cs.LatestSample.PriceGwei()
		v.PriceGwei = &price
	}
	return v
}

func newSnapshotView(snap telemetry.Snapshot) SnapshotView {
	chains := make([]ChainView, 0, len(snap.ChainIDs()))
	for _, cs := range snap.Chains() {
		chains = append(chains, newChainView(cs))
	}

	results := make(map[string]CostView, len(snap.Result))
	for id, cost := range snap.Result {
		cv := CostView{
			FeeCostNative: cost.FeeCostNative,
			FeeCostUSD:    cost.FeeCostUSD,
			Invalid:       cost.Invalid,
			Reason:        cost.Reason,
		}
		if !math.IsNaN(cost.TotalCostUSD) && !math.IsInf(cost.TotalCostUSD, 0) {
			total := cost.TotalCostUSD
			cv.TotalCostUSD = &total
		}
		results[string(id)] = cv
	}

	sim := SimulationView{Input: snap.Input, Results: results}
	if id, ok := snap.Result.Cheapest(); ok {
		sim.Cheapest = string(id)
	}
	if id, ok := snap.Result.MostExpensive(); ok {
		sim.MostExpensive = string(id)
	}

	return SnapshotView{
		Mode:           snap.Mode,
		ReferencePrice: snap.ReferencePrice,
		Chains:         chains,
		Simulation:     sim,
		Version:        snap.Version,
	}
}
