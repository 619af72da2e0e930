package api

import (
	"context"

	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// Engine is the state surface the API reads and drives.
// *telemetry.Store satisfies it.
type Engine interface {
	Snapshot() telemetry.Snapshot
	Subscribe(l telemetry.Listener) (unsubscribe func())
	SetMode(mode telemetry.Mode) error
	SetSimulationInput(patch telemetry.SimulationInputPatch) error
}

// Reconnector reopens a single chain feed.
type Reconnector interface {
	Reconnect(ctx context.Context, chainID telemetry.ChainID) error
}
