package common

import (
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// EventKind distinguishes what a feed delivered
type EventKind int

const (
	EventSample EventKind = iota
	EventError
)

// Event is emitted by a feed handle. A terminal error is the last event a
// handle emits before its channel is closed.
type Event struct {
	Kind     EventKind
	Chain    telemetry.ChainID
	Sample   telemetry.GasSample
	Err      error
	Terminal bool
}

// SampleEvent builds a sample event
func SampleEvent(chain telemetry.ChainID, sample telemetry.GasSample) Event {
	return Event{Kind: EventSample, Chain: chain, Sample: sample}
}

// ErrorEvent builds an error event
func ErrorEvent(chain telemetry.ChainID, err error, terminal bool) Event {
	return Event{Kind: EventError, Chain: chain, Err: err, Terminal: terminal}
}
