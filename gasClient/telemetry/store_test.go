package telemetry

import (
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
)

func testChains() []ChainInfo {
	return []ChainInfo{
		{ID: "ethereum", Name: "Ethereum", Symbol: "ETH", Color: "#627EEA", Family: FamilyEIP1559},
		{ID: "polygon", Name: "Polygon", Symbol: "MATIC", Color: "#8247E5", Family: FamilyEIP1559},
		{ID: "arbitrum", Name: "Arbitrum", Symbol: "ETH", Color: "#28A0F0", Family: FamilyGasPrice},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(testChains(), ModeLive, SimulationInput{Amount: "0.5", GasLimit: 21000}, zerolog.Nop())
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recordingObserver) ObserveSample(_ ChainID, _ float64, appended bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, appended)
}

func TestNewStore(t *testing.T) {
	s := newTestStore(t)
	snap := s.Snapshot()

	assert.Equal(t, ModeLive, snap.Mode)
	assert.Equal(t, []ChainID{"ethereum", "polygon", "arbitrum"}, snap.ChainIDs())
	assert.Equal(t, uint64(0), snap.Version)
	for _, cs := range snap.Chains() {
		assert.False(t, cs.Connected)
		assert.Nil(t, cs.LatestSample)
		assert.Equal(t, 0, cs.History.Len())
	}
}

func TestUpdateGasData(t *testing.T) {
	s := newTestStore(t)
	obs := &recordingObserver{}
	s.SetObserver(obs)
	require.NoError(t, s.ConnectChain("ethereum"))

	require.NoError(t, s.UpdateGasData("ethereum", GasSample{BaseFee: 20e9, PriorityFee: 2e9, BlockNumber: 1, TimestampSec: 1000}))
	require.NoError(t, s.UpdateGasData("ethereum", GasSample{BaseFee: 30e9, PriorityFee: 2e9, BlockNumber: 2, TimestampSec: 1002}))
	// same second: becomes latest but history is unchanged
	require.NoError(t, s.UpdateGasData("ethereum", GasSample{BaseFee: 40e9, PriorityFee: 2e9, BlockNumber: 3, TimestampSec: 1002}))

	cs, ok := s.Snapshot().Chain("ethereum")
	require.True(t, ok)
	require.NotNil(t, cs.LatestSample)
	assert.Equal(t, uint64(3), cs.LatestSample.BlockNumber)

	points := cs.History.Points()
	require.Len(t, points, 3)
	assert.Equal(t, 22.0, points[0].Close)
	assert.Equal(t, 32.0, points[1].Close)
	assert.Equal(t, 32.0, points[2].Close)
	assert.Equal(t, []bool{true, true, false}, obs.calls)
}

func TestUpdateGasDataRejections(t *testing.T) {
	testCases := []struct {
		name   string
		chain  ChainID
		sample GasSample
		code   gcerrors.ErrorCode
	}{
		{name: "unknown chain", chain: "solana", sample: GasSample{BaseFee: 1, TimestampSec: 1}, code: gcerrors.ErrCodeInvariant},
		{name: "disconnected chain", chain: "polygon", sample: GasSample{BaseFee: 1, TimestampSec: 1}, code: gcerrors.ErrCodeInvariant},
		{name: "nan fee", chain: "ethereum", sample: GasSample{BaseFee: math.NaN(), TimestampSec: 1}, code: gcerrors.ErrCodeMalformedSample},
		{name: "negative fee", chain: "ethereum", sample: GasSample{BaseFee: 1, PriorityFee: -1, TimestampSec: 1}, code: gcerrors.ErrCodeMalformedSample},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, s.ConnectChain("ethereum"))
			before := s.Snapshot()

			err := s.UpdateGasData(tc.chain, tc.sample)
			require.Error(t, err)
			assert.True(t, gcerrors.IsChainError(err, tc.code))
			assert.Equal(t, before.Version, s.Snapshot().Version)
		})
	}
}

func TestDisconnectKeepsStaleSample(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ConnectChain("arbitrum"))
	require.NoError(t, s.UpdateGasData("arbitrum", GasSample{BaseFee: 1e8, TimestampSec: 10}))
	require.NoError(t, s.DisconnectChain("arbitrum"))

	require.Error(t, s.UpdateGasData("arbitrum", GasSample{BaseFee: 5e8, TimestampSec: 11}))

	cs, _ := s.Snapshot().Chain("arbitrum")
	assert.False(t, cs.Connected)
	require.NotNil(t, cs.LatestSample)
	assert.Equal(t, 1e8, cs.LatestSample.BaseFee)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ConnectChain("ethereum"))
	first := s.Snapshot()

	require.NoError(t, s.UpdateGasData("ethereum", GasSample{BaseFee: 1e9, TimestampSec: 5}))
	require.NoError(t, s.SetSimulationInput(SimulationInputPatch{Amount: strPtr("2")}))

	cs, _ := first.Chain("ethereum")
	assert.Nil(t, cs.LatestSample)
	assert.Equal(t, "0.5", first.Input.Amount)
	assert.Equal(t, "2", s.Snapshot().Input.Amount)
	assert.Equal(t, uint64(21000), s.Snapshot().Input.GasLimit)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(t)

	var got []uint64
	unsubscribe := s.Subscribe(func(next, prev Snapshot) {
		assert.Equal(t, prev.Version+1, next.Version)
		got = append(got, next.Version)
	})

	require.NoError(t, s.SetMode(ModeSimulation))
	require.NoError(t, s.SetMode(ModeSimulation)) // no change, no notification
	require.NoError(t, s.UpdateReferencePrice(2000))
	unsubscribe()
	unsubscribe()
	require.NoError(t, s.UpdateReferencePrice(2100))

	assert.Equal(t, []uint64{1, 2}, got)
}

func TestListenerNeverSeesOlderSnapshot(t *testing.T) {
	s := newTestStore(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.Subscribe(func(next, prev Snapshot) {
		if next.Mode == ModeSimulation {
			close(entered)
			<-release
		}
	})

	type delivery struct{ next, prev uint64 }
	var (
		mu  sync.Mutex
		got []delivery
	)
	s.Subscribe(func(next, prev Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, delivery{next: next.Version, prev: prev.Version})
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.SetMode(ModeSimulation))
	}()

	<-entered
	// version 2 is delivered while version 1 is still held up by the first listener
	require.NoError(t, s.SetMode(ModeLive))
	close(release)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []delivery{{next: 2, prev: 0}}, got)
	assert.Equal(t, ModeLive, s.Snapshot().Mode)
}

func TestListenerPanicIsContained(t *testing.T) {
	s := newTestStore(t)

	calls := 0
	s.Subscribe(func(next, prev Snapshot) { panic("boom") })
	s.Subscribe(func(next, prev Snapshot) { calls++ })

	require.NoError(t, s.UpdateReferencePrice(2000))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2000.0, s.Snapshot().ReferencePrice)
}

func TestListenerMayMutate(t *testing.T) {
	s := newTestStore(t)
	s.Subscribe(func(next, prev Snapshot) {
		if next.ReferencePrice != prev.ReferencePrice {
			require.NoError(t, s.SetSimulationInput(SimulationInputPatch{GasLimit: uint64Ptr(50000)}))
		}
	})

	require.NoError(t, s.UpdateReferencePrice(1500))
	assert.Equal(t, uint64(50000), s.Snapshot().Input.GasLimit)
}

func TestUpdateReferencePriceValidation(t *testing.T) {
	s := newTestStore(t)
	for _, v := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := s.UpdateReferencePrice(v)
		assert.True(t, gcerrors.IsChainError(err, gcerrors.ErrCodeInvalidInput))
	}
}

func TestSetSimulationResult(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ConnectChain("ethereum"))
	require.NoError(t, s.UpdateGasData("ethereum", GasSample{BaseFee: 30e9, PriorityFee: 2e9, TimestampSec: 1}))

	err := s.SetSimulationResult(SimulationResult{"polygon": {FeeCostUSD: 1}})
	assert.True(t, gcerrors.IsChainError(err, gcerrors.ErrCodeInvariant))

	result := SimulationResult{"ethereum": {FeeCostNative: 0.000672, FeeCostUSD: 1.344, TotalCostUSD: 1001.344}}
	require.NoError(t, s.SetSimulationResult(result))
	version := s.Snapshot().Version

	// identical result does not produce a new snapshot
	require.NoError(t, s.SetSimulationResult(SimulationResult{"ethereum": result["ethereum"]}))
	assert.Equal(t, version, s.Snapshot().Version)
}

func TestSeedAndRestore(t *testing.T) {
	s := newTestStore(t)

	seeded, err := s.SeedGasData("polygon", GasSample{BaseFee: 30e9, PriorityFee: 2e9, TimestampSec: 100})
	require.NoError(t, err)
	assert.True(t, seeded)

	seeded, err = s.SeedGasData("polygon", GasSample{BaseFee: 99e9, TimestampSec: 200})
	require.NoError(t, err)
	assert.False(t, seeded)

	cs, _ := s.Snapshot().Chain("polygon")
	assert.Equal(t, 30e9, cs.LatestSample.BaseFee)
	assert.False(t, cs.Connected)

	require.NoError(t, s.RestoreChain("ethereum", GasSample{BaseFee: 1e9, TimestampSec: 3}, nil))
	cs, _ = s.Snapshot().Chain("ethereum")
	require.NotNil(t, cs.LatestSample)
	assert.Equal(t, 0, cs.History.Len())
}

func TestFirstLiveSampleReplacesSeedHistory(t *testing.T) {
	s := newTestStore(t)

	seeded, err := s.SeedGasData("ethereum", GasSample{BaseFee: 25e9, TimestampSec: 1000})
	require.NoError(t, err)
	require.True(t, seeded)
	cs, _ := s.Snapshot().Chain("ethereum")
	assert.True(t, cs.Seeded)

	// the live head is older than the seed's wall-clock stamp
	require.NoError(t, s.ConnectChain("ethereum"))
	require.NoError(t, s.UpdateGasData("ethereum", GasSample{BaseFee: 30e9, PriorityFee: 2e9, BlockNumber: 5, TimestampSec: 990}))

	cs, _ = s.Snapshot().Chain("ethereum")
	assert.False(t, cs.Seeded)
	assert.Equal(t, uint64(5), cs.LatestSample.BlockNumber)
	require.Equal(t, 1, cs.History.Len())
	last, _ := cs.History.Last()
	assert.Equal(t, int64(990), last.TimeSec)
	assert.Equal(t, 32.0, last.Close)

	require.NoError(t, s.UpdateGasData("ethereum", GasSample{BaseFee: 31e9, PriorityFee: 2e9, BlockNumber: 6, TimestampSec: 1002}))
	cs, _ = s.Snapshot().Chain("ethereum")
	assert.Equal(t, 13, cs.History.Len())
}

func TestSimulationResultRanking(t *testing.T) {
	r := SimulationResult{
		"ethereum": {FeeCostUSD: 1.344},
		"polygon":  {FeeCostUSD: 0.01},
		"arbitrum": {FeeCostUSD: 0.004},
		"broken":   {FeeCostUSD: math.NaN(), Invalid: true},
	}
	cheapest, ok := r.Cheapest()
	require.True(t, ok)
	assert.Equal(t, ChainID("arbitrum"), cheapest)

	priciest, ok := r.MostExpensive()
	require.True(t, ok)
	assert.Equal(t, ChainID("ethereum"), priciest)

	_, ok = SimulationResult{}.Cheapest()
	assert.False(t, ok)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Simulation ")
	require.NoError(t, err)
	assert.Equal(t, ModeSimulation, m)

	_, err = ParseMode("paused")
	assert.Error(t, err)

	var decoded Mode
	require.NoError(t, decoded.UnmarshalText([]byte("live")))
	assert.Equal(t, ModeLive, decoded)
}

func strPtr(s string) *string    { return &s }
func uint64Ptr(v uint64) *uint64 { return &v }
