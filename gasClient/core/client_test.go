package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/gas-monitor/gasClient/chains/evm"
	"github.com/pushchain/gas-monitor/gasClient/config"
	"github.com/pushchain/gas-monitor/gasClient/db"
	"github.com/pushchain/gas-monitor/gasClient/pricefeed"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

func testConfig(t *testing.T, mode telemetry.Mode) config.Config {
	t.Helper()
	cfg, err := config.LoadDefaultConfig()
	require.NoError(t, err)
	cfg.InitialMode = mode.String()
	cfg.NodeHome = t.TempDir()
	cfg.PriceConfig.Source = "static"
	require.NoError(t, config.Validate(cfg))
	return *cfg
}

func failingDialer(calls *atomic.Int32) evm.Dialer {
	return func(ctx context.Context, endpoint string) (evm.HeadSource, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	}
}

func runMonitor(t *testing.T, g *GasMonitor) (wait func()) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- g.Start() }()
	return func() {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("monitor did not shut down")
		}
	}
}

func TestGasMonitorSimulation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(t, telemetry.ModeSimulation)

	var dials atomic.Int32
	g, err := NewGasMonitor(ctx, zerolog.Nop(), cfg,
		WithDialer(failingDialer(&dials)),
		WithPriceSource(pricefeed.NewStaticSource(2000, 0, 1)),
		WithoutQueryServer(),
	)
	require.NoError(t, err)
	wait := runMonitor(t, g)

	require.Eventually(t, func() bool {
		return len(g.Store().Snapshot().Result) == 3
	}, 5*time.Second, 10*time.Millisecond)

	snap := g.Store().Snapshot()
	assert.Equal(t, []telemetry.ChainID{"ethereum", "polygon", "arbitrum"}, snap.ChainIDs())
	assert.Equal(t, 2000.0, snap.ReferencePrice)

	eth := snap.Result["ethereum"]
	// (25 + 2) gwei * 21000 gas
	assert.InDelta(t, 0.000567, eth.FeeCostNative, 1e-12)
	assert.InDelta(t, 1.134, eth.FeeCostUSD, 1e-9)

	cheapest, ok := snap.Result.Cheapest()
	require.True(t, ok)
	assert.Equal(t, telemetry.ChainID("arbitrum"), cheapest)

	assert.Equal(t, int32(0), dials.Load())
	assert.False(t, g.Manager().IsLive())
	count, err := testutil.GatherAndCount(g.Registry(), "pgasmon_reference_price_usd", "pgasmon_simulation_recomputations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	cancel()
	wait()
}

func TestGasMonitorLiveWithUnreachableChains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig(t, telemetry.ModeLive)

	var dials atomic.Int32
	g, err := NewGasMonitor(ctx, zerolog.Nop(), cfg,
		WithDialer(failingDialer(&dials)),
		WithPriceSource(pricefeed.NewStaticSource(1800, 0, 1)),
		WithoutQueryServer(),
	)
	require.NoError(t, err)
	wait := runMonitor(t, g)

	require.Eventually(t, func() bool {
		return dials.Load() == 3 && g.Store().Snapshot().ReferencePrice == 1800
	}, 5*time.Second, 10*time.Millisecond)

	snap := g.Store().Snapshot()
	for _, cs := range snap.Chains() {
		assert.False(t, cs.Connected, cs.ID)
		require.NotNil(t, cs.LatestSample, cs.ID)
	}
	assert.Empty(t, snap.Result)

	// switching modes tears the live scope down
	require.NoError(t, g.Store().SetMode(telemetry.ModeSimulation))
	require.Eventually(t, func() bool {
		return !g.Manager().IsLive() && len(g.Store().Snapshot().Result) == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	wait()
}

func TestGasMonitorRestoresArchive(t *testing.T) {
	cfg := testConfig(t, telemetry.ModeSimulation)
	cfg.Database.Enabled = true
	cfg.Database.Dir = t.TempDir()

	archive, err := db.OpenFileDB(cfg.Database.Dir, db.DefaultFilename, true)
	require.NoError(t, err)
	require.NoError(t, archive.RecordSample("ethereum", telemetry.GasSample{BaseFee: 40e9, PriorityFee: 1e9, BlockNumber: 9, TimestampSec: 1000}))
	require.NoError(t, archive.RecordSample("ethereum", telemetry.GasSample{BaseFee: 50e9, PriorityFee: 1e9, BlockNumber: 10, TimestampSec: 1003}))
	require.NoError(t, archive.Close())

	ctx, cancel := context.WithCancel(context.Background())
	g, err := NewGasMonitor(ctx, zerolog.Nop(), cfg,
		WithPriceSource(pricefeed.NewStaticSource(2000, 0, 1)),
		WithoutQueryServer(),
	)
	require.NoError(t, err)

	// restored before seeding, so the seed does not replace it
	eth, ok := g.Store().Snapshot().Chain("ethereum")
	require.True(t, ok)
	require.NotNil(t, eth.LatestSample)
	assert.Equal(t, uint64(10), eth.LatestSample.BlockNumber)
	assert.Equal(t, 4, eth.History.Len())
	assert.False(t, eth.Connected)

	wait := runMonitor(t, g)
	require.Eventually(t, func() bool {
		return len(g.Store().Snapshot().Result) == 3
	}, 5*time.Second, 10*time.Millisecond)

	eth, _ = g.Store().Snapshot().Chain("ethereum")
	assert.Equal(t, uint64(10), eth.LatestSample.BlockNumber)

	cancel()
	wait()
}

func TestBuildChainSpecs(t *testing.T) {
	disabled := false
	seed := 12.5
	cfg := &config.Config{
		ChainOrder: []string{"beta", "alpha"},
		ChainConfigs: map[string]config.ChainSpecificConfig{
			"alpha": {Name: "Alpha", Family: "eip1559", WSURL: "ws://a", PriorityFeeGwei: 1.5, PriorityFeeMode: "polled", PriorityFeePollIntervalSeconds: 5, SeedBaseFeeGwei: &seed},
			"beta":  {Name: "Beta", Family: "gas_price", WSURL: "ws://b", PriorityFeeGwei: 3, SeedBaseFeeGwei: &seed},
			"gamma": {Name: "Gamma", Family: "eip1559", WSURL: "ws://c", Enabled: &disabled},
		},
	}

	specs, err := buildChainSpecs(cfg)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	beta := specs[0]
	assert.Equal(t, telemetry.ChainID("beta"), beta.Info.ID)
	assert.Equal(t, telemetry.FamilyGasPrice, beta.Feed.Family)
	require.NotNil(t, beta.Seed)
	assert.Equal(t, 12.5e9, beta.Seed.BaseFee)
	assert.Zero(t, beta.Seed.PriorityFee)

	alpha := specs[1]
	assert.Equal(t, "ws://a", alpha.Feed.Endpoint)
	assert.Equal(t, evm.PriorityFeePolled, alpha.Feed.PriorityFeeMode)
	assert.Equal(t, 5*time.Second, alpha.Feed.PriorityFeeInterval)
	require.NotNil(t, alpha.Seed)
	assert.Equal(t, 1.5e9, alpha.Seed.PriorityFee)

	t.Run("invalid family", func(t *testing.T) {
		bad := &config.Config{ChainConfigs: map[string]config.ChainSpecificConfig{
			"x": {Family: "utxo", WSURL: "ws://x"},
		}}
		_, err := buildChainSpecs(bad)
		require.Error(t, err)
	})
}
