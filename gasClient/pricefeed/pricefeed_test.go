package pricefeed

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, call, blockNumber)
	if out := args.Get(0); out != nil {
		return out.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type recordingSink struct {
	mu     sync.Mutex
	prices []float64
}

func (s *recordingSink) UpdateReferencePrice(price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, price)
	return nil
}

func (s *recordingSink) Prices() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.prices))
	copy(out, s.prices)
	return out
}

// 20000 * 2^96 squares to 4e8 * 2^192: 4e8 wei per micro-USDC is $2500/ETH
func sqrtPriceFor2500() *big.Int {
	return new(big.Int).Lsh(big.NewInt(20000), 96)
}

func TestPriceFromSqrtX96(t *testing.T) {
	price, err := PriceFromSqrtX96(sqrtPriceFor2500(), 6, 18)
	require.NoError(t, err)
	assert.InDelta(t, 2500.0, price, 1e-9)

	_, err = PriceFromSqrtX96(big.NewInt(0), 6, 18)
	assert.Error(t, err)
}

func TestUniswapV3Source(t *testing.T) {
	caller := &mockCaller{}
	src, err := NewUniswapV3Source(caller, DefaultUniswapPool, 6, 18)
	require.NoError(t, err)
	assert.Equal(t, "uniswap_v3", src.Name())

	out, err := src.abi.Methods["slot0"].Outputs.Pack(
		sqrtPriceFor2500(), big.NewInt(-200000), uint16(1), uint16(2), uint16(3), uint8(0), true,
	)
	require.NoError(t, err)

	caller.On("CallContract", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return msg.To != nil && *msg.To == src.pool && len(msg.Data) == 4
	}), (*big.Int)(nil)).Return(out, nil).Once()

	price, err := src.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 2500.0, price, 1e-9)
	caller.AssertExpectations(t)
}

func TestUniswapV3SourceErrors(t *testing.T) {
	_, err := NewUniswapV3Source(&mockCaller{}, "not-an-address", 6, 18)
	assert.Error(t, err)

	caller := &mockCaller{}
	caller.On("CallContract", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("execution reverted"))
	src, err := NewUniswapV3Source(caller, DefaultUniswapPool, 6, 18)
	require.NoError(t, err)

	_, err = src.FetchPrice(context.Background())
	assert.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(2000, 100, 42)
	for i := 0; i < 20; i++ {
		price, err := src.FetchPrice(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, price, 2000.0)
		assert.Less(t, price, 2100.0)
	}

	fixed := NewStaticSource(1500, 0, 1)
	price, err := fixed.FetchPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1500.0, price)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fixed.FetchPrice(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRefresher(t *testing.T) {
	sink := &recordingSink{}
	r := NewRefresher(NewStaticSource(2000, 0, 1), sink, 10*time.Millisecond, zerolog.Nop())

	r.Start(context.Background())
	r.Start(context.Background())
	require.Eventually(t, func() bool { return len(sink.Prices()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop()

	count := len(sink.Prices())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, len(sink.Prices()))
	assert.Equal(t, 2000.0, sink.Prices()[0])
}

func TestRefresherKeepsPriceOnFailure(t *testing.T) {
	caller := &mockCaller{}
	caller.On("CallContract", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("execution reverted"))
	src, err := NewUniswapV3Source(caller, DefaultUniswapPool, 6, 18)
	require.NoError(t, err)

	sink := &recordingSink{}
	r := NewRefresher(src, sink, time.Hour, zerolog.Nop())
	r.retry = &gcerrors.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	r.refresh(context.Background())
	assert.Empty(t, sink.Prices())
	caller.AssertNumberOfCalls(t, "CallContract", 2)
}
