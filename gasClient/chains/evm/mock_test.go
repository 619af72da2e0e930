package evm

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// mockHeadSource is a mock implementation of HeadSource for testing
type mockHeadSource struct {
	mock.Mock
}

func (m *mockHeadSource) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	args := m.Called(ctx, ch)
	if sub := args.Get(0); sub != nil {
		return sub.(ethereum.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHeadSource) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	args := m.Called(ctx, number)
	if header := args.Get(0); header != nil {
		return header.(*types.Header), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHeadSource) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if price := args.Get(0); price != nil {
		return price.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHeadSource) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if tip := args.Get(0); tip != nil {
		return tip.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHeadSource) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if id := args.Get(0); id != nil {
		return id.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHeadSource) Close() {
	m.Called()
}

// fakeSubscription is a controllable ethereum.Subscription
type fakeSubscription struct {
	errCh chan error
	once  sync.Once

	mu           sync.Mutex
	unsubscribed int
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Unsubscribe() {
	s.mu.Lock()
	s.unsubscribed++
	s.mu.Unlock()
	s.once.Do(func() { close(s.errCh) })
}

func (s *fakeSubscription) Err() <-chan error {
	return s.errCh
}

func (s *fakeSubscription) Unsubscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribed
}

// fail delivers a transport error the way go-ethereum does
func (s *fakeSubscription) fail(err error) {
	s.errCh <- err
}

// expectSubscribe wires SubscribeNewHead to sub and returns a channel that
// yields the head channel the feed subscribed with.
func expectSubscribe(m *mockHeadSource, sub *fakeSubscription) <-chan chan<- *types.Header {
	heads := make(chan chan<- *types.Header, 1)
	m.On("SubscribeNewHead", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			heads <- args.Get(1).(chan<- *types.Header)
		}).
		Return(sub, nil)
	return heads
}

func dialerFor(source HeadSource) Dialer {
	return func(ctx context.Context, endpoint string) (HeadSource, error) {
		return source, nil
	}
}
