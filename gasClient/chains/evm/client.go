package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
)

// HeadSource is the subset of an Ethereum client a feed uses.
// *ethclient.Client satisfies it.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

var _ HeadSource = (*ethclient.Client)(nil)

// Dialer opens a HeadSource for an endpoint.
type Dialer func(ctx context.Context, endpoint string) (HeadSource, error)

// DialEthClient dials a websocket (or IPC) endpoint with go-ethereum.
func DialEthClient(ctx context.Context, endpoint string) (HeadSource, error) {
	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// dialAndVerify dials endpoint and, when expectedChainID is set, checks the
// node serves that chain. A failed chain ID lookup is logged and tolerated.
func dialAndVerify(
	ctx context.Context,
	dial Dialer,
	chain string,
	endpoint string,
	expectedChainID int64,
	timeout time.Duration,
	logger zerolog.Logger,
) (HeadSource, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	source, err := dial(dialCtx, endpoint)
	if err != nil {
		return nil, gcerrors.NewConnectionError(chain, "failed to dial endpoint", err).
			WithContext("endpoint", endpoint)
	}

	if expectedChainID == 0 {
		return source, nil
	}

	actual, err := source.ChainID(dialCtx)
	if err != nil {
		logger.Warn().
			Err(err).
			Int64("expected_chain_id", expectedChainID).
			Msg("failed to verify chain ID, proceeding anyway")
		return source, nil
	}
	if actual.Int64() != expectedChainID {
		source.Close()
		return nil, gcerrors.NewConfigError(chain,
			fmt.Sprintf("chain ID mismatch: expected %d, got %d", expectedChainID, actual.Int64()))
	}
	return source, nil
}

// weiFromGwei converts a gwei amount to wei.
func weiFromGwei(gwei float64) float64 {
	return gwei * 1e9
}

// bigToFloat converts a wei amount to float64.
func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
