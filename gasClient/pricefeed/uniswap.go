package pricefeed

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"

	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
)

// DefaultUniswapPool is the Uniswap v3 USDC/WETH 0.05% pool on Ethereum.
const DefaultUniswapPool = "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"

const slot0ABI = `[{"inputs":[],"name":"slot0","outputs":[
{"internalType":"uint160","name":"sqrtPriceX96","type":"uint160"},
{"internalType":"int24","name":"tick","type":"int24"},
{"internalType":"uint16","name":"observationIndex","type":"uint16"},
{"internalType":"uint16","name":"observationCardinality","type":"uint16"},
{"internalType":"uint16","name":"observationCardinalityNext","type":"uint16"},
{"internalType":"uint8","name":"feeProtocol","type":"uint8"},
{"internalType":"bool","name":"unlocked","type":"bool"}],
"stateMutability":"view","type":"function"}]`

// q192 is 2^192, the square of the Q64.96 fixed-point scale.
var q192 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 192))

// UniswapV3Source reads the price of a pool's token1 quoted in token0
// from slot0.
type UniswapV3Source struct {
	caller         ethereum.ContractCaller
	pool           ethcommon.Address
	abi            abi.ABI
	token0Decimals int
	token1Decimals int
}

// NewUniswapV3Source creates a source for pool. For the default pool
// token0 is USDC (6 decimals) and token1 is WETH (18 decimals).
func NewUniswapV3Source(caller ethereum.ContractCaller, pool string, token0Decimals, token1Decimals int) (*UniswapV3Source, error) {
	if !ethcommon.IsHexAddress(pool) {
		return nil, gcerrors.NewConfigError("", fmt.Sprintf("invalid pool address %q", pool))
	}
	parsed, err := abi.JSON(strings.NewReader(slot0ABI))
	if err != nil {
		return nil, gcerrors.Wrap(err, "failed to parse slot0 ABI")
	}
	return &UniswapV3Source{
		caller:         caller,
		pool:           ethcommon.HexToAddress(pool),
		abi:            parsed,
		token0Decimals: token0Decimals,
		token1Decimals: token1Decimals,
	}, nil
}

func (s *UniswapV3Source) Name() string { return "uniswap_v3" }

// FetchPrice implements Source.
func (s *UniswapV3Source) FetchPrice(ctx context.Context) (float64, error) {
	data, err := s.abi.Pack("slot0")
	if err != nil {
		return 0, gcerrors.Wrap(err, "failed to pack slot0 call")
	}

	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.pool, Data: data}, nil)
	if err != nil {
		return 0, gcerrors.NewRPCError("", "slot0 call failed", err)
	}

	values, err := s.abi.Unpack("slot0", out)
	if err != nil {
		return 0, gcerrors.Wrap(err, "failed to decode slot0")
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("slot0 returned no values")
	}
	sqrtPriceX96, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected sqrtPriceX96 type %T", values[0])
	}

	return PriceFromSqrtX96(sqrtPriceX96, s.token0Decimals, s.token1Decimals)
}

// PriceFromSqrtX96 converts a pool's sqrtPriceX96 into the human price of
// one token1 expressed in token0.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, token0Decimals, token1Decimals int) (float64, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, fmt.Errorf("pool has no price")
	}

	sq := new(big.Float).SetInt(new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96))
	// raw = token1 base units per token0 base unit
	raw := new(big.Float).Quo(sq, q192)

	// human token1 in token0 = 1 / (raw * 10^(t0-t1))
	scale := new(big.Float).SetFloat64(pow10(token0Decimals - token1Decimals))
	denom := new(big.Float).Mul(raw, scale)
	price, _ := new(big.Float).Quo(big.NewFloat(1), denom).Float64()
	return price, nil
}

func pow10(n int) float64 {
	v := 1.0
	if n >= 0 {
		for i := 0; i < n; i++ {
			v *= 10
		}
		return v
	}
	for i := 0; i < -n; i++ {
		v /= 10
	}
	return v
}
