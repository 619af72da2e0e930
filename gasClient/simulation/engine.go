// Package simulation derives the cross-chain cost of a hypothetical
// transaction from a telemetry snapshot.
package simulation

import (
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

var weiPerNative = decimal.New(1, 18)

// ParseAmount parses the transaction amount text.
func ParseAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return decimal.Zero, gcerrors.NewInvalidSimulationInputError("amount is not a decimal number", err)
	}
	if d.IsNegative() {
		return decimal.Zero, gcerrors.NewInvalidSimulationInputError("amount must not be negative", nil)
	}
	return d, nil
}

// FeePerUnit returns the per-gas-unit price the simulation charges, in wei.
// Single-price chains already fold any tip into the base fee.
func FeePerUnit(family telemetry.FeeFamily, sample telemetry.GasSample) float64 {
	if family == telemetry.FamilyGasPrice {
		return sample.BaseFee
	}
	return sample.BaseFee + sample.PriorityFee
}

// Compute returns one entry per chain that has a latest sample. A malformed
// amount marks every entry invalid with a NaN total instead of failing.
func Compute(snap telemetry.Snapshot) telemetry.SimulationResult {
	result := make(telemetry.SimulationResult)

	price := decimal.NewFromFloat(snap.ReferencePrice)
	gasLimit := decimal.NewFromBigInt(new(big.Int).SetUint64(snap.Input.GasLimit), 0)
	amount, amountErr := ParseAmount(snap.Input.Amount)

	for _, cs := range snap.Chains() {
		if cs.LatestSample == nil {
			continue
		}
		unit := FeePerUnit(cs.Family, *cs.LatestSample)
		if math.IsNaN(unit) || math.IsInf(unit, 0) {
			continue
		}

		feeNative := decimal.NewFromFloat(unit).Mul(gasLimit).Div(weiPerNative)
		feeUSD := feeNative.Mul(price)
		cost := telemetry.ChainCost{
			FeeCostNative: feeNative.InexactFloat64(),
			FeeCostUSD:    feeUSD.InexactFloat64(),
		}

		if amountErr != nil {
			cost.Invalid = true
			cost.TotalCostUSD = math.NaN()
			cost.Reason = amountErr.Error()
		} else {
			cost.TotalCostUSD = feeUSD.Add(amount.Mul(price)).InexactFloat64()
		}
		result[cs.ID] = cost
	}
	return result
}
