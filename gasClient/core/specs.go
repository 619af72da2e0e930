package core

import (
	"time"

	"github.com/pushchain/gas-monitor/gasClient/chains"
	"github.com/pushchain/gas-monitor/gasClient/chains/evm"
	"github.com/pushchain/gas-monitor/gasClient/config"
	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

const weiPerGwei = 1e9

// buildChainSpecs turns the enabled chain configs into manager specs in
// display order.
func buildChainSpecs(cfg *config.Config) ([]chains.ChainSpec, error) {
	ids := cfg.OrderedChainIDs()
	specs := make([]chains.ChainSpec, 0, len(ids))
	for _, id := range ids {
		cc, err := cfg.GetChainConfig(id)
		if err != nil {
			return nil, gcerrors.NewConfigError(id, err.Error())
		}

		family := telemetry.FeeFamily(cc.Family)
		if !family.Valid() {
			return nil, gcerrors.NewConfigError(id, "unknown fee family "+cc.Family)
		}

		chainID := telemetry.ChainID(id)
		spec := chains.ChainSpec{
			Info: telemetry.ChainInfo{
				ID:     chainID,
				Name:   cc.Name,
				Symbol: cc.Symbol,
				Color:  cc.Color,
				Family: family,
			},
			Feed: evm.FeedConfig{
				Chain:               chainID,
				Endpoint:            cc.WSURL,
				Family:              family,
				ExpectedChainID:     cc.ExpectedChainID,
				PriorityFeeGwei:     cc.PriorityFeeGwei,
				PriorityFeeMode:     evm.PriorityFeeMode(cc.PriorityFeeMode),
				PriorityFeeInterval: time.Duration(cc.PriorityFeePollIntervalSeconds) * time.Second,
			},
		}

		if cc.SeedBaseFeeGwei != nil {
			seed := telemetry.GasSample{BaseFee: *cc.SeedBaseFeeGwei * weiPerGwei}
			if family == telemetry.FamilyEIP1559 {
				seed.PriorityFee = cc.PriorityFeeGwei * weiPerGwei
			}
			spec.Seed = &seed
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
