package db

import (
	"github.com/pkg/errors"

	"github.com/pushchain/gas-monitor/gasClient/history"
	"github.com/pushchain/gas-monitor/gasClient/store"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// RecordSample archives one accepted sample.
func (d *DB) RecordSample(chain telemetry.ChainID, sample telemetry.GasSample) error {
	rec := store.GasSampleRecord{
		Chain:        string(chain),
		TimestampSec: sample.TimestampSec,
		BlockNumber:  sample.BlockNumber,
		BaseFee:      sample.BaseFee,
		PriorityFee:  sample.PriorityFee,
	}
	if err := d.client.Create(&rec).Error; err != nil {
		return errors.Wrapf(err, "failed to archive sample for %s", chain)
	}
	return nil
}

// RecentSamples returns up to limit of the chain's newest samples, oldest first.
func (d *DB) RecentSamples(chain telemetry.ChainID, limit int) ([]telemetry.GasSample, error) {
	var recs []store.GasSampleRecord
	err := d.client.
		Where("chain = ?", string(chain)).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load samples for %s", chain)
	}

	out := make([]telemetry.GasSample, 0, len(recs))
	for i := len(recs) - 1; i >= 0; i-- {
		out = append(out, telemetry.GasSample{
			BaseFee:      recs[i].BaseFee,
			PriorityFee:  recs[i].PriorityFee,
			BlockNumber:  recs[i].BlockNumber,
			TimestampSec: recs[i].TimestampSec,
		})
	}
	return out, nil
}

// TrimChain deletes all but the newest keep samples of a chain and returns
// the number of deleted rows.
func (d *DB) TrimChain(chain telemetry.ChainID, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	var cutoff store.GasSampleRecord
	res := d.client.
		Where("chain = ?", string(chain)).
		Order("id DESC").
		Offset(keep).
		Limit(1).
		Find(&cutoff)
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "failed to find trim cutoff for %s", chain)
	}
	if res.RowsAffected == 0 {
		return 0, nil
	}

	res = d.client.Unscoped().
		Where("chain = ? AND id <= ?", string(chain), cutoff.ID).
		Delete(&store.GasSampleRecord{})
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "failed to trim samples for %s", chain)
	}
	return res.RowsAffected, nil
}

// Restore replays each chain's archived window into the store so a
// restarted process starts with its last known data. Chains without
// archived samples are skipped. It returns the number of restored chains.
func (d *DB) Restore(s *telemetry.Store, window int) (int, error) {
	restored := 0
	for _, id := range s.Snapshot().ChainIDs() {
		samples, err := d.RecentSamples(id, window)
		if err != nil {
			return restored, err
		}
		if len(samples) == 0 {
			continue
		}

		var buf history.Buffer
		for _, sample := range samples {
			buf, _ = buf.Append(sample.PriceGwei(), sample.TimestampSec)
		}
		if err := s.RestoreChain(id, samples[len(samples)-1], buf.Points()); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}
