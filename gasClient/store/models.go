// Package store contains GORM-backed SQLite models used by the gas monitor.
//
// Database Structure (database file: gas_samples.db):
//
//	data/
//	└── gas_samples.db
//	    └── gas_sample_records
package store

import (
	"gorm.io/gorm"
)

// GasSampleRecord is one archived fee observation for a chain.
type GasSampleRecord struct {
	gorm.Model
	Chain        string  `gorm:"index:idx_chain_time,priority:1;not null"`
	TimestampSec int64   `gorm:"index:idx_chain_time,priority:2;not null"` // sample time, unix seconds
	BlockNumber  uint64  // block the sample was read from
	BaseFee      float64 `gorm:"not null"` // wei per gas unit
	PriorityFee  float64 `gorm:"not null"` // wei per gas unit
}
