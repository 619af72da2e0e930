package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

// SampleCleaner periodically trims every chain's archive to the newest
// retention samples.
type SampleCleaner struct {
	database        *DB
	chains          []telemetry.ChainID
	retention       int
	cleanupInterval time.Duration
	logger          zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSampleCleaner creates a new sample cleaner
func NewSampleCleaner(
	database *DB,
	chains []telemetry.ChainID,
	retention int,
	cleanupInterval time.Duration,
	logger zerolog.Logger,
) *SampleCleaner {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &SampleCleaner{
		database:        database,
		chains:          chains,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		logger:          logger.With().Str("component", "sample_cleaner").Logger(),
		stopCh:          make(chan struct{}),
	}
}

// Start performs one cleanup and then cleans on every interval.
func (sc *SampleCleaner) Start(ctx context.Context) error {
	sc.logger.Info().
		Dur("cleanup_interval", sc.cleanupInterval).
		Int("retention", sc.retention).
		Msg("starting sample cleaner")

	if err := sc.performCleanup(); err != nil {
		sc.logger.Error().Err(err).Msg("failed to perform initial cleanup")
	}

	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		ticker := time.NewTicker(sc.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				sc.logger.Info().Msg("context cancelled, stopping sample cleaner")
				return
			case <-sc.stopCh:
				sc.logger.Info().Msg("stop signal received, stopping sample cleaner")
				return
			case <-ticker.C:
				if err := sc.performCleanup(); err != nil {
					sc.logger.Error().Err(err).Msg("failed to perform scheduled cleanup")
				}
			}
		}
	}()

	return nil
}

// Stop stops the cleaner and waits for it to exit.
func (sc *SampleCleaner) Stop() {
	sc.stopOnce.Do(func() { close(sc.stopCh) })
	sc.wg.Wait()
}

func (sc *SampleCleaner) performCleanup() error {
	start := time.Now()
	totalDeleted := int64(0)
	var cleanupErrors []error

	for _, chain := range sc.chains {
		deleted, err := sc.database.TrimChain(chain, sc.retention)
		if err != nil {
			sc.logger.Error().Err(err).Str("chain", string(chain)).Msg("failed to trim samples for chain")
			cleanupErrors = append(cleanupErrors, fmt.Errorf("chain %s: %w", chain, err))
			continue
		}
		totalDeleted += deleted
	}

	if totalDeleted > 0 {
		sc.checkpointWAL()
		sc.logger.Info().
			Int64("total_deleted", totalDeleted).
			Dur("duration", time.Since(start)).
			Msg("sample cleanup completed")
	}

	if len(cleanupErrors) > 0 {
		return fmt.Errorf("cleanup failed for %d chains: %v", len(cleanupErrors), cleanupErrors)
	}
	return nil
}

// checkpointWAL truncates the WAL so the file does not grow unbounded.
func (sc *SampleCleaner) checkpointWAL() {
	if err := sc.database.Client().Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		sc.logger.Warn().Err(err).Msg("failed to checkpoint WAL")
	}
}
