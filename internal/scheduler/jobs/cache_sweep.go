package jobs

import (
	"context"

	"github.com/quantlab/scanbridge/internal/scan"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// CacheSweepJob evicts expired scan responses. Expired entries are already
// invisible to readers; the sweep just keeps the map from growing across a
// trading day of varied scan parameters.
type CacheSweepJob struct {
	cache  *scan.Cache
	logger *logger.Logger
}

// NewCacheSweepJob creates a new cache sweep job
func NewCacheSweepJob(cache *scan.Cache, log *logger.Logger) *CacheSweepJob {
	return &CacheSweepJob{
		cache:  cache,
		logger: log,
	}
}

// Name returns the job name
func (j *CacheSweepJob) Name() string {
	return "scan_cache_sweep"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *CacheSweepJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run sweeps the scan cache
func (j *CacheSweepJob) Run(ctx context.Context) error {
	dropped := j.cache.Sweep()
	if dropped > 0 {
		j.logger.WithField("dropped", dropped).Debug("Swept scan cache")
	}
	return nil
}
