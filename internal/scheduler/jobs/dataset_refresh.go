package jobs

import (
	"context"
	"fmt"

	"github.com/quantlab/scanbridge/internal/instruments"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// DatasetRefreshJob re-downloads the scrip master and rebuilds the equity
// universe ahead of TTL expiry, so the first scan of the day never pays
// the download cost.
type DatasetRefreshJob struct {
	master   *instruments.Master
	universe *instruments.Universe
	logger   *logger.Logger
}

// NewDatasetRefreshJob creates a new dataset refresh job
func NewDatasetRefreshJob(master *instruments.Master, universe *instruments.Universe, log *logger.Logger) *DatasetRefreshJob {
	return &DatasetRefreshJob{
		master:   master,
		universe: universe,
		logger:   log,
	}
}

// Name returns the job name
func (j *DatasetRefreshJob) Name() string {
	return "dataset_refresh"
}

// Schedule returns the cron schedule (8:30 AM IST, before market open)
func (j *DatasetRefreshJob) Schedule() string {
	return "0 30 8 * * *"
}

// Run refreshes the dataset and rebuilds the universe
func (j *DatasetRefreshJob) Run(ctx context.Context) error {
	rows, err := j.master.Rows(ctx, true)
	if err != nil {
		return fmt.Errorf("refresh scrip master: %w", err)
	}

	entries, err := j.universe.Entries(ctx, true)
	if err != nil {
		return fmt.Errorf("rebuild universe: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"rows":    len(rows),
		"entries": len(entries),
	}).Info("Refreshed reference dataset")

	return nil
}
