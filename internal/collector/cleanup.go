package collector

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"clickstream/internal/clock"
	"clickstream/internal/metrics"
)

const cleanupBatchSize = 1000

// CleanupJob removes received events older than the retention period.
type CleanupJob struct {
	db            *gorm.DB
	clock         clock.Clock
	logger        *slog.Logger
	metrics       *metrics.Collector
	retentionDays int
}

func NewCleanupJob(db *gorm.DB, clk clock.Clock, logger *slog.Logger, m *metrics.Collector, retentionDays int) *CleanupJob {
	return &CleanupJob{
		db:            db,
		clock:         clk,
		logger:        logger,
		metrics:       m,
		retentionDays: retentionDays,
	}
}

// Run deletes expired events in batches. A non-positive retention keeps
// everything.
func (j *CleanupJob) Run() error {
	if j.retentionDays <= 0 {
		return nil
	}
	cutoff := j.clock.Now().UTC().AddDate(0, 0, -j.retentionDays)

	j.logger.Debug("Starting cleanup of received events",
		slog.Int("retention_days", j.retentionDays),
		slog.Time("cutoff_date", cutoff))

	var total int64
	for {
		var ids []uint
		if err := j.db.Model(&ReceivedEvent{}).
			Where("received_at < ?", cutoff).
			Limit(cleanupBatchSize).
			Pluck("id", &ids).Error; err != nil {
			j.logger.Error("Failed to find expired events", slog.Any("error", err))
			return err
		}
		if len(ids) == 0 {
			break
		}

		result := j.db.Where("id IN ?", ids).Delete(&ReceivedEvent{})
		if result.Error != nil {
			j.logger.Error("Failed to delete expired events",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", total))
			return result.Error
		}
		total += result.RowsAffected

		if len(ids) < cleanupBatchSize {
			break
		}
	}

	if total > 0 {
		j.metrics.EventsPurged.Add(float64(total))
		j.logger.Info("Cleaned up received events",
			slog.Int64("deleted_count", total),
			slog.Int("retention_days", j.retentionDays))
	}
	return nil
}

// Interval is how often the cleanup job runs.
func (j *CleanupJob) Interval() time.Duration {
	return 24 * time.Hour
}
