package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/spmonitor/dashboard/internal/downloads"
	jobmetrics "github.com/spmonitor/dashboard/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Refresher reloads a snapshot and publishes it to the shared cache.
type Refresher interface {
	Refresh(ctx context.Context, conn downloads.Connection) (downloads.Snapshot, error)
}

// RefreshSnapshotJob keeps the shared snapshot cache warm for the dashboards.
type RefreshSnapshotJob struct {
	Refresher Refresher
	Default   downloads.Connection
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
	// Check validates the connection before refreshing. Nil uses Connection.Validate.
	Check downloads.ConnectionCheck
}

// NewRefreshSnapshotJob wires dependencies for the refresh handler.
func NewRefreshSnapshotJob(refresher Refresher, defaults downloads.Connection, logger *slog.Logger, metrics *jobmetrics.Metrics) *RefreshSnapshotJob {
	return &RefreshSnapshotJob{
		Refresher: refresher,
		Default:   defaults,
		Logger:    logger,
		Metrics:   metrics,
		Timeout:   time.Minute,
	}
}

// Handle processes downloads:refresh tasks.
func (j *RefreshSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Refresher == nil {
		return errors.New("refresh snapshot: handler not configured")
	}
	var payload RefreshPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("refresh snapshot: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	conn := j.Default
	if payload.Connection != nil {
		conn = *payload.Connection
	}
	conn = conn.Normalize()

	tracker := j.metrics().Track(TaskDownloadsRefresh)
	logger := j.logger().With(slog.String("endpoint", conn.Key()))

	check := j.Check
	if check == nil {
		check = downloads.Connection.Validate
	}
	if err := check(conn); err != nil {
		logger.Error("refresh connection invalid", slog.Any("error", err))
		// Retrying cannot fix the configuration.
		return fmt.Errorf("%w: %w", tracker.End(err), asynq.SkipRetry)
	}

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	snap, err := j.Refresher.Refresh(ctx, conn)
	if err != nil {
		logger.Error("refresh snapshot", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetRecords(TaskDownloadsRefresh, len(snap.Dataset.Downloads))
	logger.Info("refreshed snapshot",
		slog.Int("records", len(snap.Dataset.Downloads)),
		slog.String("digest", snap.Digest),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *RefreshSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDownloadsRefresh))
	}
	return slog.Default().With(slog.String("job", TaskDownloadsRefresh))
}

func (j *RefreshSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
