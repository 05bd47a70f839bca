package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stocktally/stocktally/internal/jobs"
)

const (
	// TaskMaintenanceCleanup removes spent idempotency keys.
	TaskMaintenanceCleanup = "maintenance:cleanup"

	defaultCleanupRetention = 48 * time.Hour
)

// MaintenanceCleanupPayload bounds the cleanup window.
type MaintenanceCleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

// IdempotencyCleaner deletes idempotency keys past their retention.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// MaintenanceCleanupJob keeps the idempotency table from growing
// without bound.
type MaintenanceCleanupJob struct {
	Idempotency IdempotencyCleaner
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewMaintenanceCleanupJob constructs the job handler.
func NewMaintenanceCleanupJob(cleaner IdempotencyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *MaintenanceCleanupJob {
	return &MaintenanceCleanupJob{Idempotency: cleaner, Logger: logger, Metrics: metrics}
}

// NewMaintenanceCleanupTask creates an Asynq task for the cleanup run.
func NewMaintenanceCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	if olderThan <= 0 {
		olderThan = defaultCleanupRetention
	}
	body, err := json.Marshal(MaintenanceCleanupPayload{OlderThanHours: int(olderThan.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMaintenanceCleanup, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the cleanup job.
func (j *MaintenanceCleanupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Idempotency == nil {
		return errors.New("maintenance cleanup: dependencies not configured")
	}
	var payload MaintenanceCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	olderThan := defaultCleanupRetention
	if payload.OlderThanHours > 0 {
		olderThan = time.Duration(payload.OlderThanHours) * time.Hour
	}

	tracker := j.metrics().Track(TaskMaintenanceCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Idempotency.Cleanup(ctx, olderThan); err != nil {
		resultErr = err
		j.log().Error("cleanup idempotency keys", slog.Duration("older_than", olderThan), slog.Any("error", err))
		return resultErr
	}
	j.log().Info("cleaned up idempotency keys", slog.Duration("older_than", olderThan))
	return resultErr
}

func (j *MaintenanceCleanupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MaintenanceCleanupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMaintenanceCleanup))
	}
	return slog.Default().With(slog.String("job", TaskMaintenanceCleanup))
}
