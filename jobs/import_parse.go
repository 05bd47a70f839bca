package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/stocktally/stocktally/internal/imports"
	jobmetrics "github.com/stocktally/stocktally/internal/jobs"
)

const (
	// TaskImportParse turns a staged upload into a reviewable result.
	TaskImportParse = "import:parse"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ImportParsePayload identifies the run the worker should parse.
type ImportParsePayload struct {
	RunID string `json:"run_id"`
}

// ImportParser is the slice of the imports service the job depends on.
type ImportParser interface {
	Parse(ctx context.Context, runID uuid.UUID) error
	Get(ctx context.Context, runID uuid.UUID) (imports.ImportRun, error)
}

// ImportParseJob runs staged uploads through the reconciliation diff.
type ImportParseJob struct {
	Parser  ImportParser
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewImportParseJob constructs the job handler.
func NewImportParseJob(parser ImportParser, logger *slog.Logger, metrics *jobmetrics.Metrics) *ImportParseJob {
	return &ImportParseJob{Parser: parser, Logger: logger, Metrics: metrics}
}

// NewImportParseTask creates an Asynq task for parsing the given run.
func NewImportParseTask(runID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(ImportParsePayload{RunID: runID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImportParse, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the parse job. File-shaped failures settle the run as
// failed and are not retried; infrastructure errors are returned so the
// task retries.
func (j *ImportParseJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Parser == nil {
		return errors.New("import parse: dependencies not configured")
	}
	var payload ImportParsePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	runID, err := uuid.Parse(payload.RunID)
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskImportParse)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	if err := j.Parser.Parse(ctx, runID); err != nil {
		resultErr = err
		switch {
		case errors.Is(err, imports.ErrRunFailed):
			j.log().Warn("import settled as failed", slog.String("run_id", payload.RunID), slog.Any("error", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		case errors.Is(err, imports.ErrRunNotFound):
			j.log().Warn("import run vanished before parse", slog.String("run_id", payload.RunID))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			j.log().Error("parse import", slog.String("run_id", payload.RunID), slog.Any("error", err))
			return resultErr
		}
	}

	if run, err := j.Parser.Get(ctx, runID); err == nil {
		j.metrics().AddImportOutcomes(run.NewCount, run.UpdateCount, run.DuplicateCount, run.ErrorCount)
		j.log().Info("parsed import",
			slog.String("run_id", payload.RunID),
			slog.Int("new", run.NewCount),
			slog.Int("updates", run.UpdateCount),
			slog.Int("duplicates", run.DuplicateCount),
			slog.Int("row_errors", run.ErrorCount),
			slog.Duration("duration", time.Since(start)))
	}
	return resultErr
}

func (j *ImportParseJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ImportParseJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskImportParse))
	}
	return slog.Default().With(slog.String("job", TaskImportParse))
}
