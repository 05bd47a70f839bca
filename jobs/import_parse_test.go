package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stocktally/stocktally/internal/imports"
	jobmetrics "github.com/stocktally/stocktally/internal/jobs"
)

type stubParser struct {
	parseErr error
	run      imports.ImportRun
	getErr   error
	parsed   []uuid.UUID
}

func (s *stubParser) Parse(_ context.Context, runID uuid.UUID) error {
	s.parsed = append(s.parsed, runID)
	return s.parseErr
}

func (s *stubParser) Get(_ context.Context, runID uuid.UUID) (imports.ImportRun, error) {
	if s.getErr != nil {
		return imports.ImportRun{}, s.getErr
	}
	return s.run, nil
}

func newParseJob(parser *stubParser) *ImportParseJob {
	return NewImportParseJob(parser, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestImportParseTaskRoundTrip(t *testing.T) {
	runID := uuid.New()
	task, err := NewImportParseTask(runID)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != TaskImportParse {
		t.Fatalf("unexpected task type %s", task.Type())
	}
	var payload ImportParsePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.RunID != runID.String() {
		t.Fatalf("payload run id mismatch: %s", payload.RunID)
	}
}

func TestHandleParsesRun(t *testing.T) {
	runID := uuid.New()
	parser := &stubParser{run: imports.ImportRun{ID: runID, NewCount: 2, UpdateCount: 1}}
	job := newParseJob(parser)

	task, err := NewImportParseTask(runID)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(parser.parsed) != 1 || parser.parsed[0] != runID {
		t.Fatalf("expected one parse for %s, got %v", runID, parser.parsed)
	}
}

func TestHandleMalformedPayloadSkipsRetry(t *testing.T) {
	parser := &stubParser{}
	job := newParseJob(parser)

	task := asynq.NewTask(TaskImportParse, []byte("{"))
	err := job.Handle(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(parser.parsed) != 0 {
		t.Fatal("parser must not run on malformed payload")
	}
}

func TestHandleInvalidRunIDSkipsRetry(t *testing.T) {
	job := newParseJob(&stubParser{})

	body, _ := json.Marshal(ImportParsePayload{RunID: "not-a-uuid"})
	task := asynq.NewTask(TaskImportParse, body)
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestHandleSettledRunSkipsRetry(t *testing.T) {
	parser := &stubParser{parseErr: fmt.Errorf("%w: source has no barcode column", imports.ErrRunFailed)}
	job := newParseJob(parser)

	task, err := NewImportParseTask(uuid.New())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	handleErr := job.Handle(context.Background(), task)
	if !errors.Is(handleErr, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for a settled run, got %v", handleErr)
	}
}

func TestHandleVanishedRunSkipsRetry(t *testing.T) {
	parser := &stubParser{parseErr: imports.ErrRunNotFound}
	job := newParseJob(parser)

	task, err := NewImportParseTask(uuid.New())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for a vanished run, got %v", err)
	}
}

func TestHandleTransientErrorRetries(t *testing.T) {
	transient := errors.New("dial tcp: connection refused")
	parser := &stubParser{parseErr: transient}
	job := newParseJob(parser)

	task, err := NewImportParseTask(uuid.New())
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	handleErr := job.Handle(context.Background(), task)
	if !errors.Is(handleErr, transient) {
		t.Fatalf("expected the transient error back, got %v", handleErr)
	}
	if errors.Is(handleErr, asynq.SkipRetry) {
		t.Fatal("transient errors must stay retryable")
	}
}
