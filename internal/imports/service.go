package imports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stocktally/stocktally/internal/catalog"
	"github.com/stocktally/stocktally/internal/reconcile"
	"github.com/stocktally/stocktally/internal/shared"
	"github.com/stocktally/stocktally/internal/tabular"
)

const idempotencyScope = "imports.apply"

// RunRepository is the persistence port for runs.
type RunRepository interface {
	Insert(ctx context.Context, run ImportRun) error
	Get(ctx context.Context, id uuid.UUID) (ImportRun, error)
	List(ctx context.Context, page, perPage int) ([]ImportRun, int, error)
	Save(ctx context.Context, run ImportRun) error
}

// ResultPort stages parse results between parse and review.
type ResultPort interface {
	Put(ctx context.Context, runID string, result reconcile.Result) error
	Get(ctx context.Context, runID string) (reconcile.Result, error)
	Delete(ctx context.Context, runID string) error
}

// PayloadPort stages raw upload bytes for the parse task.
type PayloadPort interface {
	Put(ctx context.Context, runID string, payload []byte) error
	Get(ctx context.Context, runID string) ([]byte, error)
	Delete(ctx context.Context, runID string) error
}

// SnapshotPort supplies the catalog state a run diffs against.
type SnapshotPort interface {
	Snapshot(ctx context.Context) (map[string]catalog.SnapshotEntry, error)
}

// ApplierPort commits a reviewed result.
type ApplierPort interface {
	Apply(ctx context.Context, result reconcile.Result) (reconcile.ApplySummary, error)
}

// IdempotencyPort guards replayed apply requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key, scope string) error
}

// AuditPort records run activity.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Enqueuer hands large uploads to the background worker.
type Enqueuer interface {
	EnqueueImportParse(ctx context.Context, runID uuid.UUID) error
}

// Service owns the import run lifecycle: upload, parse, review, apply,
// discard.
type Service struct {
	runs           RunRepository
	results        ResultPort
	payloads       PayloadPort
	catalog        SnapshotPort
	applier        ApplierPort
	idempotency    IdempotencyPort
	audit          AuditPort
	enqueuer       Enqueuer
	asyncThreshold int64
}

// ServiceParams collects the service dependencies.
type ServiceParams struct {
	Runs           RunRepository
	Results        ResultPort
	Payloads       PayloadPort
	Catalog        SnapshotPort
	Applier        ApplierPort
	Idempotency    IdempotencyPort
	Audit          AuditPort
	Enqueuer       Enqueuer
	AsyncThreshold int64
}

// NewService constructs Service.
func NewService(p ServiceParams) *Service {
	return &Service{
		runs:           p.Runs,
		results:        p.Results,
		payloads:       p.Payloads,
		catalog:        p.Catalog,
		applier:        p.Applier,
		idempotency:    p.Idempotency,
		audit:          p.Audit,
		enqueuer:       p.Enqueuer,
		asyncThreshold: p.AsyncThreshold,
	}
}

// Upload registers a new run for the given file. Small files parse
// inline so the response already carries the review counts; anything
// over the async threshold is staged in Redis and handed to the worker.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (ImportRun, error) {
	if _, err := tabular.Detect(filename); err != nil {
		return ImportRun{}, err
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return ImportRun{}, err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return ImportRun{}, tabular.ErrEmptySource
	}

	run := ImportRun{
		ID:        uuid.New(),
		Filename:  filename,
		SizeBytes: int64(len(payload)),
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		return ImportRun{}, err
	}
	if err := s.payloads.Put(ctx, run.ID.String(), payload); err != nil {
		return ImportRun{}, err
	}

	if run.SizeBytes > s.asyncThreshold {
		if err := s.enqueuer.EnqueueImportParse(ctx, run.ID); err != nil {
			return ImportRun{}, err
		}
		return run, nil
	}

	if err := s.Parse(ctx, run.ID); err != nil && !errors.Is(err, ErrRunFailed) {
		return ImportRun{}, err
	}
	return s.runs.Get(ctx, run.ID)
}

// Parse decodes the staged payload, diffs it against the catalog and
// stores the result for review. File problems mark the run failed and
// return ErrRunFailed; infrastructure errors leave the run for retry.
// A run already past parsing is left alone, so replays are harmless.
func (s *Service) Parse(ctx context.Context, runID uuid.UUID) error {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != StatusPending && run.Status != StatusParsing {
		return nil
	}

	run.Status = StatusParsing
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}

	payload, err := s.payloads.Get(ctx, runID.String())
	if err != nil {
		if errors.Is(err, ErrPayloadExpired) {
			return s.failRun(ctx, run, err)
		}
		return err
	}
	format, err := tabular.Detect(run.Filename)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	// Decode and snapshot fetch overlap; the snapshot is the slow side
	// on a big catalog. Decode failures are the file's fault and settle
	// after Wait, a snapshot failure is infrastructure and retryable.
	var (
		src       tabular.Source
		decodeErr error
		snapshot  map[string]catalog.SnapshotEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		src, decodeErr = tabular.Decode(format, bytes.NewReader(payload))
		return nil
	})
	g.Go(func() error {
		var err error
		snapshot, err = s.catalog.Snapshot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if decodeErr != nil {
		return s.failRun(ctx, run, decodeErr)
	}

	result, err := reconcile.Diff(src, snapshot)
	if err != nil {
		return s.failRun(ctx, run, err)
	}
	if err := s.results.Put(ctx, runID.String(), result); err != nil {
		return err
	}

	summary := result.Summary()
	now := time.Now()
	run.Status = StatusAwaitingReview
	run.NewCount = summary.NewProducts
	run.UpdateCount = summary.Updates
	run.DuplicateCount = summary.Duplicates
	run.ErrorCount = summary.RowErrors
	run.Error = nil
	run.ParsedAt = &now
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}
	_ = s.payloads.Delete(ctx, runID.String())
	return nil
}

// failRun records a permanent parse failure on the run.
func (s *Service) failRun(ctx context.Context, run ImportRun, cause error) error {
	msg := cause.Error()
	run.Status = StatusFailed
	run.Error = &msg
	if err := s.runs.Save(ctx, run); err != nil {
		return err
	}
	_ = s.payloads.Delete(ctx, run.ID.String())
	return fmt.Errorf("%w: %v", ErrRunFailed, cause)
}

// Get fetches one run.
func (s *Service) Get(ctx context.Context, runID uuid.UUID) (ImportRun, error) {
	return s.runs.Get(ctx, runID)
}

// List returns a page of runs, newest first.
func (s *Service) List(ctx context.Context, page, perPage int) ([]ImportRun, shared.Pagination, error) {
	runs, total, err := s.runs.List(ctx, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return runs, shared.NewPagination(page, perPage, total), nil
}

// Review returns the run together with its staged result. An expired
// result moves the run to discarded; the caller then sees the run
// without an itemized result.
func (s *Service) Review(ctx context.Context, runID uuid.UUID) (ImportRun, *reconcile.Result, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return ImportRun{}, nil, err
	}
	if run.Status != StatusAwaitingReview {
		return run, nil, nil
	}

	result, err := s.results.Get(ctx, runID.String())
	if errors.Is(err, reconcile.ErrResultExpired) {
		run.Status = StatusDiscarded
		if err := s.runs.Save(ctx, run); err != nil {
			return ImportRun{}, nil, err
		}
		return run, nil, nil
	}
	if err != nil {
		return ImportRun{}, nil, err
	}
	return run, &result, nil
}

// Apply commits the staged result of a reviewed run. The optional
// idempotency key makes replayed requests conflict instead of applying
// twice; the key is released again when the apply itself fails.
func (s *Service) Apply(ctx context.Context, runID uuid.UUID, idempotencyKey string) (reconcile.ApplySummary, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return reconcile.ApplySummary{}, err
	}
	if run.Status != StatusAwaitingReview {
		return reconcile.ApplySummary{}, fmt.Errorf("%w: run is %s", ErrRunNotReviewable, run.Status)
	}

	insertedKey := false
	if idempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, idempotencyScope); err != nil {
			return reconcile.ApplySummary{}, err
		}
		insertedKey = true
	}
	releaseKey := func() {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idempotencyKey, idempotencyScope)
		}
	}

	result, err := s.results.Get(ctx, runID.String())
	if errors.Is(err, reconcile.ErrResultExpired) {
		run.Status = StatusDiscarded
		_ = s.runs.Save(ctx, run)
		err = fmt.Errorf("%w: pending result expired", ErrRunNotReviewable)
	}
	if err != nil {
		releaseKey()
		return reconcile.ApplySummary{}, err
	}

	summary, err := s.applier.Apply(ctx, result)
	if err != nil {
		releaseKey()
		return reconcile.ApplySummary{}, err
	}

	now := time.Now()
	run.Status = StatusApplied
	run.AppliedAt = &now
	if err := s.runs.Save(ctx, run); err != nil {
		return summary, err
	}
	_ = s.results.Delete(ctx, runID.String())

	s.recordAudit(ctx, "import.apply", run, map[string]any{
		"filename":      run.Filename,
		"created":       summary.Created,
		"updated":       summary.Updated,
		"price_entries": summary.PriceEntries,
	})
	return summary, nil
}

// Discard drops a run that has not been applied. The staged result and
// payload are deleted; applied or failed runs stay as they are.
func (s *Service) Discard(ctx context.Context, runID uuid.UUID) (ImportRun, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return ImportRun{}, err
	}
	switch run.Status {
	case StatusPending, StatusParsing, StatusAwaitingReview:
	default:
		return ImportRun{}, fmt.Errorf("%w: run is %s", ErrRunNotReviewable, run.Status)
	}

	run.Status = StatusDiscarded
	if err := s.runs.Save(ctx, run); err != nil {
		return ImportRun{}, err
	}
	_ = s.results.Delete(ctx, runID.String())
	_ = s.payloads.Delete(ctx, runID.String())

	s.recordAudit(ctx, "import.discard", run, map[string]any{"filename": run.Filename})
	return run, nil
}

func (s *Service) recordAudit(ctx context.Context, action string, run ImportRun, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "import_run",
		EntityID: run.ID.String(),
		Meta:     meta,
	})
}
