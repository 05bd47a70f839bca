package imports

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Run status values. A run moves pending → parsing → awaiting_review →
// applied; failed and discarded are terminal.
const (
	StatusPending        = "pending"
	StatusParsing        = "parsing"
	StatusAwaitingReview = "awaiting_review"
	StatusApplied        = "applied"
	StatusFailed         = "failed"
	StatusDiscarded      = "discarded"
)

// Sentinel errors surfaced by the run lifecycle.
var (
	ErrRunNotFound      = errors.New("imports: run not found")
	ErrRunNotReviewable = errors.New("imports: run is not awaiting review")
	ErrRunFailed        = errors.New("imports: run failed")
	ErrPayloadExpired   = errors.New("imports: stored payload expired")
	ErrFileRequired     = errors.New("imports: file required")
)

// ImportRun tracks one uploaded file through parse, review and apply.
// The heavyweight parse result lives in Redis under the run id; the run
// row keeps only the headline counts.
type ImportRun struct {
	ID             uuid.UUID  `json:"id"`
	Filename       string     `json:"filename"`
	SizeBytes      int64      `json:"size_bytes"`
	Status         string     `json:"status"`
	NewCount       int        `json:"new_count"`
	UpdateCount    int        `json:"update_count"`
	DuplicateCount int        `json:"duplicate_count"`
	ErrorCount     int        `json:"error_count"`
	Error          *string    `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ParsedAt       *time.Time `json:"parsed_at,omitempty"`
	AppliedAt      *time.Time `json:"applied_at,omitempty"`
}
