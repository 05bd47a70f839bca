package countsync

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stocktally/stocktally/internal/tabular"
)

// Session status values. A session starts open and keeps its last sync
// outcome as status once at least one row was attempted.
const (
	StatusOpen                = "open"
	StatusSynced              = "synced successfully"
	StatusAttemptedWithErrors = "attempted with errors"
)

// CountSession is one physical stock take: a free-form grid captured on
// the floor and synced back onto the catalog row by row.
type CountSession struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Status    string       `json:"status"`
	Grid      tabular.Grid `json:"grid"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Report tallies one sync pass over a session grid.
type Report struct {
	Processed int `json:"processed"`
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summary renders the report as a display string.
func (r Report) Summary() string {
	return fmt.Sprintf("%d rows processed, %d attempted, %d succeeded, %d failed",
		r.Processed, r.Attempted, r.Succeeded, r.Failed)
}
