// Package audit records content-free processing events. Entries never carry
// document text, file names or person data.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the profile service
const (
	ActionSessionStart   = "session_start"
	ActionSessionEnd     = "session_end"
	ActionUpload         = "upload"
	ActionRemoveDocument = "remove_document"
	ActionGenerate       = "generate"
	ActionExport         = "export"
	ActionAsk            = "ask"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is one audit record
type Entry struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	Action     string    `json:"action" db:"action"`
	Format     string    `json:"format,omitempty" db:"format"`
	Outcome    string    `json:"outcome" db:"outcome"`
	ErrorCode  string    `json:"error_code,omitempty" db:"error_code"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
	Documents  int       `json:"documents" db:"documents"`
	Sections   int       `json:"sections" db:"sections"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Recorder persists audit entries
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Finalize fills the generated fields of an entry
func Finalize(e Entry, now time.Time) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
		if e.ErrorCode != "" {
			e.Outcome = OutcomeFailure
		}
	}
	return e
}
