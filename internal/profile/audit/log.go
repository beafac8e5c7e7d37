package audit

import (
	"context"
	"time"

	"github.com/psyprofile/psyprofile-backend/pkg/logger"
)

// LogRecorder writes audit entries as structured log lines
type LogRecorder struct {
	log *logger.Logger
}

func NewLogRecorder(log *logger.Logger) *LogRecorder {
	if log == nil {
		log = logger.Nop()
	}
	return &LogRecorder{log: log.WithComponent("audit")}
}

func (r *LogRecorder) Record(_ context.Context, e Entry) error {
	e = Finalize(e, time.Now())

	ev := r.log.Info()
	if e.Outcome == OutcomeFailure {
		ev = r.log.Warn()
	}
	ev.Str("audit_id", e.ID).
		Str("session_id", e.SessionID).
		Str("action", e.Action).
		Str("outcome", e.Outcome).
		Int64("duration_ms", e.DurationMs).
		Int("documents", e.Documents).
		Int("sections", e.Sections)
	if e.Format != "" {
		ev.Str("format", e.Format)
	}
	if e.ErrorCode != "" {
		ev.Str("error_code", e.ErrorCode)
	}
	ev.Time("at", e.CreatedAt).Msg("audit")
	return nil
}
