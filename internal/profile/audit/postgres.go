package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/psyprofile/psyprofile-backend/pkg/database"
)

const insertEntry = `
	INSERT INTO profile_processing_audit (
		id, session_id, action, format, outcome, error_code,
		duration_ms, documents, sections, created_at
	) VALUES (
		:id, :session_id, :action, :format, :outcome, :error_code,
		:duration_ms, :documents, :sections, :created_at
	)
`

// Schema creates the audit table
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS profile_processing_audit (
		id          UUID PRIMARY KEY,
		session_id  VARCHAR(64) NOT NULL,
		action      VARCHAR(32) NOT NULL,
		format      VARCHAR(16) NOT NULL DEFAULT '',
		outcome     VARCHAR(16) NOT NULL,
		error_code  VARCHAR(64) NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		documents   INTEGER NOT NULL DEFAULT 0,
		sections    INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_profile_audit_created_at ON profile_processing_audit (created_at)`,
}

// PostgresRecorder inserts audit entries into profile_processing_audit.
// The table is created on the first insert that finds it missing.
type PostgresRecorder struct {
	db *database.DB

	migrateMu sync.Mutex
	migrated  bool
}

func NewPostgresRecorder(db *database.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	e = Finalize(e, time.Now())

	_, err := r.db.NamedExecContext(ctx, insertEntry, e)
	if err == nil {
		return nil
	}
	if !database.IsUndefinedTable(err) {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	if err := r.migrate(ctx); err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, insertEntry, e); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	r.migrateMu.Lock()
	defer r.migrateMu.Unlock()
	if r.migrated {
		return nil
	}
	if err := r.db.Migrate(ctx, Schema...); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	r.migrated = true
	return nil
}
