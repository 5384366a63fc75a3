package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"retailapi/internal/logging"
)

type migrationStep struct {
	Name string
	SQL  string
}

// migrationLockKey names the advisory lock held while the steps run.
const migrationLockKey int64 = 0x72657461696c // "retail"

const sentinelQuery = "SELECT to_regclass('public.entities') IS NOT NULL"

// The steps run in one transaction under migrationLockKey. IF NOT EXISTS alone
// is not enough: concurrent creates of the same table race on the catalog.
var steps = []migrationStep{
	{
		Name: "create_table_entities",
		SQL: `CREATE TABLE IF NOT EXISTS entities (
  partition_key  TEXT        NOT NULL,
  row_key        TEXT        NOT NULL,
  version        TEXT        NOT NULL,
  last_modified  TIMESTAMPTZ NOT NULL DEFAULT now(),
  fields         JSONB       NOT NULL DEFAULT '{}'::jsonb,
  attachment_ref TEXT,
  PRIMARY KEY (partition_key, row_key)
);`,
	},
	{
		Name: "create_index_entities_last_modified",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_entities_partition_last_modified ON entities (partition_key, last_modified);`,
	},
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableExists(ctx context.Context, q queryRower) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, sentinelQuery).Scan(&exists)
	return exists, err
}

// alreadyCreated reports a catalog conflict left by a migrator that did not take the lock.
func alreadyCreated(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42P07" || pgErr.Code == "23505" // duplicate_table, unique_violation
}

// EnsureMigrated checks if the 'entities' table exists and runs migrations if it doesn't.
// Concurrent callers serialize on a transaction-scoped advisory lock; the
// losers find the table on their re-check and skip.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *slog.Logger, dbHost string) error {
	start := time.Now()
	log := logging.Component(logger, "database").With("db_host", dbHost)

	failed := func(msg string, err error, attrs ...any) error {
		attrs = append([]any{
			"event", "db_migration_failed",
			"status", "error",
			"error_message", fmt.Sprintf("%s: %v", msg, err),
			"duration_ms", time.Since(start).Milliseconds(),
		}, attrs...)
		log.Error("db migration failed", attrs...)
		return fmt.Errorf("%s: %w", msg, err)
	}
	skipped := func(reason string) error {
		log.Info("schema already exists, skipping migration",
			"event", "db_migration_skip",
			"status", "success",
			"reason", reason,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	log.Info("db migration check", "event", "db_migration_check", "status", "starting")

	exists, err := tableExists(ctx, db)
	if err != nil {
		return failed("failed to check sentinel table", err)
	}
	if exists {
		return skipped("present")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return failed("failed to begin migration", err)
	}
	// Rollback is a no-op once Commit has run.
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return failed("failed to take migration lock", err)
	}
	exists, err = tableExists(ctx, tx)
	if err != nil {
		return failed("failed to check sentinel table", err)
	}
	if exists {
		if err := tx.Commit(); err != nil {
			return failed("failed to release migration lock", err)
		}
		return skipped("created_concurrently")
	}

	log.Info("db migration start", "event", "db_migration_start", "status", "in_progress")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			if alreadyCreated(err) {
				_ = tx.Rollback()
				if ok, cerr := tableExists(ctx, db); cerr == nil && ok {
					return skipped("created_concurrently")
				}
			}
			return failed(fmt.Sprintf("migration step %s failed", step.Name), err,
				"migration_step", step.Name,
				"step_duration_ms", time.Since(stepStart).Milliseconds(),
			)
		}

		log.Info("db migration step",
			"event", "db_migration_step",
			"status", "success",
			"migration_step", step.Name,
			"step_duration_ms", time.Since(stepStart).Milliseconds(),
		)
	}

	if err := tx.Commit(); err != nil {
		return failed("failed to commit migration", err)
	}

	log.Info("db migration success",
		"event", "db_migration_success",
		"status", "success",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
