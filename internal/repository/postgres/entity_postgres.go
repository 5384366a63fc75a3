package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"retailapi/internal/model"
	"retailapi/internal/repository"
)

// EntityPostgres is a PostgreSQL implementation of repository.EntityRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type EntityPostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewEntityPostgres creates a new EntityPostgres repository.
func NewEntityPostgres(db *sql.DB) *EntityPostgres {
	return &EntityPostgres{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ repository.EntityRepository = (*EntityPostgres)(nil)

const selectColumns = `partition_key, row_key, version, last_modified, fields, attachment_ref`

// Get fetches a single entity by its key.
func (r *EntityPostgres) Get(ctx context.Context, partition, id string) (*model.Entity, error) {
	const q = `
		SELECT ` + selectColumns + `
		FROM entities
		WHERE partition_key = $1 AND row_key = $2
	`
	e, err := scanEntity(r.db.QueryRowContext(ctx, q, partition, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Put inserts a new entity row. A primary key collision maps to repository.ErrDuplicateKey.
func (r *EntityPostgres) Put(ctx context.Context, e *model.Entity) (*model.Entity, error) {
	fields, err := encodeFields(e.Fields)
	if err != nil {
		return nil, err
	}
	out := cloneEntity(e)
	out.Version = uuid.NewString()
	out.LastModified = r.now()

	const q = `
		INSERT INTO entities (partition_key, row_key, version, last_modified, fields, attachment_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, q,
		out.Partition,
		out.ID,
		out.Version,
		out.LastModified,
		fields,
		nullableRef(out.AttachmentRef),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicateKey
		}
		return nil, err
	}
	return out, nil
}

// Update replaces the stored row. With a non-empty ifMatch the write only applies if the version still matches.
func (r *EntityPostgres) Update(ctx context.Context, e *model.Entity, ifMatch string) (*model.Entity, error) {
	fields, err := encodeFields(e.Fields)
	if err != nil {
		return nil, err
	}
	out := cloneEntity(e)
	out.Version = uuid.NewString()
	out.LastModified = r.now()

	args := []any{
		out.Partition,
		out.ID,
		out.Version,
		out.LastModified,
		fields,
		nullableRef(out.AttachmentRef),
	}
	q := `
		UPDATE entities
		SET version = $3, last_modified = $4, fields = $5, attachment_ref = $6
		WHERE partition_key = $1 AND row_key = $2`
	if ifMatch != "" {
		q += ` AND version = $7`
		args = append(args, ifMatch)
	}

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return out, nil
	}
	if ifMatch == "" {
		return nil, repository.ErrNotFound
	}

	// Nothing matched: tell a missing row apart from a stale version.
	const qExists = `SELECT EXISTS (SELECT 1 FROM entities WHERE partition_key = $1 AND row_key = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, qExists, out.Partition, out.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, repository.ErrVersionMismatch
	}
	return nil, repository.ErrNotFound
}

// Delete removes an entity. It does not return an error if the row does not exist.
func (r *EntityPostgres) Delete(ctx context.Context, partition, id string) error {
	const q = `DELETE FROM entities WHERE partition_key = $1 AND row_key = $2`
	_, err := r.db.ExecContext(ctx, q, partition, id)
	return err
}

// QueryByPartition returns every entity in a partition, oldest first.
func (r *EntityPostgres) QueryByPartition(ctx context.Context, partition string) ([]model.Entity, error) {
	const q = `
		SELECT ` + selectColumns + `
		FROM entities
		WHERE partition_key = $1
		ORDER BY last_modified ASC, row_key ASC
	`
	rows, err := r.db.QueryContext(ctx, q, partition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var (
		e      model.Entity
		fields []byte
		ref    sql.NullString
	)
	if err := row.Scan(
		&e.Partition,
		&e.ID,
		&e.Version,
		&e.LastModified,
		&fields,
		&ref,
	); err != nil {
		return nil, err
	}
	e.Fields = map[string]any{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &e.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s/%s: %w", e.Partition, e.ID, err)
		}
	}
	if ref.Valid && ref.String != "" {
		e.AttachmentRef = model.Ref(ref.String)
	}
	return &e, nil
}

func encodeFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return b, nil
}

func nullableRef(ref *string) sql.NullString {
	if ref == nil || *ref == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *ref, Valid: true}
}

func cloneEntity(e *model.Entity) *model.Entity {
	out := *e
	out.Fields = make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	if e.AttachmentRef != nil {
		out.AttachmentRef = model.Ref(*e.AttachmentRef)
	}
	return &out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
