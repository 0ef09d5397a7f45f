package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"directory-api/internal/httpx"
)

const requestColumns = `id, person_id, full_name, curp, contact_email, contact_phone, comments,
	resolved_at, resolved_by, resolution_notes, created_at, updated_at`

var statusClauses = map[string]string{
	StatusOpen:     ` AND resolved_at IS NULL`,
	StatusResolved: ` AND resolved_at IS NOT NULL`,
	StatusAll:      ``,
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var req Request
	var personID sql.NullString
	err := row.Scan(
		&req.ID, &personID, &req.FullName, &req.CURP, &req.ContactEmail, &req.ContactPhone, &req.Comments,
		&req.ResolvedAt, &req.ResolvedBy, &req.ResolutionNotes, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return Request{}, err
	}
	if personID.Valid {
		req.PersonID = &personID.String
	}
	return req, nil
}

// Create stores the request and links it to the live person with the same
// CURP, if any.
func (r *Repository) Create(ctx context.Context, in RequestInput) (Request, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Request{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	req, err := scanRequest(r.db.QueryRowContext(ctx, `
		INSERT INTO account_recoveries (id, person_id, full_name, curp, contact_email, contact_phone, comments,
			created_at, updated_at)
		VALUES ($1, (SELECT id FROM people WHERE curp = $3 AND deleted_at IS NULL), $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+requestColumns,
		id.String(), in.FullName, in.CURP, in.ContactEmail, in.ContactPhone, in.Comments, time.Now().UTC(),
	))
	if err != nil {
		return Request{}, fmt.Errorf("insert recovery request: %w", err)
	}
	return req, nil
}

func (r *Repository) List(ctx context.Context, status string, page httpx.Page) ([]Request, int, error) {
	clause, ok := statusClauses[status]
	if !ok {
		return nil, 0, ErrUnknownStatusArg
	}
	where := `WHERE deleted_at IS NULL` + clause

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM account_recoveries `+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recovery requests: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM account_recoveries `+where+`
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query recovery requests: %w", err)
	}
	defer rows.Close()

	requests := make([]Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan recovery request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate recovery requests: %w", err)
	}
	return requests, total, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Request, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM account_recoveries WHERE id = $1 AND deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, fmt.Errorf("query recovery request: %w", err)
	}
	return req, nil
}

// Resolve marks an open request as handled.
func (r *Repository) Resolve(ctx context.Context, id, actor, notes string) (Request, error) {
	now := time.Now().UTC()
	req, err := scanRequest(r.db.QueryRowContext(ctx, `
		UPDATE account_recoveries
		SET resolved_at = $2, resolved_by = $3, resolution_notes = $4, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL AND resolved_at IS NULL
		RETURNING `+requestColumns,
		id, now, actor, notes,
	))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Request{}, fmt.Errorf("resolve recovery request: %w", err)
	}

	if _, err := r.Get(ctx, id); err != nil {
		return Request{}, err
	}
	return Request{}, ErrAlreadyResolved
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE account_recoveries SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
	if err != nil {
		return fmt.Errorf("delete recovery request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recovery request rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRequestNotFound
	}
	return nil
}
