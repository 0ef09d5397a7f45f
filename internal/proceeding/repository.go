package proceeding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"directory-api/internal/db"
)

const proceedingColumns = `id, person_id, folio, kind, status, description, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProceeding(row rowScanner) (Proceeding, error) {
	var p Proceeding
	err := row.Scan(&p.ID, &p.PersonID, &p.Folio, &p.Kind, &p.Status, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// List returns the live proceedings of a person, newest first. An empty
// status returns every status.
func (r *Repository) List(ctx context.Context, personID, status string) ([]Proceeding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+proceedingColumns+` FROM proceedings
		WHERE person_id = $1 AND deleted_at IS NULL AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`, personID, status)
	if err != nil {
		return nil, fmt.Errorf("query proceedings: %w", err)
	}
	defer rows.Close()

	proceedings := make([]Proceeding, 0)
	for rows.Next() {
		p, err := scanProceeding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proceeding: %w", err)
		}
		proceedings = append(proceedings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proceedings: %w", err)
	}
	return proceedings, nil
}

func (r *Repository) Get(ctx context.Context, personID, id string) (Proceeding, error) {
	p, err := scanProceeding(r.db.QueryRowContext(ctx, `
		SELECT `+proceedingColumns+` FROM proceedings
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Proceeding{}, ErrNotFound
		}
		return Proceeding{}, fmt.Errorf("query proceeding: %w", err)
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, personID string, in Input) (Proceeding, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Proceeding{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	p, err := scanProceeding(r.db.QueryRowContext(ctx, `
		INSERT INTO proceedings (id, person_id, folio, kind, status, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+proceedingColumns,
		id.String(), personID, in.Folio, in.Kind, in.Status, in.Description, time.Now().UTC(),
	))
	if err != nil {
		return Proceeding{}, classifyWrite("insert proceeding", err)
	}
	return p, nil
}

func (r *Repository) Update(ctx context.Context, personID, id string, in Input) (Proceeding, error) {
	p, err := scanProceeding(r.db.QueryRowContext(ctx, `
		UPDATE proceedings
		SET folio = $3, kind = $4, status = $5, description = $6, updated_at = $7
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
		RETURNING `+proceedingColumns,
		id, personID, in.Folio, in.Kind, in.Status, in.Description, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Proceeding{}, ErrNotFound
		}
		return Proceeding{}, classifyWrite("update proceeding", err)
	}
	return p, nil
}

func (r *Repository) Delete(ctx context.Context, personID, id string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE proceedings SET deleted_at = $3, updated_at = $3
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID, now)
	if err != nil {
		return fmt.Errorf("delete proceeding: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete proceeding rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func classifyWrite(action string, err error) error {
	if db.IsUniqueViolation(err) {
		return ErrFolioTaken
	}
	return fmt.Errorf("%s: %w", action, err)
}
