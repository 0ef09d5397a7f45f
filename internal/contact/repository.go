package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"directory-api/internal/catalog"
	"directory-api/internal/db"
)

const contactColumns = `id, person_id, contact_type_id, value, label, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.PersonID, &c.ContactTypeID, &c.Value, &c.Label, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repository) List(ctx context.Context, personID string) ([]Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contactColumns+` FROM contact_information
		WHERE person_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

func (r *Repository) Get(ctx context.Context, personID, id string) (Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		SELECT `+contactColumns+` FROM contact_information
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, fmt.Errorf("query contact: %w", err)
	}
	return c, nil
}

func (r *Repository) Create(ctx context.Context, personID string, in Input) (Contact, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Contact{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	c, err := scanContact(r.db.QueryRowContext(ctx, `
		INSERT INTO contact_information (id, person_id, contact_type_id, value, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING `+contactColumns,
		id.String(), personID, in.ContactTypeID, in.Value, in.Label, time.Now().UTC(),
	))
	if err != nil {
		return Contact{}, classifyWrite("insert contact", err)
	}
	return c, nil
}

func (r *Repository) Update(ctx context.Context, personID, id string, in Input) (Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx, `
		UPDATE contact_information
		SET contact_type_id = $3, value = $4, label = $5, updated_at = $6
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
		RETURNING `+contactColumns,
		id, personID, in.ContactTypeID, in.Value, in.Label, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, classifyWrite("update contact", err)
	}
	return c, nil
}

func (r *Repository) Delete(ctx context.Context, personID, id string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE contact_information SET deleted_at = $3, updated_at = $3
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID, now)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete contact rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func classifyWrite(action string, err error) error {
	if db.IsForeignKeyViolation(err) && db.ConstraintName(err) == "contact_information_contact_type_id_fkey" {
		return &catalog.MissingReferenceError{Field: "contact_type_id", Message: "contact type not found"}
	}
	return fmt.Errorf("%s: %w", action, err)
}
