package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"directory-api/internal/catalog"
	"directory-api/internal/db"
)

const fileColumns = `id, person_id, document_type_id, proceeding_id, file_name, content_type, size_bytes,
	storage_key, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (File, error) {
	var f File
	var proceedingID sql.NullString
	err := row.Scan(
		&f.ID, &f.PersonID, &f.DocumentTypeID, &proceedingID, &f.FileName, &f.ContentType, &f.SizeBytes,
		&f.StorageKey, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return File{}, err
	}
	if proceedingID.Valid {
		f.ProceedingID = &proceedingID.String
	}
	return f, nil
}

func (r *Repository) Insert(ctx context.Context, f File) (File, error) {
	now := time.Now().UTC()
	var proceedingID any
	if f.ProceedingID != nil {
		proceedingID = *f.ProceedingID
	}

	stored, err := scanFile(r.db.QueryRowContext(ctx, `
		INSERT INTO person_files (id, person_id, document_type_id, proceeding_id, file_name, content_type,
			size_bytes, storage_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+fileColumns,
		f.ID, f.PersonID, f.DocumentTypeID, proceedingID, f.FileName, f.ContentType, f.SizeBytes, f.StorageKey, now,
	))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			switch db.ConstraintName(err) {
			case "person_files_document_type_id_fkey":
				return File{}, &catalog.MissingReferenceError{Field: "document_type_id", Message: "document type not found"}
			case "person_files_proceeding_id_fkey":
				return File{}, &catalog.MissingReferenceError{Field: "proceeding_id", Message: "proceeding not found"}
			}
		}
		return File{}, fmt.Errorf("insert person file: %w", err)
	}
	return stored, nil
}

func (r *Repository) List(ctx context.Context, personID string) ([]File, error) {
	return r.list(ctx, `WHERE person_id = $1 AND deleted_at IS NULL`, personID)
}

func (r *Repository) ListByProceeding(ctx context.Context, personID, proceedingID string) ([]File, error) {
	return r.list(ctx, `WHERE person_id = $1 AND proceeding_id = $2 AND deleted_at IS NULL`, personID, proceedingID)
}

func (r *Repository) list(ctx context.Context, where string, args ...any) ([]File, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM person_files `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query person files: %w", err)
	}
	defer rows.Close()

	files := make([]File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate person files: %w", err)
	}
	return files, nil
}

func (r *Repository) Get(ctx context.Context, personID, id string) (File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, `
		SELECT `+fileColumns+` FROM person_files
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return File{}, ErrNotFound
		}
		return File{}, fmt.Errorf("query person file: %w", err)
	}
	return f, nil
}

func (r *Repository) Delete(ctx context.Context, personID, id string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE person_files SET deleted_at = $3, updated_at = $3
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID, now)
	if err != nil {
		return fmt.Errorf("delete person file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete person file rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
