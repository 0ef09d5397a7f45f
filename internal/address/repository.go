package address

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

const addressColumns = `id, person_id, country_id, state_id, municipality_id, colony_id, street,
	exterior_number, interior_number, zip_code, reference, created_at, updated_at`

// Foreign keys on addresses, named by the request field they carry.
var referenceConstraints = map[string]string{
	"addresses_country_id_fkey":      "country_id",
	"addresses_state_id_fkey":        "state_id",
	"addresses_municipality_id_fkey": "municipality_id",
	"addresses_colony_id_fkey":       "colony_id",
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

func scanAddress(row rowScanner) (Address, error) {
	var a Address
	var colonyID sql.NullInt64
	err := row.Scan(
		&a.ID, &a.PersonID, &a.CountryID, &a.StateID, &a.MunicipalityID, &colonyID, &a.Street,
		&a.ExteriorNumber, &a.InteriorNumber, &a.ZipCode, &a.Reference, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return Address{}, err
	}
	if colonyID.Valid {
		a.ColonyID = &colonyID.Int64
	}
	return a, nil
}

func (r *Repository) List(ctx context.Context, personID string) ([]Address, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE person_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	addresses := make([]Address, 0)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}
	return addresses, nil
}

func (r *Repository) Get(ctx context.Context, personID, id string) (Address, error) {
	a, err := scanAddress(r.db.QueryRowContext(ctx, `
		SELECT `+addressColumns+` FROM addresses
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, fmt.Errorf("query address: %w", err)
	}
	return a, nil
}

func (r *Repository) Create(ctx context.Context, personID string, in Input) (Address, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Address{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	a, err := scanAddress(r.db.QueryRowContext(ctx, `
		INSERT INTO addresses (id, person_id, country_id, state_id, municipality_id, colony_id, street,
			exterior_number, interior_number, zip_code, reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING `+addressColumns,
		id.String(), personID, in.CountryID, in.StateID, in.MunicipalityID, colonyValue(in.ColonyID), in.Street,
		in.ExteriorNumber, in.InteriorNumber, in.ZipCode, in.Reference, now,
	))
	if err != nil {
		return Address{}, classifyWrite("insert address", err)
	}
	return a, nil
}

func (r *Repository) Update(ctx context.Context, personID, id string, in Input) (Address, error) {
	a, err := scanAddress(r.db.QueryRowContext(ctx, `
		UPDATE addresses
		SET country_id = $3, state_id = $4, municipality_id = $5, colony_id = $6, street = $7,
			exterior_number = $8, interior_number = $9, zip_code = $10, reference = $11, updated_at = $12
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
		RETURNING `+addressColumns,
		id, personID, in.CountryID, in.StateID, in.MunicipalityID, colonyValue(in.ColonyID), in.Street,
		in.ExteriorNumber, in.InteriorNumber, in.ZipCode, in.Reference, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, classifyWrite("update address", err)
	}
	return a, nil
}

func (r *Repository) Delete(ctx context.Context, personID, id string) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE addresses SET deleted_at = $3, updated_at = $3
		WHERE id = $1 AND person_id = $2 AND deleted_at IS NULL
	`, id, personID, now)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete address rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func colonyValue(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// classifyWrite turns a foreign-key race (a catalog row removed between the
// location check and the write) into the same error the check returns.
func classifyWrite(action string, err error) error {
	if db.IsForeignKeyViolation(err) {
		if field, ok := referenceConstraints[db.ConstraintName(err)]; ok {
			return &catalog.MissingReferenceError{Field: field, Message: field + " references a missing catalog entry"}
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}
