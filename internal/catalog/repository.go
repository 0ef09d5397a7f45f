package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"directory-api/internal/db"
)

const (
	tableContactTypes  = "contact_types"
	tableDocumentTypes = "document_types"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListCountries(ctx context.Context) ([]Country, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, created_at FROM countries ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query countries: %w", err)
	}
	defer rows.Close()

	countries := make([]Country, 0)
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate countries: %w", err)
	}
	return countries, nil
}

func (r *Repository) ListStates(ctx context.Context, countryID int64) ([]State, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, country_id, name, created_at FROM states WHERE country_id = $1 ORDER BY name ASC
	`, countryID)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	states := make([]State, 0)
	for rows.Next() {
		var s State
		if err := rows.Scan(&s.ID, &s.CountryID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return states, nil
}

func (r *Repository) ListMunicipalities(ctx context.Context, stateID int64) ([]Municipality, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, state_id, name, created_at FROM municipalities WHERE state_id = $1 ORDER BY name ASC
	`, stateID)
	if err != nil {
		return nil, fmt.Errorf("query municipalities: %w", err)
	}
	defer rows.Close()

	municipalities := make([]Municipality, 0)
	for rows.Next() {
		var m Municipality
		if err := rows.Scan(&m.ID, &m.StateID, &m.Name, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan municipality: %w", err)
		}
		municipalities = append(municipalities, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate municipalities: %w", err)
	}
	return municipalities, nil
}

// ListColonies returns the colonies of a municipality, optionally narrowed to
// one zip code.
func (r *Repository) ListColonies(ctx context.Context, municipalityID int64, zipCode string) ([]Colony, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, municipality_id, name, zip_code, created_at
		FROM colonies
		WHERE municipality_id = $1 AND ($2 = '' OR zip_code = $2)
		ORDER BY name ASC
	`, municipalityID, zipCode)
	if err != nil {
		return nil, fmt.Errorf("query colonies: %w", err)
	}
	defer rows.Close()

	colonies := make([]Colony, 0)
	for rows.Next() {
		var c Colony
		if err := rows.Scan(&c.ID, &c.MunicipalityID, &c.Name, &c.ZipCode, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan colony: %w", err)
		}
		colonies = append(colonies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate colonies: %w", err)
	}
	return colonies, nil
}

func (r *Repository) ListContactTypes(ctx context.Context) ([]Type, error) {
	return r.listTypes(ctx, tableContactTypes)
}

func (r *Repository) ListDocumentTypes(ctx context.Context) ([]Type, error) {
	return r.listTypes(ctx, tableDocumentTypes)
}

func (r *Repository) ContactType(ctx context.Context, id int64) (Type, error) {
	return r.getType(ctx, tableContactTypes, id)
}

func (r *Repository) DocumentType(ctx context.Context, id int64) (Type, error) {
	return r.getType(ctx, tableDocumentTypes, id)
}

// table is always one of the package constants.
func (r *Repository) listTypes(ctx context.Context, table string) ([]Type, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, code, name, created_at FROM `+table+` ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	types := make([]Type, 0)
	for rows.Next() {
		var t Type
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return types, nil
}

func (r *Repository) getType(ctx context.Context, table string, id int64) (Type, error) {
	var t Type
	err := r.db.QueryRowContext(ctx, `SELECT id, code, name, created_at FROM `+table+` WHERE id = $1`, id).
		Scan(&t.ID, &t.Code, &t.Name, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Type{}, ErrNotFound
		}
		return Type{}, fmt.Errorf("query %s: %w", table, err)
	}
	return t, nil
}

func (r *Repository) CreateCountry(ctx context.Context, code, name string) (Country, error) {
	var c Country
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO countries (code, name) VALUES ($1, $2)
		RETURNING id, code, name, created_at
	`, code, name).Scan(&c.ID, &c.Code, &c.Name, &c.CreatedAt)
	if err != nil {
		return Country{}, classify("insert country", err)
	}
	return c, nil
}

func (r *Repository) CreateState(ctx context.Context, countryID int64, name string) (State, error) {
	var s State
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO states (country_id, name) VALUES ($1, $2)
		RETURNING id, country_id, name, created_at
	`, countryID, name).Scan(&s.ID, &s.CountryID, &s.Name, &s.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return State{}, missing("country_id", "country not found")
		}
		return State{}, classify("insert state", err)
	}
	return s, nil
}

func (r *Repository) CreateMunicipality(ctx context.Context, stateID int64, name string) (Municipality, error) {
	var m Municipality
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO municipalities (state_id, name) VALUES ($1, $2)
		RETURNING id, state_id, name, created_at
	`, stateID, name).Scan(&m.ID, &m.StateID, &m.Name, &m.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Municipality{}, missing("state_id", "state not found")
		}
		return Municipality{}, classify("insert municipality", err)
	}
	return m, nil
}

func (r *Repository) CreateColony(ctx context.Context, municipalityID int64, name, zipCode string) (Colony, error) {
	var c Colony
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO colonies (municipality_id, name, zip_code) VALUES ($1, $2, $3)
		RETURNING id, municipality_id, name, zip_code, created_at
	`, municipalityID, name, zipCode).Scan(&c.ID, &c.MunicipalityID, &c.Name, &c.ZipCode, &c.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Colony{}, missing("municipality_id", "municipality not found")
		}
		return Colony{}, classify("insert colony", err)
	}
	return c, nil
}

func (r *Repository) CreateContactType(ctx context.Context, code, name string) (Type, error) {
	return r.createType(ctx, tableContactTypes, code, name)
}

func (r *Repository) CreateDocumentType(ctx context.Context, code, name string) (Type, error) {
	return r.createType(ctx, tableDocumentTypes, code, name)
}

func (r *Repository) createType(ctx context.Context, table, code, name string) (Type, error) {
	var t Type
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO `+table+` (code, name) VALUES ($1, $2)
		RETURNING id, code, name, created_at
	`, code, name).Scan(&t.ID, &t.Code, &t.Name, &t.CreatedAt)
	if err != nil {
		return Type{}, classify("insert "+table, err)
	}
	return t, nil
}

// CheckLocation verifies that every id of loc exists and that each one
// belongs to its parent. The returned error names the first field that fails.
func (r *Repository) CheckLocation(ctx context.Context, loc Location) error {
	var countryOK, stateOK, municipalityOK, colonyOK bool
	var colonyID sql.NullInt64
	if loc.ColonyID != nil {
		colonyID = sql.NullInt64{Int64: *loc.ColonyID, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM countries WHERE id = $1),
			EXISTS (SELECT 1 FROM states WHERE id = $2 AND country_id = $1),
			EXISTS (SELECT 1 FROM municipalities WHERE id = $3 AND state_id = $2),
			($4::BIGINT IS NULL OR EXISTS (SELECT 1 FROM colonies WHERE id = $4 AND municipality_id = $3))
	`, loc.CountryID, loc.StateID, loc.MunicipalityID, colonyID).Scan(&countryOK, &stateOK, &municipalityOK, &colonyOK)
	if err != nil {
		return fmt.Errorf("check location: %w", err)
	}

	switch {
	case !countryOK:
		return missing("country_id", "country not found")
	case !stateOK:
		return missing("state_id", "state not found in country")
	case !municipalityOK:
		return missing("municipality_id", "municipality not found in state")
	case !colonyOK:
		return missing("colony_id", "colony not found in municipality")
	}
	return nil
}

func classify(action string, err error) error {
	if db.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return fmt.Errorf("%s: %w", action, err)
}
