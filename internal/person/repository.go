package person

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"directory-api/internal/db"
	"directory-api/internal/httpx"
)

const personColumns = `id, first_name, last_name, second_last_name, curp, rfc, email, birthdate, gender,
	photo_url, password_hash, email_verified_at, banned_at, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (Person, error) {
	var p Person
	var birthdate sql.NullTime
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.SecondLastName, &p.CURP, &p.RFC, &p.Email, &birthdate, &p.Gender,
		&p.PhotoURL, &p.PasswordHash, &p.EmailVerifiedAt, &p.BannedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Person{}, err
	}
	if birthdate.Valid {
		p.Birthdate = birthdate.Time.Format(dateLayout)
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, in CreateInput, passwordHash string) (Person, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Person{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO people (id, first_name, last_name, second_last_name, curp, rfc, email, birthdate, gender,
			password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING `+personColumns,
		id.String(), in.FirstName, in.LastName, in.SecondLastName, in.CURP, in.RFC, in.Email,
		birthdateValue(in.Birthdate), in.Gender, passwordHash, now,
	)
	p, err := scanPerson(row)
	if err != nil {
		return Person{}, classifyWrite("insert person", err)
	}
	return p, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx, `
		SELECT `+personColumns+` FROM people WHERE id = $1 AND deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Person{}, ErrNotFound
		}
		return Person{}, fmt.Errorf("query person: %w", err)
	}
	return p, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx, `
		SELECT `+personColumns+` FROM people WHERE lower(email) = lower($1) AND deleted_at IS NULL
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Person{}, ErrNotFound
		}
		return Person{}, fmt.Errorf("query person by email: %w", err)
	}
	return p, nil
}

func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM people WHERE id = $1 AND deleted_at IS NULL)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check person: %w", err)
	}
	return exists, nil
}

// List returns one page of live people matching filter together with the
// total number of matches.
func (r *Repository) List(ctx context.Context, filter ListFilter, page httpx.Page) ([]Person, int, error) {
	var banned sql.NullBool
	if filter.Banned != nil {
		banned = sql.NullBool{Bool: *filter.Banned, Valid: true}
	}
	pattern := ""
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern = "%" + escapeLike(q) + "%"
	}

	const where = `
		WHERE deleted_at IS NULL
			AND ($1 = '' OR first_name ILIKE $1 OR last_name ILIKE $1 OR second_last_name ILIKE $1
				OR email ILIKE $1 OR curp ILIKE $1)
			AND ($2::BOOLEAN IS NULL OR (banned_at IS NOT NULL) = $2)`

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM people`+where, pattern, banned).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count people: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+personColumns+` FROM people`+where+`
		ORDER BY last_name ASC, first_name ASC, id ASC
		LIMIT $3 OFFSET $4
	`, pattern, banned, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("query people: %w", err)
	}
	defer rows.Close()

	people := make([]Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan person: %w", err)
		}
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate people: %w", err)
	}

	return people, total, nil
}

func (r *Repository) Update(ctx context.Context, id string, profile Profile) (Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx, `
		UPDATE people
		SET first_name = $2, last_name = $3, second_last_name = $4, curp = $5, rfc = $6,
			birthdate = $7, gender = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+personColumns,
		id, profile.FirstName, profile.LastName, profile.SecondLastName, profile.CURP, profile.RFC,
		birthdateValue(profile.Birthdate), profile.Gender, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Person{}, ErrNotFound
		}
		return Person{}, classifyWrite("update person", err)
	}
	return p, nil
}

func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.execOne(ctx, "delete person", `
		UPDATE people SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
}

func (r *Repository) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, "update password", `
		UPDATE people SET password_hash = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL
	`, id, passwordHash, time.Now().UTC())
}

// SetEmail stores a verified email address.
func (r *Repository) SetEmail(ctx context.Context, id, email string, verifiedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE people SET email = $2, email_verified_at = $3, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL
	`, id, email, verifiedAt)
	if err != nil {
		return classifyWrite("update email", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetPhotoURL(ctx context.Context, id, photoURL string) error {
	return r.execOne(ctx, "update photo", `
		UPDATE people SET photo_url = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL
	`, id, photoURL, time.Now().UTC())
}

// SetBanned flips banned_at and records the action in person_ban_history in
// one transaction. The person row is locked so concurrent ban/unban requests
// serialize.
func (r *Repository) SetBanned(ctx context.Context, id string, banned bool, reason, actor string, now time.Time) (BanRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return BanRecord{}, fmt.Errorf("begin ban tx: %w", err)
	}
	defer tx.Rollback()

	var bannedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT banned_at FROM people WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, id).Scan(&bannedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BanRecord{}, ErrNotFound
		}
		return BanRecord{}, fmt.Errorf("lock person: %w", err)
	}

	action := BanActionBan
	var newValue any = now
	if banned && bannedAt.Valid {
		return BanRecord{}, ErrAlreadyBanned
	}
	if !banned {
		if !bannedAt.Valid {
			return BanRecord{}, ErrNotBanned
		}
		action = BanActionUnban
		newValue = nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE people SET banned_at = $2, updated_at = $3 WHERE id = $1
	`, id, newValue, now); err != nil {
		return BanRecord{}, fmt.Errorf("update banned_at: %w", err)
	}

	recordID, err := uuid.NewV7()
	if err != nil {
		return BanRecord{}, fmt.Errorf("generate uuid v7: %w", err)
	}
	record := BanRecord{
		ID:          recordID.String(),
		PersonID:    id,
		Action:      action,
		Reason:      reason,
		PerformedBy: actor,
		CreatedAt:   now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO person_ban_history (id, person_id, action, reason, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.PersonID, record.Action, record.Reason, record.PerformedBy, record.CreatedAt); err != nil {
		return BanRecord{}, fmt.Errorf("insert ban history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return BanRecord{}, fmt.Errorf("commit ban tx: %w", err)
	}
	return record, nil
}

func (r *Repository) BanHistory(ctx context.Context, id string) ([]BanRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, person_id, action, reason, performed_by, created_at
		FROM person_ban_history
		WHERE person_id = $1
		ORDER BY created_at DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query ban history: %w", err)
	}
	defer rows.Close()

	history := make([]BanRecord, 0)
	for rows.Next() {
		var rec BanRecord
		if err := rows.Scan(&rec.ID, &rec.PersonID, &rec.Action, &rec.Reason, &rec.PerformedBy, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ban history: %w", err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ban history: %w", err)
	}
	return history, nil
}

func (r *Repository) execOne(ctx context.Context, action, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func classifyWrite(action string, err error) error {
	if db.IsUniqueViolation(err) {
		switch db.ConstraintName(err) {
		case "uq_people_curp_live":
			return ErrCURPTaken
		default:
			return ErrEmailTaken
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
