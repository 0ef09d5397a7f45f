package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, person_id, token_hash, ip, user_agent, device, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.PersonID, s.TokenHash, s.IP, s.UserAgent, s.Device, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) FindByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx, `
		SELECT s.id, s.person_id, s.token_hash, s.ip, s.user_agent, s.device, s.created_at, s.expires_at,
			p.banned_at IS NOT NULL, p.deleted_at IS NOT NULL
		FROM sessions s
		JOIN people p ON p.id = s.person_id
		WHERE s.token_hash = $1
	`, tokenHash).Scan(
		&rec.ID, &rec.PersonID, &rec.TokenHash, &rec.IP, &rec.UserAgent, &rec.Device,
		&rec.CreatedAt, &rec.ExpiresAt, &rec.PersonBanned, &rec.PersonDeleted,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrSessionNotFound
		}
		return Record{}, fmt.Errorf("query session: %w", err)
	}
	return rec, nil
}

func (r *Repository) ListByPerson(ctx context.Context, personID string, now time.Time) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, person_id, token_hash, ip, user_agent, device, created_at, expires_at
		FROM sessions
		WHERE person_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`, personID, now)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.PersonID, &s.TokenHash, &s.IP, &s.UserAgent, &s.Device, &s.CreatedAt, &s.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

func (r *Repository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteByID(ctx context.Context, personID, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1 AND person_id = $2`, sessionID, personID)
	if err != nil {
		return fmt.Errorf("delete session by id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteByPerson removes every session of the person except the one whose
// hash equals keepTokenHash (pass "" to remove all).
func (r *Repository) DeleteByPerson(ctx context.Context, personID, keepTokenHash string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE person_id = $1 AND token_hash <> $2
	`, personID, keepTokenHash)
	if err != nil {
		return 0, fmt.Errorf("delete person sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id FROM sessions
			WHERE expires_at <= $1
			ORDER BY expires_at ASC
			LIMIT $2
		)
		DELETE FROM sessions t USING stale WHERE t.id = stale.id
	`, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired sessions rows affected: %w", err)
	}
	return affected, nil
}
