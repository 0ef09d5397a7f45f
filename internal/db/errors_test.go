package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_people_email_live"}

	assert.True(t, IsUniqueViolation(pgErr))
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert person: %w", pgErr)))
	assert.False(t, IsForeignKeyViolation(pgErr))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestIsForeignKeyViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "addresses_colony_id_fkey"}

	assert.True(t, IsForeignKeyViolation(fmt.Errorf("insert address: %w", pgErr)))
	assert.Equal(t, "addresses_colony_id_fkey", ConstraintName(fmt.Errorf("wrapped: %w", pgErr)))
	assert.Equal(t, "", ConstraintName(errors.New("plain")))
}

func TestMigrationVersionsAreSorted(t *testing.T) {
	versions, err := migrationVersions()
	if err != nil {
		t.Fatalf("migrationVersions() error = %v", err)
	}

	assert.NotEmpty(t, versions)
	for i := 1; i < len(versions); i++ {
		assert.Less(t, versions[i-1], versions[i])
	}
	assert.Equal(t, "0001_auth.sql", versions[0])
}
