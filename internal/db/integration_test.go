//go:build integration

package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"directory-api/internal/catalog"
	"directory-api/internal/db"
	"directory-api/internal/person"
)

func newPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("directory"),
		tcpostgres.WithUsername("directory"),
		tcpostgres.WithPassword("directory"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	database, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.PingContext(ctx))
	return database
}

func TestMigrationsSeedAndPeople(t *testing.T) {
	database := newPostgres(t)
	ctx := context.Background()

	require.NoError(t, db.RunMigrations(ctx, database))
	require.NoError(t, db.RunMigrations(ctx, database), "second run is a no-op")

	seeded, err := catalog.Seed(ctx, database)
	require.NoError(t, err)
	assert.Positive(t, seeded.Countries)

	_, err = catalog.Seed(ctx, database)
	require.NoError(t, err)

	catalogs := catalog.NewRepository(database)
	countries, err := catalogs.ListCountries(ctx)
	require.NoError(t, err)
	require.Len(t, countries, seeded.Countries, "reseeding does not duplicate rows")

	var missing *catalog.MissingReferenceError
	err = catalogs.CheckLocation(ctx, catalog.Location{CountryID: countries[0].ID, StateID: -1, MunicipalityID: -1})
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "state_id", missing.Field)

	people := person.NewRepository(database)
	in := person.CreateInput{
		Profile: person.Profile{
			FirstName: "Ana",
			LastName:  "Lopez",
			CURP:      "LOPA900517MDFPNN09",
			Birthdate: "1990-05-17",
			Gender:    "female",
		},
		Email: "ana@example.com",
	}
	created, err := people.Create(ctx, in, "$2a$10$hash")
	require.NoError(t, err)

	_, err = people.Create(ctx, in, "$2a$10$hash")
	assert.Error(t, err)

	require.NoError(t, people.SoftDelete(ctx, created.ID))
	_, err = people.Get(ctx, created.ID)
	assert.ErrorIs(t, err, person.ErrNotFound)
	assert.ErrorIs(t, people.SoftDelete(ctx, created.ID), person.ErrNotFound)
}
