package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Countries     []seedCountry `yaml:"countries"`
	ContactTypes  []seedType    `yaml:"contact_types"`
	DocumentTypes []seedType    `yaml:"document_types"`
}

type seedCountry struct {
	Code   string      `yaml:"code"`
	Name   string      `yaml:"name"`
	States []seedState `yaml:"states"`
}

type seedState struct {
	Name           string             `yaml:"name"`
	Municipalities []seedMunicipality `yaml:"municipalities"`
}

type seedMunicipality struct {
	Name     string       `yaml:"name"`
	Colonies []seedColony `yaml:"colonies"`
}

type seedColony struct {
	Name    string `yaml:"name"`
	ZipCode string `yaml:"zip_code"`
}

type seedType struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type SeedResult struct {
	Countries      int `json:"countries"`
	States         int `json:"states"`
	Municipalities int `json:"municipalities"`
	Colonies       int `json:"colonies"`
	ContactTypes   int `json:"contact_types"`
	DocumentTypes  int `json:"document_types"`
}

// Seed upserts the embedded catalog data. Running it again only refreshes
// names.
func Seed(ctx context.Context, database *sql.DB) (SeedResult, error) {
	return SeedFrom(ctx, database, defaultSeed)
}

func SeedFrom(ctx context.Context, database *sql.DB, data []byte) (SeedResult, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return SeedResult{}, fmt.Errorf("parse catalog seed: %w", err)
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return SeedResult{}, fmt.Errorf("begin seed tx: %w", err)
	}
	defer tx.Rollback()

	var result SeedResult
	for _, country := range file.Countries {
		var countryID int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO countries (code, name) VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, country.Code, country.Name).Scan(&countryID); err != nil {
			return SeedResult{}, fmt.Errorf("seed country %s: %w", country.Code, err)
		}
		result.Countries++

		for _, state := range country.States {
			var stateID int64
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO states (country_id, name) VALUES ($1, $2)
				ON CONFLICT (country_id, name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id
			`, countryID, state.Name).Scan(&stateID); err != nil {
				return SeedResult{}, fmt.Errorf("seed state %s: %w", state.Name, err)
			}
			result.States++

			for _, municipality := range state.Municipalities {
				var municipalityID int64
				if err := tx.QueryRowContext(ctx, `
					INSERT INTO municipalities (state_id, name) VALUES ($1, $2)
					ON CONFLICT (state_id, name) DO UPDATE SET name = EXCLUDED.name
					RETURNING id
				`, stateID, municipality.Name).Scan(&municipalityID); err != nil {
					return SeedResult{}, fmt.Errorf("seed municipality %s: %w", municipality.Name, err)
				}
				result.Municipalities++

				for _, colony := range municipality.Colonies {
					if _, err := tx.ExecContext(ctx, `
						INSERT INTO colonies (municipality_id, name, zip_code) VALUES ($1, $2, $3)
						ON CONFLICT (municipality_id, name, zip_code) DO NOTHING
					`, municipalityID, colony.Name, colony.ZipCode); err != nil {
						return SeedResult{}, fmt.Errorf("seed colony %s: %w", colony.Name, err)
					}
					result.Colonies++
				}
			}
		}
	}

	for _, t := range file.ContactTypes {
		if err := seedTypeRow(ctx, tx, tableContactTypes, t); err != nil {
			return SeedResult{}, err
		}
		result.ContactTypes++
	}
	for _, t := range file.DocumentTypes {
		if err := seedTypeRow(ctx, tx, tableDocumentTypes, t); err != nil {
			return SeedResult{}, err
		}
		result.DocumentTypes++
	}

	if err := tx.Commit(); err != nil {
		return SeedResult{}, fmt.Errorf("commit seed tx: %w", err)
	}
	return result, nil
}

func seedTypeRow(ctx context.Context, tx *sql.Tx, table string, t seedType) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO `+table+` (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
	`, t.Code, t.Name)
	if err != nil {
		return fmt.Errorf("seed %s %s: %w", table, t.Code, err)
	}
	return nil
}
