package address

import (
	"errors"
	"strings"
	"time"

	"directory-api/internal/catalog"
	"directory-api/internal/validate"
)

var ErrNotFound = errors.New("address not found")

type Address struct {
	ID             string    `json:"id"`
	PersonID       string    `json:"person_id"`
	CountryID      int64     `json:"country_id"`
	StateID        int64     `json:"state_id"`
	MunicipalityID int64     `json:"municipality_id"`
	ColonyID       *int64    `json:"colony_id"`
	Street         string    `json:"street"`
	ExteriorNumber string    `json:"exterior_number"`
	InteriorNumber string    `json:"interior_number"`
	ZipCode        string    `json:"zip_code"`
	Reference      string    `json:"reference"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Input is the writable part of an address, used for both create and
// update.
type Input struct {
	CountryID      int64  `json:"country_id"`
	StateID        int64  `json:"state_id"`
	MunicipalityID int64  `json:"municipality_id"`
	ColonyID       *int64 `json:"colony_id"`
	Street         string `json:"street"`
	ExteriorNumber string `json:"exterior_number"`
	InteriorNumber string `json:"interior_number"`
	ZipCode        string `json:"zip_code"`
	Reference      string `json:"reference"`
}

func (in *Input) normalize() {
	in.Street = strings.TrimSpace(in.Street)
	in.ExteriorNumber = strings.TrimSpace(in.ExteriorNumber)
	in.InteriorNumber = strings.TrimSpace(in.InteriorNumber)
	in.ZipCode = strings.TrimSpace(in.ZipCode)
	in.Reference = strings.TrimSpace(in.Reference)
}

func (in *Input) Validate() validate.Errors {
	in.normalize()
	errs := validate.Errors{}
	if in.CountryID <= 0 {
		errs.Add("country_id", "country_id is required")
	}
	if in.StateID <= 0 {
		errs.Add("state_id", "state_id is required")
	}
	if in.MunicipalityID <= 0 {
		errs.Add("municipality_id", "municipality_id is required")
	}
	if in.ColonyID != nil && *in.ColonyID <= 0 {
		errs.Add("colony_id", "colony_id is invalid")
	}
	if errs.Required("street", in.Street) {
		errs.MaxLength("street", in.Street, 200)
	}
	errs.MaxLength("exterior_number", in.ExteriorNumber, 20)
	errs.MaxLength("interior_number", in.InteriorNumber, 20)
	if in.ZipCode != "" && !validate.IsZipCode(in.ZipCode) {
		errs.Add("zip_code", "zip_code must be 5 digits")
	}
	errs.MaxLength("reference", in.Reference, 500)
	return errs
}

func (in Input) Location() catalog.Location {
	return catalog.Location{
		CountryID:      in.CountryID,
		StateID:        in.StateID,
		MunicipalityID: in.MunicipalityID,
		ColonyID:       in.ColonyID,
	}
}
