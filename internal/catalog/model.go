package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("catalog entry not found")
	ErrDuplicate         = errors.New("catalog entry already exists")
	ErrReferenceNotFound = errors.New("referenced catalog entry not found")
)

type Country struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type State struct {
	ID        int64     `json:"id"`
	CountryID int64     `json:"country_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Municipality struct {
	ID        int64     `json:"id"`
	StateID   int64     `json:"state_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Colony struct {
	ID             int64     `json:"id"`
	MunicipalityID int64     `json:"municipality_id"`
	Name           string    `json:"name"`
	ZipCode        string    `json:"zip_code"`
	CreatedAt      time.Time `json:"created_at"`
}

// Type is a row of one of the code/name catalogs (contact types, document
// types).
type Type struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Location identifies an address position in the geographic catalogs.
// ColonyID is optional.
type Location struct {
	CountryID      int64
	StateID        int64
	MunicipalityID int64
	ColonyID       *int64
}

// MissingReferenceError names the request field whose catalog id does not
// exist or does not belong to its parent.
type MissingReferenceError struct {
	Field   string
	Message string
}

func (e *MissingReferenceError) Error() string {
	return e.Message
}

func (e *MissingReferenceError) Is(target error) bool {
	return target == ErrReferenceNotFound
}

func missing(field, message string) error {
	return &MissingReferenceError{Field: field, Message: message}
}
