package proceeding

import (
	"errors"
	"strings"
	"time"

	"directory-api/internal/validate"
)

var (
	ErrNotFound   = errors.New("proceeding not found")
	ErrFolioTaken = errors.New("folio already in use")
)

const (
	StatusOpen     = "open"
	StatusInReview = "in_review"
	StatusClosed   = "closed"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusOpen, StatusInReview, StatusClosed:
		return true
	}
	return false
}

type Proceeding struct {
	ID          string    `json:"id"`
	PersonID    string    `json:"person_id"`
	Folio       string    `json:"folio"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Input struct {
	Folio       string `json:"folio"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Validate normalizes the input. An empty status means open.
func (in *Input) Validate() validate.Errors {
	in.Folio = validate.NormalizeUpper(in.Folio)
	in.Kind = strings.TrimSpace(in.Kind)
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.Description = strings.TrimSpace(in.Description)
	if in.Status == "" {
		in.Status = StatusOpen
	}

	errs := validate.Errors{}
	if errs.Required("folio", in.Folio) {
		errs.MaxLength("folio", in.Folio, 50)
	}
	if errs.Required("kind", in.Kind) {
		errs.MaxLength("kind", in.Kind, 100)
	}
	if !ValidStatus(in.Status) {
		errs.Add("status", "status must be open, in_review or closed")
	}
	errs.MaxLength("description", in.Description, 2000)
	return errs
}
