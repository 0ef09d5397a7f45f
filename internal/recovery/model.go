package recovery

import (
	"errors"
	"strings"
	"time"

	"directory-api/internal/validate"
)

var (
	ErrRequestNotFound  = errors.New("recovery request not found")
	ErrAlreadyResolved  = errors.New("recovery request already resolved")
	ErrUnknownStatusArg = errors.New("status must be open, resolved or all")
)

const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusAll      = "all"
)

// Request is an account-recovery request filed by someone who lost access to
// their registered email. PersonID is set when the CURP matches a person.
type Request struct {
	ID              string     `json:"id"`
	PersonID        *string    `json:"person_id"`
	FullName        string     `json:"full_name"`
	CURP            string     `json:"curp"`
	ContactEmail    string     `json:"contact_email"`
	ContactPhone    string     `json:"contact_phone"`
	Comments        string     `json:"comments"`
	ResolvedAt      *time.Time `json:"resolved_at"`
	ResolvedBy      string     `json:"resolved_by"`
	ResolutionNotes string     `json:"resolution_notes"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type RequestInput struct {
	FullName     string `json:"full_name"`
	CURP         string `json:"curp"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Comments     string `json:"comments"`
}

func (in *RequestInput) Validate() validate.Errors {
	in.FullName = strings.TrimSpace(in.FullName)
	in.CURP = validate.NormalizeUpper(in.CURP)
	in.ContactEmail = validate.NormalizeEmail(in.ContactEmail)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	in.Comments = strings.TrimSpace(in.Comments)

	errs := validate.Errors{}
	if errs.Required("full_name", in.FullName) {
		errs.MaxLength("full_name", in.FullName, 200)
	}
	if errs.Required("curp", in.CURP) && !validate.IsCURP(in.CURP) {
		errs.Add("curp", "curp is invalid")
	}
	if errs.Required("contact_email", in.ContactEmail) {
		errs.Email("contact_email", in.ContactEmail)
	}
	if in.ContactPhone != "" && !validate.IsPhone(in.ContactPhone) {
		errs.Add("contact_phone", "contact_phone must be a phone number")
	}
	errs.MaxLength("comments", in.Comments, 2000)
	return errs
}

func ValidStatusFilter(status string) bool {
	switch status {
	case StatusOpen, StatusResolved, StatusAll:
		return true
	}
	return false
}
