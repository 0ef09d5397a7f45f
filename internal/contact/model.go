package contact

import (
	"errors"
	"strings"
	"time"

	"directory-api/internal/validate"
)

var ErrNotFound = errors.New("contact not found")

// Contact type codes with value validation. Other codes accept free text.
const (
	TypeEmail    = "email"
	TypePhone    = "phone"
	TypeMobile   = "mobile"
	TypeWhatsApp = "whatsapp"
)

type Contact struct {
	ID            string    `json:"id"`
	PersonID      string    `json:"person_id"`
	ContactTypeID int64     `json:"contact_type_id"`
	Value         string    `json:"value"`
	Label         string    `json:"label"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Input struct {
	ContactTypeID int64  `json:"contact_type_id"`
	Value         string `json:"value"`
	Label         string `json:"label"`
}

func (in *Input) Validate() validate.Errors {
	in.Value = strings.TrimSpace(in.Value)
	in.Label = strings.TrimSpace(in.Label)

	errs := validate.Errors{}
	if in.ContactTypeID <= 0 {
		errs.Add("contact_type_id", "contact_type_id is required")
	}
	if errs.Required("value", in.Value) {
		errs.MaxLength("value", in.Value, 255)
	}
	errs.MaxLength("label", in.Label, 100)
	return errs
}

// ValidateValue checks and normalizes the value for the given type code.
func (in *Input) ValidateValue(typeCode string) validate.Errors {
	errs := validate.Errors{}
	switch typeCode {
	case TypeEmail:
		in.Value = validate.NormalizeEmail(in.Value)
		errs.Email("value", in.Value)
	case TypePhone, TypeMobile, TypeWhatsApp:
		in.Value = normalizePhone(in.Value)
		if !validate.IsPhone(in.Value) {
			errs.Add("value", "value must be a phone number")
		}
	}
	return errs
}

func normalizePhone(value string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, value)
}
