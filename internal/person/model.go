package person

import (
	"errors"
	"strings"
	"time"

	"directory-api/internal/validate"
)

const dateLayout = "2006-01-02"

var (
	ErrNotFound       = errors.New("person not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrCURPTaken      = errors.New("curp already registered")
	ErrAlreadyBanned  = errors.New("person is already banned")
	ErrNotBanned      = errors.New("person is not banned")
	ErrWrongPassword  = errors.New("current password is incorrect")
	ErrNoImageStorage = errors.New("image uploader is not configured")
	ErrPhotoUpload    = errors.New("failed to upload photo")
)

const (
	BanActionBan   = "ban"
	BanActionUnban = "unban"
)

type Person struct {
	ID              string     `json:"id"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	SecondLastName  string     `json:"second_last_name"`
	CURP            string     `json:"curp"`
	RFC             string     `json:"rfc"`
	Email           string     `json:"email"`
	Birthdate       string     `json:"birthdate,omitempty"`
	Gender          string     `json:"gender"`
	PhotoURL        string     `json:"photo_url"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	BannedAt        *time.Time `json:"banned_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	PasswordHash    string     `json:"-"`
}

func (p Person) FullName() string {
	return strings.Join(strings.Fields(p.FirstName+" "+p.LastName+" "+p.SecondLastName), " ")
}

type BanRecord struct {
	ID          string    `json:"id"`
	PersonID    string    `json:"person_id"`
	Action      string    `json:"action"`
	Reason      string    `json:"reason"`
	PerformedBy string    `json:"performed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Profile holds the editable personal data.
type Profile struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	SecondLastName string `json:"second_last_name"`
	CURP           string `json:"curp"`
	RFC            string `json:"rfc"`
	Birthdate      string `json:"birthdate"`
	Gender         string `json:"gender"`
}

type CreateInput struct {
	Profile
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ListFilter struct {
	Query  string
	Banned *bool
}

var genders = map[string]bool{"": true, "female": true, "male": true, "other": true}

func (p *Profile) normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.SecondLastName = strings.TrimSpace(p.SecondLastName)
	p.CURP = validate.NormalizeUpper(p.CURP)
	p.RFC = validate.NormalizeUpper(p.RFC)
	p.Birthdate = strings.TrimSpace(p.Birthdate)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
}

// Validate normalizes the profile in place and collects field errors.
func (p *Profile) Validate(errs validate.Errors, now time.Time) {
	p.normalize()

	if errs.Required("first_name", p.FirstName) {
		errs.MaxLength("first_name", p.FirstName, 100)
	}
	if errs.Required("last_name", p.LastName) {
		errs.MaxLength("last_name", p.LastName, 100)
	}
	errs.MaxLength("second_last_name", p.SecondLastName, 100)

	if errs.Required("curp", p.CURP) && !validate.IsCURP(p.CURP) {
		errs.Add("curp", "curp is invalid")
	}
	if p.RFC != "" && !validate.IsRFC(p.RFC) {
		errs.Add("rfc", "rfc is invalid")
	}
	if p.Birthdate != "" {
		birth, err := time.Parse(dateLayout, p.Birthdate)
		if err != nil {
			errs.Add("birthdate", "birthdate must use YYYY-MM-DD")
		} else if birth.After(now) {
			errs.Add("birthdate", "birthdate cannot be in the future")
		}
	}
	if !genders[p.Gender] {
		errs.Add("gender", "gender must be female, male or other")
	}
}

func (in *CreateInput) Validate(now time.Time) validate.Errors {
	errs := validate.Errors{}
	in.Profile.Validate(errs, now)

	in.Email = validate.NormalizeEmail(in.Email)
	errs.Email("email", in.Email)
	errs.Password("password", in.Password)
	return errs
}

func birthdateValue(value string) any {
	if value == "" {
		return nil
	}
	return value
}
