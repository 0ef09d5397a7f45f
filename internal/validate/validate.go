// Package validate collects field-level input errors for request payloads.
package validate

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	curpRegex  = regexp.MustCompile(`^[A-Z][AEIOUX][A-Z]{2}\d{2}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])[HMX][A-Z]{2}[B-DF-HJ-NP-TV-Z]{3}[A-Z\d]\d$`)
	rfcRegex   = regexp.MustCompile(`^[A-ZÑ&]{3,4}\d{6}[A-Z\d]{3}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	zipRegex   = regexp.MustCompile(`^\d{5}$`)
	codeRegex  = regexp.MustCompile(`^\d{6}$`)
)

const MaxEmailLength = 255

// Errors maps a field name to the first problem found with it.
type Errors map[string]string

func (e Errors) Add(field, message string) {
	if _, exists := e[field]; !exists {
		e[field] = message
	}
}

func (e Errors) Empty() bool {
	return len(e) == 0
}

func (e Errors) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		e.Add(field, field+" is required")
		return false
	}
	return true
}

func (e Errors) MaxLength(field, value string, max int) bool {
	if !utf8.ValidString(value) || utf8.RuneCountInString(value) > max {
		e.Add(field, field+" is invalid")
		return false
	}
	return true
}

func (e Errors) Email(field, value string) bool {
	if !IsEmail(value) {
		e.Add(field, field+" is invalid")
		return false
	}
	return true
}

func (e Errors) Password(field, value string) bool {
	if len(value) < 8 || len(value) > 200 {
		e.Add(field, field+" must be between 8 and 200 characters")
		return false
	}
	return true
}

func IsEmail(value string) bool {
	if value == "" || len(value) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return false
	}
	return addr.Address == value && strings.Contains(value[strings.LastIndex(value, "@"):], ".")
}

func IsCURP(value string) bool {
	return curpRegex.MatchString(value)
}

func IsRFC(value string) bool {
	return rfcRegex.MatchString(value)
}

func IsPhone(value string) bool {
	return phoneRegex.MatchString(value)
}

func IsZipCode(value string) bool {
	return zipRegex.MatchString(value)
}

func IsCode(value string) bool {
	return codeRegex.MatchString(value)
}

func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func NormalizeUpper(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
