package appointment

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

var ErrValidation = errors.New("validation failed")

func validationErr(field, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, msg)
}

// NormalizePhone strips formatting and returns the digits of a phone number with
// area code: 10 digits for landlines, 11 for mobiles. A leading 0 trunk prefix is
// dropped.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '+':
		default:
			return "", validationErr("phone", "contains invalid characters")
		}
	}

	digits := strings.TrimPrefix(b.String(), "0")
	if len(digits) != 10 && len(digits) != 11 {
		return "", validationErr("phone", "must include area code (10 or 11 digits)")
	}
	return digits, nil
}

// ValidateContact checks and normalizes patient contact fields before any
// constraint is consulted.
func ValidateContact(c PatientContact) (PatientContact, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return c, validationErr("name", "is required")
	}

	c.Email = strings.TrimSpace(c.Email)
	if c.Email == "" {
		return c, validationErr("email", "is required")
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil || addr.Address != c.Email || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return c, validationErr("email", "is not a valid address")
	}
	c.Email = strings.ToLower(addr.Address)

	phone, err := NormalizePhone(c.Phone)
	if err != nil {
		return c, err
	}
	c.Phone = phone

	return c, nil
}
