package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"kinship/internal/agegroup"
	"kinship/internal/models"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidationError represents a validation error on a single form field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks if a password meets requirements
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < 8 {
		return ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	return nil
}

// ValidateName checks if a name is valid
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	if len(name) < 2 {
		return ValidationError{Field: "name", Message: "name must be at least 2 characters"}
	}
	return nil
}

// ValidateFullName requires at least a first and a last name
func ValidateFullName(fullName string) error {
	if err := ValidateName(fullName); err != nil {
		return ValidationError{Field: "full_name", Message: err.(ValidationError).Message}
	}
	if len(strings.Fields(fullName)) < 2 {
		return ValidationError{Field: "full_name", Message: "ensure you've entered your full name"}
	}
	return nil
}

// ValidateUsername checks a slug: letters, digits, hyphens and underscores
func ValidateUsername(username string) error {
	if username == "" {
		return ValidationError{Field: "username", Message: "username is required"}
	}
	if len(username) > 150 {
		return ValidationError{Field: "username", Message: "username must be at most 150 characters"}
	}
	if !usernameRegex.MatchString(username) {
		return ValidationError{Field: "username", Message: "username may only contain letters, numbers, hyphens and underscores"}
	}
	return nil
}

// ValidateGender accepts an empty gender or one of models.Genders
func ValidateGender(gender string) error {
	if gender == "" {
		return nil
	}
	for _, g := range models.Genders {
		if string(g) == gender {
			return nil
		}
	}
	return ValidationError{Field: "gender", Message: "select a valid gender"}
}

// ValidateDateOfBirth rejects future dates and ages above the maximum human age
func ValidateDateOfBirth(dob, today time.Time, brackets agegroup.Brackets) error {
	if dob.Format(models.DateLayout) > today.Format(models.DateLayout) {
		return ValidationError{Field: "date_of_birth", Message: "date of birth can't be in the future"}
	}
	if _, err := brackets.Categorize(agegroup.AgeAt(dob, today)); err != nil {
		return ValidationError{Field: "date_of_birth", Message: err.Error()}
	}
	return nil
}

// ValidateTemperature checks a body temperature in degrees Celsius
func ValidateTemperature(value, min, max float64) error {
	if math.IsNaN(value) || value < min || value > max {
		return ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("temperature must be between %.1f and %.1f", min, max),
		}
	}
	return nil
}

// ValidateNotFuture rejects timestamps after now
func ValidateNotFuture(field string, t, now time.Time) error {
	if t.After(now) {
		return ValidationError{Field: field, Message: "date can't be in the future"}
	}
	return nil
}
