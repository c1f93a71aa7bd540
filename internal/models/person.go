package models

import (
	"time"

	"kinship/internal/agegroup"
)

// Gender of a person; empty means not recorded
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Genders lists the selectable genders
var Genders = []Gender{GenderMale, GenderFemale}

// Person is a tracked individual, adult or child
type Person struct {
	ID          int64
	Username    string
	FullName    string
	Gender      Gender
	DateOfBirth *time.Time
	UserID      *int64
	CreatedBy   *int64
	UpdatedBy   *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayName prefers the full name and falls back to the username
func (p *Person) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

// AgeOn returns the age on today. ok is false until a date of birth is set.
func (p *Person) AgeOn(today time.Time) (age int, ok bool) {
	if p.DateOfBirth == nil {
		return 0, false
	}
	return agegroup.AgeAt(*p.DateOfBirth, today), true
}

// PersonSummary is a person with derived age information for list pages
type PersonSummary struct {
	Person
	Age         *int
	AgeCategory agegroup.Category
}

// Summarize derives the age and category of p on today.
// Age information stays empty when the date of birth is missing or out of range.
func Summarize(p Person, brackets agegroup.Brackets, today time.Time) PersonSummary {
	summary := PersonSummary{Person: p}
	age, ok := p.AgeOn(today)
	if !ok {
		return summary
	}
	category, err := brackets.Categorize(age)
	if err != nil {
		return summary
	}
	summary.Age = &age
	summary.AgeCategory = category
	return summary
}
