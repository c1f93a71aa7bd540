// Package agegroup computes ages from dates of birth and buckets them into
// the six named age categories used across the membership records.
package agegroup

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNegativeAge    = errors.New("age can't be negative")
	ErrMaxAgeExceeded = errors.New("age shouldn't exceed the maximum human age")
)

// Category is a named age bracket
type Category string

const (
	Child         Category = "child"
	Teenager      Category = "teenager"
	YoungAdult    Category = "young adult"
	Adult         Category = "adult"
	MiddleAged    Category = "middle-aged"
	SeniorCitizen Category = "senior citizen"
)

// Categories lists every category from youngest to oldest
var Categories = []Category{Child, Teenager, YoungAdult, Adult, MiddleAged, SeniorCitizen}

// Brackets holds the configurable boundaries of the age categories.
// All bounds are inclusive whole years.
type Brackets struct {
	TeenageStart    int
	YoungAdultStart int
	YoungAdultEnd   int
	MiddleAgeStart  int
	MiddleAgeEnd    int
	SeniorityStart  int
	MaxHumanAge     int
}

// DefaultBrackets returns the boundaries used when nothing is configured
func DefaultBrackets() Brackets {
	return Brackets{
		TeenageStart:    13,
		YoungAdultStart: 18,
		YoungAdultEnd:   30,
		MiddleAgeStart:  45,
		MiddleAgeEnd:    64,
		SeniorityStart:  65,
		MaxHumanAge:     130,
	}
}

// Validate checks that the six ranges are ordered, non-empty and contiguous
func (b Brackets) Validate() error {
	switch {
	case b.TeenageStart <= 0:
		return fmt.Errorf("teenage start must be positive, got %d", b.TeenageStart)
	case b.YoungAdultStart <= b.TeenageStart:
		return fmt.Errorf("young adulthood (%d) must start after teenage start (%d)", b.YoungAdultStart, b.TeenageStart)
	case b.YoungAdultEnd < b.YoungAdultStart:
		return fmt.Errorf("young adulthood range %d-%d is empty", b.YoungAdultStart, b.YoungAdultEnd)
	case b.MiddleAgeStart <= b.YoungAdultEnd+1:
		return fmt.Errorf("middle age (%d) leaves no adult range after young adulthood (%d)", b.MiddleAgeStart, b.YoungAdultEnd)
	case b.MiddleAgeEnd < b.MiddleAgeStart:
		return fmt.Errorf("middle age range %d-%d is empty", b.MiddleAgeStart, b.MiddleAgeEnd)
	case b.SeniorityStart != b.MiddleAgeEnd+1:
		return fmt.Errorf("seniority (%d) must start right after middle age ends (%d)", b.SeniorityStart, b.MiddleAgeEnd)
	case b.MaxHumanAge < b.SeniorityStart:
		return fmt.Errorf("maximum human age (%d) is below seniority (%d)", b.MaxHumanAge, b.SeniorityStart)
	}
	return nil
}

// Categorize returns the category an age falls into
func (b Brackets) Categorize(age int) (Category, error) {
	switch {
	case age < 0:
		return "", ErrNegativeAge
	case age > b.MaxHumanAge:
		return "", ErrMaxAgeExceeded
	case age < b.TeenageStart:
		return Child, nil
	case age < b.YoungAdultStart:
		return Teenager, nil
	case age <= b.YoungAdultEnd:
		return YoungAdult, nil
	case age < b.MiddleAgeStart:
		return Adult, nil
	case age <= b.MiddleAgeEnd:
		return MiddleAged, nil
	default:
		return SeniorCitizen, nil
	}
}

// CategoryOf computes the age on today for dob and its category
func (b Brackets) CategoryOf(dob, today time.Time) (int, Category, error) {
	age := AgeAt(dob, today)
	category, err := b.Categorize(age)
	if err != nil {
		return age, "", err
	}
	return age, category, nil
}

// AgeAt returns the age in whole years on the calendar date of today.
// The result is negative when dob is after today.
func AgeAt(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// Age returns the age in whole years as of now
func Age(dob time.Time) int {
	return AgeAt(dob, time.Now())
}
