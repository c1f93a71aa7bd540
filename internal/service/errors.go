package service

import (
	"errors"

	"kinship/internal/dedupe"
	"kinship/internal/models"
)

var (
	ErrForbidden                 = errors.New("you don't have permission to do that")
	ErrPersonNotFound            = errors.New("person not found")
	ErrUserNotFound              = errors.New("user not found")
	ErrRelationshipNotFound      = errors.New("relationship not found")
	ErrRelationshipTypeExists    = errors.New("this relationship type already exists")
	ErrTemperatureRecordNotFound = errors.New("temperature record not found")
	ErrTemperatureRecordExists   = errors.New("a temperature record already exists for this person on this day")
	ErrRelationshipExists        = dedupe.ErrRelationshipExists
	ErrSelfRelationship          = dedupe.ErrSelfRelationship
	ErrUnknownRelationshipKind   = errors.New("unknown relationship kind")
	ErrProfileAlreadyLinked      = errors.New("account already has a profile")
)

// DuplicateWarning reports a likely duplicate. Saving again with the
// confirmation flag set stores the record anyway.
type DuplicateWarning struct {
	Kind    string
	Message string
	// Existing is the matching person, for person warnings
	Existing *models.Person
}

func (w *DuplicateWarning) Error() string {
	return w.Message
}

// AsDuplicateWarning unwraps a DuplicateWarning from err
func AsDuplicateWarning(err error) (*DuplicateWarning, bool) {
	var w *DuplicateWarning
	if errors.As(err, &w) {
		return w, true
	}
	return nil, false
}

// authorize checks a permission codename before any work is done
func authorize(user *models.User, codename string) error {
	if !user.HasPermission(codename) {
		return ErrForbidden
	}
	return nil
}
