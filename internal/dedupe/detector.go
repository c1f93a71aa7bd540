// Package dedupe flags records that probably duplicate existing ones and
// enforces the relationship pair rules before anything reaches the database.
package dedupe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kinship/internal/models"
)

// MaxRatio is the similarity of two names with the same words
const MaxRatio = 100

var (
	ErrSelfRelationship   = errors.New("a person can't be related to themselves")
	ErrRelationshipExists = errors.New("this relationship already exists")
)

// PersonSource lists the people a user has created
type PersonSource interface {
	ListPeopleCreatedBy(userID int64) ([]models.Person, error)
}

// RelationshipSource answers exact (person, relative) lookups.
// excludeID skips one row so an update does not conflict with itself; 0 skips nothing.
type RelationshipSource interface {
	RelationshipExists(kind models.RelationshipKind, personID, relativeID, excludeID int64) (bool, error)
}

// TemperatureSource answers (person, calendar day) lookups
type TemperatureSource interface {
	TemperatureRecordExists(personID int64, day time.Time, excludeID int64) (bool, error)
}

// Detector runs the duplicate checks against already stored records
type Detector struct {
	people        PersonSource
	relationships RelationshipSource
	temperatures  TemperatureSource
	threshold     int
	symmetric     bool
	now           func() time.Time
}

// Option configures a Detector
type Option func(*Detector)

// WithThreshold sets the token-set ratio at or above which names count as duplicates
func WithThreshold(threshold int) Option {
	return func(d *Detector) {
		d.threshold = threshold
	}
}

// WithSymmetricRelationships makes (relative, person) conflict with (person, relative)
// for interpersonal relationships too. Parent-child pairs always conflict both ways.
func WithSymmetricRelationships(symmetric bool) Option {
	return func(d *Detector) {
		d.symmetric = symmetric
	}
}

// WithClock replaces time.Now, used to resolve "today"
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a detector over the given sources
func NewDetector(people PersonSource, relationships RelationshipSource, temperatures TemperatureSource, opts ...Option) *Detector {
	d := &Detector{
		people:        people,
		relationships: relationships,
		temperatures:  temperatures,
		threshold:     MaxRatio,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DuplicatePerson returns the first person created by the candidate's creator
// whose full name matches the candidate's, or nil when there is none.
func (d *Detector) DuplicatePerson(candidate models.Person) (*models.Person, error) {
	if candidate.CreatedBy == nil || strings.TrimSpace(candidate.FullName) == "" {
		return nil, nil
	}

	existing, err := d.people.ListPeopleCreatedBy(*candidate.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to list existing people: %w", err)
	}

	for i := range existing {
		p := existing[i]
		if candidate.ID != 0 && p.ID == candidate.ID {
			continue
		}
		if p.FullName == "" {
			continue
		}
		if TokenSetRatio(candidate.FullName, p.FullName) >= d.threshold {
			return &p, nil
		}
	}
	return nil, nil
}

// IsDuplicateRelationship reports whether (personID, relativeID) is already
// stored in that order, ignoring the row excludeID
func (d *Detector) IsDuplicateRelationship(kind models.RelationshipKind, personID, relativeID, excludeID int64) (bool, error) {
	exists, err := d.relationships.RelationshipExists(kind, personID, relativeID, excludeID)
	if err != nil {
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}
	return exists, nil
}

// CheckRelationship rejects self relationships and pairs that already exist,
// whatever their relation type. excludeID is the relationship being edited, or 0.
func (d *Detector) CheckRelationship(kind models.RelationshipKind, personID, relativeID, excludeID int64) error {
	if personID == relativeID {
		return ErrSelfRelationship
	}

	exists, err := d.IsDuplicateRelationship(kind, personID, relativeID, excludeID)
	if err != nil {
		return err
	}
	if exists {
		return ErrRelationshipExists
	}

	if kind == models.KindParentChild || d.symmetric {
		reversed, err := d.IsDuplicateRelationship(kind, relativeID, personID, excludeID)
		if err != nil {
			return err
		}
		if reversed {
			return ErrRelationshipExists
		}
	}
	return nil
}

// IsDuplicateTemperatureRecord reports whether the person already has a
// reading on the record's calendar day. A record without a timestamp is
// treated as taken today.
func (d *Detector) IsDuplicateTemperatureRecord(record models.TemperatureRecord) (bool, error) {
	day := record.CreatedAt
	if day.IsZero() {
		day = d.now()
	}
	exists, err := d.temperatures.TemperatureRecordExists(record.PersonID, day, record.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check temperature records: %w", err)
	}
	return exists, nil
}
