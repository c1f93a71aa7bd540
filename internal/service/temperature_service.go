package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kinship/internal/dedupe"
	"kinship/internal/metrics"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/security"
	"kinship/internal/validation"
)

// DateTimeLayout is the layout of datetime-local form fields
const DateTimeLayout = "2006-01-02T15:04"

// TemperatureInput is the temperature form
type TemperatureInput struct {
	PersonID    int64
	Temperature string
	// TakenAt is a datetime-local or date value; empty means now
	TakenAt   string
	Confirmed bool
}

// TemperatureService handles temperature records
type TemperatureService struct {
	temperatures *repository.TemperatureRepository
	people       *repository.PersonRepository
	detector     *dedupe.Detector
	min, max     float64
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time
}

func NewTemperatureService(
	temperatures *repository.TemperatureRepository,
	people *repository.PersonRepository,
	detector *dedupe.Detector,
	minTemperature, maxTemperature float64,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TemperatureService {
	return &TemperatureService{
		temperatures: temperatures,
		people:       people,
		detector:     detector,
		min:          minTemperature,
		max:          maxTemperature,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
	}
}

// Range returns the accepted temperature range in degrees Celsius
func (s *TemperatureService) Range() (min, max float64) {
	return s.min, s.max
}

// roundTemperature rounds to one decimal place
func roundTemperature(v float64) float64 {
	return math.Round(v*10) / 10
}

func (s *TemperatureService) parse(in TemperatureInput) (*models.TemperatureRecord, *models.Person, error) {
	if in.PersonID == 0 {
		return nil, nil, validation.ValidationError{Field: "person", Message: "person is required"}
	}
	person, err := s.people.GetPersonByID(in.PersonID)
	if err != nil {
		return nil, nil, err
	}
	if person == nil {
		return nil, nil, validation.ValidationError{Field: "person", Message: "select an existing person"}
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(in.Temperature), 64)
	if err != nil {
		return nil, nil, validation.ValidationError{Field: "temperature", Message: "enter a number"}
	}
	value = roundTemperature(value)
	if err := validation.ValidateTemperature(value, s.min, s.max); err != nil {
		return nil, nil, err
	}

	now := s.now()
	rec := &models.TemperatureRecord{PersonID: person.ID, PersonName: person.DisplayName(), Temperature: value}
	if taken := strings.TrimSpace(in.TakenAt); taken != "" {
		t, err := time.ParseInLocation(DateTimeLayout, taken, now.Location())
		if err != nil {
			t, err = time.ParseInLocation(models.DateLayout, taken, now.Location())
		}
		if err != nil {
			return nil, nil, validation.ValidationError{Field: "taken_at", Message: "enter a valid date and time"}
		}
		if err := validation.ValidateNotFuture("taken_at", t, now); err != nil {
			return nil, nil, err
		}
		rec.CreatedAt = t
	}
	return rec, person, nil
}

// duplicateWarning checks for another reading of the person on the same day
func (s *TemperatureService) duplicateWarning(rec *models.TemperatureRecord, person *models.Person) error {
	dup, err := s.detector.IsDuplicateTemperatureRecord(*rec)
	if err != nil {
		return fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if !dup {
		return nil
	}
	s.metrics.DuplicateDetected("temperature")
	day := rec.CreatedAt
	if day.IsZero() {
		day = s.now()
	}
	return &DuplicateWarning{
		Kind:    "temperature",
		Message: fmt.Sprintf("%s: %s already has a reading on %s.", ErrTemperatureRecordExists.Error(), person.DisplayName(), day.Format(models.DateLayout)),
	}
}

// CreateTemperatureRecord records a reading. Unless in.Confirmed is set, a
// second reading for the person on the same day returns a DuplicateWarning.
func (s *TemperatureService) CreateTemperatureRecord(actor *models.User, in TemperatureInput) (*models.TemperatureRecord, error) {
	if err := authorize(actor, security.PermAddTemperatureRecord); err != nil {
		return nil, err
	}
	rec, person, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	if !in.Confirmed {
		if err := s.duplicateWarning(rec, person); err != nil {
			return nil, err
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	rec.CreatedBy = &actor.ID
	rec.UpdatedBy = &actor.ID
	if err := s.temperatures.CreateTemperatureRecord(rec); err != nil {
		return nil, err
	}

	s.metrics.RecordCreated("temperature")
	s.logger.Info("temperature recorded", zap.Int64("record_id", rec.ID), zap.Int64("person_id", rec.PersonID), zap.Int64("actor_id", actor.ID))
	return rec, nil
}

// UpdateTemperatureRecord saves the form over an existing reading
func (s *TemperatureService) UpdateTemperatureRecord(actor *models.User, id int64, in TemperatureInput) (*models.TemperatureRecord, error) {
	if err := authorize(actor, security.PermChangeTemperatureRecord); err != nil {
		return nil, err
	}
	existing, err := s.GetTemperatureRecord(actor, id)
	if err != nil {
		return nil, err
	}
	rec, person, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	rec.ID = existing.ID
	// stored in UTC; the day is counted in local time
	previous := existing.CreatedAt.In(s.now().Location())
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = previous
	}
	// the other readings on an unchanged day were already accepted
	moved := rec.PersonID != existing.PersonID || rec.Day() != previous.Format(models.DateLayout)
	if moved && !in.Confirmed {
		if err := s.duplicateWarning(rec, person); err != nil {
			return nil, err
		}
	}

	rec.CreatedBy = existing.CreatedBy
	rec.UpdatedBy = &actor.ID
	if err := s.temperatures.UpdateTemperatureRecord(rec); err != nil {
		return nil, err
	}
	s.logger.Info("temperature updated", zap.Int64("record_id", id), zap.Int64("actor_id", actor.ID))
	return rec, nil
}

// GetTemperatureRecord returns a reading or ErrTemperatureRecordNotFound
func (s *TemperatureService) GetTemperatureRecord(actor *models.User, id int64) (*models.TemperatureRecord, error) {
	if err := authorize(actor, security.PermViewTemperatureRecord); err != nil {
		return nil, err
	}
	rec, err := s.temperatures.GetTemperatureRecord(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrTemperatureRecordNotFound
	}
	return rec, nil
}

// ListTemperatureRecords returns one page of readings
func (s *TemperatureService) ListTemperatureRecords(actor *models.User, q models.ListQuery) ([]models.TemperatureRecord, models.Page, error) {
	if err := authorize(actor, security.PermViewTemperatureRecord); err != nil {
		return nil, q.Page, err
	}
	return s.temperatures.ListTemperatureRecords(q)
}

// ListForPerson returns every reading of one person, newest first
func (s *TemperatureService) ListForPerson(actor *models.User, personID int64) ([]models.TemperatureRecord, error) {
	if err := authorize(actor, security.PermViewTemperatureRecord); err != nil {
		return nil, err
	}
	return s.temperatures.ListTemperatureRecordsForPerson(personID, 0)
}
