package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kinship/internal/agegroup"
	"kinship/internal/database"
	"kinship/internal/dedupe"
	"kinship/internal/metrics"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/security"
	"kinship/internal/validation"
)

// latestTemperatures is how many readings the person page shows
const latestTemperatures = 10

// PersonInput is the person form
type PersonInput struct {
	Username    string
	FullName    string
	Gender      string
	DateOfBirth string
	// Confirmed saves despite a duplicate warning
	Confirmed bool
}

// PersonDetail is everything the person page shows
type PersonDetail struct {
	models.PersonSummary
	FamilyMembers []models.FamilyMember
	Temperatures  []models.TemperatureRecord
	CanEdit       bool
}

// PersonService handles people and their profiles
type PersonService struct {
	people        *repository.PersonRepository
	relationships *repository.RelationshipRepository
	temperatures  *repository.TemperatureRepository
	detector      *dedupe.Detector
	brackets      agegroup.Brackets
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewPersonService(
	people *repository.PersonRepository,
	relationships *repository.RelationshipRepository,
	temperatures *repository.TemperatureRepository,
	detector *dedupe.Detector,
	brackets agegroup.Brackets,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PersonService {
	return &PersonService{
		people:        people,
		relationships: relationships,
		temperatures:  temperatures,
		detector:      detector,
		brackets:      brackets,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// Brackets returns the age brackets used for classification
func (s *PersonService) Brackets() agegroup.Brackets {
	return s.brackets
}

// CanEdit reports whether user may change p: with change_person, for their
// own profile, or for people they recorded
func CanEdit(user *models.User, p *models.Person) bool {
	if user == nil || p == nil {
		return false
	}
	if user.HasPermission(security.PermChangePerson) {
		return true
	}
	if p.UserID != nil && *p.UserID == user.ID {
		return true
	}
	return p.CreatedBy != nil && *p.CreatedBy == user.ID
}

// parse validates the form into a person
func (s *PersonService) parse(in PersonInput) (*models.Person, error) {
	p := &models.Person{
		Username: strings.TrimSpace(in.Username),
		FullName: strings.Join(strings.Fields(in.FullName), " "),
		Gender:   models.Gender(strings.TrimSpace(in.Gender)),
	}

	if err := validation.ValidateUsername(p.Username); err != nil {
		return nil, err
	}
	// a person may be recorded by username alone
	if p.FullName != "" {
		if err := validation.ValidateFullName(p.FullName); err != nil {
			return nil, err
		}
	}
	if err := validation.ValidateGender(string(p.Gender)); err != nil {
		return nil, err
	}

	if dob := strings.TrimSpace(in.DateOfBirth); dob != "" {
		t, err := time.Parse(models.DateLayout, dob)
		if err != nil {
			return nil, validation.ValidationError{Field: "date_of_birth", Message: "enter a date as YYYY-MM-DD"}
		}
		if err := validation.ValidateDateOfBirth(t, s.now(), s.brackets); err != nil {
			return nil, err
		}
		p.DateOfBirth = &t
	}
	return p, nil
}

func (s *PersonService) checkUsername(username string, selfID int64) error {
	existing, err := s.people.GetPersonByUsername(username)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return usernameTaken()
	}
	return nil
}

func usernameTaken() error {
	return validation.ValidationError{Field: "username", Message: "a person with this username already exists"}
}

// CreatePerson records a new person. Unless in.Confirmed is set, a fuzzy
// name match among the people the actor recorded returns a DuplicateWarning.
func (s *PersonService) CreatePerson(actor *models.User, in PersonInput) (*models.Person, error) {
	if err := authorize(actor, security.PermAddPerson); err != nil {
		return nil, err
	}
	p, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkUsername(p.Username, 0); err != nil {
		return nil, err
	}

	p.CreatedBy = &actor.ID
	p.UpdatedBy = &actor.ID

	if !in.Confirmed {
		match, err := s.detector.DuplicatePerson(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if match != nil {
			s.metrics.DuplicateDetected("person")
			return nil, &DuplicateWarning{
				Kind:     "person",
				Message:  fmt.Sprintf("You have already recorded %s (%s). Save anyway if this is a different person.", match.DisplayName(), match.Username),
				Existing: match,
			}
		}
	}

	if err := s.people.CreatePerson(p); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, usernameTaken()
		}
		return nil, err
	}

	s.metrics.RecordCreated("person")
	s.logger.Info("person created", zap.Int64("person_id", p.ID), zap.Int64("actor_id", actor.ID), zap.Bool("confirmed", in.Confirmed))
	return p, nil
}

// UpdatePerson saves the form over an existing person
func (s *PersonService) UpdatePerson(actor *models.User, id int64, in PersonInput) (*models.Person, error) {
	existing, err := s.GetPerson(id)
	if err != nil {
		return nil, err
	}
	if !CanEdit(actor, existing) {
		return nil, ErrForbidden
	}

	p, err := s.parse(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkUsername(p.Username, id); err != nil {
		return nil, err
	}

	existing.Username = p.Username
	existing.FullName = p.FullName
	existing.Gender = p.Gender
	existing.DateOfBirth = p.DateOfBirth
	existing.UpdatedBy = &actor.ID

	if err := s.people.UpdatePerson(existing); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, usernameTaken()
		}
		return nil, err
	}
	s.logger.Info("person updated", zap.Int64("person_id", id), zap.Int64("actor_id", actor.ID))
	return existing, nil
}

// GetPerson returns a person or ErrPersonNotFound
func (s *PersonService) GetPerson(id int64) (*models.Person, error) {
	p, err := s.people.GetPersonByID(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPersonNotFound
	}
	return p, nil
}

// GetPersonDetail assembles the person page for actor
func (s *PersonService) GetPersonDetail(actor *models.User, id int64) (*PersonDetail, error) {
	if err := authorize(actor, security.PermViewPerson); err != nil {
		return nil, err
	}
	p, err := s.GetPerson(id)
	if err != nil {
		return nil, err
	}

	detail := &PersonDetail{
		PersonSummary: models.Summarize(*p, s.brackets, s.now()),
		CanEdit:       CanEdit(actor, p),
	}
	if actor.HasPermission(security.PermViewRelationship) {
		if detail.FamilyMembers, err = s.relationships.ListFamilyMembers(id); err != nil {
			return nil, err
		}
	}
	if actor.HasPermission(security.PermViewTemperatureRecord) {
		if detail.Temperatures, err = s.temperatures.ListTemperatureRecordsForPerson(id, latestTemperatures); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// ListPeople returns one page of people with their age information
func (s *PersonService) ListPeople(actor *models.User, q models.ListQuery) ([]models.PersonSummary, models.Page, error) {
	if err := authorize(actor, security.PermViewPerson); err != nil {
		return nil, q.Page, err
	}
	people, page, err := s.people.ListPeople(q)
	if err != nil {
		return nil, page, err
	}
	today := s.now()
	summaries := make([]models.PersonSummary, len(people))
	for i, p := range people {
		summaries[i] = models.Summarize(p, s.brackets, today)
	}
	return summaries, page, nil
}

// ListAllPeople returns every person, for the pickers on other forms
func (s *PersonService) ListAllPeople() ([]models.Person, error) {
	return s.people.ListAllPeople()
}

// GetProfile returns the person linked to an account
func (s *PersonService) GetProfile(user *models.User) (*models.Person, error) {
	p, err := s.people.GetPersonByUserID(user.ID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPersonNotFound
	}
	return p, nil
}

// CreateProfile is the UserCreatedHook creating the person linked to a new
// account. It runs in the account's transaction.
func (s *PersonService) CreateProfile(tx *database.Tx, user *models.User) error {
	people := s.people.WithTx(tx)

	linked, err := people.GetPersonByUserID(user.ID)
	if err != nil {
		return err
	}
	if linked != nil {
		return ErrProfileAlreadyLinked
	}

	p := &models.Person{
		Username:  user.Username,
		FullName:  user.FullName,
		UserID:    &user.ID,
		CreatedBy: &user.ID,
		UpdatedBy: &user.ID,
	}
	if err := people.CreatePerson(p); err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	s.metrics.RecordCreated("person")
	return nil
}
