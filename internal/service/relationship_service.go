package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kinship/internal/database"
	"kinship/internal/dedupe"
	"kinship/internal/metrics"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/security"
	"kinship/internal/validation"
)

// RelationshipInput is the relationship form
type RelationshipInput struct {
	PersonID       int64
	RelativeID     int64
	RelationTypeID int64
}

// RelationshipService handles relationships of both kinds and relationship types
type RelationshipService struct {
	relationships *repository.RelationshipRepository
	people        *repository.PersonRepository
	detector      *dedupe.Detector
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewRelationshipService(
	relationships *repository.RelationshipRepository,
	people *repository.PersonRepository,
	detector *dedupe.Detector,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RelationshipService {
	return &RelationshipService{
		relationships: relationships,
		people:        people,
		detector:      detector,
		metrics:       m,
		logger:        logger,
	}
}

func (s *RelationshipService) validate(kind models.RelationshipKind, in RelationshipInput) error {
	if _, ok := models.ParseRelationshipKind(string(kind)); !ok {
		return ErrUnknownRelationshipKind
	}

	for _, end := range []struct {
		field string
		label string
		id    int64
	}{
		{"person", kind.PersonLabel(), in.PersonID},
		{"relative", kind.RelativeLabel(), in.RelativeID},
	} {
		if end.id == 0 {
			return validation.ValidationError{Field: end.field, Message: strings.ToLower(end.label) + " is required"}
		}
		p, err := s.people.GetPersonByID(end.id)
		if err != nil {
			return err
		}
		if p == nil {
			return validation.ValidationError{Field: end.field, Message: "select an existing person"}
		}
	}

	if in.RelationTypeID == 0 {
		return validation.ValidationError{Field: "relation_type", Message: "relationship type is required"}
	}
	rt, err := s.relationships.GetRelationshipType(in.RelationTypeID)
	if err != nil {
		return err
	}
	if rt == nil {
		return validation.ValidationError{Field: "relation_type", Message: "select an existing relationship type"}
	}
	return nil
}

// check runs the constraint checker and reports a conflict as a form error
func (s *RelationshipService) check(kind models.RelationshipKind, in RelationshipInput, excludeID int64) error {
	err := s.detector.CheckRelationship(kind, in.PersonID, in.RelativeID, excludeID)
	switch {
	case errors.Is(err, dedupe.ErrSelfRelationship):
		return validation.ValidationError{Field: "relative", Message: err.Error()}
	case errors.Is(err, dedupe.ErrRelationshipExists):
		s.metrics.DuplicateDetected(string(kind))
		return validation.ValidationError{Field: "relative", Message: err.Error()}
	}
	return err
}

// storageError turns a constraint violation that slipped past the checker
// into the same form error
func storageError(in RelationshipInput, err error) error {
	switch {
	case errors.Is(err, database.ErrDuplicate):
		return validation.ValidationError{Field: "relative", Message: ErrRelationshipExists.Error()}
	case errors.Is(err, database.ErrConstraint) && in.PersonID == in.RelativeID:
		return validation.ValidationError{Field: "relative", Message: ErrSelfRelationship.Error()}
	}
	return err
}

// CreateRelationship records a relationship of kind
func (s *RelationshipService) CreateRelationship(actor *models.User, kind models.RelationshipKind, in RelationshipInput) (*models.Relationship, error) {
	if err := authorize(actor, security.PermAddRelationship); err != nil {
		return nil, err
	}
	if err := s.validate(kind, in); err != nil {
		return nil, err
	}
	if err := s.check(kind, in, 0); err != nil {
		return nil, err
	}

	rel := &models.Relationship{
		Kind:           kind,
		PersonID:       in.PersonID,
		RelativeID:     in.RelativeID,
		RelationTypeID: in.RelationTypeID,
		CreatedBy:      &actor.ID,
		UpdatedBy:      &actor.ID,
	}
	if err := s.relationships.CreateRelationship(rel); err != nil {
		return nil, storageError(in, err)
	}

	s.metrics.RecordCreated(string(kind))
	s.logger.Info("relationship created",
		zap.String("kind", string(kind)),
		zap.Int64("relationship_id", rel.ID),
		zap.Int64("person_id", rel.PersonID),
		zap.Int64("relative_id", rel.RelativeID),
		zap.Int64("actor_id", actor.ID),
	)
	return rel, nil
}

// UpdateRelationship saves the form over an existing relationship
func (s *RelationshipService) UpdateRelationship(actor *models.User, kind models.RelationshipKind, id int64, in RelationshipInput) (*models.Relationship, error) {
	if err := authorize(actor, security.PermChangeRelationship); err != nil {
		return nil, err
	}
	rel, err := s.GetRelationship(actor, kind, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(kind, in); err != nil {
		return nil, err
	}
	if err := s.check(kind, in, id); err != nil {
		return nil, err
	}

	rel.PersonID = in.PersonID
	rel.RelativeID = in.RelativeID
	rel.RelationTypeID = in.RelationTypeID
	rel.UpdatedBy = &actor.ID
	if err := s.relationships.UpdateRelationship(rel); err != nil {
		return nil, storageError(in, err)
	}
	s.logger.Info("relationship updated", zap.String("kind", string(kind)), zap.Int64("relationship_id", id), zap.Int64("actor_id", actor.ID))
	return rel, nil
}

// DeleteRelationship removes a relationship
func (s *RelationshipService) DeleteRelationship(actor *models.User, kind models.RelationshipKind, id int64) error {
	if err := authorize(actor, security.PermDeleteRelationship); err != nil {
		return err
	}
	if _, err := s.GetRelationship(actor, kind, id); err != nil {
		return err
	}
	if err := s.relationships.DeleteRelationship(kind, id); err != nil {
		return err
	}
	s.logger.Info("relationship deleted", zap.String("kind", string(kind)), zap.Int64("relationship_id", id), zap.Int64("actor_id", actor.ID))
	return nil
}

// GetRelationship returns a relationship or ErrRelationshipNotFound
func (s *RelationshipService) GetRelationship(actor *models.User, kind models.RelationshipKind, id int64) (*models.Relationship, error) {
	if err := authorize(actor, security.PermViewRelationship); err != nil {
		return nil, err
	}
	if _, ok := models.ParseRelationshipKind(string(kind)); !ok {
		return nil, ErrUnknownRelationshipKind
	}
	rel, err := s.relationships.GetRelationship(kind, id)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, ErrRelationshipNotFound
	}
	return rel, nil
}

// ListRelationships returns one page of relationships of kind
func (s *RelationshipService) ListRelationships(actor *models.User, kind models.RelationshipKind, q models.ListQuery) ([]models.Relationship, models.Page, error) {
	if err := authorize(actor, security.PermViewRelationship); err != nil {
		return nil, q.Page, err
	}
	if _, ok := models.ParseRelationshipKind(string(kind)); !ok {
		return nil, q.Page, ErrUnknownRelationshipKind
	}
	return s.relationships.ListRelationships(kind, q)
}

// ListRelationshipTypes returns every relationship type
func (s *RelationshipService) ListRelationshipTypes() ([]models.RelationshipType, error) {
	return s.relationships.ListRelationshipTypes()
}

// CreateRelationshipType adds a relationship type
func (s *RelationshipService) CreateRelationshipType(actor *models.User, name string) (*models.RelationshipType, error) {
	if err := authorize(actor, security.PermManageUsers); err != nil {
		return nil, err
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil, validation.ValidationError{Field: "name", Message: "name is required"}
	}
	if len(name) > 100 {
		return nil, validation.ValidationError{Field: "name", Message: "name must be at most 100 characters"}
	}

	rt, err := s.relationships.CreateRelationshipType(name)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, validation.ValidationError{Field: "name", Message: ErrRelationshipTypeExists.Error()}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship type: %w", err)
	}
	s.logger.Info("relationship type created", zap.String("name", name), zap.Int64("actor_id", actor.ID))
	return rt, nil
}
