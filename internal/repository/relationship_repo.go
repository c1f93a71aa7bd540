package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"kinship/internal/database"
	"kinship/internal/models"
)

// relationshipTable maps a relationship kind onto its table and endpoint columns
type relationshipTable struct {
	name        string
	personCol   string
	relativeCol string
}

var relationshipTables = map[models.RelationshipKind]relationshipTable{
	models.KindInterpersonal: {name: "interpersonal_relationships", personCol: "person_id", relativeCol: "relative_id"},
	models.KindParentChild:   {name: "parent_child_relationships", personCol: "parent_id", relativeCol: "child_id"},
}

func tableFor(kind models.RelationshipKind) (relationshipTable, error) {
	t, ok := relationshipTables[kind]
	if !ok {
		return relationshipTable{}, fmt.Errorf("unknown relationship kind %q", kind)
	}
	return t, nil
}

func (t relationshipTable) columns() string {
	return "r.id, r." + t.personCol + ", r." + t.relativeCol + ", r.relation_type_id, rt.name, " +
		"COALESCE(NULLIF(p.full_name, ''), p.username), COALESCE(NULLIF(q.full_name, ''), q.username), " +
		"r.created_by, r.updated_by, r.created_at, r.updated_at"
}

func (t relationshipTable) from() string {
	return t.name + " r" +
		" JOIN people p ON p.id = r." + t.personCol +
		" JOIN people q ON q.id = r." + t.relativeCol +
		" JOIN relationship_types rt ON rt.id = r.relation_type_id"
}

func scanRelationship(kind models.RelationshipKind, row rowScanner) (*models.Relationship, error) {
	rel := &models.Relationship{Kind: kind}
	var createdBy, updatedBy sql.NullInt64
	err := row.Scan(
		&rel.ID,
		&rel.PersonID,
		&rel.RelativeID,
		&rel.RelationTypeID,
		&rel.RelationTypeName,
		&rel.PersonName,
		&rel.RelativeName,
		&createdBy,
		&updatedBy,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rel.CreatedBy = int64Ptr(createdBy)
	rel.UpdatedBy = int64Ptr(updatedBy)
	return rel, nil
}

// RelationshipRepository handles both relationship tables and relationship types
type RelationshipRepository struct {
	db database.Executor
}

func NewRelationshipRepository(db database.Executor) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

// ListRelationshipTypes returns every relationship type by name
func (r *RelationshipRepository) ListRelationshipTypes() ([]models.RelationshipType, error) {
	rows, err := r.db.Query("SELECT id, name, created_at FROM relationship_types ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query relationship types: %w", err)
	}
	defer rows.Close()

	var types []models.RelationshipType
	for rows.Next() {
		var rt models.RelationshipType
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relationship type: %w", err)
		}
		types = append(types, rt)
	}
	return types, rows.Err()
}

// GetRelationshipType retrieves a relationship type by ID
func (r *RelationshipRepository) GetRelationshipType(id int64) (*models.RelationshipType, error) {
	rt := &models.RelationshipType{}
	err := r.db.QueryRow("SELECT id, name, created_at FROM relationship_types WHERE id = ?", id).
		Scan(&rt.ID, &rt.Name, &rt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship type: %w", err)
	}
	return rt, nil
}

// CreateRelationshipType adds a relationship type
func (r *RelationshipRepository) CreateRelationshipType(name string) (*models.RelationshipType, error) {
	ts := now()
	id, err := r.db.ExecReturningID("INSERT INTO relationship_types (name, created_at) VALUES (?, ?)", name, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship type: %w", database.TranslateError(err))
	}
	return &models.RelationshipType{ID: id, Name: name, CreatedAt: ts}, nil
}

// CreateRelationship inserts rel into the table of its kind.
// Pair and self constraint violations surface as database.ErrDuplicate
// and database.ErrConstraint.
func (r *RelationshipRepository) CreateRelationship(rel *models.Relationship) error {
	t, err := tableFor(rel.Kind)
	if err != nil {
		return err
	}

	ts := now()
	query := "INSERT INTO " + t.name + " (" + t.personCol + ", " + t.relativeCol +
		", relation_type_id, created_by, updated_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	id, err := r.db.ExecReturningID(query,
		rel.PersonID,
		rel.RelativeID,
		rel.RelationTypeID,
		nullInt64(rel.CreatedBy),
		nullInt64(rel.UpdatedBy),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create relationship: %w", database.TranslateError(err))
	}

	rel.ID = id
	rel.CreatedAt = ts
	rel.UpdatedAt = ts
	return nil
}

// UpdateRelationship saves the endpoints and type of rel
func (r *RelationshipRepository) UpdateRelationship(rel *models.Relationship) error {
	t, err := tableFor(rel.Kind)
	if err != nil {
		return err
	}

	ts := now()
	query := "UPDATE " + t.name + " SET " + t.personCol + " = ?, " + t.relativeCol +
		" = ?, relation_type_id = ?, updated_by = ?, updated_at = ? WHERE id = ?"
	_, err = r.db.Exec(query, rel.PersonID, rel.RelativeID, rel.RelationTypeID, nullInt64(rel.UpdatedBy), ts, rel.ID)
	if err != nil {
		return fmt.Errorf("failed to update relationship: %w", database.TranslateError(err))
	}
	rel.UpdatedAt = ts
	return nil
}

// DeleteRelationship removes a relationship
func (r *RelationshipRepository) DeleteRelationship(kind models.RelationshipKind, id int64) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.Exec("DELETE FROM "+t.name+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete relationship: %w", err)
	}
	return nil
}

// GetRelationship retrieves a relationship of the given kind by ID
func (r *RelationshipRepository) GetRelationship(kind models.RelationshipKind, id int64) (*models.Relationship, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	query, args := newSelect(t.columns(), t.from()).Where("r.id = ?", id).SQL()
	rel, err := scanRelationship(kind, r.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship: %w", err)
	}
	return rel, nil
}

// ListRelationships returns one page of relationships of a kind where either
// person's username or full name contains the search term
func (r *RelationshipRepository) ListRelationships(kind models.RelationshipKind, q models.ListQuery) ([]models.Relationship, models.Page, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, q.Page, err
	}

	b := newSelect(t.columns(), t.from()).
		Search(q.Search, "p.username", "p.full_name", "q.username", "q.full_name").
		OrderBy("r.created_at DESC, r.id DESC")

	var rels []models.Relationship
	page, err := paginate(r.db, b, q.Page, func(rows *sql.Rows) error {
		rel, err := scanRelationship(kind, rows)
		if err != nil {
			return err
		}
		rels = append(rels, *rel)
		return nil
	})
	if err != nil {
		return nil, page, fmt.Errorf("failed to list relationships: %w", err)
	}
	return rels, page, nil
}

// ListAllRelationships returns every relationship of a kind ordered by ID
func (r *RelationshipRepository) ListAllRelationships(kind models.RelationshipKind) ([]models.Relationship, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return r.queryRelationships(kind, newSelect(t.columns(), t.from()).OrderBy("r.id"))
}

func (r *RelationshipRepository) queryRelationships(kind models.RelationshipKind, b *selectBuilder) ([]models.Relationship, error) {
	query, args := b.SQL()
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []models.Relationship
	for rows.Next() {
		rel, err := scanRelationship(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, *rel)
	}
	return rels, rows.Err()
}

// RelationshipExists reports whether the ordered pair is already stored for
// kind, ignoring the relationship with ID excludeID
func (r *RelationshipRepository) RelationshipExists(kind models.RelationshipKind, personID, relativeID, excludeID int64) (bool, error) {
	t, err := tableFor(kind)
	if err != nil {
		return false, err
	}

	var count int
	query := "SELECT COUNT(*) FROM " + t.name + " WHERE " + t.personCol + " = ? AND " + t.relativeCol + " = ? AND id <> ?"
	if err := r.db.QueryRow(query, personID, relativeID, excludeID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check relationship: %w", err)
	}
	return count > 0, nil
}

// ListFamilyMembers returns every relationship touching personID, of both
// kinds and in both directions, seen from that person
func (r *RelationshipRepository) ListFamilyMembers(personID int64) ([]models.FamilyMember, error) {
	var members []models.FamilyMember
	for _, kind := range models.RelationshipKinds {
		t := relationshipTables[kind]
		b := newSelect(t.columns(), t.from()).
			Where("(r."+t.personCol+" = ? OR r."+t.relativeCol+" = ?)", personID, personID).
			OrderBy("r.id")

		rels, err := r.queryRelationships(kind, b)
		if err != nil {
			return nil, fmt.Errorf("failed to list family members: %w", err)
		}
		for _, rel := range rels {
			member := models.FamilyMember{Kind: kind, Relation: rel.RelationTypeName}
			if rel.PersonID == personID {
				member.PersonID = rel.RelativeID
				member.Name = rel.RelativeName
				member.Outgoing = true
			} else {
				member.PersonID = rel.PersonID
				member.Name = rel.PersonName
			}
			members = append(members, member)
		}
	}
	return members, nil
}
