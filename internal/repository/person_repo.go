package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"kinship/internal/database"
	"kinship/internal/models"
)

const personColumns = "id, username, full_name, gender, date_of_birth, user_id, created_by, updated_by, created_at, updated_at"

// PersonRepository handles database operations for people
type PersonRepository struct {
	db database.Executor
}

func NewPersonRepository(db database.Executor) *PersonRepository {
	return &PersonRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *PersonRepository) WithTx(tx *database.Tx) *PersonRepository {
	return &PersonRepository{db: tx}
}

func scanPerson(row rowScanner) (*models.Person, error) {
	p := &models.Person{}
	var gender string
	var dob sql.NullTime
	var userID, createdBy, updatedBy sql.NullInt64
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.FullName,
		&gender,
		&dob,
		&userID,
		&createdBy,
		&updatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Gender = models.Gender(gender)
	p.DateOfBirth = timePtr(dob)
	p.UserID = int64Ptr(userID)
	p.CreatedBy = int64Ptr(createdBy)
	p.UpdatedBy = int64Ptr(updatedBy)
	return p, nil
}

func (r *PersonRepository) getPerson(where string, args ...interface{}) (*models.Person, error) {
	p, err := scanPerson(r.db.QueryRow("SELECT "+personColumns+" FROM people WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

func (r *PersonRepository) queryPeople(b *selectBuilder) ([]models.Person, error) {
	query, args := b.SQL()
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	var people []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

// CreatePerson inserts p and fills in its ID and timestamps.
// A taken username or account link yields database.ErrDuplicate.
func (r *PersonRepository) CreatePerson(p *models.Person) error {
	ts := now()
	query := `
		INSERT INTO people (username, full_name, gender, date_of_birth, user_id, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query,
		p.Username,
		p.FullName,
		string(p.Gender),
		nullDate(p.DateOfBirth),
		nullInt64(p.UserID),
		nullInt64(p.CreatedBy),
		nullInt64(p.UpdatedBy),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create person: %w", database.TranslateError(err))
	}

	p.ID = id
	p.CreatedAt = ts
	p.UpdatedAt = ts
	return nil
}

// UpdatePerson saves the editable fields of p
func (r *PersonRepository) UpdatePerson(p *models.Person) error {
	ts := now()
	query := `
		UPDATE people
		SET username = ?, full_name = ?, gender = ?, date_of_birth = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query,
		p.Username,
		p.FullName,
		string(p.Gender),
		nullDate(p.DateOfBirth),
		nullInt64(p.UpdatedBy),
		ts,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update person: %w", database.TranslateError(err))
	}
	p.UpdatedAt = ts
	return nil
}

// GetPersonByID retrieves a person by ID
func (r *PersonRepository) GetPersonByID(id int64) (*models.Person, error) {
	return r.getPerson("id = ?", id)
}

// GetPersonByUsername retrieves a person by username
func (r *PersonRepository) GetPersonByUsername(username string) (*models.Person, error) {
	return r.getPerson("username = ?", username)
}

// GetPersonByUserID retrieves the profile linked to an account
func (r *PersonRepository) GetPersonByUserID(userID int64) (*models.Person, error) {
	return r.getPerson("user_id = ?", userID)
}

// ListPeople returns one page of people whose username or full name
// contains the search term
func (r *PersonRepository) ListPeople(q models.ListQuery) ([]models.Person, models.Page, error) {
	b := newSelect(personColumns, "people").
		Search(q.Search, "username", "full_name").
		OrderBy("full_name, username")

	var people []models.Person
	page, err := paginate(r.db, b, q.Page, func(rows *sql.Rows) error {
		p, err := scanPerson(rows)
		if err != nil {
			return err
		}
		people = append(people, *p)
		return nil
	})
	if err != nil {
		return nil, page, fmt.Errorf("failed to list people: %w", err)
	}
	return people, page, nil
}

// ListPeopleCreatedBy returns every person recorded by an account
func (r *PersonRepository) ListPeopleCreatedBy(userID int64) ([]models.Person, error) {
	return r.queryPeople(newSelect(personColumns, "people").Where("created_by = ?", userID).OrderBy("id"))
}

// ListAllPeople returns every person ordered by name, for pickers and exports
func (r *PersonRepository) ListAllPeople() ([]models.Person, error) {
	return r.queryPeople(newSelect(personColumns, "people").OrderBy("full_name, username"))
}
