package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinship/internal/database"
	"kinship/internal/models"
)

const (
	temperatureColumns = "t.id, t.person_id, COALESCE(NULLIF(p.full_name, ''), p.username), t.temperature, t.created_at, t.created_by, t.updated_by, t.updated_at"
	temperatureFrom    = "temperature_records t JOIN people p ON p.id = t.person_id"
)

// TemperatureRepository handles database operations for temperature records
type TemperatureRepository struct {
	db database.Executor
}

func NewTemperatureRepository(db database.Executor) *TemperatureRepository {
	return &TemperatureRepository{db: db}
}

func scanTemperatureRecord(row rowScanner) (*models.TemperatureRecord, error) {
	rec := &models.TemperatureRecord{}
	var createdBy, updatedBy sql.NullInt64
	err := row.Scan(
		&rec.ID,
		&rec.PersonID,
		&rec.PersonName,
		&rec.Temperature,
		&rec.CreatedAt,
		&createdBy,
		&updatedBy,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedBy = int64Ptr(createdBy)
	rec.UpdatedBy = int64Ptr(updatedBy)
	return rec, nil
}

// CreateTemperatureRecord inserts rec. The calendar day used by the
// duplicate check is taken from rec.CreatedAt in its own location.
func (r *TemperatureRepository) CreateTemperatureRecord(rec *models.TemperatureRecord) error {
	ts := now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = ts
	}
	query := `
		INSERT INTO temperature_records (person_id, temperature, recorded_on, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query,
		rec.PersonID,
		rec.Temperature,
		rec.Day(),
		nullInt64(rec.CreatedBy),
		nullInt64(rec.UpdatedBy),
		rec.CreatedAt.UTC(),
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create temperature record: %w", database.TranslateError(err))
	}

	rec.ID = id
	rec.UpdatedAt = ts
	return nil
}

// UpdateTemperatureRecord saves the person, value and reading time of rec
func (r *TemperatureRepository) UpdateTemperatureRecord(rec *models.TemperatureRecord) error {
	ts := now()
	query := `
		UPDATE temperature_records
		SET person_id = ?, temperature = ?, recorded_on = ?, created_at = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query,
		rec.PersonID,
		rec.Temperature,
		rec.Day(),
		rec.CreatedAt.UTC(),
		nullInt64(rec.UpdatedBy),
		ts,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update temperature record: %w", database.TranslateError(err))
	}
	rec.UpdatedAt = ts
	return nil
}

// GetTemperatureRecord retrieves a record by ID
func (r *TemperatureRepository) GetTemperatureRecord(id int64) (*models.TemperatureRecord, error) {
	query, args := newSelect(temperatureColumns, temperatureFrom).Where("t.id = ?", id).SQL()
	rec, err := scanTemperatureRecord(r.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get temperature record: %w", err)
	}
	return rec, nil
}

// ListTemperatureRecords returns one page of readings, newest first, for
// people whose username or full name contains the search term
func (r *TemperatureRepository) ListTemperatureRecords(q models.ListQuery) ([]models.TemperatureRecord, models.Page, error) {
	b := newSelect(temperatureColumns, temperatureFrom).
		Search(q.Search, "p.username", "p.full_name").
		OrderBy("t.created_at DESC, t.id DESC")

	var records []models.TemperatureRecord
	page, err := paginate(r.db, b, q.Page, func(rows *sql.Rows) error {
		rec, err := scanTemperatureRecord(rows)
		if err != nil {
			return err
		}
		records = append(records, *rec)
		return nil
	})
	if err != nil {
		return nil, page, fmt.Errorf("failed to list temperature records: %w", err)
	}
	return records, page, nil
}

// ListTemperatureRecordsForPerson returns the latest readings of one person.
// A limit of zero or less returns all of them.
func (r *TemperatureRepository) ListTemperatureRecordsForPerson(personID int64, limit int) ([]models.TemperatureRecord, error) {
	query, args := newSelect(temperatureColumns, temperatureFrom).
		Where("t.person_id = ?", personID).
		OrderBy("t.created_at DESC, t.id DESC").
		SQL()
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.query(query, args...)
}

// ListAllTemperatureRecords returns every reading ordered by ID
func (r *TemperatureRepository) ListAllTemperatureRecords() ([]models.TemperatureRecord, error) {
	query, args := newSelect(temperatureColumns, temperatureFrom).OrderBy("t.id").SQL()
	return r.query(query, args...)
}

func (r *TemperatureRepository) query(query string, args ...interface{}) ([]models.TemperatureRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query temperature records: %w", err)
	}
	defer rows.Close()

	var records []models.TemperatureRecord
	for rows.Next() {
		rec, err := scanTemperatureRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan temperature record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// TemperatureRecordExists reports whether a reading for personID is already
// stored on the calendar day of day, ignoring the record with ID excludeID
func (r *TemperatureRepository) TemperatureRecordExists(personID int64, day time.Time, excludeID int64) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM temperature_records WHERE person_id = ? AND recorded_on = ? AND id <> ?"
	if err := r.db.QueryRow(query, personID, day.Format(models.DateLayout), excludeID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check temperature record: %w", err)
	}
	return count > 0, nil
}
