package service

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"kinship/internal/database"
	"kinship/internal/models"
)

const backupVersion = "1.0"

// BackupData is the complete, database-independent backup document
type BackupData struct {
	Version           string               `json:"version"`
	ExportedAt        time.Time            `json:"exported_at"`
	Users             []UserBackup         `json:"users"`
	People            []PersonBackup       `json:"people"`
	RelationshipTypes []RelationTypeBackup `json:"relationship_types"`
	Relationships     []RelationshipBackup `json:"relationships"`
	Temperatures      []TemperatureBackup  `json:"temperature_records"`
}

type UserBackup struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash"`
	FullName      string    `json:"full_name"`
	OAuthProvider string    `json:"oauth_provider,omitempty"`
	OAuthSubject  string    `json:"oauth_subject,omitempty"`
	IsSuperuser   bool      `json:"is_superuser"`
	Permissions   []string  `json:"permissions"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type PersonBackup struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	FullName    string    `json:"full_name"`
	Gender      string    `json:"gender,omitempty"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	UserID      *int64    `json:"user_id,omitempty"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	UpdatedBy   *int64    `json:"updated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RelationTypeBackup struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type RelationshipBackup struct {
	ID             int64                   `json:"id"`
	Kind           models.RelationshipKind `json:"kind"`
	PersonID       int64                   `json:"person_id"`
	RelativeID     int64                   `json:"relative_id"`
	RelationTypeID int64                   `json:"relation_type_id"`
	CreatedBy      *int64                  `json:"created_by,omitempty"`
	UpdatedBy      *int64                  `json:"updated_by,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

type TemperatureBackup struct {
	ID          int64     `json:"id"`
	PersonID    int64     `json:"person_id"`
	Temperature float64   `json:"temperature"`
	RecordedOn  string    `json:"recorded_on"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	UpdatedBy   *int64    `json:"updated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// backupTables lists the tables in dependency order
var backupTables = []string{
	"users",
	"user_permissions",
	"people",
	"relationship_types",
	"interpersonal_relationships",
	"parent_child_relationships",
	"temperature_records",
}

var relationshipBackupTables = map[models.RelationshipKind][3]string{
	models.KindInterpersonal: {"interpersonal_relationships", "person_id", "relative_id"},
	models.KindParentChild:   {"parent_child_relationships", "parent_id", "child_id"},
}

// BackupService exports and restores the whole database as JSON
type BackupService struct {
	db     *database.DB
	logger *zap.Logger
}

func NewBackupService(db *database.DB, logger *zap.Logger) *BackupService {
	return &BackupService{db: db, logger: logger}
}

// Export writes a backup of every table to w
func (s *BackupService) Export(w io.Writer) error {
	backup := &BackupData{Version: backupVersion, ExportedAt: time.Now().UTC()}

	steps := []struct {
		name string
		fn   func(*BackupData) error
	}{
		{"users", s.exportUsers},
		{"people", s.exportPeople},
		{"relationship types", s.exportRelationTypes},
		{"relationships", s.exportRelationships},
		{"temperature records", s.exportTemperatures},
	}
	for _, step := range steps {
		if err := step.fn(backup); err != nil {
			return fmt.Errorf("failed to export %s: %w", step.name, err)
		}
	}

	s.logger.Info("backup exported",
		zap.Int("users", len(backup.Users)),
		zap.Int("people", len(backup.People)),
		zap.Int("relationships", len(backup.Relationships)),
		zap.Int("temperature_records", len(backup.Temperatures)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(backup)
}

// Import restores a backup from r in one transaction. With clear set,
// existing rows are deleted first.
func (s *BackupService) Import(r io.Reader, clear bool) error {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != backupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}
	s.logger.Info("importing backup", zap.String("version", backup.Version), zap.Time("exported_at", backup.ExportedAt))

	err := s.db.InTx(func(tx *database.Tx) error {
		if clear {
			if err := clearTables(tx); err != nil {
				return err
			}
		}
		steps := []struct {
			name string
			fn   func(*database.Tx, *BackupData) error
		}{
			{"users", importUsers},
			{"people", importPeople},
			{"relationship types", importRelationTypes},
			{"relationships", importRelationships},
			{"temperature records", importTemperatures},
		}
		for _, step := range steps {
			if err := step.fn(tx, &backup); err != nil {
				return fmt.Errorf("failed to import %s: %w", step.name, err)
			}
		}
		return resetSequences(tx)
	})
	if err != nil {
		return err
	}

	s.logger.Info("backup imported", zap.Int("people", len(backup.People)), zap.Int("relationships", len(backup.Relationships)))
	return nil
}

// TableCount is the number of rows in one backed-up table
type TableCount struct {
	Table string
	Rows  int
}

// Stats counts the rows of every backed-up table
func (s *BackupService) Stats() ([]TableCount, error) {
	counts := make([]TableCount, 0, len(backupTables))
	for _, table := range backupTables {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts = append(counts, TableCount{Table: table, Rows: n})
	}
	return counts, nil
}

func clearTables(tx *database.Tx) error {
	if _, err := tx.Exec("DELETE FROM sessions"); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM password_reset_tokens"); err != nil {
		return fmt.Errorf("failed to clear password reset tokens: %w", err)
	}
	for i := len(backupTables) - 1; i >= 0; i-- {
		if _, err := tx.Exec("DELETE FROM " + backupTables[i]); err != nil {
			return fmt.Errorf("failed to clear %s: %w", backupTables[i], err)
		}
	}
	return nil
}

func resetSequences(tx *database.Tx) error {
	for _, table := range backupTables {
		if table == "user_permissions" {
			continue
		}
		query := tx.GetDialect().ResetSequenceQuery(table)
		if query == "" {
			continue
		}
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to reset sequence of %s: %w", table, err)
		}
	}
	return nil
}

func (s *BackupService) exportUsers(backup *BackupData) error {
	rows, err := s.db.Query("SELECT id, username, email, password_hash, full_name, oauth_provider, oauth_subject, is_superuser, created_at, updated_at FROM users ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserBackup
		var provider, subject sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName, &provider, &subject, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		u.OAuthProvider, u.OAuthSubject = provider.String, subject.String
		backup.Users = append(backup.Users, u)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range backup.Users {
		perms, err := s.db.Query("SELECT codename FROM user_permissions WHERE user_id = ? ORDER BY codename", backup.Users[i].ID)
		if err != nil {
			return err
		}
		for perms.Next() {
			var codename string
			if err := perms.Scan(&codename); err != nil {
				perms.Close()
				return err
			}
			backup.Users[i].Permissions = append(backup.Users[i].Permissions, codename)
		}
		perms.Close()
	}
	return nil
}

func (s *BackupService) exportPeople(backup *BackupData) error {
	rows, err := s.db.Query("SELECT id, username, full_name, gender, date_of_birth, user_id, created_by, updated_by, created_at, updated_at FROM people ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p PersonBackup
		var dob sql.NullTime
		var userID, createdBy, updatedBy sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Username, &p.FullName, &p.Gender, &dob, &userID, &createdBy, &updatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return err
		}
		if dob.Valid {
			p.DateOfBirth = dob.Time.Format(models.DateLayout)
		}
		p.UserID, p.CreatedBy, p.UpdatedBy = nullableID(userID), nullableID(createdBy), nullableID(updatedBy)
		backup.People = append(backup.People, p)
	}
	return rows.Err()
}

func (s *BackupService) exportRelationTypes(backup *BackupData) error {
	rows, err := s.db.Query("SELECT id, name, created_at FROM relationship_types ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rt RelationTypeBackup
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.CreatedAt); err != nil {
			return err
		}
		backup.RelationshipTypes = append(backup.RelationshipTypes, rt)
	}
	return rows.Err()
}

func (s *BackupService) exportRelationships(backup *BackupData) error {
	for _, kind := range models.RelationshipKinds {
		t := relationshipBackupTables[kind]
		rows, err := s.db.Query("SELECT id, " + t[1] + ", " + t[2] + ", relation_type_id, created_by, updated_by, created_at, updated_at FROM " + t[0] + " ORDER BY id")
		if err != nil {
			return err
		}
		for rows.Next() {
			rel := RelationshipBackup{Kind: kind}
			var createdBy, updatedBy sql.NullInt64
			if err := rows.Scan(&rel.ID, &rel.PersonID, &rel.RelativeID, &rel.RelationTypeID, &createdBy, &updatedBy, &rel.CreatedAt, &rel.UpdatedAt); err != nil {
				rows.Close()
				return err
			}
			rel.CreatedBy, rel.UpdatedBy = nullableID(createdBy), nullableID(updatedBy)
			backup.Relationships = append(backup.Relationships, rel)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}
	return nil
}

func (s *BackupService) exportTemperatures(backup *BackupData) error {
	rows, err := s.db.Query("SELECT id, person_id, temperature, recorded_on, created_by, updated_by, created_at, updated_at FROM temperature_records ORDER BY id")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var t TemperatureBackup
		var createdBy, updatedBy sql.NullInt64
		if err := rows.Scan(&t.ID, &t.PersonID, &t.Temperature, &t.RecordedOn, &createdBy, &updatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}
		t.CreatedBy, t.UpdatedBy = nullableID(createdBy), nullableID(updatedBy)
		backup.Temperatures = append(backup.Temperatures, t)
	}
	return rows.Err()
}

func importUsers(tx *database.Tx, backup *BackupData) error {
	for _, u := range backup.Users {
		_, err := tx.Exec("INSERT INTO users (id, username, email, password_hash, full_name, oauth_provider, oauth_subject, is_superuser, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, nullIfEmpty(u.OAuthProvider), nullIfEmpty(u.OAuthSubject), u.IsSuperuser, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			return fmt.Errorf("user %d: %w", u.ID, database.TranslateError(err))
		}
		for _, codename := range u.Permissions {
			if _, err := tx.Exec("INSERT INTO user_permissions (user_id, codename) VALUES (?, ?)", u.ID, codename); err != nil {
				return fmt.Errorf("permission %s of user %d: %w", codename, u.ID, err)
			}
		}
	}
	return nil
}

func importPeople(tx *database.Tx, backup *BackupData) error {
	for _, p := range backup.People {
		var dob interface{}
		if p.DateOfBirth != "" {
			t, err := time.Parse(models.DateLayout, p.DateOfBirth)
			if err != nil {
				return fmt.Errorf("person %d: invalid date of birth: %w", p.ID, err)
			}
			dob = t
		}
		_, err := tx.Exec("INSERT INTO people (id, username, full_name, gender, date_of_birth, user_id, created_by, updated_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			p.ID, p.Username, p.FullName, p.Gender, dob, p.UserID, p.CreatedBy, p.UpdatedBy, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("person %d: %w", p.ID, database.TranslateError(err))
		}
	}
	return nil
}

func importRelationTypes(tx *database.Tx, backup *BackupData) error {
	for _, rt := range backup.RelationshipTypes {
		if _, err := tx.Exec("INSERT INTO relationship_types (id, name, created_at) VALUES (?, ?, ?)", rt.ID, rt.Name, rt.CreatedAt); err != nil {
			return fmt.Errorf("relationship type %d: %w", rt.ID, database.TranslateError(err))
		}
	}
	return nil
}

func importRelationships(tx *database.Tx, backup *BackupData) error {
	for _, rel := range backup.Relationships {
		t, ok := relationshipBackupTables[rel.Kind]
		if !ok {
			return fmt.Errorf("relationship %d: unknown kind %q", rel.ID, rel.Kind)
		}
		_, err := tx.Exec("INSERT INTO "+t[0]+" (id, "+t[1]+", "+t[2]+", relation_type_id, created_by, updated_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			rel.ID, rel.PersonID, rel.RelativeID, rel.RelationTypeID, rel.CreatedBy, rel.UpdatedBy, rel.CreatedAt, rel.UpdatedAt)
		if err != nil {
			return fmt.Errorf("relationship %d: %w", rel.ID, database.TranslateError(err))
		}
	}
	return nil
}

func importTemperatures(tx *database.Tx, backup *BackupData) error {
	for _, t := range backup.Temperatures {
		_, err := tx.Exec("INSERT INTO temperature_records (id, person_id, temperature, recorded_on, created_by, updated_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			t.ID, t.PersonID, t.Temperature, t.RecordedOn, t.CreatedBy, t.UpdatedBy, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("temperature record %d: %w", t.ID, database.TranslateError(err))
		}
	}
	return nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
