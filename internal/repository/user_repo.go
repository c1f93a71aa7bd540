package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinship/internal/database"
	"kinship/internal/models"
)

const userColumns = "id, username, email, password_hash, full_name, oauth_provider, oauth_subject, is_superuser, created_at, updated_at"

// UserRepository handles database operations for accounts, permissions,
// sessions and password reset tokens
type UserRepository struct {
	db database.Executor
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.Executor) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx *database.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var provider, subject sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&provider,
		&subject,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.OAuthProvider = provider.String
	user.OAuthSubject = subject.String
	return user, nil
}

func (r *UserRepository) getUser(where string, args ...interface{}) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + where
	user, err := scanUser(r.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CountUsers returns the number of accounts
func (r *UserRepository) CountUsers() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CreateUser inserts user and fills in its ID and timestamps
func (r *UserRepository) CreateUser(user *models.User) error {
	ts := now()
	query := `
		INSERT INTO users (username, email, password_hash, full_name, oauth_provider, oauth_subject, is_superuser, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FullName,
		nullString(user.OAuthProvider),
		nullString(user.OAuthSubject),
		user.IsSuperuser,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", database.TranslateError(err))
	}

	user.ID = id
	user.CreatedAt = ts
	user.UpdatedAt = ts
	return nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(id int64) (*models.User, error) {
	return r.getUser("id = ?", id)
}

// GetUserByEmail retrieves a user by email address, ignoring case
func (r *UserRepository) GetUserByEmail(email string) (*models.User, error) {
	return r.getUser("LOWER(email) = LOWER(?)", email)
}

// GetUserByUsername retrieves a user by username
func (r *UserRepository) GetUserByUsername(username string) (*models.User, error) {
	return r.getUser("username = ?", username)
}

// GetUserByLogin finds the account for a login form value, which may be
// either a username or an email address
func (r *UserRepository) GetUserByLogin(login string) (*models.User, error) {
	return r.getUser("username = ? OR LOWER(email) = LOWER(?)", login, login)
}

// GetUserByOAuth retrieves a user by OAuth provider and subject
func (r *UserRepository) GetUserByOAuth(provider, subject string) (*models.User, error) {
	return r.getUser("oauth_provider = ? AND oauth_subject = ?", provider, subject)
}

// LinkOAuthProvider links an existing user to an OAuth provider
func (r *UserRepository) LinkOAuthProvider(userID int64, provider, subject string) error {
	query := `
		UPDATE users
		SET oauth_provider = ?, oauth_subject = ?, updated_at = ?
		WHERE id = ?
		AND (oauth_provider IS NULL OR oauth_provider = '')
	`
	result, err := r.db.Exec(query, provider, subject, now(), userID)
	if err != nil {
		return fmt.Errorf("failed to link oauth provider: %w", database.TranslateError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("oauth provider already linked")
	}
	return nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(userID int64, passwordHash string) error {
	_, err := r.db.Exec("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?", passwordHash, now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// ListUsers returns one page of accounts matching the search term
func (r *UserRepository) ListUsers(q models.ListQuery) ([]models.User, models.Page, error) {
	b := newSelect(userColumns, "users").
		Search(q.Search, "username", "email", "full_name").
		OrderBy("username")

	var users []models.User
	page, err := paginate(r.db, b, q.Page, func(rows *sql.Rows) error {
		user, err := scanUser(rows)
		if err != nil {
			return err
		}
		users = append(users, *user)
		return nil
	})
	if err != nil {
		return nil, page, fmt.Errorf("failed to list users: %w", err)
	}
	return users, page, nil
}

// ListAllUsers returns every account ordered by ID
func (r *UserRepository) ListAllUsers() ([]models.User, error) {
	query, args := newSelect(userColumns, "users").OrderBy("id").SQL()
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// GetPermissions returns the permission codenames granted to a user
func (r *UserRepository) GetPermissions(userID int64) ([]string, error) {
	rows, err := r.db.Query("SELECT codename FROM user_permissions WHERE user_id = ? ORDER BY codename", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	var codenames []string
	for rows.Next() {
		var codename string
		if err := rows.Scan(&codename); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		codenames = append(codenames, codename)
	}
	return codenames, rows.Err()
}

// SetPermissions replaces the permissions granted to a user
func (r *UserRepository) SetPermissions(userID int64, codenames []string) error {
	if _, err := r.db.Exec("DELETE FROM user_permissions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear permissions: %w", err)
	}
	for _, codename := range codenames {
		if _, err := r.db.Exec("INSERT INTO user_permissions (user_id, codename) VALUES (?, ?)", userID, codename); err != nil {
			return fmt.Errorf("failed to grant permission %s: %w", codename, err)
		}
	}
	return nil
}

// CreateSession creates a new session for a user
func (r *UserRepository) CreateSession(sessionID string, userID int64, expiresAt time.Time) (*models.Session, error) {
	ts := now()
	query := `
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, sessionID, userID, expiresAt.UTC(), ts); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &models.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: ts,
	}, nil
}

// GetSession retrieves a session by ID
func (r *UserRepository) GetSession(sessionID string) (*models.Session, error) {
	query := `
		SELECT id, user_id, expires_at, created_at
		FROM sessions
		WHERE id = ?
	`
	session := &models.Session{}
	err := r.db.QueryRow(query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteSession removes a session from the database
func (r *UserRepository) DeleteSession(sessionID string) error {
	if _, err := r.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before cutoff and
// returns how many were removed
func (r *UserRepository) DeleteExpiredSessions(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM sessions WHERE expires_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// CreatePasswordResetToken stores a reset token for a user
func (r *UserRepository) CreatePasswordResetToken(token string, userID int64, expiresAt time.Time) error {
	query := `
		INSERT INTO password_reset_tokens (token, user_id, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, token, userID, expiresAt.UTC(), false, now()); err != nil {
		return fmt.Errorf("failed to create password reset token: %w", err)
	}
	return nil
}

// GetPasswordResetToken retrieves a reset token
func (r *UserRepository) GetPasswordResetToken(token string) (*models.PasswordResetToken, error) {
	query := `
		SELECT token, user_id, expires_at, created_at, used
		FROM password_reset_tokens
		WHERE token = ?
	`
	t := &models.PasswordResetToken{}
	err := r.db.QueryRow(query, token).Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.CreatedAt, &t.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get password reset token: %w", err)
	}
	return t, nil
}

// MarkPasswordResetTokenUsed invalidates a reset token
func (r *UserRepository) MarkPasswordResetTokenUsed(token string) error {
	if _, err := r.db.Exec("UPDATE password_reset_tokens SET used = ? WHERE token = ?", true, token); err != nil {
		return fmt.Errorf("failed to mark password reset token used: %w", err)
	}
	return nil
}

// DeleteUserSessions signs a user out everywhere
func (r *UserRepository) DeleteUserSessions(userID int64) error {
	if _, err := r.db.Exec("DELETE FROM sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteUserPasswordResetTokens removes every reset token of a user
func (r *UserRepository) DeleteUserPasswordResetTokens(userID int64) error {
	if _, err := r.db.Exec("DELETE FROM password_reset_tokens WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete password reset tokens: %w", err)
	}
	return nil
}

// DeleteExpiredPasswordResetTokens removes reset tokens that expired before cutoff
func (r *UserRepository) DeleteExpiredPasswordResetTokens(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM password_reset_tokens WHERE expires_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired password reset tokens: %w", err)
	}
	return result.RowsAffected()
}
