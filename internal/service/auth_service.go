package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"kinship/internal/database"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/security"
	"kinship/internal/validation"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrUsernameTaken      = errors.New("this username is already taken")
	ErrInvalidCredentials = errors.New("invalid username, email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidResetToken  = errors.New("invalid or expired reset link")
	ErrResetTokenUsed     = errors.New("this reset link has already been used")
)

const passwordResetTTL = time.Hour

// UserCreatedHook runs inside the transaction that creates an account, after
// the account row exists. Returning an error rolls the account back.
type UserCreatedHook func(tx *database.Tx, user *models.User) error

// RegisterInput is the registration form
type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

// OAuthIdentity is what a provider tells us about the signed-in user
type OAuthIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// AuthService handles accounts, sessions, password resets and permissions
type AuthService struct {
	db              *database.DB
	userRepo        *repository.UserRepository
	email           *EmailService
	sessionDuration time.Duration
	hooks           []UserCreatedHook
	logger          *zap.Logger
}

// NewAuthService creates a new auth service. email may be nil.
func NewAuthService(db *database.DB, userRepo *repository.UserRepository, email *EmailService, sessionDuration time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		db:              db,
		userRepo:        userRepo,
		email:           email,
		sessionDuration: sessionDuration,
		logger:          logger,
	}
}

// OnUserCreated registers a hook run for every new account
func (s *AuthService) OnUserCreated(hook UserCreatedHook) {
	s.hooks = append(s.hooks, hook)
}

// Register validates the form and creates the account together with
// everything the registered hooks add
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.Join(strings.Fields(in.FullName), " ")

	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := validation.ValidateFullName(in.FullName); err != nil {
		return nil, err
	}

	if existing, err := s.userRepo.GetUserByUsername(in.Username); err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	} else if existing != nil {
		return nil, validation.ValidationError{Field: "username", Message: ErrUsernameTaken.Error()}
	}
	if existing, err := s.userRepo.GetUserByEmail(in.Email); err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	} else if existing != nil {
		return nil, validation.ValidationError{Field: "email", Message: ErrEmailTaken.Error()}
	}

	passwordHash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: passwordHash,
		FullName:     in.FullName,
	}
	if err := s.createAccount(user); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username), zap.Bool("superuser", user.IsSuperuser))

	if err := s.email.SendWelcomeEmail(ctx, user.Email, user.FullName); err != nil {
		s.logger.Warn("failed to send welcome email", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// createAccount inserts user, grants the default permissions and runs the
// hooks in a single transaction. The first account becomes a superuser.
func (s *AuthService) createAccount(user *models.User) error {
	err := s.db.InTx(func(tx *database.Tx) error {
		users := s.userRepo.WithTx(tx)

		count, err := users.CountUsers()
		if err != nil {
			return err
		}
		user.IsSuperuser = count == 0

		if err := users.CreateUser(user); err != nil {
			return err
		}
		if err := users.SetPermissions(user.ID, security.DefaultPermissions); err != nil {
			return err
		}
		user.Permissions = append([]string(nil), security.DefaultPermissions...)

		for _, hook := range s.hooks {
			if err := hook(tx, user); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, database.ErrDuplicate) {
		return validation.ValidationError{Field: "username", Message: ErrUsernameTaken.Error()}
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// Login authenticates by username or email and creates a session
func (s *AuthService) Login(login, password string) (*models.Session, *models.User, error) {
	user, err := s.userRepo.GetUserByLogin(strings.TrimSpace(login))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !security.CheckPassword(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.startSession(user)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

func (s *AuthService) startSession(user *models.User) (*models.Session, error) {
	session, err := s.userRepo.CreateSession(security.GenerateSessionID(), user.ID, time.Now().Add(s.sessionDuration))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ValidateSession returns the user of a live session, permissions loaded
func (s *AuthService) ValidateSession(sessionID string) (*models.User, error) {
	session, err := s.userRepo.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		_ = s.userRepo.DeleteSession(sessionID)
		return nil, ErrSessionExpired
	}

	user, err := s.GetUser(session.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrSessionNotFound
	}
	return user, err
}

// GetUser returns an account with its permissions
func (s *AuthService) GetUser(id int64) (*models.User, error) {
	user, err := s.userRepo.GetUserByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.Permissions, err = s.userRepo.GetPermissions(user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout invalidates a session
func (s *AuthService) Logout(sessionID string) error {
	if err := s.userRepo.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CleanupExpired removes expired sessions and password reset tokens
func (s *AuthService) CleanupExpired() error {
	now := time.Now()
	sessions, err := s.userRepo.DeleteExpiredSessions(now)
	if err != nil {
		return fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	tokens, err := s.userRepo.DeleteExpiredPasswordResetTokens(now)
	if err != nil {
		return fmt.Errorf("failed to cleanup reset tokens: %w", err)
	}
	if sessions > 0 || tokens > 0 {
		s.logger.Info("expired credentials removed", zap.Int64("sessions", sessions), zap.Int64("reset_tokens", tokens))
	}
	return nil
}

// RunCleanup calls CleanupExpired every interval until ctx is cancelled
func (s *AuthService) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.CleanupExpired(); err != nil {
				s.logger.Error("session cleanup failed", zap.Error(err))
			}
		}
	}
}

// OAuthLogin signs in with a provider identity. Unknown identities are linked
// to the account with the same email, or get a new account and profile.
func (s *AuthService) OAuthLogin(id OAuthIdentity) (*models.Session, *models.User, error) {
	if id.Provider == "" || id.Subject == "" {
		return nil, nil, errors.New("missing oauth provider information")
	}
	if err := validation.ValidateEmail(id.Email); err != nil {
		return nil, nil, err
	}

	user, err := s.userRepo.GetUserByOAuth(id.Provider, id.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lookup oauth user: %w", err)
	}

	if user == nil {
		existing, err := s.userRepo.GetUserByEmail(id.Email)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check existing user: %w", err)
		}
		if existing != nil {
			if existing.OAuthProvider != "" && existing.OAuthProvider != id.Provider {
				return nil, nil, ErrEmailTaken
			}
			if err := s.userRepo.LinkOAuthProvider(existing.ID, id.Provider, id.Subject); err != nil {
				return nil, nil, fmt.Errorf("failed to link oauth provider: %w", err)
			}
			user = existing
		} else {
			user, err = s.createOAuthAccount(id)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	session, err := s.startSession(user)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

var nonSlug = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func (s *AuthService) createOAuthAccount(id OAuthIdentity) (*models.User, error) {
	base := nonSlug.ReplaceAllString(strings.Split(id.Email, "@")[0], "")
	if base == "" {
		base = "user"
	}
	username, err := s.availableUsername(base)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(id.Name)
	if name == "" {
		name = username
	}

	user := &models.User{
		Username:      username,
		Email:         id.Email,
		FullName:      name,
		OAuthProvider: id.Provider,
		OAuthSubject:  id.Subject,
	}
	if err := s.createAccount(user); err != nil {
		return nil, err
	}
	s.logger.Info("account created from oauth", zap.Int64("user_id", user.ID), zap.String("provider", id.Provider))
	return user, nil
}

// availableUsername returns base, or base followed by the first free number
func (s *AuthService) availableUsername(base string) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		existing, err := s.userRepo.GetUserByUsername(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check username: %w", err)
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
}

// RequestPasswordReset emails a reset link. Unknown addresses and accounts
// without a password succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil
	}

	token, err := security.GenerateToken(32)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_ = s.userRepo.DeleteUserPasswordResetTokens(user.ID)
	if err := s.userRepo.CreatePasswordResetToken(token, user.ID, time.Now().Add(passwordResetTTL)); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	if err := s.email.SendPasswordResetEmail(ctx, user.Email, user.FullName, token); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// CheckPasswordResetToken reports why a token can't be used, or nil
func (s *AuthService) CheckPasswordResetToken(token string) error {
	_, err := s.resetToken(token)
	return err
}

func (s *AuthService) resetToken(token string) (*models.PasswordResetToken, error) {
	if token == "" {
		return nil, ErrInvalidResetToken
	}
	resetToken, err := s.userRepo.GetPasswordResetToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	if resetToken == nil || resetToken.IsExpired() {
		return nil, ErrInvalidResetToken
	}
	if resetToken.Used {
		return nil, ErrResetTokenUsed
	}
	return resetToken, nil
}

// ResetPassword sets a new password with a valid token and signs the
// account out of every session
func (s *AuthService) ResetPassword(token, newPassword string) error {
	resetToken, err := s.resetToken(token)
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.InTx(func(tx *database.Tx) error {
		users := s.userRepo.WithTx(tx)
		if err := users.UpdatePassword(resetToken.UserID, passwordHash); err != nil {
			return err
		}
		if err := users.MarkPasswordResetTokenUsed(token); err != nil {
			return err
		}
		return users.DeleteUserSessions(resetToken.UserID)
	})
}

// ListUsers returns one page of accounts for the admin pages
func (s *AuthService) ListUsers(actor *models.User, q models.ListQuery) ([]models.User, models.Page, error) {
	if err := authorize(actor, security.PermManageUsers); err != nil {
		return nil, q.Page, err
	}
	users, page, err := s.userRepo.ListUsers(q)
	if err != nil {
		return nil, page, err
	}
	for i := range users {
		if users[i].Permissions, err = s.userRepo.GetPermissions(users[i].ID); err != nil {
			return nil, page, err
		}
	}
	return users, page, nil
}

// SetPermissions replaces the permissions of an account. Unknown codenames
// are ignored.
func (s *AuthService) SetPermissions(actor *models.User, userID int64, codenames []string) error {
	if err := authorize(actor, security.PermManageUsers); err != nil {
		return err
	}
	target, err := s.userRepo.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if target == nil {
		return ErrUserNotFound
	}

	var granted []string
	seen := make(map[string]bool)
	for _, codename := range codenames {
		if security.IsKnownPermission(codename) && !seen[codename] {
			seen[codename] = true
			granted = append(granted, codename)
		}
	}

	err = s.db.InTx(func(tx *database.Tx) error {
		return s.userRepo.WithTx(tx).SetPermissions(userID, granted)
	})
	if err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	s.logger.Info("permissions updated", zap.Int64("actor_id", actor.ID), zap.Int64("user_id", userID), zap.Strings("permissions", granted))
	return nil
}
