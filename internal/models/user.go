package models

import "time"

// User represents an account that can sign in and maintain records
type User struct {
	ID            int64
	Username      string
	Email         string
	PasswordHash  string
	FullName      string
	OAuthProvider string
	OAuthSubject  string
	IsSuperuser   bool
	Permissions   []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPermission reports whether the user holds the permission codename.
// Superusers hold every permission.
func (u *User) HasPermission(codename string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, p := range u.Permissions {
		if p == codename {
			return true
		}
	}
	return false
}

// Session represents an authenticated session
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// PasswordResetToken represents a token for password reset
type PasswordResetToken struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	Used      bool
}

// IsExpired checks if the reset token has expired
func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
