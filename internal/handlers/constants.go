package handlers

import "time"

const (
	ErrInvalidFormData     = "Invalid form data"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "You don't have permission to do that"
	ErrNotFound            = "Not found"
	ErrTooManyRequests     = "Too many attempts, please try again later"
	ErrInternalServerError = "Internal server error"

	OAuthStateTTL = 10 * time.Minute
	MaxBackupSize = 32 << 20
)
