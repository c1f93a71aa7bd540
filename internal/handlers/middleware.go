package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kinship/internal/metrics"
	"kinship/internal/models"
	"kinship/internal/security"
	"kinship/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey ContextKey = "user"

	// anonCSRFCookieName keys CSRF tokens on forms shown before sign-in
	anonCSRFCookieName = "csrf_id"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService *service.AuthService
	csrf        *security.CSRFGenerator
	limiter     *security.RateLimiter
	logger      *zap.Logger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(authService *service.AuthService, csrf *security.CSRFGenerator, limiter *security.RateLimiter, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		csrf:        csrf,
		limiter:     limiter,
		logger:      logger,
	}
}

// RequireAuth is middleware that requires a valid session
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(security.SessionCookieName)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		user, err := m.authService.ValidateSession(cookie.Value)
		if err != nil {
			http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

// RequirePermission requires a session whose user holds codename
func (m *Middleware) RequirePermission(codename string, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !GetUserFromContext(r.Context()).HasPermission(codename) {
			http.Error(w, ErrForbidden, http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// RequireSuperuser requires a session whose user is a superuser
func (m *Middleware) RequireSuperuser(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if user := GetUserFromContext(r.Context()); user == nil || !user.IsSuperuser {
			http.Error(w, ErrForbidden, http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// csrfKey is the value CSRF tokens are bound to: the session cookie when
// signed in, otherwise an anonymous per-browser cookie
func csrfKey(r *http.Request) string {
	if cookie, err := r.Cookie(security.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if cookie, err := r.Cookie(anonCSRFCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// CSRFToken returns the token forms on this response must submit, setting
// the anonymous cookie first if the browser has neither cookie
func (m *Middleware) CSRFToken(w http.ResponseWriter, r *http.Request) string {
	key := csrfKey(r)
	if key == "" {
		key = security.GenerateSessionID()
		http.SetCookie(w, security.CreateSessionCookie(r, anonCSRFCookieName, key, time.Now().Add(24*time.Hour)))
		// later lookups in this request see the new cookie
		r.AddCookie(&http.Cookie{Name: anonCSRFCookieName, Value: key})
	}
	token, err := m.csrf.GenerateToken(key)
	if err != nil {
		m.logger.Error("failed to generate CSRF token", zap.Error(err))
		return ""
	}
	return token
}

// CSRFProtect rejects unsafe requests without a token matching csrfKey
func (m *Middleware) CSRFProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next(w, r)
			return
		}

		key := csrfKey(r)
		if key == "" || !m.csrf.ValidateToken(key, security.TokenFromRequest(r)) {
			m.logger.Warn("rejected request with invalid CSRF token",
				zap.String("path", r.URL.Path),
				zap.String("ip", security.GetClientIP(r)))
			http.Error(w, "Invalid or missing CSRF token", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// RateLimit limits attempts per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := security.GetClientIP(r)
		if !m.limiter.Allow(ip) {
			m.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
			http.Error(w, ErrTooManyRequests, http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging logs every request and records its metrics under the matched
// route pattern. It wraps the whole server, startup page included.
func Logging(logger *zap.Logger, m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		// ServeMux sets r.Pattern on the request it was handed
		m.ObserveRequest(r.Method, r.Pattern, rec.status, elapsed)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed))
	})
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// layout builds the common page data for r
func (m *Middleware) layout(w http.ResponseWriter, r *http.Request, title string) Layout {
	return Layout{
		Title:     title + " - Kinship",
		User:      GetUserFromContext(r.Context()),
		CSRFToken: m.CSRFToken(w, r),
	}
}
