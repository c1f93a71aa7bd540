package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"kinship/internal/security"
	"kinship/internal/service"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService          *service.AuthService
	mw                   *Middleware
	templates            *template.Template
	oauthProviders       map[string]OAuthProvider
	oauthState           *security.OAuthStateSigner
	oauthRedirectBaseURL string
	logger               *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	authService *service.AuthService,
	mw *Middleware,
	templates *template.Template,
	oauthProviders map[string]OAuthProvider,
	oauthState *security.OAuthStateSigner,
	oauthRedirectBaseURL string,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:          authService,
		mw:                   mw,
		templates:            templates,
		oauthProviders:       oauthProviders,
		oauthState:           oauthState,
		oauthRedirectBaseURL: oauthRedirectBaseURL,
		logger:               logger,
	}
}

// signedIn reports whether r carries a valid session
func (h *AuthHandler) signedIn(r *http.Request) bool {
	cookie, err := r.Cookie(security.SessionCookieName)
	if err != nil {
		return false
	}
	_, err = h.authService.ValidateSession(cookie.Value)
	return err == nil
}

// ShowLogin renders the login page
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if h.signedIn(r) {
		http.Redirect(w, r, "/people", http.StatusSeeOther)
		return
	}

	render(w, h.templates, "login.tmpl", LoginViewData{
		Layout:    h.mw.layout(w, r, "Sign in"),
		Providers: h.oauthProviderViews(),
	})
}

// Login handles login form submission
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	login := r.FormValue("login")
	session, user, err := h.authService.Login(login, r.FormValue("password"))
	if err != nil {
		if !errors.Is(err, service.ErrInvalidCredentials) {
			respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "login failed", err)
			return
		}
		renderStatus(w, http.StatusUnauthorized, h.templates, "login.tmpl", LoginViewData{
			Layout:    h.mw.layout(w, r, "Sign in"),
			Login:     login,
			Error:     err.Error(),
			Providers: h.oauthProviderViews(),
		})
		return
	}

	h.logger.Info("user signed in", zap.Int64("user_id", user.ID))
	http.SetCookie(w, security.CreateSessionCookie(r, security.SessionCookieName, session.ID, session.ExpiresAt))
	http.Redirect(w, r, "/people", http.StatusSeeOther)
}

// ShowRegister renders the registration page
func (h *AuthHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	if h.signedIn(r) {
		http.Redirect(w, r, "/people", http.StatusSeeOther)
		return
	}

	render(w, h.templates, "register.tmpl", RegisterViewData{
		Layout: h.mw.layout(w, r, "Register"),
	})
}

// Register handles registration form submission
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	in := service.RegisterInput{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		FullName: r.FormValue("full_name"),
	}

	if _, err := h.authService.Register(r.Context(), in); err != nil {
		fieldErrors, ok := formErrors(err)
		if !ok {
			respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "registration failed", err)
			return
		}
		renderStatus(w, http.StatusUnprocessableEntity, h.templates, "register.tmpl", RegisterViewData{
			Layout:   h.mw.layout(w, r, "Register"),
			Username: in.Username,
			Email:    in.Email,
			FullName: in.FullName,
			Errors:   fieldErrors,
		})
		return
	}

	// Auto-login after registration
	session, _, err := h.authService.Login(in.Username, in.Password)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	http.SetCookie(w, security.CreateSessionCookie(r, security.SessionCookieName, session.ID, session.ExpiresAt))
	http.Redirect(w, r, "/people/me", http.StatusSeeOther)
}

// Logout handles logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(security.SessionCookieName); err == nil {
		if err := h.authService.Logout(cookie.Value); err != nil {
			h.logger.Warn("failed to delete session", zap.Error(err))
		}
	}

	http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Home sends signed-in users to the people list and everyone else to login
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	if h.signedIn(r) {
		http.Redirect(w, r, "/people", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ShowForgotPassword renders the password reset request form
func (h *AuthHandler) ShowForgotPassword(w http.ResponseWriter, r *http.Request) {
	render(w, h.templates, "forgot_password.tmpl", ForgotPasswordViewData{
		Layout: h.mw.layout(w, r, "Forgot password"),
	})
}

// ForgotPassword emails a reset link. The page reads the same whether or
// not the address has an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	data := ForgotPasswordViewData{
		Layout: h.mw.layout(w, r, "Forgot password"),
		Email:  email,
		Sent:   true,
	}
	if err := h.authService.RequestPasswordReset(r.Context(), email); err != nil {
		h.logger.Error("password reset request failed", zap.Error(err))
		data.Sent = false
		data.Error = "We couldn't send the reset email. Please try again later."
	}

	render(w, h.templates, "forgot_password.tmpl", data)
}

// ShowResetPassword renders the new password form for a reset link
func (h *AuthHandler) ShowResetPassword(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	data := ResetPasswordViewData{
		Layout: h.mw.layout(w, r, "Reset password"),
		Token:  token,
	}

	if err := h.authService.CheckPasswordResetToken(token); err != nil {
		if !isResetTokenError(err) {
			respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "failed to check reset token", err)
			return
		}
		data.Invalid = err.Error()
	}

	render(w, h.templates, "reset_password.tmpl", data)
}

// ResetPassword sets the new password and sends the user to login
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	token := r.FormValue("token")
	password := r.FormValue("password")
	data := ResetPasswordViewData{
		Layout: h.mw.layout(w, r, "Reset password"),
		Token:  token,
	}

	if password != r.FormValue("password_confirm") {
		data.Errors = FormErrors{"password_confirm": "passwords do not match"}
		renderStatus(w, http.StatusUnprocessableEntity, h.templates, "reset_password.tmpl", data)
		return
	}

	if err := h.authService.ResetPassword(token, password); err != nil {
		switch fieldErrors, ok := formErrors(err); {
		case ok:
			data.Errors = fieldErrors
		case isResetTokenError(err):
			data.Invalid = err.Error()
		default:
			respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "failed to reset password", err)
			return
		}
		renderStatus(w, http.StatusUnprocessableEntity, h.templates, "reset_password.tmpl", data)
		return
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func isResetTokenError(err error) bool {
	return errors.Is(err, service.ErrInvalidResetToken) || errors.Is(err, service.ErrResetTokenUsed)
}
