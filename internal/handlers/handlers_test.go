package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kinship/internal/agegroup"
	"kinship/internal/database"
	"kinship/internal/dedupe"
	"kinship/internal/metrics"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/security"
	"kinship/internal/service"
)

const testCSRFSecret = "test-csrf-secret"

type testApp struct {
	db   *database.DB
	auth *service.AuthService
	mw   *Middleware
	csrf *security.CSRFGenerator
	mux  *http.ServeMux
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "kinship.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.RunMigrations("../../migrations")
	require.NoError(t, err)

	templates, err := LoadTemplates("../../templates")
	require.NoError(t, err)

	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())

	userRepo := repository.NewUserRepository(db)
	personRepo := repository.NewPersonRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	temperatureRepo := repository.NewTemperatureRepository(db)
	detector := dedupe.NewDetector(personRepo, relationshipRepo, temperatureRepo)

	auth := service.NewAuthService(db, userRepo, nil, time.Hour, logger)
	people := service.NewPersonService(personRepo, relationshipRepo, temperatureRepo, detector, agegroup.DefaultBrackets(), m, logger)
	relationships := service.NewRelationshipService(relationshipRepo, personRepo, detector, m, logger)
	temperatures := service.NewTemperatureService(temperatureRepo, personRepo, detector, 34, 43, m, logger)
	auth.OnUserCreated(people.CreateProfile)

	csrf := security.NewCSRFGenerator(testCSRFSecret)
	mw := NewMiddleware(auth, csrf, security.NewRateLimiter(100, time.Minute), logger)

	authHandler := NewAuthHandler(auth, mw, templates, nil, security.NewOAuthStateSigner("state", OAuthStateTTL), "", logger)
	peopleHandler := NewPeopleHandler(people, mw, templates, 20, logger)
	relationshipHandler := NewRelationshipHandler(relationships, people, mw, templates, 20, logger)
	temperatureHandler := NewTemperatureHandler(temperatures, people, mw, templates, 20, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", authHandler.ShowLogin)
	mux.HandleFunc("POST /login", mw.CSRFProtect(authHandler.Login))
	mux.HandleFunc("GET /people", mw.RequirePermission(security.PermViewPerson, peopleHandler.List))
	mux.HandleFunc("GET /people/new", mw.RequirePermission(security.PermAddPerson, peopleHandler.New))
	mux.HandleFunc("POST /people", mw.CSRFProtect(mw.RequireAuth(peopleHandler.Create)))
	mux.HandleFunc("GET /people/me", mw.RequireAuth(peopleHandler.Profile))
	mux.HandleFunc("GET /people/export.xlsx", mw.RequirePermission(security.PermViewPerson, peopleHandler.Export))
	mux.HandleFunc("GET /people/{id}", mw.RequirePermission(security.PermViewPerson, peopleHandler.Show))
	mux.HandleFunc("GET /relationships/{kind}", mw.RequirePermission(security.PermViewRelationship, relationshipHandler.List))
	mux.HandleFunc("GET /relationships/{kind}/new", mw.RequireAuth(relationshipHandler.New))
	mux.HandleFunc("GET /temperatures", mw.RequirePermission(security.PermViewTemperatureRecord, temperatureHandler.List))
	mux.HandleFunc("GET /temperatures/new", mw.RequireAuth(temperatureHandler.New))
	mux.HandleFunc("POST /temperatures", mw.CSRFProtect(mw.RequireAuth(temperatureHandler.Create)))

	return &testApp{db: db, auth: auth, mw: mw, csrf: csrf, mux: mux}
}

// signIn registers an account and returns its session id
func (a *testApp) signIn(t *testing.T, username, fullName string) string {
	t.Helper()
	_, err := a.auth.Register(context.Background(), service.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse",
		FullName: fullName,
	})
	require.NoError(t, err)

	session, _, err := a.auth.Login(username, "correct horse")
	require.NoError(t, err)
	return session.ID
}

func (a *testApp) get(t *testing.T, path, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: sessionID})
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

// post submits form with a valid CSRF token for sessionID
func (a *testApp) post(t *testing.T, path, sessionID string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	token, err := a.csrf.GenerateToken(sessionID)
	require.NoError(t, err)
	form.Set(security.CSRFFormField, token)

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: sessionID})
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/people", "/people/me", "/temperatures", "/relationships/interpersonal"} {
		rec := app.get(t, path, "")
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}
}

func TestInvalidSessionClearsCookie(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/people", "not-a-session")

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, security.SessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestLoginPageSetsAnonymousCSRFCookie(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/login", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var anon *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == anonCSRFCookieName {
			anon = c
		}
	}
	require.NotNil(t, anon)

	token, err := app.csrf.GenerateToken(anon.Value)
	require.NoError(t, err)
	assert.Contains(t, rec.Body.String(), token)
}

func TestLoginWithWrongPassword(t *testing.T) {
	app := newTestApp(t)
	app.signIn(t, "jane", "Jane Doe")

	form := url.Values{"login": {"jane"}, "password": {"wrong"}}
	rec := app.post(t, "/login", "anon-browser", form)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), service.ErrInvalidCredentials.Error())
}

func TestLoginSetsSessionCookie(t *testing.T) {
	app := newTestApp(t)
	app.signIn(t, "jane", "Jane Doe")

	form := url.Values{"login": {"jane@example.com"}, "password": {"correct horse"}}
	rec := app.post(t, "/login", "anon-browser", form)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/people", rec.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	_, err := app.auth.ValidateSession(session.Value)
	assert.NoError(t, err)
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	form := url.Values{"username": {"john"}, "full_name": {"John Doe"}}
	req := httptest.NewRequest(http.MethodPost, "/people", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: sessionID})
	rec := httptest.NewRecorder()
	app.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProfileRedirectsToOwnPerson(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	rec := app.get(t, "/people/me", sessionID)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "/people/"), location)

	rec = app.get(t, location, sessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Jane Doe")
}

func TestCreatePersonFlow(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	rec := app.post(t, "/people", sessionID, url.Values{
		"username":      {"john"},
		"full_name":     {"John Smith"},
		"gender":        {string(models.GenderMale)},
		"date_of_birth": {"1990-05-01"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	rec = app.get(t, "/people?q=smith", sessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "John Smith")
}

func TestCreatePersonValidationError(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	rec := app.post(t, "/people", sessionID, url.Values{
		"username":  {"john"},
		"full_name": {"John Smith"},
		"gender":    {"unknown"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="john"`)
}

func TestCreatePersonDuplicateWarning(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	rec := app.post(t, "/people", sessionID, url.Values{"username": {"john"}, "full_name": {"John Smith"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	// same tokens in another order
	rec = app.post(t, "/people", sessionID, url.Values{"username": {"john2"}, "full_name": {"Smith John"}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "already recorded")
	assert.Contains(t, body, `name="confirmed" value="true"`)

	rec = app.post(t, "/people", sessionID, url.Values{
		"username":  {"john2"},
		"full_name": {"Smith John"},
		"confirmed": {"true"},
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestShowUnknownPerson(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	assert.Equal(t, http.StatusNotFound, app.get(t, "/people/9999", sessionID).Code)
	assert.Equal(t, http.StatusNotFound, app.get(t, "/people/abc", sessionID).Code)
}

func TestUnknownRelationshipKind(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	assert.Equal(t, http.StatusNotFound, app.get(t, "/relationships/cosmic", sessionID).Code)
}

func TestRelationshipPagesRender(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	for _, kind := range models.RelationshipKinds {
		rec := app.get(t, "/relationships/"+string(kind), sessionID)
		assert.Equal(t, http.StatusOK, rec.Code, kind)

		rec = app.get(t, "/relationships/"+string(kind)+"/new", sessionID)
		assert.Equal(t, http.StatusOK, rec.Code, kind)
	}
}

func TestTemperatureOutOfRange(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	rec := app.get(t, "/people/me", sessionID)
	personID := strings.TrimPrefix(rec.Header().Get("Location"), "/people/")

	rec = app.post(t, "/temperatures", sessionID, url.Values{
		"person":      {personID},
		"temperature": {"50"},
		"taken_at":    {time.Now().Format(service.DateTimeLayout)},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = app.post(t, "/temperatures", sessionID, url.Values{
		"person":      {personID},
		"temperature": {"37.2"},
		"taken_at":    {time.Now().Format(service.DateTimeLayout)},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	rec = app.get(t, "/temperatures", sessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "37.2")
}

func TestExportRoster(t *testing.T) {
	app := newTestApp(t)
	sessionID := app.signIn(t, "jane", "Jane Doe")

	rec := app.get(t, "/people/export.xlsx", sessionID)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "people-")
	// XLSX files are zip archives
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))
}
