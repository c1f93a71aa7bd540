package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"kinship/internal/models"
	"kinship/internal/security"
	"kinship/internal/service"
	"kinship/internal/validation"
)

// Layout is embedded in every page view and feeds base.tmpl
type Layout struct {
	Title     string
	User      *models.User
	CSRFToken string
	Flash     string
}

// FormErrors maps a form field name to its message. The empty key holds
// errors that belong to no single field.
type FormErrors map[string]string

// Pagination links a listing page to its neighbours, keeping the search
type Pagination struct {
	models.Page
	Search string
	Path   string
}

// URL returns the link to page number n
func (p Pagination) URL(n int) string {
	q := url.Values{}
	if p.Search != "" {
		q.Set("q", p.Search)
	}
	q.Set("page", strconv.Itoa(n))
	return p.Path + "?" + q.Encode()
}

// Warning is shown above a form when the record looks like a duplicate;
// the form offers to save it anyway.
type Warning struct {
	Message  string
	Existing *models.Person
}

// LoginViewData contains data for the login page
type LoginViewData struct {
	Layout
	Login     string
	Error     string
	Providers []OAuthProviderView
}

// RegisterViewData contains data for the registration page
type RegisterViewData struct {
	Layout
	Username string
	Email    string
	FullName string
	Errors   FormErrors
}

// ForgotPasswordViewData contains data for the forgot password page
type ForgotPasswordViewData struct {
	Layout
	Email string
	Sent  bool
	Error string
}

// ResetPasswordViewData contains data for the reset password page
type ResetPasswordViewData struct {
	Layout
	Token   string
	Invalid string
	Errors  FormErrors
}

// PeopleListViewData contains data for the people listing
type PeopleListViewData struct {
	Layout
	People     []models.PersonSummary
	Pagination Pagination
	CanAdd     bool
	CanExport  bool
}

// PersonDetailViewData contains data for a person page
type PersonDetailViewData struct {
	Layout
	Detail *service.PersonDetail
}

// PersonFormViewData contains data for the person create and edit forms
type PersonFormViewData struct {
	Layout
	PersonID int64
	Input    service.PersonInput
	Genders  []models.Gender
	Errors   FormErrors
	Warning  *Warning
}

// RelationshipListViewData contains data for a relationship listing
type RelationshipListViewData struct {
	Layout
	Kind          models.RelationshipKind
	Relationships []models.Relationship
	Pagination    Pagination
	CanAdd        bool
	CanChange     bool
	CanDelete     bool
}

// RelationshipFormViewData contains data for the relationship forms
type RelationshipFormViewData struct {
	Layout
	Kind           models.RelationshipKind
	RelationshipID int64
	Input          service.RelationshipInput
	People         []models.Person
	Types          []models.RelationshipType
	Errors         FormErrors
}

// RelationshipDeleteViewData contains data for the delete confirmation page
type RelationshipDeleteViewData struct {
	Layout
	Relationship *models.Relationship
}

// TemperatureListViewData contains data for the temperature listing
type TemperatureListViewData struct {
	Layout
	Records    []models.TemperatureRecord
	Pagination Pagination
	CanAdd     bool
	CanChange  bool
}

// TemperatureFormViewData contains data for the temperature forms
type TemperatureFormViewData struct {
	Layout
	RecordID int64
	Input    service.TemperatureInput
	People   []models.Person
	Min, Max float64
	Errors   FormErrors
	Warning  *Warning
}

// AdminUsersViewData contains data for the user administration page
type AdminUsersViewData struct {
	Layout
	Users       []models.User
	Pagination  Pagination
	Permissions []security.PermissionInfo
}

// RelationshipTypesViewData contains data for the relationship type page
type RelationshipTypesViewData struct {
	Layout
	Types  []models.RelationshipType
	Name   string
	Errors FormErrors
}

// DatabaseViewData contains data for the backup page
type DatabaseViewData struct {
	Layout
	Stats   []service.TableCount
	Message string
	Error   string
}

// formErrors extracts a field error from err. ok is false for errors
// that are not validation failures.
func formErrors(err error) (FormErrors, bool) {
	var verr validation.ValidationError
	if errors.As(err, &verr) {
		return FormErrors{verr.Field: verr.Message}, true
	}
	return nil, false
}

// duplicateWarning turns a service duplicate warning into its view
func duplicateWarning(err error) (*Warning, bool) {
	w, ok := service.AsDuplicateWarning(err)
	if !ok {
		return nil, false
	}
	return &Warning{Message: w.Message, Existing: w.Existing}, true
}

// listQuery reads ?q= and ?page= from the request
func listQuery(r *http.Request, pageSize int) models.ListQuery {
	number, _ := strconv.Atoi(r.URL.Query().Get("page"))
	return models.ListQuery{
		Search: r.URL.Query().Get("q"),
		Page:   models.NewPage(number, pageSize),
	}
}

func newPagination(r *http.Request, q models.ListQuery, page models.Page) Pagination {
	return Pagination{Page: page, Search: q.Search, Path: r.URL.Path}
}

// pathID parses an int64 path wildcard
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryID parses an optional int64 query parameter; missing or invalid is 0
func queryID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id
}

// formID parses an optional int64 form field; missing or invalid is 0
func formID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.FormValue(name), 10, 64)
	return id
}

// render executes a named template. Rendering failures are logged and
// answered with a 500.
func render(w http.ResponseWriter, templates *template.Template, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		zap.L().Error("failed to render template", zap.String("template", name), zap.Error(err))
		http.Error(w, ErrInternalServerError, http.StatusInternalServerError)
	}
}

// renderStatus is render with an explicit status code, used for forms
// re-rendered with errors
func renderStatus(w http.ResponseWriter, status int, templates *template.Template, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		zap.L().Error("failed to render template", zap.String("template", name), zap.Error(err))
	}
}
