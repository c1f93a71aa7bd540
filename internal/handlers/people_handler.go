package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"kinship/internal/models"
	"kinship/internal/security"
	"kinship/internal/service"
)

// PeopleHandler serves the people pages
type PeopleHandler struct {
	people    *service.PersonService
	mw        *Middleware
	templates *template.Template
	pageSize  int
	logger    *zap.Logger
}

// NewPeopleHandler creates a new people handler
func NewPeopleHandler(people *service.PersonService, mw *Middleware, templates *template.Template, pageSize int, logger *zap.Logger) *PeopleHandler {
	return &PeopleHandler{
		people:    people,
		mw:        mw,
		templates: templates,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// List renders one page of people, filtered by ?q=
func (h *PeopleHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	q := listQuery(r, h.pageSize)

	people, page, err := h.people.ListPeople(user, q)
	if err != nil {
		respondWithServiceError(w, "failed to list people", err)
		return
	}

	render(w, h.templates, "people_list.tmpl", PeopleListViewData{
		Layout:     h.mw.layout(w, r, "People"),
		People:     people,
		Pagination: newPagination(r, q, page),
		CanAdd:     user.HasPermission(security.PermAddPerson),
		CanExport:  user.HasPermission(security.PermViewPerson),
	})
}

// Show renders a person with their family and latest temperatures
func (h *PeopleHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}

	detail, err := h.people.GetPersonDetail(GetUserFromContext(r.Context()), id)
	if err != nil {
		respondWithServiceError(w, "failed to load person", err)
		return
	}

	render(w, h.templates, "person_detail.tmpl", PersonDetailViewData{
		Layout: h.mw.layout(w, r, detail.DisplayName()),
		Detail: detail,
	})
}

// Profile redirects to the person linked to the signed-in account
func (h *PeopleHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.people.GetProfile(GetUserFromContext(r.Context()))
	if err != nil {
		respondWithServiceError(w, "failed to load profile", err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/people/%d", profile.ID), http.StatusSeeOther)
}

// New renders an empty person form
func (h *PeopleHandler) New(w http.ResponseWriter, r *http.Request) {
	render(w, h.templates, "person_form.tmpl", PersonFormViewData{
		Layout:  h.mw.layout(w, r, "Add person"),
		Genders: models.Genders,
	})
}

// Create saves a new person. A likely duplicate re-renders the form with
// a warning until the user confirms.
func (h *PeopleHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := personInput(w, r)
	if !ok {
		return
	}

	p, err := h.people.CreatePerson(GetUserFromContext(r.Context()), in)
	if err != nil {
		h.formError(w, r, "Add person", 0, in, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/people/%d", p.ID), http.StatusSeeOther)
}

// Edit renders the form for an existing person
func (h *PeopleHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}

	p, err := h.people.GetPerson(id)
	if err != nil {
		respondWithServiceError(w, "failed to load person", err)
		return
	}
	if !service.CanEdit(GetUserFromContext(r.Context()), p) {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}

	in := service.PersonInput{
		Username: p.Username,
		FullName: p.FullName,
		Gender:   string(p.Gender),
	}
	if p.DateOfBirth != nil {
		in.DateOfBirth = p.DateOfBirth.Format(models.DateLayout)
	}

	render(w, h.templates, "person_form.tmpl", PersonFormViewData{
		Layout:   h.mw.layout(w, r, "Edit "+p.DisplayName()),
		PersonID: p.ID,
		Input:    in,
		Genders:  models.Genders,
	})
}

// Update saves the form over an existing person
func (h *PeopleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	in, ok := personInput(w, r)
	if !ok {
		return
	}

	if _, err := h.people.UpdatePerson(GetUserFromContext(r.Context()), id, in); err != nil {
		h.formError(w, r, "Edit person", id, in, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/people/%d", id), http.StatusSeeOther)
}

// Export downloads every person as a spreadsheet
func (h *PeopleHandler) Export(w http.ResponseWriter, r *http.Request) {
	// buffered so a failure can still become an error page
	var buf bytes.Buffer
	if err := h.people.ExportRoster(GetUserFromContext(r.Context()), &buf); err != nil {
		respondWithServiceError(w, "failed to export roster", err)
		return
	}

	filename := fmt.Sprintf("people-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("failed to write roster", zap.Error(err))
	}
}

func personInput(w http.ResponseWriter, r *http.Request) (service.PersonInput, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return service.PersonInput{}, false
	}
	return service.PersonInput{
		Username:    r.FormValue("username"),
		FullName:    r.FormValue("full_name"),
		Gender:      r.FormValue("gender"),
		DateOfBirth: r.FormValue("date_of_birth"),
		Confirmed:   r.FormValue("confirmed") == "true",
	}, true
}

// formError re-renders the person form for validation errors and
// duplicate warnings; anything else becomes an error response
func (h *PeopleHandler) formError(w http.ResponseWriter, r *http.Request, title string, id int64, in service.PersonInput, err error) {
	data := PersonFormViewData{
		PersonID: id,
		Input:    in,
		Genders:  models.Genders,
	}

	status := http.StatusUnprocessableEntity
	if warning, ok := duplicateWarning(err); ok {
		data.Warning = warning
		status = http.StatusOK
	} else if fieldErrors, ok := formErrors(err); ok {
		data.Errors = fieldErrors
	} else {
		respondWithServiceError(w, "failed to save person", err)
		return
	}

	data.Layout = h.mw.layout(w, r, title)
	renderStatus(w, status, h.templates, "person_form.tmpl", data)
}
