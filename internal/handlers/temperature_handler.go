package handlers

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"kinship/internal/security"
	"kinship/internal/service"
)

// TemperatureHandler serves the temperature record pages
type TemperatureHandler struct {
	temperatures *service.TemperatureService
	people       *service.PersonService
	mw           *Middleware
	templates    *template.Template
	pageSize     int
	logger       *zap.Logger
}

// NewTemperatureHandler creates a new temperature handler
func NewTemperatureHandler(temperatures *service.TemperatureService, people *service.PersonService, mw *Middleware, templates *template.Template, pageSize int, logger *zap.Logger) *TemperatureHandler {
	return &TemperatureHandler{
		temperatures: temperatures,
		people:       people,
		mw:           mw,
		templates:    templates,
		pageSize:     pageSize,
		logger:       logger,
	}
}

// List renders one page of readings, filtered by ?q= on the person
func (h *TemperatureHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	q := listQuery(r, h.pageSize)

	records, page, err := h.temperatures.ListTemperatureRecords(user, q)
	if err != nil {
		respondWithServiceError(w, "failed to list temperature records", err)
		return
	}

	render(w, h.templates, "temperature_list.tmpl", TemperatureListViewData{
		Layout:     h.mw.layout(w, r, "Temperatures"),
		Records:    records,
		Pagination: newPagination(r, q, page),
		CanAdd:     user.HasPermission(security.PermAddTemperatureRecord),
		CanChange:  user.HasPermission(security.PermChangeTemperatureRecord),
	})
}

// New renders an empty reading form, taken now unless changed
func (h *TemperatureHandler) New(w http.ResponseWriter, r *http.Request) {
	if !GetUserFromContext(r.Context()).HasPermission(security.PermAddTemperatureRecord) {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}

	in := service.TemperatureInput{
		PersonID: queryID(r, "person"),
		TakenAt:  time.Now().Format(service.DateTimeLayout),
	}
	h.renderForm(w, r, http.StatusOK, 0, in, nil, nil)
}

// Create saves a new reading. A second reading on the same day
// re-renders the form with a warning until the user confirms.
func (h *TemperatureHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := temperatureInput(w, r)
	if !ok {
		return
	}

	if _, err := h.temperatures.CreateTemperatureRecord(GetUserFromContext(r.Context()), in); err != nil {
		h.formError(w, r, 0, in, err)
		return
	}
	http.Redirect(w, r, "/temperatures", http.StatusSeeOther)
}

// Edit renders the form for an existing reading
func (h *TemperatureHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	user := GetUserFromContext(r.Context())
	if !user.HasPermission(security.PermChangeTemperatureRecord) {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}

	rec, err := h.temperatures.GetTemperatureRecord(user, id)
	if err != nil {
		respondWithServiceError(w, "failed to load temperature record", err)
		return
	}

	in := service.TemperatureInput{
		PersonID:    rec.PersonID,
		Temperature: strconv.FormatFloat(rec.Temperature, 'f', 1, 64),
		TakenAt:     rec.CreatedAt.In(time.Local).Format(service.DateTimeLayout),
	}
	h.renderForm(w, r, http.StatusOK, id, in, nil, nil)
}

// Update saves the form over an existing reading
func (h *TemperatureHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	in, ok := temperatureInput(w, r)
	if !ok {
		return
	}

	if _, err := h.temperatures.UpdateTemperatureRecord(GetUserFromContext(r.Context()), id, in); err != nil {
		h.formError(w, r, id, in, err)
		return
	}
	http.Redirect(w, r, "/temperatures", http.StatusSeeOther)
}

func temperatureInput(w http.ResponseWriter, r *http.Request) (service.TemperatureInput, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return service.TemperatureInput{}, false
	}
	return service.TemperatureInput{
		PersonID:    formID(r, "person"),
		Temperature: r.FormValue("temperature"),
		TakenAt:     r.FormValue("taken_at"),
		Confirmed:   r.FormValue("confirmed") == "true",
	}, true
}

func (h *TemperatureHandler) formError(w http.ResponseWriter, r *http.Request, id int64, in service.TemperatureInput, err error) {
	if warning, ok := duplicateWarning(err); ok {
		h.renderForm(w, r, http.StatusOK, id, in, nil, warning)
		return
	}
	fieldErrors, ok := formErrors(err)
	if !ok {
		respondWithServiceError(w, "failed to save temperature record", err)
		return
	}
	h.renderForm(w, r, http.StatusUnprocessableEntity, id, in, fieldErrors, nil)
}

func (h *TemperatureHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, id int64, in service.TemperatureInput, fieldErrors FormErrors, warning *Warning) {
	people, err := h.people.ListAllPeople()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "failed to list people", err)
		return
	}

	title := "Record temperature"
	if id != 0 {
		title = "Edit temperature"
	}
	minTemp, maxTemp := h.temperatures.Range()
	renderStatus(w, status, h.templates, "temperature_form.tmpl", TemperatureFormViewData{
		Layout:   h.mw.layout(w, r, title),
		RecordID: id,
		Input:    in,
		People:   people,
		Min:      minTemp,
		Max:      maxTemp,
		Errors:   fieldErrors,
		Warning:  warning,
	})
}
