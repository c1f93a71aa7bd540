package handlers

import (
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"kinship/internal/models"
	"kinship/internal/security"
	"kinship/internal/service"
)

// RelationshipHandler serves both relationship kinds under
// /relationships/{kind}
type RelationshipHandler struct {
	relationships *service.RelationshipService
	people        *service.PersonService
	mw            *Middleware
	templates     *template.Template
	pageSize      int
	logger        *zap.Logger
}

// NewRelationshipHandler creates a new relationship handler
func NewRelationshipHandler(relationships *service.RelationshipService, people *service.PersonService, mw *Middleware, templates *template.Template, pageSize int, logger *zap.Logger) *RelationshipHandler {
	return &RelationshipHandler{
		relationships: relationships,
		people:        people,
		mw:            mw,
		templates:     templates,
		pageSize:      pageSize,
		logger:        logger,
	}
}

func pathKind(r *http.Request) (models.RelationshipKind, bool) {
	return models.ParseRelationshipKind(r.PathValue("kind"))
}

func listURL(kind models.RelationshipKind) string {
	return "/relationships/" + string(kind)
}

// List renders one page of relationships of a kind
func (h *RelationshipHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	user := GetUserFromContext(r.Context())
	q := listQuery(r, h.pageSize)

	rels, page, err := h.relationships.ListRelationships(user, kind, q)
	if err != nil {
		respondWithServiceError(w, "failed to list relationships", err)
		return
	}

	render(w, h.templates, "relationship_list.tmpl", RelationshipListViewData{
		Layout:        h.mw.layout(w, r, kind.Label()),
		Kind:          kind,
		Relationships: rels,
		Pagination:    newPagination(r, q, page),
		CanAdd:        user.HasPermission(security.PermAddRelationship),
		CanChange:     user.HasPermission(security.PermChangeRelationship),
		CanDelete:     user.HasPermission(security.PermDeleteRelationship),
	})
}

// New renders an empty relationship form. ?person= preselects the first
// person, as linked from a person page.
func (h *RelationshipHandler) New(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !GetUserFromContext(r.Context()).HasPermission(security.PermAddRelationship) {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}

	in := service.RelationshipInput{PersonID: queryID(r, "person")}
	h.renderForm(w, r, http.StatusOK, kind, 0, in, nil)
}

// Create saves a new relationship
func (h *RelationshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	in, ok := relationshipInput(w, r)
	if !ok {
		return
	}

	if _, err := h.relationships.CreateRelationship(GetUserFromContext(r.Context()), kind, in); err != nil {
		h.formError(w, r, kind, 0, in, err)
		return
	}
	http.Redirect(w, r, listURL(kind), http.StatusSeeOther)
}

// Edit renders the form for an existing relationship
func (h *RelationshipHandler) Edit(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	user := GetUserFromContext(r.Context())
	if !user.HasPermission(security.PermChangeRelationship) {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}

	rel, err := h.relationships.GetRelationship(user, kind, id)
	if err != nil {
		respondWithServiceError(w, "failed to load relationship", err)
		return
	}

	in := service.RelationshipInput{
		PersonID:       rel.PersonID,
		RelativeID:     rel.RelativeID,
		RelationTypeID: rel.RelationTypeID,
	}
	h.renderForm(w, r, http.StatusOK, kind, id, in, nil)
}

// Update saves the form over an existing relationship
func (h *RelationshipHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	in, ok := relationshipInput(w, r)
	if !ok {
		return
	}

	if _, err := h.relationships.UpdateRelationship(GetUserFromContext(r.Context()), kind, id, in); err != nil {
		h.formError(w, r, kind, id, in, err)
		return
	}
	http.Redirect(w, r, listURL(kind), http.StatusSeeOther)
}

// ConfirmDelete asks before deleting a relationship
func (h *RelationshipHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	user := GetUserFromContext(r.Context())
	if !user.HasPermission(security.PermDeleteRelationship) {
		http.Error(w, ErrForbidden, http.StatusForbidden)
		return
	}

	rel, err := h.relationships.GetRelationship(user, kind, id)
	if err != nil {
		respondWithServiceError(w, "failed to load relationship", err)
		return
	}

	render(w, h.templates, "relationship_delete.tmpl", RelationshipDeleteViewData{
		Layout:       h.mw.layout(w, r, "Delete relationship"),
		Relationship: rel,
	})
}

// Delete removes a relationship
func (h *RelationshipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := pathKind(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := h.relationships.DeleteRelationship(GetUserFromContext(r.Context()), kind, id); err != nil {
		respondWithServiceError(w, "failed to delete relationship", err)
		return
	}
	http.Redirect(w, r, listURL(kind), http.StatusSeeOther)
}

func relationshipInput(w http.ResponseWriter, r *http.Request) (service.RelationshipInput, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return service.RelationshipInput{}, false
	}
	return service.RelationshipInput{
		PersonID:       formID(r, "person"),
		RelativeID:     formID(r, "relative"),
		RelationTypeID: formID(r, "relation_type"),
	}, true
}

func (h *RelationshipHandler) formError(w http.ResponseWriter, r *http.Request, kind models.RelationshipKind, id int64, in service.RelationshipInput, err error) {
	fieldErrors, ok := formErrors(err)
	if !ok {
		respondWithServiceError(w, "failed to save relationship", err)
		return
	}
	h.renderForm(w, r, http.StatusUnprocessableEntity, kind, id, in, fieldErrors)
}

func (h *RelationshipHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, kind models.RelationshipKind, id int64, in service.RelationshipInput, fieldErrors FormErrors) {
	people, err := h.people.ListAllPeople()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "failed to list people", err)
		return
	}
	types, err := h.relationships.ListRelationshipTypes()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "failed to list relationship types", err)
		return
	}

	title := fmt.Sprintf("Add %s relationship", kind)
	if id != 0 {
		title = fmt.Sprintf("Edit %s relationship", kind)
	}
	renderStatus(w, status, h.templates, "relationship_form.tmpl", RelationshipFormViewData{
		Layout:         h.mw.layout(w, r, title),
		Kind:           kind,
		RelationshipID: id,
		Input:          in,
		People:         people,
		Types:          types,
		Errors:         fieldErrors,
	})
}
