package handlers

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kinship/internal/security"
	"kinship/internal/service"
)

// AdminHandler handles admin-specific routes
type AdminHandler struct {
	templates     *template.Template
	authService   *service.AuthService
	relationships *service.RelationshipService
	backupService *service.BackupService
	mw            *Middleware
	pageSize      int
	logger        *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(templates *template.Template, authService *service.AuthService, relationships *service.RelationshipService, backupService *service.BackupService, mw *Middleware, pageSize int, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		templates:     templates,
		authService:   authService,
		relationships: relationships,
		backupService: backupService,
		mw:            mw,
		pageSize:      pageSize,
		logger:        logger,
	}
}

// ShowUsers lists accounts with their permissions
func (h *AdminHandler) ShowUsers(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r, h.pageSize)

	users, page, err := h.authService.ListUsers(GetUserFromContext(r.Context()), q)
	if err != nil {
		respondWithServiceError(w, "failed to list users", err)
		return
	}

	render(w, h.templates, "admin_users.tmpl", AdminUsersViewData{
		Layout:      h.mw.layout(w, r, "Users"),
		Users:       users,
		Pagination:  newPagination(r, q, page),
		Permissions: security.AllPermissions,
	})
}

// UpdatePermissions replaces the permissions of one account with the
// checked boxes
func (h *AdminHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	user := GetUserFromContext(r.Context())
	if err := h.authService.SetPermissions(user, id, r.Form["permissions"]); err != nil {
		respondWithServiceError(w, "failed to set permissions", err)
		return
	}

	h.logger.Info("permissions updated", zap.Int64("user_id", id), zap.Int64("actor_id", user.ID))
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// ShowRelationshipTypes lists relationship types with a form to add one
func (h *AdminHandler) ShowRelationshipTypes(w http.ResponseWriter, r *http.Request) {
	h.renderRelationshipTypes(w, r, http.StatusOK, "", nil)
}

// CreateRelationshipType adds a relationship type
func (h *AdminHandler) CreateRelationshipType(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	name := r.FormValue("name")
	if _, err := h.relationships.CreateRelationshipType(GetUserFromContext(r.Context()), name); err != nil {
		fieldErrors, ok := formErrors(err)
		if !ok {
			respondWithServiceError(w, "failed to create relationship type", err)
			return
		}
		h.renderRelationshipTypes(w, r, http.StatusUnprocessableEntity, name, fieldErrors)
		return
	}
	http.Redirect(w, r, "/admin/relationship-types", http.StatusSeeOther)
}

func (h *AdminHandler) renderRelationshipTypes(w http.ResponseWriter, r *http.Request, status int, name string, fieldErrors FormErrors) {
	types, err := h.relationships.ListRelationshipTypes()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "failed to list relationship types", err)
		return
	}

	renderStatus(w, status, h.templates, "admin_relationship_types.tmpl", RelationshipTypesViewData{
		Layout: h.mw.layout(w, r, "Relationship types"),
		Types:  types,
		Name:   name,
		Errors: fieldErrors,
	})
}

// ExportDatabase downloads a JSON backup of every table
func (h *AdminHandler) ExportDatabase(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("kinship_backup_%s.json", timestamp)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if err := h.backupService.Export(w); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to export database", "error exporting database", err)
		return
	}

	h.logger.Info("database exported", zap.Int64("actor_id", user.ID))
}

// ShowDatabaseManagement shows the database backup/restore page
func (h *AdminHandler) ShowDatabaseManagement(w http.ResponseWriter, r *http.Request) {
	h.renderDatabasePage(w, r, http.StatusOK, "", "")
}

// ImportDatabase restores an uploaded backup. With clear_data set the
// current rows are replaced, which also ends every session.
func (h *AdminHandler) ImportDatabase(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxBackupSize)
	if err := r.ParseMultipartForm(MaxBackupSize); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("backup_file")
	if err != nil {
		h.renderDatabasePage(w, r, http.StatusBadRequest, "", "Please select a backup file")
		return
	}
	defer file.Close()

	clearData := r.FormValue("clear_data") == "true"
	if err := h.backupService.Import(file, clearData); err != nil {
		h.logger.Error("database import failed", zap.Int64("actor_id", user.ID), zap.Error(err))
		h.renderDatabasePage(w, r, http.StatusUnprocessableEntity, "", "Failed to import database: "+err.Error())
		return
	}

	h.logger.Info("database imported", zap.Int64("actor_id", user.ID), zap.Bool("clear_data", clearData))
	if clearData {
		http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.renderDatabasePage(w, r, http.StatusOK, "Database imported successfully!", "")
}

func (h *AdminHandler) renderDatabasePage(w http.ResponseWriter, r *http.Request, status int, message, errMsg string) {
	stats, err := h.backupService.Stats()
	if err != nil {
		h.logger.Error("failed to get database stats", zap.Error(err))
	}

	renderStatus(w, status, h.templates, "admin_database.tmpl", DatabaseViewData{
		Layout:  h.mw.layout(w, r, "Database"),
		Stats:   stats,
		Message: message,
		Error:   errMsg,
	})
}
