package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/handlers"
	"kinship/internal/security"
)

type handlerSet struct {
	auth          *handlers.AuthHandler
	people        *handlers.PeopleHandler
	relationships *handlers.RelationshipHandler
	temperatures  *handlers.TemperatureHandler
	admin         *handlers.AdminHandler
}

func routes(cfg *config.Config, mw *handlers.Middleware, h handlerSet, reg *prometheus.Registry, db *database.DB) http.Handler {
	mux := http.NewServeMux()

	// mutating routes check the CSRF token; the rest pass straight through
	post := mw.CSRFProtect
	view := func(codename string, next http.HandlerFunc) http.HandlerFunc {
		return mw.RequirePermission(codename, next)
	}

	// Static files
	fs := http.FileServer(http.Dir(cfg.StaticFilesPath))
	mux.Handle("GET /static/", http.StripPrefix("/static/", fs))

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("GET /healthz", handlers.Healthz(db.PingContext))

	// Authentication
	mux.HandleFunc("GET /{$}", h.auth.Home)
	mux.HandleFunc("GET /login", h.auth.ShowLogin)
	mux.HandleFunc("POST /login", mw.RateLimit(post(h.auth.Login)))
	mux.HandleFunc("GET /register", h.auth.ShowRegister)
	mux.HandleFunc("POST /register", mw.RateLimit(post(h.auth.Register)))
	mux.HandleFunc("POST /logout", post(h.auth.Logout))
	mux.HandleFunc("GET /forgot-password", h.auth.ShowForgotPassword)
	mux.HandleFunc("POST /forgot-password", mw.RateLimit(post(h.auth.ForgotPassword)))
	mux.HandleFunc("GET /reset-password", h.auth.ShowResetPassword)
	mux.HandleFunc("POST /reset-password", post(h.auth.ResetPassword))
	mux.HandleFunc("GET /auth/{provider}/start", h.auth.StartOAuth)
	mux.HandleFunc("GET /auth/{provider}/callback", h.auth.OAuthCallback)

	// People
	mux.HandleFunc("GET /people", view(security.PermViewPerson, h.people.List))
	mux.HandleFunc("GET /people/new", view(security.PermAddPerson, h.people.New))
	mux.HandleFunc("POST /people", post(mw.RequireAuth(h.people.Create)))
	mux.HandleFunc("GET /people/me", mw.RequireAuth(h.people.Profile))
	mux.HandleFunc("GET /people/export.xlsx", view(security.PermViewPerson, h.people.Export))
	mux.HandleFunc("GET /people/{id}", view(security.PermViewPerson, h.people.Show))
	mux.HandleFunc("GET /people/{id}/edit", mw.RequireAuth(h.people.Edit))
	mux.HandleFunc("POST /people/{id}", post(mw.RequireAuth(h.people.Update)))

	// Relationships, one list per kind
	mux.HandleFunc("GET /relationships/{kind}", view(security.PermViewRelationship, h.relationships.List))
	mux.HandleFunc("GET /relationships/{kind}/new", mw.RequireAuth(h.relationships.New))
	mux.HandleFunc("POST /relationships/{kind}", post(mw.RequireAuth(h.relationships.Create)))
	mux.HandleFunc("GET /relationships/{kind}/{id}/edit", mw.RequireAuth(h.relationships.Edit))
	mux.HandleFunc("POST /relationships/{kind}/{id}", post(mw.RequireAuth(h.relationships.Update)))
	mux.HandleFunc("GET /relationships/{kind}/{id}/delete", mw.RequireAuth(h.relationships.ConfirmDelete))
	mux.HandleFunc("POST /relationships/{kind}/{id}/delete", post(mw.RequireAuth(h.relationships.Delete)))

	// Temperatures
	mux.HandleFunc("GET /temperatures", view(security.PermViewTemperatureRecord, h.temperatures.List))
	mux.HandleFunc("GET /temperatures/new", mw.RequireAuth(h.temperatures.New))
	mux.HandleFunc("POST /temperatures", post(mw.RequireAuth(h.temperatures.Create)))
	mux.HandleFunc("GET /temperatures/{id}/edit", mw.RequireAuth(h.temperatures.Edit))
	mux.HandleFunc("POST /temperatures/{id}", post(mw.RequireAuth(h.temperatures.Update)))

	// Admin
	mux.HandleFunc("GET /admin/users", view(security.PermManageUsers, h.admin.ShowUsers))
	mux.HandleFunc("POST /admin/users/{id}/permissions", post(view(security.PermManageUsers, h.admin.UpdatePermissions)))
	mux.HandleFunc("GET /admin/relationship-types", view(security.PermManageUsers, h.admin.ShowRelationshipTypes))
	mux.HandleFunc("POST /admin/relationship-types", post(view(security.PermManageUsers, h.admin.CreateRelationshipType)))
	mux.HandleFunc("GET /admin/database", mw.RequireSuperuser(h.admin.ShowDatabaseManagement))
	mux.HandleFunc("GET /admin/database/export", mw.RequireSuperuser(h.admin.ExportDatabase))
	// the size limit applies before the CSRF check reads the multipart form
	mux.Handle("POST /admin/database/import",
		http.MaxBytesHandler(post(mw.RequireSuperuser(h.admin.ImportDatabase)), handlers.MaxBackupSize))

	return mux
}
