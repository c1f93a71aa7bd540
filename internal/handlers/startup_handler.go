package handlers

import (
	"context"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Startup step names, in order
const (
	StepDatabase   = "Database connection"
	StepMigrations = "Running migrations"
	StepTemplates  = "Loading templates"
	StepServices   = "Initializing services"
	StepReady      = "Server ready"
)

// StartupStatus tracks initialization progress and gates requests until
// the application handler is installed with MarkReady
type StartupStatus struct {
	mu       sync.RWMutex
	Current  string
	Progress int
	Steps    []StartupStep

	app atomic.Pointer[http.Handler]
}

type StartupStep struct {
	Name      string
	Completed bool
}

// NewStartupStatus creates the status with every step pending
func NewStartupStatus() *StartupStatus {
	names := []string{StepDatabase, StepMigrations, StepTemplates, StepServices, StepReady}
	s := &StartupStatus{Current: "Initializing..."}
	for _, name := range names {
		s.Steps = append(s.Steps, StartupStep{Name: name})
	}
	return s
}

// SetCurrentStep updates the current initialization step
func (s *StartupStatus) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Current = step
}

// CompleteStep marks a step as completed and updates progress
func (s *StartupStatus) CompleteStep(stepName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := 0
	for i := range s.Steps {
		if s.Steps[i].Name == stepName {
			s.Steps[i].Completed = true
		}
		if s.Steps[i].Completed {
			completed++
		}
	}
	s.Progress = (completed * 100) / len(s.Steps)
}

// MarkReady installs the application handler; requests go to it from now on
func (s *StartupStatus) MarkReady(app http.Handler) {
	s.CompleteStep(StepReady)
	s.SetCurrentStep(StepReady)
	s.app.Store(&app)
}

// IsReady returns whether the server is fully initialized
func (s *StartupStatus) IsReady() bool {
	return s.app.Load() != nil
}

// ServeHTTP hands requests to the application once ready. Before that,
// /healthz answers 503 and every other path shows the progress page.
func (s *StartupStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if app := s.app.Load(); app != nil {
		(*app).ServeHTTP(w, r)
		return
	}

	w.Header().Set("Retry-After", "2")
	if r.URL.Path == "/healthz" {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	if err := startupTemplate.Execute(w, s); err != nil {
		zap.L().Warn("failed to render startup page", zap.Error(err))
	}
}

// Healthz answers 200 while ping succeeds, as the ready server's /healthz
func Healthz(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	}
}

var startupTemplate = template.Must(template.New("startup").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<meta http-equiv="refresh" content="2">
	<title>Kinship - Starting Up</title>
	<style>
		body { font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; background: #f4f5f7; display: flex; justify-content: center; padding: 60px 20px; }
		.container { background: white; border-radius: 12px; padding: 32px; max-width: 460px; width: 100%; box-shadow: 0 8px 30px rgba(0,0,0,0.1); }
		h1 { margin: 0 0 8px; text-align: center; color: #2d3748; }
		.progress-bar { height: 10px; background: #e2e8f0; border-radius: 5px; overflow: hidden; margin: 24px 0 8px; }
		.progress-fill { height: 100%; background: #3182ce; }
		.steps { list-style: none; padding: 0; }
		.step { padding: 8px 0; color: #718096; }
		.step.completed { color: #38a169; }
		.current-status { text-align: center; font-style: italic; color: #3182ce; }
	</style>
</head>
<body>
	<div class="container">
		<h1>Kinship</h1>
		<p class="current-status">{{.Current}}</p>
		<div class="progress-bar"><div class="progress-fill" style="width: {{.Progress}}%"></div></div>
		<ul class="steps">
			{{range .Steps}}
			<li class="step {{if .Completed}}completed{{end}}">{{if .Completed}}&#10003;{{else}}&#9675;{{end}} {{.Name}}</li>
			{{end}}
		</ul>
	</div>
</body>
</html>`))
