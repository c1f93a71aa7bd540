package handlers

import (
	"fmt"
	"html/template"
	"path/filepath"
	"strconv"
	"time"

	"kinship/internal/models"
)

// TemplateFuncs are the helpers available to every page template
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"formatDateTime": func(t time.Time) string {
			return t.In(time.Local).Format("Jan 2, 2006 15:04")
		},
		"formatDOB": func(t *time.Time) string {
			if t == nil {
				return ""
			}
			return t.Format(models.DateLayout)
		},
		"formatTemp": func(v float64) string {
			return strconv.FormatFloat(v, 'f', 1, 64)
		},
		"age": func(age *int) string {
			if age == nil {
				return ""
			}
			return strconv.Itoa(*age)
		},
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"hasPerm": func(user *models.User, codename string) bool {
			return user.HasPermission(codename)
		},
		"contains": func(slice []string, val string) bool {
			for _, item := range slice {
				if item == val {
					return true
				}
			}
			return false
		},
		"kinds": func() []models.RelationshipKind {
			return models.RelationshipKinds
		},
	}
}

// LoadTemplates parses base.tmpl and every page and component template
// under templatesPath. Pages are looked up by file name.
func LoadTemplates(templatesPath string) (*template.Template, error) {
	baseTemplate := filepath.Join(templatesPath, "base.tmpl")

	patterns := []string{
		filepath.Join(templatesPath, "auth/*.tmpl"),
		filepath.Join(templatesPath, "people/*.tmpl"),
		filepath.Join(templatesPath, "relationships/*.tmpl"),
		filepath.Join(templatesPath, "temperatures/*.tmpl"),
		filepath.Join(templatesPath, "admin/*.tmpl"),
		filepath.Join(templatesPath, "components/*.tmpl"),
	}

	files := []string{baseTemplate}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}

	tmpl, err := template.New("").Funcs(TemplateFuncs()).ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}
