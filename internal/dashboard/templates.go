package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/catherinevee/cloudboard/internal/models"
	"github.com/catherinevee/cloudboard/internal/shared/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageTemplate = *template.Template

var pageFiles = map[string]string{
	"login":          "templates/login.html",
	"register":       "templates/register.html",
	"home":           "templates/home.html",
	"profile":        "templates/profile.html",
	"credentials":    "templates/credentials.html",
	"credentialForm": "templates/credential_form.html",
}

// parsePages builds one template per page, each combined with the layout
func parsePages() (map[string]pageTemplate, error) {
	pages := make(map[string]pageTemplate, len(pageFiles))
	for name, file := range pageFiles {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", file)
		if err != nil {
			return nil, err
		}
		pages[name] = t
	}
	return pages, nil
}

// pageData is what every page template receives
type pageData struct {
	Title         string
	CSRFToken     string
	Flash         *flash
	Authenticated bool
	Sidebar       []models.CloudProvider
	Page          interface{}
}

type loginView struct {
	Email string
}

type registerView struct {
	Name  string
	Email string
}

type homeView struct {
	HasCredentials bool
	Subscriptions  []subscriptionView
	DiagramURL     string
}

type subscriptionView struct {
	Project        models.Project
	Expanded       bool
	ToggleURL      string
	ResourceGroups []models.ResourceGroup
}

type profileView struct {
	User *models.User
}

type credentialsView struct {
	Providers   []models.CloudProvider
	Inventories []models.Inventory
}

type credentialFormView struct {
	Provider models.CloudProvider
	CloudID  string
	ClientID string
	Error    string
}

// render buffers the page before anything is written to w
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := s.pages[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	if data.Flash == nil {
		data.Flash = s.popFlash(w, r)
	}
	data.CSRFToken = s.csrfToken(w, r)

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		reqLog := logger.FromContext(r.Context())
		reqLog.Error().Err(err).Str("page", page).Msg("failed to render page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
