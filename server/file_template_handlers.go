package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/jrsteele09/readit-web/auth"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/rs/zerolog"
)

//go:embed templates/*
var templateFiles embed.FS

const contentTypeHTML = "text/html; charset=utf-8"

// Page templates, each rendered inside layout.html
const (
	pageLogin              = "login.html"
	pageSignup             = "signup.html"
	pageForgotPassword     = "forgot_password.html"
	pageResetPassword      = "reset_password.html"
	pageVerifyEmail        = "verify_email.html"
	pageDashboard          = "dashboard.html"
	pageProfile            = "profile.html"
	pageSettings           = "settings.html"
	pageChangePasswordCode = "change_password_code.html"
	pageChangePasswordNew  = "change_password_new.html"
	pageBooks              = "books.html"
	pageNotifications      = "notifications.html"
	pageRentals            = "rentals.html"
	pageError              = "error.html"
)

var pageNames = []string{
	pageLogin, pageSignup, pageForgotPassword, pageResetPassword, pageVerifyEmail,
	pageDashboard, pageProfile, pageSettings, pageChangePasswordCode, pageChangePasswordNew,
	pageBooks, pageNotifications, pageRentals, pageError,
}

var templateFuncs = template.FuncMap{
	"readits": func(amount float64) string {
		return fmt.Sprintf("%.2f", amount)
	},
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.New("layout.html").Funcs(templateFuncs).ParseFS(TemplateFilesFS(), "layout.html", name)
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// pageView is the model every page template receives
type pageView struct {
	AppName string
	Title   string
	Session sessions.Session
	Error   string
	Notice  string
	Form    url.Values
	Fields  auth.FieldErrors
	Google  bool
	Data    any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, view pageView) {
	tmpl, ok := s.pages[page]
	if !ok {
		http.Error(w, "500 - Unknown page", http.StatusInternalServerError)
		return
	}

	view.AppName = s.config.GetAppName()
	view.Google = s.config.GoogleSignInEnabled()
	if ec, ok := auth.FromContext(r.Context()); ok {
		view.Session = ec.Store.Get()
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("page", page).Msg("Failed to render page")
		http.Error(w, "500 - Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
