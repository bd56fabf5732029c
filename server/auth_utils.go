package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// googleStateCookie binds a pending Google sign-in to the browser that started it
const googleStateCookie = "readit_google_state"

type OidcConfig struct {
	OidcProvider *oidc.Provider
	OAuth2Config *oauth2.Config
}

// generateRandomString creates a random base64url string
func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func (s *Server) setGoogleStateCookie(w http.ResponseWriter, r *http.Request, state string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     googleStateCookie,
		Value:    state,
		Path:     RouteGoogleCallback,
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// googleConfig discovers Google's endpoints once and caches the result
func (s *Server) googleConfig(ctx context.Context) (OidcConfig, error) {
	s.googleOidcLock.Lock()
	defer s.googleOidcLock.Unlock()
	if s.googleOidc != nil {
		return *s.googleOidc, nil
	}
	if !s.config.GoogleSignInEnabled() {
		return OidcConfig{}, fmt.Errorf("[server googleConfig] google sign-in is not configured")
	}

	provider, err := oidc.NewProvider(ctx, s.config.GetGoogleIssuer())
	if err != nil {
		return OidcConfig{}, fmt.Errorf("[server googleConfig] failed to discover %s: %w", s.config.GetGoogleIssuer(), err)
	}

	redirectURL := s.config.GetGoogleRedirectURL()
	if redirectURL == "" {
		redirectURL = s.config.GetBaseURL() + RouteGoogleCallback
	}
	cfg := OidcConfig{
		OidcProvider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     s.config.GetGoogleClientID(),
			ClientSecret: s.config.GetGoogleClientSecret(),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}
	s.googleOidc = &cfg
	return cfg, nil
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectSuccess(w, r, path+"?error="+url.QueryEscape(errorMsg))
}

func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, notice string) {
	redirectSuccess(w, r, path+"?notice="+url.QueryEscape(notice))
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
