package server

import (
	"net/http"
	"strings"

	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/jrsteele09/readit-web/server/googleflow"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// GoogleLoginHandler starts a Google sign-in by sending the browser to Google's
// consent screen
func (s *Server) GoogleLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.googleConfig(r.Context())
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("google sign-in unavailable")
			redirectWithError(w, r, RouteLogin, "Google sign-in is not available right now.")
			return
		}

		state := generateRandomString(32)
		flow := googleflow.Flow{ReturnURL: localPath(r.URL.Query().Get("return"), RouteDashboard)}
		if err := s.googleFlows.Upsert(state, flow); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to store google sign-in state")
			redirectWithError(w, r, RouteLogin, "Google sign-in is not available right now.")
			return
		}
		s.setGoogleStateCookie(w, r, state, int(googleflow.DefaultTTL.Seconds()))

		http.Redirect(w, r, cfg.OAuth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusSeeOther)
	}
}

// GoogleCallbackHandler receives Google's authorization code and hands it to the
// backend, which exchanges it and sets the session cookies
func (s *Server) GoogleCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())
		if errorParam := r.FormValue("error"); errorParam != "" {
			logger.Info().Str("error", errorParam).Msg("google sign-in declined")
			redirectWithError(w, r, RouteLogin, "Google sign-in was cancelled.")
			return
		}

		state := r.FormValue("state")
		code := r.FormValue("code")
		if code == "" || state == "" {
			redirectWithError(w, r, RouteLogin, "Google sign-in failed. Please try again.")
			return
		}

		cookie, err := r.Cookie(googleStateCookie)
		s.setGoogleStateCookie(w, r, "", -1)
		if err != nil || cookie.Value != state {
			logger.Warn().Msg("google callback state does not match this browser")
			redirectWithError(w, r, RouteLogin, "Google sign-in expired. Please try again.")
			return
		}

		flow, err := s.googleFlows.Take(state)
		if err != nil {
			logger.Warn().Err(err).Msg("unknown google sign-in state")
			redirectWithError(w, r, RouteLogin, "Google sign-in expired. Please try again.")
			return
		}

		ec := executionContext(r)
		if _, err := ec.Service.GoogleLogin(r.Context(), code); err != nil {
			logger.Info().Err(err).Msg("google login rejected")
			msg := apperrors.UserMessage(err)
			if msg == "" {
				msg = "Google sign-in failed. Please try again."
			}
			redirectWithError(w, r, RouteLogin, msg)
			return
		}
		redirectSuccess(w, r, flow.ReturnURL)
	}
}

// localPath accepts only same-site absolute paths
func localPath(p, fallback string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return fallback
	}
	return p
}
