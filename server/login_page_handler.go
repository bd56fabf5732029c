package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/readit-web/auth"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/jrsteele09/readit-web/token/jwt"
	"github.com/rs/zerolog"
)

const refreshCookieName = "refresh_token_cookie"

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		s.render(w, r, http.StatusOK, pageLogin, pageView{
			Title:  "Log in",
			Error:  q.Get("error"),
			Notice: q.Get("notice"),
			Form:   url.Values{"emailAddress": {q.Get("email")}},
		})
	}
}

// LoginSubmissionHandler processes the login form. An unverified account is signed in
// and sent a verification email; the route guard then takes it to the verification page.
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		ec := executionContext(r)
		form := auth.LoginForm{
			EmailAddress: strings.TrimSpace(r.PostFormValue("emailAddress")),
			Password:     r.PostFormValue("password"),
		}
		view := pageView{Title: "Log in", Form: url.Values{"emailAddress": {form.EmailAddress}}}

		resp, fieldErrs, err := ec.Service.Login(r.Context(), form)
		if len(fieldErrs) > 0 {
			view.Fields = fieldErrs
			s.render(w, r, http.StatusUnprocessableEntity, pageLogin, view)
			return
		}
		if err != nil {
			status, msg := loginFailure(err)
			zerolog.Ctx(r.Context()).Info().Err(err).Msg("login failed")
			view.Error = msg
			s.render(w, r, status, pageLogin, view)
			return
		}

		if !resp.IsEmailVerified {
			if err := ec.Service.SendVerificationEmail(r.Context(), resp.UserID); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("user_id", resp.UserID).Msg("failed to send verification email")
			}
		}
		redirectSuccess(w, r, RouteDashboard)
	}
}

// loginFailure maps a failed sign-in to the status and message shown on the login page
func loginFailure(err error) (int, string) {
	if errors.Is(err, apperrors.ErrClient) {
		msg := apperrors.UserMessage(err)
		if msg == "" {
			msg = "Invalid email or password."
		}
		return http.StatusUnauthorized, msg
	}
	return http.StatusBadGateway, "We could not reach Readit. Please try again in a moment."
}

// LogoutHandler signs out at the backend. The browser's session cookies are expired
// even when the backend call fails.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ec := executionContext(r)
		if err := ec.Service.Logout(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("backend logout failed")
			accessCookie := s.config.GetAccessCookieName()
			if accessCookie == "" {
				accessCookie = jwt.DefaultAccessCookieName
			}
			for _, name := range []string{accessCookie, refreshCookieName} {
				http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
			}
		}
		redirectSuccess(w, r, RouteLogin)
	}
}
