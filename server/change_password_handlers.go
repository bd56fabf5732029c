package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/readit-web/auth"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/rs/zerolog"
)

// The change-password steps unlock each other with one-time flags in the session store.
// A request's store does not outlive it, so each step that grants a flag goes on to the
// next page in the same request instead of redirecting.

// changePasswordFailure handles the errors every step shares
func (s *Server) changePasswordFailure(w http.ResponseWriter, r *http.Request, page string, view pageView, err error) {
	switch {
	case errors.Is(err, auth.ErrNoPassword):
		redirectWithError(w, r, RouteSettings, "Your account signs in with Google and has no password to change.")
	case errors.Is(err, auth.ErrNotSignedIn), errors.Is(err, apperrors.ErrSessionExpired):
		s.backendError(w, r, apperrors.ErrSessionExpired)
	case errors.Is(err, apperrors.ErrClient):
		status, msg := formFailure(err, "That code is invalid or has expired.")
		view.Error = msg
		s.render(w, r, status, page, view)
	default:
		s.backendError(w, r, err)
	}
}

// ChangePasswordRequestHandler emails a code and shows the code page
func (s *Server) ChangePasswordRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := executionContext(r).Service.RequestChangePasswordCode(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Info().Err(err).Msg("change password code request failed")
			if errors.Is(err, apperrors.ErrClient) {
				_, msg := formFailure(err, "We could not send a code.")
				redirectWithError(w, r, RouteSettings, msg)
				return
			}
			s.changePasswordFailure(w, r, pageSettings, pageView{Title: "Settings"}, err)
			return
		}
		if !s.navigate(w, r, RouteChangePasswordCode) {
			return
		}
		s.render(w, r, http.StatusOK, pageChangePasswordCode, pageView{
			Title:  "Change password",
			Notice: "We sent a code to your email address.",
		})
	}
}

// ChangePasswordResendHandler sends another code. htmx callers get an empty reply.
func (s *Server) ChangePasswordResendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view := pageView{Title: "Change password"}
		if err := executionContext(r).Service.ResendChangePasswordCode(r.Context()); err != nil {
			s.changePasswordFailure(w, r, pageChangePasswordCode, view, err)
			return
		}
		if isHTMXRequest(r) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		view.Notice = "We sent you a new code."
		s.render(w, r, http.StatusOK, pageChangePasswordCode, view)
	}
}

// ChangePasswordCodeGetHandler is reached only once per granted flag; the route guard
// consumes it
func (s *Server) ChangePasswordCodeGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, pageChangePasswordCode, pageView{Title: "Change password"})
	}
}

// ChangePasswordCodePostHandler verifies the emailed code and shows the new-password page
func (s *Server) ChangePasswordCodePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		code := strings.TrimSpace(r.PostFormValue("code"))
		if err := executionContext(r).Service.VerifyChangePasswordCode(r.Context(), code); err != nil {
			s.changePasswordFailure(w, r, pageChangePasswordCode, pageView{Title: "Change password"}, err)
			return
		}
		if !s.navigate(w, r, RouteChangePasswordNew) {
			return
		}
		s.render(w, r, http.StatusOK, pageChangePasswordNew, pageView{
			Title: "Change password",
			Form:  url.Values{"code": {code}},
		})
	}
}

// ChangePasswordNewGetHandler shows the new-password form. Without the code from the
// previous step the form cannot be submitted, so the user starts over from settings.
func (s *Server) ChangePasswordNewGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			redirectWithError(w, r, RouteSettings, "Request a new code to change your password.")
			return
		}
		s.render(w, r, http.StatusOK, pageChangePasswordNew, pageView{
			Title: "Change password",
			Form:  url.Values{"code": {code}},
		})
	}
}

// ChangePasswordNewPostHandler sets the new password
func (s *Server) ChangePasswordNewPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		code := r.PostFormValue("code")
		view := pageView{Title: "Change password", Form: url.Values{"code": {code}}}
		fieldErrs, err := executionContext(r).Service.ChangePassword(r.Context(), code,
			r.PostFormValue("currentPassword"), r.PostFormValue("newPassword"))
		if len(fieldErrs) > 0 {
			view.Fields = fieldErrs
			s.render(w, r, http.StatusUnprocessableEntity, pageChangePasswordNew, view)
			return
		}
		if err != nil {
			if errors.Is(err, apperrors.ErrClient) {
				status, msg := formFailure(err, "We could not change your password.")
				view.Error = msg
				s.render(w, r, status, pageChangePasswordNew, view)
				return
			}
			s.changePasswordFailure(w, r, pageChangePasswordNew, view, err)
			return
		}
		redirectWithNotice(w, r, RouteSettings, "Your password has been changed.")
	}
}
