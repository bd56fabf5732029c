package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/readit-web/auth"
	apperrors "github.com/jrsteele09/readit-web/internal/errors"
	"github.com/rs/zerolog"
)

// ValidatePasswordHandler renders the password strength meter for htmx
func (s *Server) ValidatePasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		password := r.FormValue("password")
		w.Header().Set("Content-Type", contentTypeHTML)
		if password == "" {
			w.WriteHeader(http.StatusOK)
			return
		}

		report := auth.ValidatePassword(password, r.FormValue("username"), r.FormValue("emailAddress"))
		if report.Valid {
			w.Header().Set("HX-Trigger", `{"passwordValid": ""}`)
		} else {
			w.Header().Set("HX-Trigger", `{"passwordInvalid": ""}`)
		}
		w.WriteHeader(http.StatusOK)

		fmt.Fprintf(w, `<meter min="0" max="100" value="%d"></meter> <span class="strength-%s">%s</span>`,
			report.Percentage, report.Strength, report.Strength)
		for _, msg := range report.Errors {
			fmt.Fprintf(w, `<p class="field-error">%s</p>`, template.HTMLEscapeString(msg))
		}
	}
}

// SignupGetHandler renders the signup page
func (s *Server) SignupGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, pageSignup, pageView{Title: "Sign up", Error: r.URL.Query().Get("error")})
	}
}

// SignupPostHandler registers the account. The new account signs in from the login
// page and verifies its email address from there.
func (s *Server) SignupPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		form := auth.SignupForm{
			Username:        strings.TrimSpace(r.PostFormValue("username")),
			EmailAddress:    strings.TrimSpace(r.PostFormValue("emailAddress")),
			Password:        r.PostFormValue("password"),
			ConfirmPassword: r.PostFormValue("confirmPassword"),
		}
		view := pageView{
			Title: "Sign up",
			Form:  url.Values{"username": {form.Username}, "emailAddress": {form.EmailAddress}},
		}

		_, fieldErrs, err := executionContext(r).Service.Signup(r.Context(), form)
		if len(fieldErrs) > 0 {
			view.Fields = fieldErrs
			s.render(w, r, http.StatusUnprocessableEntity, pageSignup, view)
			return
		}
		if err != nil {
			zerolog.Ctx(r.Context()).Info().Err(err).Msg("signup failed")
			status, msg := formFailure(err, "We could not create your account.")
			view.Error = msg
			s.render(w, r, status, pageSignup, view)
			return
		}

		redirectSuccess(w, r, RouteLogin+"?"+url.Values{
			"notice": {"Your account has been created. Log in to verify your email address."},
			"email":  {form.EmailAddress},
		}.Encode())
	}
}

// formFailure maps a rejected form submission to a status and the backend's message
func formFailure(err error, fallback string) (int, string) {
	if errors.Is(err, apperrors.ErrClient) {
		if msg := apperrors.UserMessage(err); msg != "" {
			return apperrors.StatusCode(err), msg
		}
		return apperrors.StatusCode(err), fallback
	}
	return http.StatusBadGateway, "We could not reach Readit. Please try again in a moment."
}

// ForgotPasswordGetHandler renders the forgot-password page
func (s *Server) ForgotPasswordGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, pageForgotPassword, pageView{Title: "Reset password", Error: r.URL.Query().Get("error")})
	}
}

// ForgotPasswordPostHandler emails a reset code and shows the reset form
func (s *Server) ForgotPasswordPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := strings.TrimSpace(r.PostFormValue("emailAddress"))
		userID, err := executionContext(r).Service.RequestPasswordReset(r.Context(), email)
		if err != nil {
			status, msg := formFailure(err, "We could not send a reset code.")
			s.render(w, r, status, pageForgotPassword, pageView{
				Title: "Reset password",
				Error: msg,
				Form:  url.Values{"emailAddress": {email}},
			})
			return
		}

		s.render(w, r, http.StatusOK, pageResetPassword, pageView{
			Title:  "Reset password",
			Notice: "We sent a reset code to your email address.",
			Form:   url.Values{"userId": {userID}},
		})
	}
}

// ResetPasswordPostHandler checks the reset code and sets the new password
func (s *Server) ResetPasswordPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		userID := r.PostFormValue("userId")
		code := strings.TrimSpace(r.PostFormValue("code"))
		view := pageView{Title: "Reset password", Form: url.Values{"userId": {userID}, "code": {code}}}
		service := executionContext(r).Service

		if err := service.VerifyResetCode(r.Context(), userID, code); err != nil {
			status, msg := formFailure(err, "That code is invalid or has expired.")
			view.Error = msg
			s.render(w, r, status, pageResetPassword, view)
			return
		}

		fieldErrs, err := service.ResetPassword(r.Context(), userID, code, r.PostFormValue("newPassword"))
		if len(fieldErrs) > 0 {
			view.Fields = fieldErrs
			s.render(w, r, http.StatusUnprocessableEntity, pageResetPassword, view)
			return
		}
		if err != nil {
			status, msg := formFailure(err, "We could not reset your password.")
			view.Error = msg
			s.render(w, r, status, pageResetPassword, view)
			return
		}
		redirectWithNotice(w, r, RouteLogin, "Your password has been reset. Log in with your new password.")
	}
}

// ResetPasswordResendHandler emails a fresh reset code and shows the reset form again
func (s *Server) ResetPasswordResendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		userID := r.PostFormValue("userId")
		view := pageView{Title: "Reset password", Form: url.Values{"userId": {userID}}}
		if err := executionContext(r).Service.ResendResetCode(r.Context(), userID); err != nil {
			status, msg := formFailure(err, "We could not send a new code.")
			view.Error = msg
			s.render(w, r, status, pageResetPassword, view)
			return
		}
		view.Notice = "We sent a new reset code to your email address."
		s.render(w, r, http.StatusOK, pageResetPassword, view)
	}
}

// VerifyEmailGetHandler renders the verification page for the signed-in account
func (s *Server) VerifyEmailGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, pageVerifyEmail, s.verifyEmailView(r))
	}
}

func (s *Server) verifyEmailView(r *http.Request) pageView {
	userID := executionContext(r).Store.Get().UserID
	return pageView{Title: "Verify email", Form: url.Values{"userId": {userID}}}
}

// VerifyEmailPostHandler confirms the emailed code for the signed-in account, or sends
// a new code when the form asks for one. Both stay on the one path the route guard lets
// an unverified session reach.
func (s *Server) VerifyEmailPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		service := executionContext(r).Service
		view := s.verifyEmailView(r)
		userID := view.Form.Get("userId")

		if r.PostFormValue("action") == "resend" {
			if err := service.ResendVerificationCode(r.Context(), userID); err != nil {
				status, msg := formFailure(err, "We could not resend the code.")
				view.Error = msg
				s.render(w, r, status, pageVerifyEmail, view)
				return
			}
			view.Notice = "We sent you a new code."
			s.render(w, r, http.StatusOK, pageVerifyEmail, view)
			return
		}

		if err := service.VerifyEmail(r.Context(), userID, strings.TrimSpace(r.PostFormValue("code"))); err != nil {
			status, msg := formFailure(err, "That code is invalid or has expired.")
			view.Error = msg
			s.render(w, r, status, pageVerifyEmail, view)
			return
		}
		redirectSuccess(w, r, RouteDashboard)
	}
}
