package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/jrsteele09/readit-web/apiclient"
	"github.com/jrsteele09/readit-web/auth"
	"github.com/jrsteele09/readit-web/sessions"
	"github.com/jrsteele09/readit-web/token/jwt"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// ContextMiddleware gives the request its own execution context: a fresh session store
// and a backend client that carries the inbound cookies and hands renewed cookies back
// to the browser. The context is torn down when the request ends.
func (s *Server) ContextMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		logger := log.With().Str("request_id", requestID).Logger()
		ctx := logger.WithContext(r.Context())

		inbound := r.Cookies()
		creds := apiclient.NewForwarded(inbound, w.Header())
		client := apiclient.New(
			apiclient.Config{BaseURL: s.config.GetAPIBaseURL(), Timeout: s.config.GetRequestTimeout()},
			creds,
			apiclient.WithHTTPClient(s.httpClient),
			apiclient.WithBreaker(s.breaker),
		)
		ec := auth.NewExecutionContext(client, s.config)
		defer ec.Close()

		// a readable access cookie saves the refresh before the identity check
		if expiry, err := jwt.ExpiryFromCookies(inbound, s.config.GetAccessCookieName()); err == nil {
			ec.Store.Set(sessions.Patch{AccessTokenExpiresAt: &expiry})
		}

		next(w, r.WithContext(auth.NewContext(ctx, ec)))
	}
}

// executionContext returns the request's execution context. Routes behind
// HTMLMiddleWare always have one.
func executionContext(r *http.Request) *auth.ExecutionContext {
	ec, ok := auth.FromContext(r.Context())
	if !ok {
		panic("server: request has no execution context")
	}
	return ec
}

// RequireSession runs the route guard before the page
func (s *Server) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ec := executionContext(r)
		d := ec.Guard.Check(r.Context(), auth.Destination{Path: r.URL.Path, Method: r.Method})
		if !d.Allow {
			redirectSuccess(w, r, d.Location)
			return
		}
		next(w, r)
	}
}

// RequireGuest runs the guest guard before the login and signup pages
func (s *Server) RequireGuest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ec := executionContext(r)
		d := ec.GuestGuard.Check(r.Context(), auth.Destination{Path: r.URL.Path, Method: r.Method})
		if !d.Allow {
			redirectSuccess(w, r, d.Location)
			return
		}
		next(w, r)
	}
}
